package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/tgdsl/runtime/pkg/models"
)

// NewPostgresStoresFromDSN creates Postgres-backed stores using a DSN.
func NewPostgresStoresFromDSN(dsn string, config *CockroachConfig) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultCockroachConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}

	return NewPostgresStores(db), nil
}

// NewPostgresStores wraps an already-open *sql.DB in the runtime's stores.
func NewPostgresStores(db *sql.DB) StoreSet {
	return StoreSet{
		Bots:       &pgBotStore{db: db},
		Specs:      &pgSpecStore{db: db},
		BotUsers:   &pgBotUserStore{db: db},
		Locales:    &pgLocaleStore{db: db},
		I18n:       &pgI18nStore{db: db},
		Broadcasts: &pgBroadcastStore{db: db},
		Bookings:   &pgBookingStore{db: db},
		Events:     &pgEventStore{db: db},
		Wizards:    &pgWizardStore{db: db},
		Budgets:    &pgBudgetStore{db: db},
		DB:         db,
		closer:     db.Close,
	}
}

func isDuplicate(err error) bool {
	return strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "23505")
}

// ---- bots ----

type pgBotStore struct{ db *sql.DB }

func (s *pgBotStore) Create(ctx context.Context, b *models.Bot) error {
	if b == nil || b.ID == "" {
		return fmt.Errorf("bot is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bots (id, name, webhook_secret, status, llm_enabled, llm_preset, daily_budget_limit, default_locale, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		b.ID, b.Name, b.WebhookSecret, string(b.Status), b.LLMEnabled, string(b.LLMPreset),
		b.DailyBudgetLimit, b.DefaultLocale, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isDuplicate(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create bot: %w", err)
	}
	return nil
}

func (s *pgBotStore) Get(ctx context.Context, id string) (*models.Bot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, webhook_secret, status, llm_enabled, llm_preset, daily_budget_limit, default_locale, created_at, updated_at
		 FROM bots WHERE id = $1`, id)
	return scanBot(row)
}

func (s *pgBotStore) List(ctx context.Context, limit, offset int) ([]*models.Bot, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM bots`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bots: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, webhook_secret, status, llm_enabled, llm_preset, daily_budget_limit, default_locale, created_at, updated_at
		 FROM bots ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()

	bots := []*models.Bot{}
	for rows.Next() {
		b, err := scanBotRow(rows)
		if err != nil {
			return nil, 0, err
		}
		bots = append(bots, b)
	}
	return bots, total, rows.Err()
}

func (s *pgBotStore) Update(ctx context.Context, b *models.Bot) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bots SET name=$1, status=$2, llm_enabled=$3, llm_preset=$4, daily_budget_limit=$5, default_locale=$6, updated_at=$7
		 WHERE id=$8`,
		b.Name, string(b.Status), b.LLMEnabled, string(b.LLMPreset), b.DailyBudgetLimit, b.DefaultLocale, b.UpdatedAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("update bot: %w", err)
	}
	return requireRowsAffected(res)
}

func (s *pgBotStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bots WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete bot: %w", err)
	}
	return requireRowsAffected(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBot(row scanner) (*models.Bot, error) {
	b, err := scanBotRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return b, err
}

func scanBotRow(row scanner) (*models.Bot, error) {
	var b models.Bot
	var status, preset string
	if err := row.Scan(&b.ID, &b.Name, &b.WebhookSecret, &status, &b.LLMEnabled, &preset,
		&b.DailyBudgetLimit, &b.DefaultLocale, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan bot: %w", err)
	}
	b.Status = models.BotStatus(status)
	b.LLMPreset = models.LLMPreset(preset)
	return &b, nil
}

func requireRowsAffected(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- specs ----

type pgSpecStore struct{ db *sql.DB }

func (s *pgSpecStore) Publish(ctx context.Context, spec *models.Spec) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_specs (bot_id, version, spec_json, published_at) VALUES ($1,$2,$3,$4)`,
		spec.BotID, spec.Version, []byte(spec.SpecJSON), time.Unix(spec.PublishedAt, 0),
	)
	if err != nil {
		if isDuplicate(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("publish spec: %w", err)
	}
	return nil
}

func (s *pgSpecStore) Latest(ctx context.Context, botID string) (*models.Spec, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT bot_id, version, spec_json, published_at FROM bot_specs
		 WHERE bot_id = $1 ORDER BY version DESC LIMIT 1`, botID)
	return scanSpec(row)
}

func (s *pgSpecStore) Get(ctx context.Context, botID string, version int) (*models.Spec, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT bot_id, version, spec_json, published_at FROM bot_specs WHERE bot_id = $1 AND version = $2`,
		botID, version)
	return scanSpec(row)
}

func scanSpec(row scanner) (*models.Spec, error) {
	var spec models.Spec
	var raw []byte
	var published time.Time
	if err := row.Scan(&spec.BotID, &spec.Version, &raw, &published); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan spec: %w", err)
	}
	spec.SpecJSON = json.RawMessage(raw)
	spec.PublishedAt = published.Unix()
	return &spec, nil
}

// ---- bot users ----

type pgBotUserStore struct{ db *sql.DB }

func (s *pgBotUserStore) Upsert(ctx context.Context, u *models.BotUser) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_users (bot_id, user_id, chat_id, last_active, segment_tags, is_active)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (bot_id, user_id) DO UPDATE SET
		   chat_id = EXCLUDED.chat_id, last_active = EXCLUDED.last_active,
		   segment_tags = EXCLUDED.segment_tags, is_active = EXCLUDED.is_active`,
		u.BotID, u.UserID, u.ChatID, u.LastActive, pq.Array(u.SegmentTags), u.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert bot user: %w", err)
	}
	return nil
}

func (s *pgBotUserStore) Get(ctx context.Context, botID, userID string) (*models.BotUser, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT bot_id, user_id, chat_id, last_active, segment_tags, is_active
		 FROM bot_users WHERE bot_id = $1 AND user_id = $2`, botID, userID)
	var u models.BotUser
	var tags []string
	if err := row.Scan(&u.BotID, &u.UserID, &u.ChatID, &u.LastActive, pq.Array(&tags), &u.IsActive); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get bot user: %w", err)
	}
	u.SegmentTags = tags
	return &u, nil
}

// ListAudience returns up to limit active users for a bot matching selector
// ("all", "active_7d", or "segment:<tag>"), ordered by user_id and starting
// strictly after afterUserID — the pagination point the Broadcast Engine
// (C8) uses to resume a chunked send.
func (s *pgBotUserStore) ListAudience(ctx context.Context, botID, selector, afterUserID string, limit int) ([]*models.BotUser, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := strings.Builder{}
	query.WriteString(`SELECT bot_id, user_id, chat_id, last_active, segment_tags, is_active
		FROM bot_users WHERE bot_id = $1 AND is_active = true AND user_id > $2`)
	args := []any{botID, afterUserID}

	switch {
	case selector == "all":
	case selector == "active_7d":
		query.WriteString(` AND last_active >= $3`)
		args = append(args, time.Now().Add(-7*24*time.Hour))
	case strings.HasPrefix(selector, "segment:"):
		tag := strings.TrimPrefix(selector, "segment:")
		query.WriteString(fmt.Sprintf(` AND $%d = ANY(segment_tags)`, len(args)+1))
		args = append(args, tag)
	default:
		return nil, fmt.Errorf("unknown audience selector %q", selector)
	}
	query.WriteString(fmt.Sprintf(` ORDER BY user_id ASC LIMIT $%d`, len(args)+1))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list audience: %w", err)
	}
	defer rows.Close()

	var out []*models.BotUser
	for rows.Next() {
		var u models.BotUser
		var tags []string
		if err := rows.Scan(&u.BotID, &u.UserID, &u.ChatID, &u.LastActive, pq.Array(&tags), &u.IsActive); err != nil {
			return nil, fmt.Errorf("scan bot user: %w", err)
		}
		u.SegmentTags = tags
		out = append(out, &u)
	}
	return out, rows.Err()
}

// ---- locales ----

type pgLocaleStore struct{ db *sql.DB }

func (s *pgLocaleStore) Set(ctx context.Context, pref models.LocalePreference) error {
	if pref.UserID != "" {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO locales (bot_id, user_id, chat_id, locale) VALUES ($1,$2,'',$3)
			 ON CONFLICT (bot_id, user_id) WHERE chat_id = '' DO UPDATE SET locale = EXCLUDED.locale`,
			pref.BotID, pref.UserID, pref.Locale)
		if err != nil {
			return fmt.Errorf("set user locale: %w", err)
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO locales (bot_id, user_id, chat_id, locale) VALUES ($1,'',$2,$3)
		 ON CONFLICT (bot_id, chat_id) WHERE user_id = '' DO UPDATE SET locale = EXCLUDED.locale`,
		pref.BotID, pref.ChatID, pref.Locale)
	if err != nil {
		return fmt.Errorf("set chat locale: %w", err)
	}
	return nil
}

func (s *pgLocaleStore) UserLocale(ctx context.Context, botID, userID string) (string, bool, error) {
	var locale string
	err := s.db.QueryRowContext(ctx,
		`SELECT locale FROM locales WHERE bot_id = $1 AND user_id = $2 AND chat_id = ''`, botID, userID).Scan(&locale)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("user locale: %w", err)
	}
	return locale, true, nil
}

func (s *pgLocaleStore) ChatLocale(ctx context.Context, botID, chatID string) (string, bool, error) {
	var locale string
	err := s.db.QueryRowContext(ctx,
		`SELECT locale FROM locales WHERE bot_id = $1 AND chat_id = $2 AND user_id = ''`, botID, chatID).Scan(&locale)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("chat locale: %w", err)
	}
	return locale, true, nil
}

// ---- i18n ----

type pgI18nStore struct{ db *sql.DB }

func (s *pgI18nStore) Get(ctx context.Context, botID, locale, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM i18n_keys WHERE bot_id = $1 AND locale = $2 AND key = $3`, botID, locale, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("i18n get: %w", err)
	}
	return value, true, nil
}

func (s *pgI18nStore) Set(ctx context.Context, entry models.I18nKey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO i18n_keys (bot_id, locale, key, value) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (bot_id, locale, key) DO UPDATE SET value = EXCLUDED.value`,
		entry.BotID, entry.Locale, entry.Key, entry.Value)
	if err != nil {
		return fmt.Errorf("i18n set: %w", err)
	}
	return nil
}

func (s *pgI18nStore) DeleteBot(ctx context.Context, botID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM i18n_keys WHERE bot_id = $1`, botID)
	if err != nil {
		return fmt.Errorf("i18n delete bot: %w", err)
	}
	return nil
}

// ---- broadcasts ----

type pgBroadcastStore struct{ db *sql.DB }

func (s *pgBroadcastStore) Create(ctx context.Context, b *models.Broadcast) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO broadcasts (id, bot_id, audience, message_template, throttle_per_sec, status, total_users, sent, failed, blocked, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		b.ID, b.BotID, b.Audience, b.MessageTemplate, b.ThrottlePerSec, string(b.Status),
		b.TotalUsers, b.Sent, b.Failed, b.Blocked, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("create broadcast: %w", err)
	}
	return nil
}

func (s *pgBroadcastStore) Update(ctx context.Context, b *models.Broadcast) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts SET status=$1, total_users=$2, sent=$3, failed=$4, blocked=$5, started_at=$6, completed_at=$7
		 WHERE id=$8`,
		string(b.Status), b.TotalUsers, b.Sent, b.Failed, b.Blocked, nullTime(b.StartedAt), nullTime(b.CompletedAt), b.ID)
	if err != nil {
		return fmt.Errorf("update broadcast: %w", err)
	}
	return nil
}

func (s *pgBroadcastStore) Get(ctx context.Context, id string) (*models.Broadcast, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, bot_id, audience, message_template, throttle_per_sec, status, total_users, sent, failed, blocked, created_at
		 FROM broadcasts WHERE id = $1`, id)
	return scanBroadcast(row)
}

func (s *pgBroadcastStore) ListPending(ctx context.Context) ([]*models.Broadcast, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bot_id, audience, message_template, throttle_per_sec, status, total_users, sent, failed, blocked, created_at
		 FROM broadcasts WHERE status IN ('pending','running') ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending broadcasts: %w", err)
	}
	defer rows.Close()
	var out []*models.Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBroadcast(row scanner) (*models.Broadcast, error) {
	var b models.Broadcast
	var status string
	if err := row.Scan(&b.ID, &b.BotID, &b.Audience, &b.MessageTemplate, &b.ThrottlePerSec, &status,
		&b.TotalUsers, &b.Sent, &b.Failed, &b.Blocked, &b.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan broadcast: %w", err)
	}
	b.Status = models.BroadcastStatus(status)
	return &b, nil
}

func (s *pgBroadcastStore) RecordDelivery(ctx context.Context, ev models.BroadcastEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO broadcast_events (broadcast_id, user_id, status, error_code, sent_at) VALUES ($1,$2,$3,$4,$5)`,
		ev.BroadcastID, ev.UserID, string(ev.Status), ev.ErrorCode, ev.SentAt)
	if err != nil {
		return fmt.Errorf("record broadcast delivery: %w", err)
	}
	return nil
}

func (s *pgBroadcastStore) HasDelivery(ctx context.Context, broadcastID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM broadcast_events WHERE broadcast_id = $1 AND user_id = $2)`,
		broadcastID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has delivery: %w", err)
	}
	return exists, nil
}

func (s *pgBroadcastStore) DeleteBot(ctx context.Context, botID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM broadcast_events WHERE broadcast_id IN (SELECT id FROM broadcasts WHERE bot_id = $1)`, botID)
	if err != nil {
		return fmt.Errorf("delete broadcast events: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM broadcasts WHERE bot_id = $1`, botID)
	if err != nil {
		return fmt.Errorf("delete broadcasts: %w", err)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// ---- bookings (example domain table) ----

type pgBookingStore struct{ db *sql.DB }

func (s *pgBookingStore) Create(ctx context.Context, b *models.Booking) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bookings (bot_id, user_id, service, slot, booked_at) VALUES ($1,$2,$3,$4,$5)`,
		b.BotID, b.UserID, b.Service, b.Slot, b.BookedAt)
	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

func (s *pgBookingStore) DeleteBot(ctx context.Context, botID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bookings WHERE bot_id = $1`, botID)
	if err != nil {
		return fmt.Errorf("delete bookings: %w", err)
	}
	return nil
}

// ---- events ----

type pgEventStore struct{ db *sql.DB }

func (s *pgEventStore) Insert(ctx context.Context, ev models.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bot_events (ts, bot_id, user_id, type, trace_id, data) VALUES ($1,$2,$3,$4,$5,$6)`,
		ev.TS, ev.BotID, ev.UserID, string(ev.Type), ev.TraceID, data)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *pgEventStore) DeleteBot(ctx context.Context, botID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bot_events WHERE bot_id = $1`, botID)
	if err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	return nil
}

func (s *pgEventStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bot_events WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired events: rows affected: %w", err)
	}
	return n, nil
}

// ---- wizard state ----

type pgWizardStore struct{ db *sql.DB }

func (s *pgWizardStore) Load(ctx context.Context, botID, userID string) (*models.WizardState, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT bot_id, user_id, format, flow_cmd, step, vars, started_at, ttl_sec, pending_callback
		 FROM wizard_states WHERE bot_id = $1 AND user_id = $2`, botID, userID)

	var w models.WizardState
	var varsJSON []byte
	if err := row.Scan(&w.BotID, &w.UserID, &w.Format, &w.FlowCmd, &w.Step, &varsJSON,
		&w.StartedAt, &w.TTLSec, &w.PendingCallback); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load wizard state: %w", err)
	}
	if err := json.Unmarshal(varsJSON, &w.Vars); err != nil {
		return nil, false, nil // corrupt vars column: treated as no state (§3)
	}
	return &w, true, nil
}

func (s *pgWizardStore) Save(ctx context.Context, state *models.WizardState, expectedStep int) (bool, error) {
	vars, err := json.Marshal(state.Vars)
	if err != nil {
		return false, fmt.Errorf("marshal wizard vars: %w", err)
	}

	if expectedStep < 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO wizard_states (bot_id, user_id, format, flow_cmd, step, vars, started_at, ttl_sec, pending_callback)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			 ON CONFLICT (bot_id, user_id) DO NOTHING`,
			state.BotID, state.UserID, state.Format, state.FlowCmd, state.Step, vars,
			state.StartedAt, state.TTLSec, state.PendingCallback)
		if err != nil {
			return false, fmt.Errorf("create wizard state: %w", err)
		}
		rows, err := res.RowsAffected()
		return rows == 1, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE wizard_states SET step=$1, vars=$2, flow_cmd=$3, ttl_sec=$4, pending_callback=$5
		 WHERE bot_id=$6 AND user_id=$7 AND step=$8`,
		state.Step, vars, state.FlowCmd, state.TTLSec, state.PendingCallback,
		state.BotID, state.UserID, expectedStep)
	if err != nil {
		return false, fmt.Errorf("advance wizard state: %w", err)
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

func (s *pgWizardStore) Delete(ctx context.Context, botID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM wizard_states WHERE bot_id=$1 AND user_id=$2`, botID, userID)
	if err != nil {
		return fmt.Errorf("delete wizard state: %w", err)
	}
	return nil
}

// ---- LLM daily token budget ----

type pgBudgetStore struct{ db *sql.DB }

func (s *pgBudgetStore) Increment(ctx context.Context, botID, day string, tokens int64) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO llm_budget_usage (bot_id, day, tokens_used)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (bot_id, day) DO UPDATE SET tokens_used = llm_budget_usage.tokens_used + $3
		 RETURNING tokens_used`,
		botID, day, tokens).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("increment llm budget: %w", err)
	}
	return total, nil
}
