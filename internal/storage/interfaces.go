// Package storage is the Postgres-backed persistence layer (C13): bots,
// published specs, per-bot users, locale preferences, i18n strings,
// broadcasts and their delivery events, and the example booking table.
// Every store method that touches tenant data takes a bot_id and scopes its
// query by it, except the BroadcastStore methods that address one broadcast
// job by its ID (Get, Update, RecordDelivery, HasDelivery).
package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tgdsl/runtime/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// BotStore persists bot tenant records.
type BotStore interface {
	Create(ctx context.Context, bot *models.Bot) error
	Get(ctx context.Context, id string) (*models.Bot, error)
	List(ctx context.Context, limit, offset int) ([]*models.Bot, int, error)
	Update(ctx context.Context, bot *models.Bot) error
	Delete(ctx context.Context, id string) error
}

// SpecStore persists versioned DSL documents published for a bot.
type SpecStore interface {
	Publish(ctx context.Context, spec *models.Spec) error
	Latest(ctx context.Context, botID string) (*models.Spec, error)
	Get(ctx context.Context, botID string, version int) (*models.Spec, error)
}

// BotUserStore tracks per-bot end users for audience selection (§4.8).
type BotUserStore interface {
	Upsert(ctx context.Context, u *models.BotUser) error
	Get(ctx context.Context, botID, userID string) (*models.BotUser, error)
	ListAudience(ctx context.Context, botID, selector string, afterUserID string, limit int) ([]*models.BotUser, error)
}

// LocaleStore persists per-user and per-chat locale preferences.
type LocaleStore interface {
	Set(ctx context.Context, pref models.LocalePreference) error
	UserLocale(ctx context.Context, botID, userID string) (string, bool, error)
	ChatLocale(ctx context.Context, botID, chatID string) (string, bool, error)
}

// I18nStore persists the translation table keyed by (bot, locale, key).
type I18nStore interface {
	Get(ctx context.Context, botID, locale, key string) (string, bool, error)
	Set(ctx context.Context, entry models.I18nKey) error
	DeleteBot(ctx context.Context, botID string) error
}

// BroadcastStore persists broadcast jobs and their per-recipient outcomes.
type BroadcastStore interface {
	Create(ctx context.Context, b *models.Broadcast) error
	Update(ctx context.Context, b *models.Broadcast) error
	Get(ctx context.Context, id string) (*models.Broadcast, error)
	ListPending(ctx context.Context) ([]*models.Broadcast, error)
	RecordDelivery(ctx context.Context, ev models.BroadcastEvent) error
	HasDelivery(ctx context.Context, broadcastID, userID string) (bool, error)
	DeleteBot(ctx context.Context, botID string) error
}

// BookingStore persists rows for the example /book wizard spec.
type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	DeleteBot(ctx context.Context, botID string) error
}

// EventStore persists the append-only event log (C9).
type EventStore interface {
	Insert(ctx context.Context, ev models.Event) error
	DeleteBot(ctx context.Context, botID string) error
	// DeleteOlderThan removes every event with ts before cutoff, backing
	// the Events.RetentionDays purge job. Returns the number of rows
	// removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// WizardStore is the authoritative per-(bot_id,user_id) conversation state
// behind the Wizard State Store (C4). Save is a compare-and-swap on Step:
// expectedStep == -1 means "create if absent"; otherwise the write only
// lands if the stored row's step still equals expectedStep, so concurrent
// receives for the same key have exactly one winner.
type WizardStore interface {
	Load(ctx context.Context, botID, userID string) (*models.WizardState, bool, error)
	Save(ctx context.Context, state *models.WizardState, expectedStep int) (bool, error)
	Delete(ctx context.Context, botID, userID string) error
}

// BudgetStore tracks the per-bot, per-UTC-day LLM token spend backing the
// daily budget enforced by the LLM Circuit Breaker (C7). Increment is an
// atomic add-and-return so concurrent callers across processes never lose
// a count.
type BudgetStore interface {
	Increment(ctx context.Context, botID, day string, tokens int64) (total int64, err error)
}

// SQLExecer is the subset of *sql.DB the Action Executor (C3) needs to run
// gatekept inline spec SQL against whatever tables the spec names. It is
// satisfied by *sql.DB and by *sql.Tx so actions can run inside a single
// transaction per update.
type SQLExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// StoreSet groups every storage dependency the runtime needs.
type StoreSet struct {
	Bots       BotStore
	Specs      SpecStore
	BotUsers   BotUserStore
	Locales    LocaleStore
	I18n       I18nStore
	Broadcasts BroadcastStore
	Bookings   BookingStore
	Events     EventStore
	Wizards    WizardStore
	Budgets    BudgetStore

	// DB is the raw Postgres pool the Action Executor runs gatekept spec
	// SQL against. It is nil for an in-memory StoreSet: memory-backed runs
	// do not support sql_exec/sql_query actions.
	DB *sql.DB

	closer func() error
}

// Close releases any underlying resources (e.g. the *sql.DB pool).
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
