package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tgdsl/runtime/pkg/models"
)

// NewMemoryStores returns a StoreSet backed entirely by in-process maps, for
// tests and for the /preview/send tester path that should not require a
// live Postgres instance.
func NewMemoryStores() StoreSet {
	m := &memoryStores{
		bots:      map[string]*models.Bot{},
		specs:     map[string]map[int]*models.Spec{},
		botUsers:  map[string]map[string]*models.BotUser{},
		locales:   map[string]string{},
		i18n:      map[string]string{},
		broadcasts: map[string]*models.Broadcast{},
		deliveries: map[string]map[string]bool{},
		bookings:  []*models.Booking{},
		wizards:   map[string]*models.WizardState{},
		budgets:   map[string]int64{},
	}
	return StoreSet{
		Bots:       (*memoryBotStore)(m),
		Specs:      (*memorySpecStore)(m),
		BotUsers:   (*memoryBotUserStore)(m),
		Locales:    (*memoryLocaleStore)(m),
		I18n:       (*memoryI18nStore)(m),
		Broadcasts: (*memoryBroadcastStore)(m),
		Bookings:   (*memoryBookingStore)(m),
		Events:     (*memoryEventStore)(m),
		Wizards:    (*memoryWizardStore)(m),
		Budgets:    (*memoryBudgetStore)(m),
	}
}

type memoryStores struct {
	mu         sync.RWMutex
	bots       map[string]*models.Bot
	specs      map[string]map[int]*models.Spec // botID -> version -> spec
	botUsers   map[string]map[string]*models.BotUser
	locales    map[string]string // "bot:user" or "bot::chat" -> locale
	i18n       map[string]string // "bot:locale:key" -> value
	broadcasts map[string]*models.Broadcast
	deliveries map[string]map[string]bool // broadcastID -> userID -> true
	bookings   []*models.Booking
	events     []models.Event
	wizards    map[string]*models.WizardState // "bot:user" -> state
	budgets    map[string]int64                // "bot:day" -> tokens used
}

type memoryBotStore memoryStores

func (m *memoryBotStore) Create(_ context.Context, b *models.Bot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bots[b.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *b
	m.bots[b.ID] = &cp
	return nil
}

func (m *memoryBotStore) Get(_ context.Context, id string) (*models.Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bots[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memoryBotStore) List(_ context.Context, limit, offset int) ([]*models.Bot, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Bot, 0, len(m.bots))
	for _, b := range m.bots {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	total := len(out)
	if offset >= len(out) {
		return []*models.Bot{}, total, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memoryBotStore) Update(_ context.Context, b *models.Bot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bots[b.ID]; !ok {
		return ErrNotFound
	}
	cp := *b
	m.bots[b.ID] = &cp
	return nil
}

func (m *memoryBotStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bots[id]; !ok {
		return ErrNotFound
	}
	delete(m.bots, id)
	return nil
}

type memorySpecStore memoryStores

func (m *memorySpecStore) Publish(_ context.Context, spec *models.Spec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions, ok := m.specs[spec.BotID]
	if !ok {
		versions = map[int]*models.Spec{}
		m.specs[spec.BotID] = versions
	}
	if _, exists := versions[spec.Version]; exists {
		return ErrAlreadyExists
	}
	cp := *spec
	versions[spec.Version] = &cp
	return nil
}

func (m *memorySpecStore) Latest(_ context.Context, botID string) (*models.Spec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions, ok := m.specs[botID]
	if !ok || len(versions) == 0 {
		return nil, ErrNotFound
	}
	best := -1
	for v := range versions {
		if v > best {
			best = v
		}
	}
	cp := *versions[best]
	return &cp, nil
}

func (m *memorySpecStore) Get(_ context.Context, botID string, version int) (*models.Spec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions, ok := m.specs[botID]
	if !ok {
		return nil, ErrNotFound
	}
	spec, ok := versions[version]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *spec
	return &cp, nil
}

type memoryBotUserStore memoryStores

func (m *memoryBotUserStore) Upsert(_ context.Context, u *models.BotUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	users, ok := m.botUsers[u.BotID]
	if !ok {
		users = map[string]*models.BotUser{}
		m.botUsers[u.BotID] = users
	}
	cp := *u
	users[u.UserID] = &cp
	return nil
}

func (m *memoryBotUserStore) Get(_ context.Context, botID, userID string) (*models.BotUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users, ok := m.botUsers[botID]
	if !ok {
		return nil, ErrNotFound
	}
	u, ok := users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryBotUserStore) ListAudience(_ context.Context, botID, selector, afterUserID string, limit int) ([]*models.BotUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 1000
	}
	users := m.botUsers[botID]
	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []*models.BotUser
	for _, id := range ids {
		if id <= afterUserID {
			continue
		}
		u := users[id]
		if !u.IsActive {
			continue
		}
		switch {
		case selector == "all":
		case selector == "active_7d":
			if time.Since(u.LastActive) > 7*24*time.Hour {
				continue
			}
		default:
			tag := selector
			if len(tag) > 8 && tag[:8] == "segment:" {
				tag = tag[8:]
			}
			found := false
			for _, t := range u.SegmentTags {
				if t == tag {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		cp := *u
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type memoryLocaleStore memoryStores

func (m *memoryLocaleStore) Set(_ context.Context, pref models.LocalePreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pref.UserID != "" {
		m.locales["u:"+pref.BotID+":"+pref.UserID] = pref.Locale
	} else {
		m.locales["c:"+pref.BotID+":"+pref.ChatID] = pref.Locale
	}
	return nil
}

func (m *memoryLocaleStore) UserLocale(_ context.Context, botID, userID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.locales["u:"+botID+":"+userID]
	return v, ok, nil
}

func (m *memoryLocaleStore) ChatLocale(_ context.Context, botID, chatID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.locales["c:"+botID+":"+chatID]
	return v, ok, nil
}

type memoryI18nStore memoryStores

func (m *memoryI18nStore) Get(_ context.Context, botID, locale, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.i18n[botID+":"+locale+":"+key]
	return v, ok, nil
}

func (m *memoryI18nStore) Set(_ context.Context, entry models.I18nKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.i18n[entry.BotID+":"+entry.Locale+":"+entry.Key] = entry.Value
	return nil
}

func (m *memoryI18nStore) DeleteBot(_ context.Context, botID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := botID + ":"
	for k := range m.i18n {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.i18n, k)
		}
	}
	return nil
}

type memoryBroadcastStore memoryStores

func (m *memoryBroadcastStore) Create(_ context.Context, b *models.Broadcast) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.broadcasts[b.ID] = &cp
	return nil
}

func (m *memoryBroadcastStore) Update(_ context.Context, b *models.Broadcast) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.broadcasts[b.ID]; !ok {
		return ErrNotFound
	}
	cp := *b
	m.broadcasts[b.ID] = &cp
	return nil
}

func (m *memoryBroadcastStore) Get(_ context.Context, id string) (*models.Broadcast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.broadcasts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memoryBroadcastStore) ListPending(_ context.Context) ([]*models.Broadcast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Broadcast
	for _, b := range m.broadcasts {
		if b.Status == models.BroadcastPending || b.Status == models.BroadcastRunning {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryBroadcastStore) RecordDelivery(_ context.Context, ev models.BroadcastEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen, ok := m.deliveries[ev.BroadcastID]
	if !ok {
		seen = map[string]bool{}
		m.deliveries[ev.BroadcastID] = seen
	}
	seen[ev.UserID] = true
	return nil
}

func (m *memoryBroadcastStore) HasDelivery(_ context.Context, broadcastID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deliveries[broadcastID][userID], nil
}

func (m *memoryBroadcastStore) DeleteBot(_ context.Context, botID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, b := range m.broadcasts {
		if b.BotID == botID {
			delete(m.broadcasts, id)
			delete(m.deliveries, id)
		}
	}
	return nil
}

type memoryBookingStore memoryStores

func (m *memoryBookingStore) Create(_ context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bookings = append(m.bookings, &cp)
	return nil
}

func (m *memoryBookingStore) DeleteBot(_ context.Context, botID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.bookings[:0]
	for _, b := range m.bookings {
		if b.BotID != botID {
			out = append(out, b)
		}
	}
	m.bookings = out
	return nil
}

type memoryEventStore memoryStores

func (m *memoryEventStore) Insert(_ context.Context, ev models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memoryEventStore) DeleteBot(_ context.Context, botID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.events[:0]
	for _, ev := range m.events {
		if ev.BotID != botID {
			out = append(out, ev)
		}
	}
	m.events = out
	return nil
}

func (m *memoryEventStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.events[:0]
	var removed int64
	for _, ev := range m.events {
		if ev.TS.Before(cutoff) {
			removed++
			continue
		}
		out = append(out, ev)
	}
	m.events = out
	return removed, nil
}

type memoryWizardStore memoryStores

func (m *memoryWizardStore) Load(_ context.Context, botID, userID string) (*models.WizardState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wizards[botID+":"+userID]
	if !ok {
		return nil, false, nil
	}
	cp := *w
	return &cp, true, nil
}

func (m *memoryWizardStore) Save(_ context.Context, state *models.WizardState, expectedStep int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := state.BotID + ":" + state.UserID
	existing, ok := m.wizards[key]

	if expectedStep < 0 {
		if ok {
			return false, nil
		}
		cp := *state
		m.wizards[key] = &cp
		return true, nil
	}

	if !ok || existing.Step != expectedStep {
		return false, nil
	}
	cp := *state
	m.wizards[key] = &cp
	return true, nil
}

func (m *memoryWizardStore) Delete(_ context.Context, botID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.wizards, botID+":"+userID)
	return nil
}

type memoryBudgetStore memoryStores

func (m *memoryBudgetStore) Increment(_ context.Context, botID, day string, tokens int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := botID + ":" + day
	m.budgets[key] += tokens
	return m.budgets[key], nil
}
