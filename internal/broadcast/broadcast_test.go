package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tgdsl/runtime/internal/channels"
	"github.com/tgdsl/runtime/internal/events"
	"github.com/tgdsl/runtime/internal/i18n"
	"github.com/tgdsl/runtime/internal/storage"
	"github.com/tgdsl/runtime/pkg/models"
)

type fakeAdapter struct {
	blocked map[string]bool
	failN   map[string]int // chatID -> failures remaining before success
	sent    []string
}

func (f *fakeAdapter) Send(_ context.Context, chatID string, _ models.Reply) error {
	if f.blocked[chatID] {
		return channels.ErrBlocked("blocked", nil)
	}
	if n := f.failN[chatID]; n > 0 {
		f.failN[chatID]--
		return channels.ErrConnection("transient", errors.New("boom"))
	}
	f.sent = append(f.sent, chatID)
	return nil
}

func newTestEngine(t *testing.T, adapter channels.OutboundAdapter) (*Engine, storage.StoreSet) {
	t.Helper()
	stores := storage.NewMemoryStores()
	resolver := i18n.New(stores.Locales, stores.I18n)
	sink := events.New(stores.Events, events.NewMetrics(prometheus.NewRegistry()), nil)
	registry := channels.NewRegistry()
	registry.Register("telegram", adapter)
	return New(stores.Broadcasts, stores.BotUsers, resolver, registry, sink, nil), stores
}

func mustUpsertUsers(t *testing.T, stores storage.StoreSet, botID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		if err := stores.BotUsers.Upsert(context.Background(), &models.BotUser{
			BotID: botID, UserID: id, ChatID: id, IsActive: true, LastActive: time.Now(),
		}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
}

func TestRun_SendsToWholeAudience(t *testing.T) {
	adapter := &fakeAdapter{blocked: map[string]bool{}, failN: map[string]int{}}
	e, stores := newTestEngine(t, adapter)
	mustUpsertUsers(t, stores, "bot1", 5)

	b := &models.Broadcast{ID: "b1", BotID: "bot1", Audience: "all", MessageTemplate: "hi", ThrottlePerSec: 1000, Status: models.BroadcastPending}
	if err := stores.Broadcasts.Create(context.Background(), b); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := e.Run(context.Background(), b); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if b.Sent != 5 || b.Failed != 0 || b.Blocked != 0 {
		t.Errorf("got sent=%d failed=%d blocked=%d", b.Sent, b.Failed, b.Blocked)
	}
	if b.Status != models.BroadcastCompleted {
		t.Errorf("status = %s, want completed", b.Status)
	}
}

func TestRun_BlockedRecipientRecordedWithoutRetry(t *testing.T) {
	adapter := &fakeAdapter{blocked: map[string]bool{"a": true}, failN: map[string]int{}}
	e, stores := newTestEngine(t, adapter)
	mustUpsertUsers(t, stores, "bot1", 1)

	b := &models.Broadcast{ID: "b1", BotID: "bot1", Audience: "all", MessageTemplate: "hi", ThrottlePerSec: 1000, Status: models.BroadcastPending}
	stores.Broadcasts.Create(context.Background(), b)

	if err := e.Run(context.Background(), b); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if b.Blocked != 1 || b.Sent != 0 {
		t.Errorf("got blocked=%d sent=%d", b.Blocked, b.Sent)
	}
}

func TestRun_TransientFailureRetriesThenSucceeds(t *testing.T) {
	adapter := &fakeAdapter{blocked: map[string]bool{}, failN: map[string]int{"a": 2}}
	e, stores := newTestEngine(t, adapter)
	mustUpsertUsers(t, stores, "bot1", 1)

	b := &models.Broadcast{ID: "b1", BotID: "bot1", Audience: "all", MessageTemplate: "hi", ThrottlePerSec: 1000, Status: models.BroadcastPending}
	stores.Broadcasts.Create(context.Background(), b)

	if err := e.Run(context.Background(), b); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if b.Sent != 1 || b.Failed != 0 {
		t.Errorf("expected the 3rd attempt to succeed, got sent=%d failed=%d", b.Sent, b.Failed)
	}
}

func TestRun_ResumesFromFirstUndeliveredRecipient(t *testing.T) {
	adapter := &fakeAdapter{blocked: map[string]bool{}, failN: map[string]int{}}
	e, stores := newTestEngine(t, adapter)
	mustUpsertUsers(t, stores, "bot1", 3)

	b := &models.Broadcast{ID: "b1", BotID: "bot1", Audience: "all", MessageTemplate: "hi", ThrottlePerSec: 1000, Status: models.BroadcastRunning}
	stores.Broadcasts.Create(context.Background(), b)
	stores.Broadcasts.RecordDelivery(context.Background(), models.BroadcastEvent{BroadcastID: "b1", UserID: "a", Status: models.DeliverySent})

	if err := e.Run(context.Background(), b); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(adapter.sent) != 2 {
		t.Errorf("expected only the 2 undelivered recipients to be sent to, got %v", adapter.sent)
	}
}
