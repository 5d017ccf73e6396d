package events

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tgdsl/runtime/internal/storage"
	"github.com/tgdsl/runtime/pkg/models"
)

func TestSink_Update_PersistsEvent(t *testing.T) {
	stores := storage.NewMemoryStores()
	sink := New(stores.Events, NewMetrics(prometheus.NewRegistry()), nil)

	sink.Update(context.Background(), "bot1", "user1", "trace1", true)

	// EventStore has no list method, so DeleteOlderThan's removed-row count
	// confirms the row landed.
	n, err := stores.Events.DeleteOlderThan(context.Background(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteOlderThan() removed %d events, want 1", n)
	}
	if err := stores.Events.DeleteBot(context.Background(), "bot1"); err != nil {
		t.Fatalf("DeleteBot() error = %v", err)
	}
}

func TestSink_Error_IncrementsCounter(t *testing.T) {
	stores := storage.NewMemoryStores()
	metrics := NewMetrics(prometheus.NewRegistry())
	sink := New(stores.Events, metrics, nil)

	sink.Error(context.Background(), "bot1", "user1", "trace1", "sqlgate", models.ErrSQLError, "forbidden keyword DROP")

	got := testutil.ToFloat64(metrics.BotErrorsTotal.WithLabelValues("bot1", "sqlgate", "sql_error"))
	if got != 1 {
		t.Errorf("bot_errors_total = %v, want 1", got)
	}
}

func TestMask(t *testing.T) {
	if Mask("") != "" {
		t.Error("Mask(\"\") should stay empty")
	}
	if Mask("secret-token") != models.Masked {
		t.Errorf("Mask() = %q, want %q", Mask("secret-token"), models.Masked)
	}
}

// capturingEventStore records the last event passed to Insert, so tests can
// inspect Sink's masking decision without depending on a concrete store's
// internals.
type capturingEventStore struct {
	last models.Event
}

func (c *capturingEventStore) Insert(_ context.Context, ev models.Event) error {
	c.last = ev
	return nil
}

func (c *capturingEventStore) DeleteBot(context.Context, string) error { return nil }

func (c *capturingEventStore) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func TestSink_Error_MasksDetailWhenEnabled(t *testing.T) {
	store := &capturingEventStore{}
	sink := New(store, NewMetrics(prometheus.NewRegistry()), nil)
	sink.SetMaskSensitiveData(true)

	sink.Error(context.Background(), "bot1", "user1", "trace1", "sqlgate", models.ErrSQLError, "duplicate key value violates unique constraint \"users_email_key\"")

	detail, _ := store.last.Data["detail"].(string)
	if detail != models.Masked {
		t.Errorf("detail = %q, want %q", detail, models.Masked)
	}
}

func TestSink_Error_LeavesDetailWhenDisabled(t *testing.T) {
	store := &capturingEventStore{}
	sink := New(store, NewMetrics(prometheus.NewRegistry()), nil)

	const want = "duplicate key value violates unique constraint \"users_email_key\""
	sink.Error(context.Background(), "bot1", "user1", "trace1", "sqlgate", models.ErrSQLError, want)

	detail, _ := store.last.Data["detail"].(string)
	if detail != want {
		t.Errorf("detail = %q, want %q (masking disabled by default)", detail, want)
	}
}
