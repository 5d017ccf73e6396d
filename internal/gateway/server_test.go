package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tgdsl/runtime/internal/actions"
	"github.com/tgdsl/runtime/internal/channels"
	"github.com/tgdsl/runtime/internal/dsl"
	"github.com/tgdsl/runtime/internal/events"
	"github.com/tgdsl/runtime/internal/i18n"
	"github.com/tgdsl/runtime/internal/interpreter"
	"github.com/tgdsl/runtime/internal/storage"
	"github.com/tgdsl/runtime/internal/wizard"
	"github.com/tgdsl/runtime/pkg/models"
)

func newTestServer(t *testing.T) (*Server, storage.StoreSet) {
	t.Helper()
	stores := storage.NewMemoryStores()

	resolver := i18n.New(stores.Locales, stores.I18n)
	sink := events.New(stores.Events, events.NewMetrics(prometheus.NewRegistry()), nil)
	specs := dsl.NewCache(stores.Specs)
	wizards := wizard.New(stores.Wizards)
	execs := actions.New(nil, resolver, nil, sink)
	interp := interpreter.New(stores.Bots, specs, wizards, resolver, execs, sink)

	srv := New(Deps{
		Bots:        stores.Bots,
		SpecStore:   stores.Specs,
		Specs:       specs,
		I18n:        stores.I18n,
		Broadcasts:  stores.Broadcasts,
		Bookings:    stores.Bookings,
		Events:      stores.Events,
		Interpreter: interp,
		Channels:    channels.NewRegistry(),
	})
	return srv, stores
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body["ok"] {
		t.Errorf("expected ok=true, got %v", body)
	}
}

func TestHandleHealthPG_NoDB(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health/pg", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestCreateAndGetBot(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(models.Bot{ID: "bot1", Name: "Test Bot"})
	req := httptest.NewRequest(http.MethodPost, "/bots", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/bots/bot1", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got models.Bot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "bot1" || got.Name != "Test Bot" {
		t.Errorf("got %+v", got)
	}
}

func TestGetBot_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/bots/missing", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestPutSpecThenPreviewSend(t *testing.T) {
	srv, stores := newTestServer(t)
	ctx := context.Background()
	if err := stores.Bots.Create(ctx, &models.Bot{ID: "bot1", DefaultLocale: "en", Status: models.BotStatusActive}); err != nil {
		t.Fatalf("Create bot: %v", err)
	}

	spec := []byte(`{"intents":[{"cmd":"/hello","reply":"hi there"}]}`)
	req := httptest.NewRequest(http.MethodPut, "/bots/bot1/spec", bytes.NewReader(spec))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("put spec status = %d, body = %s", rec.Code, rec.Body.String())
	}

	previewBody, _ := json.Marshal(map[string]string{"bot_id": "bot1", "text": "/hello"})
	req = httptest.NewRequest(http.MethodPost, "/preview/send", bytes.NewReader(previewBody))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("preview status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var reply models.Reply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.Text != "hi there" {
		t.Errorf("got reply %+v", reply)
	}
}

func TestValidateSpec_Invalid(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/bots/bot1/validate", bytes.NewReader([]byte(`not json`)))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (validation result, not a transport error)", rec.Code)
	}
	var result map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if valid, _ := result["valid"].(bool); valid {
		t.Errorf("expected valid=false for malformed spec JSON, got %+v", result)
	}
}
