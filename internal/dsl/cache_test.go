package dsl

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tgdsl/runtime/internal/storage"
	"github.com/tgdsl/runtime/pkg/models"
)

func publish(t *testing.T, specs storage.SpecStore, botID string, version int, doc string) {
	t.Helper()
	err := specs.Publish(context.Background(), &models.Spec{
		BotID: botID, Version: version, SpecJSON: json.RawMessage(doc), PublishedAt: time.Now().Unix(),
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
}

func TestCache_GetCompilesOnMiss(t *testing.T) {
	stores := storage.NewMemoryStores()
	publish(t, stores.Specs, "bot1", 1, `{"intents":[{"cmd":"/start","reply":"Hi!"}]}`)

	cache := NewCache(stores.Specs)
	c, err := cache.Get(context.Background(), "bot1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if c.Intents["/start"].Reply != "Hi!" {
		t.Errorf("Reply = %q", c.Intents["/start"].Reply)
	}
}

func TestCache_ReloadPicksUpNewVersion(t *testing.T) {
	stores := storage.NewMemoryStores()
	publish(t, stores.Specs, "bot1", 1, `{"intents":[{"cmd":"/start","reply":"v1"}]}`)

	cache := NewCache(stores.Specs)
	if _, err := cache.Get(context.Background(), "bot1"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	publish(t, stores.Specs, "bot1", 2, `{"intents":[{"cmd":"/start","reply":"v2"}]}`)
	c, err := cache.Reload(context.Background(), "bot1")
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if c.Intents["/start"].Reply != "v2" {
		t.Errorf("Reply = %q, want v2", c.Intents["/start"].Reply)
	}
	if c.Version != 2 {
		t.Errorf("Version = %d, want 2", c.Version)
	}
}

func TestCache_ReloadIdempotent(t *testing.T) {
	stores := storage.NewMemoryStores()
	publish(t, stores.Specs, "bot1", 1, `{"intents":[{"cmd":"/start","reply":"v1"}]}`)
	cache := NewCache(stores.Specs)

	a, err := cache.Reload(context.Background(), "bot1")
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	b, err := cache.Reload(context.Background(), "bot1")
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if a.Version != b.Version || a.Intents["/start"] != b.Intents["/start"] {
		t.Error("two sequential reloads at the same version should produce the same compiled form")
	}
}
