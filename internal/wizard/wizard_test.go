package wizard

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tgdsl/runtime/internal/storage"
	"github.com/tgdsl/runtime/pkg/models"
)

func TestEngine_ActiveReturnsNilWhenNoState(t *testing.T) {
	stores := storage.NewMemoryStores()
	e := New(stores.Wizards)
	got, err := e.Active(context.Background(), "bot1", "u1")
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if got != nil {
		t.Errorf("Active() = %+v, want nil", got)
	}
}

func TestEngine_StartThenActive(t *testing.T) {
	stores := storage.NewMemoryStores()
	e := New(stores.Wizards)
	ctx := context.Background()

	state, err := e.Start(ctx, "bot1", "u1", "/book", 120)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if state.Step != 0 {
		t.Errorf("Step = %d, want 0", state.Step)
	}

	got, err := e.Active(ctx, "bot1", "u1")
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if got == nil || got.FlowCmd != "/book" {
		t.Fatalf("Active() = %+v", got)
	}
}

func TestEngine_StartResetsExistingState(t *testing.T) {
	stores := storage.NewMemoryStores()
	e := New(stores.Wizards)
	ctx := context.Background()

	first, _ := e.Start(ctx, "bot1", "u1", "/book", 120)
	ok, err := e.Advance(ctx, first, "service", "massage")
	if err != nil || !ok {
		t.Fatalf("Advance() = %v, %v", ok, err)
	}

	reset, err := e.Start(ctx, "bot1", "u1", "/book", 120)
	if err != nil {
		t.Fatalf("Start() (reset) error = %v", err)
	}
	if reset.Step != 0 || len(reset.Vars) != 0 {
		t.Errorf("reset state = %+v, want step 0 and empty vars", reset)
	}
}

func TestEngine_AdvanceWinnerLoserSemantics(t *testing.T) {
	stores := storage.NewMemoryStores()
	e := New(stores.Wizards)
	ctx := context.Background()

	state, _ := e.Start(ctx, "bot1", "u1", "/book", 120)

	winner, err := e.Advance(ctx, state, "service", "massage")
	if err != nil || !winner {
		t.Fatalf("first Advance() = %v, %v, want true", winner, err)
	}

	loser, err := e.Advance(ctx, state, "service", "haircut")
	if err != nil {
		t.Fatalf("second Advance() error = %v", err)
	}
	if loser {
		t.Fatal("second Advance() from the same stale step should lose the race")
	}

	got, err := e.Active(ctx, "bot1", "u1")
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if got.Step != 1 || got.Vars["service"] != "massage" {
		t.Errorf("got %+v, want winner's state to persist", got)
	}
}

func TestEngine_ActiveTreatsExpiredStateAsNone(t *testing.T) {
	stores := storage.NewMemoryStores()
	e := New(stores.Wizards)
	ctx := context.Background()

	expired := &models.WizardState{
		BotID: "bot1", UserID: "u1", Format: models.CurrentFormat,
		FlowCmd: "/book", Step: 0, Vars: map[string]string{},
		StartedAt: time.Now().Add(-2 * time.Hour), TTLSec: 60,
	}
	if _, err := stores.Wizards.Save(ctx, expired, -1); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := e.Active(ctx, "bot1", "u1")
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if got != nil {
		t.Errorf("Active() = %+v, want nil for an expired state", got)
	}
}

func TestEngine_ActiveTreatsCorruptStateAsNone(t *testing.T) {
	stores := storage.NewMemoryStores()
	e := New(stores.Wizards)
	ctx := context.Background()

	corrupt := &models.WizardState{
		BotID: "bot1", UserID: "u1", Format: "wizard.v0",
		FlowCmd: "/book", Step: 0, Vars: map[string]string{}, StartedAt: time.Now(), TTLSec: 120,
	}
	if _, err := stores.Wizards.Save(ctx, corrupt, -1); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := e.Active(ctx, "bot1", "u1")
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if got != nil {
		t.Errorf("Active() = %+v, want nil for an unrecognized format", got)
	}
}

func TestEngine_Complete(t *testing.T) {
	stores := storage.NewMemoryStores()
	e := New(stores.Wizards)
	ctx := context.Background()

	e.Start(ctx, "bot1", "u1", "/book", 120)
	if err := e.Complete(ctx, "bot1", "u1"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	got, err := e.Active(ctx, "bot1", "u1")
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if got != nil {
		t.Error("state should be gone after Complete")
	}
}

func TestTruncateInput(t *testing.T) {
	long := strings.Repeat("a", MaxInputLen+50)
	got := TruncateInput(long)
	if len([]rune(got)) != MaxInputLen {
		t.Errorf("len = %d, want %d", len([]rune(got)), MaxInputLen)
	}

	short := "hello"
	if TruncateInput(short) != short {
		t.Error("short input should be unchanged")
	}
}

func TestClampTTL(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, DefaultTTLSec},
		{-5, DefaultTTLSec},
		{10, MinTTLSec},
		{300, 300},
	}
	for _, c := range cases {
		if got := ClampTTL(c.in); got != c.want {
			t.Errorf("ClampTTL(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}
