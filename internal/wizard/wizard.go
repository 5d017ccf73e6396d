// Package wizard drives the per-(bot,user) multi-step dialogue state machine
// (C4) on top of storage.WizardStore. It owns TTL expiry and corruption
// handling; storage.WizardStore owns the compare-and-set on Step that gives
// concurrent receives for the same key exactly one winner.
package wizard

import (
	"context"
	"time"

	"github.com/tgdsl/runtime/internal/storage"
	"github.com/tgdsl/runtime/pkg/models"
)

// MaxInputLen is the character limit applied to inbound text before it is
// matched against a step's validation regex (§4.4).
const MaxInputLen = 1024

// DefaultTTLSec is used when a wizard flow does not declare ttl_sec.
const DefaultTTLSec = 86400

// MinTTLSec is the floor a spec's ttl_sec is clamped to.
const MinTTLSec = 60

type Engine struct {
	store storage.WizardStore
}

func New(store storage.WizardStore) *Engine {
	return &Engine{store: store}
}

// TruncateInput applies the §4.4 1024-char input cap before step matching.
func TruncateInput(text string) string {
	r := []rune(text)
	if len(r) > MaxInputLen {
		return string(r[:MaxInputLen])
	}
	return text
}

// ClampTTL enforces the 60s floor, defaulting an unset/zero value to
// DefaultTTLSec.
func ClampTTL(ttlSec int) int {
	if ttlSec <= 0 {
		return DefaultTTLSec
	}
	if ttlSec < MinTTLSec {
		return MinTTLSec
	}
	return ttlSec
}

// Active returns the live, non-expired, well-formed wizard state for
// (botID, userID), or nil if there is none. An expired or corrupt record is
// treated as "no state" per §4.4's state table, and is proactively deleted
// so a stale row doesn't linger.
func (e *Engine) Active(ctx context.Context, botID, userID string) (*models.WizardState, error) {
	state, found, err := e.store.Load(ctx, botID, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if !state.Valid() || e.expired(state) {
		_ = e.store.Delete(ctx, botID, userID)
		return nil, nil
	}
	return state, nil
}

func (e *Engine) expired(state *models.WizardState) bool {
	return time.Since(state.StartedAt) > time.Duration(state.TTLSec)*time.Second
}

// Start creates step-0 state for a wizard entry_cmd. If a state already
// exists for this (bot,user) — e.g. the same entry_cmd was received again —
// it is unconditionally replaced, matching the "any: entry_cmd received
// again -> step=0, reset state" transition.
func (e *Engine) Start(ctx context.Context, botID, userID, flowCmd string, ttlSec int) (*models.WizardState, error) {
	state := &models.WizardState{
		BotID:     botID,
		UserID:    userID,
		Format:    models.CurrentFormat,
		FlowCmd:   flowCmd,
		Step:      0,
		Vars:      map[string]string{},
		StartedAt: time.Now(),
		TTLSec:    ClampTTL(ttlSec),
	}

	ok, err := e.store.Save(ctx, state, -1)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A row already exists (stale or a concurrent entry_cmd): force the
		// reset by deleting then recreating.
		if err := e.store.Delete(ctx, botID, userID); err != nil {
			return nil, err
		}
		if _, err := e.store.Save(ctx, state, -1); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// Advance attempts to move state to the next step with an additional bound
// variable, failing if a concurrent receive already won the CAS on the
// current step. A false return means the caller lost the race: per §4.4 the
// losing update must be treated as out-of-turn (ignored, no reply advance).
func (e *Engine) Advance(ctx context.Context, state *models.WizardState, varName, varValue string) (bool, error) {
	next := *state
	next.Vars = cloneVars(state.Vars)
	if varName != "" {
		next.Vars[varName] = varValue
	}
	next.Step = state.Step + 1
	return e.store.Save(ctx, &next, state.Step)
}

// Retry re-saves state unchanged (step stays put) after a validation
// failure, still guarded by the CAS so a stale retry can't clobber a state
// that has since advanced from under it.
func (e *Engine) Retry(ctx context.Context, state *models.WizardState) (bool, error) {
	next := *state
	next.Vars = cloneVars(state.Vars)
	return e.store.Save(ctx, &next, state.Step)
}

// Complete deletes the state once the final step's on_complete has run.
func (e *Engine) Complete(ctx context.Context, botID, userID string) error {
	return e.store.Delete(ctx, botID, userID)
}

func cloneVars(v map[string]string) map[string]string {
	out := make(map[string]string, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
