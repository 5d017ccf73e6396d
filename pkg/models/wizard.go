package models

import "time"

// WizardState is the per-(bot_id,user_id) conversation record held by the
// Wizard State Store. Format distinguishes the compiled schema version so a
// future incompatible change can be detected rather than misread.
type WizardState struct {
	BotID     string            `json:"bot_id"`
	UserID    string            `json:"user_id"`
	Format    string            `json:"format"`
	FlowCmd   string            `json:"flow_cmd"`
	Step      int               `json:"step"`
	Vars      map[string]string `json:"vars"`
	StartedAt time.Time         `json:"started_at"`
	TTLSec    int               `json:"ttl_sec"`

	// PendingCallback, when set, is the only callback payload this state
	// will accept next (used by widgets such as the calendar to bind a
	// terminal pick back into Vars).
	PendingCallback string `json:"pending_callback,omitempty"`
}

// CurrentFormat is the only WizardState.Format this runtime writes; older or
// unrecognized formats are treated as corrupt and discarded.
const CurrentFormat = "wizard.v1"

// Valid reports whether the record is well-formed enough to resume from.
func (w *WizardState) Valid() bool {
	if w == nil {
		return false
	}
	if w.Format != CurrentFormat {
		return false
	}
	if w.Step < 0 {
		return false
	}
	if w.Vars == nil {
		return false
	}
	return true
}
