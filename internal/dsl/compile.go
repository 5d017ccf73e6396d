// Package dsl compiles a published SpecDoc into the indexed form the
// Interpreter (C5) runs against: a menu-flow map and a wizard-flow map both
// keyed by entry command, and an intent map keyed by command. It also holds
// the Spec Cache (C6): one
// compiled Spec per bot_id, swapped atomically on reload.
package dsl

import (
	"encoding/json"
	"fmt"

	"github.com/tgdsl/runtime/pkg/models"
)

// Compiled is the indexed, ready-to-route form of one published spec
// version.
type Compiled struct {
	BotID       string
	Version     int
	Intents     map[string]models.Intent
	MenuFlows   map[string]models.MenuFlow
	WizardFlows map[string]models.WizardFlow
}

// Compile normalizes doc's three flow encodings (unified `flows`, segregated
// `menu_flows`/`wizard_flows`, and the wizard's legacy/v1 params shapes)
// into a Compiled index. Per §9's open question, menu wins over wizard when
// both declare the same entry_cmd.
func Compile(botID string, version int, doc *models.SpecDoc) (*Compiled, error) {
	c := &Compiled{
		BotID:       botID,
		Version:     version,
		Intents:     map[string]models.Intent{},
		MenuFlows:   map[string]models.MenuFlow{},
		WizardFlows: map[string]models.WizardFlow{},
	}

	for _, in := range doc.Intents {
		c.Intents[in.Cmd] = in
	}

	for _, raw := range doc.Flows {
		switch raw.Type {
		case "flow.menu.v1":
			var mf models.MenuFlow
			if err := json.Unmarshal(raw.Body, &mf); err != nil {
				return nil, fmt.Errorf("dsl: decode menu flow: %w", err)
			}
			c.MenuFlows[mf.EntryCmd] = mf
		case "flow.wizard.v1":
			var wf models.WizardFlow
			if err := json.Unmarshal(raw.Body, &wf); err != nil {
				return nil, fmt.Errorf("dsl: decode wizard flow: %w", err)
			}
			normalizeWizard(&wf)
			c.WizardFlows[wf.EntryCmd] = wf
		default:
			return nil, fmt.Errorf("dsl: unknown flow type %q", raw.Type)
		}
	}

	for _, mf := range doc.MenuFlows {
		c.MenuFlows[mf.EntryCmd] = mf
	}
	for _, wf := range doc.WizardFlows {
		normalizeWizard(&wf)
		c.WizardFlows[wf.EntryCmd] = wf
	}

	for cmd := range c.MenuFlows {
		delete(c.WizardFlows, cmd)
	}

	return c, nil
}

// normalizeWizard folds the "v1" params-nested shape into the wizard's
// top-level fields, so both source encodings compile to the same struct.
func normalizeWizard(wf *models.WizardFlow) {
	if wf.Params == nil {
		if wf.TTLSec == 0 {
			wf.TTLSec = 86400
		}
		return
	}
	if len(wf.Steps) == 0 {
		wf.Steps = wf.Params.Steps
	}
	if len(wf.OnEnter) == 0 {
		wf.OnEnter = wf.Params.OnEnter
	}
	if len(wf.OnComplete) == 0 {
		wf.OnComplete = wf.Params.OnComplete
	}
	if wf.TTLSec == 0 {
		wf.TTLSec = wf.Params.TTLSec
	}
	if wf.TTLSec == 0 {
		wf.TTLSec = 86400
	}
	wf.Params = nil
}

// ParseDoc decodes a published spec's raw JSON into a SpecDoc.
func ParseDoc(raw json.RawMessage) (*models.SpecDoc, error) {
	var doc models.SpecDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("dsl: parse spec: %w", err)
	}
	return &doc, nil
}
