package models

import "encoding/json"

// Spec is the raw, published DSL document attached to a bot. It is
// immutable once published; a new Version supersedes older ones.
type Spec struct {
	BotID     string          `json:"bot_id"`
	Version   int             `json:"version"`
	SpecJSON  json.RawMessage `json:"spec_json"`
	PublishedAt int64         `json:"published_at"`
}

// SpecDoc is the parsed shape of SpecJSON, matching the DSL's own vocabulary.
// Intents, menu flows and wizard flows may be declared either in the unified
// Flows array (discriminated by Type) or in the segregated MenuFlows /
// WizardFlows arrays; both shapes are accepted and normalized at compile
// time (dsl.Compile).
type SpecDoc struct {
	Use         []string     `json:"use,omitempty"`
	Intents     []Intent     `json:"intents,omitempty"`
	Flows       []RawFlow    `json:"flows,omitempty"`
	MenuFlows   []MenuFlow   `json:"menu_flows,omitempty"`
	WizardFlows []WizardFlow `json:"wizard_flows,omitempty"`
}

// Intent is a trivial cmd -> literal reply pair, no actions.
type Intent struct {
	Cmd   string `json:"cmd"`
	Reply string `json:"reply"`
}

// RawFlow is a flow entry from the unified `flows` array before it has been
// discriminated into a MenuFlow or WizardFlow by its Type field.
type RawFlow struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the raw body alongside the discriminator so the
// compiler can re-decode it into the concrete flow shape.
func (f *RawFlow) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	f.Type = probe.Type
	f.Body = append([]byte(nil), data...)
	return nil
}

// MenuFlow is a stateless entry-command handler: matching text runs Actions
// once with no persisted state.
type MenuFlow struct {
	Type     string   `json:"type"`
	EntryCmd string   `json:"entry_cmd"`
	Actions  []Action `json:"actions"`
}

// WizardFlow is a stateful multi-step dialogue. Steps are accepted in either
// the "legacy" shape (top-level Steps/OnComplete) or the "v1" shape (nested
// under Params) — both compile to the same WizardFlow.
type WizardFlow struct {
	Type      string       `json:"type"`
	EntryCmd  string       `json:"entry_cmd"`
	TTLSec    int          `json:"ttl_sec,omitempty"`
	OnEnter   []Action     `json:"on_enter,omitempty"`
	Steps     []WizardStep `json:"steps"`
	OnComplete []Action    `json:"on_complete,omitempty"`
	Params    *struct {
		Steps      []WizardStep `json:"steps"`
		OnEnter    []Action     `json:"on_enter,omitempty"`
		OnComplete []Action     `json:"on_complete,omitempty"`
		TTLSec     int          `json:"ttl_sec,omitempty"`
	} `json:"params,omitempty"`
}

// WizardStep is a single question in a wizard flow.
type WizardStep struct {
	Var      string   `json:"var"`
	Ask      string   `json:"ask"`
	Validate *Validate `json:"validate,omitempty"`
	OnStep   []Action  `json:"on_step,omitempty"`
	Widget   *WidgetSpec `json:"widget,omitempty"`
}

// Validate is a regex-based validation rule for a wizard step's input.
type Validate struct {
	Regex string `json:"regex"`
	Msg   string `json:"msg"`
}

// WidgetSpec configures an interactive widget attached to a wizard step.
type WidgetSpec struct {
	Kind string `json:"kind"` // "calendar"
	Mode string `json:"mode"` // "date" | "datetime"
	Min  string `json:"min,omitempty"`
	Max  string `json:"max,omitempty"`
	TZ   string `json:"tz,omitempty"`
	Title string `json:"title,omitempty"`
}

// Action is a tagged-variant action executed as part of a handler. Kind
// discriminates which of the *Body fields is populated.
type Action struct {
	Kind string `json:"kind"`

	SQLExec     *SQLExecAction     `json:"-"`
	SQLQuery    *SQLQueryAction    `json:"-"`
	ReplyTemplate *ReplyTemplateAction `json:"-"`
	Widget      *WidgetAction      `json:"-"`

	raw json.RawMessage
}

// UnmarshalJSON decodes the action's Kind-specific body into the matching
// field, keyed off the wire Kind strings `action.sql_exec.v1`,
// `action.sql_query.v1`, `action.reply_template.v1` and `action.widget.v1`.
func (a *Action) UnmarshalJSON(data []byte) error {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	a.Kind = probe.Kind
	a.raw = append([]byte(nil), data...)

	switch probe.Kind {
	case "action.sql_exec.v1":
		var v SQLExecAction
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		a.SQLExec = &v
	case "action.sql_query.v1":
		var v SQLQueryAction
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		a.SQLQuery = &v
	case "action.reply_template.v1":
		var v ReplyTemplateAction
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		a.ReplyTemplate = &v
	case "action.widget.v1":
		var v WidgetAction
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		a.Widget = &v
	}
	return nil
}

// SQLExecAction runs a write statement in sqlgate's exec mode.
type SQLExecAction struct {
	SQL string `json:"sql"`
}

// SQLQueryAction runs a read statement in sqlgate's query mode.
type SQLQueryAction struct {
	SQL       string `json:"sql"`
	ResultVar string `json:"result_var"`
	Scalar    bool   `json:"scalar,omitempty"`
	Flatten   bool   `json:"flatten,omitempty"`
}

// ReplyTemplateAction renders and sends a templated reply.
type ReplyTemplateAction struct {
	Text       string    `json:"text"`
	EmptyText  string    `json:"empty_text,omitempty"`
	Keyboard   *Keyboard `json:"keyboard,omitempty"`
	LLMImprove bool      `json:"llm_improve,omitempty"`
}

// WidgetAction emits an interactive widget (currently only calendar).
type WidgetAction struct {
	Widget   WidgetSpec `json:"widget"`
	ResultVar string    `json:"result_var"`
}

// Keyboard is an inline-keyboard layout: rows of buttons.
type Keyboard struct {
	Rows [][]Button `json:"rows"`
}

// Button is one inline-keyboard button, either a literal callback or a URL.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}
