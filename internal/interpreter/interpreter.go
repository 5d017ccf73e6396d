// Package interpreter is the DSL Interpreter (C5): it routes one inbound
// Update through the fixed precedence order active wizard -> widget
// callback -> menu flow -> wizard entry -> intent -> silent no-match,
// orchestrating the compiled spec cache, the wizard engine, the calendar
// widget and the action executor, and emitting exactly one primary event
// per update.
package interpreter

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/tgdsl/runtime/internal/actions"
	"github.com/tgdsl/runtime/internal/calendar"
	"github.com/tgdsl/runtime/internal/dsl"
	"github.com/tgdsl/runtime/internal/events"
	"github.com/tgdsl/runtime/internal/i18n"
	"github.com/tgdsl/runtime/internal/storage"
	"github.com/tgdsl/runtime/internal/wizard"
	"github.com/tgdsl/runtime/pkg/models"
)

// Interpreter ties the compiled spec, the wizard engine, the action
// executor and the calendar widget together into one Handle call per
// inbound update.
type Interpreter struct {
	bots    storage.BotStore
	specs   *dsl.Cache
	wizards *wizard.Engine
	i18n    *i18n.Resolver
	actions *actions.Executor
	events  *events.Sink

	reMu     sync.Mutex
	reCache  map[string]*regexp.Regexp
}

func New(bots storage.BotStore, specs *dsl.Cache, wizards *wizard.Engine, resolver *i18n.Resolver, execs *actions.Executor, sink *events.Sink) *Interpreter {
	return &Interpreter{
		bots:    bots,
		specs:   specs,
		wizards: wizards,
		i18n:    resolver,
		actions: execs,
		events:  sink,
		reCache: map[string]*regexp.Regexp{},
	}
}

// Handle routes upd through the precedence chain and returns the reply to
// send back, or nil for a silent no-match. It never returns an error for
// ordinary DSL-level failures (those are handled internally and surfaced as
// events); a returned error means the update could not be processed at all
// (unknown bot, uncompilable spec).
func (in *Interpreter) Handle(ctx context.Context, upd models.Update) (*models.Reply, error) {
	traceID := events.NewTraceID()

	bot, err := in.bots.Get(ctx, upd.BotID)
	if err != nil {
		return nil, fmt.Errorf("interpreter: load bot %s: %w", upd.BotID, err)
	}

	compiled, err := in.specs.Get(ctx, upd.BotID)
	if err != nil {
		in.events.Error(ctx, upd.BotID, upd.UserID, traceID, "interpreter", models.ErrInternal, err.Error())
		return nil, err
	}

	locale, err := in.i18n.ResolveLocale(ctx, upd.BotID, upd.UserID, upd.ChatID, bot.DefaultLocale)
	if err != nil {
		locale = i18n.FallbackLocale
	}

	state, err := in.wizards.Active(ctx, upd.BotID, upd.UserID)
	if err != nil {
		in.events.Error(ctx, upd.BotID, upd.UserID, traceID, "wizard", models.ErrInternal, err.Error())
		return nil, err
	}

	switch {
	case state != nil:
		reply, err := in.handleWizardTurn(ctx, bot, compiled, state, upd, locale, traceID)
		if err != nil {
			return nil, err
		}
		return reply, nil

	case upd.IsCallback:
		reply, err := in.handleCallback(ctx, bot, compiled, upd, locale, traceID)
		if err != nil {
			return nil, err
		}
		in.events.Update(ctx, upd.BotID, upd.UserID, traceID, reply != nil)
		return reply, nil
	}

	text := wizard.TruncateInput(upd.Text)

	if mf, ok := compiled.MenuFlows[text]; ok {
		reply, err := in.actions.Run(ctx, actions.Request{
			Bot: bot, UserID: upd.UserID, ChatID: upd.ChatID, TraceID: traceID, Locale: locale,
		}, mf.Actions)
		if err != nil {
			return nil, err
		}
		in.events.Update(ctx, upd.BotID, upd.UserID, traceID, true)
		return toModelReply(reply, true), nil
	}

	if wf, ok := compiled.WizardFlows[text]; ok {
		reply, err := in.startWizard(ctx, bot, wf, text, upd, locale, traceID)
		if err != nil {
			return nil, err
		}
		in.events.Update(ctx, upd.BotID, upd.UserID, traceID, true)
		return reply, nil
	}

	if intent, ok := compiled.Intents[text]; ok {
		in.events.Update(ctx, upd.BotID, upd.UserID, traceID, true)
		return &models.Reply{Text: intent.Reply, Matched: true}, nil
	}

	in.events.Update(ctx, upd.BotID, upd.UserID, traceID, false)
	return nil, nil
}

// startWizard runs a wizard flow's on_enter actions, persists step-0 state
// and asks step 0's question.
func (in *Interpreter) startWizard(ctx context.Context, bot *models.Bot, wf models.WizardFlow, entryCmd string, upd models.Update, locale, traceID string) (*models.Reply, error) {
	if len(wf.OnEnter) > 0 {
		if _, err := in.actions.Run(ctx, actions.Request{
			Bot: bot, UserID: upd.UserID, ChatID: upd.ChatID, TraceID: traceID, Locale: locale,
		}, wf.OnEnter); err != nil {
			return nil, err
		}
	}

	if _, err := in.wizards.Start(ctx, bot.ID, upd.UserID, entryCmd, wf.TTLSec); err != nil {
		return nil, err
	}
	in.events.FlowStep(ctx, bot.ID, upd.UserID, traceID, entryCmd, 0, true)

	return in.askStep(ctx, bot, wf, 0, upd, locale, traceID)
}

// handleWizardTurn matches inbound text against the active step's
// validation regex, and on the §4.4 "entry_cmd received again" case resets
// to step 0 instead.
func (in *Interpreter) handleWizardTurn(ctx context.Context, bot *models.Bot, compiled *dsl.Compiled, state *models.WizardState, upd models.Update, locale, traceID string) (*models.Reply, error) {
	if upd.IsCallback {
		reply, err := in.handleCallback(ctx, bot, compiled, upd, locale, traceID)
		if err != nil {
			return nil, err
		}
		in.events.Update(ctx, upd.BotID, upd.UserID, traceID, reply != nil)
		return reply, nil
	}

	text := wizard.TruncateInput(upd.Text)

	if wf, ok := compiled.WizardFlows[text]; ok && text == state.FlowCmd {
		reply, err := in.startWizard(ctx, bot, wf, text, upd, locale, traceID)
		if err != nil {
			return nil, err
		}
		in.events.Update(ctx, upd.BotID, upd.UserID, traceID, true)
		return reply, nil
	}

	wf, ok := compiled.WizardFlows[state.FlowCmd]
	if !ok {
		// The spec was reloaded and the flow that started this state no
		// longer exists: discard and treat the update as unmatched.
		_ = in.wizards.Complete(ctx, upd.BotID, upd.UserID)
		in.events.Update(ctx, upd.BotID, upd.UserID, traceID, false)
		return nil, nil
	}
	if state.Step < 0 || state.Step >= len(wf.Steps) {
		_ = in.wizards.Complete(ctx, upd.BotID, upd.UserID)
		in.events.Update(ctx, upd.BotID, upd.UserID, traceID, false)
		return nil, nil
	}
	step := wf.Steps[state.Step]

	if step.Validate != nil {
		re, err := in.regexFor(step.Validate.Regex)
		if err != nil {
			in.events.Error(ctx, bot.ID, upd.UserID, traceID, "wizard", models.ErrValidationFailed, err.Error())
			return &models.Reply{Text: step.Validate.Msg, Matched: true}, nil
		}
		if !re.MatchString(text) {
			if _, err := in.wizards.Retry(ctx, state); err != nil {
				return nil, err
			}
			in.events.FlowStep(ctx, bot.ID, upd.UserID, traceID, state.FlowCmd, state.Step, false)
			in.events.Update(ctx, upd.BotID, upd.UserID, traceID, true)
			return &models.Reply{Text: step.Validate.Msg, Matched: true}, nil
		}
	}

	won, err := in.wizards.Advance(ctx, state, step.Var, text)
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost the CAS race to a concurrent update for the same user; per
		// §5 the loser is ignored, no reply.
		in.events.Update(ctx, upd.BotID, upd.UserID, traceID, false)
		return nil, nil
	}
	in.events.FlowStep(ctx, bot.ID, upd.UserID, traceID, state.FlowCmd, state.Step+1, true)

	if len(step.OnStep) > 0 {
		if _, err := in.actions.Run(ctx, actions.Request{
			Bot: bot, UserID: upd.UserID, ChatID: upd.ChatID, TraceID: traceID, Locale: locale,
			Vars: map[string]string{step.Var: text},
		}, step.OnStep); err != nil {
			return nil, err
		}
	}

	nextStep := state.Step + 1
	if nextStep >= len(wf.Steps) {
		return in.completeWizard(ctx, bot, wf, upd, locale, traceID)
	}

	reply, err := in.askStep(ctx, bot, wf, nextStep, upd, locale, traceID)
	if err != nil {
		return nil, err
	}
	in.events.Update(ctx, upd.BotID, upd.UserID, traceID, true)
	return reply, nil
}

func (in *Interpreter) completeWizard(ctx context.Context, bot *models.Bot, wf models.WizardFlow, upd models.Update, locale, traceID string) (*models.Reply, error) {
	state, err := in.wizards.Active(ctx, bot.ID, upd.UserID)
	if err != nil {
		return nil, err
	}
	vars := map[string]string{}
	if state != nil {
		vars = state.Vars
	}

	var reply *actions.Reply
	if len(wf.OnComplete) > 0 {
		reply, err = in.actions.Run(ctx, actions.Request{
			Bot: bot, UserID: upd.UserID, ChatID: upd.ChatID, TraceID: traceID, Locale: locale, Vars: vars,
		}, wf.OnComplete)
		if err != nil {
			return nil, err
		}
	}
	if err := in.wizards.Complete(ctx, bot.ID, upd.UserID); err != nil {
		return nil, err
	}
	in.events.Update(ctx, upd.BotID, upd.UserID, traceID, true)
	return toModelReply(reply, true), nil
}

// askStep runs a step's widget (if any) or otherwise replies with its
// literal question text.
func (in *Interpreter) askStep(ctx context.Context, bot *models.Bot, wf models.WizardFlow, stepIdx int, upd models.Update, locale, traceID string) (*models.Reply, error) {
	step := wf.Steps[stepIdx]
	if step.Widget == nil {
		text := step.Ask
		if in.i18n != nil && i18n.IsMarker(text) {
			if resolved, err := in.i18n.Translate(ctx, bot.ID, locale, text); err == nil {
				text = resolved
			}
		}
		return &models.Reply{Text: text, Matched: true}, nil
	}

	now := time.Now().UTC()
	kb := calendar.RenderMonth(calendar.Request{
		Mode: calendar.Mode(step.Widget.Mode), Min: step.Widget.Min, Max: step.Widget.Max,
		Year: now.Year(), Month: now.Month(), BotID: bot.ID, UserID: upd.UserID,
	})
	in.events.WidgetRender(ctx, bot.ID, upd.UserID, traceID, step.Widget.Mode)
	text := step.Ask
	if in.i18n != nil && i18n.IsMarker(text) {
		if resolved, err := in.i18n.Translate(ctx, bot.ID, locale, text); err == nil {
			text = resolved
		}
	}
	return &models.Reply{Text: text, Keyboard: &kb, Matched: true}, nil
}

// handleCallback dispatches a calendar callback against the active wizard
// step's widget. Any other callback shape (no widget configured, a
// different bot/user than the callback names) is an owner mismatch and is
// silently dropped.
func (in *Interpreter) handleCallback(ctx context.Context, bot *models.Bot, compiled *dsl.Compiled, upd models.Update, locale, traceID string) (*models.Reply, error) {
	cb, err := calendar.DecodeCallback(upd.CallbackData)
	if err != nil {
		in.events.Error(ctx, bot.ID, upd.UserID, traceID, "calendar", models.ErrCallbackOwnerMismatch, err.Error())
		return nil, nil
	}
	if cb.BotID != upd.BotID || cb.UserID != upd.UserID {
		in.events.Error(ctx, bot.ID, upd.UserID, traceID, "calendar", models.ErrCallbackOwnerMismatch, "callback addressed to a different user")
		return nil, nil
	}

	state, err := in.wizards.Active(ctx, upd.BotID, upd.UserID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		in.events.Error(ctx, bot.ID, upd.UserID, traceID, "calendar", models.ErrCallbackOwnerMismatch, "no active wizard state for callback")
		return nil, nil
	}

	wf, ok := compiled.WizardFlows[state.FlowCmd]
	if !ok || state.Step < 0 || state.Step >= len(wf.Steps) || wf.Steps[state.Step].Widget == nil {
		in.events.Error(ctx, bot.ID, upd.UserID, traceID, "calendar", models.ErrCallbackOwnerMismatch, "callback does not match an active widget step")
		return nil, nil
	}
	step := wf.Steps[state.Step]

	result, err := calendar.Handle(*step.Widget, cb)
	if err != nil {
		in.events.Error(ctx, bot.ID, upd.UserID, traceID, "calendar", models.ErrValidationFailed, err.Error())
		return nil, nil
	}

	if !result.Terminal {
		in.events.WidgetRender(ctx, bot.ID, upd.UserID, traceID, string(step.Widget.Mode))
		return &models.Reply{Keyboard: result.Keyboard, Matched: true}, nil
	}

	in.events.WidgetPick(ctx, bot.ID, upd.UserID, traceID, step.Widget.Mode, result.Value)

	won, err := in.wizards.Advance(ctx, state, step.Var, result.Value)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, nil
	}
	in.events.FlowStep(ctx, bot.ID, upd.UserID, traceID, state.FlowCmd, state.Step+1, true)

	if len(step.OnStep) > 0 {
		if _, err := in.actions.Run(ctx, actions.Request{
			Bot: bot, UserID: upd.UserID, ChatID: upd.ChatID, TraceID: traceID, Locale: locale,
			Vars: map[string]string{step.Var: result.Value},
		}, step.OnStep); err != nil {
			return nil, err
		}
	}

	nextStep := state.Step + 1
	if nextStep >= len(wf.Steps) {
		return in.completeWizard(ctx, bot, wf, upd, locale, traceID)
	}
	return in.askStep(ctx, bot, wf, nextStep, upd, locale, traceID)
}

func (in *Interpreter) regexFor(pattern string) (*regexp.Regexp, error) {
	in.reMu.Lock()
	defer in.reMu.Unlock()
	if re, ok := in.reCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("interpreter: bad validation regex %q: %w", pattern, err)
	}
	in.reCache[pattern] = re
	return re, nil
}

func toModelReply(r *actions.Reply, matched bool) *models.Reply {
	if r == nil {
		return &models.Reply{Matched: matched}
	}
	return &models.Reply{Text: r.Text, Keyboard: r.Keyboard, Matched: matched}
}
