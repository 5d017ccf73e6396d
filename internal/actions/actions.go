// Package actions is the Action Executor (C3): it walks a handler's ordered
// Action list, running each against the SQL Gatekeeper, the Template
// Renderer, the i18n Resolver and, optionally, the LLM Circuit Breaker.
package actions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tgdsl/runtime/internal/events"
	"github.com/tgdsl/runtime/internal/i18n"
	"github.com/tgdsl/runtime/internal/llm"
	"github.com/tgdsl/runtime/internal/llmbreaker"
	"github.com/tgdsl/runtime/internal/sqlgate"
	"github.com/tgdsl/runtime/internal/storage"
	"github.com/tgdsl/runtime/internal/template"
	"github.com/tgdsl/runtime/pkg/models"
)

const (
	queryTimeout = 5 * time.Second
	execTimeout  = 10 * time.Second
)

// Reply is the single reply artifact a handler emits after running its
// action list, or nil if every action was non-reply (e.g. sql_exec-only).
type Reply struct {
	Text     string
	Keyboard *models.Keyboard
}

// Request bundles everything a single handler invocation needs to run its
// actions against.
type Request struct {
	Bot      *models.Bot
	UserID   string
	ChatID   string
	TraceID  string
	Locale   string
	Vars     map[string]string // wizard vars and/or prior sql_query results, as scalars
	ScopeAny map[string]any    // extended scope for sql_query row/array results
}

type Executor struct {
	db     storage.SQLExecer
	i18n   *i18n.Resolver
	llm    *llmbreaker.Breaker
	events *events.Sink
}

func New(db storage.SQLExecer, resolver *i18n.Resolver, breaker *llmbreaker.Breaker, sink *events.Sink) *Executor {
	return &Executor{db: db, i18n: resolver, llm: breaker, events: sink}
}

// Run executes actions in order; action N observes scope mutations from
// action N-1. Returns the last reply_template artifact produced, if any.
func (e *Executor) Run(ctx context.Context, req Request, acts []models.Action) (*Reply, error) {
	scope := make(map[string]any, len(req.Vars)+len(req.ScopeAny)+2)
	scope["bot_id"] = req.Bot.ID
	scope["user_id"] = req.UserID
	for k, v := range req.Vars {
		scope[k] = v
	}
	for k, v := range req.ScopeAny {
		scope[k] = v
	}

	var reply *Reply
	for _, action := range acts {
		var err error
		switch action.Kind {
		case "action.sql_exec.v1":
			err = e.runSQLExec(ctx, req, action.SQLExec, scope)
		case "action.sql_query.v1":
			err = e.runSQLQuery(ctx, req, action.SQLQuery, scope)
		case "action.reply_template.v1":
			var r *Reply
			r, err = e.runReplyTemplate(ctx, req, action.ReplyTemplate, scope)
			if r != nil {
				reply = r
			}
		default:
			err = fmt.Errorf("actions: unknown action kind %q", action.Kind)
		}
		if err != nil {
			e.events.Error(ctx, req.Bot.ID, req.UserID, req.TraceID, "action:"+action.Kind, classify(err), err.Error())
		}
	}
	return reply, nil
}

func classify(err error) models.ErrorCode {
	var gateErr *sqlgate.Error
	if errors.As(err, &gateErr) {
		return models.ErrSQLError
	}
	if errors.Is(err, errTemplate) {
		return models.ErrTemplateError
	}
	return models.ErrInternal
}

var errTemplate = errors.New("actions: template error")

func (e *Executor) allowedBindNames(scope map[string]any) map[string]bool {
	names := map[string]bool{"bot_id": true, "user_id": true}
	for k := range scope {
		names[k] = true
	}
	return names
}

func (e *Executor) runSQLExec(ctx context.Context, req Request, act *models.SQLExecAction, scope map[string]any) error {
	if e.db == nil {
		return errors.New("actions: sql_exec is unavailable without a configured database")
	}
	start := time.Now()
	prepared, err := sqlgate.Validate(act.SQL, sqlgate.ModeExec, e.allowedBindNames(scope))
	if err != nil {
		e.events.ActionSQL(ctx, req.Bot.ID, req.UserID, req.TraceID, "exec", 0, false, 0, time.Since(start))
		return err
	}

	args, err := bindArgs(prepared, scope)
	if err != nil {
		e.events.ActionSQL(ctx, req.Bot.ID, req.UserID, req.TraceID, "exec", prepared.Hash, false, 0, time.Since(start))
		return err
	}

	execCtx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()
	res, err := e.db.ExecContext(execCtx, prepared.SQL, args...)
	if err != nil {
		e.events.ActionSQL(ctx, req.Bot.ID, req.UserID, req.TraceID, "exec", prepared.Hash, false, 0, time.Since(start))
		return fmt.Errorf("actions: sql_exec: %w", err)
	}
	rows, _ := res.RowsAffected()
	e.events.ActionSQL(ctx, req.Bot.ID, req.UserID, req.TraceID, "exec", prepared.Hash, true, rows, time.Since(start))
	return nil
}

func (e *Executor) runSQLQuery(ctx context.Context, req Request, act *models.SQLQueryAction, scope map[string]any) error {
	if e.db == nil {
		return errors.New("actions: sql_query is unavailable without a configured database")
	}
	start := time.Now()
	prepared, err := sqlgate.Validate(act.SQL, sqlgate.ModeQuery, e.allowedBindNames(scope))
	if err != nil {
		e.events.ActionSQL(ctx, req.Bot.ID, req.UserID, req.TraceID, "query", 0, false, 0, time.Since(start))
		return err
	}

	args, err := bindArgs(prepared, scope)
	if err != nil {
		e.events.ActionSQL(ctx, req.Bot.ID, req.UserID, req.TraceID, "query", prepared.Hash, false, 0, time.Since(start))
		return err
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := e.db.QueryContext(queryCtx, prepared.SQL, args...)
	if err != nil {
		e.events.ActionSQL(ctx, req.Bot.ID, req.UserID, req.TraceID, "query", prepared.Hash, false, 0, time.Since(start))
		return fmt.Errorf("actions: sql_query: %w", err)
	}
	defer rows.Close()

	result, rowCount, err := scanRows(rows, act)
	if err != nil {
		e.events.ActionSQL(ctx, req.Bot.ID, req.UserID, req.TraceID, "query", prepared.Hash, false, 0, time.Since(start))
		return err
	}

	scope[act.ResultVar] = result
	e.events.ActionSQL(ctx, req.Bot.ID, req.UserID, req.TraceID, "query", prepared.Hash, true, int64(rowCount), time.Since(start))
	return nil
}

func scanRows(rows *sql.Rows, act *models.SQLQueryAction) (any, int, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, 0, err
	}

	var out []map[string]any
	var scalars []any
	var scalarResult any
	rowCount := 0

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, 0, err
		}
		rowCount++

		if act.Scalar {
			if rowCount == 1 && len(vals) > 0 {
				scalarResult = vals[0]
			}
			continue
		}
		if act.Flatten {
			if len(vals) == 1 {
				scalars = append(scalars, vals[0])
			}
			continue
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	switch {
	case act.Scalar:
		return scalarResult, rowCount, nil
	case act.Flatten:
		return scalars, rowCount, nil
	default:
		return out, rowCount, nil
	}
}

func bindArgs(prepared *sqlgate.Prepared, scope map[string]any) ([]any, error) {
	args := make([]any, len(prepared.Binds))
	for i, name := range prepared.Binds {
		v, ok := scope[name]
		if !ok {
			return nil, fmt.Errorf("actions: bind %q has no scope value", name)
		}
		args[i] = v
	}
	return args, nil
}

func (e *Executor) runReplyTemplate(ctx context.Context, req Request, act *models.ReplyTemplateAction, scope map[string]any) (*Reply, error) {
	start := time.Now()

	text := act.Text
	if e.i18n != nil && i18n.IsMarker(text) {
		resolved, err := e.i18n.Translate(ctx, req.Bot.ID, req.Locale, text)
		if err == nil {
			text = resolved
		}
	}

	rendered, err := template.Render(text, template.Scope(scope), act.EmptyText)
	if err != nil {
		e.events.ActionReply(ctx, req.Bot.ID, req.UserID, req.TraceID, false, len(rendered), time.Since(start))
		return &Reply{Text: rendered, Keyboard: act.Keyboard}, fmt.Errorf("%w: %v", errTemplate, err)
	}

	if act.LLMImprove && e.llm != nil && req.Bot.LLMEnabled {
		res, err := e.llm.Improve(ctx, req.Bot.ID, req.UserID, req.Bot.DailyBudgetLimit, llm.Request{
			Model:  presetModel(req.Bot.LLMPreset),
			System: presetSystemPrompt(req.Bot.LLMPreset),
			Prompt: rendered,
		})
		if err == nil {
			rendered = res.Text
		}
		// An LLM failure (budget, rate limit, open breaker, transport) falls
		// back to the unimproved rendered text; it does not fail the reply.
	}

	e.events.ActionReply(ctx, req.Bot.ID, req.UserID, req.TraceID, true, len(rendered), time.Since(start))
	return &Reply{Text: rendered, Keyboard: act.Keyboard}, nil
}

// presetModel maps a bot's configured tone preset onto a concrete LLM
// model. Presets are about tone, not capability, so a cheaper model covers
// short/neutral and a stronger one covers detailed rewrites.
func presetModel(preset models.LLMPreset) string {
	if preset == models.LLMPresetDetailed {
		return "gpt-4o"
	}
	return "gpt-4o-mini"
}

func presetSystemPrompt(preset models.LLMPreset) string {
	switch preset {
	case models.LLMPresetShort:
		return "Rewrite the following reply to be as short as possible while keeping its meaning."
	case models.LLMPresetDetailed:
		return "Rewrite the following reply with more detail and a warm, thorough tone."
	default:
		return "Lightly improve the wording of the following reply without changing its meaning."
	}
}
