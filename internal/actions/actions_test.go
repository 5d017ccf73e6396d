package actions

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tgdsl/runtime/internal/events"
	"github.com/tgdsl/runtime/internal/i18n"
	"github.com/tgdsl/runtime/internal/storage"
	"github.com/tgdsl/runtime/pkg/models"
)

func newTestExecutor(t *testing.T, db storage.SQLExecer) *Executor {
	t.Helper()
	stores := storage.NewMemoryStores()
	resolver := i18n.New(stores.Locales, stores.I18n)
	sink := events.New(stores.Events, events.NewMetrics(prometheus.NewRegistry()), nil)
	return New(db, resolver, nil, sink)
}

func TestRun_ReplyTemplate_PlainText(t *testing.T) {
	e := newTestExecutor(t, nil)
	req := Request{Bot: &models.Bot{ID: "bot1", DefaultLocale: "ru"}, UserID: "u1", Locale: "ru"}

	reply, err := e.Run(context.Background(), req, []models.Action{
		{Kind: "action.reply_template.v1", ReplyTemplate: &models.ReplyTemplateAction{Text: "Hi {{name}}!"}},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	req.Vars = map[string]string{"name": "Anna"}
	reply2, err := e.Run(context.Background(), req, []models.Action{
		{Kind: "action.reply_template.v1", ReplyTemplate: &models.ReplyTemplateAction{Text: "Hi {{name}}!"}},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if reply.Text != "Hi !" {
		t.Errorf("reply.Text = %q, want empty substitution", reply.Text)
	}
	if reply2.Text != "Hi Anna!" {
		t.Errorf("reply2.Text = %q, want Hi Anna!", reply2.Text)
	}
}

func TestRun_SQLExec_WithoutDB_EmitsErrorButContinues(t *testing.T) {
	e := newTestExecutor(t, nil)
	req := Request{Bot: &models.Bot{ID: "bot1"}, UserID: "u1"}

	reply, err := e.Run(context.Background(), req, []models.Action{
		{Kind: "action.sql_exec.v1", SQLExec: &models.SQLExecAction{SQL: "INSERT INTO bookings (bot_id) VALUES (:bot_id)"}},
		{Kind: "action.reply_template.v1", ReplyTemplate: &models.ReplyTemplateAction{Text: "done"}},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if reply == nil || reply.Text != "done" {
		t.Errorf("expected the later reply action to still run, got %+v", reply)
	}
}

func TestRun_SQLExec_RunsGatekeptStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO bookings").
		WithArgs("bot1", "u1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	e := newTestExecutor(t, db)
	req := Request{Bot: &models.Bot{ID: "bot1"}, UserID: "u1"}

	_, err = e.Run(context.Background(), req, []models.Action{
		{Kind: "action.sql_exec.v1", SQLExec: &models.SQLExecAction{SQL: "INSERT INTO bookings (bot_id, user_id) VALUES (:bot_id, :user_id)"}},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRun_SQLQuery_ScalarResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"count"}).AddRow(3)
	mock.ExpectQuery("SELECT count").WithArgs("bot1").WillReturnRows(rows)

	e := newTestExecutor(t, db)
	req := Request{Bot: &models.Bot{ID: "bot1"}, UserID: "u1", ScopeAny: map[string]any{}}

	_, err = e.Run(context.Background(), req, []models.Action{
		{Kind: "action.sql_query.v1", SQLQuery: &models.SQLQueryAction{
			SQL: "SELECT count(*) FROM bookings WHERE bot_id = :bot_id", ResultVar: "n", Scalar: true,
		}},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRun_UnknownActionKindEmitsErrorNotPanic(t *testing.T) {
	e := newTestExecutor(t, nil)
	req := Request{Bot: &models.Bot{ID: "bot1"}, UserID: "u1"}
	_, err := e.Run(context.Background(), req, []models.Action{{Kind: "action.bogus.v1"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}
