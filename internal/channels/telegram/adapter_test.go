package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/tgdsl/runtime/pkg/models"
)

type mockBotClient struct {
	mu               sync.Mutex
	sendMessageFunc  func(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
	sendMessageCalls int
	lastParams       *bot.SendMessageParams
}

func (m *mockBotClient) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	m.mu.Lock()
	m.sendMessageCalls++
	m.lastParams = params
	m.mu.Unlock()
	if m.sendMessageFunc != nil {
		return m.sendMessageFunc(ctx, params)
	}
	return &tgmodels.Message{ID: 1}, nil
}

func newTestAdapter(client BotClient) *Adapter {
	cfg := Config{Token: "test-token"}
	_ = cfg.Validate()
	return newWithClient(cfg, client)
}

func TestAdapter_Send(t *testing.T) {
	client := &mockBotClient{}
	a := newTestAdapter(client)

	err := a.Send(context.Background(), "123", models.Reply{Text: "hello"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if client.sendMessageCalls != 1 {
		t.Fatalf("sendMessageCalls = %d, want 1", client.sendMessageCalls)
	}
	if client.lastParams.Text != "hello" {
		t.Fatalf("Text = %q, want %q", client.lastParams.Text, "hello")
	}
	if !a.Status().Connected {
		t.Fatal("expected adapter to report connected after a successful send")
	}
}

func TestAdapter_Send_WithKeyboard(t *testing.T) {
	client := &mockBotClient{}
	a := newTestAdapter(client)

	kb := &models.Keyboard{Rows: [][]models.Button{
		{{Text: "Yes", CallbackData: "cal:b:u:pick:yes"}, {Text: "No", CallbackData: "cal:b:u:pick:no"}},
	}}
	if err := a.Send(context.Background(), "123", models.Reply{Text: "pick one", Keyboard: kb}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	markup, ok := client.lastParams.ReplyMarkup.(*tgmodels.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("ReplyMarkup = %T, want *tgmodels.InlineKeyboardMarkup", client.lastParams.ReplyMarkup)
	}
	if len(markup.InlineKeyboard) != 1 || len(markup.InlineKeyboard[0]) != 2 {
		t.Fatalf("unexpected keyboard shape: %+v", markup.InlineKeyboard)
	}
}

func TestAdapter_Send_Error(t *testing.T) {
	client := &mockBotClient{
		sendMessageFunc: func(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
			return nil, errors.New("boom")
		},
	}
	a := newTestAdapter(client)

	err := a.Send(context.Background(), "123", models.Reply{Text: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if a.Status().Connected {
		t.Fatal("expected adapter to report disconnected after a failed send")
	}
}

func TestDecodeUpdate_Message(t *testing.T) {
	raw := &tgmodels.Update{
		Message: &tgmodels.Message{
			Text: "/start",
			From: &tgmodels.User{ID: 42},
			Chat: tgmodels.Chat{ID: 99},
		},
	}
	u, err := DecodeUpdate("bot-1", raw)
	if err != nil {
		t.Fatalf("DecodeUpdate() error = %v", err)
	}
	if u.Text != "/start" || u.UserID != "42" || u.ChatID != "99" || u.IsCallback {
		t.Fatalf("unexpected update: %+v", u)
	}
}

func TestDecodeUpdate_Callback(t *testing.T) {
	raw := &tgmodels.Update{
		CallbackQuery: &tgmodels.CallbackQuery{
			Data: "cal:b:1:pick:2025-01-15",
			From: tgmodels.User{ID: 7},
			Message: tgmodels.MaybeInaccessibleMessage{
				Message: &tgmodels.Message{Chat: tgmodels.Chat{ID: 55}},
			},
		},
	}
	u, err := DecodeUpdate("bot-1", raw)
	if err != nil {
		t.Fatalf("DecodeUpdate() error = %v", err)
	}
	if !u.IsCallback || u.CallbackData != "cal:b:1:pick:2025-01-15" || u.UserID != "7" || u.ChatID != "55" {
		t.Fatalf("unexpected update: %+v", u)
	}
}

func TestDecodeUpdate_Empty(t *testing.T) {
	if _, err := DecodeUpdate("bot-1", &tgmodels.Update{}); err == nil {
		t.Fatal("expected error for update with neither message nor callback_query")
	}
}
