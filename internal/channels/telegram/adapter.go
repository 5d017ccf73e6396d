// Package telegram implements the runtime's one outbound transport:
// sending rendered replies (text plus an optional inline keyboard) to a
// Telegram chat via the go-telegram/bot client. Inbound updates arrive over
// the HTTP webhook route and are decoded by DecodeUpdate in this package;
// the adapter itself never polls or subscribes.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/tgdsl/runtime/internal/channels"
	"github.com/tgdsl/runtime/internal/ratelimit"
	"github.com/tgdsl/runtime/pkg/models"
)

// Config holds configuration for the Telegram adapter.
type Config struct {
	// Token is the bot token from @BotFather (required).
	Token string

	// RateLimit configures outbound send rate limiting (messages/sec).
	RateLimit float64
	RateBurst int

	Logger *slog.Logger
}

// Validate applies defaults and checks required fields.
func (c *Config) Validate() error {
	if c.Token == "" {
		return channels.ErrConfig("token is required", nil)
	}
	if c.RateLimit == 0 {
		c.RateLimit = 30 // Telegram's soft limit is ~30 messages/sec per bot
	}
	if c.RateBurst == 0 {
		c.RateBurst = 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.OutboundAdapter and channels.HealthAdapter for
// Telegram. One Adapter, built from the single configured bot token, is
// shared by every bot hosted in the process.
type Adapter struct {
	config    Config
	botClient BotClient
	limiter   *ratelimit.Bucket
	logger    *slog.Logger
	health    *channels.BaseHealthAdapter
}

// New creates a Telegram adapter for the given bot token.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := bot.New(cfg.Token)
	if err != nil {
		return nil, channels.ErrConnection("failed to create telegram bot client", err)
	}
	return newWithClient(cfg, newRealBotClient(b)), nil
}

func newWithClient(cfg Config, client BotClient) *Adapter {
	a := &Adapter{
		config:    cfg,
		botClient: client,
		limiter: ratelimit.NewBucket(ratelimit.Config{
			RequestsPerSecond: cfg.RateLimit,
			BurstSize:         cfg.RateBurst,
			Enabled:           true,
		}),
		logger: cfg.Logger,
		health: channels.NewBaseHealthAdapter(cfg.Logger),
	}
	a.health.SetStatus(true, "")
	return a
}

// Type returns the channel name this adapter implements.
func (a *Adapter) Type() string { return "telegram" }

// Status returns the adapter's current connection status.
func (a *Adapter) Status() channels.Status { return a.health.Status() }

// HealthCheck reports whether the adapter is able to send.
func (a *Adapter) HealthCheck(ctx context.Context) channels.HealthStatus {
	return a.health.HealthCheck(ctx)
}

// Send delivers a reply to a chat, rate limited and converted into the
// go-telegram/bot wire shape (inline keyboard rows map 1:1).
func (a *Adapter) Send(ctx context.Context, chatID string, reply models.Reply) error {
	if wait := a.limiter.WaitTime(); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if !a.limiter.Allow() {
		return channels.ErrRateLimit("telegram send rate limit exceeded", nil)
	}

	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   reply.Text,
	}
	if reply.Keyboard != nil && len(reply.Keyboard.Rows) > 0 {
		params.ReplyMarkup = toInlineKeyboard(reply.Keyboard)
	}

	start := time.Now()
	_, err := a.botClient.SendMessage(ctx, params)
	latency := time.Since(start)
	if err != nil {
		if isBlockedByUser(err) {
			a.logger.Info("telegram recipient has blocked the bot", "chat_id", chatID)
			return channels.ErrBlocked("telegram recipient blocked the bot", err)
		}
		a.health.SetStatus(false, err.Error())
		a.logger.Warn("telegram send failed", "chat_id", chatID, "latency", latency, "error", err)
		return channels.ErrConnection("telegram send failed", err)
	}
	a.health.SetStatus(true, "")
	return nil
}

func toInlineKeyboard(kb *models.Keyboard) *tgmodels.InlineKeyboardMarkup {
	rows := make([][]tgmodels.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgmodels.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			b := tgmodels.InlineKeyboardButton{Text: btn.Text}
			switch {
			case btn.URL != "":
				b.URL = btn.URL
			default:
				b.CallbackData = btn.CallbackData
			}
			buttons = append(buttons, b)
		}
		rows = append(rows, buttons)
	}
	return &tgmodels.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// DecodeUpdate converts a raw Telegram webhook update into the runtime's
// channel-agnostic models.Update. Only the fields the DSL interpreter needs
// (text, callback data, from/chat IDs) are extracted.
func DecodeUpdate(botID string, raw *tgmodels.Update) (models.Update, error) {
	if raw == nil {
		return models.Update{}, fmt.Errorf("telegram: nil update")
	}
	u := models.Update{BotID: botID}

	switch {
	case raw.Message != nil:
		u.Text = truncate(raw.Message.Text, 1024)
		if raw.Message.From != nil {
			u.UserID = fmt.Sprintf("%d", raw.Message.From.ID)
		}
		u.ChatID = fmt.Sprintf("%d", raw.Message.Chat.ID)
	case raw.CallbackQuery != nil:
		u.IsCallback = true
		u.CallbackData = truncate(raw.CallbackQuery.Data, 1024)
		u.UserID = fmt.Sprintf("%d", raw.CallbackQuery.From.ID)
		if raw.CallbackQuery.Message.Message != nil {
			u.ChatID = fmt.Sprintf("%d", raw.CallbackQuery.Message.Message.Chat.ID)
		}
	default:
		return models.Update{}, fmt.Errorf("telegram: update has neither message nor callback_query")
	}
	return u, nil
}

// isBlockedByUser detects Telegram's 403 "bot was blocked by the user"
// response, which the go-telegram/bot client surfaces as a plain API error
// string rather than a typed value.
func isBlockedByUser(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "bot was blocked by the user") || strings.Contains(msg, "user is deactivated")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
