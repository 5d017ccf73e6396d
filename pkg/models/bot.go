// Package models holds the tenant-facing domain types shared across the
// runtime: bots, specs, wizard state, events, and the ancillary tables
// (users, locales, i18n keys, broadcasts) that back them.
package models

import "time"

// BotStatus is the lifecycle state of a bot record.
type BotStatus string

const (
	BotStatusActive   BotStatus = "active"
	BotStatusDisabled BotStatus = "disabled"
)

// LLMPreset controls the tone the LLM-improve step aims for.
type LLMPreset string

const (
	LLMPresetShort    LLMPreset = "short"
	LLMPresetNeutral  LLMPreset = "neutral"
	LLMPresetDetailed LLMPreset = "detailed"
)

// Bot is a single tenant: one Telegram-style chat bot hosted by the runtime.
type Bot struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	WebhookSecret    string    `json:"webhook_secret"`
	Status           BotStatus `json:"status"`
	LLMEnabled       bool      `json:"llm_enabled"`
	LLMPreset        LLMPreset `json:"llm_preset"`
	DailyBudgetLimit int64     `json:"daily_budget_limit"`
	DefaultLocale    string    `json:"default_locale"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Active reports whether the bot should process inbound updates.
func (b Bot) Active() bool {
	return b.Status == BotStatusActive
}

// BotUser tracks a bot's per-end-user activity for audience selection.
type BotUser struct {
	BotID      string    `json:"bot_id"`
	UserID     string    `json:"user_id"`
	ChatID     string    `json:"chat_id"`
	LastActive time.Time `json:"last_active"`
	SegmentTags []string `json:"segment_tags,omitempty"`
	IsActive   bool      `json:"is_active"`
}
