package models

import "time"

// BroadcastStatus is the lifecycle state of a broadcast run.
type BroadcastStatus string

const (
	BroadcastPending   BroadcastStatus = "pending"
	BroadcastRunning   BroadcastStatus = "running"
	BroadcastCompleted BroadcastStatus = "completed"
	BroadcastFailed    BroadcastStatus = "failed"
)

// Broadcast is a fan-out job targeting an audience of a bot's users.
type Broadcast struct {
	ID              string          `json:"id"`
	BotID           string          `json:"bot_id"`
	Audience        string          `json:"audience"` // "all" | "active_7d" | "segment:<tag>"
	MessageTemplate string          `json:"message_template"`
	ThrottlePerSec  int             `json:"throttle_per_sec"`
	Status          BroadcastStatus `json:"status"`
	TotalUsers      int             `json:"total_users"`
	Sent            int             `json:"sent"`
	Failed          int             `json:"failed"`
	Blocked         int             `json:"blocked"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       time.Time       `json:"started_at,omitempty"`
	CompletedAt     time.Time       `json:"completed_at,omitempty"`
}

// BroadcastDeliveryStatus is the per-recipient outcome of a broadcast send.
type BroadcastDeliveryStatus string

const (
	DeliverySent    BroadcastDeliveryStatus = "sent"
	DeliveryFailed  BroadcastDeliveryStatus = "failed"
	DeliveryBlocked BroadcastDeliveryStatus = "blocked"
)

// BroadcastEvent is one recorded delivery attempt outcome for a recipient.
type BroadcastEvent struct {
	BroadcastID string                  `json:"broadcast_id"`
	UserID      string                  `json:"user_id"`
	Status      BroadcastDeliveryStatus `json:"status"`
	ErrorCode   string                  `json:"error_code,omitempty"`
	SentAt      time.Time               `json:"sent_at"`
}

// Booking is the example domain row written only by the sample /book wizard
// spec; the runtime itself has no special knowledge of it.
type Booking struct {
	BotID   string    `json:"bot_id"`
	UserID  string    `json:"user_id"`
	Service string    `json:"service"`
	Slot    string    `json:"slot"`
	BookedAt time.Time `json:"booked_at"`
}
