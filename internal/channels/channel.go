package channels

import (
	"context"
	"time"

	"github.com/tgdsl/runtime/pkg/models"
)

// OutboundAdapter is the contract every channel transport implements to
// deliver a rendered Reply to a specific chat. The Broadcast Engine (§4.8)
// sends through this interface (looked up in a Registry) and does not import
// a concrete transport package; webhook replies are sent by the gateway
// through the concrete telegram.Adapter.
type OutboundAdapter interface {
	Send(ctx context.Context, chatID string, reply models.Reply) error
}

// LifecycleAdapter represents adapters that can start and stop.
type LifecycleAdapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// HealthAdapter represents adapters that expose status for /health routes.
type HealthAdapter interface {
	Status() Status
	HealthCheck(ctx context.Context) HealthStatus
}

// Status represents the connection status of a channel.
type Status struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
	LastPing  int64  `json:"last_ping,omitempty"` // Unix timestamp
}

// HealthStatus represents the health check result for an adapter.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	Message   string        `json:"message,omitempty"`
	LastCheck time.Time     `json:"last_check"`
	Degraded  bool          `json:"degraded,omitempty"`
}

// Registry maps a channel name ("telegram") to its outbound transport. Bots
// are all Telegram-style today, but the registry keeps the door open to a
// second transport without touching the Action Executor.
type Registry struct {
	outbound map[string]OutboundAdapter
	health   map[string]HealthAdapter
}

// NewRegistry creates a new channel registry.
func NewRegistry() *Registry {
	return &Registry{
		outbound: make(map[string]OutboundAdapter),
		health:   make(map[string]HealthAdapter),
	}
}

// Register adds a transport under the given channel name.
func (r *Registry) Register(name string, adapter OutboundAdapter) {
	r.outbound[name] = adapter
	if health, ok := adapter.(HealthAdapter); ok {
		r.health[name] = health
	}
}

// Outbound returns the transport registered for a channel name.
func (r *Registry) Outbound(name string) (OutboundAdapter, bool) {
	a, ok := r.outbound[name]
	return a, ok
}

// HealthAdapters returns a copy of registered health adapters.
func (r *Registry) HealthAdapters() map[string]HealthAdapter {
	out := make(map[string]HealthAdapter, len(r.health))
	for name, adapter := range r.health {
		out[name] = adapter
	}
	return out
}
