package history

import (
	"context"
	"time"
)

// Event values describing why a row was written.
const (
	EventFirstSeen    = "first_seen"
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
)

// Entry is one recorded presence transition.
type Entry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	RouterID  string `json:"router_id"`
	MAC       string `json:"mac"`
	Name      string `json:"name"`
	IP        string `json:"ip_address,omitempty"`
	Connected bool   `json:"connected"`

	// Event is one of EventFirstSeen, EventConnected or EventDisconnected.
	Event string `json:"event"`

	// ObservedAt is the scan time of the transition (UTC).
	ObservedAt time.Time `json:"observed_at"`
}

// Repository stores and retrieves presence transitions.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// Record inserts one transition.
	Record(ctx context.Context, entry Entry) error

	// GetHistory returns the most recent transitions for mac, newest first.
	// limit defaults to 50 and is clamped to 200.
	GetHistory(ctx context.Context, mac string, limit int) ([]Entry, error)
}
