package history

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-presence/internal/presence"
)

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Source is the part of presence.Engine the Recorder listens to.
type Source interface {
	UniqueID() string
	Devices() *presence.Registry
	TopicDeviceUpdated() string
	SubscribeAsync(ctx context.Context, topic string, fn func()) (unsubscribe func())
}

// Recorder writes a history row whenever a device's connectivity changes.
//
// It remembers the last connectivity it wrote per MAC for the lifetime of
// the process, so the first scan after a restart records every device as
// first_seen.
type Recorder struct {
	repo   Repository
	src    Source
	logger Logger
	now    func() time.Time

	mu   sync.Mutex
	last map[string]bool
}

// NewRecorder creates a recorder writing transitions from src into repo.
func NewRecorder(repo Repository, src Source, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		src:    src,
		logger: logger,
		now:    time.Now,
		last:   make(map[string]bool),
	}
}

// Attach records the registry as it stands and then follows every
// device-updated signal until ctx is done or the returned function is called.
func (r *Recorder) Attach(ctx context.Context) (detach func()) {
	r.Sync(ctx)
	return r.src.SubscribeAsync(ctx, r.src.TopicDeviceUpdated(), func() {
		r.Sync(ctx)
	})
}

// Sync compares the registry against the last recorded state and writes
// a row for each transition. It returns the number of rows written.
// A failed write is logged and retried on the next Sync.
func (r *Recorder) Sync(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	routerID := r.src.UniqueID()
	written := 0

	for _, rec := range r.src.Devices().All() {
		prev, seen := r.last[rec.MAC]
		if seen && prev == rec.Connected {
			continue
		}

		event := EventFirstSeen
		switch {
		case !seen:
		case rec.Connected:
			event = EventConnected
		default:
			event = EventDisconnected
		}

		observed := r.now()
		if rec.Connected && !rec.LastActivity.IsZero() {
			observed = rec.LastActivity
		}

		err := r.repo.Record(ctx, Entry{
			RouterID:   routerID,
			MAC:        rec.MAC,
			Name:       rec.Name,
			IP:         rec.IP,
			Connected:  rec.Connected,
			Event:      event,
			ObservedAt: observed,
		})
		if err != nil {
			r.logger.Warn("recording presence history failed", "mac", rec.MAC, "error", err)
			continue
		}

		r.last[rec.MAC] = rec.Connected
		written++
	}

	if written > 0 {
		r.logger.Debug("presence history recorded", "rows", written)
	}
	return written
}
