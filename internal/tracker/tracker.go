package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-presence/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-presence/internal/presence"
	"github.com/nerrad567/gray-logic-presence/internal/router"
)

// Logger defines the logging interface used by the Tracker.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Publisher is the part of mqtt.Client the Tracker uses.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Source is the part of presence.Engine the Tracker uses.
type Source interface {
	UniqueID() string
	DeviceInfo() router.DeviceInfo
	Devices() *presence.Registry
	TopicDeviceNew() string
	TopicDeviceUpdated() string
	SubscribeAsync(ctx context.Context, topic string, fn func()) (unsubscribe func())
	ScanNow(ctx context.Context) presence.ScanResult
}

// Tracker mirrors one engine's registry onto MQTT.
//
// Thread Safety: announce and publish may run concurrently from the two
// subscriptions; the tracked set is guarded by mu.
type Tracker struct {
	pub    Publisher
	src    Source
	logger Logger
	topics mqtt.Topics

	mu      sync.Mutex
	tracked map[string]bool
}

// New creates a tracker for src publishing through pub.
func New(pub Publisher, src Source, logger Logger) *Tracker {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Tracker{
		pub:     pub,
		src:     src,
		logger:  logger,
		tracked: make(map[string]bool),
	}
}

// Attach announces and publishes the devices already known, then follows
// the engine's signals and the scan request topic until ctx is done or
// detach is called.
func (t *Tracker) Attach(ctx context.Context) (detach func(), err error) {
	t.Announce()
	t.PublishStates()

	unsubNew := t.src.SubscribeAsync(ctx, t.src.TopicDeviceNew(), func() { t.Announce() })
	unsubUpdated := t.src.SubscribeAsync(ctx, t.src.TopicDeviceUpdated(), func() { t.PublishStates() })

	scanTopic := t.topics.ScanRequest(t.src.UniqueID())
	err = t.pub.Subscribe(scanTopic, 1, func(string, []byte) error {
		// Scans can take a while; keep the MQTT dispatcher free.
		go t.src.ScanNow(ctx)
		return nil
	})
	if err != nil {
		unsubNew()
		unsubUpdated()
		return nil, fmt.Errorf("subscribing to scan requests: %w", err)
	}

	return func() {
		unsubNew()
		unsubUpdated()
		if err := t.pub.Unsubscribe(scanTopic); err != nil {
			t.logger.Warn("unsubscribing scan requests failed", "error", err)
		}
	}, nil
}

// Announce publishes discovery for every device not yet announced and
// returns the MACs it announced.
func (t *Tracker) Announce() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	routerID := t.src.UniqueID()
	info := t.src.DeviceInfo()

	var announced []string
	for _, rec := range t.src.Devices().All() {
		if t.tracked[rec.MAC] {
			continue
		}
		stateTopic := t.topics.DeviceState(routerID, rec.MAC)
		payload := discoveryFor(routerID, info, rec, stateTopic)
		if err := t.pub.PublishJSON(t.topics.DeviceConfig(routerID, rec.MAC), payload, true); err != nil {
			t.logger.Warn("publishing discovery failed", "mac", rec.MAC, "error", err)
			continue
		}
		t.tracked[rec.MAC] = true
		announced = append(announced, rec.MAC)
	}

	if len(announced) > 0 {
		sort.Strings(announced)
		event := NewDevicesEvent{MACs: announced, At: time.Now().UTC().Format(time.RFC3339)}
		if err := t.pub.PublishJSON(t.topics.Event(routerID, "device_new"), event, false); err != nil {
			t.logger.Warn("publishing device_new event failed", "error", err)
		}
		t.logger.Info("announced new devices", "count", len(announced))
	}
	return announced
}

// PublishStates publishes the retained state of every device and returns
// how many were published.
func (t *Tracker) PublishStates() int {
	routerID := t.src.UniqueID()

	published := 0
	for _, rec := range t.src.Devices().All() {
		if err := t.pub.PublishJSON(t.topics.DeviceState(routerID, rec.MAC), stateFor(rec), true); err != nil {
			t.logger.Warn("publishing device state failed", "mac", rec.MAC, "error", err)
			continue
		}
		published++
	}
	return published
}

// Tracked reports whether mac has been announced.
func (t *Tracker) Tracked(mac string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracked[mac]
}
