package presence

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/gray-logic-presence/internal/router"
)

// topicPrefix namespaces the per-router notification topics.
const topicPrefix = "fritz-"

// ScanResult summarises one scan.
type ScanResult struct {
	// At is the timestamp applied to devices seen online.
	At time.Time

	// Duration is how long the router took to answer plus reconciliation.
	Duration time.Duration

	// Hosts is the number of snapshot entries received.
	Hosts int

	// Skipped counts entries ignored for lacking a MAC address.
	Skipped int

	// New counts records created by this scan.
	New int

	// Devices and Connected describe the registry after the scan.
	Devices   int
	Connected int

	// Err is the snapshot fetch error, if any. The registry is untouched when set.
	Err error

	// Disabled is set when the engine failed setup and did nothing.
	Disabled bool
}

// ScanObserver is told about every scan a healthy engine performs.
// Implementations must not block.
type ScanObserver interface {
	ObserveScan(routerID string, result ScanResult)
}

// Options configures an Engine. The zero value is usable.
type Options struct {
	Logger Logger

	// Clock supplies the time for ScanNow and scan durations.
	// Default: the wall clock.
	Clock clock.Clock

	// Observers receive a ScanResult after each scan.
	Observers []ScanObserver
}

// Engine reconciles a router's host table into a Registry.
//
// Thread Safety: Scan may be called from any goroutine. Concurrent calls
// share a single in-flight scan; scans never overlap.
type Engine struct {
	client router.Client
	status Status

	uniqueID string
	info     router.DeviceInfo

	registry *Registry
	notifier *notifier

	topicNew     string
	topicUpdated string

	clock     clock.Clock
	logger    Logger
	observers []ScanObserver

	group  singleflight.Group
	scanMu sync.Mutex
}

// New authenticates against the router, reads its identity and performs
// one synchronous initial scan.
//
// Setup never returns an error. Failures are classified into Status and
// leave a disabled engine whose scans are no-ops.
//
// Parameters:
//   - ctx: Bounds setup and the initial scan
//   - auth: Opens the router client (e.g. tr064.Authenticate)
//   - cfg: Router address, credentials and profiles
//   - opts: Optional logger, clock and scan observers
//
// Returns:
//   - *Engine: Always non-nil
func New(ctx context.Context, auth router.Authenticator, cfg router.Config, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = discard{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	e := &Engine{
		registry:  newRegistry(),
		notifier:  newNotifier(opts.Logger),
		clock:     opts.Clock,
		logger:    opts.Logger,
		observers: opts.Observers,
	}

	e.status = e.setup(ctx, auth, cfg)
	e.topicNew = topicPrefix + e.uniqueID + "-device-new"
	e.topicUpdated = topicPrefix + e.uniqueID + "-device-update"

	if !e.status.OK {
		e.logger.Error("router setup failed",
			"router", cfg.Host,
			"kind", string(e.status.Kind),
			"error", e.status.Err,
		)
		return e
	}

	e.logger.Info("router connected",
		"router", cfg.Host,
		"unique_id", e.uniqueID,
		"model", e.info.Model,
		"sw_version", e.info.SoftwareVersion,
	)

	e.ScanNow(ctx)
	return e
}

// setup performs the one-time authentication and identity reads.
func (e *Engine) setup(ctx context.Context, auth router.Authenticator, cfg router.Config) Status {
	client, err := auth(ctx, cfg)
	if err != nil {
		return failed(err)
	}

	if pc, ok := client.(router.ProfileChecker); ok && len(cfg.Profiles) > 0 {
		if err := pc.CheckProfiles(ctx, cfg.Profiles); err != nil {
			return failed(err)
		}
	}

	id, err := client.UniqueID(ctx)
	if err != nil {
		return failed(err)
	}
	info, err := client.DeviceInfo(ctx)
	if err != nil {
		return failed(err)
	}

	e.client = client
	e.uniqueID = id
	e.info = info
	return Status{OK: true}
}

// Scan polls the router once and reconciles the snapshot into the registry.
//
// A disabled engine returns immediately without contacting the router or
// notifying anyone. A snapshot fetch error is logged and reported to the
// observers; the registry is left untouched and nobody is notified.
//
// Concurrent callers share one in-flight scan. Cancelling ctx abandons
// only this caller's wait and returns ctx.Err() in the result; the scan
// itself completes for everyone else.
// Otherwise subscribers of TopicDeviceUpdated are signalled, followed by
// subscribers of TopicDeviceNew when the scan created records.
func (e *Engine) Scan(ctx context.Context, now time.Time) ScanResult {
	if !e.status.OK {
		return ScanResult{At: now, Disabled: true}
	}

	// The shared scan outlives any one caller: a caller whose ctx ends only
	// stops waiting. The router client's own timeout bounds the request.
	scanCtx := context.WithoutCancel(ctx)
	ch := e.group.DoChan("scan", func() (any, error) {
		e.scanMu.Lock()
		defer e.scanMu.Unlock()
		return e.scan(scanCtx, now), nil
	})

	select {
	case res := <-ch:
		return res.Val.(ScanResult)
	case <-ctx.Done():
		return ScanResult{At: now, Err: ctx.Err()}
	}
}

// ScanNow scans using the engine clock's current time.
func (e *Engine) ScanNow(ctx context.Context) ScanResult {
	return e.Scan(ctx, e.clock.Now())
}

func (e *Engine) scan(ctx context.Context, now time.Time) ScanResult {
	start := e.clock.Now()
	result := ScanResult{At: now}

	hosts, err := e.client.Hosts(ctx)
	if err != nil {
		result.Err = err
		result.Duration = e.clock.Since(start)
		result.Devices = e.registry.Len()
		result.Connected = e.registry.ConnectedCount()
		e.logger.Warn("router scan failed", "unique_id", e.uniqueID, "error", err)
		e.observe(result)
		return result
	}

	snapshot := make([]Observation, len(hosts))
	for i, h := range hosts {
		snapshot[i] = Observation{MAC: h.MAC, IP: h.IP, Name: h.Name, Online: h.Active}
	}

	result.Hosts = len(hosts)
	result.New, result.Skipped = e.registry.reconcile(snapshot, now)
	result.Devices = e.registry.Len()
	result.Connected = e.registry.ConnectedCount()
	result.Duration = e.clock.Since(start)

	e.logger.Debug("router scan complete",
		"unique_id", e.uniqueID,
		"hosts", result.Hosts,
		"new", result.New,
		"skipped", result.Skipped,
		"connected", result.Connected,
	)
	e.observe(result)

	e.notifier.publish(e.topicUpdated)
	if result.New > 0 {
		e.notifier.publish(e.topicNew)
	}
	return result
}

func (e *Engine) observe(result ScanResult) {
	for _, o := range e.observers {
		o.ObserveScan(e.uniqueID, result)
	}
}

// Subscribe registers fn for topic and returns a function that removes it.
// fn runs synchronously on the scanning goroutine after the registry has
// been updated; it should re-read Devices rather than block.
func (e *Engine) Subscribe(topic string, fn func()) (unsubscribe func()) {
	return e.notifier.subscribe(topic, fn)
}

// SubscribeAsync is like Subscribe but runs fn on a dedicated goroutine
// until ctx is done or the subscription is removed. Signals that arrive while fn is running coalesce into
// one further run.
func (e *Engine) SubscribeAsync(ctx context.Context, topic string, fn func()) (unsubscribe func()) {
	w := e.notifier.async(ctx, topic, fn)
	unsub := e.notifier.subscribe(topic, w.signal)
	return func() {
		unsub()
		w.stop()
	}
}

// UniqueID returns the router's stable identifier, empty if setup failed.
func (e *Engine) UniqueID() string { return e.uniqueID }

// DeviceInfo returns the router's description read during setup.
func (e *Engine) DeviceInfo() router.DeviceInfo { return e.info }

// Devices returns the engine's device registry.
func (e *Engine) Devices() *Registry { return e.registry }

// Status returns the setup outcome.
func (e *Engine) Status() Status { return e.status }

// TopicDeviceNew names the topic signalled when a scan creates records.
func (e *Engine) TopicDeviceNew() string { return e.topicNew }

// TopicDeviceUpdated names the topic signalled after every successful scan.
func (e *Engine) TopicDeviceUpdated() string { return e.topicUpdated }
