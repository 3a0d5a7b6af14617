package presence

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultScanInterval is the time between scheduled scans.
const DefaultScanInterval = 30 * time.Second

// Scanner is the part of Engine the Scheduler drives.
type Scanner interface {
	Scan(ctx context.Context, now time.Time) ScanResult
}

// SchedulerOptions configures a Scheduler. The zero value is usable.
type SchedulerOptions struct {
	Logger Logger

	// Clock drives the ticker. Default: the wall clock.
	Clock clock.Clock
}

// Scheduler calls Scan on a fixed interval.
//
// Scans run on the scheduler goroutine. A tick that fires while a scan is
// still running is dropped, so a slow router never builds a backlog.
type Scheduler struct {
	scanner  Scanner
	interval time.Duration
	clock    clock.Clock
	logger   Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler for scanner. A non-positive interval
// means DefaultScanInterval.
func NewScheduler(scanner Scanner, interval time.Duration, opts SchedulerOptions) *Scheduler {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	if opts.Logger == nil {
		opts.Logger = discard{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Scheduler{
		scanner:  scanner,
		interval: interval,
		clock:    opts.Clock,
		logger:   opts.Logger,
		done:     make(chan struct{}),
	}
}

// Start begins the scan loop. It returns immediately; the loop ends on
// Stop or when ctx is cancelled. Start must be called at most once.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := s.clock.Ticker(s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		s.loop(ctx, ticker.C)
	}()

	s.logger.Info("presence scheduler started", "interval", s.interval.String())
}

func (s *Scheduler) loop(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case now := <-ticks:
			s.scanner.Scan(ctx, now)
		}
	}
}

// Stop ends the scan loop and waits for an in-flight scan to finish.
// It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}
