package timeseries

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/gray-logic-presence/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-presence/internal/presence"
	"github.com/nerrad567/gray-logic-presence/internal/router"
)

// fakeWriter collects points.
type fakeWriter struct {
	mu      sync.Mutex
	devices []influxdb.DevicePoint
	scans   []influxdb.ScanPoint
}

func (f *fakeWriter) WritePresence(p influxdb.DevicePoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, p)
}

func (f *fakeWriter) WriteScan(p influxdb.ScanPoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, p)
}

type staticRouter struct {
	hosts []router.Host
	err   error
}

func (s *staticRouter) UniqueID(context.Context) (string, error) { return "SER1", nil }
func (s *staticRouter) DeviceInfo(context.Context) (router.DeviceInfo, error) {
	return router.DeviceInfo{}, nil
}
func (s *staticRouter) Hosts(context.Context) ([]router.Host, error) { return s.hosts, s.err }

func TestRecorder(t *testing.T) {
	w := &fakeWriter{}
	rec := NewRecorder(w)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewMock()
	clk.Set(fixed)
	rec.now = func() time.Time { return fixed.Add(time.Hour) }

	r := &staticRouter{hosts: []router.Host{
		{MAC: "AA:BB", IP: "10.0.0.5", Name: "Phone", Active: true},
		{MAC: "CC:DD", Name: "Laptop", Active: false},
	}}
	auth := func(context.Context, router.Config) (router.Client, error) { return r, nil }

	engine := presence.New(context.Background(), auth, router.Config{},
		presence.Options{Clock: clk, Observers: []presence.ScanObserver{rec}})
	detach := rec.Attach(engine)
	defer detach()

	// The initial scan in New is observed but happened before Attach.
	if len(w.scans) != 1 || len(w.devices) != 0 {
		t.Fatalf("after New: scans=%d devices=%d, want 1 and 0", len(w.scans), len(w.devices))
	}

	engine.ScanNow(context.Background())

	if len(w.scans) != 2 {
		t.Errorf("scans = %d, want 2", len(w.scans))
	}
	if len(w.devices) != 2 {
		t.Fatalf("device points = %d, want 2", len(w.devices))
	}

	phone := w.devices[0]
	if phone.Router != "SER1" || phone.MAC != "AA:BB" || !phone.Connected || phone.IP != "10.0.0.5" || !phone.Time.Equal(fixed) {
		t.Errorf("phone point = %+v", phone)
	}
	if w.devices[1].Connected {
		t.Errorf("laptop point = %+v, want disconnected", w.devices[1])
	}

	s := w.scans[1]
	if s.Router != "SER1" || s.Hosts != 2 || s.Devices != 2 || s.Connected != 1 || s.Failed {
		t.Errorf("scan point = %+v", s)
	}
	for _, d := range w.devices {
		if !d.Time.Equal(s.Time) {
			t.Errorf("device point %s at %v, scan point at %v", d.MAC, d.Time, s.Time)
		}
	}
}

func TestRecorder_DevicePointsUseScanTime(t *testing.T) {
	w := &fakeWriter{}
	rec := NewRecorder(w)
	wall := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return wall }

	r := &staticRouter{hosts: []router.Host{{MAC: "AA:BB", Active: true}}}
	auth := func(context.Context, router.Config) (router.Client, error) { return r, nil }
	engine := presence.New(context.Background(), auth, router.Config{}, presence.Options{})

	// Before any observed scan the wall clock is used.
	rec.WriteDevices(engine)
	if len(w.devices) != 1 || !w.devices[0].Time.Equal(wall) {
		t.Fatalf("device points = %+v, want one at %v", w.devices, wall)
	}

	scanAt := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	rec.ObserveScan("SER1", presence.ScanResult{At: scanAt, Hosts: 1})
	rec.ObserveScan("SER1", presence.ScanResult{At: wall, Err: errors.New("timeout")})
	rec.WriteDevices(engine)

	if got := w.devices[1].Time; !got.Equal(scanAt) {
		t.Errorf("device point time = %v, want last successful scan %v", got, scanAt)
	}
}

func TestRecorder_FailedScan(t *testing.T) {
	w := &fakeWriter{}
	rec := NewRecorder(w)

	rec.ObserveScan("SER1", presence.ScanResult{Err: errors.New("timeout")})
	rec.ObserveScan("SER1", presence.ScanResult{Disabled: true})

	if len(w.scans) != 1 || !w.scans[0].Failed {
		t.Errorf("scans = %+v, want one failed point", w.scans)
	}
}
