// Package timeseries feeds presence into a time-series database.
//
// A Recorder writes one scan point per scan (as a presence.ScanObserver)
// and one presence point per device after every successful scan.
package timeseries

import (
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-presence/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-presence/internal/presence"
)

// Writer is the part of influxdb.Client the Recorder uses.
type Writer interface {
	WritePresence(p influxdb.DevicePoint)
	WriteScan(p influxdb.ScanPoint)
}

// Source is the part of presence.Engine the Recorder listens to.
type Source interface {
	UniqueID() string
	Devices() *presence.Registry
	TopicDeviceUpdated() string
	Subscribe(topic string, fn func()) (unsubscribe func())
}

// Recorder translates presence into influxdb points.
// Writes are non-blocking, so it subscribes synchronously.
type Recorder struct {
	w   Writer
	now func() time.Time

	// lastScan is the At of the latest successful scan. The engine observes
	// a scan before signalling device-updated, so device points written on
	// that signal share the scan point's timestamp.
	mu       sync.Mutex
	lastScan time.Time
}

// NewRecorder creates a recorder writing to w.
func NewRecorder(w Writer) *Recorder {
	return &Recorder{w: w, now: time.Now}
}

// ObserveScan implements presence.ScanObserver.
func (r *Recorder) ObserveScan(routerID string, res presence.ScanResult) {
	if res.Disabled {
		return
	}
	if res.Err == nil {
		r.mu.Lock()
		r.lastScan = res.At
		r.mu.Unlock()
	}
	r.w.WriteScan(influxdb.ScanPoint{
		Router:    routerID,
		Failed:    res.Err != nil,
		Hosts:     res.Hosts,
		New:       res.New,
		Devices:   res.Devices,
		Connected: res.Connected,
		Duration:  res.Duration,
		Time:      res.At,
	})
}

// Attach writes device points after every device-updated signal.
func (r *Recorder) Attach(src Source) (detach func()) {
	return src.Subscribe(src.TopicDeviceUpdated(), func() {
		r.WriteDevices(src)
	})
}

// WriteDevices writes the current state of every device in src, stamped
// with the latest scan time, or the current time before any scan.
func (r *Recorder) WriteDevices(src Source) {
	r.mu.Lock()
	at := r.lastScan
	r.mu.Unlock()
	if at.IsZero() {
		at = r.now()
	}

	routerID := src.UniqueID()
	for _, rec := range src.Devices().All() {
		r.w.WritePresence(influxdb.DevicePoint{
			Router:    routerID,
			MAC:       rec.MAC,
			Name:      rec.Name,
			IP:        rec.IP,
			Connected: rec.Connected,
			Time:      at,
		})
	}
}
