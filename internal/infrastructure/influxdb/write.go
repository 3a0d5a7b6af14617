package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementPresence = "presence"
	measurementScan     = "scan"
)

// DevicePoint is one device's presence at a point in time.
type DevicePoint struct {
	Router    string
	MAC       string
	Name      string
	IP        string
	Connected bool
	Time      time.Time
}

// ScanPoint summarises one router scan.
type ScanPoint struct {
	Router    string
	Failed    bool
	Hosts     int
	New       int
	Devices   int
	Connected int
	Duration  time.Duration
	Time      time.Time
}

// WritePresence records a device's connectivity.
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WritePresence(p DevicePoint) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(presencePoint(p))
}

// WriteScan records the outcome of a scan.
func (c *Client) WriteScan(p ScanPoint) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(scanPoint(p))
}

func presencePoint(p DevicePoint) *write.Point {
	connected := 0
	if p.Connected {
		connected = 1
	}
	fields := map[string]interface{}{
		"connected": connected,
	}
	if p.IP != "" {
		fields["ip"] = p.IP
	}

	tags := map[string]string{
		"router": p.Router,
		"mac":    p.MAC,
	}
	// Empty tag values are not valid line protocol.
	if p.Name != "" {
		tags["name"] = p.Name
	}

	return write.NewPoint(measurementPresence, tags, fields, p.Time)
}

func scanPoint(p ScanPoint) *write.Point {
	result := "ok"
	if p.Failed {
		result = "error"
	}

	return write.NewPoint(
		measurementScan,
		map[string]string{
			"router": p.Router,
			"result": result,
		},
		map[string]interface{}{
			"hosts":       p.Hosts,
			"new":         p.New,
			"devices":     p.Devices,
			"connected":   p.Connected,
			"duration_ms": float64(p.Duration) / float64(time.Millisecond),
		},
		p.Time,
	)
}
