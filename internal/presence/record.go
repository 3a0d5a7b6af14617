package presence

import (
	"strings"
	"time"
)

// Icons reflecting a record's connectivity.
const (
	IconConnected    = "mdi:lan-connect"
	IconDisconnected = "mdi:lan-disconnect"
)

// Observation is one entry of a router host snapshot.
type Observation struct {
	MAC    string
	IP     string
	Name   string
	Online bool
}

// Record is the tracked state of one device, keyed by MAC address.
//
// Invariants:
//   - MAC never changes after creation
//   - Name never changes once non-empty
//   - IP is non-empty only while Connected
type Record struct {
	MAC       string `json:"mac"`
	Name      string `json:"name"`
	IP        string `json:"ip_address,omitempty"`
	Connected bool   `json:"connected"`

	// LastActivity is when the device was last seen online.
	// Zero if it has never been seen online.
	LastActivity time.Time `json:"last_time_reachable"`

	Icon string `json:"icon"`
}

// NewRecord creates an unnamed, disconnected record for mac.
func NewRecord(mac string) *Record {
	return &Record{MAC: mac, Icon: IconDisconnected}
}

// Apply folds an observation of the same device into the record.
// The caller guarantees obs.MAC equals r.MAC.
func (r *Record) Apply(obs Observation, now time.Time) {
	if r.Name == "" {
		if obs.Name != "" {
			r.Name = obs.Name
		} else {
			r.Name = PlaceholderName(r.MAC)
		}
	}

	if !obs.Online {
		r.Connected = false
		r.IP = ""
		r.Icon = IconDisconnected
		return
	}

	r.Connected = true
	r.IP = obs.IP
	r.LastActivity = now
	r.Icon = IconConnected
}

// PlaceholderName derives a display name from a MAC address,
// e.g. "AA_BB_CC_DD_EE_FF" for "AA:BB:CC:DD:EE:FF".
func PlaceholderName(mac string) string {
	return strings.ReplaceAll(mac, ":", "_")
}
