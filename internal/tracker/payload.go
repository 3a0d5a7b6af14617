package tracker

import (
	"time"

	"github.com/nerrad567/gray-logic-presence/internal/presence"
	"github.com/nerrad567/gray-logic-presence/internal/router"
)

// Tracker state values.
const (
	StateHome    = "home"
	StateNotHome = "not_home"

	// sourceType marks these trackers as router-based.
	sourceType = "router"
)

// State is the retained state payload of one device.
type State struct {
	MAC               string `json:"mac"`
	Name              string `json:"name"`
	IPAddress         string `json:"ip_address,omitempty"`
	Connected         bool   `json:"connected"`
	State             string `json:"state"`
	LastTimeReachable string `json:"last_time_reachable,omitempty"`
	Icon              string `json:"icon"`
	SourceType        string `json:"source_type"`
}

// Discovery announces a device to consumers that build entities from MQTT.
type Discovery struct {
	UniqueID   string       `json:"unique_id"`
	Name       string       `json:"name"`
	StateTopic string       `json:"state_topic"`
	SourceType string       `json:"source_type"`
	Device     DeviceDetail `json:"device"`
}

// DeviceDetail describes the router a tracker belongs to.
type DeviceDetail struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version"`
}

// NewDevicesEvent lists the MACs announced by one device-new signal.
type NewDevicesEvent struct {
	MACs []string `json:"macs"`
	At   string   `json:"at"`
}

// stateFor renders a record as a state payload.
func stateFor(rec presence.Record) State {
	s := State{
		MAC:        rec.MAC,
		Name:       rec.Name,
		IPAddress:  rec.IP,
		Connected:  rec.Connected,
		State:      StateNotHome,
		Icon:       rec.Icon,
		SourceType: sourceType,
	}
	if rec.Connected {
		s.State = StateHome
	}
	if !rec.LastActivity.IsZero() {
		s.LastTimeReachable = rec.LastActivity.UTC().Truncate(time.Second).Format(time.RFC3339)
	}
	return s
}

// discoveryFor renders the discovery payload of a record.
func discoveryFor(routerID string, info router.DeviceInfo, rec presence.Record, stateTopic string) Discovery {
	return Discovery{
		UniqueID:   rec.MAC,
		Name:       rec.Name,
		StateTopic: stateTopic,
		SourceType: sourceType,
		Device: DeviceDetail{
			Identifiers:  []string{routerID},
			Name:         info.Name,
			Manufacturer: info.Manufacturer,
			Model:        info.Model,
			SWVersion:    info.SoftwareVersion,
		},
	}
}
