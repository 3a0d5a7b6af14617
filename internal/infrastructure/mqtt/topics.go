package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the presence service.
const (
	// TopicPrefix is the root of every presence topic.
	TopicPrefix = "presence"

	// TopicPrefixSystem is the base for service-level topics.
	TopicPrefixSystem = "presence/system"
)

// Topics provides builders for presence MQTT topics.
// Using these helpers keeps topic naming consistent between publishers and
// the subscription patterns consumers use.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("8F2A11", "AA:BB:CC:DD:EE:FF")
//	// Returns: "presence/8F2A11/device/AA_BB_CC_DD_EE_FF/state"
type Topics struct{}

// topicToken makes s safe for use as a single topic level.
// Colons, slashes and wildcard characters become underscores.
func topicToken(s string) string {
	return strings.NewReplacer(":", "_", "/", "_", "+", "_", "#", "_").Replace(s)
}

// DeviceState returns the retained state topic for one device.
//
// Example: presence/8F2A11/device/AA_BB_CC_DD_EE_FF/state
func (Topics) DeviceState(routerID, mac string) string {
	return fmt.Sprintf("%s/%s/device/%s/state", TopicPrefix, topicToken(routerID), topicToken(mac))
}

// DeviceConfig returns the retained discovery topic for one device.
//
// Example: presence/8F2A11/device/AA_BB_CC_DD_EE_FF/config
func (Topics) DeviceConfig(routerID, mac string) string {
	return fmt.Sprintf("%s/%s/device/%s/config", TopicPrefix, topicToken(routerID), topicToken(mac))
}

// Event returns the topic for router-level events such as completed scans.
//
// Example: presence/8F2A11/event/scan
func (Topics) Event(routerID, name string) string {
	return fmt.Sprintf("%s/%s/event/%s", TopicPrefix, topicToken(routerID), topicToken(name))
}

// ScanRequest returns the topic consumers publish to when they want an
// immediate scan instead of waiting for the next tick.
//
// Example: presence/8F2A11/command/scan
func (Topics) ScanRequest(routerID string) string {
	return fmt.Sprintf("%s/%s/command/scan", TopicPrefix, topicToken(routerID))
}

// SystemStatus returns the service status topic carrying the LWT.
//
// Example: presence/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllDeviceStates returns a pattern matching every device state of a router.
//
// Pattern: presence/8F2A11/device/+/state
func (Topics) AllDeviceStates(routerID string) string {
	return fmt.Sprintf("%s/%s/device/+/state", TopicPrefix, topicToken(routerID))
}

// AllTopics returns a pattern matching all presence topics.
//
// Pattern: presence/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
