// Package tracker publishes presence to MQTT as device trackers.
//
// For every device it keeps two retained messages:
//
//	presence/{router}/device/{mac}/config   discovery, published once per device
//	presence/{router}/device/{mac}/state    current state, republished every scan
//
// State payloads report "home" or "not_home" the way home automation device
// trackers expect. Consumers can ask for an immediate scan by publishing
// anything to presence/{router}/command/scan.
package tracker
