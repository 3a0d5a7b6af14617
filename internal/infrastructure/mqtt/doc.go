// Package mqtt provides MQTT client connectivity for the presence service.
//
// Presence state leaves the process over MQTT so home automation systems can
// consume it without polling the HTTP API. This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS guarantees, including retained device state
//   - Subscriptions with wildcard support, restored after reconnect
//   - Last Will and Testament (LWT) so consumers notice a crashed service
//
// # Topic layout
//
//	presence/system/status                     service online/offline (retained, LWT)
//	presence/{router}/device/{mac}/state       device presence (retained JSON)
//	presence/{router}/device/{mac}/config      discovery announcement (retained JSON)
//	presence/{router}/event/{name}             scan events (not retained)
//
// MAC addresses are written with colons replaced by underscores so every
// topic level is a plain token.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceState(routerID, "AA:BB:CC:DD:EE:FF")
//	err = client.PublishJSON(topic, state, true)
package mqtt
