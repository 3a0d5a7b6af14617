// Package influxdb provides InfluxDB connectivity for the presence service.
//
// It wraps the official influxdb-client-go v2 library and records presence
// as time series so occupancy patterns can be charted long after the
// in-memory registry has moved on.
//
// Two measurements are written:
//
//	presence  tags: router, mac, name   fields: connected (0/1), ip
//	scan      tags: router, result      fields: hosts, new, devices, connected, duration_ms
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // time series are optional
//	}
//	defer client.Close()
//
//	client.WritePresence(influxdb.DevicePoint{Router: id, MAC: mac, Connected: true, Time: now})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to batch_size and flush_interval; write failures are
// reported through the SetOnError callback.
package influxdb
