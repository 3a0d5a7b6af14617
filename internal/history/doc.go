// Package history keeps a SQLite audit trail of presence transitions.
//
// A Recorder listens to an engine's device-updated signal and writes a row
// whenever a device is first seen, connects or disconnects. Unchanged scans
// write nothing. The trail is read back through Repository.GetHistory for
// the HTTP API; it is never used to rebuild the live registry.
package history
