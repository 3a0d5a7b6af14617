// Package router defines the collaborator contract the presence engine polls.
//
// A Client authenticates against a home router, reports a stable identifier
// for it and returns snapshots of the hosts it currently knows about. The
// TR-064 implementation for AVM FRITZ!Box routers lives in package tr064.
//
// Errors are reported through the sentinels in errors.go so callers can
// classify failures with errors.Is without knowing the wire protocol.
package router
