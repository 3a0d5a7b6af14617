package router

import (
	"context"
	"strings"
	"time"
)

// DefaultTimeout bounds every router request unless Config.Timeout says otherwise.
// Some router calls take tens of seconds on busy networks.
const DefaultTimeout = 60 * time.Second

// modelPrefix is stripped by DeviceInfo.ShortModel.
const modelPrefix = "FRITZ!Box "

// Host is one entry of a router's host table.
type Host struct {
	MAC    string
	IP     string
	Name   string
	Active bool
}

// DeviceInfo describes the router itself.
type DeviceInfo struct {
	Name            string `json:"name"`
	Manufacturer    string `json:"manufacturer"`
	Model           string `json:"model"`
	SoftwareVersion string `json:"sw_version"`
}

// ShortModel returns the model without the vendor product-line prefix,
// e.g. "7590" for "FRITZ!Box 7590".
func (d DeviceInfo) ShortModel() string {
	return strings.TrimPrefix(d.Model, modelPrefix)
}

// Config holds what a client needs to reach and log in to a router.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// Profiles are parental-control profile names to validate at setup.
	Profiles []string

	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Client is an authenticated connection to a router.
//
// Implementations must be safe for sequential use from one goroutine; the
// presence engine never issues concurrent calls.
type Client interface {
	// UniqueID returns a stable identifier for the router, typically its serial number.
	UniqueID(ctx context.Context) (string, error)

	// DeviceInfo returns descriptive information about the router.
	DeviceInfo(ctx context.Context) (DeviceInfo, error)

	// Hosts returns the router's current host table in router order.
	Hosts(ctx context.Context) ([]Host, error)
}

// ProfileChecker is implemented by clients that can validate parental-control
// profile names. It returns ErrProfileAuthorization or ErrProfileNotFound.
type ProfileChecker interface {
	CheckProfiles(ctx context.Context, names []string) error
}

// Authenticator opens an authenticated Client. It returns ErrConnection when
// the router is unreachable or the credentials are rejected.
type Authenticator func(ctx context.Context, cfg Config) (Client, error)
