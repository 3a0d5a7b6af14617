package tr064

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/icholy/digest"

	"github.com/nerrad567/gray-logic-presence/internal/router"
)

// manufacturer is fixed: TR-064 on this port is only spoken by AVM firmware here.
const manufacturer = "AVM"

// Client is a TR-064 connection to one FRITZ!Box.
//
// Thread Safety: Client holds no mutable state after Dial and may be used
// from multiple goroutines.
type Client struct {
	baseURL string
	http    *http.Client
	info    router.DeviceInfo
	serial  string
}

// Dial connects to the router and verifies the credentials with GetInfo.
//
// Parameters:
//   - ctx: Bounds the verification call
//   - cfg: Router address, credentials and per-request timeout
//
// Returns:
//   - *Client: Ready client with device info cached
//   - error: Wraps router.ErrConnection when the router is unreachable or
//     rejects the credentials
func Dial(ctx context.Context, cfg router.Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = router.DefaultTimeout
	}

	c := &Client{
		baseURL: fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		http: &http.Client{
			Timeout: timeout,
			Transport: &digest.Transport{
				Username: cfg.Username,
				Password: cfg.Password,
			},
		},
	}

	out, err := c.call(ctx, controlDeviceInfo, serviceDeviceInfo, "GetInfo")
	if err != nil {
		if isFault(err, upnpActionNotAuthorized) {
			return nil, fmt.Errorf("%w: GetInfo not authorised", router.ErrConnection)
		}
		return nil, err
	}

	c.serial = out["NewSerialNumber"]
	if c.serial == "" {
		return nil, fmt.Errorf("%w: GetInfo returned no serial number", router.ErrUnexpectedResponse)
	}
	c.info = router.DeviceInfo{
		Name:            out["NewModelName"],
		Manufacturer:    manufacturer,
		Model:           out["NewModelName"],
		SoftwareVersion: out["NewSoftwareVersion"],
	}

	return c, nil
}

// Authenticate adapts Dial to router.Authenticator.
func Authenticate(ctx context.Context, cfg router.Config) (router.Client, error) {
	c, err := Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UniqueID returns the router's serial number.
func (c *Client) UniqueID(_ context.Context) (string, error) {
	return c.serial, nil
}

// DeviceInfo returns the model and firmware read during Dial.
func (c *Client) DeviceInfo(_ context.Context) (router.DeviceInfo, error) {
	return c.info, nil
}

// Hosts walks the router's host table entry by entry.
func (c *Client) Hosts(ctx context.Context) ([]router.Host, error) {
	out, err := c.call(ctx, controlHosts, serviceHosts, "GetHostNumberOfEntries")
	if err != nil {
		return nil, err
	}

	n, err := strconv.Atoi(out["NewHostNumberOfEntries"])
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: invalid host count %q", router.ErrUnexpectedResponse, out["NewHostNumberOfEntries"])
	}

	hosts := make([]router.Host, 0, n)
	for i := range n {
		entry, err := c.call(ctx, controlHosts, serviceHosts, "GetGenericHostEntry",
			arg{Name: "NewIndex", Value: strconv.Itoa(i)})
		if err != nil {
			return nil, fmt.Errorf("reading host entry %d: %w", i, err)
		}
		hosts = append(hosts, router.Host{
			MAC:    entry["NewMACAddress"],
			IP:     entry["NewIPAddress"],
			Name:   entry["NewHostName"],
			Active: entry["NewActive"] == "1",
		})
	}

	return hosts, nil
}
