// Package tr064 implements router.Client for AVM FRITZ!Box routers over TR-064.
//
// TR-064 is a SOAP-over-HTTP management protocol. This package speaks just
// enough of it to poll presence:
//   - DeviceInfo:1 GetInfo for the serial number, model and firmware
//   - Hosts:1 GetHostNumberOfEntries and GetGenericHostEntry for the host table
//
// HTTP digest authentication is handled by github.com/icholy/digest.
//
// Usage:
//
//	client, err := tr064.Dial(ctx, router.Config{
//	    Host:     "192.168.178.1",
//	    Port:     49000,
//	    Username: "presence",
//	    Password: secret,
//	})
//	if err != nil {
//	    return err // wraps router.ErrConnection
//	}
//	hosts, err := client.Hosts(ctx)
package tr064
