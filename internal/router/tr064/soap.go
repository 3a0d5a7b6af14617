package tr064

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nerrad567/gray-logic-presence/internal/router"
)

// Service types and control URLs used by this client.
const (
	serviceDeviceInfo = "urn:dslforum-org:service:DeviceInfo:1"
	serviceHosts      = "urn:dslforum-org:service:Hosts:1"

	controlDeviceInfo = "/upnp/control/deviceinfo"
	controlHosts      = "/upnp/control/hosts"
)

// UPnP error codes with a specific meaning to callers.
const (
	upnpActionNotAuthorized = 606
)

// maxResponseSize caps how much of a SOAP response is read.
const maxResponseSize = 1 << 20

// arg is one named SOAP input argument. Order matters to some firmwares.
type arg struct {
	Name  string
	Value string
}

// envelope is the subset of a SOAP response this client understands.
type envelope struct {
	Body struct {
		Fault    *soapFault   `xml:"Fault"`
		Response responseBody `xml:",any"`
	} `xml:"Body"`
}

type responseBody struct {
	XMLName xml.Name
	Args    []responseArg `xml:",any"`
}

type responseArg struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
	Detail struct {
		UPnPError struct {
			ErrorCode        int    `xml:"errorCode"`
			ErrorDescription string `xml:"errorDescription"`
		} `xml:"UPnPError"`
	} `xml:"detail"`
}

// FaultError is returned when the router answers an action with a UPnP fault.
type FaultError struct {
	Action      string
	Code        int
	Description string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("tr064: %s failed with UPnP error %d (%s)", e.Action, e.Code, e.Description)
}

// Unwrap maps the fault code onto the router error taxonomy.
func (e *FaultError) Unwrap() error {
	if e.Code == upnpActionNotAuthorized {
		return router.ErrProfileAuthorization
	}
	return router.ErrUnexpectedResponse
}

// call invokes a SOAP action and returns its output arguments by name.
func (c *Client) call(ctx context.Context, controlURL, service, action string, args ...arg) (map[string]string, error) {
	body := buildEnvelope(service, action, args)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+controlURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SoapAction", service+"#"+action)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", router.ErrConnection, action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %w", router.ErrConnection, action, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s: HTTP %d", router.ErrConnection, action, resp.StatusCode)
	}

	var env envelope
	if err := xml.Unmarshal(data, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: %s: HTTP %d", router.ErrUnexpectedResponse, action, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: decoding %s response: %w", router.ErrUnexpectedResponse, action, err)
	}

	if f := env.Body.Fault; f != nil {
		return nil, &FaultError{
			Action:      action,
			Code:        f.Detail.UPnPError.ErrorCode,
			Description: f.Detail.UPnPError.ErrorDescription,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: HTTP %d", router.ErrUnexpectedResponse, action, resp.StatusCode)
	}
	if env.Body.Response.XMLName.Local != action+"Response" {
		return nil, fmt.Errorf("%w: %s: got element %q", router.ErrUnexpectedResponse, action, env.Body.Response.XMLName.Local)
	}

	out := make(map[string]string, len(env.Body.Response.Args))
	for _, a := range env.Body.Response.Args {
		out[a.XMLName.Local] = strings.TrimSpace(a.Value)
	}
	return out, nil
}

// buildEnvelope renders a SOAP 1.1 request envelope.
func buildEnvelope(service, action string, args []arg) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	b.WriteString(`<s:Body><u:`)
	b.WriteString(action)
	b.WriteString(` xmlns:u="`)
	b.WriteString(service)
	b.WriteString(`">`)
	for _, a := range args {
		b.WriteString("<" + a.Name + ">")
		xml.EscapeText(&b, []byte(a.Value)) //nolint:errcheck // bytes.Buffer writes never fail
		b.WriteString("</" + a.Name + ">")
	}
	b.WriteString(`</u:`)
	b.WriteString(action)
	b.WriteString(`></s:Body></s:Envelope>`)
	return b.Bytes()
}

// isFault reports whether err is a UPnP fault with the given code.
func isFault(err error, code int) bool {
	var f *FaultError
	return errors.As(err, &f) && f.Code == code
}
