package router

import "errors"

// Domain errors for router communication.
var (
	// ErrConnection means the router was unreachable or rejected the credentials.
	ErrConnection = errors.New("router: connection failed")

	// ErrProfileAuthorization means the credentials are valid but lack the
	// rights needed to read parental-control profiles.
	ErrProfileAuthorization = errors.New("router: not authorised for profiles")

	// ErrProfileNotFound means a configured profile name does not exist on the router.
	ErrProfileNotFound = errors.New("router: profile not found")

	// ErrUnexpectedResponse means the router answered with something unparsable.
	ErrUnexpectedResponse = errors.New("router: unexpected response")
)
