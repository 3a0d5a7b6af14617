package presence

import (
	"errors"

	"github.com/nerrad567/gray-logic-presence/internal/router"
)

// ErrorKind classifies why an engine could not be set up.
type ErrorKind string

// Setup error kinds.
const (
	KindNone               ErrorKind = ""
	KindConnection         ErrorKind = "connection_error"
	KindConnectionProfiles ErrorKind = "connection_error_profiles"
	KindProfileNotFound    ErrorKind = "profile_not_found"
)

// Status is the outcome of engine setup, decided once in New.
type Status struct {
	OK   bool
	Kind ErrorKind
	Err  error
}

// failed builds a failure status from a setup error.
func failed(err error) Status {
	return Status{Kind: classify(err), Err: err}
}

// classify maps a router error onto an ErrorKind.
// Anything not recognised as a profile problem is a connection problem.
func classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, router.ErrProfileAuthorization):
		return KindConnectionProfiles
	case errors.Is(err, router.ErrProfileNotFound):
		return KindProfileNotFound
	default:
		return KindConnection
	}
}
