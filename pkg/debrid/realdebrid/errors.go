package realdebrid

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout        = errors.New("realdebrid: polling budget exhausted")
	ErrNoLinks        = errors.New("realdebrid: no links to unrestrict")
	ErrMissingField   = errors.New("realdebrid: response is missing a required field")
	ErrSelectionStuck = errors.New("realdebrid: torrent never reached file selection")
)

// APIError is a call the service answered with a failure, either through the
// status code or an "error" field in the body.
type APIError struct {
	Endpoint string
	Err      error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("realdebrid %s: %v", e.Endpoint, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// StatusError is a torrent that reached a terminal status other than the one awaited.
type StatusError struct {
	Id     string
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("torrent %s ended with status %q", e.Id, e.Status)
}
