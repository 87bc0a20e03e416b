package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMagnet   = errors.New("invalid magnet link")
	ErrNoLinks         = errors.New("torrent has no links")
	ErrAllLinksFailed  = errors.New("no link could be resolved")
	ErrDownloadsFailed = errors.New("downloads failed")
)

// PhaseError is the failure that moved a run to Failed.
type PhaseError struct {
	State State
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
