package request

import "fmt"

// HTTPError is a failed call: a status >= 400 or a body with an "error" field.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NetworkError is a transport-level failure after retries were exhausted.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

var ErrUnauthorized = &HTTPError{
	StatusCode: 401,
	Message:    "bad token (expired, invalid)",
	Code:       "bad_token",
}

// Is matches on status code so callers can use errors.Is(err, ErrUnauthorized).
func (e *HTTPError) Is(target error) bool {
	t, ok := target.(*HTTPError)
	return ok && t.StatusCode == e.StatusCode
}
