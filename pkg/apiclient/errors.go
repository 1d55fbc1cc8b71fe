package apiclient

import (
	"fmt"
)

// NetworkError is a transport-level failure: the request never produced an
// HTTP response.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error on %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServerError is a non-2xx response.
type ServerError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned %d for %s %s", e.StatusCode, e.Method, e.Path)
}
