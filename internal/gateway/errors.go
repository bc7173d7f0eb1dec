package gateway

import "fmt"

// APIError is a non-2xx answer from the clinic API. Message holds the
// server-supplied text when the body carried one.
type APIError struct {
	Call       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway: %s returned %d: %s", e.Call, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway: %s returned %d", e.Call, e.StatusCode)
}

// TransportError is a network or decoding failure; the call never produced
// a usable answer.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
