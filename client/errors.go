package client

import (
	"errors"
	"fmt"
)

// BadResponseCodeError is returned when the API answers with a status code
// outside the accepted set (200, 201, 204).
type BadResponseCodeError struct {
	StatusCode int
	Body       string
}

func (e *BadResponseCodeError) Error() string {
	return fmt.Sprintf("invalid API client response (status_code=%d, data=%s)", e.StatusCode, e.Body)
}

// ClientError is returned when the request never produced a response.
type ClientError struct {
	Msg     string
	Err     error
	timeout bool
}

func (e *ClientError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

// IsTimeout reports whether the request failed because the transport timed out.
func (e *ClientError) IsTimeout() bool { return e.timeout }

func newTimeoutError(err error) *ClientError {
	return &ClientError{Msg: "connect timeout", Err: err, timeout: true}
}

func newRequestError(err error) *ClientError {
	return &ClientError{Msg: "request exception", Err: err}
}

// StatusCode extracts the HTTP status from a BadResponseCodeError anywhere in
// err's chain. It returns 0 when err carries no status.
func StatusCode(err error) int {
	var bad *BadResponseCodeError
	if errors.As(err, &bad) {
		return bad.StatusCode
	}
	return 0
}
