package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
)

var (
	// ErrUnauthorized matches a ResponseError with status 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable matches every NetworkError.
	ErrUnavailable = errors.New("server unavailable")
	// ErrOffline is wrapped by a NetworkError raised without dispatching
	// because the client is offline.
	ErrOffline = errors.New("client is offline")
)

// ResponseError means the backend answered with a non-2xx status.
type ResponseError struct {
	Status  int
	Message string
	Details json.RawMessage
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *ResponseError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// NetworkError means no response reached the client. It is the only kind
// that triggers cache fallback (reads) or queueing (writes).
type NetworkError struct {
	Err error
	// QueuedID is set when the failed write was queued for replay.
	QueuedID string
}

func (e *NetworkError) Error() string {
	if e.QueuedID != "" {
		return fmt.Sprintf("network error (queued as %s): %v", e.QueuedID, e.Err)
	}
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrUnavailable }

// UnexpectedError covers client-side faults: request construction,
// serialization, undecodable responses.
type UnexpectedError struct {
	Message string
	Err     error
}

func (e *UnexpectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unexpected error: %s: %v", e.Message, e.Err)
	}
	return "unexpected error: " + e.Message
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

// Normalize converts a transport failure into exactly one of ResponseError,
// NetworkError or UnexpectedError. Already normalized errors pass through.
func Normalize(err error) error {
	if err == nil {
		return nil
	}

	var (
		re *ResponseError
		ne *NetworkError
		ue *UnexpectedError
	)
	switch {
	case errors.As(err, &re), errors.As(err, &ne), errors.As(err, &ue):
		return err
	}

	if isNetworkFailure(err) {
		return &NetworkError{Err: err}
	}
	return &UnexpectedError{Message: "transport failure", Err: err}
}

// isNetworkFailure reports whether err means the request never got an
// answer. A *url.Error is judged by its cause: http.Client wraps malformed
// requests (bad scheme, missing host) in it too.
func isNetworkFailure(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isNetworkFailure(urlErr.Err)
	}

	var (
		opErr  *net.OpError
		dnsErr *net.DNSError
		netErr net.Error
	)
	switch {
	case errors.As(err, &opErr),
		errors.As(err, &dnsErr),
		errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return true
	}
	return false
}

// errorBody is the error envelope the backend uses; all fields optional.
type errorBody struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details"`
}

// newResponseError builds a ResponseError from a non-2xx status and body.
func newResponseError(status int, body []byte) *ResponseError {
	e := &ResponseError{Status: status}

	var eb errorBody
	if len(body) > 0 && json.Unmarshal(body, &eb) == nil {
		e.Message = eb.Message
		if e.Message == "" {
			e.Message = eb.Error
		}
		if len(eb.Details) > 0 && string(eb.Details) != "null" {
			e.Details = eb.Details
		}
	}

	if e.Message == "" {
		if text := http.StatusText(status); text != "" {
			e.Message = text
		} else {
			e.Message = fmt.Sprintf("request failed with status %d", status)
		}
	}
	return e
}
