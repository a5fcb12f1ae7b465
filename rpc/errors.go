// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"errors"
	"fmt"
)

// TransportError reports that a request could not complete because the
// connection is down: not yet connected, closed locally, or lost while
// the request was outstanding. Never retried internally.
type TransportError struct {
	// Reason describes the transport condition.
	Reason string
	// Err is the underlying transport failure, if any.
	Err error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rpc: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("rpc: %s", e.Reason)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BackendError is an explicit error reply from the backend, surfaced
// verbatim. Not retried: the backend already made a decision.
type BackendError struct {
	// Code is the backend's machine-readable error code, if provided.
	Code string
	// Message is the backend's human-readable description.
	Message string
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("rpc: backend error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("rpc: backend error: %s", e.Message)
}

// CancelledError reports local cancellation of a request. Kept
// distinct from BackendError so callers can ignore it silently.
type CancelledError struct {
	// Reason is the cancellation reason passed to the backend.
	Reason string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("rpc: request cancelled: %s", e.Reason)
}

// IsTransportError reports whether err is a TransportError.
func IsTransportError(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// IsCancelled reports whether err is a CancelledError.
func IsCancelled(err error) bool {
	var cancelledErr *CancelledError
	return errors.As(err, &cancelledErr)
}

// IsBackendError reports whether err is a BackendError with the given
// code. An empty code matches any BackendError.
func IsBackendError(err error, code string) bool {
	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		return false
	}
	return code == "" || backendErr.Code == code
}
