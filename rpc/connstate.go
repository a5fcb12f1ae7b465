// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import "fmt"

// ConnStatus enumerates the connection lifecycle states.
type ConnStatus int

const (
	// StatusDisconnected is the initial state and the terminal state
	// of every connection attempt. Reachable from any state.
	StatusDisconnected ConnStatus = iota
	// StatusConnecting means a dial is in progress.
	StatusConnecting
	// StatusConnected means the transport is up and the read loop is
	// running.
	StatusConnected
)

// String returns the lowercase state name.
func (s ConnStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return fmt.Sprintf("ConnStatus(%d)", int(s))
	}
}

// ConnState is one broadcast value of the connection lifecycle. Err is
// set only on Disconnected, and only when the disconnect was caused by
// a failure rather than a local Close.
type ConnState struct {
	Status ConnStatus
	Err    error
}
