// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"errors"
	"fmt"

	"github.com/lattice-im/lattice/lib/ref"
)

// ConsistencyViolation reports that an operation observed the shared
// indices change underneath it — most commonly a live sync touching a
// room's timeline while a pagination fetch for the same room was in
// flight. The operation aborts without corrupting any index; the
// caller may retry against the new state.
type ConsistencyViolation struct {
	RoomID ref.RoomID
	Reason string
}

func (e *ConsistencyViolation) Error() string {
	return fmt.Sprintf("state: consistency violation in %s: %s", e.RoomID, e.Reason)
}

// IsConsistencyViolation reports whether err is a ConsistencyViolation.
func IsConsistencyViolation(err error) bool {
	var violation *ConsistencyViolation
	return errors.As(err, &violation)
}

// ErrRoomNotFound is returned by operations naming a room the store
// does not know.
var ErrRoomNotFound = errors.New("state: room not found")
