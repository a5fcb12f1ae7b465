// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"fmt"
)

// Push is the closed union of event-stream payloads. Concrete types:
// *SyncComplete, *EventsDecrypted, *SendComplete, *ClientState,
// *Typing.
type Push interface {
	pushCommand() string
}

func (*SyncComplete) pushCommand() string    { return CommandSyncComplete }
func (*EventsDecrypted) pushCommand() string { return CommandEventsDecrypted }
func (*SendComplete) pushCommand() string    { return CommandSendComplete }
func (*ClientState) pushCommand() string     { return CommandClientState }
func (*Typing) pushCommand() string          { return CommandTyping }

// UnknownPushError reports a push frame whose command names no known
// payload type. Not fatal to the stream: the envelope itself parsed
// and correlation is intact, so the frame is logged and skipped.
type UnknownPushError struct {
	Command string
}

func (e *UnknownPushError) Error() string {
	return fmt.Sprintf("wire: unknown push command %q", e.Command)
}

// ParsePush decodes a push envelope's data into its concrete payload
// type, matching exhaustively on the command discriminant.
func ParsePush(envelope *Envelope) (Push, error) {
	decode := func(target Push) (Push, error) {
		if err := json.Unmarshal(envelope.Data, target); err != nil {
			return nil, fmt.Errorf("wire: decoding %s payload: %w", envelope.Command, err)
		}
		return target, nil
	}

	switch envelope.Command {
	case CommandSyncComplete:
		return decode(&SyncComplete{})
	case CommandEventsDecrypted:
		return decode(&EventsDecrypted{})
	case CommandSendComplete:
		return decode(&SendComplete{})
	case CommandClientState:
		return decode(&ClientState{})
	case CommandTyping:
		return decode(&Typing{})
	default:
		return nil, &UnknownPushError{Command: envelope.Command}
	}
}
