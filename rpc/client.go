// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lattice-im/lattice/lib/emitter"
	"github.com/lattice-im/lattice/wire"
)

// PushHandler receives decoded push payloads from the event stream.
// Calls happen sequentially on the read-loop goroutine.
type PushHandler interface {
	HandlePush(push wire.Push)
}

// PushHandlerFunc adapts a function to the PushHandler interface.
type PushHandlerFunc func(push wire.Push)

// HandlePush calls f.
func (f PushHandlerFunc) HandlePush(push wire.Push) { f(push) }

// reply is the resolution of one in-flight request: exactly one of
// data or err.
type reply struct {
	data json.RawMessage
	err  error
}

// Client correlates requests with replies over one Transport and
// broadcasts connection lifecycle state.
type Client struct {
	dialer  Dialer
	handler PushHandler
	log     *slog.Logger

	connState *emitter.Emitter[ConnState]

	mu         sync.Mutex
	transport  Transport // nil unless connected
	connecting bool      // a dial is in flight, blocks a second Connect
	nextID     int64
	inflight   map[int64]chan reply
	readGen    int // increments per connection, stale read loops exit
}

// NewClient creates a Client. The dialer is invoked by Connect; the
// handler receives push payloads. Either may be exercised from the
// read-loop goroutine only.
func NewClient(dialer Dialer, handler PushHandler, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		dialer:    dialer,
		handler:   handler,
		log:       log,
		connState: emitter.NewWithValue(ConnState{Status: StatusDisconnected}),
		inflight:  make(map[int64]chan reply),
	}
}

// ConnState is the connection lifecycle broadcast. The emitter caches
// the latest state, so a subscriber attached after connect still
// learns the current state immediately.
func (c *Client) ConnState() *emitter.Emitter[ConnState] { return c.connState }

// Connect dials the backend and starts the read loop. Returns once the
// transport is up; frames flow on a background goroutine until the
// connection fails or Close is called. Calling Connect while already
// connected, or while another Connect's dial is in flight, is an
// error.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.transport != nil || c.connecting {
		c.mu.Unlock()
		return fmt.Errorf("rpc: already connected")
	}
	c.connecting = true
	c.mu.Unlock()

	c.connState.Set(ConnState{Status: StatusConnecting})

	transport, err := c.dialer(ctx)
	if err != nil {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
		c.connState.Set(ConnState{Status: StatusDisconnected, Err: err})
		return fmt.Errorf("rpc: connect: %w", err)
	}

	c.mu.Lock()
	c.transport = transport
	c.connecting = false
	c.readGen++
	generation := c.readGen
	c.mu.Unlock()

	c.connState.Set(ConnState{Status: StatusConnected})
	go c.readLoop(transport, generation)
	return nil
}

// Close disconnects locally. Outstanding requests are rejected with a
// TransportError. Safe to call in any state.
func (c *Client) Close() error {
	c.disconnect(nil)
	return nil
}

// disconnect tears down the current transport, rejects all outstanding
// requests, clears the correlation table atomically, and broadcasts
// Disconnected. err is nil for a local close.
func (c *Client) disconnect(err error) {
	c.mu.Lock()
	transport := c.transport
	c.transport = nil
	stale := c.inflight
	c.inflight = make(map[int64]chan reply)
	c.mu.Unlock()

	if transport != nil {
		transport.Close()
	}

	rejection := &TransportError{Reason: "disconnected", Err: err}
	for id, ch := range stale {
		ch <- reply{err: rejection}
		c.log.Debug("rejected in-flight request on disconnect", "request_id", id)
	}

	if transport != nil || err != nil {
		c.connState.Set(ConnState{Status: StatusDisconnected, Err: err})
	}
}

// Request performs one correlated round trip. The payload is marshaled
// as the envelope data. Blocks until the reply arrives, ctx is done,
// or the connection drops.
//
// On ctx cancellation the local call rejects immediately with a
// CancelledError and a best-effort cancel frame is sent to the
// backend; a failure to send it is only logged, because the backend
// may already have produced a result.
func (c *Client) Request(ctx context.Context, command string, payload any) (json.RawMessage, error) {
	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("rpc: encoding %s payload: %w", command, err)
		}
		data = encoded
	}

	c.mu.Lock()
	transport := c.transport
	if transport == nil {
		c.mu.Unlock()
		return nil, &TransportError{Reason: "not connected"}
	}
	c.nextID++
	id := c.nextID
	ch := make(chan reply, 1)
	c.inflight[id] = ch
	c.mu.Unlock()

	envelope := &wire.Envelope{Command: command, RequestID: id, Data: data}
	if err := transport.WriteFrame(ctx, envelope); err != nil {
		c.forget(id)
		return nil, &TransportError{Reason: "write failed", Err: err}
	}

	select {
	case resolution := <-ch:
		return resolution.data, resolution.err
	case <-ctx.Done():
		c.forget(id)
		c.sendCancel(id, ctx.Err().Error())
		return nil, &CancelledError{Reason: ctx.Err().Error()}
	}
}

// forget removes one in-flight entry without resolving it. A reply
// arriving later is logged as an unrecognized ID and dropped.
func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.inflight, id)
	c.mu.Unlock()
}

// sendCancel notifies the backend that a request was abandoned.
// Best-effort: failures are logged, never surfaced, since the local
// future has already been rejected.
func (c *Client) sendCancel(id int64, reason string) {
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return
	}
	data, err := json.Marshal(wire.CancelData{RequestID: id, Reason: reason})
	if err != nil {
		c.log.Warn("encoding cancel frame failed", "request_id", id, "error", err)
		return
	}
	envelope := &wire.Envelope{Command: wire.CommandCancel, Data: data}
	if err := transport.WriteFrame(context.Background(), envelope); err != nil {
		c.log.Warn("sending cancel frame failed", "request_id", id, "error", err)
	}
}

// readLoop pumps frames from the transport until it fails or a newer
// connection supersedes this one. Replies resolve their in-flight
// entry; pushes are decoded and handed to the handler.
func (c *Client) readLoop(transport Transport, generation int) {
	for {
		envelope, err := transport.ReadFrame(context.Background())
		if err != nil {
			c.finishRead(generation, err)
			return
		}

		if err := envelope.Validate(); err != nil {
			// Once one frame is malformed, subsequent frames can no
			// longer be trusted to correlate. Tear down.
			c.log.Error("malformed envelope, closing connection", "error", err)
			c.finishRead(generation, err)
			return
		}

		if envelope.IsReply() {
			c.resolve(envelope)
			continue
		}

		push, err := wire.ParsePush(envelope)
		if err != nil {
			// Payload-level failures affect this frame only.
			c.log.Warn("skipping undecodable push frame", "command", envelope.Command, "error", err)
			continue
		}
		if c.handler != nil {
			c.handler.HandlePush(push)
		}
	}
}

// finishRead transitions to Disconnected on behalf of a read loop,
// unless a newer connection has already superseded it.
func (c *Client) finishRead(generation int, err error) {
	c.mu.Lock()
	current := c.readGen == generation
	c.mu.Unlock()
	if !current {
		return
	}
	if errors.Is(err, ErrTransportClosed) {
		err = nil
	}
	c.disconnect(err)
}

// resolve routes a reply frame to its in-flight entry. Exactly-once:
// the entry is removed before the channel send. An unrecognized ID is
// a logged anomaly, not fatal.
func (c *Client) resolve(envelope *wire.Envelope) {
	c.mu.Lock()
	ch, ok := c.inflight[envelope.RequestID]
	if ok {
		delete(c.inflight, envelope.RequestID)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Warn("reply for unrecognized request ID", "request_id", envelope.RequestID, "command", envelope.Command)
		return
	}

	if envelope.Command == wire.CommandError {
		var errorData wire.ErrorData
		if err := json.Unmarshal(envelope.Data, &errorData); err != nil {
			errorData.Message = string(envelope.Data)
		}
		ch <- reply{err: &BackendError{Code: errorData.Code, Message: errorData.Message}}
		return
	}
	ch <- reply{data: envelope.Data}
}
