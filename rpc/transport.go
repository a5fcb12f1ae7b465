// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"errors"
	"sync"

	"github.com/lattice-im/lattice/wire"
)

// Transport carries envelope frames to and from the backend. The
// production implementation is [WebsocketTransport]; tests use
// [MemoryTransport] pairs.
//
// ReadFrame and WriteFrame may be called from different goroutines,
// but neither supports multiple concurrent callers.
type Transport interface {
	// WriteFrame sends one envelope.
	WriteFrame(ctx context.Context, envelope *wire.Envelope) error

	// ReadFrame blocks until the next envelope arrives, ctx is done,
	// or the transport closes.
	ReadFrame(ctx context.Context) (*wire.Envelope, error)

	// Close tears the connection down. Idempotent; pending ReadFrame
	// and WriteFrame calls fail.
	Close() error
}

// Dialer opens a Transport to the backend. The Client redials through
// it on every Connect call.
type Dialer func(ctx context.Context) (Transport, error)

// ErrTransportClosed is returned by transport reads and writes after
// Close.
var ErrTransportClosed = errors.New("rpc: transport closed")

// Compile-time interface check.
var _ Transport = (*MemoryTransport)(nil)

// MemoryTransport is an in-process Transport for tests. Two endpoints
// created by NewMemoryPair exchange envelopes through buffered
// channels, bypassing the network entirely — one endpoint plays the
// engine, the other scripts the backend.
type MemoryTransport struct {
	in     <-chan *wire.Envelope
	out    chan<- *wire.Envelope
	closed chan struct{}

	// closeOnce is shared by both endpoints of a pair: the closed
	// channel is shared too, so either end's Close must close it
	// exactly once.
	closeOnce *sync.Once
}

// memoryBufferSize is the per-direction frame buffer. Large enough
// that a scripted backend can queue a burst of pushes without a
// pumping goroutine.
const memoryBufferSize = 64

// NewMemoryPair creates two connected in-process transports. Frames
// written to one are read from the other.
func NewMemoryPair() (*MemoryTransport, *MemoryTransport) {
	aToB := make(chan *wire.Envelope, memoryBufferSize)
	bToA := make(chan *wire.Envelope, memoryBufferSize)
	closed := make(chan struct{})
	once := &sync.Once{}
	a := &MemoryTransport{in: bToA, out: aToB, closed: closed, closeOnce: once}
	b := &MemoryTransport{in: aToB, out: bToA, closed: closed, closeOnce: once}
	return a, b
}

func (t *MemoryTransport) WriteFrame(ctx context.Context, envelope *wire.Envelope) error {
	select {
	case <-t.closed:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	case t.out <- envelope:
		return nil
	}
}

func (t *MemoryTransport) ReadFrame(ctx context.Context) (*wire.Envelope, error) {
	select {
	case <-t.closed:
		return nil, ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case envelope := <-t.in:
		return envelope, nil
	}
}

// Close closes both directions: the peer endpoint's reads and writes
// fail too, mirroring a dropped connection.
func (t *MemoryTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}
