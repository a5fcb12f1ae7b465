// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lattice-im/lattice/lib/codec"
	"github.com/lattice-im/lattice/wire"
)

// WebsocketCodec selects the frame encoding negotiated with the
// backend at connect time.
type WebsocketCodec int

const (
	// CodecJSON sends envelopes as websocket text frames. Default.
	CodecJSON WebsocketCodec = iota
	// CodecCBOR sends envelopes as binary frames in Core Deterministic
	// Encoding, for bandwidth-constrained links.
	CodecCBOR
)

// writeTimeout bounds a single frame write. A peer that cannot accept
// a frame within this window is treated as gone.
const writeTimeout = 30 * time.Second

// Compile-time interface check.
var _ Transport = (*WebsocketTransport)(nil)

// WebsocketTransport carries envelopes over a websocket connection.
type WebsocketTransport struct {
	conn       *websocket.Conn
	frameCodec WebsocketCodec

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// DialWebsocket connects to the backend's websocket endpoint.
func DialWebsocket(ctx context.Context, url string, frameCodec WebsocketCodec) (*WebsocketTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("rpc: dialing %s: %w", url, err)
	}
	return &WebsocketTransport{conn: conn, frameCodec: frameCodec}, nil
}

// WebsocketDialer returns a Dialer that connects to the given URL with
// the given codec on every Connect call.
func WebsocketDialer(url string, frameCodec WebsocketCodec) Dialer {
	return func(ctx context.Context) (Transport, error) {
		return DialWebsocket(ctx, url, frameCodec)
	}
}

func (t *WebsocketTransport) WriteFrame(ctx context.Context, envelope *wire.Envelope) error {
	var (
		data        []byte
		err         error
		messageType int
	)
	switch t.frameCodec {
	case CodecCBOR:
		data, err = codec.Marshal(envelope)
		messageType = websocket.BinaryMessage
	default:
		data, err = json.Marshal(envelope)
		messageType = websocket.TextMessage
	}
	if err != nil {
		return fmt.Errorf("rpc: encoding frame: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("rpc: setting write deadline: %w", err)
	}
	if err := t.conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("rpc: writing frame: %w", err)
	}
	return nil
}

// ReadFrame blocks on the websocket until a frame arrives or the
// connection closes. Context cancellation is honored by closing the
// connection — a websocket read cannot be abandoned in place.
func (t *WebsocketTransport) ReadFrame(ctx context.Context) (*wire.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { t.Close() })
	defer stop()

	messageType, data, err := t.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("rpc: reading frame: %w", err)
	}

	var envelope wire.Envelope
	switch messageType {
	case websocket.BinaryMessage:
		err = codec.Unmarshal(data, &envelope)
	default:
		err = json.Unmarshal(data, &envelope)
	}
	if err != nil {
		return nil, fmt.Errorf("rpc: decoding frame: %w", err)
	}
	return &envelope, nil
}

func (t *WebsocketTransport) Close() error {
	t.closeOnce.Do(func() {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		t.writeMu.Lock()
		t.conn.SetWriteDeadline(time.Now().Add(time.Second))
		t.conn.WriteMessage(websocket.CloseMessage, message)
		t.writeMu.Unlock()
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
