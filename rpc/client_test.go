// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lattice-im/lattice/wire"
)

// connectedClient wires a Client to one end of a memory pair and
// connects it, returning the backend end for scripting.
func connectedClient(t *testing.T, handler PushHandler) (*Client, *MemoryTransport) {
	t.Helper()
	clientEnd, backendEnd := NewMemoryPair()
	client := NewClient(func(context.Context) (Transport, error) {
		return clientEnd, nil
	}, handler, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, backendEnd
}

// readRequest reads one outbound frame on the backend end.
func readRequest(t *testing.T, backend *MemoryTransport) *wire.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	envelope, err := backend.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("backend read: %v", err)
	}
	return envelope
}

func respond(t *testing.T, backend *MemoryTransport, id int64, data string) {
	t.Helper()
	err := backend.WriteFrame(context.Background(), &wire.Envelope{
		Command:   wire.CommandResponse,
		RequestID: id,
		Data:      json.RawMessage(data),
	})
	if err != nil {
		t.Fatalf("backend write: %v", err)
	}
}

// Closing both endpoints is the normal shape of a dropped connection:
// the peer closes its end and the local side then tears down its own.
// Either order, and repeated calls, must be safe.
func TestMemoryPairCloseBothEnds(t *testing.T) {
	a, b := NewMemoryPair()
	b.Close()
	a.Close()
	a.Close()

	if _, err := a.ReadFrame(context.Background()); err != ErrTransportClosed {
		t.Errorf("read after close: %v", err)
	}
	if err := b.WriteFrame(context.Background(), &wire.Envelope{}); err != ErrTransportClosed {
		t.Errorf("write after close: %v", err)
	}
}

func TestRequestResponse(t *testing.T) {
	client, backend := connectedClient(t, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		request := readRequest(t, backend)
		if request.Command != "get_profile" {
			t.Errorf("command = %q", request.Command)
		}
		respond(t, backend, request.RequestID, `{"displayname": "Alice"}`)
	}()

	data, err := client.Request(context.Background(), "get_profile", map[string]string{"user_id": "@a:s"})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	var profile struct {
		Displayname string `json:"displayname"`
	}
	if err := json.Unmarshal(data, &profile); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if profile.Displayname != "Alice" {
		t.Errorf("displayname = %q", profile.Displayname)
	}
	<-done
}

func TestConcurrentRequestsCorrelateByID(t *testing.T) {
	client, backend := connectedClient(t, nil)
	const n = 16

	// Collect all n request frames, then echo each request's payload
	// back in reverse arrival order. Every caller must receive the
	// reply carrying its own tag regardless of reply ordering.
	go func() {
		requests := make([]*wire.Envelope, 0, n)
		for i := 0; i < n; i++ {
			requests = append(requests, readRequest(t, backend))
		}
		for i := len(requests) - 1; i >= 0; i-- {
			respond(t, backend, requests[i].RequestID, string(requests[i].Data))
		}
	}()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for tag := 0; tag < n; tag++ {
		tag := tag
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := client.Request(context.Background(), "get_event", map[string]int{"tag": tag})
			if err != nil {
				errs <- fmt.Errorf("request %d: %w", tag, err)
				return
			}
			var body struct {
				Tag int `json:"tag"`
			}
			if err := json.Unmarshal(data, &body); err != nil {
				errs <- fmt.Errorf("request %d: decoding reply: %w", tag, err)
				return
			}
			if body.Tag != tag {
				errs <- fmt.Errorf("request %d received reply for %d", tag, body.Tag)
				return
			}
			errs <- nil
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
}

func TestBackendErrorSurfacedVerbatim(t *testing.T) {
	client, backend := connectedClient(t, nil)

	go func() {
		request := readRequest(t, backend)
		backend.WriteFrame(context.Background(), &wire.Envelope{
			Command:   wire.CommandError,
			RequestID: request.RequestID,
			Data:      json.RawMessage(`{"code": "M_FORBIDDEN", "message": "no power"}`),
		})
	}()

	_, err := client.Request(context.Background(), "set_state", nil)
	if !IsBackendError(err, "M_FORBIDDEN") {
		t.Fatalf("expected M_FORBIDDEN BackendError, got %v", err)
	}
}

func TestDisconnectRejectsAllOutstanding(t *testing.T) {
	client, backend := connectedClient(t, nil)
	const m = 8

	results := make(chan error, m)
	for i := 0; i < m; i++ {
		go func() {
			_, err := client.Request(context.Background(), "paginate", nil)
			results <- err
		}()
	}
	// Drain the m outbound frames so every request is registered.
	for i := 0; i < m; i++ {
		readRequest(t, backend)
	}

	backend.Close()

	for i := 0; i < m; i++ {
		select {
		case err := <-results:
			if !IsTransportError(err) {
				t.Errorf("expected TransportError, got %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("outstanding request never rejected")
		}
	}

	// Table must be empty: a new request on the dead connection fails
	// with "not connected", not a leaked entry.
	_, err := client.Request(context.Background(), "paginate", nil)
	if !IsTransportError(err) {
		t.Fatalf("expected TransportError after disconnect, got %v", err)
	}
}

func TestCancellationRejectsLocallyAndNotifiesBackend(t *testing.T) {
	client, backend := connectedClient(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.Request(ctx, "paginate", nil)
		done <- err
	}()

	request := readRequest(t, backend)
	if request.Command != "paginate" {
		t.Fatalf("command = %q", request.Command)
	}
	cancel()

	err := <-done
	if !IsCancelled(err) {
		t.Fatalf("expected CancelledError, got %v", err)
	}

	// The backend receives a best-effort cancel frame naming the
	// abandoned request.
	cancelFrame := readRequest(t, backend)
	if cancelFrame.Command != wire.CommandCancel {
		t.Fatalf("expected cancel frame, got %q", cancelFrame.Command)
	}
	var cancelData wire.CancelData
	if err := json.Unmarshal(cancelFrame.Data, &cancelData); err != nil {
		t.Fatalf("decoding cancel data: %v", err)
	}
	if cancelData.RequestID != request.RequestID {
		t.Errorf("cancel names request %d, want %d", cancelData.RequestID, request.RequestID)
	}

	// A late reply to the cancelled request is dropped without
	// disturbing the stream: a later request still works.
	respond(t, backend, request.RequestID, `{}`)
	go func() {
		late := readRequest(t, backend)
		respond(t, backend, late.RequestID, `{"ok": true}`)
	}()
	if _, err := client.Request(context.Background(), "get_event", nil); err != nil {
		t.Fatalf("request after late reply: %v", err)
	}
}

func TestPushDispatch(t *testing.T) {
	pushes := make(chan wire.Push, 4)
	_, backend := connectedClient(t, PushHandlerFunc(func(push wire.Push) {
		pushes <- push
	}))

	backend.WriteFrame(context.Background(), &wire.Envelope{
		Command: wire.CommandTyping,
		Data:    json.RawMessage(`{"room_id": "!r:s", "user_ids": ["@a:s"]}`),
	})

	select {
	case push := <-pushes:
		typing, ok := push.(*wire.Typing)
		if !ok || len(typing.UserIDs) != 1 {
			t.Fatalf("push = %#v", push)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("push never dispatched")
	}
}

func TestUnknownPushSkippedStreamContinues(t *testing.T) {
	pushes := make(chan wire.Push, 4)
	_, backend := connectedClient(t, PushHandlerFunc(func(push wire.Push) {
		pushes <- push
	}))

	backend.WriteFrame(context.Background(), &wire.Envelope{
		Command: "experimental_frame",
		Data:    json.RawMessage(`{}`),
	})
	backend.WriteFrame(context.Background(), &wire.Envelope{
		Command: wire.CommandTyping,
		Data:    json.RawMessage(`{"room_id": "!r:s", "user_ids": []}`),
	})

	select {
	case push := <-pushes:
		if _, ok := push.(*wire.Typing); !ok {
			t.Fatalf("push = %#v", push)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not continue past unknown push")
	}
}

func TestMalformedEnvelopeTearsDownConnection(t *testing.T) {
	client, backend := connectedClient(t, nil)

	states := make(chan ConnState, 8)
	unsubscribe := client.ConnState().Subscribe(func(state ConnState) {
		states <- state
	})
	defer unsubscribe()
	// Drain the cached replay (Connected).
	if state := <-states; state.Status != StatusConnected {
		t.Fatalf("cached state = %v", state.Status)
	}

	// Frame with no command discriminant.
	backend.WriteFrame(context.Background(), &wire.Envelope{Data: json.RawMessage(`{}`)})

	select {
	case state := <-states:
		if state.Status != StatusDisconnected {
			t.Fatalf("state = %v", state.Status)
		}
		if state.Err == nil {
			t.Fatal("expected disconnect error for malformed envelope")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("connection not torn down")
	}
}

func TestConnStateReplaysToLateSubscriber(t *testing.T) {
	client, _ := connectedClient(t, nil)

	var got ConnState
	unsubscribe := client.ConnState().Subscribe(func(state ConnState) { got = state })
	defer unsubscribe()
	if got.Status != StatusConnected {
		t.Fatalf("late subscriber got %v, want connected", got.Status)
	}
}

// A second Connect issued while the first one's dial is still in
// flight must be rejected before it reaches the dialer; otherwise the
// losing transport would leak with a live read loop.
func TestConnectWhileDialInFlight(t *testing.T) {
	clientEnd, _ := NewMemoryPair()
	entered := make(chan struct{})
	release := make(chan struct{})
	var dials atomic.Int32
	client := NewClient(func(context.Context) (Transport, error) {
		dials.Add(1)
		close(entered)
		<-release
		return clientEnd, nil
	}, nil, nil)
	t.Cleanup(func() { client.Close() })

	firstDone := make(chan error, 1)
	go func() { firstDone <- client.Connect(context.Background()) }()
	<-entered

	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("second Connect succeeded during in-flight dial")
	}
	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if n := dials.Load(); n != 1 {
		t.Fatalf("dialer invoked %d times", n)
	}
}

func TestRequestWhileDisconnected(t *testing.T) {
	client := NewClient(func(context.Context) (Transport, error) {
		return nil, fmt.Errorf("dial refused")
	}, nil, nil)

	_, err := client.Request(context.Background(), "get_event", nil)
	if !IsTransportError(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if IsCancelled(err) || IsBackendError(err, "") {
		t.Fatalf("taxonomy overlap: %v", err)
	}
}
