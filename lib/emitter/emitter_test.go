// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package emitter_test

import (
	"testing"

	"github.com/lattice-im/lattice/lib/emitter"
)

func TestSubscribeReplaysCachedValue(t *testing.T) {
	e := emitter.New[int]()
	e.Set(42)

	var got []int
	unsubscribe := e.Subscribe(func(v int) { got = append(got, v) })
	defer unsubscribe()

	if len(got) != 1 || got[0] != 42 {
		t.Fatalf("expected immediate replay of 42, got %v", got)
	}
}

func TestSubscribeBeforeFirstSet(t *testing.T) {
	e := emitter.New[string]()

	var got []string
	unsubscribe := e.Subscribe(func(v string) { got = append(got, v) })
	defer unsubscribe()

	if len(got) != 0 {
		t.Fatalf("expected no replay before first Set, got %v", got)
	}
	e.Set("hello")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("expected notification after Set, got %v", got)
	}
}

func TestNewWithValue(t *testing.T) {
	e := emitter.NewWithValue("initial")
	var got string
	unsubscribe := e.Subscribe(func(v string) { got = v })
	defer unsubscribe()
	if got != "initial" {
		t.Fatalf("expected initial value replay, got %q", got)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	e := emitter.New[int]()
	var count int
	unsubscribe := e.Subscribe(func(int) { count++ })

	e.Set(1)
	unsubscribe()
	unsubscribe() // idempotent
	e.Set(2)

	if count != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", count)
	}
}

func TestCurrentObservableFromCallback(t *testing.T) {
	e := emitter.New[int]()
	var observed int
	e.Subscribe(func(v int) {
		// Current must already reflect the notified value.
		current, ok := e.Current()
		if !ok || current != v {
			t.Errorf("Current() = %d (%v) during notification of %d", current, ok, v)
		}
		observed = v
	})
	e.Set(7)
	if observed != 7 {
		t.Fatalf("listener not invoked, observed=%d", observed)
	}
}

func TestMultipleListeners(t *testing.T) {
	e := emitter.New[int]()
	var a, b int
	e.Subscribe(func(v int) { a = v })
	e.Subscribe(func(v int) { b = v })
	e.Set(9)
	if a != 9 || b != 9 {
		t.Fatalf("expected both listeners notified, got a=%d b=%d", a, b)
	}
	if e.ListenerCount() != 2 {
		t.Fatalf("ListenerCount() = %d, want 2", e.ListenerCount())
	}
}
