// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package emitter provides the pull-based change-notification primitive
// used by every mutable collection in the engine: a plain observer
// registry combined with a cached current value.
//
// Consumers attach after state already exists, so Subscribe replays the
// cached value immediately — a late subscriber never has to wait for
// the next mutation to learn the present state. The publisher updates
// the cached value first and notifies listeners second, so a listener
// that calls Current from inside its callback observes the value it was
// notified about, never an older one.
//
// Listeners receive snapshots, not live references: the publisher is
// responsible for passing a copy (or an immutable value) to Set.
package emitter

import "sync"

// Emitter broadcasts values of type T to registered listeners and
// caches the most recent value for replay to new subscribers.
//
// The zero value is not usable; create with New. Safe for concurrent
// use, but listeners are invoked synchronously on the goroutine that
// calls Set — callbacks must not block and must not call Set on the
// same Emitter.
type Emitter[T any] struct {
	mu        sync.Mutex
	current   T
	populated bool
	nextID    int
	listeners map[int]func(T)
}

// New creates an Emitter with no cached value. The first Set populates
// the cache; Subscribe before that registers the listener without an
// immediate replay.
func New[T any]() *Emitter[T] {
	return &Emitter[T]{listeners: make(map[int]func(T))}
}

// NewWithValue creates an Emitter whose cache is pre-populated, so
// every subscriber receives an immediate replay even before the first
// Set.
func NewWithValue[T any](initial T) *Emitter[T] {
	e := New[T]()
	e.current = initial
	e.populated = true
	return e
}

// Subscribe registers a listener and returns its unsubscribe function.
// If a cached value exists it is replayed synchronously before
// Subscribe returns. The unsubscribe function is idempotent.
func (e *Emitter[T]) Subscribe(listener func(T)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = listener
	replay := e.populated
	value := e.current
	e.mu.Unlock()

	if replay {
		listener(value)
	}
	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Set updates the cached value and notifies every listener.
func (e *Emitter[T]) Set(value T) {
	e.mu.Lock()
	e.current = value
	e.populated = true
	targets := make([]func(T), 0, len(e.listeners))
	for _, listener := range e.listeners {
		targets = append(targets, listener)
	}
	e.mu.Unlock()

	for _, listener := range targets {
		listener(value)
	}
}

// Current returns the cached value and whether one has been set.
func (e *Emitter[T]) Current() (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.populated
}

// ListenerCount returns the number of registered listeners. Used by
// owners that drop per-key emitters once nobody is subscribed.
func (e *Emitter[T]) ListenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}
