// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration for
// the engine's wire envelope.
//
// The backend channel speaks two interchangeable framings with
// identical logical shape:
//
//   - JSON: the default, used by the websocket transport and in all
//     documented envelope examples.
//   - CBOR: a compact alternative for bandwidth-constrained links,
//     negotiated at connect time.
//
// This package holds the shared CBOR modes so both directions of the
// stream encode identically. The encoder uses Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items — the same logical frame always
// produces identical bytes.
//
// Envelope types carry `json` struct tags only. fxamacker/cbor v2
// reads `json` tags as fallback when `cbor` tags are absent, so one
// tag controls field naming and omitempty for both formats.
//
// For buffer-oriented use:
//
//	data, err := codec.Marshal(frame)
//	err = codec.Unmarshal(data, &frame)
//
// For stream-oriented use:
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
