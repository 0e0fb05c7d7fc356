// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress wraps byte payloads in a small self-describing
// envelope: one tag byte naming the algorithm, a 4-byte little-endian
// uncompressed length, then the (possibly) compressed bytes.
//
// The negotiation layer uses it to shrink a NegotiatedState before
// splitting it into reveal chunks; a save file that would not fit the
// fixed chunk budget raw usually fits comfortably once compressed.
// Because the envelope names its algorithm, the receiving side decodes
// whatever the sender chose, and the sender's choice is a local
// configuration knob.
//
// Decode takes an explicit size limit because envelopes arrive from an
// untrusted peer.
package compress
