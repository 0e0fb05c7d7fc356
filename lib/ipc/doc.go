// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc defines the messages exchanged between the launcher and
// the core process, and the argument surface the core is started with.
//
// The launcher writes [ToCoreMessage] values to the core's standard
// input and reads [FromCoreMessage] values from its standard output.
// Both are CBOR-encoded (lib/codec) and framed with a 4-byte
// little-endian length prefix by the core package. Each message is a
// union: exactly one pointer field is set. [ToCoreMessage.Validate] and
// [FromCoreMessage.Validate] enforce that on both sides of the pipe.
//
// TunnelData carries opaque bytes in both directions. The core relays
// them to and from the peer over its own data channel; the launcher
// never interprets them here. The negotiation package defines what
// rides inside.
//
// This package depends only on lib/codec's conventions (cbor tags) and
// has no tango runtime dependencies.
package ipc
