// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tunnel carries application messages to the peer through the
// core.
//
// The launcher has no socket to the peer. The core owns the peer link
// and relays opaque TunnelData frames in both directions over its
// standard streams, interleaved with its own state and connection
// quality reports. [Mux] reads that single inbound stream and splits it:
// tunnel payloads go to a [Conn], state transitions and RTT samples are
// kept for [Mux.WaitState], [Mux.State], and [Mux.RTT].
//
// [Conn] is the only thing the negotiation layer sees, so negotiation
// tests run over [Pipe], an in-memory connected pair, with no core
// process at all.
package tunnel
