// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package core owns the core subprocess and the framed message channel
// over its standard streams.
//
// The launcher talks to the core by writing length-prefixed CBOR
// frames to its standard input and reading them from its standard
// output. Each frame is a 4-byte little-endian unsigned length
// followed by that many bytes of an encoded ipc message:
//
//	+----------------+------------------------------+
//	| length (LE u32)| CBOR ipc.ToCoreMessage /     |
//	|                | ipc.FromCoreMessage          |
//	+----------------+------------------------------+
//
// [Process] serializes senders against each other with one lock and
// receivers against each other with another, so a goroutine blocked in
// Receive never delays a Send. Standard error is not part of the
// channel: a background goroutine drains it continuously into a
// bounded diagnostic log that is attached to crash reports.
//
// The context passed to [Start] bounds the whole subprocess lifetime.
// Cancelling it sends SIGTERM to the core's process group, escalates
// to SIGKILL after the configured grace period, and closes the
// launcher's ends of the pipes so pending Send and Receive calls
// return immediately.
package core
