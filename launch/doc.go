// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package launch runs one session of the core from spawn to exit.
//
// [Run] starts the core, waits for it to report the peer link ready,
// negotiates with the peer over the tunnel (or skips negotiation for a
// single-player session), prepares both ROMs, writes the peer's
// revealed save to a shadow file, builds replay metadata, and sends
// the StartRequest. It then waits for the core to run and exit.
//
// Every failure is reported as a [*Failure] carrying the core's
// retained stderr. Cancelling the context is not a failure: the core
// is terminated and Run returns [OutcomeCancelled] with a nil error.
package launch
