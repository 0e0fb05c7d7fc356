// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The negotiation actor pings its peer on a ticker and timestamps
// pings with Now; the launcher timestamps replay metadata. All of them
// take a Clock so tests can drive time explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	negotiator := negotiation.New(conn, negotiation.Options{Clock: c, ...})
//	go negotiator.Run(ctx)
//	c.WaitForTimers(1)      // the ping ticker is registered
//	c.Advance(time.Second)  // fires one ping
package clock
