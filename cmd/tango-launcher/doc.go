// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// tango-launcher runs one tango session: it spawns the core, and for
// netplay negotiates settings and saves with the peer over the core's
// tunnel before starting the match.
//
// With --session the session is a netplay match under that link code;
// without it the core runs single-player. Configuration comes from the
// YAML file named by --config or TANGO_CONFIG. With --auto-ready (the
// default) the local side readies as soon as the lobby allows it.
//
// The exit status is 0 when the match finishes, the core exits on its
// own, or the session is interrupted, and 1 on any failure. Core
// diagnostics are printed to stderr after a failure.
package main
