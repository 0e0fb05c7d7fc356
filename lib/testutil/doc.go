// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireNoReceive], and [RequireClosed] wrap the
// timeout safety valve pattern (select with a time.After fallback) so
// a broken actor or a stuck pipe fails the test instead of hanging
// it. They are the only place in the test suite where real wall-clock
// timeouts appear; everything else uses lib/clock's fake.
//
// [Logger] routes slog output through t.Log.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
