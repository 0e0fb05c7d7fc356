// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process classifies how a child process ended.
//
// [ExitStatus] records the exit code or terminating signal and decides
// whether that ending counts as clean: exit code 0, or death by
// SIGTERM (the signal the launcher itself sends on cancellation).
// Anything else is a crash, reported with the child's diagnostics.
package process
