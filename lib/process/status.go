// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// ExitStatus is how a child process ended.
type ExitStatus struct {
	// Code is the exit code, or -1 when the process was killed by a
	// signal or could not be waited on.
	Code int

	// Signal is the terminating signal, zero if the process exited
	// normally.
	Signal syscall.Signal

	// Err is set when waiting failed for a reason other than a
	// non-zero exit (the process could not be reaped at all).
	Err error
}

// StatusFromWait builds an ExitStatus from the results of
// exec.Cmd.Wait. A non-zero exit is not an error here: it is recorded
// in Code or Signal.
func StatusFromWait(state *os.ProcessState, waitErr error) ExitStatus {
	if state == nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			state = exitErr.ProcessState
		}
	}
	if state == nil {
		return ExitStatus{Code: -1, Err: waitErr}
	}

	status := ExitStatus{Code: state.ExitCode()}
	if waitStatus, ok := state.Sys().(syscall.WaitStatus); ok && waitStatus.Signaled() {
		status.Signal = waitStatus.Signal()
	}
	return status
}

// Clean reports whether the process ended the way a session is
// expected to end: exit code 0, or termination by SIGTERM, which is
// what the launcher sends when the user closes the session.
func (s ExitStatus) Clean() bool {
	if s.Err != nil {
		return false
	}
	if s.Signal != 0 {
		return s.Signal == syscall.SIGTERM
	}
	return s.Code == 0
}

// String renders the status for logs and crash reports.
func (s ExitStatus) String() string {
	switch {
	case s.Err != nil:
		return fmt.Sprintf("wait failed: %v", s.Err)
	case s.Signal != 0:
		return fmt.Sprintf("killed by signal %s", s.Signal)
	default:
		return fmt.Sprintf("exit code %d", s.Code)
	}
}
