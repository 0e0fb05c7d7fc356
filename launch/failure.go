// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package launch

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/tango/lib/process"
)

// ErrCoreCrashed is wrapped by crash failures.
var ErrCoreCrashed = errors.New("launch: core crashed")

// Outcome is how a session ended without error.
type Outcome uint8

const (
	// OutcomeFailed accompanies a non-nil error.
	OutcomeFailed Outcome = iota
	// OutcomeFinished: the match ran and the core exited cleanly.
	OutcomeFinished
	// OutcomeExited: the core exited cleanly before the match ran,
	// typically because the player closed it.
	OutcomeExited
	// OutcomeCancelled: the context was cancelled.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeFinished:
		return "finished"
	case OutcomeExited:
		return "exited"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// FailureKind classifies a Failure.
type FailureKind uint8

const (
	// FailureTransport: the core could not be started, or the channel
	// to it broke.
	FailureTransport FailureKind = iota
	// FailureProtocol: the peer violated the negotiation protocol.
	FailureProtocol
	// FailurePrepare: the match could not be set up locally after a
	// successful negotiation.
	FailurePrepare
	// FailureCrash: the core exited abnormally.
	FailureCrash
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureProtocol:
		return "protocol"
	case FailurePrepare:
		return "prepare"
	case FailureCrash:
		return "crash"
	default:
		return fmt.Sprintf("failure(%d)", uint8(k))
	}
}

// Failure is the error returned by Run for every fatal session error.
type Failure struct {
	Kind FailureKind
	Err  error

	// Status is the core's exit status, zero if it never started.
	Status process.ExitStatus

	// Diagnostics is the core's retained stderr.
	Diagnostics string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }
