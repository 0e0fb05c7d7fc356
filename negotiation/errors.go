// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProtocolViolation matches every *ProtocolError. A violation
	// is fatal: the negotiation cannot continue on this link.
	ErrProtocolViolation = errors.New("negotiation: protocol violation")

	// ErrVersionMismatch is returned when the peer speaks a different
	// protocol version.
	ErrVersionMismatch = errors.New("negotiation: protocol version mismatch")

	// ErrBusy is returned for local actions that would disturb a
	// reveal already in progress.
	ErrBusy = errors.New("negotiation: exchange in progress")

	// ErrNotAllowed matches every *NotReadyError.
	ErrNotAllowed = errors.New("negotiation: readiness not allowed")

	// ErrRevealTooLarge is returned by Split, and by SetReady, when
	// the compressed state does not fit in ChunkCount chunks.
	ErrRevealTooLarge = errors.New("negotiation: reveal exceeds chunk budget")

	// ErrPeerGone is returned when the tunnel closes before the
	// negotiation completes.
	ErrPeerGone = errors.New("negotiation: peer link closed")

	// ErrStopped is returned by API calls made after Run has returned.
	ErrStopped = errors.New("negotiation: negotiator stopped")
)

// ProtocolError describes a peer message that breaks the protocol.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "negotiation: protocol violation: " + e.Reason
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolViolation
}

func violation(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// NotReadyError lists why the readiness toggle is disabled.
type NotReadyError struct {
	Warnings []Warning
}

func (e *NotReadyError) Error() string {
	reasons := make([]string, len(e.Warnings))
	for i, warning := range e.Warnings {
		reasons[i] = string(warning)
	}
	return "negotiation: readiness not allowed: " + strings.Join(reasons, "; ")
}

func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotAllowed
}
