// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import "fmt"

// State is the core's session state. States are ordered: the core only
// ever moves forward through them.
type State uint8

const (
	StateUnknown State = iota
	// StateConnecting: the core is contacting the signaling server.
	StateConnecting
	// StateWaiting: signaling is done and the core waits for the peer.
	StateWaiting
	// StateReadyToStart: the peer link is up. Tunnel data flows and the
	// core accepts a StartRequest.
	StateReadyToStart
	// StateRunning: emulation has started.
	StateRunning
)

var stateNames = [...]string{
	StateUnknown:      "unknown",
	StateConnecting:   "connecting",
	StateWaiting:      "waiting",
	StateReadyToStart: "ready_to_start",
	StateRunning:      "running",
}

// String returns the wire name of the state.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// MarshalText encodes the state as its wire name.
func (s State) MarshalText() ([]byte, error) {
	if int(s) >= len(stateNames) {
		return nil, fmt.Errorf("ipc: unknown state %d", uint8(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText decodes a wire name. Names this launcher does not know
// decode to StateUnknown so a newer core cannot break an older
// launcher mid-session.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	*s = StateUnknown
	return nil
}

// AtLeast reports whether s has reached target.
func (s State) AtLeast(target State) bool {
	return s >= target
}

// Input delay bounds in frames. Both peers validate proposals against
// the same range.
const (
	MinInputDelay = 3
	MaxInputDelay = 10
)

// MatchType selects the battle format.
type MatchType uint8

const (
	MatchSingle MatchType = iota
	MatchTriple
)

// String returns the configuration and wire name.
func (m MatchType) String() string {
	switch m {
	case MatchSingle:
		return "single"
	case MatchTriple:
		return "triple"
	default:
		return fmt.Sprintf("match_type(%d)", uint8(m))
	}
}

// MarshalText encodes the match type as its name.
func (m MatchType) MarshalText() ([]byte, error) {
	switch m {
	case MatchSingle, MatchTriple:
		return []byte(m.String()), nil
	default:
		return nil, fmt.Errorf("ipc: unknown match type %d", uint8(m))
	}
}

// UnmarshalText decodes a match type name. Unlike State, unknown match
// types are an error: agreeing on an unknown format is impossible.
func (m *MatchType) UnmarshalText(text []byte) error {
	parsed, err := ParseMatchType(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMatchType parses "single" or "triple".
func ParseMatchType(name string) (MatchType, error) {
	switch name {
	case "single":
		return MatchSingle, nil
	case "triple":
		return MatchTriple, nil
	default:
		return 0, fmt.Errorf("unknown match type %q (want single or triple)", name)
	}
}
