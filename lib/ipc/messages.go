// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"errors"
	"fmt"
)

// ErrInvalidMessage is returned by Validate when a union message has
// zero or more than one variant set.
var ErrInvalidMessage = errors.New("ipc: message must have exactly one variant set")

// ToCoreMessage is a message from the launcher to the core.
type ToCoreMessage struct {
	// StartRequest tells a core in ReadyToStart to begin emulation.
	StartRequest *StartRequest `cbor:"start_request,omitempty"`

	// TunnelData is opaque payload the core forwards to the peer.
	TunnelData *TunnelData `cbor:"tunnel_data,omitempty"`
}

// FromCoreMessage is a message from the core to the launcher.
type FromCoreMessage struct {
	// StateIndication reports a session state transition.
	StateIndication *StateIndication `cbor:"state_indication,omitempty"`

	// TunnelData is opaque payload the core received from the peer.
	TunnelData *TunnelData `cbor:"tunnel_data,omitempty"`

	// ConnectionQualityIndication reports the peer link round-trip
	// time as measured by the core.
	ConnectionQualityIndication *ConnectionQualityIndication `cbor:"connection_quality_indication,omitempty"`
}

// TunnelData is an opaque byte payload relayed through the core.
type TunnelData struct {
	Data []byte `cbor:"data"`
}

// StateIndication carries the core's current session state.
type StateIndication struct {
	State State `cbor:"state"`
}

// ConnectionQualityIndication carries a peer link RTT sample in
// nanoseconds.
type ConnectionQualityIndication struct {
	RTT int64 `cbor:"rtt"`
}

// StartRequest starts emulation. MatchSettings is nil for single-player
// sessions.
type StartRequest struct {
	// WindowTitle is shown in the core's window title bar.
	WindowTitle string `cbor:"window_title"`

	// ROMPath is the prepared local ROM.
	ROMPath string `cbor:"rom_path"`

	// SavePath is the local player's save file.
	SavePath string `cbor:"save_path"`

	MatchSettings *MatchSettings `cbor:"match_settings,omitempty"`
}

// MatchSettings describes the opponent side of a netplay session and
// the values both peers agreed on.
type MatchSettings struct {
	// ShadowSavePath is a temporary file holding the peer's disclosed
	// save bytes. The core runs the peer's side from it without
	// touching the local save.
	ShadowSavePath string `cbor:"shadow_save_path"`

	// ShadowROMPath is the prepared ROM for the peer's game.
	ShadowROMPath string `cbor:"shadow_rom_path"`

	// InputDelay is the local input delay in frames.
	InputDelay uint32 `cbor:"input_delay"`

	// ShadowInputDelay is the peer's input delay in frames.
	ShadowInputDelay uint32 `cbor:"shadow_input_delay"`

	MatchType MatchType `cbor:"match_type"`

	// ReplaysPath is the directory the core writes the replay into.
	ReplaysPath string `cbor:"replays_path"`

	// ReplayMetadata is an encoded replay.Metadata, stored verbatim in
	// the replay header.
	ReplayMetadata []byte `cbor:"replay_metadata"`

	// RNGSeed is the jointly derived seed. Both cores must receive the
	// same value.
	RNGSeed [16]byte `cbor:"rng_seed"`
}

// Validate checks that exactly one variant is set.
func (m *ToCoreMessage) Validate() error {
	count := 0
	if m.StartRequest != nil {
		count++
	}
	if m.TunnelData != nil {
		count++
	}
	if count != 1 {
		return fmt.Errorf("%w: to-core message has %d", ErrInvalidMessage, count)
	}
	return nil
}

// Validate checks that exactly one variant is set.
func (m *FromCoreMessage) Validate() error {
	count := 0
	if m.StateIndication != nil {
		count++
	}
	if m.TunnelData != nil {
		count++
	}
	if m.ConnectionQualityIndication != nil {
		count++
	}
	if count != 1 {
		return fmt.Errorf("%w: from-core message has %d", ErrInvalidMessage, count)
	}
	return nil
}
