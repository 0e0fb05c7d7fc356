// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bureau-foundation/tango/lib/ipc"
)

const (
	// MaxNicknameLength bounds Settings.Nickname in bytes.
	MaxNicknameLength = 64

	// MaxAvailableGames bounds Settings.AvailableGames.
	MaxAvailableGames = 1024
)

// PatchInfo identifies a ROM patch by catalog name and version.
type PatchInfo struct {
	Name    string `cbor:"name"`
	Version string `cbor:"version"`
}

// GameInfo identifies a runnable game: a ROM and an optional patch.
type GameInfo struct {
	ROMID string     `cbor:"rom_id"`
	Patch *PatchInfo `cbor:"patch,omitempty"`
}

// Equal reports whether g and other name the same ROM and patch.
// A nil GameInfo equals only another nil.
func (g *GameInfo) Equal(other *GameInfo) bool {
	if g == nil || other == nil {
		return g == other
	}
	if g.ROMID != other.ROMID {
		return false
	}
	if g.Patch == nil || other.Patch == nil {
		return g.Patch == other.Patch
	}
	return *g.Patch == *other.Patch
}

func (g *GameInfo) String() string {
	if g == nil {
		return "<none>"
	}
	if g.Patch == nil {
		return g.ROMID
	}
	return g.ROMID + "+" + g.Patch.Name + "@" + g.Patch.Version
}

// Settings is one side's proposal.
type Settings struct {
	Nickname   string        `cbor:"nickname"`
	InputDelay uint32        `cbor:"input_delay"`
	MatchType  ipc.MatchType `cbor:"match_type"`

	// GameInfo is the selected game, nil when nothing is selected.
	GameInfo *GameInfo `cbor:"game_info,omitempty"`

	// AvailableGames lists every game and patch the sender can run.
	AvailableGames []GameInfo `cbor:"available_games,omitempty"`

	// OpenSetup makes the sender's team setup visible to the peer.
	// Both sides must agree on it.
	OpenSetup bool `cbor:"open_setup"`
}

// Validate checks the fields a peer could get wrong.
func (s *Settings) Validate() error {
	var errs []error
	if s.Nickname == "" {
		errs = append(errs, errors.New("nickname is empty"))
	}
	if len(s.Nickname) > MaxNicknameLength {
		errs = append(errs, fmt.Errorf("nickname is %d bytes (max %d)", len(s.Nickname), MaxNicknameLength))
	}
	if s.InputDelay < ipc.MinInputDelay || s.InputDelay > ipc.MaxInputDelay {
		errs = append(errs, fmt.Errorf("input delay %d outside [%d, %d]", s.InputDelay, ipc.MinInputDelay, ipc.MaxInputDelay))
	}
	if s.MatchType != ipc.MatchSingle && s.MatchType != ipc.MatchTriple {
		errs = append(errs, fmt.Errorf("unknown match type %d", uint8(s.MatchType)))
	}
	if s.GameInfo != nil && s.GameInfo.ROMID == "" {
		errs = append(errs, errors.New("selected game has no ROM id"))
	}
	if len(s.AvailableGames) > MaxAvailableGames {
		errs = append(errs, fmt.Errorf("%d available games (max %d)", len(s.AvailableGames), MaxAvailableGames))
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	clone := s
	if s.GameInfo != nil {
		clone.GameInfo = cloneGame(*s.GameInfo)
	}
	if s.AvailableGames != nil {
		clone.AvailableGames = make([]GameInfo, len(s.AvailableGames))
		for i, game := range s.AvailableGames {
			clone.AvailableGames[i] = *cloneGame(game)
		}
	}
	return clone
}

func cloneGame(game GameInfo) *GameInfo {
	if game.Patch != nil {
		patch := *game.Patch
		game.Patch = &patch
	}
	return &game
}

// Warning is a reason the readiness toggle is disabled.
type Warning string

const (
	WarnNoGameSelected          Warning = "no game selected"
	WarnPeerNotPresent          Warning = "peer has not sent settings"
	WarnPeerNoGameSelected      Warning = "peer has not selected a game"
	WarnMatchTypeMismatch       Warning = "match types differ"
	WarnSetupVisibilityMismatch Warning = "setup visibility differs"
	WarnPeerMissingGame         Warning = "peer does not have the selected game"
	WarnPeerMissingPatch        Warning = "peer does not have the selected patch"
	WarnLocalMissingGame        Warning = "peer's game is not available locally"
	WarnLocalMissingPatch       Warning = "peer's patch is not available locally"
	WarnTogglePending           Warning = "a readiness change is pending"
	WarnExchangeUnderway        Warning = "the exchange is underway"
)

// Gate carries the commitment and request state that restricts the
// readiness toggle independently of the settings.
type Gate struct {
	// TogglePending is set while a readiness request has not been
	// processed.
	TogglePending  bool
	LocalCommitted bool
	PeerCommitted  bool
}

// Readiness is the result of Evaluate.
type Readiness struct {
	Enabled  bool
	Warnings []Warning
}

// Evaluate decides whether the local player may toggle readiness.
// remote is nil until the peer's first Settings arrives. Every
// applicable warning is reported, not only the first.
func Evaluate(local Settings, remote *Settings, gate Gate) Readiness {
	var warnings []Warning
	if local.GameInfo == nil {
		warnings = append(warnings, WarnNoGameSelected)
	}
	if remote == nil {
		warnings = append(warnings, WarnPeerNotPresent)
	} else {
		if remote.GameInfo == nil {
			warnings = append(warnings, WarnPeerNoGameSelected)
		}
		if local.MatchType != remote.MatchType {
			warnings = append(warnings, WarnMatchTypeMismatch)
		}
		if local.OpenSetup != remote.OpenSetup {
			warnings = append(warnings, WarnSetupVisibilityMismatch)
		}
		if local.GameInfo != nil {
			warnings = append(warnings, availability(*local.GameInfo, remote.AvailableGames, WarnPeerMissingGame, WarnPeerMissingPatch)...)
		}
		if remote.GameInfo != nil {
			warnings = append(warnings, availability(*remote.GameInfo, local.AvailableGames, WarnLocalMissingGame, WarnLocalMissingPatch)...)
		}
	}
	if gate.TogglePending {
		warnings = append(warnings, WarnTogglePending)
	}
	if gate.LocalCommitted && gate.PeerCommitted {
		warnings = append(warnings, WarnExchangeUnderway)
	}
	return Readiness{Enabled: len(warnings) == 0, Warnings: warnings}
}

func availability(want GameInfo, available []GameInfo, missingGame, missingPatch Warning) []Warning {
	if slices.ContainsFunc(available, func(game GameInfo) bool { return want.Equal(&game) }) {
		return nil
	}
	if slices.ContainsFunc(available, func(game GameInfo) bool { return game.ROMID == want.ROMID }) {
		return []Warning{missingPatch}
	}
	return []Warning{missingGame}
}
