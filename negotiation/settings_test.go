// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import (
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/tango/lib/ipc"
)

var (
	falzar   = GameInfo{ROMID: "bn6-falzar"}
	gregar   = GameInfo{ROMID: "bn6-gregar"}
	falzarEX = GameInfo{ROMID: "bn6-falzar", Patch: &PatchInfo{Name: "exe6-balance", Version: "1.2.0"}}
)

func testSettings(nickname string) Settings {
	game := falzar
	return Settings{
		Nickname:       nickname,
		InputDelay:     3,
		MatchType:      ipc.MatchSingle,
		GameInfo:       &game,
		AvailableGames: []GameInfo{falzar, gregar},
	}
}

func TestEvaluateAllowsMatchingSettings(t *testing.T) {
	local, remote := testSettings("alice"), testSettings("bob")
	readiness := Evaluate(local, &remote, Gate{})
	if !readiness.Enabled || len(readiness.Warnings) != 0 {
		t.Fatalf("Evaluate = %+v, want enabled without warnings", readiness)
	}
}

func TestEvaluateWarnings(t *testing.T) {
	tests := []struct {
		name   string
		modify func(local, remote *Settings, gate *Gate)
		absent bool
		want   []Warning
	}{
		{
			name:   "peer not present",
			absent: true,
			want:   []Warning{WarnPeerNotPresent},
		},
		{
			name:   "no local game",
			modify: func(local, _ *Settings, _ *Gate) { local.GameInfo = nil },
			want:   []Warning{WarnNoGameSelected},
		},
		{
			name:   "no peer game",
			modify: func(_, remote *Settings, _ *Gate) { remote.GameInfo = nil },
			want:   []Warning{WarnPeerNoGameSelected},
		},
		{
			name:   "match type mismatch",
			modify: func(_, remote *Settings, _ *Gate) { remote.MatchType = ipc.MatchTriple },
			want:   []Warning{WarnMatchTypeMismatch},
		},
		{
			name:   "setup visibility mismatch",
			modify: func(local, _ *Settings, _ *Gate) { local.OpenSetup = true },
			want:   []Warning{WarnSetupVisibilityMismatch},
		},
		{
			name: "peer lacks selected game",
			modify: func(local, remote *Settings, _ *Gate) {
				game := gregar
				local.GameInfo = &game
				remote.AvailableGames = []GameInfo{falzar}
			},
			want: []Warning{WarnPeerMissingGame},
		},
		{
			name: "peer lacks selected patch",
			modify: func(local, _ *Settings, _ *Gate) {
				game := falzarEX
				local.GameInfo = &game
				local.AvailableGames = append(local.AvailableGames, falzarEX)
			},
			want: []Warning{WarnPeerMissingPatch},
		},
		{
			name: "local lacks peer game",
			modify: func(local, remote *Settings, _ *Gate) {
				local.AvailableGames = []GameInfo{falzar}
				game := gregar
				remote.GameInfo = &game
			},
			want: []Warning{WarnLocalMissingGame},
		},
		{
			name: "local lacks peer patch",
			modify: func(_, remote *Settings, _ *Gate) {
				game := falzarEX
				remote.GameInfo = &game
				remote.AvailableGames = append(remote.AvailableGames, falzarEX)
			},
			want: []Warning{WarnLocalMissingPatch},
		},
		{
			name:   "toggle pending",
			modify: func(_, _ *Settings, gate *Gate) { gate.TogglePending = true },
			want:   []Warning{WarnTogglePending},
		},
		{
			name: "exchange underway",
			modify: func(_, _ *Settings, gate *Gate) {
				gate.LocalCommitted = true
				gate.PeerCommitted = true
			},
			want: []Warning{WarnExchangeUnderway},
		},
		{
			name: "local commitment alone is fine",
			modify: func(_, _ *Settings, gate *Gate) {
				gate.LocalCommitted = true
			},
			want: nil,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			local, remote := testSettings("alice"), testSettings("bob")
			var gate Gate
			if test.modify != nil {
				test.modify(&local, &remote, &gate)
			}
			remotePointer := &remote
			if test.absent {
				remotePointer = nil
			}
			readiness := Evaluate(local, remotePointer, gate)
			if !slices.Equal(readiness.Warnings, test.want) {
				t.Fatalf("warnings = %q, want %q", readiness.Warnings, test.want)
			}
			if readiness.Enabled != (len(test.want) == 0) {
				t.Fatalf("Enabled = %v with warnings %q", readiness.Enabled, readiness.Warnings)
			}
		})
	}
}

func TestSettingsValidate(t *testing.T) {
	valid := testSettings("alice")
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid settings: %v", err)
	}

	invalid := valid
	invalid.Nickname = ""
	invalid.InputDelay = ipc.MaxInputDelay + 1
	invalid.MatchType = ipc.MatchType(9)
	err := invalid.Validate()
	if err == nil {
		t.Fatal("Validate accepted invalid settings")
	}
	for _, want := range []string{"nickname is empty", "input delay 11", "unknown match type 9"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate error %q does not mention %q", err, want)
		}
	}

	long := valid
	long.Nickname = strings.Repeat("x", MaxNicknameLength+1)
	if long.Validate() == nil {
		t.Error("Validate accepted an overlong nickname")
	}
}

func TestSettingsCloneIsDeep(t *testing.T) {
	original := testSettings("alice")
	original.GameInfo = &GameInfo{ROMID: "bn6-falzar", Patch: &PatchInfo{Name: "p", Version: "1"}}
	clone := original.Clone()
	clone.GameInfo.Patch.Version = "2"
	clone.AvailableGames[0].ROMID = "changed"
	if original.GameInfo.Patch.Version != "1" || original.AvailableGames[0].ROMID != "bn6-falzar" {
		t.Fatal("mutating the clone changed the original")
	}
}

func TestGameInfoEqual(t *testing.T) {
	patched := falzarEX
	samePatch := GameInfo{ROMID: "bn6-falzar", Patch: &PatchInfo{Name: "exe6-balance", Version: "1.2.0"}}
	if !patched.Equal(&samePatch) {
		t.Error("identical patched games compare unequal")
	}
	if patched.Equal(&falzar) {
		t.Error("patched and unpatched games compare equal")
	}
	var none *GameInfo
	if !none.Equal(nil) || none.Equal(&falzar) {
		t.Error("nil GameInfo comparison is wrong")
	}
}
