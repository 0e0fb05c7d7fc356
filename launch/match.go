// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package launch

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/tango/lib/ipc"
	"github.com/bureau-foundation/tango/lib/replay"
	"github.com/bureau-foundation/tango/lib/rom"
	"github.com/bureau-foundation/tango/lib/save"
	"github.com/bureau-foundation/tango/negotiation"
)

// GameInfoFor converts a library game to its negotiation form.
func GameInfoFor(game rom.Game) *negotiation.GameInfo {
	info := &negotiation.GameInfo{ROMID: game.ROMID}
	if game.Patched() {
		info.Patch = &negotiation.PatchInfo{Name: game.PatchName, Version: game.PatchVersion}
	}
	return info
}

// GameFor converts a negotiated game back to a library game.
func GameFor(info *negotiation.GameInfo) (rom.Game, error) {
	if info == nil {
		return rom.Game{}, errors.New("no game selected")
	}
	game := rom.Game{ROMID: info.ROMID}
	if info.Patch != nil {
		game.PatchName = info.Patch.Name
		game.PatchVersion = info.Patch.Version
	}
	return game, nil
}

// AvailableGames lists every game in library in negotiation form.
func AvailableGames(library *rom.Library) []negotiation.GameInfo {
	games := library.Games()
	available := make([]negotiation.GameInfo, len(games))
	for i, game := range games {
		available[i] = *GameInfoFor(game)
	}
	return available
}

func windowTitle(game rom.Game) string {
	return "tango: " + game.String()
}

func (s *session) singlePlayerRequest() (*ipc.StartRequest, error) {
	prepared, err := s.options.Preparer.Prepare(s.ctx, s.options.Game)
	if err != nil {
		return nil, fmt.Errorf("preparing ROM: %w", err)
	}
	return &ipc.StartRequest{
		WindowTitle: windowTitle(s.options.Game),
		ROMPath:     prepared.Path,
		SavePath:    s.options.SavePath,
	}, nil
}

// matchRequest prepares both ROMs, materializes the shadow save, and
// builds the netplay StartRequest from a completed negotiation.
func (s *session) matchRequest(result *negotiation.Result) (*ipc.StartRequest, error) {
	localGame, err := GameFor(result.LocalSettings.GameInfo)
	if err != nil {
		return nil, fmt.Errorf("local side: %w", err)
	}
	remoteGame, err := GameFor(result.RemoteSettings.GameInfo)
	if err != nil {
		return nil, fmt.Errorf("peer side: %w", err)
	}

	local, err := s.options.Preparer.Prepare(s.ctx, localGame)
	if err != nil {
		return nil, fmt.Errorf("preparing local ROM: %w", err)
	}
	remote, err := s.options.Preparer.Prepare(s.ctx, remoteGame)
	if err != nil {
		return nil, fmt.Errorf("preparing peer ROM: %w", err)
	}

	shadowSavePath, err := save.WriteShadow(filepath.Join(s.config.Paths.Temp, "shadow"), result.Remote.SaveData)
	if err != nil {
		return nil, fmt.Errorf("writing shadow save: %w", err)
	}

	now := s.clock.Now()
	metadata := BuildReplayMetadata(now, s.options.SessionID, result, local, remote)
	encodedMetadata, err := metadata.Encode()
	if err != nil {
		return nil, err
	}

	return &ipc.StartRequest{
		WindowTitle: windowTitle(localGame),
		ROMPath:     local.Path,
		SavePath:    s.options.SavePath,
		MatchSettings: &ipc.MatchSettings{
			ShadowSavePath:   shadowSavePath,
			ShadowROMPath:    remote.Path,
			InputDelay:       result.LocalSettings.InputDelay,
			ShadowInputDelay: result.RemoteSettings.InputDelay,
			MatchType:        result.LocalSettings.MatchType,
			ReplaysPath:      replay.FileName(s.config.Paths.Replays, now, s.compatibility(localGame), result.LocalSettings.MatchType, s.options.SessionID),
			ReplayMetadata:   encodedMetadata,
			RNGSeed:          result.Seed,
		},
	}, nil
}

// compatibility names the netplay group of game for replay naming:
// the patch's compatibility group, or the ROM id when unpatched.
func (s *session) compatibility(game rom.Game) string {
	if !game.Patched() {
		return game.ROMID
	}
	version, err := s.options.Preparer.Library().Catalog().Lookup(game.PatchName, game.PatchVersion)
	if err != nil || version.NetplayCompatibility == "" {
		return game.PatchName
	}
	return version.NetplayCompatibility
}

// BuildReplayMetadata describes a negotiated match for the replay
// header.
func BuildReplayMetadata(start time.Time, linkCode string, result *negotiation.Result, local, remote rom.Prepared) *replay.Metadata {
	return &replay.Metadata{
		Timestamp: start.UnixMilli(),
		LinkCode:  linkCode,
		MatchType: result.LocalSettings.MatchType,
		Local:     replaySide(result.LocalSettings, local),
		Remote:    replaySide(result.RemoteSettings, remote),
	}
}

func replaySide(settings negotiation.Settings, prepared rom.Prepared) replay.Side {
	side := replay.Side{
		Nickname:    settings.Nickname,
		RevealSetup: settings.OpenSetup,
		ROMDigest:   prepared.Digest,
	}
	if settings.GameInfo != nil {
		side.Game.ROM = settings.GameInfo.ROMID
		if patch := settings.GameInfo.Patch; patch != nil {
			side.Game.Patch = &replay.Patch{Name: patch.Name, Version: patch.Version}
		}
	}
	return side
}
