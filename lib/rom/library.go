// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rom

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownROM is returned for a ROM id with no configured image.
var ErrUnknownROM = errors.New("rom: unknown ROM")

// Game is a runnable combination of a base ROM and an optional patch.
// PatchName and PatchVersion are both empty for an unpatched game.
type Game struct {
	ROMID        string
	PatchName    string
	PatchVersion string
}

// Patched reports whether the game applies a patch.
func (g Game) Patched() bool { return g.PatchName != "" }

func (g Game) String() string {
	if !g.Patched() {
		return g.ROMID
	}
	return g.ROMID + "+" + g.PatchName + "@" + g.PatchVersion
}

// Library is the set of base images and patches available locally.
type Library struct {
	roms    map[string]string
	catalog Catalog
}

// NewLibrary returns a library over roms (ROM id to image path) and a
// patch catalog. Either may be nil.
func NewLibrary(roms map[string]string, catalog Catalog) *Library {
	if roms == nil {
		roms = map[string]string{}
	}
	if catalog == nil {
		catalog = Catalog{}
	}
	return &Library{roms: roms, catalog: catalog}
}

// Catalog returns the patch catalog.
func (l *Library) Catalog() Catalog { return l.catalog }

// ROMPath returns the base image for romID.
func (l *Library) ROMPath(romID string) (string, error) {
	path, ok := l.roms[romID]
	if !ok || path == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownROM, romID)
	}
	return path, nil
}

// Games lists every runnable game: each configured ROM unpatched, and
// with every installed version of every patch targeting it. Patches
// for ROMs that are not configured are omitted. The order is stable.
func (l *Library) Games() []Game {
	var games []Game
	for romID := range l.roms {
		games = append(games, Game{ROMID: romID})
	}
	for name, patch := range l.catalog {
		if _, ok := l.roms[patch.ForROM]; !ok {
			continue
		}
		for version := range patch.Versions {
			games = append(games, Game{ROMID: patch.ForROM, PatchName: name, PatchVersion: version})
		}
	}
	sort.Slice(games, func(i, j int) bool {
		a, b := games[i], games[j]
		if a.ROMID != b.ROMID {
			return a.ROMID < b.ROMID
		}
		if a.PatchName != b.PatchName {
			return a.PatchName < b.PatchName
		}
		return a.PatchVersion < b.PatchVersion
	})
	return games
}

// Has reports whether game can be prepared locally.
func (l *Library) Has(game Game) bool {
	if _, err := l.ROMPath(game.ROMID); err != nil {
		return false
	}
	if !game.Patched() {
		return true
	}
	version, err := l.catalog.Lookup(game.PatchName, game.PatchVersion)
	return err == nil && l.catalog[game.PatchName].ForROM == game.ROMID && version.Path != ""
}
