// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/tango/lib/binhash"
)

// ErrNoPatcher is returned when a patched game is prepared without a
// Patcher.
var ErrNoPatcher = errors.New("rom: no patcher configured")

// Patcher applies a patch file to a base image, writing the result to
// out. format is the patch format ("bps" or "ips").
type Patcher interface {
	Apply(ctx context.Context, base, patch, format, out string) error
}

// Prepared describes a ROM ready for the core.
type Prepared struct {
	Game Game

	// Path is the file to hand to the core.
	Path string

	// Digest identifies the prepared bytes. For an unpatched game it
	// is the base image digest.
	Digest binhash.Digest
}

// Preparer materializes games from a Library.
type Preparer struct {
	library  *Library
	patcher  Patcher
	cacheDir string
	logger   *slog.Logger
}

// NewPreparer returns a Preparer writing patched ROMs under cacheDir.
// patcher may be nil if no patched game will be prepared.
func NewPreparer(library *Library, patcher Patcher, cacheDir string, logger *slog.Logger) *Preparer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Preparer{library: library, patcher: patcher, cacheDir: cacheDir, logger: logger}
}

// Library returns the library games are prepared from.
func (p *Preparer) Library() *Library { return p.library }

// Prepare returns the ROM file for game, applying its patch if needed.
// A patched ROM is cached by the digests of its inputs; a cache hit
// skips the patcher.
func (p *Preparer) Prepare(ctx context.Context, game Game) (Prepared, error) {
	basePath, err := p.library.ROMPath(game.ROMID)
	if err != nil {
		return Prepared{}, err
	}
	baseDigest, err := binhash.HashFile(basePath)
	if err != nil {
		return Prepared{}, fmt.Errorf("hashing ROM %s: %w", game.ROMID, err)
	}
	if !game.Patched() {
		return Prepared{Game: game, Path: basePath, Digest: baseDigest}, nil
	}

	version, err := p.library.Catalog().Lookup(game.PatchName, game.PatchVersion)
	if err != nil {
		return Prepared{}, err
	}
	if target := p.library.Catalog()[game.PatchName].ForROM; target != game.ROMID {
		return Prepared{}, fmt.Errorf("%w: %s targets %s, not %s", ErrUnknownPatch, game.PatchName, target, game.ROMID)
	}
	patchDigest, err := binhash.HashFile(version.Path)
	if err != nil {
		return Prepared{}, fmt.Errorf("hashing patch %s: %w", game, err)
	}

	digest := binhash.Prepared(baseDigest, patchDigest)
	finalPath := filepath.Join(p.cacheDir, binhash.FormatDigest(digest)+".gba")
	if info, err := os.Stat(finalPath); err == nil && info.Mode().IsRegular() {
		p.logger.Debug("prepared ROM cache hit", "game", game.String(), "path", finalPath)
		return Prepared{Game: game, Path: finalPath, Digest: digest}, nil
	}

	if p.patcher == nil {
		return Prepared{}, ErrNoPatcher
	}
	if err := os.MkdirAll(p.cacheDir, 0o755); err != nil {
		return Prepared{}, fmt.Errorf("creating ROM cache: %w", err)
	}

	// The patcher writes to a temporary name; only a complete file is
	// renamed into the cache.
	tmpFile, err := os.CreateTemp(p.cacheDir, "prepare-*.tmp")
	if err != nil {
		return Prepared{}, fmt.Errorf("creating temp ROM: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := p.patcher.Apply(ctx, basePath, version.Path, version.Format, tmpPath); err != nil {
		return Prepared{}, fmt.Errorf("patching %s: %w", game, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return Prepared{}, fmt.Errorf("renaming prepared ROM: %w", err)
	}
	success = true

	p.logger.Info("prepared patched ROM", "game", game.String(), "path", finalPath)
	return Prepared{Game: game, Path: finalPath, Digest: digest}, nil
}
