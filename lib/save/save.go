// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package save reads the player's save file and materializes shadow
// saves: copies of the peer's revealed save that the core loads for
// the opponent's side of a session, so the player's own file is never
// written.
package save

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MaxSize bounds a save file. Game Boy Advance saves are at most
// 128 KiB; anything much larger is not a save.
const MaxSize = 512 * 1024

// ErrTooLarge is returned by Read for files above MaxSize.
var ErrTooLarge = errors.New("save: file too large")

// Read returns the contents of the save file at path.
func Read(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening save: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading save %s: %w", path, err)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, path, MaxSize)
	}
	return data, nil
}

// Loader returns a function that reads path on every call, for
// snapshotting the save at the moment the player readies.
func Loader(path string) func() ([]byte, error) {
	return func() ([]byte, error) { return Read(path) }
}

// WriteShadow writes data to a new uniquely named file in dir and
// returns its path.
func WriteShadow(dir string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating shadow save directory: %w", err)
	}
	var suffix [8]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", fmt.Errorf("naming shadow save: %w", err)
	}
	path := filepath.Join(dir, "shadow-"+hex.EncodeToString(suffix[:])+".sav")
	if err := WriteFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// WriteFile replaces path with data atomically: readers see either the
// old content or the new, never a partial file.
func WriteFile(path string, data []byte) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary save file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary save file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary save file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary save file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming save file into place: %w", err)
	}
	return nil
}
