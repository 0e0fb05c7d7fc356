// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package replay builds the metadata the core embeds in replay files
// and names the files it writes.
//
// Metadata travels to the core as opaque bytes inside the
// StartRequest; the core stores them verbatim at the head of the
// replay. They are CBOR so replay tooling can decode them with the
// same codec as every other launcher structure.
package replay

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/bureau-foundation/tango/lib/binhash"
	"github.com/bureau-foundation/tango/lib/codec"
	"github.com/bureau-foundation/tango/lib/ipc"
)

// Metadata describes one recorded match.
type Metadata struct {
	// Timestamp is the match start in Unix milliseconds.
	Timestamp int64 `cbor:"ts"`

	// LinkCode is the session identifier both peers joined.
	LinkCode string `cbor:"link_code"`

	MatchType ipc.MatchType `cbor:"match_type"`

	Local  Side `cbor:"local"`
	Remote Side `cbor:"remote"`
}

// Side describes one player.
type Side struct {
	Nickname string   `cbor:"nickname"`
	Game     GameInfo `cbor:"game"`

	// RevealSetup records whether the side's setup was visible.
	RevealSetup bool `cbor:"reveal_setup"`

	// ROMDigest identifies the exact prepared image played.
	ROMDigest binhash.Digest `cbor:"rom_digest"`
}

// GameInfo names the ROM and optional patch a side played.
type GameInfo struct {
	ROM   string `cbor:"rom"`
	Patch *Patch `cbor:"patch,omitempty"`
}

// Patch names a patch and version.
type Patch struct {
	Name    string `cbor:"name"`
	Version string `cbor:"version"`
}

// Encode returns the bytes handed to the core.
func (m *Metadata) Encode() ([]byte, error) {
	if m.LinkCode == "" {
		return nil, errors.New("replay: metadata has no link code")
	}
	data, err := codec.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("replay: encoding metadata: %w", err)
	}
	return data, nil
}

// Decode parses metadata produced by Encode.
func Decode(data []byte) (*Metadata, error) {
	var m Metadata
	if err := codec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("replay: decoding metadata: %w", err)
	}
	return &m, nil
}

// unsafeName matches characters not allowed in a replay file name.
var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName returns the replay path prefix for a match under dir:
//
//	<dir>/<yyyymmddhhmmss>-<compatibility>-<match type>-<link code>
//
// compatibility is the netplay compatibility group of the played game
// (the ROM id when unpatched). The core appends round suffixes.
func FileName(dir string, start time.Time, compatibility string, matchType ipc.MatchType, linkCode string) string {
	name := fmt.Sprintf("%s-%s-%s-%s",
		start.UTC().Format("20060102150405"),
		unsafeName.ReplaceAllString(compatibility, "_"),
		matchType,
		unsafeName.ReplaceAllString(linkCode, "_"),
	)
	return filepath.Join(dir, name)
}
