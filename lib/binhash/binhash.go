// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 digest.
type Digest [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing. The bytes are
// the ASCII domain name zero-padded to 32 bytes. Changing a key
// invalidates every cached ROM in that domain.
type domainKey [32]byte

var (
	imageDomainKey = domainKey{
		't', 'a', 'n', 'g', 'o', '.', 'r', 'o', 'm', '.', 'i', 'm', 'a', 'g', 'e', 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	preparedDomainKey = domainKey{
		't', 'a', 'n', 'g', 'o', '.', 'r', 'o', 'm', '.', 'p', 'r', 'e', 'p', 'a', 'r',
		'e', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// HashFile computes the image-domain digest of the file at path. The
// file is streamed through the hash so memory stays constant
// regardless of size.
func HashFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := newKeyed(imageDomainKey)
	if _, err := io.Copy(hasher, file); err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return sum(hasher), nil
}

// HashBytes computes the image-domain digest of data. HashBytes(b)
// equals HashFile of a file containing b.
func HashBytes(data []byte) Digest {
	hasher := newKeyed(imageDomainKey)
	hasher.Write(data)
	return sum(hasher)
}

// Prepared derives the cache key of a prepared ROM from the digest of
// its base image and the digest of the patch applied to it. An
// unpatched ROM passes the zero Digest as patch, which still yields a
// key distinct from the base image digest because the domains differ.
func Prepared(base, patch Digest) Digest {
	hasher := newKeyed(preparedDomainKey)
	hasher.Write(base[:])
	hasher.Write(patch[:])
	return sum(hasher)
}

// FormatDigest returns the lowercase hex form used in file names,
// replay metadata, and log output.
func FormatDigest(digest Digest) string {
	return hex.EncodeToString(digest[:])
}

// ParseDigest parses a 64-character hex digest.
func ParseDigest(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing hash digest: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("hash digest is %d bytes, want %d", len(decoded), len(digest))
	}
	copy(digest[:], decoded)
	return digest, nil
}

func newKeyed(key domainKey) *blake3.Hasher {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic("binhash: " + err.Error())
	}
	return hasher
}

func sum(hasher *blake3.Hasher) Digest {
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}
