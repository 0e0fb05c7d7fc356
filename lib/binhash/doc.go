// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash provides BLAKE3 content digests for ROM images.
//
// Preparing a ROM (copying a base image, applying a patch) produces a
// file the core loads by path. The launcher keys those prepared files
// by content: [Prepared] combines the digest of the base image and the
// digest of the patch, so a cached ROM is reused across sessions
// exactly when both inputs are byte-identical. Digests also appear in
// replay metadata so a replay can be matched to the images it was
// recorded against.
//
// Hashing uses BLAKE3 keyed mode with distinct domain keys for raw
// images and prepared ROMs.
//
// This package has no dependencies on other tango packages.
package binhash
