// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rom resolves the games a launcher can run and prepares the
// ROM images the core loads.
//
// A [Library] combines the configured base images (ROM id to path)
// with a [Catalog] of patches scanned from the patches directory. Each
// patch lives in its own directory:
//
//	<patches>/<name>/info.jsonc
//	<patches>/<name>/v<version>.bps
//	<patches>/<name>/v<version>.ips
//
// info.jsonc is JSON with comments and trailing commas:
//
//	{
//	  "title": "Balance Patch",
//	  "authors": ["someone"],
//	  "for_rom": "bn6/falzar",
//	  "versions": {
//	    "1.2.0": {"netplay_compatibility": "balance-1"},
//	  },
//	}
//
// A [Preparer] turns a [Game] into a file path. Unpatched games use
// the base image in place. Patched games are produced by a [Patcher]
// into a cache directory keyed by the BLAKE3 digests of the base image
// and the patch file, so identical inputs are prepared once.
package rom
