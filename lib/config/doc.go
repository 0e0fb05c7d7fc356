// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the launcher.
//
// Configuration is loaded from a single file named by either the
// TANGO_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no discovery and no fallback search.
//
// Path fields support ${HOME}, ${TANGO_ROOT}, and ${VAR:-default}
// expansion after loading. ICE server entries are validated as
// STUN/TURN URIs so a typo fails at startup rather than inside the
// core's peer connection.
//
// Key exports:
//
//   - [Config] -- nickname, input delay, ROM library, core, negotiation, paths
//   - [Default] -- the base configuration the file is merged onto
//   - [Load] and [LoadFile] -- the two entry points for loading
package config
