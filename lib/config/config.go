// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/pion/stun/v3"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/tango/lib/compress"
	"github.com/bureau-foundation/tango/lib/ipc"
)

// Config is the launcher configuration.
type Config struct {
	// Nickname is shown to the peer in the lobby.
	Nickname string `yaml:"nickname"`

	// InputDelay is the default local input delay in frames.
	InputDelay int `yaml:"input_delay"`

	// DefaultMatchType is proposed when the user does not pick one.
	DefaultMatchType ipc.MatchType `yaml:"default_match_type"`

	// ROMs maps a ROM identifier (game family and variant, e.g.
	// "bn6/falzar") to the base image on disk. Only games listed here
	// are offered to the peer as available.
	ROMs map[string]string `yaml:"roms"`

	// PatchCommand applies a patch to a base ROM. Each argument may
	// use the placeholders {base}, {patch}, {format}, and {out}.
	// Empty disables patched games.
	PatchCommand []string `yaml:"patch_command"`

	Core        CoreConfig        `yaml:"core"`
	Negotiation NegotiationConfig `yaml:"negotiation"`
	Paths       PathsConfig       `yaml:"paths"`
}

// CoreConfig configures the core process.
type CoreConfig struct {
	// Path is the core executable.
	Path string `yaml:"path"`

	// SignalingAddr is the signaling server URL.
	SignalingAddr string `yaml:"signaling_addr"`

	// ICEServers are STUN/TURN URIs, e.g. "stun:stun.l.google.com:19302".
	ICEServers []string `yaml:"ice_servers"`

	Keymapping ipc.Keymapping `yaml:"keymapping"`

	// Env holds extra KEY=VALUE entries appended to the core's
	// environment.
	Env []string `yaml:"env"`

	// ShutdownGrace is how long the core gets between SIGTERM and
	// SIGKILL when a session is cancelled.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// NegotiationConfig tunes the peer negotiation.
type NegotiationConfig struct {
	// Compression names the algorithm used for reveal payloads:
	// zstd, lz4, or none.
	Compression string `yaml:"compression"`

	// PingInterval is the period of latency probes to the peer.
	PingInterval time.Duration `yaml:"ping_interval"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory; other paths default beneath it.
	Root string `yaml:"root"`

	// Patches holds one directory per patch, each with an info.jsonc
	// and versioned patch files.
	Patches string `yaml:"patches"`

	// Saves holds the player's save files.
	Saves string `yaml:"saves"`

	// Replays is where the core writes replays.
	Replays string `yaml:"replays"`

	// Temp holds prepared ROMs and shadow saves.
	Temp string `yaml:"temp"`
}

// Default returns the configuration used as the base before the file
// is loaded.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "tango")

	return &Config{
		Nickname:         "",
		InputDelay:       ipc.MinInputDelay,
		DefaultMatchType: ipc.MatchSingle,
		ROMs:             map[string]string{},
		Core: CoreConfig{
			Path:          "tango-core",
			SignalingAddr: "wss://signaling.tango.n1gp.net",
			ICEServers: []string{
				"stun:stun.l.google.com:19302",
				"stun:stun1.l.google.com:19302",
			},
			Keymapping:    ipc.DefaultKeymapping(),
			ShutdownGrace: 5 * time.Second,
		},
		Negotiation: NegotiationConfig{
			Compression:  compress.Zstd.String(),
			PingInterval: time.Second,
		},
		Paths: PathsConfig{
			Root:    defaultRoot,
			Patches: filepath.Join(defaultRoot, "patches"),
			Saves:   filepath.Join(defaultRoot, "saves"),
			Replays: filepath.Join(defaultRoot, "replays"),
			Temp:    filepath.Join(os.TempDir(), "tango"),
		},
	}
}

// Load loads configuration from the file named by TANGO_CONFIG. There
// is no discovery: if TANGO_CONFIG is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv("TANGO_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("TANGO_CONFIG environment variable not set; " +
			"set it to the path of your tango.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path on top of Default and expands
// ${HOME}, ${TANGO_ROOT}, and ${VAR:-default} in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands variables in every path-valued field.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"TANGO_ROOT": c.Paths.Root,
		"HOME":       os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["TANGO_ROOT"] = c.Paths.Root // Dependent paths see the expanded root.

	c.Paths.Patches = expandVars(c.Paths.Patches, vars)
	c.Paths.Saves = expandVars(c.Paths.Saves, vars)
	c.Paths.Replays = expandVars(c.Paths.Replays, vars)
	c.Paths.Temp = expandVars(c.Paths.Temp, vars)
	c.Core.Path = expandVars(c.Core.Path, vars)
	for i, arg := range c.PatchCommand {
		c.PatchCommand[i] = expandVars(arg, vars)
	}
	for romID, romPath := range c.ROMs {
		c.ROMs[romID] = expandVars(romPath, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. Provided
// vars take precedence over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Nickname == "" {
		errs = append(errs, fmt.Errorf("nickname is required"))
	}
	if c.InputDelay < ipc.MinInputDelay || c.InputDelay > ipc.MaxInputDelay {
		errs = append(errs, fmt.Errorf("input_delay must be between %d and %d, got %d",
			ipc.MinInputDelay, ipc.MaxInputDelay, c.InputDelay))
	}
	if _, err := c.DefaultMatchType.MarshalText(); err != nil {
		errs = append(errs, fmt.Errorf("default_match_type: %w", err))
	}

	for _, romID := range c.ROMIDs() {
		if c.ROMs[romID] == "" {
			errs = append(errs, fmt.Errorf("roms.%s: path is empty", romID))
		}
	}

	if c.Core.Path == "" {
		errs = append(errs, fmt.Errorf("core.path is required"))
	}
	if c.Core.SignalingAddr == "" {
		errs = append(errs, fmt.Errorf("core.signaling_addr is required"))
	}
	for i, server := range c.Core.ICEServers {
		if _, err := stun.ParseURI(server); err != nil {
			errs = append(errs, fmt.Errorf("core.ice_servers[%d] %q: %w", i, server, err))
		}
	}
	if c.Core.ShutdownGrace <= 0 {
		errs = append(errs, fmt.Errorf("core.shutdown_grace must be positive"))
	}

	if _, err := compress.ParseTag(c.Negotiation.Compression); err != nil {
		errs = append(errs, fmt.Errorf("negotiation.compression: %w", err))
	}
	if c.Negotiation.PingInterval <= 0 {
		errs = append(errs, fmt.Errorf("negotiation.ping_interval must be positive"))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Paths.Temp == "" {
		errs = append(errs, fmt.Errorf("paths.temp is required"))
	}

	return errors.Join(errs...)
}

// CompressionTag returns the parsed negotiation.compression value.
// Call after Validate.
func (c *Config) CompressionTag() compress.Tag {
	tag, err := compress.ParseTag(c.Negotiation.Compression)
	if err != nil {
		return compress.Zstd
	}
	return tag
}

// ROMIDs returns the configured ROM identifiers in sorted order.
func (c *Config) ROMIDs() []string {
	ids := make([]string, 0, len(c.ROMs))
	for romID := range c.ROMs {
		ids = append(ids, romID)
	}
	sort.Strings(ids)
	return ids
}

// CoreArgs returns the core argument surface for a session. An empty
// sessionID starts a single-player session.
func (c *Config) CoreArgs(sessionID string) ipc.Args {
	return ipc.Args{
		Keymapping:    c.Core.Keymapping,
		SignalingAddr: c.Core.SignalingAddr,
		ICEServers:    c.Core.ICEServers,
		SessionID:     sessionID,
	}
}

// EnsurePaths creates every configured directory that does not exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.Saves, c.Paths.Replays, c.Paths.Temp} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
