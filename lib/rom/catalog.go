// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rom

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/tidwall/jsonc"
)

// ErrUnknownPatch is returned when a patch name or version is not in
// the catalog.
var ErrUnknownPatch = errors.New("rom: unknown patch")

// Patch formats recognized on disk, in lookup order.
var patchFormats = []string{"bps", "ips"}

// versionPattern accepts MAJOR.MINOR.PATCH with an optional
// pre-release suffix.
var versionPattern = regexp.MustCompile(`^(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)(-[0-9A-Za-z.-]+)?$`)

// Patch is one catalog entry.
type Patch struct {
	Name    string
	Title   string
	Authors []string
	Source  string
	License string

	// ForROM is the ROM id the patch applies to.
	ForROM string

	// Versions maps a version string to its patch file.
	Versions map[string]PatchVersion
}

// PatchVersion is one installed version of a patch.
type PatchVersion struct {
	Version string

	// Format is "bps" or "ips".
	Format string

	// Path is the patch file.
	Path string

	// NetplayCompatibility groups versions that can play each other.
	NetplayCompatibility string
}

// SortedVersions returns the patch's version strings in ascending
// order.
func (p *Patch) SortedVersions() []string {
	versions := make([]string, 0, len(p.Versions))
	for version := range p.Versions {
		versions = append(versions, version)
	}
	sort.Strings(versions)
	return versions
}

// Catalog maps patch names to patches.
type Catalog map[string]*Patch

// Lookup returns the named version of a patch.
func (c Catalog) Lookup(name, version string) (PatchVersion, error) {
	patch, ok := c[name]
	if !ok {
		return PatchVersion{}, fmt.Errorf("%w: %s", ErrUnknownPatch, name)
	}
	found, ok := patch.Versions[version]
	if !ok {
		return PatchVersion{}, fmt.Errorf("%w: %s version %s", ErrUnknownPatch, name, version)
	}
	return found, nil
}

// infoFile is the on-disk shape of info.jsonc.
type infoFile struct {
	Title    string                 `json:"title"`
	Authors  []string               `json:"authors"`
	Source   string                 `json:"source"`
	License  string                 `json:"license"`
	ForROM   string                 `json:"for_rom"`
	Versions map[string]versionFile `json:"versions"`
}

type versionFile struct {
	NetplayCompatibility string `json:"netplay_compatibility"`
}

// ScanPatches reads every patch directory under dir. A missing dir is
// an empty catalog. Patches or versions that cannot be used are
// skipped with a warning rather than failing the scan, so one broken
// download does not hide every other patch.
func ScanPatches(dir string, logger *slog.Logger) (Catalog, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	catalog := Catalog{}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return catalog, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning patches: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		patchDir := filepath.Join(dir, name)
		patch, err := readPatch(name, patchDir, logger)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			logger.Warn("skipping patch", "patch", name, "error", err)
			continue
		}
		catalog[name] = patch
	}
	return catalog, nil
}

// ParseInfo parses info.jsonc content.
func ParseInfo(data []byte) (*Patch, error) {
	var info infoFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &info); err != nil {
		return nil, fmt.Errorf("parsing patch info: %w", err)
	}
	if info.ForROM == "" {
		return nil, errors.New("patch info has no for_rom")
	}
	patch := &Patch{
		Title:    info.Title,
		Authors:  info.Authors,
		Source:   info.Source,
		License:  info.License,
		ForROM:   info.ForROM,
		Versions: make(map[string]PatchVersion, len(info.Versions)),
	}
	for version, details := range info.Versions {
		patch.Versions[version] = PatchVersion{
			Version:              version,
			NetplayCompatibility: details.NetplayCompatibility,
		}
	}
	return patch, nil
}

func readPatch(name, patchDir string, logger *slog.Logger) (*Patch, error) {
	data, err := os.ReadFile(filepath.Join(patchDir, "info.jsonc"))
	if err != nil {
		return nil, err
	}
	patch, err := ParseInfo(data)
	if err != nil {
		return nil, err
	}
	patch.Name = name
	if patch.Title == "" {
		patch.Title = name
	}

	for version, details := range patch.Versions {
		if !versionPattern.MatchString(version) {
			logger.Warn("skipping patch version", "patch", name, "version", version, "reason", "not a semantic version")
			delete(patch.Versions, version)
			continue
		}
		details.Path, details.Format = findPatchFile(patchDir, version)
		if details.Path == "" {
			logger.Warn("skipping patch version", "patch", name, "version", version, "reason", "no patch file")
			delete(patch.Versions, version)
			continue
		}
		patch.Versions[version] = details
	}
	return patch, nil
}

func findPatchFile(patchDir, version string) (path, format string) {
	for _, format := range patchFormats {
		candidate := filepath.Join(patchDir, "v"+version+"."+format)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, format
		}
	}
	return "", ""
}
