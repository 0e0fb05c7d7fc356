// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/tango/launch"
	"github.com/bureau-foundation/tango/lib/config"
	"github.com/bureau-foundation/tango/lib/ipc"
	"github.com/bureau-foundation/tango/lib/rom"
	"github.com/bureau-foundation/tango/lib/version"
	"github.com/bureau-foundation/tango/negotiation"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath   string
	sessionID    string
	romID        string
	patchName    string
	patchVersion string
	savePath     string
	matchType    string
	inputDelay   uint32
	openSetup    bool
	autoReady    bool
	verbose      bool
	showVersion  bool
}

func parseFlags(args []string) (*flags, error) {
	var f flags
	flagSet := pflag.NewFlagSet("tango-launcher", pflag.ContinueOnError)
	flagSet.StringVar(&f.configPath, "config", "", "path to tango.yaml (default $TANGO_CONFIG)")
	flagSet.StringVar(&f.sessionID, "session", "", "link code shared with the peer; empty plays single-player")
	flagSet.StringVar(&f.romID, "rom", "", "ROM identifier from the config's roms map (default: the first configured)")
	flagSet.StringVar(&f.patchName, "patch", "", "patch to apply to the ROM")
	flagSet.StringVar(&f.patchVersion, "patch-version", "", "patch version (required with --patch)")
	flagSet.StringVar(&f.savePath, "save", "", "save file (default <paths.saves>/<rom>.sav)")
	flagSet.StringVar(&f.matchType, "match-type", "", "single or triple (default: the config's default_match_type)")
	flagSet.Uint32Var(&f.inputDelay, "input-delay", 0, "local input delay in frames (default: the config's input_delay)")
	flagSet.BoolVar(&f.openSetup, "open-setup", false, "reveal your setup to the peer")
	flagSet.BoolVar(&f.autoReady, "auto-ready", true, "ready as soon as the lobby allows it")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false, "log at debug level")
	flagSet.BoolVar(&f.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(flagSet.Args(), " "))
	}
	if (f.patchName == "") != (f.patchVersion == "") {
		return nil, errors.New("--patch and --patch-version must be given together")
	}
	return &f, nil
}

func run() error {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}
	if f.showVersion {
		fmt.Println("tango-launcher " + version.Full())
		return nil
	}

	logger := newLogger(f.verbose)

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	options, err := sessionOptions(f, cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting session",
		"game", options.Game.String(),
		"session", options.SessionID,
		"match_type", options.MatchType.String(),
		"version", version.Info(),
	)
	outcome, err := launch.Run(ctx, options)
	if err != nil {
		var failure *launch.Failure
		if errors.As(err, &failure) && failure.Diagnostics != "" {
			fmt.Fprintf(os.Stderr, "core diagnostics:\n%s\n", strings.TrimRight(failure.Diagnostics, "\n"))
		}
		return err
	}
	logger.Info("session ended", "outcome", outcome.String())
	return nil
}

// newLogger writes text to a terminal and JSON otherwise.
func newLogger(verbose bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		options.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// sessionOptions resolves flags against the configuration.
func sessionOptions(f *flags, cfg *config.Config, logger *slog.Logger) (launch.Options, error) {
	romIDs := cfg.ROMIDs()
	romID := f.romID
	if romID == "" {
		if len(romIDs) == 0 {
			return launch.Options{}, errors.New("no ROMs configured")
		}
		romID = romIDs[0]
	}
	if !slices.Contains(romIDs, romID) {
		return launch.Options{}, fmt.Errorf("ROM %q is not configured (have %s)", romID, strings.Join(romIDs, ", "))
	}

	matchType := cfg.DefaultMatchType
	if f.matchType != "" {
		parsed, err := ipc.ParseMatchType(f.matchType)
		if err != nil {
			return launch.Options{}, fmt.Errorf("--match-type: %w", err)
		}
		matchType = parsed
	}

	catalog, err := rom.ScanPatches(cfg.Paths.Patches, logger.With("component", "patches"))
	if err != nil {
		return launch.Options{}, err
	}
	var patcher rom.Patcher
	if len(cfg.PatchCommand) > 0 {
		patcher = rom.CommandPatcher{Argv: cfg.PatchCommand}
	}
	library := rom.NewLibrary(cfg.ROMs, catalog)
	preparer := rom.NewPreparer(library, patcher, filepath.Join(cfg.Paths.Temp, "roms"), logger.With("component", "rom"))

	game := rom.Game{ROMID: romID, PatchName: f.patchName, PatchVersion: f.patchVersion}
	if !library.Has(game) {
		return launch.Options{}, fmt.Errorf("%s is not available", game)
	}

	savePath := f.savePath
	if savePath == "" {
		savePath = filepath.Join(cfg.Paths.Saves, strings.ReplaceAll(romID, "/", "_")+".sav")
	}

	options := launch.Options{
		Config:     cfg,
		Preparer:   preparer,
		Game:       game,
		SavePath:   savePath,
		SessionID:  f.sessionID,
		MatchType:  matchType,
		InputDelay: f.inputDelay,
		OpenSetup:  f.openSetup,
		Logger:     logger,
	}
	if f.autoReady {
		options.OnNegotiator = func(ctx context.Context, negotiator *negotiation.Negotiator) {
			launch.AutoReady(ctx, negotiator, lobbyLogger(logger))
		}
	}
	return options, nil
}

// lobbyLogger logs the lobby whenever its phase or warnings change.
func lobbyLogger(logger *slog.Logger) func(negotiation.View) {
	var lastPhase negotiation.Phase
	var lastWarnings []negotiation.Warning
	return func(view negotiation.View) {
		if view.Phase == lastPhase && slices.Equal(view.Readiness.Warnings, lastWarnings) {
			return
		}
		lastPhase = view.Phase
		lastWarnings = slices.Clone(view.Readiness.Warnings)

		attrs := []any{"phase", view.Phase.String(), "latency", view.Latency}
		if view.Remote != nil {
			attrs = append(attrs, "peer", view.Remote.Nickname, "peer_game", view.Remote.GameInfo.String())
		}
		if len(view.Readiness.Warnings) > 0 {
			attrs = append(attrs, "warnings", view.Readiness.Warnings)
		}
		logger.Info("lobby", attrs...)
	}
}
