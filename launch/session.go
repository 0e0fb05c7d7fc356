// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bureau-foundation/tango/internal/core"
	"github.com/bureau-foundation/tango/lib/clock"
	"github.com/bureau-foundation/tango/lib/config"
	"github.com/bureau-foundation/tango/lib/ipc"
	"github.com/bureau-foundation/tango/lib/process"
	"github.com/bureau-foundation/tango/lib/rom"
	"github.com/bureau-foundation/tango/lib/save"
	"github.com/bureau-foundation/tango/negotiation"
	"github.com/bureau-foundation/tango/tunnel"
)

// Core is the running core process as a session uses it.
// *core.Process implements it.
type Core interface {
	tunnel.Channel
	Close() error
	Exited() <-chan struct{}
	Wait() process.ExitStatus
	Diagnostics() string
}

// StartCoreFunc spawns a core. Cancelling ctx must terminate it.
type StartCoreFunc func(ctx context.Context, args ipc.Args) (Core, error)

// Options configures a session.
type Options struct {
	Config *config.Config

	// Preparer resolves and prepares ROMs. Its library also supplies
	// the games offered to the peer.
	Preparer *rom.Preparer

	// Game is the local player's selection.
	Game rom.Game

	// SavePath is the local save file.
	SavePath string

	// SessionID is the link code shared with the peer. Empty starts a
	// single-player session without negotiation.
	SessionID string

	MatchType ipc.MatchType

	// InputDelay overrides Config.InputDelay when non-zero.
	InputDelay uint32

	OpenSetup bool

	// StartCore defaults to spawning Config.Core.Path.
	StartCore StartCoreFunc

	// OnNegotiator is called in its own goroutine once negotiation
	// begins. It drives readiness (see AutoReady) and may consume
	// views. Without it nobody readies and the session waits until
	// cancelled.
	OnNegotiator func(ctx context.Context, negotiator *negotiation.Negotiator)

	Clock  clock.Clock
	Random io.Reader
	Logger *slog.Logger
}

// session holds one Run's state.
type session struct {
	options Options
	config  *config.Config
	clock   clock.Clock
	logger  *slog.Logger

	ctx        context.Context
	cancelCore context.CancelFunc
	core       Core
	mux        *tunnel.Mux
}

// Run executes one session. It returns a nil error with
// OutcomeFinished, OutcomeExited, or OutcomeCancelled; any other end
// is a *Failure.
func Run(ctx context.Context, options Options) (Outcome, error) {
	if err := options.validate(); err != nil {
		return OutcomeFailed, err
	}
	s := &session{
		options: options,
		config:  options.Config,
		clock:   options.Clock,
		logger:  options.Logger,
		ctx:     ctx,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.options.StartCore == nil {
		s.options.StartCore = s.spawnCore
	}
	return s.run()
}

func (o *Options) validate() error {
	var errs []error
	if o.Config == nil {
		errs = append(errs, errors.New("launch: Config is required"))
	}
	if o.Preparer == nil {
		errs = append(errs, errors.New("launch: Preparer is required"))
	}
	if o.Game.ROMID == "" {
		errs = append(errs, errors.New("launch: no game selected"))
	}
	if o.SavePath == "" {
		errs = append(errs, errors.New("launch: SavePath is required"))
	}
	return errors.Join(errs...)
}

func (s *session) spawnCore(ctx context.Context, args ipc.Args) (Core, error) {
	return core.Start(ctx, core.Options{
		Path:          s.config.Core.Path,
		Args:          args,
		Env:           s.config.Core.Env,
		Logger:        s.logger.With("component", "core"),
		ShutdownGrace: s.config.Core.ShutdownGrace,
	})
}

func (s *session) run() (Outcome, error) {
	coreCtx, cancelCore := context.WithCancel(s.ctx)
	defer cancelCore()
	s.cancelCore = cancelCore

	started, err := s.options.StartCore(coreCtx, s.config.CoreArgs(s.options.SessionID))
	if err != nil {
		if s.ctx.Err() != nil {
			return OutcomeCancelled, nil
		}
		return OutcomeFailed, &Failure{Kind: FailureTransport, Err: err}
	}
	s.core = started
	s.mux = tunnel.NewMux(s.core, s.logger.With("component", "mux"))
	go s.mux.Run(coreCtx)

	if err := s.mux.WaitState(s.ctx, ipc.StateReadyToStart); err != nil {
		return s.fail(FailureTransport, fmt.Errorf("waiting for the core to become ready: %w", err))
	}

	var request *ipc.StartRequest
	if s.options.SessionID == "" {
		request, err = s.singlePlayerRequest()
		if err != nil {
			return s.fail(FailurePrepare, err)
		}
	} else {
		result, err := s.negotiate()
		if err != nil {
			kind := FailureTransport
			if errors.Is(err, negotiation.ErrProtocolViolation) || errors.Is(err, negotiation.ErrVersionMismatch) {
				kind = FailureProtocol
			}
			return s.fail(kind, fmt.Errorf("negotiating with peer: %w", err))
		}
		request, err = s.matchRequest(result)
		if err != nil {
			return s.fail(FailurePrepare, err)
		}
	}

	if err := s.core.Send(&ipc.ToCoreMessage{StartRequest: request}); err != nil {
		return s.fail(FailureTransport, fmt.Errorf("sending start request: %w", err))
	}
	s.logger.Info("start request sent", "rom", request.ROMPath, "netplay", request.MatchSettings != nil)

	if err := s.mux.WaitState(s.ctx, ipc.StateRunning); err != nil {
		return s.fail(FailureTransport, fmt.Errorf("waiting for the match to run: %w", err))
	}

	select {
	case <-s.core.Exited():
	case <-s.ctx.Done():
		return s.cancelled()
	}
	status := s.core.Wait()
	if status.Clean() {
		s.logger.Info("session finished", "status", status.String())
		return OutcomeFinished, nil
	}
	return OutcomeFailed, s.crash(status)
}

// negotiate runs the negotiation over the core's tunnel.
func (s *session) negotiate() (*negotiation.Result, error) {
	inputDelay := s.options.InputDelay
	if inputDelay == 0 {
		inputDelay = uint32(s.config.InputDelay)
	}
	settings := negotiation.Settings{
		Nickname:       s.config.Nickname,
		InputDelay:     inputDelay,
		MatchType:      s.options.MatchType,
		GameInfo:       GameInfoFor(s.options.Game),
		AvailableGames: AvailableGames(s.options.Preparer.Library()),
		OpenSetup:      s.options.OpenSetup,
	}

	conn := s.mux.Tunnel()
	defer conn.Close()
	negotiator := negotiation.New(conn, negotiation.Options{
		Settings:     settings,
		SaveData:     save.Loader(s.options.SavePath),
		Compression:  s.config.CompressionTag(),
		Random:       s.options.Random,
		PingInterval: s.config.Negotiation.PingInterval,
		Clock:        s.clock,
		Logger:       s.logger.With("component", "negotiation"),
	})

	negotiationCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if s.options.OnNegotiator != nil {
		go s.options.OnNegotiator(negotiationCtx, negotiator)
	}
	result, err := negotiator.Run(negotiationCtx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("negotiation complete",
		"peer", result.RemoteSettings.Nickname,
		"peer_game", result.RemoteSettings.GameInfo.String(),
	)
	return result, nil
}

// fail stops the core and reports err, unless the session was
// cancelled or the core's own exit explains the failure.
func (s *session) fail(kind FailureKind, err error) (Outcome, error) {
	if s.ctx.Err() != nil {
		return s.cancelled()
	}

	// If the core's output ended it is on its way out; give it a
	// moment to be reaped so a crash is reported as one.
	select {
	case <-s.mux.Done():
		select {
		case <-s.core.Exited():
		case <-s.clock.After(s.config.Core.ShutdownGrace):
		}
	default:
	}

	select {
	case <-s.core.Exited():
		status := s.core.Wait()
		if !status.Clean() {
			s.logger.Warn("core exited during session", "status", status.String(), "cause", err)
			return OutcomeFailed, s.crash(status)
		}
		s.logger.Info("core exited before the match started", "status", status.String())
		return OutcomeExited, nil
	default:
	}

	s.logger.Error("session failed", "kind", kind.String(), "error", err)
	s.cancelCore()
	status := s.core.Wait()
	return OutcomeFailed, &Failure{
		Kind:        kind,
		Err:         err,
		Status:      status,
		Diagnostics: s.core.Diagnostics(),
	}
}

func (s *session) crash(status process.ExitStatus) *Failure {
	return &Failure{
		Kind:        FailureCrash,
		Err:         fmt.Errorf("%w: %s", ErrCoreCrashed, status),
		Status:      status,
		Diagnostics: s.core.Diagnostics(),
	}
}

func (s *session) cancelled() (Outcome, error) {
	s.cancelCore()
	status := s.core.Wait()
	s.logger.Info("session cancelled", "core_status", status.String())
	return OutcomeCancelled, nil
}

// AutoReady readies the local side whenever the view allows it, until
// the negotiation ends or ctx is cancelled. observe, if non-nil, sees
// every view first.
func AutoReady(ctx context.Context, negotiator *negotiation.Negotiator, observe func(negotiation.View)) {
	for {
		select {
		case view := <-negotiator.Views():
			if observe != nil {
				observe(view)
			}
			if view.Phase != negotiation.PhaseLobby || view.LocalCommitted || !view.Readiness.Enabled {
				continue
			}
			err := negotiator.SetReady(ctx, true)
			if err != nil && !errors.Is(err, negotiation.ErrNotAllowed) && !errors.Is(err, negotiation.ErrBusy) {
				return
			}
		case <-negotiator.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}
