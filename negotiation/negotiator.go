// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/tango/lib/clock"
	"github.com/bureau-foundation/tango/lib/codec"
	"github.com/bureau-foundation/tango/lib/compress"
	"github.com/bureau-foundation/tango/tunnel"
)

// DefaultPingInterval is how often a Negotiator pings the peer.
const DefaultPingInterval = time.Second

// Options configures a Negotiator.
type Options struct {
	// Settings is the initial local proposal, sent right after Hello.
	Settings Settings

	// SaveData returns the local save bytes. It is called each time
	// the player readies, so every commitment snapshots the save as
	// it is at that moment. Nil commits to an empty save.
	SaveData func() ([]byte, error)

	Compression  compress.Tag
	Random       io.Reader
	MaxStateSize int

	// PingInterval defaults to DefaultPingInterval.
	PingInterval time.Duration

	// Clock defaults to clock.Real().
	Clock  clock.Clock
	Logger *slog.Logger
}

// Negotiator runs the negotiation protocol over a tunnel.Conn. All
// protocol state lives in a Lobby owned by the Run goroutine; Propose
// and SetReady are requests to that goroutine.
type Negotiator struct {
	conn    tunnel.Conn
	options Options
	clock   clock.Clock
	logger  *slog.Logger
	lobby   *Lobby

	requests chan request
	views    chan View
	done     chan struct{}

	// pendingToggles counts SetReady calls not yet applied. While
	// non-zero the readiness toggle is disabled.
	pendingToggles atomic.Int32

	latency LatencyCounter

	mu   sync.Mutex
	last View
}

type request struct {
	toggle bool
	apply  func() ([]Message, error)
	reply  chan error
}

type incoming struct {
	message Message
	err     error
}

// New returns a Negotiator over conn. Call Run to start it.
func New(conn tunnel.Conn, options Options) *Negotiator {
	if options.PingInterval <= 0 {
		options.PingInterval = DefaultPingInterval
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	lobby := NewLobby(LobbyOptions{
		Compression:  options.Compression,
		Random:       options.Random,
		MaxStateSize: options.MaxStateSize,
		Logger:       logger,
	})
	return &Negotiator{
		conn:     conn,
		options:  options,
		clock:    clk,
		logger:   logger,
		lobby:    lobby,
		requests: make(chan request),
		views:    make(chan View, 1),
		done:     make(chan struct{}),
		last:     lobby.View(false),
	}
}

// Run negotiates until both sides have verified each other's reveal,
// returning the result. It fails with a *ProtocolError on any
// violation, ErrVersionMismatch if the peer speaks another version,
// ErrPeerGone if the tunnel closes, or the context's cause.
func (n *Negotiator) Run(ctx context.Context) (*Result, error) {
	defer close(n.done)
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if err := n.handshake(ctx); err != nil {
		return nil, err
	}
	out, err := n.lobby.Propose(n.options.Settings)
	if err != nil {
		return nil, fmt.Errorf("initial proposal: %w", err)
	}
	if err := n.sendAll(ctx, out); err != nil {
		return nil, err
	}

	inbox := make(chan incoming)
	go n.readLoop(ctx, inbox)

	ticker := n.clock.NewTicker(n.options.PingInterval)
	defer ticker.Stop()

	n.publish()
	for {
		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)

		case in := <-inbox:
			if in.err != nil {
				return nil, in.err
			}
			if err := n.handle(ctx, in.message); err != nil {
				return nil, err
			}

		case <-ticker.C:
			ping := Message{Ping: &Ping{Timestamp: n.clock.Now().UnixNano()}}
			if err := n.send(ctx, ping); err != nil {
				return nil, err
			}

		case req := <-n.requests:
			out, err := req.apply()
			if req.toggle {
				n.pendingToggles.Add(-1)
			}
			if err != nil {
				// A refused local action leaves the negotiation running.
				req.reply <- err
				break
			}
			err = n.sendAll(ctx, out)
			req.reply <- err
			if err != nil {
				return nil, err
			}
		}

		n.publish()
		if n.lobby.Phase() == PhaseDone {
			n.logger.Info("negotiation complete")
			return n.lobby.Result(), nil
		}
	}
}

func (n *Negotiator) handshake(ctx context.Context) error {
	if err := n.send(ctx, Message{Hello: &Hello{ProtocolVersion: ProtocolVersion}}); err != nil {
		return err
	}
	payload, err := n.conn.Receive(ctx)
	if err != nil {
		return n.receiveError(ctx, err)
	}
	message, err := n.decode(payload)
	if err != nil {
		return err
	}
	if message.Hello == nil {
		return violation("expected hello, got %s", message.Kind())
	}
	if message.Hello.ProtocolVersion != ProtocolVersion {
		return fmt.Errorf("%w: local %d, peer %d", ErrVersionMismatch, ProtocolVersion, message.Hello.ProtocolVersion)
	}
	n.logger.Debug("peer hello received", "protocol_version", message.Hello.ProtocolVersion)
	return nil
}

// maxDiagnosedPayload bounds the payload rendered into the log when
// decoding fails.
const maxDiagnosedPayload = 256

func (n *Negotiator) decode(payload []byte) (Message, error) {
	message, err := DecodeMessage(payload)
	if err != nil && n.logger.Enabled(context.Background(), slog.LevelDebug) {
		notation, diagErr := codec.Diagnose(payload[:min(len(payload), maxDiagnosedPayload)])
		if diagErr != nil {
			notation = fmt.Sprintf("%x", payload[:min(len(payload), maxDiagnosedPayload)])
		}
		n.logger.Debug("undecodable peer message", "bytes", len(payload), "payload", notation)
	}
	return message, err
}

func (n *Negotiator) readLoop(ctx context.Context, inbox chan<- incoming) {
	for {
		var in incoming
		payload, err := n.conn.Receive(ctx)
		if err != nil {
			in.err = n.receiveError(ctx, err)
		} else {
			in.message, in.err = n.decode(payload)
		}
		select {
		case inbox <- in:
		case <-ctx.Done():
			return
		}
		if in.err != nil {
			return
		}
	}
}

func (n *Negotiator) receiveError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, tunnel.ErrClosed) {
		return ErrPeerGone
	}
	return fmt.Errorf("receiving from peer: %w", err)
}

func (n *Negotiator) handle(ctx context.Context, message Message) error {
	switch {
	case message.Ping != nil:
		return n.send(ctx, Message{Pong: &Pong{Timestamp: message.Ping.Timestamp}})
	case message.Pong != nil:
		sample := n.clock.Now().Sub(time.Unix(0, message.Pong.Timestamp))
		n.latency.Mark(sample)
		return nil
	}
	out, err := n.lobby.Receive(message)
	if err != nil {
		return err
	}
	return n.sendAll(ctx, out)
}

func (n *Negotiator) send(ctx context.Context, message Message) error {
	payload, err := EncodeMessage(message)
	if err != nil {
		return err
	}
	if err := n.conn.Send(ctx, payload); err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if errors.Is(err, tunnel.ErrClosed) {
			return ErrPeerGone
		}
		return fmt.Errorf("sending %s: %w", message.Kind(), err)
	}
	return nil
}

func (n *Negotiator) sendAll(ctx context.Context, messages []Message) error {
	for _, message := range messages {
		if err := n.send(ctx, message); err != nil {
			return err
		}
	}
	return nil
}

// publish replaces any unread view with the current one.
func (n *Negotiator) publish() {
	view := n.lobby.View(n.pendingToggles.Load() > 0)
	view.Latency = n.latency.Median()
	n.mu.Lock()
	n.last = view
	n.mu.Unlock()
	select {
	case <-n.views:
	default:
	}
	n.views <- view
}

// Views delivers snapshots after every change. Only the latest
// unread snapshot is kept.
func (n *Negotiator) Views() <-chan View {
	return n.views
}

// View returns the most recent snapshot.
func (n *Negotiator) View() View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}

// Done is closed when Run returns.
func (n *Negotiator) Done() <-chan struct{} {
	return n.done
}

// Propose replaces the local settings.
func (n *Negotiator) Propose(ctx context.Context, settings Settings) error {
	settings = settings.Clone()
	return n.request(ctx, request{apply: func() ([]Message, error) {
		return n.lobby.Propose(settings)
	}})
}

// SetReady commits (ready) or withdraws (not ready) the local state.
// Readying twice commits once. A refused toggle returns a
// *NotReadyError or ErrBusy and leaves the negotiation running.
func (n *Negotiator) SetReady(ctx context.Context, ready bool) error {
	apply := n.lobby.Unready
	if ready {
		apply = func() ([]Message, error) { return n.lobby.Ready(n.options.SaveData) }
	}
	return n.request(ctx, request{toggle: true, apply: apply})
}

func (n *Negotiator) request(ctx context.Context, req request) error {
	req.reply = make(chan error, 1)
	if req.toggle {
		n.pendingToggles.Add(1)
	}
	select {
	case n.requests <- req:
	case <-n.done:
		if req.toggle {
			n.pendingToggles.Add(-1)
		}
		return ErrStopped
	case <-ctx.Done():
		if req.toggle {
			n.pendingToggles.Add(-1)
		}
		return context.Cause(ctx)
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
