// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/tango/lib/ipc"
)

// ErrStreamEnded is returned by WaitState when the core's output ended
// before the awaited state was reached.
var ErrStreamEnded = errors.New("tunnel: core stream ended")

// Channel is the framed message channel to the core. *core.Process
// implements it.
type Channel interface {
	Send(message *ipc.ToCoreMessage) error
	// Receive returns (nil, nil) at clean end of stream.
	Receive() (*ipc.FromCoreMessage, error)
}

// inboxSize bounds tunnel payloads buffered between the read loop and
// the Conn reader.
const inboxSize = 64

// Mux demultiplexes the core's output. Run must be running for the
// tunnel Conn to receive and for states to advance.
type Mux struct {
	channel Channel
	logger  *slog.Logger

	inbox chan []byte

	// tunnelClosed is set by closing the tunnel Conn. Later tunnel
	// payloads are dropped so they cannot stall state indications.
	tunnelClosed atomic.Bool

	mu           sync.Mutex
	state        ipc.State
	rtt          time.Duration
	stateChanged chan struct{}

	done chan struct{}
	err  error
}

// NewMux returns a Mux over channel.
func NewMux(channel Channel, logger *slog.Logger) *Mux {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Mux{
		channel:      channel,
		logger:       logger,
		inbox:        make(chan []byte, inboxSize),
		stateChanged: make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Run reads the core's output until it ends or ctx is cancelled. It
// returns nil when the stream ended cleanly.
func (m *Mux) Run(ctx context.Context) error {
	err := m.run(ctx)
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	close(m.done)
	return err
}

func (m *Mux) run(ctx context.Context) error {
	for {
		message, err := m.channel.Receive()
		if err != nil {
			return err
		}
		if message == nil {
			m.logger.Debug("core stream ended")
			return nil
		}

		switch {
		case message.TunnelData != nil:
			if m.tunnelClosed.Load() {
				m.logger.Debug("dropping tunnel data after tunnel close", "bytes", len(message.TunnelData.Data))
				continue
			}
			select {
			case m.inbox <- message.TunnelData.Data:
			case <-ctx.Done():
				return context.Cause(ctx)
			}

		case message.StateIndication != nil:
			m.setState(message.StateIndication.State)

		case message.ConnectionQualityIndication != nil:
			rtt := time.Duration(message.ConnectionQualityIndication.RTT)
			m.mu.Lock()
			m.rtt = rtt
			m.mu.Unlock()
		}
	}
}

func (m *Mux) setState(state ipc.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state < m.state {
		m.logger.Warn("core reported backward state transition, ignoring",
			"from", m.state.String(), "to", state.String())
		return
	}
	if state == m.state {
		return
	}
	m.logger.Info("core state changed", "from", m.state.String(), "to", state.String())
	m.state = state
	close(m.stateChanged)
	m.stateChanged = make(chan struct{})
}

// State returns the latest state reported by the core.
func (m *Mux) State() ipc.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RTT returns the latest peer link round-trip time reported by the
// core, zero before the first report.
func (m *Mux) RTT() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rtt
}

// WaitState blocks until the core reaches target (or a later state).
// It fails with ErrStreamEnded if the stream ends first, or with the
// read loop's error if it failed.
func (m *Mux) WaitState(ctx context.Context, target ipc.State) error {
	for {
		m.mu.Lock()
		state, changed := m.state, m.stateChanged
		m.mu.Unlock()
		if state.AtLeast(target) {
			return nil
		}

		select {
		case <-changed:
		case <-m.done:
			if m.State().AtLeast(target) {
				return nil
			}
			if err := m.Err(); err != nil {
				return err
			}
			return fmt.Errorf("%w in state %s waiting for %s", ErrStreamEnded, m.State(), target)
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}

// Done is closed when Run returns.
func (m *Mux) Done() <-chan struct{} {
	return m.done
}

// Err returns Run's result once Done is closed.
func (m *Mux) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Tunnel returns the Conn carrying payloads to and from the peer.
func (m *Mux) Tunnel() Conn {
	return &muxConn{mux: m}
}

type muxConn struct {
	mux    *Mux
	mu     sync.Mutex
	closed bool
}

func (c *muxConn) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return c.mux.channel.Send(&ipc.ToCoreMessage{TunnelData: &ipc.TunnelData{Data: payload}})
}

func (c *muxConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case payload := <-c.mux.inbox:
		return payload, nil
	default:
	}
	select {
	case payload := <-c.mux.inbox:
		return payload, nil
	case <-c.mux.done:
		select {
		case payload := <-c.mux.inbox:
			return payload, nil
		default:
		}
		if err := c.mux.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// Close stops further Sends through this Conn and makes the Mux drop
// incoming tunnel payloads. The core channel itself stays open; its
// owner closes it.
func (c *muxConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.mux.tunnelClosed.Store(true)
	return nil
}
