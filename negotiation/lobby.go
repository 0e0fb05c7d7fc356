// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bureau-foundation/tango/lib/commitment"
	"github.com/bureau-foundation/tango/lib/compress"
)

// Phase is the lobby's position in the protocol.
type Phase uint8

const (
	// PhaseLobby: settings are negotiable and either side may commit
	// or uncommit.
	PhaseLobby Phase = iota
	// PhaseRevealing: both sides are committed and chunks are moving.
	PhaseRevealing
	// PhaseStarting: the peer's reveal verified and StartMatch was
	// sent. Waiting for the peer's StartMatch.
	PhaseStarting
	// PhaseDone: both sides verified. Result is available.
	PhaseDone
	// PhaseFailed: a protocol violation ended the negotiation.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseRevealing:
		return "revealing"
	case PhaseStarting:
		return "starting"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Result is the outcome of a completed negotiation.
type Result struct {
	// Seed is the XOR of both nonces.
	Seed [NonceSize]byte

	Local  NegotiatedState
	Remote NegotiatedState

	LocalSettings  Settings
	RemoteSettings Settings
}

// View is a snapshot of the lobby for display.
type View struct {
	Phase          Phase
	Local          Settings
	Remote         *Settings
	LocalCommitted bool
	PeerCommitted  bool
	Readiness      Readiness
	ChunksSent     int
	ChunksReceived int

	// Latency is the median ping round trip, zero until measured.
	Latency time.Duration
}

// LobbyOptions configures a Lobby.
type LobbyOptions struct {
	// Compression is applied to the local reveal. The peer's reveal
	// carries its own tag.
	Compression compress.Tag

	// Random supplies nonces. Defaults to crypto/rand.
	Random io.Reader

	// MaxStateSize bounds the peer's decompressed state. Defaults to
	// DefaultMaxStateSize.
	MaxStateSize int

	Logger *slog.Logger
}

// commitmentState is a side's committed state and its derived reveal.
// The three are always set and cleared together.
type commitmentState struct {
	state      NegotiatedState
	chunks     [][]byte
	commitment commitment.Commitment
}

// Lobby is the negotiation reducer. Every method returns the messages
// to send to the peer, in order. Errors from Receive are protocol
// violations and leave the lobby in PhaseFailed; errors from local
// actions leave it unchanged.
//
// Lobby is not safe for concurrent use. Negotiator owns one on a
// single goroutine.
type Lobby struct {
	options LobbyOptions
	logger  *slog.Logger

	phase Phase
	err   error

	local  Settings
	remote *Settings

	committed     *commitmentState
	peerCommit    commitment.Commitment
	peerCommitted bool

	sent     int
	received [][]byte

	// peerAborting is set when we abort a reveal the peer is still
	// sending, until the peer's Uncommit confirms it stopped.
	peerAborting bool

	// burned counts local reveals discarded after chunks were sent.
	burned int

	result *Result
}

// NewLobby returns a lobby in PhaseLobby with no local proposal.
func NewLobby(options LobbyOptions) *Lobby {
	if options.Random == nil {
		options.Random = rand.Reader
	}
	if options.MaxStateSize <= 0 {
		options.MaxStateSize = DefaultMaxStateSize
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Lobby{options: options, logger: logger}
}

// Phase returns the current phase.
func (l *Lobby) Phase() Phase { return l.phase }

// Err returns the violation that failed the lobby, or nil.
func (l *Lobby) Err() error { return l.err }

// Result returns the negotiation result once the phase is PhaseDone.
func (l *Lobby) Result() *Result { return l.result }

// Burned returns how many local reveals were discarded mid-exchange.
func (l *Lobby) Burned() int { return l.burned }

// Readiness evaluates the readiness toggle.
func (l *Lobby) Readiness(togglePending bool) Readiness {
	return Evaluate(l.local, l.remote, Gate{
		TogglePending:  togglePending,
		LocalCommitted: l.committed != nil,
		PeerCommitted:  l.peerCommitted,
	})
}

// View returns a snapshot. The settings are deep copies.
func (l *Lobby) View(togglePending bool) View {
	view := View{
		Phase:          l.phase,
		Local:          l.local.Clone(),
		LocalCommitted: l.committed != nil,
		PeerCommitted:  l.peerCommitted,
		Readiness:      l.Readiness(togglePending),
		ChunksSent:     l.sent,
		ChunksReceived: len(l.received),
	}
	if l.remote != nil {
		remote := l.remote.Clone()
		view.Remote = &remote
	}
	return view
}

func (l *Lobby) checkLocal() error {
	switch l.phase {
	case PhaseFailed:
		return l.err
	case PhaseLobby:
		return nil
	default:
		return ErrBusy
	}
}

// Propose replaces the local settings. Any commitment on either side
// is withdrawn: ours explicitly, the peer's because it uncommits on
// receiving new settings.
func (l *Lobby) Propose(settings Settings) ([]Message, error) {
	if err := l.checkLocal(); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	var out []Message
	if l.committed != nil {
		l.committed = nil
		out = append(out, Message{Uncommit: &Uncommit{}})
	}
	l.local = settings.Clone()
	l.clearPeerCommitment()
	proposal := settings.Clone()
	out = append(out, Message{Settings: &proposal})
	return out, nil
}

// Ready commits to a fresh NegotiatedState holding the bytes returned
// by loadSave. Calling Ready while already committed does nothing. If
// the peer is already committed the reveal starts immediately.
func (l *Lobby) Ready(loadSave func() ([]byte, error)) ([]Message, error) {
	if err := l.checkLocal(); err != nil {
		return nil, err
	}
	if l.committed != nil {
		return nil, nil
	}
	if readiness := l.Readiness(false); !readiness.Enabled {
		return nil, &NotReadyError{Warnings: readiness.Warnings}
	}
	var saveData []byte
	if loadSave != nil {
		var err error
		if saveData, err = loadSave(); err != nil {
			return nil, fmt.Errorf("reading save data: %w", err)
		}
	}
	state, err := newState(l.options.Random, saveData)
	if err != nil {
		return nil, err
	}
	reveal, err := encodeReveal(state, l.options.Compression)
	if err != nil {
		return nil, err
	}
	chunks, err := Split(reveal)
	if err != nil {
		return nil, err
	}
	l.committed = &commitmentState{
		state:      state,
		chunks:     chunks,
		commitment: commitment.Compute(reveal),
	}
	l.logger.Debug("committed to negotiated state",
		"commitment", l.committed.commitment,
		"reveal_bytes", len(reveal),
	)
	out := []Message{{Commit: &Commit{Commitment: l.committed.commitment}}}
	if l.peerCommitted {
		out = append(out, l.beginReveal()...)
	}
	return out, nil
}

// Unready withdraws the local commitment. During a reveal this aborts
// the exchange and burns the local state. Once every local chunk is
// sent the peer may already have verified, so ErrBusy is returned.
func (l *Lobby) Unready() ([]Message, error) {
	switch l.phase {
	case PhaseFailed:
		return nil, l.err
	case PhaseRevealing:
		if l.sent >= ChunkCount {
			return nil, ErrBusy
		}
		l.peerAborting = true
		return l.abortReveal(), nil
	case PhaseLobby:
	default:
		return nil, ErrBusy
	}
	if l.committed == nil {
		return nil, nil
	}
	l.committed = nil
	return []Message{{Uncommit: &Uncommit{}}}, nil
}

// Receive applies one message from the peer.
func (l *Lobby) Receive(message Message) ([]Message, error) {
	if l.phase == PhaseFailed {
		return nil, l.err
	}
	out, err := l.receive(message)
	if err != nil {
		l.fail(err)
		return nil, err
	}
	return out, nil
}

func (l *Lobby) receive(message Message) ([]Message, error) {
	switch {
	case message.Settings != nil:
		return l.receiveSettings(message.Settings)
	case message.Commit != nil:
		return l.receiveCommit(message.Commit.Commitment)
	case message.Uncommit != nil:
		return l.receiveUncommit()
	case message.Chunk != nil:
		return l.receiveChunk(message.Chunk.Data)
	case message.StartMatch != nil:
		if l.phase != PhaseStarting {
			return nil, violation("start_match during %s", l.phase)
		}
		l.phase = PhaseDone
		return nil, nil
	default:
		return nil, violation("unexpected %s message", message.Kind())
	}
}

func (l *Lobby) receiveSettings(settings *Settings) ([]Message, error) {
	if l.phase != PhaseLobby {
		return nil, violation("settings during %s", l.phase)
	}
	if err := settings.Validate(); err != nil {
		return nil, violation("invalid settings: %v", err)
	}
	remote := settings.Clone()
	l.remote = &remote
	l.clearPeerCommitment()
	if l.committed == nil {
		return nil, nil
	}
	l.committed = nil
	return []Message{{Uncommit: &Uncommit{}}}, nil
}

func (l *Lobby) receiveCommit(value commitment.Commitment) ([]Message, error) {
	if l.phase != PhaseLobby {
		return nil, violation("commit during %s", l.phase)
	}
	if l.remote == nil {
		return nil, violation("commit before settings")
	}
	if value.IsZero() {
		return nil, violation("zero commitment")
	}
	if l.peerCommitted {
		return nil, violation("commit while already committed")
	}
	l.peerCommit = value
	l.peerCommitted = true
	if l.committed == nil {
		return nil, nil
	}
	return l.beginReveal(), nil
}

func (l *Lobby) receiveUncommit() ([]Message, error) {
	switch l.phase {
	case PhaseLobby:
		l.clearPeerCommitment()
		l.peerAborting = false
		return nil, nil
	case PhaseRevealing:
		return l.abortReveal(), nil
	default:
		return nil, violation("uncommit during %s", l.phase)
	}
}

func (l *Lobby) receiveChunk(data []byte) ([]Message, error) {
	switch l.phase {
	case PhaseLobby:
		if !l.peerCommitted && !l.peerAborting {
			return nil, violation("chunk without a commitment")
		}
		// We withdrew our commitment while the peer's reveal was in
		// flight. The peer aborts when our Uncommit arrives.
		l.logger.Debug("dropping chunk from aborted exchange", "bytes", len(data))
		return nil, nil
	case PhaseRevealing:
	default:
		return nil, violation("chunk during %s", l.phase)
	}
	if len(l.received) >= ChunkCount {
		return nil, violation("chunk count exceeded")
	}
	if len(data) > ChunkSize {
		return nil, violation("chunk is %d bytes (max %d)", len(data), ChunkSize)
	}
	l.received = append(l.received, data)
	return l.advance()
}

// beginReveal enters PhaseRevealing and sends the first chunk.
func (l *Lobby) beginReveal() []Message {
	l.phase = PhaseRevealing
	l.sent = 0
	l.received = nil
	l.logger.Debug("both sides committed, revealing")
	// advance cannot fail before any chunk has been received.
	out, _ := l.advance()
	return out
}

// abortReveal returns to PhaseLobby. The local state is burned since
// part of it may have been disclosed.
func (l *Lobby) abortReveal() []Message {
	l.logger.Info("exchange aborted, discarding revealed state", "chunks_sent", l.sent)
	l.phase = PhaseLobby
	l.committed = nil
	l.burned++
	l.sent = 0
	l.received = nil
	l.clearPeerCommitment()
	return []Message{{Uncommit: &Uncommit{}}}
}

// advance sends chunks in lockstep with the peer: one chunk out per
// chunk in, never more than one ahead. A side keeps sending after it
// has everything it needs, so the peer never waits.
func (l *Lobby) advance() ([]Message, error) {
	var out []Message
	for l.sent < ChunkCount && l.sent <= len(l.received) {
		out = append(out, Message{Chunk: &Chunk{Data: l.committed.chunks[l.sent]}})
		l.sent++
	}
	if l.sent < ChunkCount || len(l.received) < ChunkCount {
		return out, nil
	}

	reveal, err := Reassemble(l.received)
	if err != nil {
		return nil, err
	}
	if !commitment.Verify(l.peerCommit, reveal) {
		return nil, violation("commitment mismatch")
	}
	remoteState, err := decodeReveal(reveal, l.options.MaxStateSize)
	if err != nil {
		return nil, violation("undecodable state: %v", err)
	}
	l.result = &Result{
		Seed:           DeriveSeed(l.committed.state.Nonce, remoteState.Nonce),
		Local:          l.committed.state,
		Remote:         remoteState,
		LocalSettings:  l.local.Clone(),
		RemoteSettings: l.remote.Clone(),
	}
	l.phase = PhaseStarting
	l.logger.Debug("peer reveal verified", "remote_save_bytes", len(remoteState.SaveData))
	return append(out, Message{StartMatch: &StartMatch{}}), nil
}

func (l *Lobby) clearPeerCommitment() {
	l.peerCommit = commitment.Commitment{}
	l.peerCommitted = false
}

func (l *Lobby) fail(err error) {
	l.phase = PhaseFailed
	l.err = err
	l.committed = nil
	l.result = nil
	l.logger.Warn("negotiation failed", "error", err)
}
