// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/tango/lib/clock"
	"github.com/bureau-foundation/tango/lib/compress"
	"github.com/bureau-foundation/tango/lib/testutil"
	"github.com/bureau-foundation/tango/tunnel"
)

const testTimeout = 5 * time.Second

type runResult struct {
	result *Result
	err    error
}

func startNegotiator(t *testing.T, conn tunnel.Conn, options Options) (*Negotiator, <-chan runResult) {
	t.Helper()
	if options.Logger == nil {
		options.Logger = testutil.Logger(t)
	}
	// A fake clock that is never advanced keeps pings out of tests
	// that do not expect them.
	if options.Clock == nil {
		options.Clock = clock.Fake(time.Unix(1_700_000_000, 0))
	}
	negotiator := New(conn, options)
	done := make(chan runResult, 1)
	go func() {
		result, err := negotiator.Run(t.Context())
		done <- runResult{result, err}
	}()
	return negotiator, done
}

// waitForView reads views until match accepts one.
func waitForView(t *testing.T, negotiator *Negotiator, match func(View) bool) View {
	t.Helper()
	deadline := time.After(testTimeout) //nolint:realclock // test safety timeout
	for {
		select {
		case view := <-negotiator.Views():
			if match(view) {
				return view
			}
		case <-negotiator.Done():
			t.Fatal("negotiator stopped while waiting for a view")
		case <-deadline:
			t.Fatalf("timed out waiting for a view; last = %+v", negotiator.View())
		}
	}
}

func readyEnabled(view View) bool { return view.Readiness.Enabled }

func TestNegotiatorFullExchange(t *testing.T) {
	connA, connB := tunnel.Pipe()
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	saveA := bytes.Repeat([]byte("alice's save "), 2000)
	saveB := bytes.Repeat([]byte("bob's save "), 3000)

	a, doneA := startNegotiator(t, connA, Options{
		Settings:    testSettings("alice"),
		SaveData:    func() ([]byte, error) { return saveA, nil },
		Compression: compress.Zstd,
		Clock:       fake,
	})
	b, doneB := startNegotiator(t, connB, Options{
		Settings:    testSettings("bob"),
		SaveData:    func() ([]byte, error) { return saveB, nil },
		Compression: compress.LZ4,
		Clock:       fake,
	})

	waitForView(t, a, readyEnabled)
	waitForView(t, b, readyEnabled)

	// Pings interleave with the exchange without disturbing it.
	fake.WaitForTimers(2)
	fake.Advance(time.Second)

	ctx := t.Context()
	if err := a.SetReady(ctx, true); err != nil {
		t.Fatalf("A SetReady: %v", err)
	}
	if err := b.SetReady(ctx, true); err != nil {
		t.Fatalf("B SetReady: %v", err)
	}

	resultA := testutil.RequireReceive(t, doneA, testTimeout, "waiting for A")
	resultB := testutil.RequireReceive(t, doneB, testTimeout, "waiting for B")
	if resultA.err != nil || resultB.err != nil {
		t.Fatalf("Run errors: A=%v B=%v", resultA.err, resultB.err)
	}
	if resultA.result.Seed != resultB.result.Seed {
		t.Fatal("negotiators derived different seeds")
	}
	if !bytes.Equal(resultA.result.Remote.SaveData, saveB) || !bytes.Equal(resultB.result.Remote.SaveData, saveA) {
		t.Fatal("revealed saves do not match")
	}

	if err := a.SetReady(ctx, false); !errors.Is(err, ErrStopped) {
		t.Fatalf("SetReady after completion = %v, want ErrStopped", err)
	}
}

// rawPeer plays the remote side by hand.
type rawPeer struct {
	t    *testing.T
	conn tunnel.Conn
}

func (p rawPeer) send(message Message) {
	p.t.Helper()
	data, err := EncodeMessage(message)
	if err != nil {
		p.t.Fatal(err)
	}
	if err := p.conn.Send(p.t.Context(), data); err != nil {
		p.t.Fatalf("peer send: %v", err)
	}
}

func (p rawPeer) receive() Message {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(p.t.Context(), testTimeout)
	defer cancel()
	data, err := p.conn.Receive(ctx)
	if err != nil {
		p.t.Fatalf("peer receive: %v", err)
	}
	message, err := DecodeMessage(data)
	if err != nil {
		p.t.Fatalf("peer decode: %v", err)
	}
	return message
}

func (p rawPeer) expect(kind string) Message {
	p.t.Helper()
	message := p.receive()
	if message.Kind() != kind {
		p.t.Fatalf("peer received %s, want %s", message.Kind(), kind)
	}
	return message
}

// handshake performs Hello and settings exchange with the negotiator.
func (p rawPeer) handshake(settings Settings) {
	p.t.Helper()
	p.expect("hello")
	p.send(Message{Hello: &Hello{ProtocolVersion: ProtocolVersion}})
	p.expect("settings")
	p.send(Message{Settings: &settings})
}

func TestNegotiatorDoubleReadySendsOneCommit(t *testing.T) {
	local, remote := tunnel.Pipe()
	peer := rawPeer{t: t, conn: remote}
	negotiator, _ := startNegotiator(t, local, Options{Settings: testSettings("alice")})
	peer.handshake(testSettings("bob"))
	waitForView(t, negotiator, readyEnabled)

	ctx := t.Context()
	errs := make(chan error, 2)
	go func() { errs <- negotiator.SetReady(ctx, true) }()
	go func() { errs <- negotiator.SetReady(ctx, true) }()
	for range 2 {
		if err := testutil.RequireReceive(t, errs, testTimeout); err != nil {
			t.Fatalf("SetReady: %v", err)
		}
	}

	peer.expect("commit")
	// A ping is answered in order, so any second commit would arrive
	// before the pong.
	peer.send(Message{Ping: &Ping{Timestamp: 42}})
	pong := peer.expect("pong")
	if pong.Pong.Timestamp != 42 {
		t.Fatalf("pong timestamp = %d, want 42", pong.Pong.Timestamp)
	}
}

func TestNegotiatorForgedRevealAborts(t *testing.T) {
	local, remote := tunnel.Pipe()
	peer := rawPeer{t: t, conn: remote}
	negotiator, done := startNegotiator(t, local, Options{Settings: testSettings("alice")})
	peer.handshake(testSettings("mallory"))

	honest, err := encodeReveal(NegotiatedState{Nonce: [NonceSize]byte{9}}, compress.None)
	if err != nil {
		t.Fatal(err)
	}
	peer.send(Message{Commit: &Commit{Commitment: commitmentOf(honest)}})
	waitForView(t, negotiator, func(view View) bool { return view.PeerCommitted && view.Readiness.Enabled })

	if err := negotiator.SetReady(t.Context(), true); err != nil {
		t.Fatal(err)
	}
	peer.expect("commit")

	forged, err := encodeReveal(NegotiatedState{Nonce: [NonceSize]byte{10}}, compress.None)
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := Split(forged)
	if err != nil {
		t.Fatal(err)
	}
	for _, chunk := range chunks {
		peer.expect("chunk")
		peer.send(Message{Chunk: &Chunk{Data: chunk}})
	}

	outcome := testutil.RequireReceive(t, done, testTimeout)
	if !errors.Is(outcome.err, ErrProtocolViolation) {
		t.Fatalf("Run error = %v, want violation", outcome.err)
	}
	if outcome.result != nil {
		t.Fatal("Run returned a result after a forged reveal")
	}
}

func TestNegotiatorVersionMismatch(t *testing.T) {
	local, remote := tunnel.Pipe()
	peer := rawPeer{t: t, conn: remote}
	_, done := startNegotiator(t, local, Options{Settings: testSettings("alice")})

	peer.expect("hello")
	peer.send(Message{Hello: &Hello{ProtocolVersion: ProtocolVersion + 1}})

	outcome := testutil.RequireReceive(t, done, testTimeout)
	if !errors.Is(outcome.err, ErrVersionMismatch) {
		t.Fatalf("Run error = %v, want ErrVersionMismatch", outcome.err)
	}
}

func TestNegotiatorRequiresHelloFirst(t *testing.T) {
	local, remote := tunnel.Pipe()
	peer := rawPeer{t: t, conn: remote}
	_, done := startNegotiator(t, local, Options{Settings: testSettings("alice")})

	peer.expect("hello")
	settings := testSettings("bob")
	peer.send(Message{Settings: &settings})

	outcome := testutil.RequireReceive(t, done, testTimeout)
	if !errors.Is(outcome.err, ErrProtocolViolation) {
		t.Fatalf("Run error = %v, want violation", outcome.err)
	}
}

func TestNegotiatorPeerGone(t *testing.T) {
	local, remote := tunnel.Pipe()
	peer := rawPeer{t: t, conn: remote}
	_, done := startNegotiator(t, local, Options{Settings: testSettings("alice")})
	peer.handshake(testSettings("bob"))
	remote.Close()

	outcome := testutil.RequireReceive(t, done, testTimeout)
	if !errors.Is(outcome.err, ErrPeerGone) {
		t.Fatalf("Run error = %v, want ErrPeerGone", outcome.err)
	}
}

func TestNegotiatorCancellation(t *testing.T) {
	local, _ := tunnel.Pipe()
	ctx, cancel := context.WithCancel(t.Context())
	negotiator := New(local, Options{
		Settings: testSettings("alice"),
		Clock:    clock.Fake(time.Unix(1_700_000_000, 0)),
		Logger:   testutil.Logger(t),
	})
	done := make(chan error, 1)
	go func() {
		_, err := negotiator.Run(ctx)
		done <- err
	}()
	cancel()
	if err := testutil.RequireReceive(t, done, testTimeout); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
}

func TestNegotiatorMeasuresLatency(t *testing.T) {
	local, remote := tunnel.Pipe()
	peer := rawPeer{t: t, conn: remote}
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	negotiator, _ := startNegotiator(t, local, Options{
		Settings:     testSettings("alice"),
		Clock:        fake,
		PingInterval: time.Second,
	})
	peer.handshake(testSettings("bob"))
	waitForView(t, negotiator, readyEnabled)

	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	ping := peer.expect("ping")
	fake.Advance(30 * time.Millisecond)
	peer.send(Message{Pong: &Pong{Timestamp: ping.Ping.Timestamp}})

	waitForView(t, negotiator, func(view View) bool { return view.Latency == 30*time.Millisecond })
}
