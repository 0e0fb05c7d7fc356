// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/tango/lib/ipc"
	"github.com/bureau-foundation/tango/lib/testutil"
)

// fakeChannel is an in-memory Channel. Tests push core output with
// emit and end it with finish; launcher sends are recorded.
type fakeChannel struct {
	output chan *ipc.FromCoreMessage
	fail   chan error

	mu   sync.Mutex
	sent []*ipc.ToCoreMessage
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		output: make(chan *ipc.FromCoreMessage, 16),
		fail:   make(chan error, 1),
	}
}

func (f *fakeChannel) Send(message *ipc.ToCoreMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message)
	return nil
}

func (f *fakeChannel) Receive() (*ipc.FromCoreMessage, error) {
	select {
	case message, ok := <-f.output:
		if !ok {
			return nil, nil
		}
		return message, nil
	case err := <-f.fail:
		return nil, err
	}
}

func (f *fakeChannel) emit(message ipc.FromCoreMessage) { f.output <- &message }
func (f *fakeChannel) finish()                          { close(f.output) }

func (f *fakeChannel) emitState(state ipc.State) {
	f.emit(ipc.FromCoreMessage{StateIndication: &ipc.StateIndication{State: state}})
}

func startMux(t *testing.T, channel *fakeChannel) (*Mux, <-chan error) {
	t.Helper()
	mux := NewMux(channel, testutil.Logger(t))
	result := make(chan error, 1)
	go func() { result <- mux.Run(t.Context()) }()
	return mux, result
}

func TestMuxRoutesTunnelDataToConn(t *testing.T) {
	channel := newFakeChannel()
	mux, _ := startMux(t, channel)
	conn := mux.Tunnel()

	channel.emitState(ipc.StateReadyToStart)
	channel.emit(ipc.FromCoreMessage{TunnelData: &ipc.TunnelData{Data: []byte("from peer")}})

	got, err := conn.Receive(t.Context())
	if err != nil || string(got) != "from peer" {
		t.Fatalf("Receive = (%q, %v)", got, err)
	}

	if err := conn.Send(t.Context(), []byte("to peer")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	channel.mu.Lock()
	defer channel.mu.Unlock()
	if len(channel.sent) != 1 || channel.sent[0].TunnelData == nil ||
		string(channel.sent[0].TunnelData.Data) != "to peer" {
		t.Errorf("sent = %+v, want one TunnelData", channel.sent)
	}
}

func TestMuxWaitState(t *testing.T) {
	channel := newFakeChannel()
	mux, _ := startMux(t, channel)

	reached := make(chan error, 1)
	go func() { reached <- mux.WaitState(t.Context(), ipc.StateReadyToStart) }()

	channel.emitState(ipc.StateConnecting)
	channel.emitState(ipc.StateWaiting)
	testutil.RequireNoReceive(t, reached, 50*time.Millisecond, "WaitState returned before ready_to_start")

	channel.emitState(ipc.StateReadyToStart)
	if err := testutil.RequireReceive(t, reached, 5*time.Second, "WaitState"); err != nil {
		t.Fatalf("WaitState: %v", err)
	}
	if mux.State() != ipc.StateReadyToStart {
		t.Errorf("State = %s", mux.State())
	}
}

func TestMuxIgnoresBackwardState(t *testing.T) {
	channel := newFakeChannel()
	mux, result := startMux(t, channel)

	channel.emitState(ipc.StateRunning)
	channel.emitState(ipc.StateWaiting)
	channel.finish()
	testutil.RequireReceive(t, result, 5*time.Second, "Run end")

	if mux.State() != ipc.StateRunning {
		t.Errorf("State = %s, want running", mux.State())
	}
}

func TestMuxWaitStateFailsWhenStreamEnds(t *testing.T) {
	channel := newFakeChannel()
	mux, _ := startMux(t, channel)

	channel.emitState(ipc.StateWaiting)
	channel.finish()

	err := mux.WaitState(t.Context(), ipc.StateReadyToStart)
	if !errors.Is(err, ErrStreamEnded) {
		t.Errorf("WaitState = %v, want ErrStreamEnded", err)
	}
}

func TestMuxConnDrainsBeforeEOF(t *testing.T) {
	channel := newFakeChannel()
	mux, result := startMux(t, channel)
	conn := mux.Tunnel()

	channel.emit(ipc.FromCoreMessage{TunnelData: &ipc.TunnelData{Data: []byte("one")}})
	channel.emit(ipc.FromCoreMessage{TunnelData: &ipc.TunnelData{Data: []byte("two")}})
	channel.finish()
	if err := testutil.RequireReceive(t, result, 5*time.Second, "Run end"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, want := range []string{"one", "two"} {
		got, err := conn.Receive(t.Context())
		if err != nil || string(got) != want {
			t.Fatalf("Receive = (%q, %v), want %q", got, err, want)
		}
	}
	if _, err := conn.Receive(t.Context()); err != io.EOF {
		t.Errorf("Receive after end = %v, want io.EOF", err)
	}
}

func TestMuxPropagatesChannelError(t *testing.T) {
	channel := newFakeChannel()
	mux, result := startMux(t, channel)
	conn := mux.Tunnel()

	broken := errors.New("pipe exploded")
	channel.fail <- broken

	if err := testutil.RequireReceive(t, result, 5*time.Second, "Run end"); !errors.Is(err, broken) {
		t.Fatalf("Run = %v, want %v", err, broken)
	}
	if _, err := conn.Receive(t.Context()); !errors.Is(err, broken) {
		t.Errorf("Receive = %v, want %v", err, broken)
	}
	if err := mux.WaitState(t.Context(), ipc.StateRunning); !errors.Is(err, broken) {
		t.Errorf("WaitState = %v, want %v", err, broken)
	}
}

func TestMuxRecordsRTT(t *testing.T) {
	channel := newFakeChannel()
	mux, result := startMux(t, channel)

	channel.emit(ipc.FromCoreMessage{ConnectionQualityIndication: &ipc.ConnectionQualityIndication{
		RTT: int64(42 * time.Millisecond),
	}})
	channel.finish()
	testutil.RequireReceive(t, result, 5*time.Second, "Run end")

	if mux.RTT() != 42*time.Millisecond {
		t.Errorf("RTT = %v, want 42ms", mux.RTT())
	}
}

func TestMuxConnSendAfterClose(t *testing.T) {
	mux := NewMux(newFakeChannel(), nil)
	conn := mux.Tunnel()
	conn.Close()
	if err := conn.Send(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestMuxDropsTunnelDataAfterClose(t *testing.T) {
	channel := newFakeChannel()
	mux, _ := startMux(t, channel)
	mux.Tunnel().Close()

	// More payloads than the inbox holds: none may block the stream.
	for range inboxSize * 2 {
		channel.emit(ipc.FromCoreMessage{TunnelData: &ipc.TunnelData{Data: []byte("late ping")}})
	}
	channel.emitState(ipc.StateRunning)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if err := mux.WaitState(ctx, ipc.StateRunning); err != nil {
		t.Fatalf("WaitState: %v", err)
	}
}
