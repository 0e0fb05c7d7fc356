// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/bureau-foundation/tango/lib/codec"
	"github.com/bureau-foundation/tango/lib/ipc"
	"github.com/bureau-foundation/tango/lib/testutil"
)

// fakeCoreEnv selects a fake core behavior when the test binary is
// re-executed as the core.
const fakeCoreEnv = "TANGO_TEST_FAKE_CORE"

func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeCoreEnv); mode != "" {
		os.Exit(runFakeCore(mode))
	}
	os.Exit(m.Run())
}

// runFakeCore plays the core over the real standard streams.
func runFakeCore(mode string) int {
	send := func(message ipc.FromCoreMessage) {
		data, err := codec.Marshal(message)
		if err != nil {
			panic(err)
		}
		if err := WriteFrame(os.Stdout, data); err != nil {
			panic(err)
		}
	}
	state := func(s ipc.State) {
		send(ipc.FromCoreMessage{StateIndication: &ipc.StateIndication{State: s}})
	}

	fmt.Fprintln(os.Stderr, "fake core: mode", mode)

	switch mode {
	case "echo":
		state(ipc.StateReadyToStart)
		for {
			payload, err := ReadFrame(os.Stdin, DefaultMaxFrameSize)
			if err != nil {
				return 0
			}
			var message ipc.ToCoreMessage
			if err := codec.Unmarshal(payload, &message); err != nil {
				return 2
			}
			switch {
			case message.TunnelData != nil:
				send(ipc.FromCoreMessage{TunnelData: message.TunnelData})
			case message.StartRequest != nil:
				state(ipc.StateRunning)
			}
		}

	case "args":
		encoded, _ := json.Marshal(os.Args[1:])
		send(ipc.FromCoreMessage{TunnelData: &ipc.TunnelData{Data: encoded}})
		return 0

	case "crash":
		state(ipc.StateConnecting)
		fmt.Fprintln(os.Stderr, "panic: emulator exploded")
		return 3

	case "hang":
		state(ipc.StateWaiting)
		time.Sleep(time.Hour)
		return 0

	case "oversized":
		os.Stdout.Write([]byte{0xFF, 0xFF, 0xFF, 0x7F})
		time.Sleep(time.Minute)
		return 0

	case "truncated":
		os.Stdout.Write([]byte{0x10, 0x00, 0x00, 0x00, 0xA1})
		return 0

	default:
		return 99
	}
}

func startFake(t *testing.T, ctx context.Context, mode string, args ipc.Args) *Process {
	t.Helper()
	executable, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	if args.SignalingAddr == "" {
		args.SignalingAddr = "wss://signaling.invalid/"
	}
	p, err := Start(ctx, Options{
		Path:          executable,
		Args:          args,
		Env:           []string{fakeCoreEnv + "=" + mode},
		Logger:        testutil.Logger(t),
		ShutdownGrace: time.Second,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		p.Terminate()
		p.Wait()
	})
	return p
}

func requireState(t *testing.T, p *Process, want ipc.State) {
	t.Helper()
	message, err := p.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if message == nil || message.StateIndication == nil {
		t.Fatalf("Receive = %+v, want state %s", message, want)
	}
	if message.StateIndication.State != want {
		t.Fatalf("state = %s, want %s", message.StateIndication.State, want)
	}
}

func TestProcessEchoesTunnelData(t *testing.T) {
	p := startFake(t, t.Context(), "echo", ipc.Args{})
	requireState(t, p, ipc.StateReadyToStart)

	for _, payload := range []string{"hello", "", "third"} {
		if err := p.Send(&ipc.ToCoreMessage{TunnelData: &ipc.TunnelData{Data: []byte(payload)}}); err != nil {
			t.Fatalf("Send: %v", err)
		}
		message, err := p.Receive()
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if message.TunnelData == nil || string(message.TunnelData.Data) != payload {
			t.Fatalf("Receive = %+v, want tunnel data %q", message, payload)
		}
	}

	if err := p.Send(&ipc.ToCoreMessage{StartRequest: &ipc.StartRequest{ROMPath: "/rom.gba"}}); err != nil {
		t.Fatalf("Send start: %v", err)
	}
	requireState(t, p, ipc.StateRunning)

	// Closing stdin ends the fake core cleanly; Receive then reports
	// end of stream.
	p.Close()
	message, err := p.Receive()
	if err != nil || message != nil {
		t.Fatalf("Receive after close = (%+v, %v), want (nil, nil)", message, err)
	}
	status := p.Wait()
	if !status.Clean() {
		t.Errorf("exit status %s should be clean", status)
	}
	if !strings.Contains(p.Diagnostics(), "fake core: mode echo") {
		t.Errorf("diagnostics %q missing startup line", p.Diagnostics())
	}
}

func TestProcessConcurrentSendsDoNotInterleave(t *testing.T) {
	p := startFake(t, t.Context(), "echo", ipc.Args{})
	requireState(t, p, ipc.StateReadyToStart)

	const senders = 8
	const perSender = 25
	payload := strings.Repeat("x", 5000)

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				if err := p.Send(&ipc.ToCoreMessage{TunnelData: &ipc.TunnelData{Data: []byte(payload)}}); err != nil {
					t.Errorf("Send: %v", err)
					return
				}
			}
		}()
	}

	received := make(chan error, 1)
	go func() {
		for i := 0; i < senders*perSender; i++ {
			message, err := p.Receive()
			if err != nil {
				received <- err
				return
			}
			if message == nil || message.TunnelData == nil || string(message.TunnelData.Data) != payload {
				received <- fmt.Errorf("message %d corrupted", i)
				return
			}
		}
		received <- nil
	}()

	wg.Wait()
	if err := testutil.RequireReceive(t, received, 10*time.Second, "echoed frames"); err != nil {
		t.Fatal(err)
	}
}

func TestProcessPassesArguments(t *testing.T) {
	args := ipc.Args{
		Keymapping:    ipc.DefaultKeymapping(),
		SignalingAddr: "wss://signaling.example/",
		ICEServers:    []string{"stun:stun.example:3478"},
		SessionID:     "link-42",
	}
	p := startFake(t, t.Context(), "args", args)

	message, err := p.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	var got []string
	if err := json.Unmarshal(message.TunnelData.Data, &got); err != nil {
		t.Fatalf("decoding argv: %v", err)
	}
	want, _ := args.Argv()
	if strings.Join(got, "\x00") != strings.Join(want, "\x00") {
		t.Errorf("argv = %q, want %q", got, want)
	}
}

func TestProcessCrashEndsReceiveAndKeepsDiagnostics(t *testing.T) {
	p := startFake(t, t.Context(), "crash", ipc.Args{})
	requireState(t, p, ipc.StateConnecting)

	message, err := p.Receive()
	if err != nil || message != nil {
		t.Fatalf("Receive after crash = (%+v, %v), want (nil, nil)", message, err)
	}

	status := p.Wait()
	if status.Clean() {
		t.Errorf("exit status %s should not be clean", status)
	}
	if status.Code != 3 {
		t.Errorf("exit code = %d, want 3", status.Code)
	}
	if !strings.Contains(p.Diagnostics(), "panic: emulator exploded") {
		t.Errorf("diagnostics %q missing panic line", p.Diagnostics())
	}

	err = p.Send(&ipc.ToCoreMessage{TunnelData: &ipc.TunnelData{Data: []byte("late")}})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Send after exit = %v, want ErrClosed", err)
	}
}

func TestProcessCancellationUnblocksReceive(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	p := startFake(t, ctx, "hang", ipc.Args{})
	requireState(t, p, ipc.StateWaiting)

	result := make(chan error, 1)
	go func() {
		_, err := p.Receive()
		result <- err
	}()

	cancel()
	err := testutil.RequireReceive(t, result, 5*time.Second, "Receive after cancel")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Receive after cancel = %v, want context.Canceled", err)
	}

	testutil.RequireClosed(t, p.Exited(), 5*time.Second, "core exit after cancel")
	status := p.Wait()
	if status.Signal != syscall.SIGTERM {
		t.Errorf("exit status %s, want SIGTERM", status)
	}
	if !status.Clean() {
		t.Errorf("termination by request should be clean, got %s", status)
	}

	if err := p.Send(&ipc.ToCoreMessage{TunnelData: &ipc.TunnelData{}}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after cancel = %v, want ErrClosed", err)
	}
}

func TestProcessRejectsOversizedFrame(t *testing.T) {
	p := startFake(t, t.Context(), "oversized", ipc.Args{})
	_, err := p.Receive()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Receive = %v, want ErrFrameTooLarge", err)
	}
}

func TestProcessReportsTruncatedFrame(t *testing.T) {
	p := startFake(t, t.Context(), "truncated", ipc.Args{})
	_, err := p.Receive()
	if !errors.Is(err, ErrTruncatedFrame) {
		t.Errorf("Receive = %v, want ErrTruncatedFrame", err)
	}
}

func TestSendRejectsInvalidMessage(t *testing.T) {
	p := startFake(t, t.Context(), "echo", ipc.Args{})
	if err := p.Send(&ipc.ToCoreMessage{}); !errors.Is(err, ipc.ErrInvalidMessage) {
		t.Errorf("Send(empty) = %v, want ErrInvalidMessage", err)
	}
}

func TestStartMissingExecutable(t *testing.T) {
	_, err := Start(t.Context(), Options{
		Path: "/nonexistent/tango-core",
		Args: ipc.Args{SignalingAddr: "wss://x/"},
	})
	if err == nil {
		t.Fatal("Start should fail for a missing executable")
	}
}
