// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/bureau-foundation/tango/lib/testutil"
)

func TestPipeDeliversInOrderBothWays(t *testing.T) {
	a, b := Pipe()
	ctx := t.Context()

	for i := 0; i < 10; i++ {
		if err := a.Send(ctx, []byte(fmt.Sprintf("a%d", i))); err != nil {
			t.Fatalf("a.Send: %v", err)
		}
		if err := b.Send(ctx, []byte(fmt.Sprintf("b%d", i))); err != nil {
			t.Fatalf("b.Send: %v", err)
		}
	}
	for i := 0; i < 10; i++ {
		got, err := b.Receive(ctx)
		if err != nil || string(got) != fmt.Sprintf("a%d", i) {
			t.Fatalf("b.Receive = (%q, %v), want a%d", got, err, i)
		}
		got, err = a.Receive(ctx)
		if err != nil || string(got) != fmt.Sprintf("b%d", i) {
			t.Fatalf("a.Receive = (%q, %v), want b%d", got, err, i)
		}
	}
}

func TestPipeCopiesPayload(t *testing.T) {
	a, b := Pipe()
	buffer := []byte("original")
	if err := a.Send(t.Context(), buffer); err != nil {
		t.Fatal(err)
	}
	copy(buffer, "mutated!")
	got, err := b.Receive(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original" {
		t.Errorf("Receive = %q, sender's later mutation leaked through", got)
	}
}

func TestPipeCloseDrainsThenEOF(t *testing.T) {
	a, b := Pipe()
	ctx := t.Context()
	if err := a.Send(ctx, []byte("last words")); err != nil {
		t.Fatal(err)
	}
	a.Close()

	got, err := b.Receive(ctx)
	if err != nil || string(got) != "last words" {
		t.Fatalf("Receive = (%q, %v), want buffered message", got, err)
	}
	if _, err := b.Receive(ctx); err != io.EOF {
		t.Errorf("Receive after drain = %v, want io.EOF", err)
	}
	if err := b.Send(ctx, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send on closed pair = %v, want ErrClosed", err)
	}
}

func TestPipeCloseUnblocksReceive(t *testing.T) {
	a, b := Pipe()
	result := make(chan error, 1)
	go func() {
		_, err := b.Receive(context.Background())
		result <- err
	}()
	a.Close()
	if err := testutil.RequireReceive(t, result, 5*time.Second, "Receive after close"); err != io.EOF {
		t.Errorf("Receive = %v, want io.EOF", err)
	}
}

func TestPipeReceiveHonorsContext(t *testing.T) {
	_, b := Pipe()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := b.Receive(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Receive = %v, want context.Canceled", err)
	}
}
