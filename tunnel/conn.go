// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned by Send on a closed Conn.
var ErrClosed = errors.New("tunnel: connection closed")

// Conn is an ordered, message-preserving duplex stream to the peer.
// Receive returns io.EOF once the peer side is gone and every message
// already received has been delivered.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// pipeBuffer is the number of messages a Pipe end holds before Send
// blocks. It comfortably covers a full reveal (five chunks) plus
// interleaved pings.
const pipeBuffer = 32

// Pipe returns two connected in-memory Conns. Messages sent on one are
// received on the other in order. Closing either end makes the other
// end's Receive return io.EOF after draining.
func Pipe() (Conn, Conn) {
	aToB := make(chan []byte, pipeBuffer)
	bToA := make(chan []byte, pipeBuffer)
	state := &pipeState{closed: make(chan struct{})}
	return &pipeConn{send: aToB, receive: bToA, state: state},
		&pipeConn{send: bToA, receive: aToB, state: state}
}

// pipeState is shared by both ends: closing either closes the pair.
type pipeState struct {
	once   sync.Once
	closed chan struct{}
}

type pipeConn struct {
	send    chan<- []byte
	receive <-chan []byte
	state   *pipeState
}

func (c *pipeConn) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.state.closed:
		return ErrClosed
	default:
	}
	// Copy: the caller may reuse its buffer.
	message := append([]byte(nil), payload...)
	select {
	case c.send <- message:
		return nil
	case <-c.state.closed:
		return ErrClosed
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (c *pipeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case message := <-c.receive:
		return message, nil
	default:
	}
	select {
	case message := <-c.receive:
		return message, nil
	case <-c.state.closed:
		select {
		case message := <-c.receive:
			return message, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

func (c *pipeConn) Close() error {
	c.state.once.Do(func() { close(c.state.closed) })
	return nil
}
