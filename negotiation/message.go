// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import (
	"fmt"

	"github.com/bureau-foundation/tango/lib/codec"
	"github.com/bureau-foundation/tango/lib/commitment"
)

// ProtocolVersion is exchanged in Hello. Peers with different versions
// refuse to negotiate.
const ProtocolVersion = 1

// Message is one tunneled negotiation message. Exactly one field is
// set.
type Message struct {
	Hello      *Hello      `cbor:"hello,omitempty"`
	Settings   *Settings   `cbor:"settings,omitempty"`
	Commit     *Commit     `cbor:"commit,omitempty"`
	Uncommit   *Uncommit   `cbor:"uncommit,omitempty"`
	Chunk      *Chunk      `cbor:"chunk,omitempty"`
	StartMatch *StartMatch `cbor:"start_match,omitempty"`
	Ping       *Ping       `cbor:"ping,omitempty"`
	Pong       *Pong       `cbor:"pong,omitempty"`
}

// Hello opens the conversation.
type Hello struct {
	ProtocolVersion uint32 `cbor:"protocol_version"`
}

// Commit publishes a commitment to the sender's NegotiatedState.
type Commit struct {
	Commitment commitment.Commitment `cbor:"commitment"`
}

// Uncommit withdraws the sender's commitment.
type Uncommit struct{}

// Chunk is one slice of the sender's reveal.
type Chunk struct {
	Data []byte `cbor:"data"`
}

// StartMatch tells the peer its reveal verified.
type StartMatch struct{}

// Ping carries the sender's clock in Unix nanoseconds.
type Ping struct {
	Timestamp int64 `cbor:"timestamp"`
}

// Pong echoes a Ping's timestamp.
type Pong struct {
	Timestamp int64 `cbor:"timestamp"`
}

// Kind names the variant for logs.
func (m *Message) Kind() string {
	switch {
	case m.Hello != nil:
		return "hello"
	case m.Settings != nil:
		return "settings"
	case m.Commit != nil:
		return "commit"
	case m.Uncommit != nil:
		return "uncommit"
	case m.Chunk != nil:
		return "chunk"
	case m.StartMatch != nil:
		return "start_match"
	case m.Ping != nil:
		return "ping"
	case m.Pong != nil:
		return "pong"
	default:
		return "empty"
	}
}

func (m *Message) variants() int {
	count := 0
	for _, set := range []bool{
		m.Hello != nil, m.Settings != nil, m.Commit != nil, m.Uncommit != nil,
		m.Chunk != nil, m.StartMatch != nil, m.Ping != nil, m.Pong != nil,
	} {
		if set {
			count++
		}
	}
	return count
}

// EncodeMessage encodes m for the tunnel.
func EncodeMessage(m Message) ([]byte, error) {
	if count := m.variants(); count != 1 {
		return nil, fmt.Errorf("negotiation: encoding message with %d variants set", count)
	}
	return codec.Marshal(m)
}

// DecodeMessage decodes a tunneled payload. Anything that is not a
// single-variant Message is a protocol violation.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := codec.Unmarshal(data, &m); err != nil {
		return Message{}, violation("undecodable message: %v", err)
	}
	if count := m.variants(); count != 1 {
		return Message{}, violation("message has %d variants set", count)
	}
	return m, nil
}
