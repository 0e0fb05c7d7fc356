// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package negotiation agrees on match settings with the peer and
// exchanges save data through a commit/reveal protocol, producing a
// random seed neither side could choose alone.
//
// # Protocol
//
// Messages travel as CBOR over a tunnel.Conn. Each side first sends
// Hello with its protocol version; any other first message is a
// violation. After that:
//
//   - Settings announces or replaces a side's proposal: nickname,
//     input delay, match type, selected game and patch, every game it
//     could run, and whether setups are visible. A new proposal from
//     either side withdraws both sides' commitments.
//   - Commit publishes a 16-byte commitment to a NegotiatedState
//     (fresh random nonce plus the player's save bytes) when the
//     player marks ready. Uncommit withdraws it.
//   - Once a side holds its own state and the peer's commitment, it
//     sends its reveal in exactly ChunkCount Chunk messages, sending
//     one and then waiting for one of the peer's, so neither side ever
//     waits on the other. The reveal is the compressed encoding of the
//     state; the commitment is over exactly those bytes.
//   - Having all of the peer's chunks, a side checks them against the
//     recorded commitment, derives the seed by XOR of the two nonces,
//     and sends StartMatch. The negotiation completes when the peer's
//     StartMatch arrives.
//   - Ping and Pong measure round-trip latency throughout.
//
// A revealed state is never reused: if the exchange is aborted by the
// peer's Uncommit, the local state is discarded and the player must
// ready again, which draws a new nonce.
//
// # Structure
//
// [Lobby] is a pure reducer: every event (a local proposal, a
// readiness toggle, a message from the peer) returns the messages to
// send, and nothing else mutates it. [Negotiator] is the actor that
// owns a Lobby on a single goroutine, feeds it events from the tunnel
// and from API calls, sends its output, and publishes [View] snapshots
// for a user interface.
package negotiation
