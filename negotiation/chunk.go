// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import "fmt"

const (
	// ChunkSize is the largest Chunk payload.
	ChunkSize = 32 * 1024

	// ChunkCount is the exact number of Chunk messages each side
	// sends. Short reveals are padded with empty chunks.
	ChunkCount = 5

	// MaxRevealSize is the largest reveal that fits.
	MaxRevealSize = ChunkSize * ChunkCount
)

// Split cuts reveal into exactly ChunkCount chunks. The chunks alias
// reveal.
func Split(reveal []byte) ([][]byte, error) {
	if len(reveal) > MaxRevealSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrRevealTooLarge, len(reveal), MaxRevealSize)
	}
	chunks := make([][]byte, ChunkCount)
	for i := range chunks {
		start := min(i*ChunkSize, len(reveal))
		end := min(start+ChunkSize, len(reveal))
		chunks[i] = reveal[start:end]
	}
	return chunks, nil
}

// Reassemble concatenates chunks received from the peer.
func Reassemble(chunks [][]byte) ([]byte, error) {
	if len(chunks) != ChunkCount {
		return nil, violation("received %d chunks (want %d)", len(chunks), ChunkCount)
	}
	size := 0
	for i, chunk := range chunks {
		if len(chunk) > ChunkSize {
			return nil, violation("chunk %d is %d bytes (max %d)", i, len(chunk), ChunkSize)
		}
		size += len(chunk)
	}
	reveal := make([]byte, 0, size)
	for _, chunk := range chunks {
		reveal = append(reveal, chunk...)
	}
	return reveal, nil
}
