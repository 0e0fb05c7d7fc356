// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the compression algorithm of an envelope. Tags are
// the first byte of every envelope and travel between peers, so the
// values are protocol constants.
type Tag uint8

const (
	// None stores the payload as-is. Chosen automatically when the
	// selected algorithm cannot shrink the data.
	None Tag = 0

	// LZ4 is LZ4 block compression. Faster than zstd with a worse
	// ratio; useful on slow machines.
	LZ4 Tag = 1

	// Zstd is zstd at the default level. Save files are mostly
	// zero-filled and compress very well under zstd.
	Zstd Tag = 2
)

// headerSize is the tag byte plus the 4-byte little-endian
// uncompressed length.
const headerSize = 5

// ErrTooLarge is returned by Decode when the envelope declares an
// uncompressed size above the caller's limit. Envelopes come from a
// remote peer, so the limit is checked before any allocation.
var ErrTooLarge = errors.New("compress: declared size exceeds limit")

// ErrMalformed is returned for envelopes that are truncated, carry an
// unknown tag, or decompress to a length other than the one declared.
var ErrMalformed = errors.New("compress: malformed envelope")

// String returns the configuration name of a tag.
func (tag Tag) String() string {
	switch tag {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseTag parses a tag from its configuration name.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want zstd, lz4, or none)", name)
	}
}

// Encode compresses data with the requested algorithm and wraps it in
// an envelope. If the algorithm does not make the data smaller the
// envelope falls back to None, so Decode never needs to know which
// algorithm the sender preferred.
func Encode(data []byte, tag Tag) ([]byte, error) {
	if uint64(len(data)) > 0xFFFFFFFF {
		return nil, fmt.Errorf("compress: payload of %d bytes does not fit a 32-bit length", len(data))
	}

	var payload []byte
	var err error
	switch tag {
	case None:
		payload = data
	case LZ4:
		payload, err = compressLZ4(data)
	case Zstd:
		payload, err = compressZstd(data)
	default:
		return nil, fmt.Errorf("compress: unsupported tag %d", tag)
	}
	if errors.Is(err, errIncompressible) {
		tag, payload, err = None, data, nil
	}
	if err != nil {
		return nil, err
	}

	envelope := make([]byte, headerSize+len(payload))
	envelope[0] = byte(tag)
	binary.LittleEndian.PutUint32(envelope[1:headerSize], uint32(len(data)))
	copy(envelope[headerSize:], payload)
	return envelope, nil
}

// Decode unwraps an envelope produced by Encode. maxSize bounds the
// uncompressed length; an envelope declaring more is rejected with
// ErrTooLarge before anything is allocated.
func Decode(envelope []byte, maxSize int) ([]byte, error) {
	if len(envelope) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformed, len(envelope))
	}
	tag := Tag(envelope[0])
	size := binary.LittleEndian.Uint32(envelope[1:headerSize])
	if uint64(size) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, size, maxSize)
	}
	payload := envelope[headerSize:]

	switch tag {
	case None:
		if len(payload) != int(size) {
			return nil, fmt.Errorf("%w: stored payload is %d bytes, header says %d", ErrMalformed, len(payload), size)
		}
		result := make([]byte, len(payload))
		copy(result, payload)
		return result, nil
	case LZ4:
		return decompressLZ4(payload, int(size))
	case Zstd:
		return decompressZstd(payload, int(size))
	default:
		return nil, fmt.Errorf("%w: unknown tag %d", ErrMalformed, tag)
	}
}

// errIncompressible signals that the compressed form is not smaller
// than the input. Encode falls back to None.
var errIncompressible = errors.New("data is incompressible")

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %v", ErrMalformed, err)
	}
	if read != size {
		return nil, fmt.Errorf("%w: lz4 produced %d bytes, header says %d", ErrMalformed, read, size)
	}
	return destination, nil
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use with
// EncodeAll and DecodeAll, so one of each serves the process.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	// Window and total memory are capped so a hostile frame cannot
	// demand a huge allocation.
	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderMaxWindow(8<<20),
		zstd.WithDecoderMaxMemory(64<<20),
	)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, size int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrMalformed, err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("%w: zstd produced %d bytes, header says %d", ErrMalformed, len(result), size)
	}
	return result, nil
}
