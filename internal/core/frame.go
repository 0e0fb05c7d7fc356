// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"syscall"
)

// frameHeaderSize is the width of the length prefix.
const frameHeaderSize = 4

// DefaultMaxFrameSize bounds a single frame. The largest legitimate
// frame is a StartRequest carrying replay metadata, far below this.
const DefaultMaxFrameSize = 16 << 20

var (
	// ErrFrameTooLarge is returned when a frame header declares a
	// length above the reader's limit.
	ErrFrameTooLarge = errors.New("core: frame exceeds maximum size")

	// ErrTruncatedFrame is returned when the stream ends inside a
	// frame.
	ErrTruncatedFrame = errors.New("core: stream ended mid-frame")
)

// WriteFrame writes payload with its length prefix in a single Write
// call.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > 0xFFFFFFFF {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[frameHeaderSize:], payload)
	_, err := w.Write(frame)
	return err
}

// ReadFrame reads one frame. It returns io.EOF only when the stream
// ends cleanly on a frame boundary; an end inside a frame is
// ErrTruncatedFrame.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: partial length prefix", ErrTruncatedFrame)
		}
		return nil, err
	}

	size := binary.LittleEndian.Uint32(header[:])
	if uint64(size) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, maxSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: wanted %d payload bytes", ErrTruncatedFrame, size)
		}
		return nil, err
	}
	return payload, nil
}

// streamEnded reports whether err means the other end of a pipe went
// away: EOF on a frame boundary, a closed descriptor, or EPIPE on
// write. The core exiting produces exactly these.
func streamEnded(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, fs.ErrClosed):
		return true
	}
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == syscall.EPIPE
}
