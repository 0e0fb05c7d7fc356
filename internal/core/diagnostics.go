// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"bufio"
	"io"
	"log/slog"
	"sync"
)

// maxDiagnostics bounds the retained stderr. A crash report needs the
// tail (the panic message), not megabytes of frame timing logs.
const maxDiagnostics = 256 << 10

// diagnosticLog accumulates the core's stderr, keeping the most recent
// maxDiagnostics bytes.
type diagnosticLog struct {
	mu     sync.Mutex
	buffer []byte
}

func (d *diagnosticLog) append(line []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffer = append(d.buffer, line...)
	if overflow := len(d.buffer) - maxDiagnostics; overflow > 0 {
		d.buffer = append(d.buffer[:0], d.buffer[overflow:]...)
	}
}

func (d *diagnosticLog) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return string(d.buffer)
}

// drainDiagnostics copies stderr line by line into log until the
// stream ends, mirroring each line to logger at debug level.
func drainDiagnostics(stderr io.Reader, log *diagnosticLog, logger *slog.Logger) {
	reader := bufio.NewReader(stderr)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			log.append(line)
			logger.Debug("core stderr", "line", string(trimNewline(line)))
		}
		if err != nil {
			return
		}
	}
}

func trimNewline(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		return line[:n-1]
	}
	return line
}
