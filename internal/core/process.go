// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/tango/lib/codec"
	"github.com/bureau-foundation/tango/lib/ipc"
	"github.com/bureau-foundation/tango/lib/process"
)

// ErrClosed is returned by Send once the launcher's end of the core's
// standard input is closed: after Close, after cancellation, or after
// the core stopped reading because it exited.
var ErrClosed = errors.New("core: channel closed")

// ErrMalformedMessage is returned by Receive when a frame does not
// decode to a valid ipc.FromCoreMessage.
var ErrMalformedMessage = errors.New("core: malformed message")

// Options configures Start.
type Options struct {
	// Path is the core executable.
	Path string

	// Args is rendered to the core's command line.
	Args ipc.Args

	// Env is appended to the launcher's environment for the core.
	Env []string

	// Logger receives lifecycle events and mirrored stderr lines. Nil
	// discards them.
	Logger *slog.Logger

	// MaxFrameSize bounds incoming frames. Zero means
	// DefaultMaxFrameSize.
	MaxFrameSize int

	// ShutdownGrace is the delay between SIGTERM and SIGKILL on
	// cancellation. Zero means SIGKILL immediately.
	ShutdownGrace time.Duration
}

// Process is a running core and the framed channel to it.
type Process struct {
	ctx    context.Context
	cmd    *exec.Cmd
	logger *slog.Logger

	sendMu     sync.Mutex
	stdin      *os.File
	sendClosed atomic.Bool

	recvMu   sync.Mutex
	stdout   *os.File
	reader   *bufio.Reader
	maxFrame int

	diagnostics diagnosticLog

	exited chan struct{}
	status process.ExitStatus

	closeStdin  sync.Once
	closeStdout sync.Once
}

// Start spawns the core. The subprocess lives until it exits on its
// own, Close is followed by the core exiting, or ctx is cancelled.
func Start(ctx context.Context, options Options) (*Process, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxFrame := options.MaxFrameSize
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}

	argv, err := options.Args.Argv()
	if err != nil {
		return nil, err
	}

	// Pipes are created here rather than with StdinPipe/StdoutPipe:
	// exec.Cmd.Wait closes those as soon as the child exits, which
	// would discard frames the core wrote just before exiting.
	stdinReader, stdinWriter, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdoutReader, stdoutWriter, err := os.Pipe()
	if err != nil {
		closeAll(stdinReader, stdinWriter)
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrReader, stderrWriter, err := os.Pipe()
	if err != nil {
		closeAll(stdinReader, stdinWriter, stdoutReader, stdoutWriter)
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	cmd := exec.CommandContext(ctx, options.Path, argv...)
	cmd.Stdin = stdinReader
	cmd.Stdout = stdoutWriter
	cmd.Stderr = stderrWriter
	cmd.Env = append(os.Environ(), options.Env...)

	// The core runs in its own process group so cancellation reaches
	// any helpers it spawns.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	grace := options.ShutdownGrace
	cmd.Cancel = func() error {
		processGroupID := -cmd.Process.Pid
		if grace <= 0 {
			return unix.Kill(processGroupID, unix.SIGKILL)
		}
		if err := unix.Kill(processGroupID, unix.SIGTERM); err != nil {
			return unix.Kill(processGroupID, unix.SIGKILL)
		}
		go func() {
			time.Sleep(grace) //nolint:realclock kill escalation outside any test-visible path
			// ESRCH from an already-exited group is harmless.
			_ = unix.Kill(processGroupID, unix.SIGKILL)
		}()
		return nil
	}

	if err := cmd.Start(); err != nil {
		closeAll(stdinReader, stdinWriter, stdoutReader, stdoutWriter, stderrReader, stderrWriter)
		return nil, fmt.Errorf("starting core %s: %w", options.Path, err)
	}
	// The child holds its own copies; keeping ours open would stop
	// EOF from ever arriving.
	closeAll(stdinReader, stdoutWriter, stderrWriter)

	p := &Process{
		ctx:      ctx,
		cmd:      cmd,
		logger:   logger.With("pid", cmd.Process.Pid),
		stdin:    stdinWriter,
		stdout:   stdoutReader,
		reader:   bufio.NewReader(stdoutReader),
		maxFrame: maxFrame,
		exited:   make(chan struct{}),
	}
	p.logger.Info("core started", "path", options.Path, "session_id", options.Args.SessionID)

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		drainDiagnostics(stderrReader, &p.diagnostics, p.logger)
		stderrReader.Close()
	}()

	go func() {
		waitErr := cmd.Wait()
		// Collect the last stderr lines before publishing the exit so
		// crash reports include the panic message. A grandchild
		// holding stderr open must not wedge the reaper.
		select {
		case <-stderrDone:
		case <-time.After(time.Second): //nolint:realclock bounded drain after exit
		}
		p.status = process.StatusFromWait(cmd.ProcessState, waitErr)
		p.logger.Info("core exited", "status", p.status.String())
		close(p.exited)
	}()

	context.AfterFunc(ctx, func() {
		p.closeInput()
		p.closeOutput()
	})

	return p, nil
}

// Send writes one message to the core. Concurrent Sends are
// serialized; a Send never waits on a Receive.
func (p *Process) Send(message *ipc.ToCoreMessage) error {
	if err := message.Validate(); err != nil {
		return err
	}
	data, err := codec.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding message for core: %w", err)
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if p.sendClosed.Load() {
		return ErrClosed
	}
	if err := WriteFrame(p.stdin, data); err != nil {
		if streamEnded(err) {
			return fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return fmt.Errorf("writing to core: %w", err)
	}
	return nil
}

// Receive reads the next message from the core. It returns (nil, nil)
// when the core closed its output cleanly on a frame boundary, which
// is what happens when it exits. Concurrent Receives are serialized; a
// Receive never waits on a Send. After cancellation Receive returns
// the context's error.
func (p *Process) Receive() (*ipc.FromCoreMessage, error) {
	p.recvMu.Lock()
	defer p.recvMu.Unlock()

	payload, err := ReadFrame(p.reader, p.maxFrame)
	if err != nil {
		if p.ctx.Err() != nil {
			return nil, fmt.Errorf("receiving from core: %w", context.Cause(p.ctx))
		}
		if streamEnded(err) {
			// Nothing more can arrive; release the read side.
			p.closeOutput()
			return nil, nil
		}
		return nil, fmt.Errorf("receiving from core: %w", err)
	}

	var message ipc.FromCoreMessage
	if err := codec.Unmarshal(payload, &message); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := message.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &message, nil
}

// Close closes the core's standard input, which the core treats as a
// request to shut down, and makes further Sends fail with ErrClosed.
// It does not wait for the process; use Wait.
func (p *Process) Close() error {
	p.closeInput()
	return nil
}

// Terminate asks the core to exit by sending SIGTERM to its process
// group. The resulting exit counts as clean.
func (p *Process) Terminate() error {
	select {
	case <-p.exited:
		return nil
	default:
	}
	if err := unix.Kill(-p.cmd.Process.Pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("terminating core: %w", err)
	}
	return nil
}

// Exited is closed once the process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Wait blocks until the process has been reaped and returns how it
// ended.
func (p *Process) Wait() process.ExitStatus {
	<-p.exited
	return p.status
}

// Diagnostics returns the retained standard error output.
func (p *Process) Diagnostics() string {
	return p.diagnostics.String()
}

func (p *Process) closeInput() {
	// Not under sendMu: closing the file is what unblocks a Send
	// stuck on a full pipe.
	p.closeStdin.Do(func() {
		p.sendClosed.Store(true)
		p.stdin.Close()
	})
}

func (p *Process) closeOutput() {
	p.closeStdout.Do(func() {
		p.stdout.Close()
	})
}

func closeAll(files ...*os.File) {
	for _, file := range files {
		file.Close()
	}
}
