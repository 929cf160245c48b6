// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ysk-pos/scanner/lib/clock"
	"github.com/ysk-pos/scanner/scan"
)

// DefaultDecoder is the decoder Command runs when none is configured.
// With --raw it prints each decoded value on its own line.
const DefaultDecoder = "zbarcam"

// DefaultStartGrace is how long Start waits for a decoder that fails
// right after launch, as zbarcam does when the video device is
// missing or busy.
const DefaultStartGrace = 300 * time.Millisecond

// ErrDecoderExited is reported when the decoder exits without being
// stopped.
var ErrDecoderExited = errors.New("capture: decoder exited")

// stderrTail is how much of the decoder's stderr is kept for error
// messages.
const stderrTail = 1024

// CommandConfig configures a Command.
type CommandConfig struct {
	// Path is the decoder executable. Defaults to DefaultDecoder.
	Path string

	// Args are passed to the decoder. Defaults to "--raw" and the
	// video device, if set.
	Args []string

	// Device is the video device handed to the default arguments,
	// such as /dev/video0.
	Device string

	// StartGrace is how long Start waits for the decoder to fail on
	// launch. Zero means DefaultStartGrace; negative disables the wait.
	StartGrace time.Duration

	// Clock times the start grace. Defaults to the real clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Command is a Camera that runs an external decoder process per scan.
// Each output line is one decoded value; a "TYPE:" symbology prefix,
// as zbarcam prints without --raw, is stripped. A decoder that exits
// on its own ends the stream with ErrDecoderExited.
type Command struct {
	path   string
	args   []string
	grace  time.Duration
	clock  clock.Clock
	logger *slog.Logger
}

// NewCommand returns a Command for config.
func NewCommand(config CommandConfig) *Command {
	path := config.Path
	if path == "" {
		path = DefaultDecoder
	}
	args := config.Args
	if args == nil {
		args = []string{"--raw"}
		if config.Device != "" {
			args = append(args, config.Device)
		}
	}
	grace := config.StartGrace
	if grace == 0 {
		grace = DefaultStartGrace
	}
	c := config.Clock
	if c == nil {
		c = clock.Real()
	}
	return &Command{path: path, args: args, grace: grace, clock: c, logger: config.Logger}
}

// Start implements scan.Camera. It fails if the decoder cannot be
// started or exits within the start grace without decoding anything.
// After that the decoder runs until Stop; if it exits first, the
// stream reports ended.
func (c *Command) Start(ctx context.Context, request scan.CaptureRequest, handlers scan.FrameHandlers) (scan.Stream, error) {
	processContext, cancel := context.WithCancel(context.WithoutCancel(ctx))
	command := exec.CommandContext(processContext, c.path, c.args...)
	stderr := &tailBuffer{limit: stderrTail}
	command.Stderr = stderr
	stdout, err := command.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("capture: decoder stdout: %w", err)
	}
	if err := command.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("capture: starting %s: %w", c.path, err)
	}
	c.logger.Debug("decoder started",
		"path", c.path,
		"pid", command.Process.Pid,
		"frame_rate", request.FrameRate,
	)

	stream := &commandStream{cancel: cancel, done: make(chan struct{})}
	go stream.follow(c.path, command, stdout, stderr, handlers, c.logger)

	if c.grace > 0 {
		select {
		case <-stream.done:
			if !stream.decoded.Load() {
				cancel()
				return nil, stream.exitErr
			}
			// The value already ended the scan.
			return stream, nil
		case <-c.clock.After(c.grace):
		}
	}
	go stream.watch(handlers, c.logger)
	return stream, nil
}

type commandStream struct {
	cancel  context.CancelFunc
	once    sync.Once
	stopped atomic.Bool
	decoded atomic.Bool
	done    chan struct{}

	// exitErr is set before done is closed.
	exitErr error
}

func (s *commandStream) follow(path string, command *exec.Cmd, stdout io.Reader, stderr *tailBuffer, handlers scan.FrameHandlers, logger *slog.Logger) {
	defer close(s.done)
	reader := newLineScanner(stdout, logger)
	for reader.Scan() {
		line := stripSymbology(strings.TrimSpace(reader.Text()))
		if !plausibleBarcode(line) {
			if handlers.OnFrameError != nil {
				handlers.OnFrameError(ErrNotBarcode)
			}
			continue
		}
		s.decoded.Store(true)
		handlers.OnDecoded(line)
	}
	waitErr := command.Wait()
	detail := stderr.lastLine()
	switch {
	case waitErr != nil && detail != "":
		s.exitErr = fmt.Errorf("%w: %s: %v: %s", ErrDecoderExited, path, waitErr, detail)
	case waitErr != nil:
		s.exitErr = fmt.Errorf("%w: %s: %v", ErrDecoderExited, path, waitErr)
	default:
		s.exitErr = fmt.Errorf("%w: %s", ErrDecoderExited, path)
	}
}

// watch reports the decoder exiting before Stop.
func (s *commandStream) watch(handlers scan.FrameHandlers, logger *slog.Logger) {
	<-s.done
	if s.stopped.Load() {
		return
	}
	logger.Warn("decoder exited during scan", "error", s.exitErr)
	if handlers.OnEnded != nil {
		handlers.OnEnded(s.exitErr)
	}
}

// Stop implements scan.Stream. It kills the decoder without waiting
// for it: Stop may run on the goroutine reading the decoder's output.
func (s *commandStream) Stop() error {
	s.stopped.Store(true)
	s.once.Do(s.cancel)
	return nil
}

// Clear implements scan.Stream.
func (s *commandStream) Clear() error { return nil }

// symbologies are the names zbar prefixes values with when not run
// with --raw.
var symbologies = map[string]bool{
	"EAN-13": true, "EAN-8": true, "EAN-2": true, "EAN-5": true,
	"UPC-A": true, "UPC-E": true, "ISBN-10": true, "ISBN-13": true,
	"I2/5": true, "DATABAR": true, "DATABAR-EXP": true, "CODABAR": true,
	"CODE-39": true, "CODE-93": true, "CODE-128": true,
	"PDF417": true, "QR-CODE": true, "SQCODE": true,
}

// stripSymbology removes a leading "EAN-13:" style prefix.
func stripSymbology(line string) string {
	name, value, ok := strings.Cut(line, ":")
	if ok && symbologies[strings.ToUpper(name)] {
		return value
	}
	return line
}

// tailBuffer keeps the last limit bytes written to it. Written by the
// exec copier, read only after Wait.
type tailBuffer struct {
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	if excess := len(b.data) - b.limit; excess > 0 {
		b.data = b.data[excess:]
	}
	return len(p), nil
}

func (b *tailBuffer) lastLine() string {
	text := strings.TrimSpace(string(b.data))
	if index := strings.LastIndexByte(text, '\n'); index >= 0 {
		text = text[index+1:]
	}
	return strings.TrimSpace(text)
}
