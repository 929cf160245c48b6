// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/ysk-pos/scanner/scan"
)

// ErrInputClosed is returned by Start once the input has ended, and
// reported to a started stream when the input ends under it.
var ErrInputClosed = errors.New("capture: scanner input closed")

// ErrNotBarcode is reported as a frame error for lines that cannot be
// barcodes: empty, or carrying control characters.
var ErrNotBarcode = errors.New("capture: line is not a barcode")

// Lines is a Camera over a line-oriented input. The input is read
// continuously; lines arriving while no stream is started are dropped,
// as are lines longer than MaxLineLength. When the input ends, the
// started stream, if any, reports ended.
type Lines struct {
	logger *slog.Logger

	mu      sync.Mutex
	current *lineStream
	closed  bool
	err     error

	done chan struct{}
}

// NewLines starts reading input. Reading stops at end of input or on
// the first read error; see Err.
func NewLines(input io.Reader, logger *slog.Logger) *Lines {
	lines := &Lines{logger: logger, done: make(chan struct{})}
	go lines.read(input)
	return lines
}

// Start implements scan.Camera. The request is logged but has no
// effect: the device frames and decodes on its own.
func (l *Lines) Start(_ context.Context, request scan.CaptureRequest, handlers scan.FrameHandlers) (scan.Stream, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrInputClosed
	}
	stream := &lineStream{lines: l, handlers: handlers}
	l.current = stream
	l.logger.Debug("waiting for scanner input",
		"facing", string(request.Facing),
		"box", request.Box.Width,
	)
	return stream, nil
}

// Done is closed when the input has ended.
func (l *Lines) Done() <-chan struct{} {
	return l.done
}

// Err returns the error that ended the input, or nil at clean end of
// input or while still reading.
func (l *Lines) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Lines) read(input io.Reader) {
	reader := newLineScanner(input, l.logger)
	for reader.Scan() {
		line := strings.TrimSpace(reader.Text())

		l.mu.Lock()
		stream := l.current
		l.mu.Unlock()

		if stream == nil {
			l.logger.Debug("scanner input with no scan open", "length", len(line))
			continue
		}
		stream.deliver(line)
	}

	l.mu.Lock()
	l.closed = true
	l.err = reader.Err()
	stream := l.current
	l.current = nil
	l.mu.Unlock()
	close(l.done)

	if stream != nil && stream.handlers.OnEnded != nil {
		ended := error(ErrInputClosed)
		if err := reader.Err(); err != nil {
			ended = fmt.Errorf("%w: %w", ErrInputClosed, err)
		}
		stream.handlers.OnEnded(ended)
	}
}

type lineStream struct {
	lines    *Lines
	handlers scan.FrameHandlers
}

func (s *lineStream) deliver(line string) {
	if !plausibleBarcode(line) {
		if s.handlers.OnFrameError != nil {
			s.handlers.OnFrameError(ErrNotBarcode)
		}
		return
	}
	s.handlers.OnDecoded(line)
}

// Stop implements scan.Stream.
func (s *lineStream) Stop() error {
	s.lines.mu.Lock()
	defer s.lines.mu.Unlock()
	if s.lines.current == s {
		s.lines.current = nil
	}
	return nil
}

// Clear implements scan.Stream. There is no preview to clear.
func (s *lineStream) Clear() error { return nil }

func plausibleBarcode(line string) bool {
	return line != "" && strings.IndexFunc(line, unicode.IsControl) < 0
}
