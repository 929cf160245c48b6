// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Facing selects which camera to use.
type Facing string

// FacingEnvironment is the rear camera, facing away from the user.
const FacingEnvironment Facing = "environment"

// ErrCameraStopped is reported when a stream ends on its own without
// saying why.
var ErrCameraStopped = errors.New("scan: camera stopped")

// TargetFrameRate is the decode rate asked of the device, in frames
// per second.
const TargetFrameRate = 10

// Viewport is the size of the preview surface in pixels.
type Viewport struct {
	Width  int
	Height int
}

// CaptureBox is the centered region frames are decoded from.
type CaptureBox struct {
	Width  int
	Height int
}

// SquareBox returns the centered square capture box for a viewport:
// seven tenths of the shorter edge, rounded down.
func SquareBox(viewport Viewport) CaptureBox {
	side := min(viewport.Width, viewport.Height) * 7 / 10
	if side < 0 {
		side = 0
	}
	return CaptureBox{Width: side, Height: side}
}

// CaptureRequest is what the Scanner asks of a Camera.
type CaptureRequest struct {
	Facing    Facing
	FrameRate int
	Box       CaptureBox
}

// NewCaptureRequest returns the request used for every scan.
func NewCaptureRequest(viewport Viewport) CaptureRequest {
	return CaptureRequest{
		Facing:    FacingEnvironment,
		FrameRate: TargetFrameRate,
		Box:       SquareBox(viewport),
	}
}

// FrameHandlers receive the results of decode attempts. A camera may
// call them from any goroutine, including from inside Start.
type FrameHandlers struct {
	// OnDecoded is called with each decoded value.
	OnDecoded func(value string)
	// OnFrameError is called for frames that did not decode. Most
	// frames do not contain a barcode.
	OnFrameError func(err error)
	// OnEnded is called when capture stops without Stop having been
	// called: the device went away or the decoder exited. Called at
	// most once.
	OnEnded func(err error)
}

// Camera is a capture and decode device.
type Camera interface {
	// Start begins capturing. It returns an error, with nothing left
	// running, when the device cannot be opened.
	Start(ctx context.Context, request CaptureRequest, handlers FrameHandlers) (Stream, error)
}

// Stream is a running capture.
type Stream interface {
	// Stop ends capture and releases the hardware.
	Stop() error
	// Clear removes any preview state left after Stop.
	Clear() error
}

// ScopeHandlers receive the single outcome of a Scope. Exactly one of
// them is called, at most once.
type ScopeHandlers struct {
	OnDecoded   func(value string)
	OnCancelled func()
	// OnFailed is called when the camera stops on its own after Open
	// returned. When nil, OnCancelled is called instead.
	OnFailed func(err error)
}

// Scanner wraps a Camera as an exclusive scoped resource: at most one
// Scope is open at a time.
type Scanner struct {
	camera   Camera
	viewport Viewport
	logger   *slog.Logger

	mu     sync.Mutex
	active *Scope
}

// NewScanner returns a Scanner over camera. The viewport sizes the
// capture box.
func NewScanner(camera Camera, viewport Viewport, logger *slog.Logger) *Scanner {
	return &Scanner{camera: camera, viewport: viewport, logger: logger}
}

// Open displaces any open scope, then starts the camera. The displaced
// scope is released (release errors are logged and dropped) and
// reports cancelled. If the camera cannot start, or stops on its own
// before Start returns, Open returns the error and no handler is ever
// called.
//
// The first decoded value ends the scope: handlers.OnDecoded runs once
// and the camera is released afterwards, even if the handler panics.
// Frames that fail to decode are ignored.
func (s *Scanner) Open(ctx context.Context, handlers ScopeHandlers) (*Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if previous := s.active; previous != nil {
		s.active = nil
		previous.cancel()
	}

	scope := &Scope{scanner: s, handlers: handlers}
	stream, err := s.camera.Start(ctx, NewCaptureRequest(s.viewport), FrameHandlers{
		OnDecoded:    scope.decoded,
		OnFrameError: func(error) {},
		OnEnded:      scope.failed,
	})
	if err != nil {
		scope.discard()
		return nil, fmt.Errorf("scan: starting camera: %w", err)
	}
	attached, err := scope.attach(stream)
	if err != nil {
		return nil, fmt.Errorf("scan: camera stopped while starting: %w", err)
	}
	if attached {
		s.active = scope
	}
	return scope, nil
}

// Close ends the open scope, if any, as cancelled. Idempotent and safe
// to call when nothing was ever opened.
func (s *Scanner) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		active := s.active
		s.active = nil
		active.cancel()
	}
}

// Active reports whether a scope is open and has not ended.
func (s *Scanner) Active() bool {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	return active != nil && !active.Ended()
}

// Scope is one open capture. It ends on the first decoded value, on
// cancellation, or when the camera stops on its own, whichever comes
// first. The camera is released on every path.
type Scope struct {
	scanner  *Scanner
	handlers ScopeHandlers

	mu     sync.Mutex
	stream Stream
	ended  bool
	// startErr is set when the camera stopped while Start was running.
	startErr error
}

// Close cancels this scope if it is still open. Closing a scope that
// already ended, or was displaced, does nothing.
func (scope *Scope) Close() {
	s := scope.scanner
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == scope {
		s.active = nil
	}
	scope.cancel()
}

// Ended reports whether the scope has delivered its outcome.
func (scope *Scope) Ended() bool {
	scope.mu.Lock()
	defer scope.mu.Unlock()
	return scope.ended
}

// decoded handles a decoded frame. Only the first one counts.
func (scope *Scope) decoded(value string) {
	scope.mu.Lock()
	if scope.ended {
		scope.mu.Unlock()
		return
	}
	scope.ended = true
	stream := scope.stream
	scope.mu.Unlock()

	// A nil stream means the value arrived while Start was still
	// running; attach releases it.
	if stream != nil {
		defer scope.release(stream)
	}
	if scope.handlers.OnDecoded != nil {
		scope.handlers.OnDecoded(value)
	}
}

// attach records the started stream. It reports false, after
// releasing the stream, if the scope already ended during Start, along
// with the camera's error if that is how it ended.
func (scope *Scope) attach(stream Stream) (bool, error) {
	scope.mu.Lock()
	if scope.ended {
		err := scope.startErr
		scope.mu.Unlock()
		scope.release(stream)
		return false, err
	}
	scope.stream = stream
	scope.mu.Unlock()
	return true, nil
}

// failed handles the camera stopping on its own. During Start the
// error is kept for Open to return; afterwards the scope ends and
// OnFailed runs.
func (scope *Scope) failed(err error) {
	if err == nil {
		err = ErrCameraStopped
	}
	scope.mu.Lock()
	if scope.ended {
		scope.mu.Unlock()
		return
	}
	scope.ended = true
	stream := scope.stream
	if stream == nil {
		scope.startErr = err
		scope.mu.Unlock()
		return
	}
	scope.mu.Unlock()

	scope.release(stream)
	switch {
	case scope.handlers.OnFailed != nil:
		scope.handlers.OnFailed(err)
	case scope.handlers.OnCancelled != nil:
		scope.handlers.OnCancelled()
	}
}

// discard marks a scope whose camera never started. No handler runs.
func (scope *Scope) discard() {
	scope.mu.Lock()
	scope.ended = true
	scope.mu.Unlock()
}

func (scope *Scope) cancel() {
	scope.mu.Lock()
	if scope.ended {
		scope.mu.Unlock()
		return
	}
	scope.ended = true
	stream := scope.stream
	scope.mu.Unlock()

	if stream != nil {
		scope.release(stream)
	}
	if scope.handlers.OnCancelled != nil {
		scope.handlers.OnCancelled()
	}
}

func (scope *Scope) release(stream Stream) {
	logger := scope.scanner.logger
	if err := stream.Stop(); err != nil {
		logger.Debug("stopping camera stream", "error", err)
	}
	if err := stream.Clear(); err != nil {
		logger.Debug("clearing camera stream", "error", err)
	}
}
