// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestSquareBox(t *testing.T) {
	tests := []struct {
		viewport Viewport
		want     int
	}{
		{Viewport{Width: 1080, Height: 1920}, 756},
		{Viewport{Width: 640, Height: 480}, 336},
		{Viewport{Width: 1000, Height: 999}, 699},
		{Viewport{Width: 0, Height: 720}, 0},
	}
	for _, test := range tests {
		box := SquareBox(test.viewport)
		if box.Width != test.want || box.Height != test.want {
			t.Errorf("SquareBox(%+v) = %+v, want %dx%d", test.viewport, box, test.want, test.want)
		}
	}
}

// scopeOutcomes counts the outcomes delivered to one scope.
type scopeOutcomes struct {
	decoded   []string
	cancelled int
	failed    []error
}

func (p *scopeOutcomes) handlers() ScopeHandlers {
	return ScopeHandlers{
		OnDecoded:   func(value string) { p.decoded = append(p.decoded, value) },
		OnCancelled: func() { p.cancelled++ },
		OnFailed:    func(err error) { p.failed = append(p.failed, err) },
	}
}

func openScope(t *testing.T, scanner *Scanner) (*Scope, *scopeOutcomes) {
	t.Helper()
	outcomes := &scopeOutcomes{}
	scope, err := scanner.Open(context.Background(), outcomes.handlers())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return scope, outcomes
}

func TestScannerCaptureRequest(t *testing.T) {
	camera := newFakeCamera()
	scanner := NewScanner(camera, Viewport{Width: 1080, Height: 1920}, discardLogger())
	openScope(t, scanner)

	request := camera.requests[0]
	if request.Facing != FacingEnvironment {
		t.Errorf("Facing = %q, want environment", request.Facing)
	}
	if request.FrameRate != 10 {
		t.Errorf("FrameRate = %d, want 10", request.FrameRate)
	}
	if request.Box != (CaptureBox{Width: 756, Height: 756}) {
		t.Errorf("Box = %+v", request.Box)
	}
}

func TestScannerOpenDisplacesPrevious(t *testing.T) {
	camera := newFakeCamera()
	scanner := NewScanner(camera, Viewport{Width: 640, Height: 480}, discardLogger())

	first, firstOutcomes := openScope(t, scanner)
	camera.stream(1).stopErr = errors.New("device busy")
	_, secondOutcomes := openScope(t, scanner)

	want := []string{"start 1", "stop 1", "clear 1", "start 2"}
	if got := camera.log(); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if camera.maxRunning != 1 {
		t.Errorf("%d streams ran at once", camera.maxRunning)
	}
	if firstOutcomes.cancelled != 1 || !first.Ended() {
		t.Errorf("displaced scope: cancelled=%d ended=%v", firstOutcomes.cancelled, first.Ended())
	}
	if secondOutcomes.cancelled != 0 || !scanner.Active() {
		t.Errorf("new scope not active")
	}
}

func TestScannerDecodeEndsScopeOnce(t *testing.T) {
	camera := newFakeCamera()
	scanner := NewScanner(camera, Viewport{Width: 640, Height: 480}, discardLogger())
	scope, outcomes := openScope(t, scanner)

	camera.last().handlers.OnFrameError(errors.New("no barcode in frame"))
	if scope.Ended() || len(outcomes.decoded) != 0 {
		t.Fatal("a frame error ended the scope")
	}

	camera.decode("4901234567894")
	camera.decode("4901234567894")

	if !slices.Equal(outcomes.decoded, []string{"4901234567894"}) {
		t.Fatalf("decoded = %v, want one value", outcomes.decoded)
	}
	if outcomes.cancelled != 0 {
		t.Errorf("decoded scope also reported cancelled")
	}
	if !camera.stream(1).released() {
		t.Errorf("stream not released after decode: %v", camera.log())
	}
	if scanner.Active() {
		t.Errorf("scanner still active after decode")
	}

	// Closing after the outcome changes nothing.
	scanner.Close()
	scope.Close()
	if outcomes.cancelled != 0 || camera.stream(1).stops != 1 {
		t.Errorf("close after decode: cancelled=%d stops=%d", outcomes.cancelled, camera.stream(1).stops)
	}
}

func TestScannerReleasesWhenHandlerPanics(t *testing.T) {
	camera := newFakeCamera()
	scanner := NewScanner(camera, Viewport{Width: 640, Height: 480}, discardLogger())
	if _, err := scanner.Open(context.Background(), ScopeHandlers{
		OnDecoded: func(string) { panic("handler failed") },
	}); err != nil {
		t.Fatalf("Open: %v", err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("handler panic was swallowed")
			}
		}()
		camera.decode("123")
	}()

	if !camera.stream(1).released() {
		t.Fatalf("stream not released after panicking handler: %v", camera.log())
	}
}

func TestScannerOpenFailure(t *testing.T) {
	camera := newFakeCamera()
	scanner := NewScanner(camera, Viewport{Width: 640, Height: 480}, discardLogger())
	camera.startErr = errors.New("permission denied")

	outcomes := &scopeOutcomes{}
	scope, err := scanner.Open(context.Background(), outcomes.handlers())
	if err == nil {
		t.Fatal("Open succeeded with a failing camera")
	}
	if scope != nil {
		t.Errorf("Open returned a scope alongside an error")
	}
	if scanner.Active() {
		t.Errorf("failed open left the scanner active")
	}
	if outcomes.cancelled != 0 || len(outcomes.decoded) != 0 {
		t.Errorf("handlers fired for a failed open: %+v", outcomes)
	}

	// The scanner is usable again.
	openScope(t, scanner)
	if !scanner.Active() {
		t.Fatal("second open not active")
	}
}

func TestScannerCloseIsIdempotent(t *testing.T) {
	camera := newFakeCamera()
	scanner := NewScanner(camera, Viewport{Width: 640, Height: 480}, discardLogger())

	scanner.Close()
	scanner.Close()

	_, outcomes := openScope(t, scanner)
	scanner.Close()
	scanner.Close()

	if outcomes.cancelled != 1 {
		t.Errorf("cancelled %d times, want 1", outcomes.cancelled)
	}
	if stream := camera.stream(1); stream.stops != 1 || stream.clears != 1 {
		t.Errorf("stream stopped %d and cleared %d times", stream.stops, stream.clears)
	}
}

func TestScopeCloseOnlyAffectsItself(t *testing.T) {
	camera := newFakeCamera()
	scanner := NewScanner(camera, Viewport{Width: 640, Height: 480}, discardLogger())

	first, _ := openScope(t, scanner)
	_, secondOutcomes := openScope(t, scanner)
	first.Close()

	if !scanner.Active() || secondOutcomes.cancelled != 0 {
		t.Fatal("closing a displaced scope closed its successor")
	}
}

func TestScannerDecodeDuringStart(t *testing.T) {
	camera := newFakeCamera()
	camera.decodeOnStart = "777"
	scanner := NewScanner(camera, Viewport{Width: 640, Height: 480}, discardLogger())

	scope, outcomes := openScope(t, scanner)
	if !slices.Equal(outcomes.decoded, []string{"777"}) {
		t.Fatalf("decoded = %v", outcomes.decoded)
	}
	if !scope.Ended() || scanner.Active() {
		t.Errorf("scope still open after decoding during start")
	}
	if !camera.stream(1).released() {
		t.Errorf("stream not released: %v", camera.log())
	}
}

func TestScannerCameraStopsAfterOpen(t *testing.T) {
	camera := newFakeCamera()
	scanner := NewScanner(camera, Viewport{Width: 640, Height: 480}, discardLogger())
	unplugged := errors.New("device unplugged")

	scope, outcomes := openScope(t, scanner)
	camera.end(unplugged)
	camera.end(errors.New("second report"))

	if len(outcomes.failed) != 1 || !errors.Is(outcomes.failed[0], unplugged) {
		t.Fatalf("failed = %v, want one %v", outcomes.failed, unplugged)
	}
	if outcomes.cancelled != 0 || len(outcomes.decoded) != 0 {
		t.Errorf("other handlers fired: %+v", outcomes)
	}
	if !scope.Ended() || scanner.Active() {
		t.Errorf("scope still open after the camera stopped")
	}
	if !camera.stream(1).released() {
		t.Errorf("stream not released: %v", camera.log())
	}

	scanner.Close()
	if outcomes.cancelled != 0 {
		t.Errorf("Close after failure reported a cancellation")
	}
	openScope(t, scanner)
	if !scanner.Active() {
		t.Fatal("scanner unusable after a camera stop")
	}
}

func TestScannerCameraStopFallsBackToCancelled(t *testing.T) {
	camera := newFakeCamera()
	scanner := NewScanner(camera, Viewport{Width: 640, Height: 480}, discardLogger())

	cancelled := 0
	if _, err := scanner.Open(context.Background(), ScopeHandlers{
		OnCancelled: func() { cancelled++ },
	}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	camera.end(nil)

	if cancelled != 1 {
		t.Fatalf("cancelled %d times, want 1", cancelled)
	}
}

func TestScannerCameraStopsDuringStart(t *testing.T) {
	camera := newFakeCamera()
	busy := errors.New("device busy")
	camera.endOnStart = busy
	scanner := NewScanner(camera, Viewport{Width: 640, Height: 480}, discardLogger())

	outcomes := &scopeOutcomes{}
	scope, err := scanner.Open(context.Background(), outcomes.handlers())
	if !errors.Is(err, busy) {
		t.Fatalf("Open = %v, want %v", err, busy)
	}
	if scope != nil {
		t.Errorf("Open returned a scope alongside an error")
	}
	if outcomes.cancelled != 0 || len(outcomes.decoded) != 0 || len(outcomes.failed) != 0 {
		t.Errorf("handlers fired for a failed open: %+v", outcomes)
	}
	if scanner.Active() {
		t.Errorf("failed open left the scanner active")
	}
	if !camera.stream(1).released() {
		t.Errorf("stream not released: %v", camera.log())
	}
}
