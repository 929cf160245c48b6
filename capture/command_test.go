// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/ysk-pos/scanner/lib/testutil"
	"github.com/ysk-pos/scanner/scan"
)

func TestStripSymbology(t *testing.T) {
	tests := map[string]string{
		"EAN-13:4901234567894": "4901234567894",
		"qr-code:https://ysk":  "https://ysk",
		"4901234567894":        "4901234567894",
		"LOT:42":               "LOT:42",
	}
	for input, want := range tests {
		if got := stripSymbology(input); got != want {
			t.Errorf("stripSymbology(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestCommandReadsDecoderOutput(t *testing.T) {
	shell, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no sh in PATH")
	}
	camera := NewCommand(CommandConfig{
		Path:   shell,
		Args:   []string{"-c", "printf 'EAN-13:4901234567894\\n'; exec sleep 5"},
		Logger: discardLogger(),
	})

	frames := newCollector()
	stream, err := camera.Start(context.Background(), scan.CaptureRequest{FrameRate: scan.TargetFrameRate}, frames.handlers())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := testutil.RequireReceive(t, frames.decoded, 5*time.Second, "decoded value"); got != "4901234567894" {
		t.Fatalf("decoded %q", got)
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	testutil.RequireClosed(t, stream.(*commandStream).done, 5*time.Second, "decoder exit")
	select {
	case err := <-frames.ended:
		t.Fatalf("stopped decoder reported ended: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCommandStartFailure(t *testing.T) {
	camera := NewCommand(CommandConfig{
		Path:   "/nonexistent/decoder",
		Logger: discardLogger(),
	})
	if _, err := camera.Start(context.Background(), scan.CaptureRequest{}, newCollector().handlers()); err == nil {
		t.Fatal("Start succeeded with a missing decoder")
	}
}

// lookPath skips the test when name is not installed.
func lookPath(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("no %s in PATH", name)
	}
	return path
}

func TestCommandDecoderExitsOnLaunch(t *testing.T) {
	camera := NewCommand(CommandConfig{
		Path:       lookPath(t, "false"),
		Args:       []string{},
		StartGrace: 5 * time.Second,
		Logger:     discardLogger(),
	})
	frames := newCollector()
	stream, err := camera.Start(context.Background(), scan.CaptureRequest{}, frames.handlers())
	if !errors.Is(err, ErrDecoderExited) {
		t.Fatalf("Start = %v, %v; want ErrDecoderExited", stream, err)
	}
	select {
	case err := <-frames.ended:
		t.Fatalf("failed Start also reported ended: %v", err)
	default:
	}
}

func TestCommandDecoderExitsDuringScan(t *testing.T) {
	camera := NewCommand(CommandConfig{
		Path:       lookPath(t, "sh"),
		Args:       []string{"-c", "echo 'cannot open /dev/video0' >&2; exit 1"},
		StartGrace: -1,
		Logger:     discardLogger(),
	})
	frames := newCollector()
	if _, err := camera.Start(context.Background(), scan.CaptureRequest{}, frames.handlers()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err := testutil.RequireReceive(t, frames.ended, 5*time.Second, "decoder end")
	if !errors.Is(err, ErrDecoderExited) {
		t.Fatalf("ended with %v, want ErrDecoderExited", err)
	}
	if !strings.Contains(err.Error(), "cannot open /dev/video0") {
		t.Errorf("error %q lacks the decoder's message", err)
	}
}

func TestCommandExitEndsScannerScope(t *testing.T) {
	decoder := lookPath(t, "false")

	t.Run("within grace", func(t *testing.T) {
		scanner := scan.NewScanner(NewCommand(CommandConfig{
			Path:       decoder,
			Args:       []string{},
			StartGrace: 5 * time.Second,
			Logger:     discardLogger(),
		}), scan.Viewport{Width: 640, Height: 480}, discardLogger())

		if _, err := scanner.Open(context.Background(), scan.ScopeHandlers{}); !errors.Is(err, ErrDecoderExited) {
			t.Fatalf("Open = %v, want ErrDecoderExited", err)
		}
		if scanner.Active() {
			t.Error("scanner active after the decoder failed to start")
		}
	})

	t.Run("after start", func(t *testing.T) {
		scanner := scan.NewScanner(NewCommand(CommandConfig{
			Path:       lookPath(t, "sh"),
			Args:       []string{"-c", "sleep 0.2; exit 1"},
			StartGrace: -1,
			Logger:     discardLogger(),
		}), scan.Viewport{Width: 640, Height: 480}, discardLogger())

		failed := make(chan error, 1)
		if _, err := scanner.Open(context.Background(), scan.ScopeHandlers{
			OnFailed: func(err error) { failed <- err },
		}); err != nil {
			t.Fatalf("Open: %v", err)
		}
		if err := testutil.RequireReceive(t, failed, 5*time.Second, "scope failure"); !errors.Is(err, ErrDecoderExited) {
			t.Fatalf("scope failed with %v, want ErrDecoderExited", err)
		}
		if scanner.Active() {
			t.Error("scanner active after the decoder exited")
		}
	})
}
