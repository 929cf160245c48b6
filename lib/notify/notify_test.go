// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestMessageLocales(t *testing.T) {
	notice := Notice{Level: Success, Key: ScanSucceeded}
	if got := Message("ar", notice); got != "تم المسح بنجاح" {
		t.Errorf("ar message = %q", got)
	}
	if got := Message("en", notice); got != "Scan sent" {
		t.Errorf("en message = %q", got)
	}
	if got := Message("fr", notice); got != "Scan sent" {
		t.Errorf("unknown locale should fall back to English, got %q", got)
	}
	if got := Message("en", Notice{Key: "no_such_key"}); got != "no_such_key" {
		t.Errorf("unknown key should render as itself, got %q", got)
	}
}

func TestMessageArgs(t *testing.T) {
	got := Message("en", Notice{Key: CatalogUpdated, Args: []any{"products"}})
	if got != "Updated products" {
		t.Errorf("message = %q", got)
	}
}

func TestLoggerWritesNotice(t *testing.T) {
	var buffer bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buffer, nil))
	NewLogger(logger, "en").Notify(Notice{Level: Error, Key: CameraUnavailable})

	output := buffer.String()
	for _, want := range []string{"level=WARN", "Could not open the camera", "notice=camera_unavailable"} {
		if !strings.Contains(output, want) {
			t.Errorf("log output %q missing %q", output, want)
		}
	}
}

func TestRecorder(t *testing.T) {
	var recorder Recorder
	recorder.Notify(Notice{Key: ScanRequestReceived})
	if !recorder.Has(ScanRequestReceived) {
		t.Fatal("Has(ScanRequestReceived) = false")
	}
	if recorder.Has(ScanSucceeded) {
		t.Fatal("Has(ScanSucceeded) = true")
	}
	if len(recorder.Notices()) != 1 {
		t.Fatalf("Notices() = %v", recorder.Notices())
	}
}
