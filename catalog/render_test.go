// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ysk-pos/scanner/docstore"
)

func TestRenderProducts(t *testing.T) {
	var out bytes.Buffer
	err := Render(&out, Products, []Record{
		product("p1", "Rice 5kg", "6221000000017", 120.5),
		{ID: "p2", Fields: docstore.Fields{"price": int64(45)}},
	}, RenderOptions{Locale: "ar", Plain: true})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	text := out.String()
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("rendered %d lines, want count plus two rows:\n%s", len(lines), text)
	}
	if lines[0] != "2 منتج" {
		t.Errorf("count line = %q", lines[0])
	}
	for _, want := range []string{"Rice 5kg", "6221000000017", "120.50", Currency} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("row %q missing %q", lines[1], want)
		}
	}
	if !strings.Contains(lines[2], "—") || !strings.Contains(lines[2], "45.00") {
		t.Errorf("row without name or barcode = %q", lines[2])
	}
	if strings.Contains(text, "\x1b[") {
		t.Errorf("plain output carries escape sequences: %q", text)
	}
}

func TestRenderEmpty(t *testing.T) {
	var out bytes.Buffer
	if err := Render(&out, Customers, nil, RenderOptions{Locale: "en", Plain: true}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := out.String(); got != "0 customers\nNo matching records\n" {
		t.Fatalf("Render = %q", got)
	}
}

func TestRenderTruncatesLongNames(t *testing.T) {
	var out bytes.Buffer
	long := strings.Repeat("Basmati ", 10)
	if err := Render(&out, Products, []Record{product("p1", long, "1", 1)}, RenderOptions{Locale: "en", Plain: true}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(out.String(), long) {
		t.Fatalf("long name not truncated: %q", out.String())
	}
	if !strings.Contains(out.String(), "…") {
		t.Errorf("truncation not marked: %q", out.String())
	}
}
