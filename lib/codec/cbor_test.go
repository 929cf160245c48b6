// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMarshalIsOrderIndependent(t *testing.T) {
	first := map[string]any{"name": "Rice 5kg", "barcode": "6221000000017", "price": 120.5}
	second := map[string]any{"price": 120.5, "name": "Rice 5kg", "barcode": "6221000000017"}

	a, err := Marshal(first)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		b, err := Marshal(second)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("same record encoded differently:\n%x\n%x", a, b)
		}
	}
}

func TestUnmarshalUntypedShapes(t *testing.T) {
	data, err := Marshal(map[string]any{
		"stock":   uint64(12),
		"deficit": -3,
		"tags":    []any{"grocery"},
		"supplier": map[string]any{
			"name": "El Nour",
		},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	record, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", decoded)
	}
	if stock, ok := record["stock"].(int64); !ok || stock != 12 {
		t.Errorf("stock = %#v, want int64(12)", record["stock"])
	}
	if deficit, ok := record["deficit"].(int64); !ok || deficit != -3 {
		t.Errorf("deficit = %#v, want int64(-3)", record["deficit"])
	}
	supplier, ok := record["supplier"].(map[string]any)
	if !ok || supplier["name"] != "El Nour" {
		t.Errorf("supplier = %#v", record["supplier"])
	}
}
