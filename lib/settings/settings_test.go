// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenMissingFileIsEmpty(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "settings.yaml"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Settings() != (Settings{}) {
		t.Fatalf("Settings() = %+v, want zero", store.Settings())
	}
}

func TestOpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("connection: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("Open accepted a corrupt file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	saved, err := store.Save(Settings{
		Connection: Connection{Backend: BackendMongo, URI: "mongodb://localhost:27017/?replicaSet=rs0", Database: "ysk"},
		Prefix:     "shop1",
		Locale:     "ar",
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(saved.DeviceID, "dev_") {
		t.Fatalf("DeviceID = %q, want generated dev_ identity", saved.DeviceID)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Settings() != saved {
		t.Fatalf("reloaded %+v, saved %+v", reopened.Settings(), saved)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temporary file left behind: %v", err)
	}
}

func TestSaveMergesAndKeepsDeviceID(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "settings.yaml"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	first, err := store.Save(Settings{Prefix: "shop1", Connection: Connection{URI: "mongodb://a", Database: "ysk"}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, err := store.Save(Settings{Prefix: "shop2"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if second.DeviceID != first.DeviceID {
		t.Errorf("DeviceID changed from %q to %q", first.DeviceID, second.DeviceID)
	}
	if second.Prefix != "shop2" {
		t.Errorf("Prefix = %q, want shop2", second.Prefix)
	}
	if second.Connection.URI != "mongodb://a" {
		t.Errorf("empty update cleared URI: %q", second.Connection.URI)
	}
}

func TestEnsureDeviceIDIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	first, err := store.EnsureDeviceID()
	if err != nil {
		t.Fatalf("EnsureDeviceID: %v", err)
	}
	second, err := store.EnsureDeviceID()
	if err != nil {
		t.Fatalf("EnsureDeviceID: %v", err)
	}
	if first != second {
		t.Fatalf("identity changed: %q then %q", first, second)
	}
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Settings().DeviceID != first {
		t.Fatalf("identity not persisted: %q", reopened.Settings().DeviceID)
	}
}

func TestChecks(t *testing.T) {
	tests := []struct {
		name       string
		settings   Settings
		connection bool
		catalog    bool
	}{
		{"empty", Settings{}, false, false},
		{"memory without prefix", Settings{Connection: Connection{Backend: BackendMemory}}, true, false},
		{"mongo without database", Settings{Connection: Connection{URI: "mongodb://a"}, Prefix: "p"}, false, false},
		{"complete", Settings{Connection: Connection{URI: "mongodb://a", Database: "d"}, Prefix: "p"}, true, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := test.settings.CheckConnection(); (err == nil) != test.connection {
				t.Errorf("CheckConnection = %v, want ok=%v", err, test.connection)
			} else if err != nil && !errors.Is(err, ErrNotConfigured) {
				t.Errorf("CheckConnection error %v is not ErrNotConfigured", err)
			}
			if err := test.settings.CheckCatalog(); (err == nil) != test.catalog {
				t.Errorf("CheckCatalog = %v, want ok=%v", err, test.catalog)
			}
		})
	}
}

func TestImportLegacy(t *testing.T) {
	directory := t.TempDir()
	exportPath := filepath.Join(directory, "export.json")
	export := `{
		// copied from the browser's local storage
		"syncApiKey": "AIza-example",
		"syncProjectId": "ysk-shop",
		"prefix": "shop1",
		"deviceId": "dev_legacy42",
	}`
	if err := os.WriteFile(exportPath, []byte(export), 0o600); err != nil {
		t.Fatal(err)
	}

	store, err := Open(filepath.Join(directory, "settings.yaml"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	imported, err := ImportLegacy(store, exportPath)
	if err != nil {
		t.Fatalf("ImportLegacy: %v", err)
	}
	if imported.DeviceID != "dev_legacy42" {
		t.Errorf("DeviceID = %q, want the legacy identity", imported.DeviceID)
	}
	if imported.Connection.Database != "ysk-shop" || imported.Prefix != "shop1" {
		t.Errorf("imported %+v", imported)
	}
}
