// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// Legacy is the settings object the browser client kept in local
// storage. Exports are hand-edited often enough that comments and
// trailing commas are accepted.
type Legacy struct {
	SyncAPIKey     string `json:"syncApiKey"`
	SyncAuthDomain string `json:"syncAuthDomain"`
	SyncProjectID  string `json:"syncProjectId"`
	Prefix         string `json:"prefix"`
	DeviceID       string `json:"deviceId"`
}

// ReadLegacy parses a legacy settings export.
func ReadLegacy(path string) (Legacy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Legacy{}, fmt.Errorf("settings: reading %s: %w", path, err)
	}
	var legacy Legacy
	if err := json.Unmarshal(jsonc.ToJSON(data), &legacy); err != nil {
		return Legacy{}, fmt.Errorf("settings: parsing %s: %w", path, err)
	}
	return legacy, nil
}

// Settings maps the legacy fields onto the current layout. The project
// id becomes the database name. The API key and auth domain addressed
// the old hosted backend and have no counterpart.
func (l Legacy) Settings() Settings {
	return Settings{
		Connection: Connection{Database: l.SyncProjectID},
		Prefix:     l.Prefix,
		DeviceID:   l.DeviceID,
	}
}

// ImportLegacy reads a legacy export and saves it over the store's
// settings, keeping stored values the export leaves empty.
func ImportLegacy(store *Store, path string) (Settings, error) {
	legacy, err := ReadLegacy(path)
	if err != nil {
		return Settings{}, err
	}
	return store.Save(legacy.Settings())
}
