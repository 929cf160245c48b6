// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the settings file when --settings is not
// given.
const EnvironmentVariable = "YSK_SETTINGS"

// ErrNotConfigured is returned when an operation needs connection or
// prefix settings that have not been filled in.
var ErrNotConfigured = errors.New("settings: not configured")

// Backend selects the document store implementation.
type Backend string

const (
	// BackendMemory keeps documents in process. Nothing leaves the
	// machine; useful for demos and local testing.
	BackendMemory Backend = "memory"
	// BackendMongo connects to MongoDB.
	BackendMongo Backend = "mongo"
)

// Settings is the persisted configuration of one installation.
type Settings struct {
	// Connection locates the document store.
	Connection Connection `yaml:"connection"`

	// Prefix namespaces the catalog collections: products live in
	// "<prefix>_products" and so on. Scan sessions are not prefixed.
	Prefix string `yaml:"prefix"`

	// DeviceID is this installation's address for per-device scan
	// requests. Generated once when empty.
	DeviceID string `yaml:"device_id"`

	// Locale selects the notice language ("ar" or "en").
	Locale string `yaml:"locale"`
}

// Connection locates the document store.
type Connection struct {
	Backend  Backend `yaml:"backend"`
	URI      string  `yaml:"uri"`
	Database string  `yaml:"database"`
}

// CheckConnection reports ErrNotConfigured when the document store
// cannot be reached with these settings.
func (s Settings) CheckConnection() error {
	switch s.Connection.Backend {
	case BackendMemory:
		return nil
	case BackendMongo, "":
		if s.Connection.URI == "" || s.Connection.Database == "" {
			return fmt.Errorf("%w: connection.uri and connection.database are required", ErrNotConfigured)
		}
		return nil
	default:
		return fmt.Errorf("settings: unknown backend %q", s.Connection.Backend)
	}
}

// CheckCatalog reports ErrNotConfigured when catalog collections cannot
// be addressed.
func (s Settings) CheckCatalog() error {
	if err := s.CheckConnection(); err != nil {
		return err
	}
	if s.Prefix == "" {
		return fmt.Errorf("%w: prefix is required", ErrNotConfigured)
	}
	return nil
}

// BackendOrDefault returns the configured backend, mongo when unset.
func (s Settings) BackendOrDefault() Backend {
	if s.Connection.Backend == "" {
		return BackendMongo
	}
	return s.Connection.Backend
}

// NewDeviceID returns a fresh device identity.
func NewDeviceID() string {
	return "dev_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// Store owns the settings file. Safe for concurrent use.
type Store struct {
	path string

	mu      sync.Mutex
	current Settings
}

// DefaultPath resolves the settings path from the environment, falling
// back to the user config directory.
func DefaultPath() (string, error) {
	if path := os.Getenv(EnvironmentVariable); path != "" {
		return path, nil
	}
	configDirectory, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("settings: no %s and no user config directory: %w", EnvironmentVariable, err)
	}
	return filepath.Join(configDirectory, "ysk-scanner", "settings.yaml"), nil
}

// Open loads the settings at path. A missing file yields empty
// settings; a file that exists but does not parse is an error.
func Open(path string) (*Store, error) {
	store := &Store{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &store.current); err != nil {
		return nil, fmt.Errorf("settings: parsing %s: %w", path, err)
	}
	return store, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Settings returns the current settings.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// EnsureDeviceID returns the device identity, generating and
// persisting one first if the settings have none.
func (s *Store) EnsureDeviceID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.DeviceID != "" {
		return s.current.DeviceID, nil
	}
	next := s.current
	next.DeviceID = NewDeviceID()
	if err := writeFile(s.path, next); err != nil {
		return "", err
	}
	s.current = next
	return next.DeviceID, nil
}

// Save merges update into the current settings and persists the
// result. Empty fields in update keep their stored values. The device
// identity is generated if neither update nor the stored settings
// carry one.
func (s *Store) Save(update Settings) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	if update.Connection.Backend != "" {
		next.Connection.Backend = update.Connection.Backend
	}
	if update.Connection.URI != "" {
		next.Connection.URI = update.Connection.URI
	}
	if update.Connection.Database != "" {
		next.Connection.Database = update.Connection.Database
	}
	if update.Prefix != "" {
		next.Prefix = update.Prefix
	}
	if update.Locale != "" {
		next.Locale = update.Locale
	}
	if update.DeviceID != "" {
		next.DeviceID = update.DeviceID
	}
	if next.DeviceID == "" {
		next.DeviceID = NewDeviceID()
	}

	if err := writeFile(s.path, next); err != nil {
		return s.current, err
	}
	s.current = next
	return next, nil
}

// writeFile writes settings atomically: temporary file in the same
// directory, fsync, rename, then fsync the directory.
func writeFile(path string, settings Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("settings: encoding: %w", err)
	}

	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("settings: creating %s: %w", directory, err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("settings: creating temporary file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("settings: writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("settings: syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("settings: closing temporary file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("settings: renaming into place: %w", err)
	}

	if parent, err := os.Open(directory); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}
