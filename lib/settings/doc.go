// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package settings is the agent's local settings store: connection
// parameters for the document store, the key prefix that namespaces
// catalog collections, the notice locale, and the device identity that
// point-of-sale callers use to address scan requests to this device.
//
// Settings live in one YAML file, chosen by --settings or the
// YSK_SETTINGS environment variable, defaulting to
// $XDG_CONFIG_HOME/ysk-scanner/settings.yaml. The file belongs to one
// installation and is never shared. It is read once at startup and
// rewritten atomically (temporary file, fsync, rename) on every
// [Store.Save], so a crash mid-save leaves the previous settings
// intact.
//
// The device identity is generated on first use and then kept for the
// life of the installation. [ImportLegacy] carries an identity over
// from the settings export of the earlier browser client, so devices
// already known to the point-of-sale keep their address.
package settings
