// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"github.com/ysk-pos/scanner/docstore"
)

// SessionsCollection holds both per-device sessions and the fixed
// session. It is not namespaced by the catalog prefix.
const SessionsCollection = "scannerSessions"

// FixedSessionID is the document id of the device-agnostic session.
const FixedSessionID = "fixed"

// TypeScanBarcode is the only session type the agent serves.
const TypeScanBarcode = "scanBarcode"

// Per-device session statuses.
const (
	StatusPending  = "pending"
	StatusScanning = "scanning"
	StatusDone     = "done"
	StatusExpired  = "expired"
)

// Fixed session statuses. The fixed session shares StatusExpired.
const (
	StatusScanRequested = "scanRequested"
	StatusScanned       = "scanned"
)

// Document field names.
const (
	FieldDeviceID     = "deviceId"
	FieldType         = "type"
	FieldStatus       = "status"
	FieldBarcode      = "barcode"
	FieldScannedValue = "scannedValue"
	FieldCreatedAt    = "createdAt"
	FieldRequestedAt  = "requestedAt"
	FieldUpdatedAt    = "updatedAt"
)

// Source tags where a scan request came from. Each source has its own
// state machine; they share only the Scanner.
type Source int

const (
	// SourceDevice is a per-device session document.
	SourceDevice Source = iota
	// SourceFixed is the fixed session document.
	SourceFixed
	// SourceManual is a scan started locally with Engine.ScanOnce.
	SourceManual
)

func (s Source) String() string {
	switch s {
	case SourceDevice:
		return "device"
	case SourceFixed:
		return "fixed"
	case SourceManual:
		return "manual"
	default:
		return "unknown"
	}
}

// SessionRef returns the reference of a per-device session.
func SessionRef(id string) docstore.Ref {
	return docstore.Ref{Collection: SessionsCollection, ID: id}
}

// FixedRef returns the reference of the fixed session.
func FixedRef() docstore.Ref {
	return SessionRef(FixedSessionID)
}

// PendingQuery selects the pending sessions addressed to deviceID.
func PendingQuery(deviceID string) docstore.Query {
	return docstore.Query{
		Collection: SessionsCollection,
		Filters: []docstore.Filter{
			docstore.Where(FieldDeviceID, deviceID),
			docstore.Where(FieldStatus, StatusPending),
		},
	}
}

// DeviceRequest returns the fields an external writer stores to ask
// deviceID for a scan.
func DeviceRequest(deviceID string) docstore.Fields {
	return docstore.Fields{
		FieldDeviceID:  deviceID,
		FieldType:      TypeScanBarcode,
		FieldStatus:    StatusPending,
		FieldCreatedAt: docstore.ServerTimestamp,
		FieldUpdatedAt: docstore.ServerTimestamp,
	}
}

// FixedRequest returns the fields an external writer stores on the
// fixed session to ask any device for a scan.
func FixedRequest() docstore.Fields {
	return docstore.Fields{
		FieldStatus:       StatusScanRequested,
		FieldScannedValue: "",
		FieldRequestedAt:  docstore.ServerTimestamp,
		FieldUpdatedAt:    docstore.ServerTimestamp,
	}
}
