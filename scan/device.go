// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"errors"

	"github.com/ysk-pos/scanner/docstore"
	"github.com/ysk-pos/scanner/lib/notify"
)

func (e *Engine) startDeviceListener() {
	if e.stopped {
		return
	}
	e.stopListener(&e.device)
	generation := e.device.generation

	subscription, err := e.gateway.SubscribeQuery(e.ctx, PendingQuery(e.deviceID),
		func(snapshot docstore.QuerySnapshot) {
			e.post(func() { e.deviceSnapshot(generation, snapshot) })
		},
		e.subscriptionError(SourceDevice),
	)
	if err != nil {
		e.logger.Error("subscribing to device sessions failed", "error", err)
		return
	}
	e.device.subscription = subscription
	e.logger.Info("listening for device scan sessions")
}

func (e *Engine) deviceSnapshot(generation uint64, snapshot docstore.QuerySnapshot) {
	if generation != e.device.generation {
		return
	}
	if !e.device.primed {
		e.device.primed = true
		e.logger.Debug("initial device session snapshot skipped", "pending", len(snapshot.Documents))
		return
	}
	for _, change := range snapshot.Changes {
		if change.Type != docstore.Added && change.Type != docstore.Modified {
			continue
		}
		fields := change.Document.Fields
		if fields.String(FieldType) != TypeScanBarcode || fields.String(FieldStatus) != StatusPending {
			continue
		}
		e.serveDevice(change.Document.Ref)
	}
}

// serveDevice claims a pending session and opens the scanner for it.
// The claim only succeeds while the session is still pending, so a
// session is served at most once however many deliveries mention it.
func (e *Engine) serveDevice(ref docstore.Ref) {
	ctx, cancel := e.storeContext()
	err := e.gateway.UpdateIf(ctx, ref, docstore.Where(FieldStatus, StatusPending), docstore.Fields{
		FieldStatus:    StatusScanning,
		FieldUpdatedAt: docstore.ServerTimestamp,
	})
	cancel()
	switch {
	case errors.Is(err, docstore.ErrConditionFailed), errors.Is(err, docstore.ErrNotFound):
		e.logger.Debug("scan session already claimed", "session", ref.ID)
		return
	case err != nil:
		e.logger.Error("claiming scan session failed", "session", ref.ID, "error", err)
		return
	}

	e.logger.Info("scan session claimed", "session", ref.ID)
	e.notice(notify.Info, notify.ScanRequestReceived)
	e.acquire(&request{source: SourceDevice, ref: ref})
}
