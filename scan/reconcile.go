// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"sort"
	"time"

	"github.com/ysk-pos/scanner/docstore"
	"github.com/ysk-pos/scanner/lib/notify"
)

// reconcile serves requests that were already waiting when the
// listeners attached, which the listeners themselves skip. Fresh
// requests are served as if just delivered; stale ones are expired and
// never open the camera. A live fixed request wins over device
// sessions: stale device sessions are still expired, but none is
// served. Of several live device sessions the oldest is served and the
// rest stay pending.
func (e *Engine) reconcile() {
	if e.stopped {
		return
	}
	now := e.clock.Now()
	fixedLive := e.reconcileFixed(now)

	ctx, cancel := e.storeContext()
	documents, err := e.gateway.Query(ctx, PendingQuery(e.deviceID))
	cancel()
	if err != nil {
		e.logger.Error("reading pending scan sessions failed", "error", err)
		return
	}

	var live []docstore.Document
	for _, document := range documents {
		if document.Fields.String(FieldType) != TypeScanBarcode {
			continue
		}
		if e.fresh(document.Fields, FieldCreatedAt, now) {
			live = append(live, document)
			continue
		}
		e.logger.Info("stale scan session found", "session", document.Ref.ID)
		e.expire(document.Ref, StatusPending)
	}

	if fixedLive || len(live) == 0 {
		return
	}
	sort.SliceStable(live, func(i, j int) bool {
		left, _ := live[i].Fields.Time(FieldCreatedAt)
		right, _ := live[j].Fields.Time(FieldCreatedAt)
		return left.Before(right)
	})
	e.notice(notify.Info, notify.PendingScanFound)
	e.serveDevice(live[0].Ref)
}

// reconcileFixed handles the fixed session and reports whether it
// holds a live request.
func (e *Engine) reconcileFixed(now time.Time) bool {
	ctx, cancel := e.storeContext()
	document, err := e.gateway.Get(ctx, FixedRef())
	cancel()
	if err != nil {
		e.logger.Error("reading fixed scan session failed", "error", err)
		return false
	}
	if !document.Exists || document.Fields.String(FieldStatus) != StatusScanRequested {
		return false
	}
	if !e.fresh(document.Fields, FieldRequestedAt, now) {
		e.logger.Info("stale fixed scan request found")
		e.expire(FixedRef(), StatusScanRequested)
		return false
	}
	if !e.processing {
		e.notice(notify.Info, notify.PendingScanFound)
		e.serveFixed()
	}
	return true
}

// fresh reports whether the timestamp in field is within the freshness
// window of now. A missing or unreadable timestamp is stale.
func (e *Engine) fresh(fields docstore.Fields, field string, now time.Time) bool {
	at, ok := fields.Time(field)
	if !ok {
		return false
	}
	return now.Sub(at) < e.freshness
}
