// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"github.com/ysk-pos/scanner/docstore"
	"github.com/ysk-pos/scanner/lib/notify"
)

func (e *Engine) startFixedListener() {
	if e.stopped {
		return
	}
	e.stopListener(&e.fixed)
	generation := e.fixed.generation

	subscription, err := e.gateway.SubscribeDocument(e.ctx, FixedRef(),
		func(document docstore.Document) {
			e.post(func() { e.fixedSnapshot(generation, document) })
		},
		e.subscriptionError(SourceFixed),
	)
	if err != nil {
		e.logger.Error("subscribing to fixed session failed", "error", err)
		return
	}
	e.fixed.subscription = subscription
	e.logger.Info("listening for fixed scan session")
}

func (e *Engine) fixedSnapshot(generation uint64, document docstore.Document) {
	if generation != e.fixed.generation {
		return
	}
	if !e.fixed.primed {
		e.fixed.primed = true
		e.logger.Debug("initial fixed session snapshot skipped", "status", document.Fields.String(FieldStatus))
		return
	}
	if !document.Exists || document.Fields.String(FieldStatus) != StatusScanRequested {
		return
	}
	if e.processing {
		e.logger.Debug("fixed scan request ignored while busy")
		return
	}
	e.serveFixed()
}

// serveFixed opens the scanner for the fixed session. The caller has
// checked processing.
func (e *Engine) serveFixed() {
	e.processing = true
	e.notice(notify.Info, notify.ScanRequestReceived)
	e.acquire(&request{source: SourceFixed, ref: FixedRef()})
}

// startCooldown clears processing after the cool-down. The agent's own
// write of the result produces another delivery of the fixed document;
// it arrives while processing is still set.
func (e *Engine) startCooldown() {
	if e.stopped {
		return
	}
	e.clock.AfterFunc(e.cooldown, func() {
		e.post(func() {
			e.processing = false
		})
	})
}
