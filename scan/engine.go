// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ysk-pos/scanner/docstore"
	"github.com/ysk-pos/scanner/lib/clock"
	"github.com/ysk-pos/scanner/lib/notify"
)

// Defaults for the zero values in Config.
const (
	DefaultFreshness      = 5 * time.Minute
	DefaultCooldown       = 500 * time.Millisecond
	DefaultReconcileDelay = time.Second
	DefaultWriteTimeout   = 10 * time.Second
)

// ErrCancelled is returned by ScanOnce when its scope is closed before
// a value is decoded.
var ErrCancelled = errors.New("scan: cancelled")

// Config holds the engine's collaborators. Gateway, Scanner, Clock,
// Logger and DeviceID are required.
type Config struct {
	Gateway  docstore.Gateway
	Scanner  *Scanner
	Notifier notify.Notifier
	Clock    clock.Clock
	Logger   *slog.Logger

	// DeviceID addresses per-device sessions to this engine.
	DeviceID string

	// Freshness is the age past which a request found by startup
	// reconciliation is expired instead of served.
	Freshness time.Duration

	// Cooldown is how long the fixed protocol stays busy after a
	// request completes.
	Cooldown time.Duration

	// ReconcileDelay is the wait between attaching the listeners and
	// the one-time reconciliation read.
	ReconcileDelay time.Duration

	// WriteTimeout bounds each store call made from the loop.
	WriteTimeout time.Duration
}

// Engine serves scan requests. Every field below queue is owned by the
// loop goroutine started by Run.
type Engine struct {
	gateway   docstore.Gateway
	scanner   *Scanner
	notifier  notify.Notifier
	clock     clock.Clock
	logger    *slog.Logger
	deviceID  string
	freshness time.Duration
	cooldown  time.Duration
	delay     time.Duration
	timeout   time.Duration

	queue *eventQueue

	// ctx is the Run context, set before the first event runs.
	ctx context.Context

	device listener
	fixed  listener

	// processing blocks the fixed protocol from serving a second
	// request until the cool-down after the first one has elapsed.
	processing bool

	reconcileTimer *clock.Timer
	stopped        bool
}

// listener is one live subscription and its first-delivery state.
type listener struct {
	subscription docstore.Subscription
	// generation increments on every (re)subscribe; deliveries tagged
	// with an older generation are dropped.
	generation uint64
	primed     bool
}

// request is one scan being served.
type request struct {
	source Source
	ref    docstore.Ref
	scope  *Scope
	// result receives the outcome of a SourceManual request.
	result chan manualResult
}

type manualResult struct {
	value string
	err   error
}

// New validates config and returns an engine. Call Run to start it.
func New(config Config) (*Engine, error) {
	if config.Gateway == nil {
		return nil, errors.New("scan: Gateway is required")
	}
	if config.Scanner == nil {
		return nil, errors.New("scan: Scanner is required")
	}
	if config.Clock == nil {
		return nil, errors.New("scan: Clock is required")
	}
	if config.Logger == nil {
		return nil, errors.New("scan: Logger is required")
	}
	if config.DeviceID == "" {
		return nil, errors.New("scan: DeviceID is required")
	}
	engine := &Engine{
		gateway:   config.Gateway,
		scanner:   config.Scanner,
		notifier:  config.Notifier,
		clock:     config.Clock,
		logger:    config.Logger.With("device_id", config.DeviceID),
		deviceID:  config.DeviceID,
		freshness: orDefault(config.Freshness, DefaultFreshness),
		cooldown:  orDefault(config.Cooldown, DefaultCooldown),
		delay:     orDefault(config.ReconcileDelay, DefaultReconcileDelay),
		timeout:   orDefault(config.WriteTimeout, DefaultWriteTimeout),
		queue:     newEventQueue(),
	}
	if engine.notifier == nil {
		engine.notifier = notify.NewLogger(config.Logger, "en")
	}
	return engine, nil
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

// Run attaches both listeners, schedules startup reconciliation, and
// processes events until ctx is cancelled. On the way out it cancels
// the subscriptions, closes the scanner, and lets the resulting
// cancellations settle so remote requests end expired rather than
// stuck in scanning.
func (e *Engine) Run(ctx context.Context) error {
	e.ctx = ctx
	e.post(func() {
		e.startDeviceListener()
		e.startFixedListener()
		e.reconcileTimer = e.clock.AfterFunc(e.delay, func() {
			e.post(e.reconcile)
		})
	})

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case <-e.queue.wake:
			e.drain(ctx)
		}
	}
}

// drain runs queued events until the queue is empty or ctx ends.
func (e *Engine) drain(ctx context.Context) {
	for ctx.Err() == nil {
		event := e.queue.next()
		if event == nil {
			return
		}
		event()
	}
}

func (e *Engine) shutdown() {
	e.stopped = true
	if e.reconcileTimer != nil {
		e.reconcileTimer.Stop()
	}
	e.stopListener(&e.device)
	e.stopListener(&e.fixed)
	e.scanner.Close()
	for event := e.queue.next(); event != nil; event = e.queue.next() {
		event()
	}
	e.logger.Info("scan engine stopped")
}

// StartDeviceSessionListener (re)subscribes to this device's pending
// sessions. A previous device subscription is cancelled first.
func (e *Engine) StartDeviceSessionListener() {
	e.post(e.startDeviceListener)
}

// StartFixedSessionListener (re)subscribes to the fixed session.
func (e *Engine) StartFixedSessionListener() {
	e.post(e.startFixedListener)
}

// Reconcile runs startup reconciliation now.
func (e *Engine) Reconcile() {
	e.post(e.reconcile)
}

// Dismiss closes the open scope, if any, as the user would by closing
// the camera view.
func (e *Engine) Dismiss() {
	e.post(e.scanner.Close)
}

// ScanOnce opens the scanner outside any remote session and returns
// the first decoded value. It displaces, and can be displaced by, any
// other scope; a displaced or dismissed ScanOnce returns ErrCancelled.
// Cancelling ctx closes the scope. Run must be running.
func (e *Engine) ScanOnce(ctx context.Context) (string, error) {
	scan := &request{source: SourceManual, result: make(chan manualResult, 1)}
	e.post(func() { e.acquire(scan) })
	select {
	case result := <-scan.result:
		return result.value, result.err
	case <-ctx.Done():
		e.post(func() {
			if scan.scope != nil {
				scan.scope.Close()
			}
		})
		return "", ctx.Err()
	}
}

func (e *Engine) post(event func()) {
	e.queue.post(event)
}

// storeContext bounds one store call. It survives cancellation of the
// Run context so shutdown can still record expired requests.
func (e *Engine) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(e.ctx), e.timeout)
}

func (e *Engine) stopListener(l *listener) {
	if l.subscription != nil {
		l.subscription.Unsubscribe()
		l.subscription = nil
	}
	l.generation++
	l.primed = false
}

func (e *Engine) notice(level notify.Level, key notify.Key, args ...any) {
	e.notifier.Notify(notify.Notice{Level: level, Key: key, Args: args})
}

// acquire opens the scanner for a request. Outcomes come back to the
// loop as completed, cancelled or failed events. On failure the
// request is abandoned. Once the engine has stopped nothing is opened:
// the request ends as if cancelled.
func (e *Engine) acquire(scan *request) {
	if e.stopped {
		e.cancelled(scan)
		return
	}
	scope, err := e.scanner.Open(e.ctx, ScopeHandlers{
		OnDecoded: func(value string) {
			e.post(func() { e.completed(scan, value) })
		},
		OnCancelled: func() {
			e.post(func() { e.cancelled(scan) })
		},
		OnFailed: func(err error) {
			e.post(func() { e.failed(scan, "camera stopped during scan", err) })
		},
	})
	if err != nil {
		e.failed(scan, "opening scanner failed", err)
		return
	}
	scan.scope = scope
	e.logger.Info("scanner open", "source", scan.source.String(), "session", scan.ref.ID)
}

// failed ends a request whose camera could not be opened or stopped
// on its own.
func (e *Engine) failed(scan *request, message string, err error) {
	e.logger.Warn(message,
		"source", scan.source.String(),
		"session", scan.ref.ID,
		"error", err,
	)
	e.notice(notify.Error, notify.CameraUnavailable)
	if scan.source == SourceManual {
		scan.result <- manualResult{err: err}
		return
	}
	e.abandon(scan)
}

func (e *Engine) completed(scan *request, value string) {
	e.logger.Info("barcode decoded", "source", scan.source.String(), "session", scan.ref.ID)
	switch scan.source {
	case SourceManual:
		scan.result <- manualResult{value: value}
	case SourceDevice:
		e.writeResult(scan.ref, docstore.Fields{
			FieldStatus:    StatusDone,
			FieldBarcode:   value,
			FieldUpdatedAt: docstore.ServerTimestamp,
		})
	case SourceFixed:
		e.writeResult(scan.ref, docstore.Fields{
			FieldStatus:       StatusScanned,
			FieldScannedValue: value,
			FieldUpdatedAt:    docstore.ServerTimestamp,
		})
		e.startCooldown()
	}
}

// writeResult records a decoded value. A failed write is reported to
// the user and not retried.
func (e *Engine) writeResult(ref docstore.Ref, fields docstore.Fields) {
	ctx, cancel := e.storeContext()
	defer cancel()
	if err := e.gateway.Set(ctx, ref, fields); err != nil {
		e.logger.Error("writing scan result failed", "session", ref.ID, "error", err)
		e.notice(notify.Error, notify.ScanResultFailed)
		return
	}
	e.notice(notify.Success, notify.ScanSucceeded)
}

func (e *Engine) cancelled(scan *request) {
	e.logger.Info("scan cancelled", "source", scan.source.String(), "session", scan.ref.ID)
	if scan.source == SourceManual {
		scan.result <- manualResult{err: ErrCancelled}
		return
	}
	e.notice(notify.Info, notify.ScanCancelled)
	e.abandon(scan)
}

// abandon ends a remote request that will not be served: it is marked
// expired, provided it is still in the state this engine left it in.
func (e *Engine) abandon(scan *request) {
	switch scan.source {
	case SourceDevice:
		e.expire(scan.ref, StatusScanning)
	case SourceFixed:
		e.expire(scan.ref, StatusScanRequested)
		e.startCooldown()
	}
}

// expire marks ref expired if its status is still from.
func (e *Engine) expire(ref docstore.Ref, from string) {
	ctx, cancel := e.storeContext()
	defer cancel()
	err := e.gateway.UpdateIf(ctx, ref, docstore.Where(FieldStatus, from), docstore.Fields{
		FieldStatus:    StatusExpired,
		FieldUpdatedAt: docstore.ServerTimestamp,
	})
	switch {
	case err == nil:
		e.logger.Info("scan session expired", "session", ref.ID, "from", from)
	case errors.Is(err, docstore.ErrConditionFailed), errors.Is(err, docstore.ErrNotFound):
		e.logger.Debug("scan session moved on before expiry", "session", ref.ID)
	default:
		e.logger.Error("expiring scan session failed", "session", ref.ID, "error", err)
	}
}

func (e *Engine) subscriptionError(source Source) func(error) {
	return func(err error) {
		e.post(func() {
			e.logger.Warn("scan session subscription error", "source", source.String(), "error", err)
		})
	}
}
