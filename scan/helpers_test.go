// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ysk-pos/scanner/docstore"
	"github.com/ysk-pos/scanner/lib/clock"
	"github.com/ysk-pos/scanner/lib/notify"
	"github.com/ysk-pos/scanner/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCamera records every start, stop and clear. Tests drive decoding
// by calling decode, which feeds the most recent stream.
type fakeCamera struct {
	mu         sync.Mutex
	requests   []CaptureRequest
	streams    []*fakeStream
	events     []string
	running    int
	maxRunning int

	// startErr fails the next Start.
	startErr error
	// decodeOnStart, when set, is decoded from inside Start.
	decodeOnStart string
	// endOnStart, when set, ends the stream from inside Start.
	endOnStart error

	started chan struct{}
}

func newFakeCamera() *fakeCamera {
	return &fakeCamera{started: make(chan struct{}, 64)}
}

func (c *fakeCamera) Start(_ context.Context, request CaptureRequest, handlers FrameHandlers) (Stream, error) {
	c.mu.Lock()
	if c.startErr != nil {
		err := c.startErr
		c.startErr = nil
		c.events = append(c.events, "start failed")
		c.mu.Unlock()
		return nil, err
	}
	stream := &fakeStream{camera: c, index: len(c.streams) + 1, handlers: handlers}
	c.requests = append(c.requests, request)
	c.streams = append(c.streams, stream)
	c.events = append(c.events, fmt.Sprintf("start %d", stream.index))
	c.running++
	c.maxRunning = max(c.maxRunning, c.running)
	decodeOnStart := c.decodeOnStart
	endOnStart := c.endOnStart
	c.mu.Unlock()

	if decodeOnStart != "" {
		handlers.OnDecoded(decodeOnStart)
	}
	if endOnStart != nil {
		handlers.OnEnded(endOnStart)
	}
	c.started <- struct{}{}
	return stream, nil
}

func (c *fakeCamera) opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

func (c *fakeCamera) log() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func (c *fakeCamera) stream(index int) *fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams[index-1]
}

func (c *fakeCamera) last() *fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams[len(c.streams)-1]
}

// decode delivers value from the most recent stream.
func (c *fakeCamera) decode(value string) {
	c.last().handlers.OnDecoded(value)
}

// end stops the most recent stream as a device that went away would.
func (c *fakeCamera) end(err error) {
	c.last().handlers.OnEnded(err)
}

type fakeStream struct {
	camera   *fakeCamera
	index    int
	handlers FrameHandlers

	stops   int
	clears  int
	stopErr error
}

func (s *fakeStream) Stop() error {
	c := s.camera
	c.mu.Lock()
	defer c.mu.Unlock()
	s.stops++
	if s.stops == 1 {
		c.running--
	}
	c.events = append(c.events, fmt.Sprintf("stop %d", s.index))
	return s.stopErr
}

func (s *fakeStream) Clear() error {
	c := s.camera
	c.mu.Lock()
	defer c.mu.Unlock()
	s.clears++
	c.events = append(c.events, fmt.Sprintf("clear %d", s.index))
	return nil
}

func (s *fakeStream) released() bool {
	s.camera.mu.Lock()
	defer s.camera.mu.Unlock()
	return s.stops == 1 && s.clears == 1
}

// faultyGateway fails Set calls while setErr is non-nil.
type faultyGateway struct {
	docstore.Gateway

	mu     sync.Mutex
	setErr error
}

func (g *faultyGateway) failSets(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setErr = err
}

func (g *faultyGateway) Set(ctx context.Context, ref docstore.Ref, fields docstore.Fields) error {
	g.mu.Lock()
	err := g.setErr
	g.mu.Unlock()
	if err != nil {
		return err
	}
	return g.Gateway.Set(ctx, ref, fields)
}

type harness struct {
	t       *testing.T
	clock   *clock.FakeClock
	store   *docstore.Memory
	gateway *faultyGateway
	camera  *fakeCamera
	scanner *Scanner
	notices *notify.Recorder
	engine  *Engine
	running bool
}

// newHarness builds an engine for device dev_abc over an in-memory
// store. Automatic reconciliation is pushed an hour out; tests that
// want it call reconcile.
func newHarness(t *testing.T, configure ...func(*Config)) *harness {
	t.Helper()
	fake := clock.Fake(epoch)
	store := docstore.NewMemory(fake)
	gateway := &faultyGateway{Gateway: store}
	camera := newFakeCamera()
	scanner := NewScanner(camera, Viewport{Width: 1080, Height: 1920}, discardLogger())
	notices := &notify.Recorder{}

	config := Config{
		Gateway:        gateway,
		Scanner:        scanner,
		Notifier:       notices,
		Clock:          fake,
		Logger:         discardLogger(),
		DeviceID:       "dev_abc",
		ReconcileDelay: time.Hour,
	}
	for _, apply := range configure {
		apply(&config)
	}
	engine, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{
		t:       t,
		clock:   fake,
		store:   store,
		gateway: gateway,
		camera:  camera,
		scanner: scanner,
		notices: notices,
		engine:  engine,
	}
}

// run starts the engine and waits for both listeners to attach. The
// returned channel receives Run's result.
func (h *harness) run(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()
	h.running = true
	h.sync()
	return done
}

// start runs the engine until the test ends.
func (h *harness) start() {
	h.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := h.run(ctx)
	h.t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(h.t, done, 5*time.Second, "engine did not stop"); err != nil {
			h.t.Errorf("Run: %v", err)
		}
	})
}

func (h *harness) sync() {
	h.engine.sync()
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.sync()
}

func (h *harness) reconcile() {
	h.engine.Reconcile()
	h.sync()
}

// set writes as an external system would, then lets a running engine
// react.
func (h *harness) set(id string, fields docstore.Fields) {
	h.t.Helper()
	if err := h.store.Set(context.Background(), SessionRef(id), fields); err != nil {
		h.t.Fatalf("Set %s: %v", id, err)
	}
	if h.running {
		h.sync()
	}
}

func (h *harness) fields(id string) docstore.Fields {
	h.t.Helper()
	document, err := h.store.Get(context.Background(), SessionRef(id))
	if err != nil {
		h.t.Fatalf("Get %s: %v", id, err)
	}
	if !document.Exists {
		h.t.Fatalf("session %s does not exist", id)
	}
	return document.Fields
}

func (h *harness) requireStatus(id, want string) {
	h.t.Helper()
	if got := h.fields(id).String(FieldStatus); got != want {
		h.t.Fatalf("session %s status = %q, want %q", id, got, want)
	}
}

func (h *harness) requireOpens(want int) {
	h.t.Helper()
	if got := h.camera.opens(); got != want {
		h.t.Fatalf("camera opened %d times, want %d (events %v)", got, want, h.camera.log())
	}
}

// pendingSession is a per-device request created at createdAt.
func pendingSession(deviceID string, createdAt time.Time) docstore.Fields {
	return docstore.Fields{
		FieldDeviceID:  deviceID,
		FieldType:      TypeScanBarcode,
		FieldStatus:    StatusPending,
		FieldCreatedAt: createdAt,
	}
}

func (q *eventQueue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events) == 0
}

// sync blocks until the loop has run every event posted before the
// call and every event those posted in turn.
func (e *Engine) sync() {
	for {
		idle := make(chan bool, 1)
		e.post(func() { idle <- e.queue.empty() })
		if <-idle {
			return
		}
	}
}
