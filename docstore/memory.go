// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/ysk-pos/scanner/lib/clock"
)

// Memory is an in-process Gateway. Snapshots are delivered
// synchronously: by the time a write returns, every subscriber has
// been called with the resulting change. Deliveries are serialized
// across all subscriptions in commit order.
//
// Callbacks must not write to the same Memory or wait on a goroutine
// that does; hand the work off instead (the scan engine posts every
// delivery to its event loop).
type Memory struct {
	clock clock.Clock

	mu          sync.Mutex
	collections map[string]map[string]Fields
	subscribers []*memorySubscriber
	outbox      []memoryDelivery
	closed      bool

	// deliverMu is held by whichever goroutine is draining outbox.
	deliverMu sync.Mutex
}

type memorySubscriber struct {
	query *Query
	ref   *Ref

	// matched tracks which document ids were in the previous query
	// result. Unused for document subscriptions.
	matched map[string]bool

	onQuery    func(QuerySnapshot)
	onDocument func(Document)

	cancelled bool // guarded by Memory.mu
}

type memoryDelivery struct {
	subscriber *memorySubscriber
	query      QuerySnapshot
	document   Document
}

// NewMemory returns an empty store. ServerTimestamp fields are filled
// from c.
func NewMemory(c clock.Clock) *Memory {
	return &Memory{
		clock:       c,
		collections: make(map[string]map[string]Fields),
	}
}

// Get implements Gateway.
func (m *Memory) Get(_ context.Context, ref Ref) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Document{}, ErrClosed
	}
	return m.documentLocked(ref), nil
}

// Query implements Gateway. Results are ordered by document id.
func (m *Memory) Query(_ context.Context, q Query) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.queryLocked(q), nil
}

// Set implements Gateway.
func (m *Memory) Set(_ context.Context, ref Ref, fields Fields) error {
	return m.write(ref, func(current Fields, exists bool) (Fields, error) {
		return m.merge(current, fields), nil
	})
}

// UpdateIf implements Gateway.
func (m *Memory) UpdateIf(_ context.Context, ref Ref, condition Filter, fields Fields) error {
	return m.write(ref, func(current Fields, exists bool) (Fields, error) {
		if !exists {
			return nil, ErrNotFound
		}
		if !condition.Matches(current) {
			return nil, ErrConditionFailed
		}
		return m.merge(current, fields), nil
	})
}

// Delete removes a document. Subscribers see it leave their results.
// Not part of Gateway; external writers in tests and the request
// command use it.
func (m *Memory) Delete(_ context.Context, ref Ref) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if collection := m.collections[ref.Collection]; collection != nil {
		delete(collection, ref.ID)
	}
	m.notifyLocked(ref)
	m.mu.Unlock()
	m.drain()
	return nil
}

// SubscribeQuery implements Gateway. The initial snapshot is
// delivered before SubscribeQuery returns. onError is never called.
func (m *Memory) SubscribeQuery(_ context.Context, q Query, onSnapshot func(QuerySnapshot), _ func(error)) (Subscription, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	query := q
	subscriber := &memorySubscriber{
		query:   &query,
		matched: make(map[string]bool),
		onQuery: onSnapshot,
	}
	m.subscribers = append(m.subscribers, subscriber)

	documents := m.queryLocked(q)
	snapshot := QuerySnapshot{Documents: documents}
	for _, document := range documents {
		subscriber.matched[document.Ref.ID] = true
		snapshot.Changes = append(snapshot.Changes, Change{Type: Added, Document: document})
	}
	m.outbox = append(m.outbox, memoryDelivery{subscriber: subscriber, query: snapshot})
	m.mu.Unlock()
	m.drain()
	return &memorySubscription{memory: m, subscriber: subscriber}, nil
}

// SubscribeDocument implements Gateway. The initial snapshot is
// delivered before SubscribeDocument returns.
func (m *Memory) SubscribeDocument(_ context.Context, ref Ref, onSnapshot func(Document), _ func(error)) (Subscription, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	target := ref
	subscriber := &memorySubscriber{ref: &target, onDocument: onSnapshot}
	m.subscribers = append(m.subscribers, subscriber)
	m.outbox = append(m.outbox, memoryDelivery{subscriber: subscriber, document: m.documentLocked(ref)})
	m.mu.Unlock()
	m.drain()
	return &memorySubscription{memory: m, subscriber: subscriber}, nil
}

// Close implements Gateway.
func (m *Memory) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, subscriber := range m.subscribers {
		subscriber.cancelled = true
	}
	m.subscribers = nil
	m.outbox = nil
	return nil
}

func (m *Memory) write(ref Ref, mutate func(current Fields, exists bool) (Fields, error)) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	collection := m.collections[ref.Collection]
	if collection == nil {
		collection = make(map[string]Fields)
		m.collections[ref.Collection] = collection
	}
	current, exists := collection[ref.ID]
	next, err := mutate(current, exists)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	collection[ref.ID] = next
	m.notifyLocked(ref)
	m.mu.Unlock()
	m.drain()
	return nil
}

func (m *Memory) merge(current Fields, update Fields) Fields {
	merged := make(Fields, len(current)+len(update))
	for key, value := range current {
		merged[key] = value
	}
	now := m.clock.Now()
	for key, value := range update {
		if IsServerTimestamp(value) {
			value = now
		}
		merged[key] = value
	}
	return merged
}

// notifyLocked queues deliveries for every subscriber affected by a
// write to ref.
func (m *Memory) notifyLocked(ref Ref) {
	document := m.documentLocked(ref)
	for _, subscriber := range m.subscribers {
		if subscriber.cancelled {
			continue
		}
		if subscriber.ref != nil {
			if *subscriber.ref == ref {
				m.outbox = append(m.outbox, memoryDelivery{subscriber: subscriber, document: document})
			}
			continue
		}
		if subscriber.query.Collection != ref.Collection {
			continue
		}
		wasMatched := subscriber.matched[ref.ID]
		nowMatches := document.Exists && subscriber.query.Matches(document.Fields)
		var change Change
		switch {
		case nowMatches && wasMatched:
			change = Change{Type: Modified, Document: document}
		case nowMatches:
			change = Change{Type: Added, Document: document}
			subscriber.matched[ref.ID] = true
		case wasMatched:
			change = Change{Type: Removed, Document: document}
			delete(subscriber.matched, ref.ID)
		default:
			continue
		}
		m.outbox = append(m.outbox, memoryDelivery{
			subscriber: subscriber,
			query: QuerySnapshot{
				Documents: m.queryLocked(*subscriber.query),
				Changes:   []Change{change},
			},
		})
	}
}

// drain delivers queued snapshots in commit order. A writer that
// finds another goroutine draining waits for it, so a write never
// returns before its own deliveries have been made.
func (m *Memory) drain() {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()
	for {
		m.mu.Lock()
		if len(m.outbox) == 0 {
			m.mu.Unlock()
			return
		}
		delivery := m.outbox[0]
		m.outbox = m.outbox[1:]
		cancelled := delivery.subscriber.cancelled
		m.mu.Unlock()

		if cancelled {
			continue
		}
		if delivery.subscriber.onQuery != nil {
			delivery.subscriber.onQuery(delivery.query)
		} else {
			delivery.subscriber.onDocument(delivery.document)
		}
	}
}

func (m *Memory) documentLocked(ref Ref) Document {
	fields, ok := m.collections[ref.Collection][ref.ID]
	if !ok {
		return Document{Ref: ref}
	}
	return Document{Ref: ref, Exists: true, Fields: fields.Clone()}
}

func (m *Memory) queryLocked(q Query) []Document {
	var documents []Document
	for id, fields := range m.collections[q.Collection] {
		if q.Matches(fields) {
			documents = append(documents, Document{
				Ref:    Ref{Collection: q.Collection, ID: id},
				Exists: true,
				Fields: fields.Clone(),
			})
		}
	}
	sort.Slice(documents, func(i, j int) bool {
		return documents[i].Ref.ID < documents[j].Ref.ID
	})
	return documents
}

type memorySubscription struct {
	memory     *Memory
	subscriber *memorySubscriber
}

func (s *memorySubscription) Unsubscribe() {
	s.memory.mu.Lock()
	defer s.memory.mu.Unlock()
	s.subscriber.cancelled = true
	for i, subscriber := range s.memory.subscribers {
		if subscriber == s.subscriber {
			s.memory.subscribers = append(s.memory.subscribers[:i], s.memory.subscribers[i+1:]...)
			break
		}
	}
}
