// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// Gateway is a client to a remote document database. Implementations
// are safe for concurrent use.
type Gateway interface {
	// Get reads one document. A missing document is not an error: the
	// result has Exists == false.
	Get(ctx context.Context, ref Ref) (Document, error)

	// Query returns every document in q.Collection matching all of
	// q.Filters.
	Query(ctx context.Context, q Query) ([]Document, error)

	// Set merges fields into the document, creating it if needed.
	// Fields not named are left untouched.
	Set(ctx context.Context, ref Ref, fields Fields) error

	// UpdateIf merges fields into an existing document only if
	// condition holds at write time. The check and the write are one
	// atomic step. Returns ErrNotFound or ErrConditionFailed.
	UpdateIf(ctx context.Context, ref Ref, condition Filter, fields Fields) error

	// SubscribeQuery delivers snapshots of q until the subscription is
	// cancelled or ctx ends. onError receives stream failures; the
	// subscription stays registered and the backend resumes when it
	// can.
	SubscribeQuery(ctx context.Context, q Query, onSnapshot func(QuerySnapshot), onError func(error)) (Subscription, error)

	// SubscribeDocument delivers the document's state on every write.
	SubscribeDocument(ctx context.Context, ref Ref, onSnapshot func(Document), onError func(error)) (Subscription, error)

	// Close releases the connection. Live subscriptions stop.
	Close(ctx context.Context) error
}

// Subscription is a live listener registration.
type Subscription interface {
	// Unsubscribe stops deliveries. After it returns no further
	// callback starts. Safe to call more than once.
	Unsubscribe()
}

// Ref addresses one document.
type Ref struct {
	Collection string
	ID         string
}

func (r Ref) String() string { return r.Collection + "/" + r.ID }

// Fields is a document body.
type Fields map[string]any

// Document is a document as read from the store.
type Document struct {
	Ref    Ref
	Exists bool
	Fields Fields
}

// Filter is an equality condition on one top-level field.
type Filter struct {
	Field string
	Value any
}

// Where is shorthand for Filter{field, value}.
func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Query selects documents in one collection by equality filters.
type Query struct {
	Collection string
	Filters    []Filter
}

// Matches reports whether fields satisfy every filter of q.
func (q Query) Matches(fields Fields) bool {
	for _, filter := range q.Filters {
		if !filter.Matches(fields) {
			return false
		}
	}
	return true
}

// Matches reports whether fields hold the filter's value.
func (f Filter) Matches(fields Fields) bool {
	value, ok := fields[f.Field]
	if !ok {
		return f.Value == nil
	}
	return reflect.DeepEqual(value, f.Value)
}

// ChangeType classifies a document change within a query snapshot.
type ChangeType int

const (
	// Added means the document entered the query result.
	Added ChangeType = iota + 1
	// Modified means the document stayed in the result and changed.
	Modified
	// Removed means the document left the result (deleted or no
	// longer matching).
	Removed
)

func (c ChangeType) String() string {
	switch c {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(c))
	}
}

// Change is one entry of a query snapshot's change list.
type Change struct {
	Type     ChangeType
	Document Document
}

// QuerySnapshot is one delivery of a query subscription: the full
// current result and the changes since the previous delivery.
type QuerySnapshot struct {
	Documents []Document
	Changes   []Change
}

type serverTimestamp struct{}

// ServerTimestamp is a field value placeholder replaced by the
// backend's current time when written.
var ServerTimestamp any = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp
// placeholder.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// String returns the field as a string, or "" when absent or not a
// string.
func (f Fields) String(key string) string {
	value, _ := f[key].(string)
	return value
}

// Float returns a numeric field as float64.
func (f Fields) Float(key string) (float64, bool) {
	switch value := f[key].(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int32:
		return float64(value), true
	case int64:
		return float64(value), true
	case string:
		parsed, err := strconv.ParseFloat(value, 64)
		return parsed, err == nil
	}
	return 0, false
}

// Time returns a timestamp field. Accepted encodings are time.Time,
// Unix milliseconds (int64/float64) and RFC 3339 strings. The boolean
// is false when the field is absent or unparseable.
func (f Fields) Time(key string) (time.Time, bool) {
	switch value := f[key].(type) {
	case time.Time:
		return value, !value.IsZero()
	case int64:
		return time.UnixMilli(value), value > 0
	case int:
		return time.UnixMilli(int64(value)), value > 0
	case float64:
		return time.UnixMilli(int64(value)), value > 0
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, value)
		return parsed, err == nil
	}
	return time.Time{}, false
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	clone := make(Fields, len(f))
	for key, value := range f {
		clone[key] = value
	}
	return clone
}
