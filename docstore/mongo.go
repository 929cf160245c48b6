// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ysk-pos/scanner/lib/clock"
)

// MongoConfig holds the parameters for connecting a Mongo gateway.
type MongoConfig struct {
	// URI is the MongoDB connection string. Subscriptions need change
	// streams, so the deployment must be a replica set or sharded
	// cluster.
	URI string

	// Database holds every collection the agent reads and writes.
	Database string

	// Clock paces stream reconnects. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives stream errors and reconnects. Required.
	Logger *slog.Logger
}

// resubscribeDelay is the pause between a failed change stream and
// the attempt to reopen it.
const resubscribeDelay = 2 * time.Second

// Mongo is a Gateway backed by MongoDB. Document ids are stored in
// _id as strings; documents created by other writers with ObjectID
// keys are addressed by their hex form.
type Mongo struct {
	client   *mongo.Client
	database *mongo.Database
	clock    clock.Clock
	logger   *slog.Logger
}

// ConnectMongo dials and pings the server.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("docstore: mongo URI is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("docstore: mongo database is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("docstore: Logger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(5).
		SetMinPoolSize(1).
		SetMaxConnecting(2).
		SetRetryReads(true).
		SetRetryWrites(true).
		SetTimeout(10 * time.Second)

	connectContext, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectContext, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("docstore: connecting to mongo: %w", err)
	}
	if err := client.Ping(connectContext, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("docstore: pinging mongo: %w", err)
	}

	cfg.Logger.Info("document store connected", "backend", "mongo", "database", cfg.Database)
	return &Mongo{
		client:   client,
		database: client.Database(cfg.Database),
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}, nil
}

// Get implements Gateway.
func (m *Mongo) Get(ctx context.Context, ref Ref) (Document, error) {
	var raw bson.M
	err := m.database.Collection(ref.Collection).FindOne(ctx, idFilter(ref.ID)).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Document{Ref: ref}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("docstore: get %s: %w", ref, err)
	}
	return fromBSON(ref.Collection, raw), nil
}

// Query implements Gateway.
func (m *Mongo) Query(ctx context.Context, q Query) ([]Document, error) {
	cursor, err := m.database.Collection(q.Collection).Find(ctx, queryFilter(q))
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", q.Collection, err)
	}
	defer cursor.Close(ctx)

	var documents []Document
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("docstore: decoding %s document: %w", q.Collection, err)
		}
		documents = append(documents, fromBSON(q.Collection, raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", q.Collection, err)
	}
	return documents, nil
}

// Set implements Gateway as an upserting $set.
func (m *Mongo) Set(ctx context.Context, ref Ref, fields Fields) error {
	collection := m.database.Collection(ref.Collection)
	update := updateDocument(fields)
	if _, err := primitive.ObjectIDFromHex(ref.ID); err == nil {
		// An existing ObjectID-keyed document is updated in place
		// rather than shadowed by a new string-keyed one.
		result, err := collection.UpdateOne(ctx, idFilter(ref.ID), update)
		if err != nil {
			return fmt.Errorf("docstore: set %s: %w", ref, err)
		}
		if result.MatchedCount > 0 {
			return nil
		}
	}
	_, err := collection.UpdateOne(ctx, bson.M{"_id": ref.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("docstore: set %s: %w", ref, err)
	}
	return nil
}

// UpdateIf implements Gateway with a filtered UpdateOne: the server
// applies the condition and the write atomically.
func (m *Mongo) UpdateIf(ctx context.Context, ref Ref, condition Filter, fields Fields) error {
	collection := m.database.Collection(ref.Collection)
	filter := idFilter(ref.ID)
	filter[condition.Field] = condition.Value

	result, err := collection.UpdateOne(ctx, filter, updateDocument(fields))
	if err != nil {
		return fmt.Errorf("docstore: conditional update %s: %w", ref, err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	count, err := collection.CountDocuments(ctx, idFilter(ref.ID), options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("docstore: conditional update %s: %w", ref, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrConditionFailed
}

// SubscribeQuery implements Gateway on a change stream. The stream is
// opened before the initial read so no write between the two is lost;
// a write seen by both is reported once as Modified.
func (m *Mongo) SubscribeQuery(ctx context.Context, q Query, onSnapshot func(QuerySnapshot), onError func(error)) (Subscription, error) {
	subscriptionContext, cancel := context.WithCancel(ctx)
	subscription := &mongoSubscription{cancel: cancel}

	stream, err := m.openStream(subscriptionContext, q.Collection, nil, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	initial, err := m.Query(subscriptionContext, q)
	if err != nil {
		stream.Close(context.Background())
		cancel()
		return nil, err
	}

	state := &queryState{query: q, current: make(map[string]Document)}
	snapshot := QuerySnapshot{}
	for _, document := range initial {
		state.current[document.Ref.ID] = document
		snapshot.Changes = append(snapshot.Changes, Change{Type: Added, Document: document})
	}
	snapshot.Documents = state.documents()
	onSnapshot(snapshot)

	subscription.wg.Add(1)
	go func() {
		defer subscription.wg.Done()
		m.follow(subscriptionContext, stream, q.Collection, nil, onError, func(event changeEvent) {
			if change, ok := state.apply(q.Collection, event); ok {
				onSnapshot(QuerySnapshot{Documents: state.documents(), Changes: []Change{change}})
			}
		})
	}()
	return subscription, nil
}

// SubscribeDocument implements Gateway on a change stream filtered to
// one document key.
func (m *Mongo) SubscribeDocument(ctx context.Context, ref Ref, onSnapshot func(Document), onError func(error)) (Subscription, error) {
	subscriptionContext, cancel := context.WithCancel(ctx)
	subscription := &mongoSubscription{cancel: cancel}

	match := bson.D{{Key: "$match", Value: bson.M{"documentKey._id": idFilter(ref.ID)["_id"]}}}
	pipeline := mongo.Pipeline{match}
	stream, err := m.openStream(subscriptionContext, ref.Collection, pipeline, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	initial, err := m.Get(subscriptionContext, ref)
	if err != nil {
		stream.Close(context.Background())
		cancel()
		return nil, err
	}
	onSnapshot(initial)

	subscription.wg.Add(1)
	go func() {
		defer subscription.wg.Done()
		m.follow(subscriptionContext, stream, ref.Collection, pipeline, onError, func(event changeEvent) {
			if event.OperationType == "delete" || event.FullDocument == nil {
				onSnapshot(Document{Ref: ref})
				return
			}
			onSnapshot(fromBSON(ref.Collection, event.FullDocument))
		})
	}()
	return subscription, nil
}

// Close implements Gateway.
func (m *Mongo) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("docstore: disconnecting mongo: %w", err)
	}
	return nil
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   bson.M `bson:"documentKey"`
	FullDocument  bson.M `bson:"fullDocument"`
}

func (m *Mongo) openStream(ctx context.Context, collection string, pipeline mongo.Pipeline, resumeToken bson.Raw) (*mongo.ChangeStream, error) {
	if pipeline == nil {
		pipeline = mongo.Pipeline{}
	}
	streamOptions := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if resumeToken != nil {
		streamOptions.SetResumeAfter(resumeToken)
	}
	stream, err := m.database.Collection(collection).Watch(ctx, pipeline, streamOptions)
	if err != nil {
		return nil, fmt.Errorf("docstore: watching %s: %w", collection, err)
	}
	return stream, nil
}

// follow consumes a change stream until ctx ends, reopening it from
// the last resume token after failures.
func (m *Mongo) follow(ctx context.Context, stream *mongo.ChangeStream, collection string, pipeline mongo.Pipeline, onError func(error), handle func(changeEvent)) {
	for {
		for stream.Next(ctx) {
			var event changeEvent
			if err := stream.Decode(&event); err != nil {
				m.logger.Warn("undecodable change event", "collection", collection, "error", err)
				continue
			}
			handle(event)
		}
		resumeToken := stream.ResumeToken()
		streamErr := stream.Err()
		stream.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		if streamErr == nil {
			streamErr = fmt.Errorf("docstore: change stream on %s ended", collection)
		}
		m.logger.Warn("change stream failed, reopening",
			"collection", collection,
			"error", streamErr,
		)
		if onError != nil {
			onError(streamErr)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.clock.After(resubscribeDelay):
			}
			reopened, err := m.openStream(ctx, collection, pipeline, resumeToken)
			if err == nil {
				stream = reopened
				break
			}
			m.logger.Warn("reopening change stream", "collection", collection, "error", err)
			if onError != nil {
				onError(err)
			}
		}
	}
}

type mongoSubscription struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (s *mongoSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

// queryState tracks the current result set of a query subscription so
// change events can be classified. Only the stream goroutine touches
// it after the initial snapshot.
type queryState struct {
	query   Query
	current map[string]Document
}

func (s *queryState) apply(collection string, event changeEvent) (Change, bool) {
	id := idString(event.DocumentKey["_id"])
	previous, wasMatched := s.current[id]

	var document Document
	if event.OperationType != "delete" && event.FullDocument != nil {
		document = fromBSON(collection, event.FullDocument)
	} else {
		document = Document{Ref: Ref{Collection: collection, ID: id}}
	}
	nowMatches := document.Exists && s.query.Matches(document.Fields)

	switch {
	case nowMatches && wasMatched:
		s.current[id] = document
		return Change{Type: Modified, Document: document}, true
	case nowMatches:
		s.current[id] = document
		return Change{Type: Added, Document: document}, true
	case wasMatched:
		delete(s.current, id)
		if !document.Exists {
			document = previous
			document.Exists = false
		}
		return Change{Type: Removed, Document: document}, true
	}
	return Change{}, false
}

func (s *queryState) documents() []Document {
	documents := make([]Document, 0, len(s.current))
	for _, document := range s.current {
		documents = append(documents, document)
	}
	return documents
}

// idFilter matches a string id, or the ObjectID it encodes.
func idFilter(id string) bson.M {
	if objectID, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{id, objectID}}}
	}
	return bson.M{"_id": id}
}

func queryFilter(q Query) bson.M {
	filter := bson.M{}
	for _, condition := range q.Filters {
		filter[condition.Field] = condition.Value
	}
	return filter
}

// updateDocument splits fields into $set and $currentDate.
func updateDocument(fields Fields) bson.M {
	set := bson.M{}
	currentDate := bson.M{}
	for key, value := range fields {
		if IsServerTimestamp(value) {
			currentDate[key] = true
			continue
		}
		set[key] = value
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(currentDate) > 0 {
		update["$currentDate"] = currentDate
	}
	return update
}

func fromBSON(collection string, raw bson.M) Document {
	fields := make(Fields, len(raw))
	for key, value := range raw {
		if key == "_id" {
			continue
		}
		fields[key] = normalizeValue(value)
	}
	return Document{
		Ref:    Ref{Collection: collection, ID: idString(raw["_id"])},
		Exists: true,
		Fields: fields,
	}
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case primitive.DateTime:
		return typed.Time()
	case primitive.Timestamp:
		return time.Unix(int64(typed.T), 0)
	case primitive.ObjectID:
		return typed.Hex()
	case int32:
		return int64(typed)
	}
	return value
}

func idString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case primitive.ObjectID:
		return typed.Hex()
	case nil:
		return ""
	}
	return fmt.Sprint(value)
}
