package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/edupulse/lsexport/internal/record"
)

// timestampFields are converted from ISO strings to time.Time before upsert
// so Mongo stores them as Date values rather than strings.
var timestampFields = []string{
	"mongo_updated_at",
	"mongo_created_at",
	"first_msg_time",
	"last_msg_time",
	"start_time",
	"end_time",
}

// MongoStats counts the outcome of one upload.
type MongoStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Errors   int `json:"errors"`
}

// MongoUploader upserts conversations into a collection keyed by thread_id,
// replacing any prior document for the same thread whole-document.
type MongoUploader struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoUploader connects, pings, and ensures the unique thread_id index.
func NewMongoUploader(ctx context.Context, uri, database, collection string, logger *slog.Logger) (*MongoUploader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	unique := true
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "thread_id", Value: 1}},
		Options: &options.IndexOptions{Unique: &unique},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create thread_id index: %w", err)
	}

	logger.Info("connected to MongoDB", "database", database, "collection", collection)
	return &MongoUploader{client: client, collection: coll, logger: logger}, nil
}

// Upload upserts each run by thread_id. Runs without a thread_id cannot carry
// a natural key and are counted as errors; individual upsert failures never
// abort the batch.
func (u *MongoUploader) Upload(ctx context.Context, runs []record.Run) MongoStats {
	stats := MongoStats{}
	now := time.Now().UTC()
	upsert := true

	for _, run := range runs {
		threadID := run.ThreadID()
		if threadID == "" {
			u.logger.Warn("skipping run without thread_id")
			stats.Errors++
			continue
		}

		doc := prepareDocument(run, now)
		res, err := u.collection.ReplaceOne(ctx,
			bson.M{"thread_id": threadID},
			doc,
			&options.ReplaceOptions{Upsert: &upsert},
		)
		if err != nil {
			u.logger.Error("failed to upsert conversation", "thread_id", threadID, "error", err)
			stats.Errors++
			continue
		}

		if res.UpsertedCount > 0 {
			stats.Inserted++
			u.logger.Debug("inserted conversation", "thread_id", threadID)
		} else {
			stats.Updated++
			u.logger.Debug("updated conversation", "thread_id", threadID)
		}
	}

	u.logger.Info("mongo upload finished",
		"processed", stats.Inserted+stats.Updated+stats.Errors,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"errors", stats.Errors,
	)
	if stats.Errors > 0 {
		u.logger.Warn("some conversations failed to upload", "errors", stats.Errors)
	}
	return stats
}

// prepareDocument copies the run and converts known timestamp fields to
// time.Time. The run itself is never mutated.
func prepareDocument(run record.Run, now time.Time) bson.M {
	doc := bson.M(run.Clone())
	doc["mongo_updated_at"] = now
	if _, ok := doc["mongo_created_at"]; !ok {
		doc["mongo_created_at"] = now
	}

	for _, field := range timestampFields {
		s, ok := doc[field].(string)
		if !ok {
			continue
		}
		if ts, valid := record.ParseTimestamp(s); valid {
			doc[field] = ts
		}
	}

	return doc
}

// Close disconnects from MongoDB.
func (u *MongoUploader) Close(ctx context.Context) error {
	return u.client.Disconnect(ctx)
}
