// internal/output/mongodb.go
package output

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fetchlab/cataloger/internal/utils"
	"github.com/fetchlab/cataloger/pkg/types"
)

const mongoTimeout = 30 * time.Second

// MongoWriter writes records into a MongoDB collection. A unique index on
// identity_key makes re-inserts no-ops; duplicate-key errors on unordered
// bulk inserts are swallowed.
type MongoWriter struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        utils.Logger
	closed     bool
}

// mongoDocument wraps a record with its dedup key so the unique index has
// a stable field to bind to.
type mongoDocument struct {
	IdentityKey          string `bson:"identity_key"`
	*types.ProductRecord `bson:",inline"`
}

// NewMongoWriter connects to MongoDB and prepares the target collection.
func NewMongoWriter(dsn, database, collection string, log utils.Logger) (*MongoWriter, error) {
	if dsn == "" {
		return nil, fmt.Errorf("MongoDB connection string is required")
	}
	if database == "" {
		database = "cataloger"
	}
	if collection == "" {
		collection = "products"
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(collection)

	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "identity_key", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create identity index: %w", err)
	}

	return &MongoWriter{
		client:     client,
		collection: coll,
		log:        log,
	}, nil
}

// Append inserts the batch unordered, ignoring duplicate keys.
func (w *MongoWriter) Append(records []*types.ProductRecord) error {
	if w.closed {
		return fmt.Errorf("mongodb writer is closed")
	}
	if len(records) == 0 {
		return nil
	}

	docs := make([]interface{}, len(records))
	for i, rec := range records {
		docs[i] = mongoDocument{
			IdentityKey:   rec.IdentityKey(),
			ProductRecord: rec,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	_, err := w.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if w.log != nil {
				w.log.Debugf("ignored duplicate keys in batch of %d", len(records))
			}
			return nil
		}
		return fmt.Errorf("failed to insert records: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (w *MongoWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	return w.client.Disconnect(ctx)
}
