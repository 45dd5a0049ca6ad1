package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps invocation records in a MongoDB collection.
type MongoStore struct {
	client      *mongo.Client
	invocations *mongo.Collection
}

// NewMongoStore connects to MongoDB and prepares the invocations
// collection.
func NewMongoStore(uri, dbName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &MongoStore{
		client:      client,
		invocations: client.Database(dbName).Collection("invocations"),
	}

	_, err = store.invocations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "invocation_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "started_at", Value: -1}},
		},
	})
	if err != nil {
		return nil, err
	}

	return store, nil
}

// Save inserts one invocation record.
func (s *MongoStore) Save(ctx context.Context, rec *Record) error {
	_, err := s.invocations.InsertOne(ctx, rec)
	return err
}

// Get looks up a record by invocation ID.
func (s *MongoStore) Get(ctx context.Context, invocationID string) (*Record, error) {
	var rec Record
	err := s.invocations.FindOne(ctx, bson.M{"invocation_id": invocationID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Close disconnects the MongoDB client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
