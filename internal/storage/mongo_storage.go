// internal/storage/mongo_storage.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rickybot/internal/models"
)

const (
	DayRecordsCollection = "day_records"
	BlobBucketName       = "blobs"
)

var _ KeyedStore = (*MongoStorage)(nil)

type MongoStorage struct {
	client   *mongo.Client
	database *mongo.Database
}

func NewMongoStorage(mongoURI, databaseName string) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Test the connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	storage := &MongoStorage{
		client:   client,
		database: client.Database(databaseName),
	}

	if err := storage.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return storage, nil
}

func (s *MongoStorage) createIndexes(ctx context.Context) error {
	recordIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
	}
	if _, err := s.database.Collection(DayRecordsCollection).Indexes().CreateMany(ctx, recordIndexes); err != nil {
		return err
	}

	filesIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "filename", Value: 1}, {Key: "uploadDate", Value: -1}}},
	}
	if _, err := s.database.Collection(BlobBucketName + ".files").Indexes().CreateMany(ctx, filesIndexes); err != nil {
		return err
	}

	return nil
}

// Blobs returns a GridFS-backed blob store in the same database
func (s *MongoStorage) Blobs() *GridFSBlobStore {
	return NewGridFSBlobStore(s.database, BlobBucketName)
}

func validAttributeName(name string) error {
	if name == "" {
		return fmt.Errorf("attribute name is empty")
	}
	if strings.HasPrefix(name, "$") || strings.Contains(name, ".") {
		return fmt.Errorf("attribute name %q may not start with '$' or contain '.'", name)
	}
	return nil
}

// Day record operations
func (s *MongoStorage) GetRecord(ctx context.Context, key string) (*models.DayRecord, error) {
	collection := s.database.Collection(DayRecordsCollection)

	filter := bson.M{"_id": key, "attributes": bson.M{"$exists": true}}

	var record models.DayRecord
	err := collection.FindOne(ctx, filter).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if record.Attributes == nil {
		record.Attributes = map[string][]string{}
	}

	return &record, nil
}

func (s *MongoStorage) SetAttribute(ctx context.Context, key, name string, values []string) error {
	if err := validAttributeName(name); err != nil {
		return err
	}
	if values == nil {
		values = []string{}
	}

	collection := s.database.Collection(DayRecordsCollection)

	filter := bson.M{"_id": key}
	update := bson.M{
		"$set": bson.M{
			"attributes." + name: values,
			"updated_at":         time.Now(),
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := collection.UpdateOne(ctx, filter, update, opts)
	return err
}

func (s *MongoStorage) DeleteRecord(ctx context.Context, key string) error {
	collection := s.database.Collection(DayRecordsCollection)

	_, err := collection.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

// Deletion stats operations
type statsDocument struct {
	Key   string               `bson:"_id"`
	Stats models.DeletionStats `bson:"stats"`
}

func (s *MongoStorage) GetStats(ctx context.Context, key string) (*models.DeletionStats, error) {
	collection := s.database.Collection(DayRecordsCollection)

	filter := bson.M{"_id": key, "stats": bson.M{"$exists": true}}

	var doc statsDocument
	err := collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &doc.Stats, nil
}

func (s *MongoStorage) PutStats(ctx context.Context, key string, stats models.DeletionStats) error {
	collection := s.database.Collection(DayRecordsCollection)

	filter := bson.M{"_id": key}
	update := bson.M{
		"$set": bson.M{
			"stats":      stats,
			"updated_at": time.Now(),
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// Health check and cleanup
func (s *MongoStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStorage) Close() error {
	return s.client.Disconnect(context.Background())
}
