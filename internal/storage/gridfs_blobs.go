package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ BlobStore = (*GridFSBlobStore)(nil)

// GridFSBlobStore keeps one GridFS file per key. Older revisions are removed
// after each successful Put, so the newest upload always wins.
type GridFSBlobStore struct {
	database *mongo.Database
	name     string
}

func NewGridFSBlobStore(db *mongo.Database, bucketName string) *GridFSBlobStore {
	return &GridFSBlobStore{database: db, name: bucketName}
}

type fileEntry struct {
	ID primitive.ObjectID `bson:"_id"`
}

// bucket builds a per-call handle; GridFS deadlines are bucket state, so
// concurrent jobs must not share one.
func (s *GridFSBlobStore) bucket(ctx context.Context) (*gridfs.Bucket, error) {
	b, err := gridfs.NewBucket(s.database, options.GridFSBucket().SetName(s.name))
	if err != nil {
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		if err := b.SetReadDeadline(dl); err != nil {
			return nil, err
		}
		if err := b.SetWriteDeadline(dl); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (s *GridFSBlobStore) files(ctx context.Context, b *gridfs.Bucket, key string) ([]fileEntry, error) {
	cursor, err := b.Find(bson.M{"filename": key})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []fileEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *GridFSBlobStore) Head(ctx context.Context, key string) (bool, error) {
	b, err := s.bucket(ctx)
	if err != nil {
		return false, err
	}
	entries, err := s.files(ctx, b, key)
	if err != nil {
		return false, fmt.Errorf("head %s: %w", key, err)
	}
	return len(entries) > 0, nil
}

func (s *GridFSBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.bucket(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := b.DownloadToStreamByName(key, &buf); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

func (s *GridFSBlobStore) Put(ctx context.Context, key string, data []byte) error {
	b, err := s.bucket(ctx)
	if err != nil {
		return err
	}

	id, err := b.UploadFromStream(key, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	entries, err := s.files(ctx, b, key)
	if err != nil {
		return fmt.Errorf("listing revisions of %s: %w", key, err)
	}
	for _, e := range entries {
		if e.ID == id {
			continue
		}
		if err := b.Delete(e.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return fmt.Errorf("removing old revision of %s: %w", key, err)
		}
	}
	return nil
}

func (s *GridFSBlobStore) Delete(ctx context.Context, key string) error {
	b, err := s.bucket(ctx)
	if err != nil {
		return err
	}

	entries, err := s.files(ctx, b, key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	for _, e := range entries {
		if err := b.Delete(e.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}
