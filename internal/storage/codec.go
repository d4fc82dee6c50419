package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"rickybot/internal/models"
)

// LoadList reads a JSON array of identifiers. A missing blob yields ErrNotFound.
func LoadList(ctx context.Context, blobs BlobStore, key string) ([]string, error) {
	data, err := blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decoding list %s: %w", key, err)
	}
	return ids, nil
}

// SaveList writes ids as a JSON array, preserving order
func SaveList(ctx context.Context, blobs BlobStore, key string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return blobs.Put(ctx, key, data)
}

// LoadSnapshot reads a JSON object of DID to follow-record URI
func LoadSnapshot(ctx context.Context, blobs BlobStore, key string) (models.Snapshot, error) {
	data, err := blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	snap := models.Snapshot{}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", key, err)
	}
	return snap, nil
}

func SaveSnapshot(ctx context.Context, blobs BlobStore, key string, snap models.Snapshot) error {
	if snap == nil {
		snap = models.Snapshot{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return blobs.Put(ctx, key, data)
}

// SortedSet returns the members of set in ascending order
func SortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
