// Package secrets resolves the flat credential and tuning map every job reads
// once at startup.
package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

var ErrMissingKey = errors.New("secret key not found")

// Keys shared by every job
const (
	KeyBskyUsername = "bsky_username"
	KeyBskyPassword = "bsky_password"
	KeyGitHubToken  = "github_token"
	KeyGitHubRepo   = "github_user/repo"
)

// Keys used only by the follow job
const (
	KeyFeedCaturday    = "feed_caturday"
	KeyFeedRegday      = "feed_regday"
	KeyFeedNameRegday  = "feed_name_regday"
	KeyPostsCaturday   = "posts_caturday"
	KeyFollowsCaturday = "follows_caturday"
	KeyPostsRegday     = "posts_regday"
	KeyFollowsRegday   = "follows_regday"
)

type Source interface {
	Lookup(ctx context.Context) (Map, error)
}

type Map map[string]string

// Get returns the value of key, or ErrMissingKey
func (m Map) Get(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	return v, nil
}

// Int returns the value of key parsed as a base-10 integer
func (m Map) Int(key string) (int, error) {
	v, err := m.Get(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("secret %s is not an integer: %w", key, err)
	}
	return n, nil
}

// Require fails with the first of keys that is absent
func (m Map) Require(keys ...string) error {
	for _, k := range keys {
		if _, err := m.Get(k); err != nil {
			return err
		}
	}
	return nil
}

var _ Source = (*FileSource)(nil)

// FileSource reads a JSON secret document (a flat object) on every lookup, so
// run sizes can be tuned without restarting the scheduler.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Lookup(ctx context.Context) (Map, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets file %s: %w", s.path, err)
	}
	return Parse(raw)
}

// Parse decodes a flat JSON object. Number values are kept in their literal
// form so integer run sizes round-trip exactly.
func Parse(raw []byte) (Map, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing secret document: %w", err)
	}

	m := make(Map, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case string:
			m[k] = val
		case json.Number:
			m[k] = val.String()
		case bool:
			m[k] = strconv.FormatBool(val)
		default:
			return nil, fmt.Errorf("secret %s must be a string or number", k)
		}
	}
	return m, nil
}
