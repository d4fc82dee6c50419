// internal/client/interface.go
package client

import (
	"context"
	"errors"

	"rickybot/internal/models"
)

// ErrNotFound is returned when the requested actor does not exist
var ErrNotFound = errors.New("not found")

type Dialer interface {
	Login(ctx context.Context, username, password string) (SocialClient, error)
}

type SocialClient interface {
	// Self returns the DID of the logged-in account
	Self() string
	GetProfile(ctx context.Context, actor string) (*models.Profile, error)
	GetFeed(ctx context.Context, feedURI, cursor string, limit int) (*models.FeedPage, error)
	GetLikes(ctx context.Context, postURI, cursor string, limit int) (*models.ActorPage, error)
	GetFollowers(ctx context.Context, actor, cursor string, limit int) (*models.ActorPage, error)
	GetFollows(ctx context.Context, actor, cursor string, limit int) (*models.ActorPage, error)
	// Follow creates a follow record and returns its URI
	Follow(ctx context.Context, did string) (string, error)
	// Unfollow deletes the follow record at followURI
	Unfollow(ctx context.Context, followURI string) error
	Like(ctx context.Context, postURI, postCID string) (string, error)
}
