// internal/client/bsky_client.go
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	appbsky "github.com/bluesky-social/indigo/api/bsky"
	atclient "github.com/bluesky-social/indigo/atproto/client"
	"github.com/bluesky-social/indigo/atproto/syntax"
	"golang.org/x/time/rate"

	"rickybot/internal/models"
	"rickybot/internal/processor"
)

const (
	nsidGetProfile   = syntax.NSID("app.bsky.actor.getProfile")
	nsidGetFeed      = syntax.NSID("app.bsky.feed.getFeed")
	nsidGetLikes     = syntax.NSID("app.bsky.feed.getLikes")
	nsidGetFollowers = syntax.NSID("app.bsky.graph.getFollowers")
	nsidGetFollows   = syntax.NSID("app.bsky.graph.getFollows")
	nsidCreateRecord = syntax.NSID("com.atproto.repo.createRecord")
	nsidDeleteRecord = syntax.NSID("com.atproto.repo.deleteRecord")

	collectionFollow = "app.bsky.graph.follow"
	collectionLike   = "app.bsky.feed.like"

	// MaxPageSize is the largest limit the list endpoints accept
	MaxPageSize = 100
)

var (
	_ Dialer       = (*BskyDialer)(nil)
	_ SocialClient = (*BskyClient)(nil)
)

// BskyDialer logs in to a PDS with an app password
type BskyDialer struct {
	host       string
	httpClient *http.Client
	rateLimit  float64
}

func NewBskyDialer(host string, httpClient *http.Client, requestsPerSecond float64) *BskyDialer {
	return &BskyDialer{
		host:       host,
		httpClient: httpClient,
		rateLimit:  requestsPerSecond,
	}
}

func (d *BskyDialer) Login(ctx context.Context, username, password string) (SocialClient, error) {
	api, err := atclient.LoginWithPasswordHost(ctx, d.host, username, password, "", nil)
	if err != nil {
		return nil, fmt.Errorf("logging in as %s: %w", username, err)
	}
	if d.httpClient != nil {
		api.Client = d.httpClient
	}
	if api.AccountDID == nil {
		return nil, fmt.Errorf("logging in as %s: session has no account DID", username)
	}

	return &BskyClient{
		api:       api,
		self:      api.AccountDID.String(),
		limiter:   rate.NewLimiter(rate.Limit(d.rateLimit), 1),
		processor: processor.NewProcessor(),
	}, nil
}

// BskyClient is an authenticated app.bsky session
type BskyClient struct {
	api       *atclient.APIClient
	self      string
	limiter   *rate.Limiter
	processor *processor.Processor
}

func (c *BskyClient) Self() string { return c.self }

func (c *BskyClient) GetProfile(ctx context.Context, actor string) (*models.Profile, error) {
	var out models.ProfileView
	if err := c.get(ctx, nsidGetProfile, map[string]any{"actor": actor}, &out); err != nil {
		// any rejected profile lookup means the account is gone, banned or unusable
		var apiErr *atclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("%s %s: %w", nsidGetProfile, actor, ErrNotFound)
		}
		return nil, err
	}
	profile := c.processor.ProcessProfile(&out)
	return &profile, nil
}

func (c *BskyClient) GetFeed(ctx context.Context, feedURI, cursor string, limit int) (*models.FeedPage, error) {
	params := pageParams(cursor, limit)
	params["feed"] = feedURI

	var out models.FeedOutput
	if err := c.get(ctx, nsidGetFeed, params, &out); err != nil {
		return nil, err
	}
	return &models.FeedPage{
		Posts:  c.processor.ProcessFeed(out.Feed),
		Cursor: deref(out.Cursor),
	}, nil
}

func (c *BskyClient) GetLikes(ctx context.Context, postURI, cursor string, limit int) (*models.ActorPage, error) {
	params := pageParams(cursor, limit)
	params["uri"] = postURI

	var out models.LikesOutput
	if err := c.get(ctx, nsidGetLikes, params, &out); err != nil {
		return nil, err
	}
	views := make([]*models.ProfileView, 0, len(out.Likes))
	for _, like := range out.Likes {
		if like != nil {
			views = append(views, like.Actor)
		}
	}
	return &models.ActorPage{
		Actors: c.processor.ProcessActors(views),
		Cursor: deref(out.Cursor),
	}, nil
}

func (c *BskyClient) GetFollowers(ctx context.Context, actor, cursor string, limit int) (*models.ActorPage, error) {
	params := pageParams(cursor, limit)
	params["actor"] = actor

	var out models.FollowersOutput
	if err := c.get(ctx, nsidGetFollowers, params, &out); err != nil {
		return nil, err
	}
	return &models.ActorPage{
		Actors: c.processor.ProcessActors(out.Followers),
		Cursor: deref(out.Cursor),
	}, nil
}

func (c *BskyClient) GetFollows(ctx context.Context, actor, cursor string, limit int) (*models.ActorPage, error) {
	params := pageParams(cursor, limit)
	params["actor"] = actor

	var out models.FollowsOutput
	if err := c.get(ctx, nsidGetFollows, params, &out); err != nil {
		return nil, err
	}
	return &models.ActorPage{
		Actors: c.processor.ProcessActors(out.Follows),
		Cursor: deref(out.Cursor),
	}, nil
}

type createRecordInput struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Record     any    `json:"record"`
}

type createRecordOutput struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type deleteRecordInput struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Rkey       string `json:"rkey"`
}

func (c *BskyClient) Follow(ctx context.Context, did string) (string, error) {
	record := &appbsky.GraphFollow{
		LexiconTypeID: collectionFollow,
		CreatedAt:     now(),
		Subject:       did,
	}
	return c.createRecord(ctx, collectionFollow, record)
}

func (c *BskyClient) Like(ctx context.Context, postURI, postCID string) (string, error) {
	record := &appbsky.FeedLike{
		LexiconTypeID: collectionLike,
		CreatedAt:     now(),
		Subject: &comatproto.RepoStrongRef{
			Uri: postURI,
			Cid: postCID,
		},
	}
	return c.createRecord(ctx, collectionLike, record)
}

func (c *BskyClient) Unfollow(ctx context.Context, followURI string) error {
	aturi, err := syntax.ParseATURI(followURI)
	if err != nil {
		return fmt.Errorf("invalid follow URI %q: %w", followURI, err)
	}
	rkey := followURI[strings.LastIndex(followURI, "/")+1:]
	if rkey == "" || !strings.Contains(aturi.Path(), collectionFollow) {
		return fmt.Errorf("not a follow record: %s", followURI)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	input := deleteRecordInput{
		Repo:       c.self,
		Collection: collectionFollow,
		Rkey:       rkey,
	}
	if err := c.api.Post(ctx, nsidDeleteRecord, &input, nil); err != nil {
		return fmt.Errorf("deleting %s: %w", followURI, err)
	}
	return nil
}

func (c *BskyClient) createRecord(ctx context.Context, collection string, record any) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	input := createRecordInput{
		Repo:       c.self,
		Collection: collection,
		Record:     record,
	}
	var out createRecordOutput
	if err := c.api.Post(ctx, nsidCreateRecord, &input, &out); err != nil {
		return "", fmt.Errorf("creating %s record: %w", collection, err)
	}
	return out.URI, nil
}

func (c *BskyClient) get(ctx context.Context, endpoint syntax.NSID, params map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.api.Get(ctx, endpoint, params, out); err != nil {
		var apiErr *atclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s: %w", endpoint, ErrNotFound)
		}
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	return nil
}

func pageParams(cursor string, limit int) map[string]any {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	params := map[string]any{"limit": limit}
	if cursor != "" {
		params["cursor"] = cursor
	}
	return params
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func now() string {
	return time.Now().UTC().Format(syntax.AtprotoDatetimeLayout)
}
