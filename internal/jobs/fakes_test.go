package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"rickybot/internal/client"
	"rickybot/internal/journal"
	"rickybot/internal/models"
	"rickybot/internal/secrets"
	"rickybot/internal/storage"
)

const selfDID = "did:plc:rickybot"

var errBoom = errors.New("boom")

// Monday, June 3 2024
var monday = time.Date(2024, time.June, 3, 10, 0, 0, 0, time.UTC)

type fakeSecrets struct {
	m   secrets.Map
	err error
}

func (f *fakeSecrets) Lookup(ctx context.Context) (secrets.Map, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := secrets.Map{}
	for k, v := range f.m {
		out[k] = v
	}
	return out, nil
}

func defaultSecrets() *fakeSecrets {
	return &fakeSecrets{m: secrets.Map{
		secrets.KeyBskyUsername:    "rickybot.test",
		secrets.KeyBskyPassword:    "app-password",
		secrets.KeyGitHubToken:     "gh-token",
		secrets.KeyGitHubRepo:      "ricky/logs",
		secrets.KeyFeedCaturday:    "at://did:plc:feeds/app.bsky.feed.generator/caturday",
		secrets.KeyFeedRegday:      "at://did:plc:feeds/app.bsky.feed.generator/cats",
		secrets.KeyFeedNameRegday:  "'Cats'",
		secrets.KeyPostsCaturday:   "500",
		secrets.KeyFollowsCaturday: "50",
		secrets.KeyPostsRegday:     "100",
		secrets.KeyFollowsRegday:   "10",
	}}
}

type feedCall struct {
	feed   string
	cursor string
	limit  int
}

type fakeSocial struct {
	mu sync.Mutex

	self string

	// feed pages are addressed by cursor "" then "page-1", "page-2", ...
	feedPages [][]models.Post
	feedErr   error
	likers    map[string][]models.Actor
	likesErr  error

	profiles    map[string]*models.Profile
	profileErrs map[string]error

	followers    []models.Actor
	follows      []models.Actor
	followersErr error
	followsErr   error

	followErrs   map[string]error
	likeErr      error
	unfollowErrs map[string]error

	feedCalls  []feedCall
	likesCalls int
	followed   []string
	liked      []string
	unfollowed []string
}

func newFakeSocial() *fakeSocial {
	return &fakeSocial{
		self:         selfDID,
		likers:       map[string][]models.Actor{},
		profiles:     map[string]*models.Profile{},
		profileErrs:  map[string]error{},
		followErrs:   map[string]error{},
		unfollowErrs: map[string]error{},
	}
}

func (f *fakeSocial) Self() string { return f.self }

func (f *fakeSocial) GetProfile(ctx context.Context, actor string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.profileErrs[actor]; err != nil {
		return nil, err
	}
	if p, ok := f.profiles[actor]; ok {
		cp := *p
		return &cp, nil
	}
	if actor == f.self {
		return &models.Profile{Actor: models.Actor{DID: f.self}}, nil
	}
	return nil, fmt.Errorf("app.bsky.actor.getProfile: %w", client.ErrNotFound)
}

func (f *fakeSocial) GetFeed(ctx context.Context, feedURI, cursor string, limit int) (*models.FeedPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedCalls = append(f.feedCalls, feedCall{feed: feedURI, cursor: cursor, limit: limit})
	if f.feedErr != nil {
		return nil, f.feedErr
	}

	idx := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor[len("page-"):])
		if err != nil {
			return nil, err
		}
		idx = n
	}
	if idx >= len(f.feedPages) {
		return &models.FeedPage{}, nil
	}
	page := &models.FeedPage{Posts: f.feedPages[idx]}
	if len(page.Posts) > limit {
		page.Posts = page.Posts[:limit]
	}
	if idx+1 < len(f.feedPages) {
		page.Cursor = fmt.Sprintf("page-%d", idx+1)
	}
	return page, nil
}

func (f *fakeSocial) GetLikes(ctx context.Context, postURI, cursor string, limit int) (*models.ActorPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.likesCalls++
	if f.likesErr != nil {
		return nil, f.likesErr
	}
	return paginate(f.likers[postURI], cursor, limit), nil
}

func (f *fakeSocial) GetFollowers(ctx context.Context, actor, cursor string, limit int) (*models.ActorPage, error) {
	if f.followersErr != nil {
		return nil, f.followersErr
	}
	return paginate(f.followers, cursor, limit), nil
}

func (f *fakeSocial) GetFollows(ctx context.Context, actor, cursor string, limit int) (*models.ActorPage, error) {
	if f.followsErr != nil {
		return nil, f.followsErr
	}
	return paginate(f.follows, cursor, limit), nil
}

func (f *fakeSocial) Follow(ctx context.Context, did string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.followErrs[did]; err != nil {
		return "", err
	}
	f.followed = append(f.followed, did)
	return followURI(did), nil
}

func (f *fakeSocial) Unfollow(ctx context.Context, uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unfollowErrs[uri]; err != nil {
		return err
	}
	f.unfollowed = append(f.unfollowed, uri)
	return nil
}

func (f *fakeSocial) Like(ctx context.Context, postURI, postCID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.likeErr != nil {
		return "", f.likeErr
	}
	f.liked = append(f.liked, postURI)
	return "at://" + selfDID + "/app.bsky.feed.like/" + postCID, nil
}

// paginate serves items in slices of limit using the offset as cursor
func paginate(items []models.Actor, cursor string, limit int) *models.ActorPage {
	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	if start > len(items) {
		start = len(items)
	}
	end := min(start+limit, len(items))
	page := &models.ActorPage{Actors: items[start:end]}
	if end < len(items) {
		page.Cursor = strconv.Itoa(end)
	}
	return page
}

func followURI(did string) string {
	return "at://" + selfDID + "/app.bsky.graph.follow/" + did[len("did:plc:"):]
}

type fakeDialer struct {
	client *fakeSocial
	err    error
	logins int
}

func (d *fakeDialer) Login(ctx context.Context, username, password string) (client.SocialClient, error) {
	d.logins++
	if d.err != nil {
		return nil, d.err
	}
	return d.client, nil
}

type fakeClassifier struct {
	cats     map[string]bool
	errs     map[string]error
	readyErr error
	calls    []string
}

func (c *fakeClassifier) Ready(ctx context.Context) error { return c.readyErr }

func (c *fakeClassifier) Classify(ctx context.Context, imageURL string) (bool, error) {
	c.calls = append(c.calls, imageURL)
	if err := c.errs[imageURL]; err != nil {
		return false, err
	}
	return c.cats[imageURL], nil
}

type journalEntry struct {
	path    string
	message string
	text    string
}

type fakeJournal struct {
	entries []journalEntry
	err     error
	token   string
	repo    string
}

func (j *fakeJournal) Append(ctx context.Context, path, message, text string) error {
	if j.err != nil {
		return j.err
	}
	j.entries = append(j.entries, journalEntry{path: path, message: message, text: text})
	return nil
}

func (j *fakeJournal) text() string {
	if len(j.entries) == 0 {
		return ""
	}
	return j.entries[len(j.entries)-1].text
}

// flakyStore fails selected KeyedStore calls
type flakyStore struct {
	*storage.MemoryKeyedStore
	pingErr     error
	getErr      error
	setErrs     map[string]error
	deleteErr   error
	getStatsErr error
	putStatsErr error
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryKeyedStore: storage.NewMemoryKeyedStore(), setErrs: map[string]error{}}
}

func (s *flakyStore) Ping(ctx context.Context) error {
	if s.pingErr != nil {
		return s.pingErr
	}
	return s.MemoryKeyedStore.Ping(ctx)
}

func (s *flakyStore) GetRecord(ctx context.Context, key string) (*models.DayRecord, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.MemoryKeyedStore.GetRecord(ctx, key)
}

func (s *flakyStore) SetAttribute(ctx context.Context, key, name string, values []string) error {
	if err := s.setErrs[key]; err != nil {
		return err
	}
	return s.MemoryKeyedStore.SetAttribute(ctx, key, name, values)
}

func (s *flakyStore) DeleteRecord(ctx context.Context, key string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryKeyedStore.DeleteRecord(ctx, key)
}

func (s *flakyStore) GetStats(ctx context.Context, key string) (*models.DeletionStats, error) {
	if s.getStatsErr != nil {
		return nil, s.getStatsErr
	}
	return s.MemoryKeyedStore.GetStats(ctx, key)
}

func (s *flakyStore) PutStats(ctx context.Context, key string, stats models.DeletionStats) error {
	if s.putStatsErr != nil {
		return s.putStatsErr
	}
	return s.MemoryKeyedStore.PutStats(ctx, key, stats)
}

// flakyBlobs fails selected BlobStore calls per key
type flakyBlobs struct {
	*storage.MemoryBlobStore
	headErr   error
	getErrs   map[string]error
	putErrs   map[string]error
	deleteErr error
}

func newFlakyBlobs() *flakyBlobs {
	return &flakyBlobs{
		MemoryBlobStore: storage.NewMemoryBlobStore(),
		getErrs:         map[string]error{},
		putErrs:         map[string]error{},
	}
}

func (b *flakyBlobs) Head(ctx context.Context, key string) (bool, error) {
	if b.headErr != nil {
		return false, b.headErr
	}
	return b.MemoryBlobStore.Head(ctx, key)
}

func (b *flakyBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	if err := b.getErrs[key]; err != nil {
		return nil, err
	}
	return b.MemoryBlobStore.Get(ctx, key)
}

func (b *flakyBlobs) Put(ctx context.Context, key string, data []byte) error {
	if err := b.putErrs[key]; err != nil {
		return err
	}
	return b.MemoryBlobStore.Put(ctx, key, data)
}

func (b *flakyBlobs) Delete(ctx context.Context, key string) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	return b.MemoryBlobStore.Delete(ctx, key)
}

type fixture struct {
	secrets    *fakeSecrets
	social     *fakeSocial
	dialer     *fakeDialer
	classifier *fakeClassifier
	journal    *fakeJournal
	store      *flakyStore
	blobs      *flakyBlobs
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	social := newFakeSocial()
	return &fixture{
		secrets:    defaultSecrets(),
		social:     social,
		dialer:     &fakeDialer{client: social},
		classifier: &fakeClassifier{cats: map[string]bool{}, errs: map[string]error{}},
		journal:    &fakeJournal{},
		store:      newFlakyStore(),
		blobs:      newFlakyBlobs(),
		now:        monday,
	}
}

func (f *fixture) runner() *Runner {
	return NewRunner(Deps{
		Secrets:    f.secrets,
		Store:      f.store,
		Blobs:      f.blobs,
		Dialer:     f.dialer,
		Classifier: f.classifier,
		Journal: func(token, repo string) journal.Appender {
			f.journal.token, f.journal.repo = token, repo
			return f.journal
		},
		Files: LogFiles{
			Follow:    "LOGGING_ADD.txt",
			Prune:     "LOGGING_DEL.txt",
			Aggregate: "LOGGING_AGG.txt",
			Status:    "LOGGING_STATUS.txt",
		},
		Location: time.UTC,
		Now:      func() time.Time { return f.now },
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// post helpers

func imagePost(n int, author models.Actor, likes int64) models.Post {
	id := strconv.Itoa(n)
	return models.Post{
		URI:       "at://" + author.DID + "/app.bsky.feed.post/" + id,
		CID:       "cid-" + id,
		Author:    author,
		Media:     models.MediaImage,
		ImageURL:  "https://cdn.test/" + id + ".jpg",
		LikeCount: likes,
	}
}

func actor(name string) models.Actor {
	return models.Actor{DID: "did:plc:" + name, Handle: name + ".test"}
}
