package jobs

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rickybot/internal/bucket"
	"rickybot/internal/models"
	"rickybot/internal/secrets"
)

func (f *fixture) setRunSize(posts, follows int) {
	f.secrets.m[secrets.KeyPostsRegday] = strconv.Itoa(posts)
	f.secrets.m[secrets.KeyFollowsRegday] = strconv.Itoa(follows)
}

func (f *fixture) runAttribute(t *testing.T, key string) []string {
	t.Helper()
	rec, err := f.store.GetRecord(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, rec.Attributes, 1)
	for _, v := range rec.Attributes {
		return v
	}
	return nil
}

func TestFollowScenarioThreePosts(t *testing.T) {
	f := newFixture(t)
	f.setRunSize(3, 10)

	self := actor("rickybot")
	self.DID = selfDID
	own := imagePost(1, self, 10)

	video := imagePost(2, actor("vid"), 0)
	video.Media, video.ImageURL = models.MediaVideo, ""

	cat := imagePost(3, actor("cat"), 5)
	f.classifier.cats[cat.ImageURL] = true

	muted := actor("muted")
	muted.Muted = true
	mutual := actor("mutual")
	mutual.FollowingURI, mutual.FollowedByURI = "at://x/app.bsky.graph.follow/1", "at://y/app.bsky.graph.follow/2"
	f.social.likers[cat.URI] = []models.Actor{actor("l1"), muted, mutual, actor("l2"), actor("l3")}

	f.social.feedPages = [][]models.Post{{own, video, cat}}

	res := f.runner().Follow(context.Background())
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Successfully added 4 follows.", res.Body)

	assert.Equal(t, []string{"did:plc:cat", "did:plc:l1", "did:plc:l2", "did:plc:l3"}, f.social.followed)
	assert.Equal(t, []string{cat.URI}, f.social.liked)
	assert.Equal(t, []string{cat.ImageURL}, f.classifier.calls)

	assert.Equal(t, []string{"did:plc:cat", "did:plc:l1", "did:plc:l2", "did:plc:l3"}, f.runAttribute(t, "MON"))

	rec, err := f.store.GetRecord(context.Background(), "CACHE#MON")
	require.NoError(t, err)
	assert.Equal(t, []string{"cid-2", "cid-3"}, rec.Attributes[CacheAttribute])

	require.Len(t, f.journal.entries, 1)
	assert.Equal(t, "LOGGING_ADD.txt", f.journal.entries[0].path)
	text := f.journal.text()
	assert.Contains(t, text, "Feed 'Cats':")
	assert.Contains(t, text, "Followed 4 new users!")
	assert.Contains(t, text, "Of those follows, 1 were posters and 3 were from likes.")
	assert.Contains(t, text, "3 posts in total were viewed during this run.")
	assert.Contains(t, text, "Skipped Posts: (1) - 0 posts were previously seen, 0 were from users already followed, 1 were your posts.")
	assert.Contains(t, text, "Unprocessed: (1) - 0 posts had no media attached, and 1 posts had videos attached.")
	assert.Contains(t, text, "Processed: 1 posts had pics attached: 1 were identified as cat pics and 0 were not cats.")
	assert.Contains(t, text, "No errors were encountered while processing pics.")
	assert.Equal(t, "gh-token", f.journal.token)
	assert.Equal(t, "ricky/logs", f.journal.repo)
}

func TestFollowLikerThreshold(t *testing.T) {
	tests := []struct {
		likes      int64
		wantLikers bool
	}{
		{likes: 0, wantLikers: false},
		{likes: 2, wantLikers: false},
		{likes: 3, wantLikers: true},
		{likes: 40, wantLikers: true},
	}

	for _, tt := range tests {
		t.Run(strconv.FormatInt(tt.likes, 10), func(t *testing.T) {
			f := newFixture(t)
			post := imagePost(1, actor("cat"), tt.likes)
			f.classifier.cats[post.ImageURL] = true
			f.social.feedPages = [][]models.Post{{post}}

			f.runner().Follow(context.Background())
			assert.Equal(t, tt.wantLikers, f.social.likesCalls > 0)
		})
	}
}

func TestFollowNotCatNoLikerPass(t *testing.T) {
	f := newFixture(t)
	post := imagePost(1, actor("dog"), 50)
	f.social.feedPages = [][]models.Post{{post}}

	res := f.runner().Follow(context.Background())
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Zero(t, f.social.likesCalls)
	assert.Empty(t, f.social.followed)
	assert.Contains(t, f.journal.text(), "0 were identified as cat pics and 1 were not cats.")
}

func TestFollowSkipsSeenPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cached := imagePost(1, actor("a"), 10)
	fresh := imagePost(2, actor("b"), 0)
	dup := fresh
	dup.Author = actor("c")
	f.classifier.cats[cached.ImageURL] = true
	f.classifier.cats[fresh.ImageURL] = true

	require.NoError(t, f.store.SetAttribute(ctx, "CACHE#MON", CacheAttribute, []string{cached.CID}))
	f.social.feedPages = [][]models.Post{{cached, fresh, dup}}

	f.runner().Follow(ctx)

	assert.Equal(t, []string{fresh.ImageURL}, f.classifier.calls)
	assert.Equal(t, []string{"did:plc:b"}, f.social.followed)
	assert.Equal(t, []string{fresh.URI}, f.social.liked)
	assert.Contains(t, f.journal.text(), "2 posts were previously seen")

	rec, err := f.store.GetRecord(ctx, "CACHE#MON")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{cached.CID, fresh.CID}, rec.Attributes[CacheAttribute])
}

func TestFollowQuotaNeverExceeded(t *testing.T) {
	f := newFixture(t)
	f.setRunSize(100, 3)

	first := imagePost(1, actor("cat1"), 10)
	second := imagePost(2, actor("cat2"), 10)
	f.classifier.cats[first.ImageURL] = true
	f.classifier.cats[second.ImageURL] = true
	f.social.likers[first.URI] = []models.Actor{actor("l1"), actor("l2"), actor("l3"), actor("l4"), actor("l5")}
	f.social.feedPages = [][]models.Post{{first, second}}

	res := f.runner().Follow(context.Background())
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, f.social.followed, 3)
	assert.Equal(t, []string{first.ImageURL}, f.classifier.calls)
	assert.Contains(t, f.journal.text(), "Of those follows, 1 were posters and 2 were from likes.")
}

func TestFollowLikersSkipExistingRelationships(t *testing.T) {
	f := newFixture(t)
	post := imagePost(1, actor("cat"), 5)
	f.classifier.cats[post.ImageURL] = true

	follower := actor("follower")
	follower.FollowedByURI = "at://did:plc:follower/app.bsky.graph.follow/1"
	followee := actor("followee")
	followee.FollowingURI = "at://did:plc:rickybot/app.bsky.graph.follow/1"
	self := actor("me")
	self.DID = selfDID
	f.social.likers[post.URI] = []models.Actor{follower, followee, self, actor("cat"), actor("new")}
	f.social.feedPages = [][]models.Post{{post}}

	f.runner().Follow(context.Background())
	assert.Equal(t, []string{"did:plc:cat", "did:plc:new"}, f.social.followed)
}

func TestFollowMutualIsLikedNotFollowed(t *testing.T) {
	f := newFixture(t)
	mutual := actor("mutual")
	mutual.FollowingURI, mutual.FollowedByURI = "at://a/app.bsky.graph.follow/1", "at://b/app.bsky.graph.follow/2"
	post := imagePost(1, mutual, 10)
	f.classifier.cats[post.ImageURL] = true

	following := actor("following")
	following.FollowingURI = "at://a/app.bsky.graph.follow/3"
	other := imagePost(2, following, 10)

	f.social.feedPages = [][]models.Post{{post, other}}

	f.runner().Follow(context.Background())
	assert.Empty(t, f.classifier.calls)
	assert.Empty(t, f.social.followed)
	assert.Equal(t, []string{post.URI}, f.social.liked)
	text := f.journal.text()
	assert.Contains(t, text, "Mutuals: 1 posts were from users that follow you")
	assert.Contains(t, text, "1 were from users already followed")
}

func TestFollowAuthorFollowedOncePerRun(t *testing.T) {
	f := newFixture(t)
	first := imagePost(1, actor("cat"), 0)
	second := imagePost(2, actor("cat"), 0)
	f.classifier.cats[first.ImageURL] = true
	f.classifier.cats[second.ImageURL] = true
	f.social.feedPages = [][]models.Post{{first, second}}

	f.runner().Follow(context.Background())
	assert.Equal(t, []string{"did:plc:cat"}, f.social.followed)
	assert.Contains(t, f.journal.text(), "1 were from users already followed")
}

func TestFollowErrorCapStopsScan(t *testing.T) {
	f := newFixture(t)
	var posts []models.Post
	for i := 1; i <= 8; i++ {
		p := imagePost(i, actor("user"+strconv.Itoa(i)), 0)
		f.classifier.errs[p.ImageURL] = errBoom
		posts = append(posts, p)
	}
	f.social.feedPages = [][]models.Post{posts}

	res := f.runner().Follow(context.Background())
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, f.classifier.calls, maxScanErrors)
	assert.Contains(t, f.journal.text(), "5 ERROR(S) ENCOUNTERED PROCESSING PICS FROM THIS FEED")
}

func TestFollowFeedErrorStopsScan(t *testing.T) {
	f := newFixture(t)
	f.social.feedErr = errBoom

	res := f.runner().Follow(context.Background())
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, f.social.feedCalls, 1)
	assert.Contains(t, f.journal.text(), "CRITICAL ERROR ENCOUNTERED WHILE GETTING FEED")
}

func TestFollowChainsFeedCursor(t *testing.T) {
	f := newFixture(t)
	f.setRunSize(150, 10)

	page1 := make([]models.Post, 0, 100)
	for i := 0; i < 100; i++ {
		p := imagePost(i, actor("a"+strconv.Itoa(i)), 0)
		p.Media, p.ImageURL = models.MediaNone, ""
		page1 = append(page1, p)
	}
	f.social.feedPages = [][]models.Post{page1, {imagePost(500, actor("b"), 0)}, {imagePost(501, actor("c"), 0)}}

	f.runner().Follow(context.Background())

	require.Len(t, f.social.feedCalls, 2)
	assert.Equal(t, feedCall{feed: "at://did:plc:feeds/app.bsky.feed.generator/cats", cursor: "", limit: 100}, f.social.feedCalls[0])
	assert.Equal(t, "page-1", f.social.feedCalls[1].cursor)
	assert.Equal(t, 50, f.social.feedCalls[1].limit)
}

func TestFollowStopsWhenFeedExhausted(t *testing.T) {
	f := newFixture(t)
	f.setRunSize(1000, 10)
	f.social.feedPages = [][]models.Post{{imagePost(1, actor("a"), 0)}}

	f.runner().Follow(context.Background())
	assert.Len(t, f.social.feedCalls, 1)
}

func TestFollowCaturday(t *testing.T) {
	f := newFixture(t)
	f.now = monday.AddDate(0, 0, 5)
	require.Equal(t, bucket.Weekend, bucket.For(f.now))

	post := imagePost(1, actor("cat"), 0)
	f.classifier.cats[post.ImageURL] = true
	f.social.feedPages = [][]models.Post{{post}}

	res := f.runner().Follow(context.Background())
	assert.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, f.social.feedCalls)
	assert.Equal(t, "at://did:plc:feeds/app.bsky.feed.generator/caturday", f.social.feedCalls[0].feed)
	assert.Contains(t, f.journal.text(), "Feed 'Caturday':")
	assert.Equal(t, []string{"did:plc:cat"}, f.runAttribute(t, "FRI+SAT"))
}

func TestFollowMissingSecretIsFatalWithoutJournal(t *testing.T) {
	f := newFixture(t)
	delete(f.secrets.m, secrets.KeyFeedRegday)

	res := f.runner().Follow(context.Background())
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Contains(t, res.Body, secrets.KeyFeedRegday)
	assert.Empty(t, f.journal.entries)
	assert.Zero(t, f.dialer.logins)
}

func TestFollowSecretStoreUnreachable(t *testing.T) {
	f := newFixture(t)
	f.secrets.err = errBoom

	res := f.runner().Follow(context.Background())
	assert.True(t, res.Failed())
	assert.Empty(t, f.journal.entries)
}

func TestFollowLoginFailureIsJournaled(t *testing.T) {
	f := newFixture(t)
	f.dialer.err = errBoom

	res := f.runner().Follow(context.Background())
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Contains(t, res.Body, "failed to log in")
	require.Len(t, f.journal.entries, 1)
	assert.Contains(t, f.journal.text(), "ERROR - failed to log in to the bluesky client")
}

func TestFollowModelUnavailableIsJournaled(t *testing.T) {
	f := newFixture(t)
	f.classifier.readyErr = errBoom

	res := f.runner().Follow(context.Background())
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Contains(t, res.Body, "failed to load the vision model")
	require.Len(t, f.journal.entries, 1)
	assert.Zero(t, f.dialer.logins)
	assert.Empty(t, f.classifier.calls)
}

func TestFollowStoreFailuresArePartial(t *testing.T) {
	f := newFixture(t)
	post := imagePost(1, actor("cat"), 0)
	f.classifier.cats[post.ImageURL] = true
	f.social.feedPages = [][]models.Post{{post}}
	f.store.setErrs["MON"] = errBoom
	f.store.setErrs["CACHE#MON"] = errBoom

	res := f.runner().Follow(context.Background())
	assert.Equal(t, http.StatusMultiStatus, res.StatusCode)
	assert.Equal(t, "Follows were added successfully, but failed to update the keyed store with the new follows added and posts cache.", res.Body)
	assert.Len(t, f.journal.entries, 1)
}

func TestFollowJournalFailureDoesNotChangeResult(t *testing.T) {
	f := newFixture(t)
	f.journal.err = errBoom

	res := f.runner().Follow(context.Background())
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestFollowProfileCountsInNarrative(t *testing.T) {
	f := newFixture(t)
	f.social.profiles[selfDID] = &models.Profile{Actor: models.Actor{DID: selfDID}, FollowersCount: 12, FollowsCount: 34}

	f.runner().Follow(context.Background())
	text := f.journal.text()
	assert.Contains(t, text, "prior followers: 12 | previously following: 34")
	assert.Contains(t, text, "cur followers: 12 | now following: 34")
	assert.Contains(t, text, "time diff:")
}
