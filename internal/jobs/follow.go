package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rickybot/internal/bucket"
	"rickybot/internal/models"
	"rickybot/internal/secrets"
	"rickybot/internal/storage"
)

// CacheAttribute holds the seen-post CIDs under a bucket's cache key
const CacheAttribute = "CIDS"

// RunAttributeLayout names a run's attribute. Record field names may not
// contain dots.
const RunAttributeLayout = "2006-01-02T15:04:05-0700"

type feedPlan struct {
	uri     string
	name    string
	posts   int
	follows int
}

func (r *Runner) follow(ctx context.Context, now time.Time) models.Result {
	log := r.deps.Log.With("job", JobFollow)
	day := bucket.For(now)
	runAttr := now.Format(RunAttributeLayout)

	creds, err := r.loadCredentials(ctx,
		secrets.KeyFeedCaturday, secrets.KeyFeedRegday, secrets.KeyFeedNameRegday,
		secrets.KeyPostsCaturday, secrets.KeyFollowsCaturday,
		secrets.KeyPostsRegday, secrets.KeyFollowsRegday,
	)
	if err != nil {
		return models.Failure("ERROR - " + err.Error())
	}
	plan, err := planFeed(creds.secrets, bucket.IsCaturday(now))
	if err != nil {
		return models.Failure("ERROR - " + err.Error())
	}

	n := NewNarrative(now, log)
	finish := func(res models.Result) models.Result {
		r.publish(ctx, creds, r.deps.Files.Follow, "Logging for follower additions on "+now.Format(time.RFC3339), n)
		return res
	}

	if err := r.deps.Store.Ping(ctx); err != nil {
		return finish(models.Failure(n.Error("failed to connect to the keyed store: %v", err)))
	}
	if err := r.deps.Classifier.Ready(ctx); err != nil {
		return finish(models.Failure(n.Error("failed to load the vision model: %v", err)))
	}

	cached := r.loadSeenCache(ctx, day, n)

	c, err := r.deps.Dialer.Login(ctx, creds.username, creds.password)
	if err != nil {
		return finish(models.Failure(n.Error("failed to log in to the bluesky client: %v", err)))
	}

	if p, err := c.GetProfile(ctx, c.Self()); err != nil {
		n.Warn("failed to get previous following and followers count: %v", err)
	} else {
		n.Line("prior followers: %d | previously following: %d", p.FollowersCount, p.FollowsCount)
	}

	if bucket.IsCaturday(now) {
		log.Info("IT'S CATURDAY! Checking the Caturday feed for new followers.")
	} else {
		log.Info("Just a regular day, but we're still following more cats. :3")
	}

	session := newScanSession(c, r.deps.Classifier, log, cached)
	session.feed = plan.uri
	session.feedName = plan.name
	session.postBudget = plan.posts
	session.quota = plan.follows

	n.Line("Feed %s:", plan.name)
	session.run(ctx)
	session.summarize(n)

	delete(session.followed, c.Self())
	followed := storage.SortedSet(session.followed)

	var failed []string
	if len(followed) > 0 {
		if err := r.deps.Store.SetAttribute(ctx, day.String(), runAttr, followed); err != nil {
			n.Error("failed to store followed users in the keyed store.\n%v", err)
			failed = append(failed, "follows added")
		}
	}
	if err := r.deps.Store.SetAttribute(ctx, day.CacheKey(), CacheAttribute, storage.SortedSet(session.seen)); err != nil {
		n.Warn("failed to store the seen posts cache in the keyed store.\n%v", err)
		failed = append(failed, "posts cache")
	}

	end := r.deps.Now().In(r.deps.Location)
	n.Line("time diff: %s | completed run at: %s", end.Sub(now).Round(time.Millisecond), end.Format(narrativeTimeLayout))

	if p, err := c.GetProfile(ctx, c.Self()); err != nil {
		n.Warn("failed to get updated following and followers count: %v", err)
	} else {
		n.Line("cur followers: %d | now following: %d", p.FollowersCount, p.FollowsCount)
	}

	if len(failed) > 0 {
		return finish(models.PartialSuccess(fmt.Sprintf(
			"Follows were added successfully, but failed to update the keyed store with the new %s.",
			strings.Join(failed, " and "),
		)))
	}
	return finish(models.OK(fmt.Sprintf("Successfully added %d follows.", len(followed))))
}

// loadSeenCache returns the bucket's cached CIDs. Any problem leaves a
// warning and an empty cache.
func (r *Runner) loadSeenCache(ctx context.Context, day bucket.Code, n *Narrative) map[string]struct{} {
	cached := map[string]struct{}{}

	rec, err := r.deps.Store.GetRecord(ctx, day.CacheKey())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		n.Warn("there were no items in the post cache key.")
		return cached
	case err != nil:
		n.Warn("failed to check post cache key's existence: %v", err)
		return cached
	}

	cids, ok := rec.Attributes[CacheAttribute]
	if !ok {
		n.Warn("the post cache key exists but has no cached posts attribute")
		return cached
	}
	for _, cid := range cids {
		cached[cid] = struct{}{}
	}
	r.deps.Log.Info("imported prior seen posts", "count", len(cached))
	return cached
}

// planFeed picks the feed and run sizes for the day
func planFeed(m secrets.Map, caturday bool) (feedPlan, error) {
	feedKey, postsKey, followsKey := secrets.KeyFeedRegday, secrets.KeyPostsRegday, secrets.KeyFollowsRegday
	name := m[secrets.KeyFeedNameRegday]
	if caturday {
		feedKey, postsKey, followsKey = secrets.KeyFeedCaturday, secrets.KeyPostsCaturday, secrets.KeyFollowsCaturday
		name = "'Caturday'"
	}

	posts, err := m.Int(postsKey)
	if err != nil {
		return feedPlan{}, err
	}
	follows, err := m.Int(followsKey)
	if err != nil {
		return feedPlan{}, err
	}
	return feedPlan{
		uri:     m[feedKey],
		name:    name,
		posts:   posts,
		follows: follows,
	}, nil
}

