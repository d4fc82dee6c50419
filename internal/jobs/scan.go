package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"rickybot/internal/client"
	"rickybot/internal/metrics"
	"rickybot/internal/models"
	"rickybot/internal/processor"
)

const (
	// likerThreshold is the like count at which a cat post's likers are followed too
	likerThreshold = 3
	// maxScanErrors stops a scan once this many per-post errors have been seen
	maxScanErrors = 5
)

// scanSession walks one feed, deciding per post whether to skip, like or
// follow, until a quota, the post budget, the feed or the error cap runs out.
type scanSession struct {
	client     client.SocialClient
	classifier Classifier
	log        *slog.Logger

	self       string
	feed       string
	feedName   string
	postBudget int
	quota      int

	cached   map[string]struct{}
	seen     map[string]struct{}
	followed map[string]struct{}

	page int

	fromPosts int
	fromLikes int

	posts           int
	pics            int
	cats            int
	notCats         int
	videos          int
	noMedia         int
	alreadyFollowed int
	mutuals         int
	own             int
	seenPosts       int

	errs []string
}

func newScanSession(c client.SocialClient, classifier Classifier, log *slog.Logger, cached map[string]struct{}) *scanSession {
	if cached == nil {
		cached = map[string]struct{}{}
	}
	return &scanSession{
		client:     c,
		classifier: classifier,
		log:        log,
		self:       c.Self(),
		cached:     cached,
		seen:       map[string]struct{}{},
		followed:   map[string]struct{}{},
	}
}

func (s *scanSession) totalFollows() int { return s.fromPosts + s.fromLikes }

func (s *scanSession) quotaReached() bool { return s.totalFollows() >= s.quota }

// run pages through the feed. It always returns having reached a terminal
// condition; the summary is written by the caller.
func (s *scanSession) run(ctx context.Context) {
	if s.postBudget <= 0 || s.quota <= 0 {
		return
	}

	cursor := ""
	remaining := s.postBudget
	for remaining > 0 {
		s.log.Info("checking feed page",
			"page", s.page,
			"feed", s.feedName,
			"posts_left", remaining,
			"follows", s.totalFollows(),
		)
		s.page++
		limit := min(remaining, client.MaxPageSize)
		remaining -= limit

		page, err := s.client.GetFeed(ctx, s.feed, cursor, limit)
		if err != nil {
			s.log.Error("error getting feed, terminating run", "error", err)
			s.errs = append(s.errs, fmt.Sprintf("CRITICAL ERROR ENCOUNTERED WHILE GETTING FEED:\n%v", err))
			return
		}

		for i, post := range page.Posts {
			if stop := s.handlePost(ctx, i, post); stop {
				return
			}
		}

		if page.Cursor == "" {
			s.log.Info("feed exhausted")
			return
		}
		cursor = page.Cursor
	}
}

// handlePost applies the skip rules in order and reports whether the scan
// must stop.
func (s *scanSession) handlePost(ctx context.Context, i int, post models.Post) bool {
	s.posts++
	author := post.Author

	if author.DID == s.self {
		s.own++
		metrics.PostsScanned.WithLabelValues("own").Inc()
		return false
	}

	_, inCache := s.cached[post.CID]
	_, inRun := s.seen[post.CID]
	s.seen[post.CID] = struct{}{}
	if inCache || inRun {
		s.seenPosts++
		metrics.PostsScanned.WithLabelValues("seen").Inc()
		return false
	}

	_, followedThisRun := s.followed[author.DID]

	switch {
	case author.Mutual():
		s.mutuals++
		metrics.PostsScanned.WithLabelValues("mutual").Inc()
		if _, err := s.client.Like(ctx, post.URI, post.CID); err != nil {
			return s.recordError(i, fmt.Errorf("liking mutual's post: %w", err))
		}
		return false

	case followedThisRun:
		s.alreadyFollowed++
		metrics.PostsScanned.WithLabelValues("followed_this_run").Inc()
		return false

	case author.Following() || author.FollowedBy():
		s.alreadyFollowed++
		metrics.PostsScanned.WithLabelValues("already_related").Inc()
		return false

	case post.Media == models.MediaVideo:
		s.videos++
		metrics.PostsScanned.WithLabelValues("video").Inc()
		return false

	case post.Media != models.MediaImage:
		s.noMedia++
		metrics.PostsScanned.WithLabelValues("no_media").Inc()
		return false
	}

	s.pics++
	metrics.PostsScanned.WithLabelValues("image").Inc()
	s.log.Debug("classifying image", "index", i, "post", processor.PostURL(post), "handle", author.Handle)

	isCat, err := s.classifier.Classify(ctx, post.ImageURL)
	if err != nil {
		metrics.Classifications.WithLabelValues("error").Inc()
		return s.recordError(i, err)
	}
	if !isCat {
		s.notCats++
		metrics.Classifications.WithLabelValues("not_cat").Inc()
		return false
	}

	s.cats++
	metrics.Classifications.WithLabelValues("cat").Inc()
	s.log.Info("found cat pic", "index", i, "likes", post.LikeCount, "handle", author.Handle)

	if _, err := s.client.Follow(ctx, author.DID); err != nil {
		return s.recordError(i, fmt.Errorf("following %s: %w", author.Handle, err))
	}
	s.followed[author.DID] = struct{}{}
	s.fromPosts++
	metrics.Follows.WithLabelValues("post").Inc()

	if _, err := s.client.Like(ctx, post.URI, post.CID); err != nil {
		if s.recordError(i, fmt.Errorf("liking post: %w", err)) {
			return true
		}
	}

	if post.LikeCount >= likerThreshold && !s.quotaReached() {
		added, err := s.followLikers(ctx, post)
		s.fromLikes += added
		s.log.Info("followed post likers", "added", added)
		if err != nil {
			if s.recordError(i, fmt.Errorf("following likers: %w", err)) {
				return true
			}
		}
	}

	if s.quotaReached() {
		s.log.Info("followed the desired number of new users, terminating run")
		return true
	}
	return false
}

// followLikers follows the post's likers that have no relationship with us
// yet, up to the remaining quota. It returns how many were followed even
// when it fails part way.
func (s *scanSession) followLikers(ctx context.Context, post models.Post) (int, error) {
	budget := s.quota - s.totalFollows()
	remaining := int(post.LikeCount)
	cursor := ""
	added := 0

	for remaining > 0 && added < budget {
		limit := min(remaining, client.MaxPageSize)
		remaining -= limit

		page, err := s.client.GetLikes(ctx, post.URI, cursor, limit)
		if err != nil {
			return added, err
		}

		for _, liker := range page.Actors {
			if liker.Muted {
				continue
			}
			if liker.Following() || liker.FollowedBy() || liker.DID == s.self {
				continue
			}
			if _, ok := s.followed[liker.DID]; ok {
				continue
			}

			if _, err := s.client.Follow(ctx, liker.DID); err != nil {
				return added, err
			}
			s.followed[liker.DID] = struct{}{}
			added++
			metrics.Follows.WithLabelValues("liker").Inc()
			if added >= budget {
				return added, nil
			}
		}

		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	return added, nil
}

// recordError notes a per-post failure and reports whether the cap is hit
func (s *scanSession) recordError(i int, err error) bool {
	s.errs = append(s.errs, fmt.Sprintf("pg%d #%d. %v", s.page, i, err))
	s.log.Error("post caused an error", "index", i, "errors", len(s.errs), "error", err)
	if len(s.errs) >= maxScanErrors {
		s.log.Error("too many errors, terminating run", "errors", len(s.errs), "allowed", maxScanErrors)
		return true
	}
	return false
}

// summarize writes the per-feed summary block
func (s *scanSession) summarize(n *Narrative) {
	total := s.totalFollows()
	plural, mark := "s", "."
	if total == 1 {
		plural = ""
	}
	if total > 0 {
		mark = "!"
	}

	n.Line("  Followed %d new user%s%s", total, plural, mark)
	n.Line("    Of those follows, %d were posters and %d were from likes.", s.fromPosts, s.fromLikes)
	n.Line("  %d posts in total were viewed during this run.", s.posts)
	n.Line("  Skipped Posts: (%d) - %d posts were previously seen, %d were from users already followed, %d were your posts.",
		s.seenPosts+s.alreadyFollowed+s.own, s.seenPosts, s.alreadyFollowed, s.own)
	n.Line("  Mutuals: %d posts were from users that follow you, and these posts were liked.", s.mutuals)
	n.Line("  Unprocessed: (%d) - %d posts had no media attached, and %d posts had videos attached.",
		s.noMedia+s.videos, s.noMedia, s.videos)
	n.Line("  Processed: %d posts had pics attached: %d were identified as cat pics and %d were not cats.",
		s.pics, s.cats, s.notCats)
	if len(s.errs) == 0 {
		n.Line("  No errors were encountered while processing pics.")
		return
	}
	n.Line("  %d ERROR(S) ENCOUNTERED PROCESSING PICS FROM THIS FEED", len(s.errs))
	for _, e := range s.errs {
		n.Line("%s", e)
	}
}
