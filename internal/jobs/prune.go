package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rickybot/internal/bucket"
	"rickybot/internal/client"
	"rickybot/internal/metrics"
	"rickybot/internal/models"
	"rickybot/internal/storage"
)

const (
	// maxConsecutiveErrors stops a prune once more errors than this occur in a row
	maxConsecutiveErrors = 3
	// maxPruneDeletions caps unfollows in one invocation
	maxPruneDeletions = 3500
)

type pruneBatch struct {
	processed int
	failed    []string
	stats     models.DeletionStats
}

func (r *Runner) prune(ctx context.Context, now time.Time) models.Result {
	log := r.deps.Log.With("job", JobPrune)

	if bucket.IsCaturday(now) {
		leave := "It's Saturday, you shouldn't be here."
		log.Warn(leave)
		return models.NoContent(leave)
	}
	day := bucket.For(now)

	creds, err := r.loadCredentials(ctx)
	if err != nil {
		return models.Failure("ERROR - " + err.Error())
	}

	n := NewNarrative(now, log)
	finish := func(res models.Result) models.Result {
		r.publish(ctx, creds, r.deps.Files.Prune, "Logging for follower deletions on "+now.Format(time.DateOnly), n)
		return res
	}

	list, err := storage.LoadList(ctx, r.deps.Blobs, day.String())
	if errors.Is(err, storage.ErrNotFound) {
		end := "There was no users list found in the blob store. Terminating function call."
		log.Info(end, "bucket", day)
		return models.NoContent(end)
	}
	if err != nil {
		return finish(models.Failure(n.Error("failed to get previous follows list from the blob store: %v", err)))
	}

	c, err := r.deps.Dialer.Login(ctx, creds.username, creds.password)
	if err != nil {
		return finish(models.Failure(n.Error("failed to log in to the bluesky client: %v", err)))
	}

	followingBefore := r.followsCount(ctx, c, n, "previous")
	batch := r.pruneList(ctx, c, list)
	followingAfter := r.followsCount(ctx, c, n, "updated")

	retry := ""
	if len(batch.failed) > 0 {
		retry = fmt.Sprintf(" %d failures were encountered and need to be retried.", len(batch.failed))
	}
	n.Line("Processed %d users from the list of %d.%s From this batch of deletions %d users followed back, %d did not follow back and were deleted, and %d accounts no longer exist.\nFollows count - now: %d | prev: %d",
		batch.processed, len(list), retry,
		batch.stats.FollowedBack, batch.stats.NoFollowBack, batch.stats.NotFound,
		followingAfter, followingBefore,
	)

	partial := false
	remainder := append(list[batch.processed:len(list):len(list)], batch.failed...)
	finished := len(remainder) == 0

	if finished {
		if err := r.deps.Blobs.Delete(ctx, day.String()); err != nil {
			n.Error("failed to delete the list of follows from the blob store: %v", err)
			partial = true
		} else {
			n.Line("Finished processing all deletions for today. The list was successfully deleted from the blob store.")
		}
	} else {
		if err := storage.SaveList(ctx, r.deps.Blobs, day.String(), remainder); err != nil {
			n.Error("failed to upload list of leftover follows to the blob store: %v", err)
			partial = true
		} else {
			n.Line("successfully uploaded the list of remaining follows to check to the blob store.")
		}
	}

	total, ok := r.accumulateStats(ctx, day, batch.stats, finished, n)
	if !ok {
		partial = true
	}

	if finished {
		n.Line("STATS - Finished checking last week's follows from %s for deletions. In total there were %d follows processed. %d users followed back. %d did not follow back and were deleted. %d accounts no longer exist. Conversion Rate was %.2f%%.",
			day, total.Processed, total.FollowedBack, total.NoFollowBack, total.NotFound, total.ConversionRate())
	}

	if partial {
		return finish(models.PartialSuccess("ERROR - completed deletions but failed to persist progress or running deletion statistics."))
	}
	return finish(models.OK("Successfully checked for follows that did not followback and pruned follow list as necessary."))
}

// pruneList walks list in order and unfollows everyone who never followed
// back. Users that hit an error are returned in failed for a later retry.
func (r *Runner) pruneList(ctx context.Context, c client.SocialClient, list []string) pruneBatch {
	var b pruneBatch
	consecutive := 0
	self := c.Self()

	fail := func(did string, err error) bool {
		r.deps.Log.Warn("prune step failed", "did", did, "error", err)
		b.failed = append(b.failed, did)
		consecutive++
		return consecutive > maxConsecutiveErrors
	}

	for _, did := range list {
		b.processed++
		if did == self {
			continue
		}

		profile, err := c.GetProfile(ctx, did)
		if errors.Is(err, client.ErrNotFound) {
			b.stats.NotFound++
			consecutive = 0
			continue
		}
		if err != nil {
			if fail(did, err) {
				break
			}
			continue
		}

		if profile.FollowedBy() {
			b.stats.FollowedBack++
			consecutive = 0
			continue
		}

		b.stats.NoFollowBack++
		if profile.Following() {
			if err := c.Unfollow(ctx, profile.FollowingURI); err != nil {
				if fail(did, err) {
					break
				}
			} else {
				consecutive = 0
				metrics.Unfollows.WithLabelValues(JobPrune).Inc()
			}
		} else {
			consecutive = 0
		}
		if b.stats.NoFollowBack >= maxPruneDeletions {
			r.deps.Log.Warn("deletion cap reached", "cap", maxPruneDeletions)
			break
		}
	}

	b.stats.Processed = b.processed
	return b
}

// accumulateStats folds this batch into the stored running totals. A drained
// list clears the stored totals instead. It reports false on a storage failure.
func (r *Runner) accumulateStats(ctx context.Context, day bucket.Code, batch models.DeletionStats, finished bool, n *Narrative) (models.DeletionStats, bool) {
	prior, err := r.deps.Store.GetStats(ctx, day.StatsKey())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		prior = &models.DeletionStats{}
	case err != nil:
		n.Error("failed to read running deletion statistics: %v", err)
		return batch, false
	}
	total := prior.Add(batch)

	if finished {
		if err := r.deps.Store.DeleteRecord(ctx, day.StatsKey()); err != nil {
			n.Error("failed to delete item %s from the keyed store: %v", day.StatsKey(), err)
			return total, false
		}
		return total, true
	}

	if err := r.deps.Store.PutStats(ctx, day.StatsKey(), total); err != nil {
		n.Error("completed deletions but failed to store running deletion statistics in the keyed store.\n%v", err)
		return total, false
	}
	return total, true
}

func (r *Runner) followsCount(ctx context.Context, c client.SocialClient, n *Narrative, which string) int64 {
	p, err := c.GetProfile(ctx, c.Self())
	if err != nil {
		n.Warn("failed to get %s follow count: %v", which, err)
		return 0
	}
	return p.FollowsCount
}
