package jobs

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"rickybot/internal/client"
	"rickybot/internal/metrics"
	"rickybot/internal/models"
	"rickybot/internal/storage"
)

// Snapshot blob keys
const (
	SnapshotFollowers = "STATUS-FOLLOWING-YOU"
	SnapshotFollows   = "STATUS-WHO-YOU-FOLLOW"
)

type diffCounts struct {
	removed int
	failed  int
	skipped int
}

func (r *Runner) status(ctx context.Context, now time.Time) models.Result {
	log := r.deps.Log.With("job", JobStatus)

	creds, err := r.loadCredentials(ctx)
	if err != nil {
		return models.Failure("ERROR - " + err.Error())
	}

	n := NewNarrative(now, log)
	finish := func(res models.Result) models.Result {
		r.publish(ctx, creds, r.deps.Files.Status, "Logging status update on "+now.Format(time.DateOnly), n)
		return res
	}

	c, err := r.deps.Dialer.Login(ctx, creds.username, creds.password)
	if err != nil {
		return finish(models.Failure(n.Error("failed to log in to bluesky: %v", err)))
	}

	followers, err := collectActors(ctx, func(ctx context.Context, cursor string) (*models.ActorPage, error) {
		return c.GetFollowers(ctx, c.Self(), cursor, client.MaxPageSize)
	})
	if err != nil {
		return finish(models.Failure(n.Error("failed to gather current followers: %v", err)))
	}
	currentFollowers := snapshotOf(followers)

	savedFollowers := r.followersPass(ctx, c, currentFollowers, n)
	savedFollows := r.followsPass(ctx, c, currentFollowers, n)

	n.Line("blob update - uploaded followers: %s | uploaded who we follow: %s", outcome(savedFollowers), outcome(savedFollows))

	switch {
	case !savedFollowers && !savedFollows:
		return finish(models.Failure("ERROR - failed all updates to the blob store with current follows and followers"))
	case !savedFollowers || !savedFollows:
		return finish(models.PartialSuccess("Status update completed, but one snapshot failed to upload."))
	}
	return finish(models.OK("Successfully completed status update."))
}

// followersPass unfollows everyone who stopped following us since the last
// snapshot, then stores the current followers.
func (r *Runner) followersPass(ctx context.Context, c client.SocialClient, current models.Snapshot, n *Narrative) bool {
	prior, err := storage.LoadSnapshot(ctx, r.deps.Blobs, SnapshotFollowers)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		n.Error("there was no previous followers list found in the blob store. Adding the new list of followers.")
	case err != nil:
		n.Error("failed to access the blob store to get previous followers: %v", err)
	default:
		var gone []string
		for did := range prior {
			if _, ok := current[did]; !ok {
				gone = append(gone, did)
			}
		}
		counts := r.unfollowAll(ctx, c, gone, prior, nil)
		stopped := counts.removed + counts.failed + counts.skipped
		n.Line("followers status - %s followers this week. %d users stopped following. %d were successfully unfollowed, with %d failures.",
			direction(len(current)-len(prior)), stopped, counts.removed, counts.failed)
	}

	if err := storage.SaveSnapshot(ctx, r.deps.Blobs, SnapshotFollowers, current); err != nil {
		n.Error("failed to upload new followers map to the blob store: %v", err)
		return false
	}
	return true
}

// followsPass unfollows accounts we already followed at the last snapshot
// that still do not follow us, then stores who we follow now.
func (r *Runner) followsPass(ctx context.Context, c client.SocialClient, followers models.Snapshot, n *Narrative) bool {
	follows, err := collectActors(ctx, func(ctx context.Context, cursor string) (*models.ActorPage, error) {
		return c.GetFollows(ctx, c.Self(), cursor, client.MaxPageSize)
	})
	if err != nil {
		n.Error("failed to gather who we follow: %v", err)
		return false
	}
	current := snapshotOf(follows)

	prior, err := storage.LoadSnapshot(ctx, r.deps.Blobs, SnapshotFollows)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		n.Error("there was no previous list of who we follow found in the blob store. Adding the new list of follows.")
	case err != nil:
		n.Error("failed to access the blob store to get previous list of who we follow: %v", err)
	default:
		var aged []string
		for did := range current {
			_, wasFollowed := prior[did]
			_, followsUs := followers[did]
			if wasFollowed && !followsUs {
				aged = append(aged, did)
			}
		}
		counts := r.unfollowAll(ctx, c, aged, current, func(did string) { delete(current, did) })
		n.Line("who you follow status - %s follows this week. %d users have aged out and were necessary to prune. %d were successfully unfollowed, with %d failures.",
			direction(len(current)-len(prior)), len(aged), counts.removed, counts.failed+counts.skipped)
	}

	if err := storage.SaveSnapshot(ctx, r.deps.Blobs, SnapshotFollows, current); err != nil {
		n.Error("failed to upload new map of who we follow to the blob store: %v", err)
		return false
	}
	return true
}

// unfollowAll deletes the follow record of each DID once, in sorted order
func (r *Runner) unfollowAll(ctx context.Context, c client.SocialClient, dids []string, uris models.Snapshot, onRemoved func(did string)) diffCounts {
	sort.Strings(dids)
	var counts diffCounts
	for _, did := range dids {
		uri := uris[did]
		if uri == "" {
			counts.skipped++
			continue
		}
		if err := c.Unfollow(ctx, uri); err != nil {
			r.deps.Log.Warn("unfollow failed", "did", did, "error", err)
			counts.failed++
			continue
		}
		counts.removed++
		metrics.Unfollows.WithLabelValues(JobStatus).Inc()
		if onRemoved != nil {
			onRemoved(did)
		}
	}
	return counts
}

// snapshotOf maps each actor to the URI of our follow of them
func snapshotOf(actors []models.Actor) models.Snapshot {
	snap := make(models.Snapshot, len(actors))
	for _, a := range actors {
		snap[a.DID] = a.FollowingURI
	}
	return snap
}

func direction(diff int) string {
	if diff >= 0 {
		return "up " + strconv.Itoa(diff)
	}
	return "down " + strconv.Itoa(-diff)
}

func outcome(ok bool) string {
	if ok {
		return "SUCCESS"
	}
	return "FAILURE"
}
