package jobs

import (
	"context"
	"errors"
	"time"

	"rickybot/internal/bucket"
	"rickybot/internal/models"
	"rickybot/internal/storage"
)

// aggregate folds yesterday's per-run follow sets into the bucket's list
func (r *Runner) aggregate(ctx context.Context, now time.Time) models.Result {
	log := r.deps.Log.With("job", JobAggregate)
	yesterday := now.AddDate(0, 0, -1)
	day := bucket.Yesterday(now)

	creds, err := r.loadCredentials(ctx)
	if err != nil {
		return models.Failure("ERROR - " + err.Error())
	}

	n := NewNarrative(now, log)
	finish := func(res models.Result) models.Result {
		r.publish(ctx, creds, r.deps.Files.Aggregate, "Logging follow aggregation on "+now.Format(time.DateOnly), n)
		return res
	}

	if err := r.deps.Store.Ping(ctx); err != nil {
		return finish(models.Failure(n.Error("failed to connect to the keyed store: %v", err)))
	}

	union := map[string]struct{}{}

	exists, err := r.deps.Blobs.Head(ctx, day.String())
	if err != nil {
		return finish(models.Failure(n.Error("failed to check the blob store for %s: %v", day, err)))
	}
	if exists {
		if yesterday.Weekday() == time.Saturday {
			n.Line("Items were found in the %s blob from Friday's runs. Aggregating Saturday's results to that existing data.", day)
		} else {
			n.Warn("a list existed in the blob store when there should have been nothing found. Aggregating with current results.")
		}
		prior, err := storage.LoadList(ctx, r.deps.Blobs, day.String())
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return finish(models.Failure(n.Error("failed to get the %s list from the blob store: %v", day, err)))
		}
		for _, did := range prior {
			union[did] = struct{}{}
		}
	} else {
		log.Info("clear to proceed, no list in the blob store", "bucket", day)
	}

	runs := 0
	rec, err := r.deps.Store.GetRecord(ctx, day.String())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		n.Warn("found no items in this key, runs may have failed yesterday")
	case err != nil:
		return finish(models.Failure(n.Error("failed to check key's existence: %v", err)))
	default:
		runs = len(rec.Attributes)
		for _, dids := range rec.Attributes {
			for _, did := range dids {
				union[did] = struct{}{}
			}
		}
	}

	list := storage.SortedSet(union)
	if err := storage.SaveList(ctx, r.deps.Blobs, day.String(), list); err != nil {
		return finish(models.Failure(n.Error("failed to upload the list to the blob store: %v", err)))
	}

	// the record is only dropped once its follows are safe in the list
	if rec != nil {
		if err := r.deps.Store.DeleteRecord(ctx, day.String()); err != nil {
			n.Error("failed to delete item %s from the keyed store: %v", day, err)
		}
	}
	n.Line("Successfully aggregated follows from %s. Today there were %d runs, with a total of %d follows.", day, runs, len(list))

	return finish(models.OK("Successfully aggregated follows."))
}
