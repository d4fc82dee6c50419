// Package jobs implements the four scheduled rickybot jobs: follow,
// aggregate, prune and status.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rickybot/internal/client"
	"rickybot/internal/journal"
	"rickybot/internal/metrics"
	"rickybot/internal/models"
	"rickybot/internal/secrets"
	"rickybot/internal/storage"
)

const (
	JobFollow    = "follow"
	JobAggregate = "aggregate"
	JobPrune     = "prune"
	JobStatus    = "status"
)

// Names lists every job in registration order
var Names = []string{JobFollow, JobAggregate, JobPrune, JobStatus}

// ErrUnknownJob is returned by Run for a name not in Names
var ErrUnknownJob = errors.New("unknown job")

type Classifier interface {
	Ready(ctx context.Context) error
	Classify(ctx context.Context, imageURL string) (bool, error)
}

// JournalFactory builds the remote log writer once credentials are known
type JournalFactory func(token, repo string) journal.Appender

// LogFiles names the remote log file each job appends to
type LogFiles struct {
	Follow    string
	Prune     string
	Aggregate string
	Status    string
}

type Deps struct {
	Secrets    secrets.Source
	Store      storage.KeyedStore
	Blobs      storage.BlobStore
	Dialer     client.Dialer
	Classifier Classifier
	Journal    JournalFactory
	Files      LogFiles
	Location   *time.Location
	// Now defaults to time.Now
	Now func() time.Time
	Log *slog.Logger
}

type Runner struct {
	deps Deps
}

func NewRunner(deps Deps) *Runner {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Runner{deps: deps}
}

// Run executes the named job once
func (r *Runner) Run(ctx context.Context, job string) (models.Result, error) {
	switch job {
	case JobFollow:
		return r.Follow(ctx), nil
	case JobAggregate:
		return r.Aggregate(ctx), nil
	case JobPrune:
		return r.Prune(ctx), nil
	case JobStatus:
		return r.Status(ctx), nil
	default:
		return models.Result{}, fmt.Errorf("%w: %s", ErrUnknownJob, job)
	}
}

func (r *Runner) Follow(ctx context.Context) models.Result {
	return r.observe(JobFollow, func(now time.Time) models.Result { return r.follow(ctx, now) })
}

func (r *Runner) Aggregate(ctx context.Context) models.Result {
	return r.observe(JobAggregate, func(now time.Time) models.Result { return r.aggregate(ctx, now) })
}

func (r *Runner) Prune(ctx context.Context) models.Result {
	return r.observe(JobPrune, func(now time.Time) models.Result { return r.prune(ctx, now) })
}

func (r *Runner) Status(ctx context.Context) models.Result {
	return r.observe(JobStatus, func(now time.Time) models.Result { return r.status(ctx, now) })
}

func (r *Runner) observe(job string, fn func(now time.Time) models.Result) models.Result {
	started := time.Now()
	res := fn(r.deps.Now().In(r.deps.Location))
	metrics.ObserveJob(job, res.StatusCode, time.Since(started))

	log := r.deps.Log.With("job", job, "status", res.StatusCode)
	if res.Failed() {
		log.Error("job failed", "body", res.Body)
	} else {
		log.Info("job finished", "body", res.Body)
	}
	return res
}

// credentials holds what every job needs from the secret store
type credentials struct {
	secrets  secrets.Map
	username string
	password string
	journal  journal.Appender
}

// loadCredentials resolves the shared secrets plus extra. Any failure here
// is fatal and cannot be written to the remote log.
func (r *Runner) loadCredentials(ctx context.Context, extra ...string) (*credentials, error) {
	m, err := r.deps.Secrets.Lookup(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reach the secret store: %w", err)
	}
	required := append([]string{
		secrets.KeyBskyUsername,
		secrets.KeyBskyPassword,
		secrets.KeyGitHubToken,
		secrets.KeyGitHubRepo,
	}, extra...)
	if err := m.Require(required...); err != nil {
		return nil, err
	}

	return &credentials{
		secrets:  m,
		username: m[secrets.KeyBskyUsername],
		password: m[secrets.KeyBskyPassword],
		journal:  r.deps.Journal(m[secrets.KeyGitHubToken], m[secrets.KeyGitHubRepo]),
	}, nil
}

// publish appends the narrative to the remote log. Failures are only logged.
func (r *Runner) publish(ctx context.Context, creds *credentials, file, message string, n *Narrative) {
	if err := creds.journal.Append(ctx, file, message, n.String()); err != nil {
		r.deps.Log.Error("failed to append run log", "file", file, "error", err)
		return
	}
	r.deps.Log.Debug("run log appended", "file", file, "warnings", n.Warnings(), "errors", n.Errors())
}

// collectActors follows cursors until the listing is exhausted
func collectActors(ctx context.Context, fetch func(ctx context.Context, cursor string) (*models.ActorPage, error)) ([]models.Actor, error) {
	var all []models.Actor
	cursor := ""
	for {
		page, err := fetch(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Actors...)
		if page.Cursor == "" || len(page.Actors) == 0 {
			return all, nil
		}
		cursor = page.Cursor
	}
}
