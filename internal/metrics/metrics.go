package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Follows = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rickybot_follows_total",
	Help: "Number of accounts followed, by where they were found",
}, []string{"source"})

var Unfollows = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rickybot_unfollows_total",
	Help: "Number of follow records deleted, by job",
}, []string{"job"})

var PostsScanned = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rickybot_posts_scanned_total",
	Help: "Number of feed posts examined, by outcome",
}, []string{"outcome"})

var Classifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rickybot_classifications_total",
	Help: "Number of images classified, by result",
}, []string{"result"})

var JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rickybot_job_runs_total",
	Help: "Number of job invocations, by job and status code",
}, []string{"job", "status"})

var JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "rickybot_job_duration_seconds",
	Help:    "Wall time of job invocations",
	Buckets: prometheus.ExponentialBuckets(1, 2, 12),
}, []string{"job"})

// ObserveJob records one finished invocation
func ObserveJob(job string, status int, took time.Duration) {
	JobRuns.WithLabelValues(job, strconv.Itoa(status)).Inc()
	JobDuration.WithLabelValues(job).Observe(took.Seconds())
}

// Serve exposes /metrics on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
