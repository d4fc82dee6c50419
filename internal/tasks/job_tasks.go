// internal/tasks/job_tasks.go
package tasks

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ersauravadhikari/blueberry-go/blueberry"

	"rickybot/internal/config"
	"rickybot/internal/jobs"
	"rickybot/internal/models"
)

// Ensure JobTaskManager implements TaskManagerInterface
var _ TaskManagerInterface = (*JobTaskManager)(nil)

const (
	paramTrigger    = "trigger"
	triggerSchedule = "schedule"
	triggerManual   = "manual"
)

type JobTaskManager struct {
	blueBerry *blueberry.BlueBerry
	runner    JobRunner
	config    *config.Config
	log       *slog.Logger
}

func NewJobTaskManager(bb *blueberry.BlueBerry, runner JobRunner, cfg *config.Config, log *slog.Logger) *JobTaskManager {
	return &JobTaskManager{
		blueBerry: bb,
		runner:    runner,
		config:    cfg,
		log:       log,
	}
}

// Schedules maps each job name to its cron expression
func (tm *JobTaskManager) Schedules() map[string]string {
	return map[string]string{
		jobs.JobFollow:    tm.config.FollowSchedule,
		jobs.JobAggregate: tm.config.AggregateSchedule,
		jobs.JobPrune:     tm.config.PruneSchedule,
		jobs.JobStatus:    tm.config.StatusSchedule,
	}
}

// RegisterTasks registers every job with BlueBerry and schedules it
func (tm *JobTaskManager) RegisterTasks() error {
	schema := blueberry.NewTaskSchema(blueberry.TaskParamDefinition{
		paramTrigger: blueberry.TypeString,
	})

	schedules := tm.Schedules()
	for _, name := range jobs.Names {
		task, err := tm.blueBerry.RegisterTask(name, tm.taskFunc(name), schema)
		if err != nil {
			return fmt.Errorf("failed to register %s task: %w", name, err)
		}

		schedule := schedules[name]
		if _, err := task.RegisterSchedule(blueberry.TaskParams{
			paramTrigger: triggerSchedule,
		}, schedule); err != nil {
			return fmt.Errorf("failed to schedule %s task: %w", name, err)
		}

		tm.log.Info("scheduled job", "job", name, "schedule", schedule)
	}

	return nil
}

// taskFunc adapts one job to the BlueBerry task signature
func (tm *JobTaskManager) taskFunc(job string) func(tctx *blueberry.TaskContext) error {
	return func(tctx *blueberry.TaskContext) error {
		ctx := tctx.GetContext()
		logger := tctx.GetLogger()
		params := tctx.GetParams()

		trigger, ok := params[paramTrigger].(string)
		if !ok || trigger == "" {
			trigger = triggerManual
		}

		logger.Info(fmt.Sprintf("Starting %s job (trigger: %s)", job, trigger))
		started := time.Now()

		res, err := tm.runner.Run(ctx, job)
		if err != nil {
			return logger.Error(fmt.Sprintf("Failed to run %s job: %v", job, err))
		}

		msg, failed := describe(job, res, time.Since(started))
		switch {
		case failed:
			return logger.Error(msg)
		case res.StatusCode == http.StatusMultiStatus:
			logger.Info(msg)
		default:
			logger.Success(msg)
		}
		return nil
	}
}

// describe renders a job result for the dashboard log and reports whether
// the task should be marked failed
func describe(job string, res models.Result, took time.Duration) (string, bool) {
	msg := fmt.Sprintf("%s job finished with %d in %v: %s", job, res.StatusCode, took.Round(time.Millisecond), res.Body)
	return msg, res.Failed()
}
