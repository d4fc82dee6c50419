// internal/tasks/interface.go
package tasks

import (
	"context"

	"rickybot/internal/models"
)

// TaskManagerInterface registers the bot jobs with the scheduler
type TaskManagerInterface interface {
	RegisterTasks() error
}

// JobRunner executes one named job to completion
type JobRunner interface {
	Run(ctx context.Context, job string) (models.Result, error)
}
