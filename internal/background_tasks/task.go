package background_tasks

import (
	"context"
	"time"
)

const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Task is the unit of work run once per tick.
type Task struct {
	Name     string
	Function func(ctx context.Context) error
}

// Execution records the execution details of a task.
type Execution struct {
	Tick      uint64
	StartedAt time.Time
	EndedAt   time.Time
	Status    string
	Error     string
}
