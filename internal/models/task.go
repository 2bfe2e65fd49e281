package models

import (
	"errors"
	"time"
)

// ErrInvalidParams is returned when task parameters fail validation.
var ErrInvalidParams = errors.New("invalid task params")

// TaskStatus is the lifecycle state of a task.
//
//	pending -> running -> completed
//	                   -> failed
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Progress is the last reported progress of a running task.
type Progress struct {
	Total      int    `json:"total"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Current    string `json:"current"`
	Percentage int    `json:"percentage"`
}

// TaskParams is the typed parameter set of a task. The task type tag is
// derived from the concrete params type.
type TaskParams interface {
	TaskType() string
	Validate() error
}

// Task is a tracked long-running job.
type Task struct {
	ID           string     `json:"task_id"`
	Type         string     `json:"task_type"`
	Status       TaskStatus `json:"status"`
	Progress     Progress   `json:"progress"`
	Params       TaskParams `json:"params"`
	StartTime    *time.Time `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Clone returns a copy that shares nothing mutable with t.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.StartTime != nil {
		st := *t.StartTime
		c.StartTime = &st
	}
	if t.EndTime != nil {
		et := *t.EndTime
		c.EndTime = &et
	}
	if p, ok := t.Params.(DownloadParams); ok {
		c.Params = p.clone()
	}
	return &c
}
