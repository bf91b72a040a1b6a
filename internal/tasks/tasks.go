// Package tasks provides the personal task list the agent manages on
// the user's behalf.
package tasks

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a task id does not exist.
var ErrNotFound = errors.New("task not found")

// Task is one item on the user's list.
type Task struct {
	ID        string     `json:"id"` // UUIDv7
	Title     string     `json:"title"`
	Notes     string     `json:"notes,omitempty"`
	Due       *time.Time `json:"due,omitempty"`
	Done      bool       `json:"done"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Overdue reports whether the task has a due date in the past and is
// not done.
func (t *Task) Overdue(now time.Time) bool {
	return !t.Done && t.Due != nil && t.Due.Before(now)
}
