package workerpool

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Task represents a unit of work
type Task struct {
	ID      string       // Unique task identifier
	Fn      func() error // Task function
	Created time.Time    // Task creation timestamp
}

var taskCounter atomic.Uint64

// generateTaskID generates a unique task ID
func generateTaskID() string {
	id := taskCounter.Add(1)
	return fmt.Sprintf("task-%d", id)
}

// newTask creates a new task with the given function
func newTask(fn func() error) *Task {
	return &Task{
		ID:      generateTaskID(),
		Fn:      fn,
		Created: time.Now(),
	}
}
