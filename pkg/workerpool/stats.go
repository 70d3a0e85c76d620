package workerpool

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of pool activity
type Stats struct {
	ActiveWorkers  int64         // Workers currently running
	QueuedTasks    int           // Tasks waiting in the queue
	SubmittedTasks int64         // Total tasks submitted
	CompletedTasks int64         // Total tasks finished (including failed)
	FailedTasks    int64         // Tasks that returned an error or panicked
	TotalRuntime   time.Duration // Cumulative task execution time
}

type statsCollector struct {
	activeWorkers  atomic.Int64
	submittedTasks atomic.Int64
	completedTasks atomic.Int64
	failedTasks    atomic.Int64
	totalRuntimeNs atomic.Int64
}

func newStatsCollector() *statsCollector {
	return &statsCollector{}
}

func (s *statsCollector) incActiveWorkers() { s.activeWorkers.Add(1) }
func (s *statsCollector) decActiveWorkers() { s.activeWorkers.Add(-1) }

func (s *statsCollector) recordTaskSubmission() { s.submittedTasks.Add(1) }
func (s *statsCollector) recordTaskFailure()    { s.failedTasks.Add(1) }

func (s *statsCollector) recordTaskCompletion(d time.Duration) {
	s.completedTasks.Add(1)
	s.totalRuntimeNs.Add(int64(d))
}

func (s *statsCollector) snapshot(queued int) Stats {
	return Stats{
		ActiveWorkers:  s.activeWorkers.Load(),
		QueuedTasks:    queued,
		SubmittedTasks: s.submittedTasks.Load(),
		CompletedTasks: s.completedTasks.Load(),
		FailedTasks:    s.failedTasks.Load(),
		TotalRuntime:   time.Duration(s.totalRuntimeNs.Load()),
	}
}
