package workerpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{Workers: 4, QueueSize: 10, ShutdownTimeout: time.Second}, false},
		{"zero workers", Config{Workers: 0, QueueSize: 10}, true},
		{"negative workers", Config{Workers: -1, QueueSize: 10}, true},
		{"negative queue", Config{Workers: 1, QueueSize: -1}, true},
		{"negative timeout", Config{Workers: 1, QueueSize: 0, ShutdownTimeout: -time.Second}, true},
		{"unbuffered queue is fine", Config{Workers: 1, QueueSize: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error should wrap ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestNewWorkerPool_InvalidConfig(t *testing.T) {
	if _, err := NewWorkerPool(Config{Workers: 0}); err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestPool_ExecutesAllTasks(t *testing.T) {
	pool, err := NewWorkerPool(Config{Workers: 4, QueueSize: 16, ShutdownTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}

	var counter atomic.Int64
	const n = 100
	for i := 0; i < n; i++ {
		if err := pool.Submit(func() error {
			counter.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	pool.Wait()

	if got := counter.Load(); got != n {
		t.Errorf("executed %d tasks, want %d", got, n)
	}

	stats := pool.Stats()
	if stats.SubmittedTasks != n {
		t.Errorf("submitted = %d, want %d", stats.SubmittedTasks, n)
	}
	if stats.CompletedTasks != n {
		t.Errorf("completed = %d, want %d", stats.CompletedTasks, n)
	}
	if stats.FailedTasks != 0 {
		t.Errorf("failed = %d, want 0", stats.FailedTasks)
	}

	if err := pool.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestPool_ErrorHandler(t *testing.T) {
	var mu sync.Mutex
	var handled []error

	pool, err := NewWorkerPool(Config{
		Workers:         2,
		QueueSize:       4,
		ShutdownTimeout: 5 * time.Second,
		ErrorHandler: func(err error) {
			mu.Lock()
			handled = append(handled, err)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}

	taskErr := errors.New("boom")
	pool.Submit(func() error { return taskErr })
	pool.Submit(func() error { panic("kaboom") })
	pool.Submit(func() error { return nil })
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 2 {
		t.Fatalf("handled %d errors, want 2", len(handled))
	}
	for _, err := range handled {
		var te *TaskError
		if !errors.As(err, &te) {
			t.Errorf("handler received %T, want *TaskError", err)
		}
	}

	if stats := pool.Stats(); stats.FailedTasks != 2 {
		t.Errorf("failed = %d, want 2", stats.FailedTasks)
	}
	pool.Stop()
}

func TestPool_PanicDoesNotKillWorker(t *testing.T) {
	pool, err := NewWorkerPool(Config{Workers: 1, QueueSize: 4, ShutdownTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}

	pool.Submit(func() error { panic("first task panics") })

	var ran atomic.Bool
	pool.Submit(func() error {
		ran.Store(true)
		return nil
	})
	pool.Wait()

	if !ran.Load() {
		t.Error("worker did not survive the panic")
	}
	pool.Stop()
}

func TestPool_SubmitAfterStop(t *testing.T) {
	pool, err := NewWorkerPool(Config{Workers: 1, QueueSize: 1, ShutdownTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}
	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !pool.IsClosed() {
		t.Error("pool should report closed after Stop")
	}
	if err := pool.Submit(func() error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit after Stop: err = %v, want ErrPoolClosed", err)
	}
}

func TestPool_StopIdempotent(t *testing.T) {
	pool := NewDefaultWorkerPool()
	if err := pool.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := pool.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
