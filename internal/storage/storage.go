package storage

import (
	"context"
	"errors"
	"time"

	"github.com/survpanel/survpanel/internal/panel"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is one persisted panel build: the configuration snapshot it ran
// with plus summary counts and warnings.
type Run struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	Status    string       `json:"status"`
	Config    panel.Config `json:"config"`

	PatientCount  int      `json:"patient_count"`
	RowCount      int      `json:"row_count"`
	ExcludedCount int      `json:"excluded_count"`
	Warnings      []string `json:"warnings,omitempty"`
}

// RunStore is the interface for panel run persistence backends
type RunStore interface {
	// SaveRun persists a run together with its input cohort and panel rows
	SaveRun(ctx context.Context, run *Run, records []panel.PatientRecord, rows []panel.PeriodRow) error

	// GetRun returns a run by id
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns all runs, newest first
	ListRuns(ctx context.Context) ([]*Run, error)

	// GetPanel returns a run's panel rows in (patient id, period index) order
	GetPanel(ctx context.Context, id string) ([]panel.PeriodRow, error)

	// GetCohort returns the wide records a run was built from
	GetCohort(ctx context.Context, id string) ([]panel.PatientRecord, error)

	// DeleteRun removes a run and its rows
	DeleteRun(ctx context.Context, id string) error

	// Close closes the store
	Close() error
}
