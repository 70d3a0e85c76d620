package panel

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/survpanel/survpanel/pkg/workerpool"
)

// RecordError describes a patient excluded from the panel, with the
// reason. Exclusion isolates the bad record; the rest of the batch is
// unaffected.
type RecordError struct {
	PatientID string `json:"patient_id"`
	Reason    string `json:"reason"`
}

func (e RecordError) Error() string {
	return fmt.Sprintf("patient %s: %s", e.PatientID, e.Reason)
}

// Result is a finished panel build.
type Result struct {
	Rows     []PeriodRow   `json:"rows"`
	Patients int           `json:"patients"`
	Excluded []RecordError `json:"excluded,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}

// BuilderOptions tune how a Builder runs the per-patient pipeline.
type BuilderOptions struct {
	Workers int  // parallel patient builds; <= 0 means workerpool default
	Strict  bool // fail the whole batch on the first bad record
}

// Builder runs the full pipeline: follow-up window, period expansion,
// censoring assignment and truncation, independently per patient, then
// concatenates into the final long-format panel.
type Builder struct {
	cfg    Config
	opts   BuilderOptions
	logger *zap.Logger
}

// NewBuilder validates the configuration once and returns a Builder.
func NewBuilder(cfg Config, opts BuilderOptions, logger *zap.Logger) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("panel config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{cfg: cfg, opts: opts, logger: logger}, nil
}

// Config returns the immutable panel constants the builder was created with.
func (b *Builder) Config() Config {
	return b.cfg
}

// BuildPatient runs the pipeline for a single patient. It is a pure
// function of the record and the builder's config; no state is shared
// between patients. The boolean reports the truncation edge case of a
// censor date past every generated period.
func (b *Builder) BuildPatient(rec PatientRecord) ([]PeriodRow, bool, error) {
	if err := validateRecord(rec); err != nil {
		return nil, false, err
	}

	end := EndOfFollowUp(rec, b.cfg)
	if end.Before(rec.Origin) {
		return nil, false, RecordError{
			PatientID: rec.PatientIDOrUnknown(),
			Reason: fmt.Sprintf("end of follow-up %s precedes origin %s",
				end.Format(DateLayout), rec.Origin.Format(DateLayout)),
		}
	}

	rows := Expand(rec, end, b.cfg)
	rows = AssignCensoring(rec, rows, b.cfg)
	rows, uncovered := Truncate(rows)
	return rows, uncovered, nil
}

// Build runs the pipeline over the whole cohort using the worker pool.
// Records are deduplicated on patient id first: identical duplicates
// collapse, conflicting ones exclude the patient as a data error.
// Output rows are in canonical (patient id, period index) order.
func (b *Builder) Build(ctx context.Context, records []PatientRecord) (*Result, error) {
	unique, excluded := Deduplicate(records)

	type patientResult struct {
		rows      []PeriodRow
		uncovered bool
		err       error
	}
	results := make([]patientResult, len(unique))

	workers := b.opts.Workers
	if workers <= 0 {
		workers = workerpool.DefaultConfig().Workers
	}
	pool, err := workerpool.NewWorkerPool(workerpool.Config{
		Workers:         workers,
		QueueSize:       len(unique),
		ShutdownTimeout: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("start worker pool: %w", err)
	}
	defer pool.Stop()

	for i := range unique {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		i := i
		if err := pool.Submit(func() error {
			rows, uncovered, err := b.BuildPatient(unique[i])
			results[i] = patientResult{rows: rows, uncovered: uncovered, err: err}
			return err
		}); err != nil {
			return nil, fmt.Errorf("submit patient build: %w", err)
		}
	}
	pool.Wait()

	res := &Result{Excluded: excluded}
	for i, pr := range results {
		switch {
		case pr.err != nil:
			var recErr RecordError
			if re, ok := pr.err.(RecordError); ok {
				recErr = re
			} else {
				recErr = RecordError{PatientID: unique[i].PatientIDOrUnknown(), Reason: pr.err.Error()}
			}
			b.logger.Warn("patient excluded from panel",
				zap.String("patient_id", recErr.PatientID),
				zap.String("reason", recErr.Reason))
			res.Excluded = append(res.Excluded, recErr)
		default:
			if pr.uncovered {
				warn := fmt.Sprintf("patient %s: censor date falls after all generated periods, rows kept unfiltered", unique[i].ID)
				b.logger.Warn("censoring window not covered by period expansion",
					zap.String("patient_id", unique[i].ID))
				res.Warnings = append(res.Warnings, warn)
			}
			res.Rows = append(res.Rows, pr.rows...)
			res.Patients++
		}
	}

	if b.opts.Strict && len(res.Excluded) > 0 {
		return nil, fmt.Errorf("strict mode: %d record(s) rejected, first: %s",
			len(res.Excluded), res.Excluded[0].Error())
	}

	sort.SliceStable(res.Rows, func(i, j int) bool {
		if res.Rows[i].PatientID != res.Rows[j].PatientID {
			return res.Rows[i].PatientID < res.Rows[j].PatientID
		}
		return res.Rows[i].PeriodIndex < res.Rows[j].PeriodIndex
	})

	return res, nil
}

// Deduplicate collapses fully identical records sharing a patient id and
// rejects ids that appear with conflicting core fields.
func Deduplicate(records []PatientRecord) ([]PatientRecord, []RecordError) {
	seen := make(map[string]PatientRecord, len(records))
	conflicting := make(map[string]bool)
	var order []string

	for _, rec := range records {
		prev, ok := seen[rec.ID]
		if !ok {
			seen[rec.ID] = rec
			order = append(order, rec.ID)
			continue
		}
		if !sameCoreFields(prev, rec) {
			conflicting[rec.ID] = true
		}
	}

	unique := make([]PatientRecord, 0, len(order))
	var excluded []RecordError
	for _, id := range order {
		if conflicting[id] {
			excluded = append(excluded, RecordError{
				PatientID: id,
				Reason:    "duplicate patient id with conflicting fields",
			})
			continue
		}
		unique = append(unique, seen[id])
	}
	return unique, excluded
}

func sameCoreFields(a, b PatientRecord) bool {
	if !a.Origin.Equal(b.Origin) || !a.LastObservation.Equal(b.LastObservation) {
		return false
	}
	switch {
	case a.EventDate == nil && b.EventDate == nil:
		return true
	case a.EventDate == nil || b.EventDate == nil:
		return false
	}
	return a.EventDate.Equal(*b.EventDate)
}

func validateRecord(rec PatientRecord) error {
	switch {
	case rec.ID == "":
		return RecordError{PatientID: "?", Reason: "missing patient id"}
	case rec.Origin.IsZero():
		return RecordError{PatientID: rec.ID, Reason: "missing origin date"}
	case rec.LastObservation.IsZero():
		return RecordError{PatientID: rec.ID, Reason: "missing last observation date"}
	}
	return nil
}

// PatientIDOrUnknown guards diagnostics against empty ids.
func (r PatientRecord) PatientIDOrUnknown() string {
	if r.ID == "" {
		return "?"
	}
	return r.ID
}
