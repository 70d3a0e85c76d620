package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/survpanel/survpanel/internal/panel"
)

// EmbeddedStore is a SQLite-based embedded store for panel runs
type EmbeddedStore struct {
	db *sql.DB
}

// NewEmbeddedStore creates a new embedded store under dataPath
func NewEmbeddedStore(dataPath string) (*EmbeddedStore, error) {
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "survpanel.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &EmbeddedStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *EmbeddedStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		status TEXT NOT NULL,
		config TEXT NOT NULL,
		patients INTEGER NOT NULL,
		row_count INTEGER NOT NULL,
		excluded INTEGER NOT NULL,
		warnings TEXT
	);

	CREATE TABLE IF NOT EXISTS panel_rows (
		run_id TEXT NOT NULL,
		patient_id TEXT NOT NULL,
		period_index INTEGER NOT NULL,
		period_start TEXT NOT NULL,
		origin TEXT NOT NULL,
		end_date TEXT NOT NULL,
		last_observation TEXT NOT NULL,
		event_date TEXT,
		event TEXT NOT NULL,
		cens INTEGER NOT NULL,
		censor_date TEXT,
		censor_t TEXT,
		PRIMARY KEY (run_id, patient_id, period_index)
	);

	CREATE TABLE IF NOT EXISTS cohort_records (
		run_id TEXT NOT NULL,
		patient_id TEXT NOT NULL,
		origin TEXT NOT NULL,
		event_date TEXT,
		last_observation TEXT NOT NULL,
		time_to_event REAL,
		event_flag INTEGER,
		PRIMARY KEY (run_id, patient_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun persists a run together with its input cohort and panel rows
func (s *EmbeddedStore) SaveRun(ctx context.Context, run *Run, records []panel.PatientRecord, rows []panel.PeriodRow) error {
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	warningsJSON, err := json.Marshal(run.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, status, config, patients, row_count, excluded, warnings)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.Unix(), run.Status, string(configJSON),
		run.PatientCount, run.RowCount, run.ExcludedCount, string(warningsJSON))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO panel_rows (run_id, patient_id, period_index, period_start, origin,
		 end_date, last_observation, event_date, event, cens, censor_date, censor_t)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range rows {
		row := &rows[i]
		_, err := stmt.ExecContext(ctx,
			run.ID, row.PatientID, row.PeriodIndex,
			row.PeriodStart.Format(panel.DateLayout),
			row.Origin.Format(panel.DateLayout),
			row.EndDate.Format(panel.DateLayout),
			row.LastObservation.Format(panel.DateLayout),
			nullableDate(row.EventDate),
			row.Event.String(),
			row.Censored,
			nullableDate(row.CensorDate),
			nullableDate(row.CensorT))
		if err != nil {
			return fmt.Errorf("insert panel row: %w", err)
		}
	}

	recStmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO cohort_records (run_id, patient_id, origin, event_date,
		 last_observation, time_to_event, event_flag)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer recStmt.Close()

	for _, rec := range records {
		var tte interface{}
		if rec.TimeToEvent != nil {
			tte = *rec.TimeToEvent
		}
		var flag interface{}
		if rec.EventFlag != nil {
			flag = *rec.EventFlag
		}
		_, err := recStmt.ExecContext(ctx,
			run.ID, rec.ID,
			rec.Origin.Format(panel.DateLayout),
			nullableDate(rec.EventDate),
			rec.LastObservation.Format(panel.DateLayout),
			tte, flag)
		if err != nil {
			return fmt.Errorf("insert cohort record: %w", err)
		}
	}

	return tx.Commit()
}

// GetCohort returns the wide records a run was built from
func (s *EmbeddedStore) GetCohort(ctx context.Context, id string) ([]panel.PatientRecord, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT patient_id, origin, event_date, last_observation, time_to_event, event_flag
		 FROM cohort_records WHERE run_id = ? ORDER BY patient_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []panel.PatientRecord
	for rows.Next() {
		var (
			rec       panel.PatientRecord
			origin    string
			lastObs   string
			eventDate sql.NullString
			tte       sql.NullFloat64
			flag      sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &origin, &eventDate, &lastObs, &tte, &flag); err != nil {
			return nil, err
		}
		if rec.Origin, err = time.Parse(panel.DateLayout, origin); err != nil {
			return nil, fmt.Errorf("corrupt origin: %w", err)
		}
		if rec.LastObservation, err = time.Parse(panel.DateLayout, lastObs); err != nil {
			return nil, fmt.Errorf("corrupt last observation: %w", err)
		}
		if rec.EventDate, err = parseNullableDate(eventDate); err != nil {
			return nil, err
		}
		if tte.Valid {
			v := tte.Float64
			rec.TimeToEvent = &v
		}
		if flag.Valid {
			v := int(flag.Int64)
			rec.EventFlag = &v
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetRun returns a run by id
func (s *EmbeddedStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, status, config, patients, row_count, excluded, warnings
		 FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns all runs, newest first
func (s *EmbeddedStore) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, status, config, patients, row_count, excluded, warnings
		 FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc rowScanner) (*Run, error) {
	var (
		run          Run
		createdAt    int64
		configJSON   string
		warningsJSON sql.NullString
	)
	err := sc.Scan(&run.ID, &createdAt, &run.Status, &configJSON,
		&run.PatientCount, &run.RowCount, &run.ExcludedCount, &warningsJSON)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	if err := json.Unmarshal([]byte(configJSON), &run.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if warningsJSON.Valid && warningsJSON.String != "" {
		if err := json.Unmarshal([]byte(warningsJSON.String), &run.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings: %w", err)
		}
	}
	return &run, nil
}

// GetPanel returns a run's panel rows in (patient id, period index) order
func (s *EmbeddedStore) GetPanel(ctx context.Context, id string) ([]panel.PeriodRow, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT patient_id, period_index, period_start, origin, end_date,
		 last_observation, event_date, event, cens, censor_date, censor_t
		 FROM panel_rows WHERE run_id = ? ORDER BY patient_id, period_index`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var panelRows []panel.PeriodRow
	for rows.Next() {
		var (
			pr                             panel.PeriodRow
			periodStart, origin, endDate   string
			lastObs                        string
			eventDate, censorDate, censorT sql.NullString
			event                          string
		)
		err := rows.Scan(&pr.PatientID, &pr.PeriodIndex, &periodStart, &origin, &endDate,
			&lastObs, &eventDate, &event, &pr.Censored, &censorDate, &censorT)
		if err != nil {
			return nil, err
		}

		if pr.PeriodStart, err = time.Parse(panel.DateLayout, periodStart); err != nil {
			return nil, fmt.Errorf("corrupt period start: %w", err)
		}
		if pr.Origin, err = time.Parse(panel.DateLayout, origin); err != nil {
			return nil, fmt.Errorf("corrupt origin: %w", err)
		}
		if pr.EndDate, err = time.Parse(panel.DateLayout, endDate); err != nil {
			return nil, fmt.Errorf("corrupt end date: %w", err)
		}
		if pr.LastObservation, err = time.Parse(panel.DateLayout, lastObs); err != nil {
			return nil, fmt.Errorf("corrupt last observation: %w", err)
		}
		if pr.EventDate, err = parseNullableDate(eventDate); err != nil {
			return nil, err
		}
		if pr.CensorDate, err = parseNullableDate(censorDate); err != nil {
			return nil, err
		}
		if pr.CensorT, err = parseNullableDate(censorT); err != nil {
			return nil, err
		}

		switch event {
		case "1":
			pr.Event = panel.EventOccurred
		case "":
			pr.Event = panel.EventUnknown
		default:
			pr.Event = panel.EventNone
		}

		panelRows = append(panelRows, pr)
	}
	return panelRows, rows.Err()
}

// DeleteRun removes a run and its rows
func (s *EmbeddedStore) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM panel_rows WHERE run_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cohort_records WHERE run_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the store
func (s *EmbeddedStore) Close() error {
	return s.db.Close()
}

func nullableDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(panel.DateLayout)
}

func parseNullableDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(panel.DateLayout, s.String)
	if err != nil {
		return nil, fmt.Errorf("corrupt date column: %w", err)
	}
	return &t, nil
}
