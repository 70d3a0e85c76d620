package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/survpanel/survpanel/internal/panel"
)

// Columns names the wide-table columns holding each record field.
// EventDate, TimeToEvent and EventFlag are optional: an empty name (or a
// missing column) leaves the field unset.
type Columns struct {
	ID              string
	Origin          string
	EventDate       string
	LastObservation string
	TimeToEvent     string
	EventFlag       string
}

// DefaultColumns matches the conventional wide cohort export.
func DefaultColumns() Columns {
	return Columns{
		ID:              "PatientID",
		Origin:          "t0",
		EventDate:       "DateOfDeath",
		LastObservation: "maxvisit",
		TimeToEvent:     "OS",
		EventFlag:       "EVENT",
	}
}

// RecordError is a per-row ingest failure. Bad rows are reported and
// skipped; they never abort the batch.
type RecordError struct {
	Line      int    `json:"line"`
	PatientID string `json:"patient_id,omitempty"`
	Reason    string `json:"reason"`
}

func (e RecordError) Error() string {
	return fmt.Sprintf("line %d (patient %q): %s", e.Line, e.PatientID, e.Reason)
}

// Cohort is the parsed wide table: the usable records plus the rows that
// failed to parse.
type Cohort struct {
	Records []panel.PatientRecord `json:"records"`
	Errors  []RecordError         `json:"errors,omitempty"`
}

// ReadWide parses a wide-format cohort CSV. Required columns are the
// patient id, origin and last observation; their absence from the header
// is an input error. Everything row-level (unparseable dates, missing
// values) is isolated per record.
func ReadWide(r io.Reader, cols Columns) (*Cohort, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{cols.ID, cols.Origin, cols.LastObservation} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	cohort := &Cohort{}
	line := 1
	for {
		line++
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			cohort.Errors = append(cohort.Errors, RecordError{Line: line, Reason: err.Error()})
			continue
		}

		rec, recErr := parseRecord(fields, idx, cols)
		if recErr != nil {
			recErr.Line = line
			cohort.Errors = append(cohort.Errors, *recErr)
			continue
		}
		cohort.Records = append(cohort.Records, rec)
	}
	return cohort, nil
}

func parseRecord(fields []string, idx map[string]int, cols Columns) (panel.PatientRecord, *RecordError) {
	cell := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}

	rec := panel.PatientRecord{ID: cell(cols.ID)}
	if rec.ID == "" {
		return rec, &RecordError{Reason: "missing patient id"}
	}

	origin, err := parseDate(cell(cols.Origin))
	if err != nil || origin == nil {
		return rec, &RecordError{PatientID: rec.ID, Reason: fmt.Sprintf("origin date: %v", errOrMissing(err))}
	}
	rec.Origin = *origin

	lastObs, err := parseDate(cell(cols.LastObservation))
	if err != nil || lastObs == nil {
		return rec, &RecordError{PatientID: rec.ID, Reason: fmt.Sprintf("last observation date: %v", errOrMissing(err))}
	}
	rec.LastObservation = *lastObs

	if cols.EventDate != "" {
		eventDate, err := parseDate(cell(cols.EventDate))
		if err != nil {
			return rec, &RecordError{PatientID: rec.ID, Reason: fmt.Sprintf("event date: %v", err)}
		}
		rec.EventDate = eventDate
	}

	if cols.TimeToEvent != "" {
		if v := cell(cols.TimeToEvent); v != "" {
			tte, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return rec, &RecordError{PatientID: rec.ID, Reason: fmt.Sprintf("time to event: %v", err)}
			}
			rec.TimeToEvent = &tte
		}
	}
	if cols.EventFlag != "" {
		if v := cell(cols.EventFlag); v != "" {
			flag, err := strconv.Atoi(v)
			if err != nil {
				return rec, &RecordError{PatientID: rec.ID, Reason: fmt.Sprintf("event flag: %v", err)}
			}
			rec.EventFlag = &flag
		}
	}

	return rec, nil
}

// parseDate returns nil for an empty cell (nullable dates).
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(panel.DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func errOrMissing(err error) string {
	if err != nil {
		return err.Error()
	}
	return "missing value"
}
