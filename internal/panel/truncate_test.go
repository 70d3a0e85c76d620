package panel

import (
	"testing"
)

func buildRows(t *testing.T, rec PatientRecord, cfg Config) []PeriodRow {
	t.Helper()
	rows := Expand(rec, EndOfFollowUp(rec, cfg), cfg)
	return AssignCensoring(rec, rows, cfg)
}

func TestTruncate_CensoredPatient(t *testing.T) {
	cfg := testConfig(t)
	rec := PatientRecord{
		ID:              "b",
		Origin:          date(t, "2019-01-01"),
		LastObservation: date(t, "2019-02-01"),
	}
	rows, uncovered := Truncate(buildRows(t, rec, cfg))
	if uncovered {
		t.Fatal("unexpected uncovered censoring window")
	}

	// censor date 2019-03-03; first period at/after it starts 2019-04-01.
	wantStarts := []string{"2019-01-01", "2019-01-31", "2019-03-02", "2019-04-01"}
	if len(rows) != len(wantStarts) {
		t.Fatalf("got %d rows, want %d", len(rows), len(wantStarts))
	}
	censorT := date(t, "2019-04-01")
	for i, row := range rows {
		if want := date(t, wantStarts[i]); !row.PeriodStart.Equal(want) {
			t.Errorf("row %d: period start = %s, want %s", i, row.PeriodStart.Format(DateLayout), wantStarts[i])
		}
		if row.CensorT == nil || !row.CensorT.Equal(censorT) {
			t.Errorf("row %d: censor_t not set to 2019-04-01", i)
		}
	}

	last := rows[len(rows)-1]
	if last.Censored != 1 || last.Event != EventUnknown {
		t.Errorf("terminal row: CENS=%d EVENT=%v, want CENS=1 EVENT=unknown", last.Censored, last.Event)
	}
	for _, row := range rows[:len(rows)-1] {
		if row.Censored != 0 {
			t.Errorf("non-terminal row at %s has CENS=1", row.PeriodStart.Format(DateLayout))
		}
	}
}

func TestTruncate_NonCandidateUntouched(t *testing.T) {
	cfg := testConfig(t)
	rec := PatientRecord{
		ID:              "a",
		Origin:          date(t, "2018-01-01"),
		EventDate:       datePtr(t, "2018-03-15"),
		LastObservation: date(t, "2018-03-10"),
	}
	expanded := buildRows(t, rec, cfg)
	rows, uncovered := Truncate(expanded)
	if uncovered {
		t.Fatal("unexpected uncovered censoring window")
	}
	if len(rows) != len(expanded) {
		t.Errorf("non-candidate rows were truncated: %d of %d retained", len(rows), len(expanded))
	}
	for i, row := range rows {
		if row.CensorT != nil {
			t.Errorf("row %d: censor_t set for non-candidate", i)
		}
	}
}

func TestTruncate_CensorDateOnPeriodBoundary(t *testing.T) {
	cfg := testConfig(t)
	// Last visit on origin day: censor date lands exactly on the period-1
	// boundary, which becomes the terminal row with CENS still 0 (the flag
	// requires the period to start strictly past the censor date).
	rec := PatientRecord{
		ID:              "x",
		Origin:          date(t, "2019-01-01"),
		LastObservation: date(t, "2019-01-01"),
	}
	rows, uncovered := Truncate(buildRows(t, rec, cfg))
	if uncovered {
		t.Fatal("unexpected uncovered censoring window")
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	last := rows[1]
	if !last.PeriodStart.Equal(date(t, "2019-01-31")) {
		t.Errorf("terminal period start = %s, want 2019-01-31", last.PeriodStart.Format(DateLayout))
	}
	if last.Censored != 0 || last.Event != EventNone {
		t.Errorf("terminal row on censor boundary: CENS=%d EVENT=%v, want 0/0", last.Censored, last.Event)
	}
}

func TestTruncate_UncoveredCensoringWindow(t *testing.T) {
	// Hand-built rows with a censor date past every generated period: the
	// defensive edge case expansion is designed to prevent. All rows stay.
	censorDate := datePtr(t, "2019-12-01")
	rows := []PeriodRow{
		{PatientID: "z", PeriodIndex: 0, PeriodStart: date(t, "2019-01-01"), CensorDate: censorDate},
		{PatientID: "z", PeriodIndex: 1, PeriodStart: date(t, "2019-01-31"), CensorDate: censorDate},
	}
	kept, uncovered := Truncate(rows)
	if !uncovered {
		t.Error("expected uncovered censoring window to be flagged")
	}
	if len(kept) != 2 {
		t.Errorf("got %d rows, want all 2 retained", len(kept))
	}
}

func TestTruncate_EmptyInput(t *testing.T) {
	rows, uncovered := Truncate(nil)
	if rows != nil || uncovered {
		t.Errorf("Truncate(nil) = %v, %v; want nil, false", rows, uncovered)
	}
}
