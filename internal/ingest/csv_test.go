package ingest

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/survpanel/survpanel/internal/panel"
)

func TestReadWide(t *testing.T) {
	input := strings.Join([]string{
		"PatientID,t0,DateOfDeath,maxvisit,OS,EVENT",
		"a,2018-01-01,2018-03-15,2018-03-10,2.4,1",
		"b,2019-01-01,,2019-02-01,1.0,0",
		"c,not-a-date,,2019-02-01,,",
		",2019-01-01,,2019-02-01,,",
		"d,2019-01-01,,2019-02-01,oops,",
	}, "\n")

	cohort, err := ReadWide(strings.NewReader(input), DefaultColumns())
	if err != nil {
		t.Fatalf("ReadWide: %v", err)
	}

	if len(cohort.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(cohort.Records))
	}
	if len(cohort.Errors) != 3 {
		t.Fatalf("got %d record errors, want 3: %+v", len(cohort.Errors), cohort.Errors)
	}

	a := cohort.Records[0]
	if a.ID != "a" || a.EventDate == nil || a.EventDate.Format(panel.DateLayout) != "2018-03-15" {
		t.Errorf("record a parsed wrong: %+v", a)
	}
	if a.TimeToEvent == nil || *a.TimeToEvent != 2.4 || a.EventFlag == nil || *a.EventFlag != 1 {
		t.Errorf("record a diagnostics fields parsed wrong: %+v", a)
	}

	b := cohort.Records[1]
	if b.EventDate != nil {
		t.Errorf("record b: empty event date should stay nil")
	}

	// Bad rows keep their line numbers for reporting.
	for _, re := range cohort.Errors {
		if re.Line < 2 {
			t.Errorf("record error missing line number: %+v", re)
		}
	}
}

func TestReadWide_MissingRequiredColumn(t *testing.T) {
	input := "PatientID,DateOfDeath,maxvisit\na,2018-03-15,2018-03-10\n"
	if _, err := ReadWide(strings.NewReader(input), DefaultColumns()); err == nil {
		t.Error("expected error for missing t0 column")
	}
}

func TestWritePanel(t *testing.T) {
	event := mustDate(t, "2018-03-15")
	rows := []panel.PeriodRow{
		{
			PatientID:       "a",
			PeriodIndex:     0,
			PeriodStart:     mustDate(t, "2018-01-01"),
			Origin:          mustDate(t, "2018-01-01"),
			EndDate:         event,
			LastObservation: mustDate(t, "2018-03-10"),
			EventDate:       &event,
			Event:           panel.EventNone,
		},
		{
			PatientID:       "b",
			PeriodIndex:     3,
			PeriodStart:     mustDate(t, "2019-04-01"),
			Origin:          mustDate(t, "2019-01-01"),
			EndDate:         mustDate(t, "2020-10-01"),
			LastObservation: mustDate(t, "2019-02-01"),
			Event:           panel.EventUnknown,
			Censored:        1,
		},
	}

	var buf bytes.Buffer
	if err := WritePanel(&buf, rows); err != nil {
		t.Fatalf("WritePanel: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0] != strings.Join(PanelHeader, ",") {
		t.Errorf("header = %s", lines[0])
	}
	if lines[1] != "a,0,2018-01-01,2018-01-01,2018-03-15,2018-03-10,2018-03-15,0,0,," {
		t.Errorf("event row = %s", lines[1])
	}
	// Unknown EVENT serializes as an empty cell.
	if lines[2] != "b,3,2019-04-01,2019-01-01,2020-10-01,2019-02-01,,,1,," {
		t.Errorf("censored row = %s", lines[2])
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(panel.DateLayout, s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}
