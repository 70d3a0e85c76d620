package panel

import (
	"testing"
	"time"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		t.Fatalf("bad test date %q: %v", s, err)
	}
	return d
}

func datePtr(t *testing.T, s string) *time.Time {
	t.Helper()
	d := date(t, s)
	return &d
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		PeriodLengthDays: 30,
		Cutoff:           date(t, "2020-10-01"),
		MaxFollowUpDays:  2160,
		GraceDays:        30,
	}
}

func TestEndOfFollowUp(t *testing.T) {
	cfg := testConfig(t)

	tests := []struct {
		name string
		rec  PatientRecord
		want string
	}{
		{
			name: "capped by administrative cutoff",
			rec: PatientRecord{
				ID:              "p1",
				Origin:          date(t, "2019-01-01"),
				LastObservation: date(t, "2020-09-30"),
			},
			want: "2020-10-01",
		},
		{
			name: "capped by relative follow-up limit",
			rec: PatientRecord{
				ID:              "p2",
				Origin:          date(t, "2014-01-01"),
				LastObservation: date(t, "2019-12-01"),
			},
			// 2014-01-01 + 2160 days
			want: "2019-12-01",
		},
		{
			name: "tightened by event date",
			rec: PatientRecord{
				ID:              "p3",
				Origin:          date(t, "2018-01-01"),
				EventDate:       datePtr(t, "2018-03-15"),
				LastObservation: date(t, "2018-03-10"),
			},
			want: "2018-03-15",
		},
		{
			name: "event after administrative end does not extend the window",
			rec: PatientRecord{
				ID:              "p4",
				Origin:          date(t, "2019-01-01"),
				EventDate:       datePtr(t, "2021-01-01"),
				LastObservation: date(t, "2020-12-01"),
			},
			want: "2020-10-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EndOfFollowUp(tt.rec, cfg)
			if want := date(t, tt.want); !got.Equal(want) {
				t.Errorf("EndOfFollowUp() = %s, want %s", got.Format(DateLayout), tt.want)
			}
			if got.Before(tt.rec.Origin) && tt.rec.EventDate == nil {
				t.Errorf("end of follow-up precedes origin")
			}
			if admin := AdministrativeEnd(tt.rec, cfg); admin.After(cfg.Cutoff) {
				t.Errorf("administrative end %s exceeds cutoff", admin.Format(DateLayout))
			}
		})
	}
}

func TestIsCensoringCandidate(t *testing.T) {
	cfg := testConfig(t)

	tests := []struct {
		name string
		rec  PatientRecord
		want bool
	}{
		{
			name: "no event, observation trails end by more than grace",
			rec: PatientRecord{
				ID:              "p1",
				Origin:          date(t, "2019-01-01"),
				LastObservation: date(t, "2019-02-01"),
			},
			want: true,
		},
		{
			name: "observed event never censors",
			rec: PatientRecord{
				ID:              "p2",
				Origin:          date(t, "2019-01-01"),
				EventDate:       datePtr(t, "2019-02-15"),
				LastObservation: date(t, "2019-02-01"),
			},
			want: false,
		},
		{
			name: "observation exactly at end minus grace is not censoring",
			rec: PatientRecord{
				ID:              "p3",
				Origin:          date(t, "2019-01-01"),
				LastObservation: date(t, "2020-09-01"),
			},
			want: false,
		},
		{
			name: "observation one day inside the grace boundary",
			rec: PatientRecord{
				ID:              "p4",
				Origin:          date(t, "2019-01-01"),
				LastObservation: date(t, "2020-08-31"),
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCensoringCandidate(tt.rec, cfg); got != tt.want {
				t.Errorf("IsCensoringCandidate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCensorDate(t *testing.T) {
	cfg := testConfig(t)

	rec := PatientRecord{
		ID:              "p1",
		Origin:          date(t, "2019-01-01"),
		LastObservation: date(t, "2019-02-01"),
	}
	got := CensorDate(rec, cfg)
	if got == nil {
		t.Fatal("expected censor date for censoring candidate")
	}
	if want := date(t, "2019-03-03"); !got.Equal(want) {
		t.Errorf("CensorDate() = %s, want 2019-03-03", got.Format(DateLayout))
	}

	withEvent := rec
	withEvent.EventDate = datePtr(t, "2019-05-01")
	if CensorDate(withEvent, cfg) != nil {
		t.Error("expected nil censor date for patient with observed event")
	}
}
