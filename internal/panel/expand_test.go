package panel

import (
	"testing"
)

func TestExpand(t *testing.T) {
	cfg := testConfig(t)

	tests := []struct {
		name       string
		rec        PatientRecord
		end        string
		wantStarts []string
	}{
		{
			name: "window ending inside a period gets one extra period",
			rec: PatientRecord{
				ID:              "p1",
				Origin:          date(t, "2018-01-01"),
				LastObservation: date(t, "2018-03-10"),
			},
			end:        "2018-03-15",
			wantStarts: []string{"2018-01-01", "2018-01-31", "2018-03-02", "2018-04-01"},
		},
		{
			name: "end equal to origin still yields the covering periods",
			rec: PatientRecord{
				ID:              "p2",
				Origin:          date(t, "2019-06-01"),
				LastObservation: date(t, "2019-06-01"),
			},
			end:        "2019-06-01",
			wantStarts: []string{"2019-06-01", "2019-07-01"},
		},
		{
			name: "end on a period boundary",
			rec: PatientRecord{
				ID:              "p3",
				Origin:          date(t, "2019-01-01"),
				LastObservation: date(t, "2019-03-02"),
			},
			end:        "2019-03-02",
			wantStarts: []string{"2019-01-01", "2019-01-31", "2019-03-02", "2019-04-01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := Expand(tt.rec, date(t, tt.end), cfg)

			if len(rows) != len(tt.wantStarts) {
				t.Fatalf("got %d rows, want %d", len(rows), len(tt.wantStarts))
			}
			for i, row := range rows {
				if row.PeriodIndex != i {
					t.Errorf("row %d: period index = %d, want %d", i, row.PeriodIndex, i)
				}
				if want := date(t, tt.wantStarts[i]); !row.PeriodStart.Equal(want) {
					t.Errorf("row %d: period start = %s, want %s",
						i, row.PeriodStart.Format(DateLayout), tt.wantStarts[i])
				}
				if row.PatientID != tt.rec.ID {
					t.Errorf("row %d: patient id = %s, want %s", i, row.PatientID, tt.rec.ID)
				}
				if !row.Origin.Equal(tt.rec.Origin) || !row.EndDate.Equal(date(t, tt.end)) {
					t.Errorf("row %d: denormalized dates not carried over", i)
				}
			}

			// The last generated period start must land within one period
			// past the end date, never further.
			last := rows[len(rows)-1].PeriodStart
			limit := date(t, tt.end).AddDate(0, 0, cfg.PeriodLengthDays)
			if last.After(limit) {
				t.Errorf("last period start %s exceeds end + one period %s",
					last.Format(DateLayout), limit.Format(DateLayout))
			}
			if addDays(last, cfg.PeriodLengthDays).Before(date(t, tt.end)) {
				t.Errorf("expansion under-covers the window: last start %s",
					last.Format(DateLayout))
			}
		})
	}
}
