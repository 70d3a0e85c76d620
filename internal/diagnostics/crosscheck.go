package diagnostics

import (
	"math"
	"sort"

	"github.com/survpanel/survpanel/internal/panel"
)

// PatientCheck compares one patient's long-format duration against the
// wide-table time-to-event value carried through for cross-checking.
type PatientCheck struct {
	PatientID    string   `json:"patient_id"`
	LongDuration int      `json:"long_duration"` // max period index in the panel
	TimeToEvent  *float64 `json:"time_to_event,omitempty"`
	EventFlag    *int     `json:"event_flag,omitempty"`
	Censored     bool     `json:"censored"`
	Gap          *float64 `json:"gap,omitempty"` // time_to_event - long_duration
}

// Report is the panel-vs-wide consistency report.
type Report struct {
	Patients      []PatientCheck `json:"patients"`
	PatientCount  int            `json:"patient_count"`
	CensoredCount int            `json:"censored_count"`
	CheckedCount  int            `json:"checked_count"` // patients with a time-to-event value
	MaxAbsGap     float64        `json:"max_abs_gap"`
	MeanAbsGap    float64        `json:"mean_abs_gap"`
}

// CrossCheck joins the built panel back onto the wide records and
// compares each patient's row span with their reported time to event.
// Large gaps point at inconsistent source data or a mis-specified period
// length.
func CrossCheck(records []panel.PatientRecord, rows []panel.PeriodRow) *Report {
	type agg struct {
		maxIndex int
		censored bool
		seen     bool
	}
	perPatient := make(map[string]*agg)
	for i := range rows {
		row := &rows[i]
		a := perPatient[row.PatientID]
		if a == nil {
			a = &agg{}
			perPatient[row.PatientID] = a
		}
		a.seen = true
		if row.PeriodIndex > a.maxIndex {
			a.maxIndex = row.PeriodIndex
		}
		if row.Censored == 1 {
			a.censored = true
		}
	}

	report := &Report{}
	var sumAbs float64
	for _, rec := range records {
		a := perPatient[rec.ID]
		if a == nil || !a.seen {
			continue
		}
		check := PatientCheck{
			PatientID:    rec.ID,
			LongDuration: a.maxIndex,
			TimeToEvent:  rec.TimeToEvent,
			EventFlag:    rec.EventFlag,
			Censored:     a.censored,
		}
		if rec.TimeToEvent != nil {
			gap := *rec.TimeToEvent - float64(a.maxIndex)
			check.Gap = &gap
			report.CheckedCount++
			abs := math.Abs(gap)
			sumAbs += abs
			if abs > report.MaxAbsGap {
				report.MaxAbsGap = abs
			}
		}
		if a.censored {
			report.CensoredCount++
		}
		report.Patients = append(report.Patients, check)
	}
	report.PatientCount = len(report.Patients)
	if report.CheckedCount > 0 {
		report.MeanAbsGap = sumAbs / float64(report.CheckedCount)
	}

	sort.Slice(report.Patients, func(i, j int) bool {
		return report.Patients[i].PatientID < report.Patients[j].PatientID
	})
	return report
}
