package panel

import "time"

// Expand turns a patient's [origin, end] follow-up window into one
// PeriodRow per fixed-length period. Generation deliberately runs one
// period past the end date so the interval containing the end date is
// always represented; truncation removes any excess later. Period
// indices are zero-based and contiguous in generation order.
func Expand(rec PatientRecord, end time.Time, cfg Config) []PeriodRow {
	limit := addDays(end, cfg.PeriodLengthDays)

	// Pre-size: (limit-origin)/L + 1 period starts.
	n := int(limit.Sub(rec.Origin).Hours()/24)/cfg.PeriodLengthDays + 1
	if n < 1 {
		n = 1
	}
	rows := make([]PeriodRow, 0, n)

	for start, i := rec.Origin, 0; !start.After(limit); start, i = addDays(start, cfg.PeriodLengthDays), i+1 {
		rows = append(rows, PeriodRow{
			PatientID:       rec.ID,
			PeriodIndex:     i,
			PeriodStart:     start,
			Origin:          rec.Origin,
			EndDate:         end,
			LastObservation: rec.LastObservation,
			EventDate:       rec.EventDate,
		})
	}
	return rows
}
