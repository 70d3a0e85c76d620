package panel

// AssignCensoring fills in the EVENT/CENS flags and the censor date on a
// patient's expanded rows.
//
// EVENT resolution takes priority over censoring: when an event was
// observed, every period starting at or after the event date carries
// EVENT=1 and censoring never applies. Censoring covers only the
// ambiguous "still alive, no longer observed" case: for a censoring
// candidate, periods starting strictly after last observation plus the
// grace period get CENS=1 with EVENT unknown.
func AssignCensoring(rec PatientRecord, rows []PeriodRow, cfg Config) []PeriodRow {
	censorDate := CensorDate(rec, cfg)

	for i := range rows {
		row := &rows[i]
		row.CensorDate = censorDate

		switch {
		case rec.HasEvent():
			if !row.PeriodStart.Before(*rec.EventDate) {
				row.Event = EventOccurred
			}
		case censorDate != nil && row.PeriodStart.After(*censorDate):
			row.Event = EventUnknown
			row.Censored = 1
		}
	}
	return rows
}
