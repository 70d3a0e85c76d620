package panel

import "time"

// Truncate removes a censored patient's rows past the effective censoring
// row: the earliest period starting at or after the censor date (the
// minimum non-negative delta between period start and censor date). Rows
// for patients without a censor date pass through untouched.
//
// The returned flag reports a censoring candidate whose censor date falls
// after every generated period. The one-extra-period rule in Expand
// prevents it for well-formed input, so callers treat it as an invariant
// warning and keep all rows.
func Truncate(rows []PeriodRow) ([]PeriodRow, bool) {
	if len(rows) == 0 || rows[0].CensorDate == nil {
		return rows, false
	}
	censorDate := *rows[0].CensorDate

	// Grouped reduce: earliest period start >= censor date.
	var censorT *time.Time
	for i := range rows {
		start := rows[i].PeriodStart
		if start.Before(censorDate) {
			continue
		}
		if censorT == nil || start.Before(*censorT) {
			t := start
			censorT = &t
		}
	}
	if censorT == nil {
		return rows, true
	}

	kept := rows[:0]
	for i := range rows {
		if rows[i].PeriodStart.After(*censorT) {
			continue
		}
		rows[i].CensorT = censorT
		kept = append(kept, rows[i])
	}
	return kept, false
}
