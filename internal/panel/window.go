package panel

import "time"

// AdministrativeEnd returns the administrative end of follow-up for a
// patient: the global cutoff date or origin plus the follow-up cap,
// whichever comes first. The observed event date plays no role here;
// censoring candidacy is judged against this date.
func AdministrativeEnd(rec PatientRecord, cfg Config) time.Time {
	return minDate(cfg.Cutoff, addDays(rec.Origin, cfg.MaxFollowUpDays))
}

// EndOfFollowUp returns the end of the patient's valid follow-up window:
// the administrative end, tightened by the event date when an event was
// observed. Person-time never extends past a terminal event.
func EndOfFollowUp(rec PatientRecord, cfg Config) time.Time {
	end := AdministrativeEnd(rec, cfg)
	if rec.EventDate != nil {
		end = minDate(end, *rec.EventDate)
	}
	return end
}

// IsCensoringCandidate reports whether the patient's observation trails
// off before the administrative end by more than the grace period while
// no event was recorded. Patients with an observed event are never
// censoring candidates: a death is known with certainty even when it
// falls past the last visit.
func IsCensoringCandidate(rec PatientRecord, cfg Config) bool {
	if rec.HasEvent() {
		return false
	}
	threshold := addDays(AdministrativeEnd(rec, cfg), -cfg.GraceDays)
	return rec.LastObservation.Before(threshold)
}

// CensorDate returns last observation plus the grace period for censoring
// candidates, nil for everyone else.
func CensorDate(rec PatientRecord, cfg Config) *time.Time {
	if !IsCensoringCandidate(rec, cfg) {
		return nil
	}
	d := addDays(rec.LastObservation, cfg.GraceDays)
	return &d
}
