package panel

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date layout used across the service.
const DateLayout = "2006-01-02"

// EventStatus is the tri-state event indicator for a panel row.
// A row past the censoring threshold of a patient with no observed
// event has genuinely unknown status; it is kept distinct from 0
// because collapsing it would change survival-model semantics.
type EventStatus int8

const (
	EventNone EventStatus = iota
	EventOccurred
	EventUnknown
)

// MarshalJSON encodes EventNone/EventOccurred as 0/1 and EventUnknown as null.
func (e EventStatus) MarshalJSON() ([]byte, error) {
	switch e {
	case EventNone:
		return []byte("0"), nil
	case EventOccurred:
		return []byte("1"), nil
	case EventUnknown:
		return []byte("null"), nil
	}
	return nil, fmt.Errorf("invalid event status: %d", e)
}

// UnmarshalJSON accepts 0, 1 or null.
func (e *EventStatus) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "0":
		*e = EventNone
	case "1":
		*e = EventOccurred
	case "null":
		*e = EventUnknown
	default:
		return fmt.Errorf("invalid event status: %s", data)
	}
	return nil
}

// String renders the CSV cell value: "0", "1" or empty for unknown.
func (e EventStatus) String() string {
	switch e {
	case EventOccurred:
		return "1"
	case EventUnknown:
		return ""
	}
	return "0"
}

// PatientRecord is one wide-format cohort row: a single patient with an
// origin date (time zero), an optional terminal event date and the date
// of the last known observation.
type PatientRecord struct {
	ID              string     `json:"id"`
	Origin          time.Time  `json:"origin"`
	EventDate       *time.Time `json:"event_date,omitempty"`
	LastObservation time.Time  `json:"last_observation"`

	// Pass-through fields from the wide table, consumed only by the
	// diagnostic cross-checks, never by the panel transformation.
	TimeToEvent *float64 `json:"time_to_event,omitempty"`
	EventFlag   *int     `json:"event_flag,omitempty"`
}

// HasEvent reports whether a terminal event was observed for the patient.
func (r PatientRecord) HasEvent() bool {
	return r.EventDate != nil
}

// PeriodRow is one long-format panel row: a patient crossed with one
// fixed-length period of their follow-up window. PatientRecord fields are
// denormalized onto every row.
type PeriodRow struct {
	PatientID       string     `json:"id"`
	PeriodIndex     int        `json:"period_index"`
	PeriodStart     time.Time  `json:"period_start"`
	Origin          time.Time  `json:"origin"`
	EndDate         time.Time  `json:"end_date"`
	LastObservation time.Time  `json:"last_observation"`
	EventDate       *time.Time `json:"event_date,omitempty"`

	Event      EventStatus `json:"event"`
	Censored   int         `json:"cens"`
	CensorDate *time.Time  `json:"censor_date,omitempty"`
	CensorT    *time.Time  `json:"censor_t,omitempty"`
}

// Config holds the panel construction constants. It is immutable and
// shared read-only by every stage; there is no ambient global state.
type Config struct {
	PeriodLengthDays int       // width of one period
	Cutoff           time.Time // administrative cutoff, absolute calendar date
	MaxFollowUpDays  int       // per-patient follow-up cap relative to origin
	GraceDays        int       // reporting lag before absence counts as censoring
}

// Validate checks the configuration preconditions. The follow-up cap must
// be an exact multiple of the period length; this is a fatal configuration
// error raised once at startup, never per patient.
func (c Config) Validate() error {
	if c.PeriodLengthDays <= 0 {
		return fmt.Errorf("period length must be positive, got %d", c.PeriodLengthDays)
	}
	if c.MaxFollowUpDays <= 0 {
		return fmt.Errorf("max follow-up days must be positive, got %d", c.MaxFollowUpDays)
	}
	if c.MaxFollowUpDays%c.PeriodLengthDays != 0 {
		return fmt.Errorf("max follow-up (%d days) must be a multiple of the period length (%d days)",
			c.MaxFollowUpDays, c.PeriodLengthDays)
	}
	if c.GraceDays < 0 {
		return fmt.Errorf("grace period must be non-negative, got %d", c.GraceDays)
	}
	if c.Cutoff.IsZero() {
		return fmt.Errorf("administrative cutoff date is required")
	}
	return nil
}

func addDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

func minDate(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
