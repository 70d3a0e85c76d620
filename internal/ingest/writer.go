package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/survpanel/survpanel/internal/panel"
)

// PanelHeader is the long-format output header, in emission order.
var PanelHeader = []string{
	"id", "period_index", "period_start", "origin", "end_date",
	"last_observation", "event_date", "EVENT", "CENS", "censor_date", "censor_t",
}

// WritePanel emits the long-format panel as CSV. Nullable dates and the
// unknown event status are written as empty cells.
func WritePanel(w io.Writer, rows []panel.PeriodRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(PanelHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range rows {
		row := &rows[i]
		fields := []string{
			row.PatientID,
			strconv.Itoa(row.PeriodIndex),
			row.PeriodStart.Format(panel.DateLayout),
			row.Origin.Format(panel.DateLayout),
			row.EndDate.Format(panel.DateLayout),
			row.LastObservation.Format(panel.DateLayout),
			formatDate(row.EventDate),
			row.Event.String(),
			strconv.Itoa(row.Censored),
			formatDate(row.CensorDate),
			formatDate(row.CensorT),
		}
		if err := cw.Write(fields); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(panel.DateLayout)
}
