package diagnostics

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fogleman/gg"

	"github.com/survpanel/survpanel/internal/panel"
)

// Point is one scatter marker.
type Point struct {
	X, Y   float64
	Series int
}

// ScatterPlot is a minimal diagnostic scatter chart.
type ScatterPlot struct {
	Title    string
	XLabel   string
	YLabel   string
	Series   []string // legend labels, indexed by Point.Series
	Points   []Point
	Identity bool // draw the y = x reference line
}

const (
	plotWidth  = 800
	plotHeight = 600
	plotMargin = 60.0
)

var seriesColors = [][3]float64{
	{0.20, 0.54, 0.74}, // blue
	{0.89, 0.29, 0.20}, // red
	{0.85, 0.65, 0.13}, // goldenrod
}

// Render draws the scatter plot and encodes it as PNG.
func (p *ScatterPlot) Render(w io.Writer) error {
	if len(p.Points) == 0 {
		return fmt.Errorf("no points to plot")
	}

	minX, maxX := p.Points[0].X, p.Points[0].X
	minY, maxY := p.Points[0].Y, p.Points[0].Y
	for _, pt := range p.Points {
		if pt.X < minX {
			minX = pt.X
		}
		if pt.X > maxX {
			maxX = pt.X
		}
		if pt.Y < minY {
			minY = pt.Y
		}
		if pt.Y > maxY {
			maxY = pt.Y
		}
	}
	if p.Identity {
		// The reference line needs a shared scale.
		if minY < minX {
			minX = minY
		} else {
			minY = minX
		}
		if maxY > maxX {
			maxX = maxY
		} else {
			maxY = maxX
		}
	}
	if maxX == minX {
		maxX = minX + 1
	}
	if maxY == minY {
		maxY = minY + 1
	}

	dc := gg.NewContext(plotWidth, plotHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	sx := func(x float64) float64 {
		return plotMargin + (x-minX)/(maxX-minX)*(plotWidth-2*plotMargin)
	}
	sy := func(y float64) float64 {
		return plotHeight - plotMargin - (y-minY)/(maxY-minY)*(plotHeight-2*plotMargin)
	}

	// Axes
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	dc.DrawLine(plotMargin, plotHeight-plotMargin, plotWidth-plotMargin, plotHeight-plotMargin)
	dc.DrawLine(plotMargin, plotMargin, plotMargin, plotHeight-plotMargin)
	dc.Stroke()

	dc.DrawStringAnchored(p.Title, plotWidth/2, plotMargin/2, 0.5, 0.5)
	dc.DrawStringAnchored(p.XLabel, plotWidth/2, plotHeight-plotMargin/3, 0.5, 0.5)
	dc.DrawStringAnchored(p.YLabel, plotMargin/3, plotMargin/2, 0, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.0f", minX), sx(minX), plotHeight-plotMargin+15, 0.5, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.0f", maxX), sx(maxX), plotHeight-plotMargin+15, 0.5, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.0f", minY), plotMargin-20, sy(minY), 0.5, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.0f", maxY), plotMargin-20, sy(maxY), 0.5, 0.5)

	if p.Identity {
		dc.SetRGB(0, 0, 0)
		dc.SetDash(6, 4)
		dc.DrawLine(sx(minX), sy(minX), sx(maxX), sy(maxX))
		dc.Stroke()
		dc.SetDash()
	}

	for _, pt := range p.Points {
		c := seriesColors[pt.Series%len(seriesColors)]
		dc.SetRGB(c[0], c[1], c[2])
		dc.DrawCircle(sx(pt.X), sy(pt.Y), 2.5)
		dc.Fill()
	}

	// Legend, bottom right
	for i, label := range p.Series {
		c := seriesColors[i%len(seriesColors)]
		y := plotHeight - plotMargin - 20*float64(len(p.Series)-i)
		dc.SetRGB(c[0], c[1], c[2])
		dc.DrawCircle(plotWidth-plotMargin-110, y, 4)
		dc.Fill()
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(label, plotWidth-plotMargin-100, y, 0, 0.5)
	}

	return dc.EncodePNG(w)
}

// EndVsLastObservation plots each patient's administrative end of
// follow-up against their last observed contact, the first diagnostic
// view of censoring pressure in a cohort. Days are measured from the
// earliest origin in the cohort.
func EndVsLastObservation(records []panel.PatientRecord, cfg panel.Config) *ScatterPlot {
	plot := &ScatterPlot{
		Title:  "Trial end date vs last observation",
		XLabel: "End of follow-up (days)",
		YLabel: "Last observation (days)",
		Series: []string{"patients"},
	}
	epoch := earliestOrigin(records)
	for _, rec := range records {
		end := panel.AdministrativeEnd(rec, cfg)
		plot.Points = append(plot.Points, Point{
			X: end.Sub(epoch).Hours() / 24,
			Y: rec.LastObservation.Sub(epoch).Hours() / 24,
		})
	}
	return plot
}

// TimeToEventVsDuration plots the wide-table time to event against the
// long-format duration, split into censored and uncensored patients,
// with the identity reference line. Points far off the diagonal flag
// disagreement between the two representations.
func TimeToEventVsDuration(report *Report) *ScatterPlot {
	plot := &ScatterPlot{
		Title:    "Time-to-event vs long-format duration",
		XLabel:   "Time to event (wide)",
		YLabel:   "Periods (long)",
		Series:   []string{"not censored", "censored"},
		Identity: true,
	}
	for _, check := range report.Patients {
		if check.TimeToEvent == nil {
			continue
		}
		series := 0
		if check.Censored {
			series = 1
		}
		plot.Points = append(plot.Points, Point{
			X:      *check.TimeToEvent,
			Y:      float64(check.LongDuration),
			Series: series,
		})
	}
	return plot
}

// CohortOverview plots origin, event and end-of-follow-up dates per
// patient, ordered by origin.
func CohortOverview(records []panel.PatientRecord, cfg panel.Config) *ScatterPlot {
	plot := &ScatterPlot{
		Title:  "Cohort overview",
		XLabel: "Patients (by origin)",
		YLabel: "Days",
		Series: []string{"time zero", "event", "end of follow-up"},
	}
	ordered := make([]panel.PatientRecord, len(records))
	copy(ordered, records)
	sortByOrigin(ordered)

	epoch := earliestOrigin(records)
	for i, rec := range ordered {
		x := float64(i)
		plot.Points = append(plot.Points, Point{X: x, Y: rec.Origin.Sub(epoch).Hours() / 24, Series: 0})
		if rec.EventDate != nil {
			plot.Points = append(plot.Points, Point{X: x, Y: rec.EventDate.Sub(epoch).Hours() / 24, Series: 1})
		}
		end := panel.EndOfFollowUp(rec, cfg)
		plot.Points = append(plot.Points, Point{X: x, Y: end.Sub(epoch).Hours() / 24, Series: 2})
	}
	return plot
}

func earliestOrigin(records []panel.PatientRecord) time.Time {
	var epoch time.Time
	for _, rec := range records {
		if epoch.IsZero() || rec.Origin.Before(epoch) {
			epoch = rec.Origin
		}
	}
	return epoch
}

func sortByOrigin(records []panel.PatientRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Origin.Before(records[j].Origin)
	})
}
