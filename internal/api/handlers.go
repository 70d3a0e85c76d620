package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/survpanel/survpanel/internal/config"
	"github.com/survpanel/survpanel/internal/diagnostics"
	"github.com/survpanel/survpanel/internal/ingest"
	"github.com/survpanel/survpanel/internal/panel"
	"github.com/survpanel/survpanel/internal/storage"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	config  *config.Config
	builder *panel.Builder
	store   storage.RunStore
	logger  *zap.Logger
}

// Response helpers

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Success: false, Error: message})
}

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// CreateRunRequest is the JSON body for a panel build. Config overrides
// are optional; omitted fields keep the server configuration.
type CreateRunRequest struct {
	Records []panel.PatientRecord `json:"records"`
	Config  *RunConfigOverrides   `json:"config,omitempty"`
}

// RunConfigOverrides carries per-run panel constants.
type RunConfigOverrides struct {
	PeriodLengthDays     *int    `json:"period_length_days,omitempty"`
	AdministrativeCutoff *string `json:"administrative_cutoff,omitempty"`
	MaxFollowUpDays      *int    `json:"max_followup_days,omitempty"`
	GracePeriodDays      *int    `json:"grace_period_days,omitempty"`
}

// RunResponse is the summary returned after a build.
type RunResponse struct {
	Run          *storage.Run         `json:"run"`
	Excluded     []panel.RecordError  `json:"excluded,omitempty"`
	IngestErrors []ingest.RecordError `json:"ingest_errors,omitempty"`
}

// CreateRun builds a panel from an uploaded cohort and persists it.
// Accepts either a JSON body or a wide-format CSV upload (text/csv).
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		records      []panel.PatientRecord
		ingestErrors []ingest.RecordError
		overrides    *RunConfigOverrides
	)

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "text/csv"):
		cohort, err := ingest.ReadWide(r.Body, h.inputColumns())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		records = cohort.Records
		ingestErrors = cohort.Errors
	default:
		var req CreateRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		records = req.Records
		overrides = req.Config
	}

	if len(records) == 0 {
		writeError(w, http.StatusBadRequest, "no records supplied")
		return
	}

	builder := h.builder
	if overrides != nil {
		var err error
		builder, err = h.builderWithOverrides(overrides)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	result, err := builder.Build(ctx, records)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	run := &storage.Run{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		Status:        "completed",
		Config:        builder.Config(),
		PatientCount:  result.Patients,
		RowCount:      len(result.Rows),
		ExcludedCount: len(result.Excluded),
		Warnings:      result.Warnings,
	}
	if err := h.store.SaveRun(ctx, run, records, result.Rows); err != nil {
		h.logger.Error("failed to persist run", zap.String("run_id", run.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to persist run")
		return
	}

	writeJSON(w, http.StatusCreated, RunResponse{
		Run:          run,
		Excluded:     result.Excluded,
		IngestErrors: ingestErrors,
	})
}

func (h *Handlers) inputColumns() ingest.Columns {
	in := h.config.Input
	return ingest.Columns{
		ID:              in.IDColumn,
		Origin:          in.OriginColumn,
		EventDate:       in.EventDateColumn,
		LastObservation: in.LastObservationColumn,
		TimeToEvent:     in.TimeToEventColumn,
		EventFlag:       in.EventFlagColumn,
	}
}

func (h *Handlers) builderWithOverrides(o *RunConfigOverrides) (*panel.Builder, error) {
	cfg := h.builder.Config()
	if o.PeriodLengthDays != nil {
		cfg.PeriodLengthDays = *o.PeriodLengthDays
	}
	if o.AdministrativeCutoff != nil {
		cutoff, err := time.Parse(panel.DateLayout, *o.AdministrativeCutoff)
		if err != nil {
			return nil, fmt.Errorf("administrative cutoff: %w", err)
		}
		cfg.Cutoff = cutoff
	}
	if o.MaxFollowUpDays != nil {
		cfg.MaxFollowUpDays = *o.MaxFollowUpDays
	}
	if o.GracePeriodDays != nil {
		cfg.GraceDays = *o.GracePeriodDays
	}
	return panel.NewBuilder(cfg, panel.BuilderOptions{
		Workers: h.config.Panel.Workers,
		Strict:  h.config.Panel.Strict,
	}, h.logger)
}

// ListRuns returns all persisted runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun returns a single run summary
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.runError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// DeleteRun removes a run and its panel
func (h *Handlers) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteRun(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.runError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GetPanelRows returns the long-format panel as JSON
func (h *Handlers) GetPanelRows(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.GetPanel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.runError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rows":  rows,
		"count": len(rows),
	})
}

// DownloadPanelCSV streams the long-format panel as a CSV download
func (h *Handlers) DownloadPanelCSV(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rows, err := h.store.GetPanel(r.Context(), id)
	if err != nil {
		h.runError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=panel-%s.csv", id))
	if err := ingest.WritePanel(w, rows); err != nil {
		h.logger.Error("failed to stream panel csv", zap.String("run_id", id), zap.Error(err))
	}
}

// GetDiagnostics returns the wide-vs-long consistency report
func (h *Handlers) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	records, err := h.store.GetCohort(ctx, id)
	if err != nil {
		h.runError(w, err)
		return
	}
	rows, err := h.store.GetPanel(ctx, id)
	if err != nil {
		h.runError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, diagnostics.CrossCheck(records, rows))
}

// GetPlot renders a diagnostic scatter plot as PNG
func (h *Handlers) GetPlot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")

	run, err := h.store.GetRun(ctx, id)
	if err != nil {
		h.runError(w, err)
		return
	}
	records, err := h.store.GetCohort(ctx, id)
	if err != nil {
		h.runError(w, err)
		return
	}

	var plot *diagnostics.ScatterPlot
	switch name {
	case "end-vs-lastobs":
		plot = diagnostics.EndVsLastObservation(records, run.Config)
	case "tte-vs-duration":
		rows, err := h.store.GetPanel(ctx, id)
		if err != nil {
			h.runError(w, err)
			return
		}
		plot = diagnostics.TimeToEventVsDuration(diagnostics.CrossCheck(records, rows))
	case "overview":
		plot = diagnostics.CohortOverview(records, run.Config)
	default:
		writeError(w, http.StatusNotFound, "unknown plot")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := plot.Render(w); err != nil {
		h.logger.Error("failed to render plot",
			zap.String("run_id", id), zap.String("plot", name), zap.Error(err))
	}
}

func (h *Handlers) runError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
