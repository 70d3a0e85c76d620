package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/survpanel/survpanel/internal/api"
	"github.com/survpanel/survpanel/internal/config"
	"github.com/survpanel/survpanel/internal/diagnostics"
	"github.com/survpanel/survpanel/internal/ingest"
	"github.com/survpanel/survpanel/internal/panel"
	"github.com/survpanel/survpanel/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to yaml config file")
		inputPath  = flag.String("input", "", "wide cohort CSV; enables batch mode")
		outputPath = flag.String("output", "", "long panel CSV output (batch mode)")
		plotsDir   = flag.String("plots", "", "directory for diagnostic PNGs (batch mode, defaults next to output)")
	)
	flag.Parse()

	cfg := loadConfig(*configPath)

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	panelCfg, err := cfg.PanelConfig()
	if err != nil {
		logger.Fatal("invalid panel configuration", zap.Error(err))
	}

	builder, err := panel.NewBuilder(panelCfg, panel.BuilderOptions{
		Workers: cfg.Panel.Workers,
		Strict:  cfg.Panel.Strict,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create panel builder", zap.Error(err))
	}

	if *inputPath != "" {
		if err := runBatch(cfg, builder, *inputPath, *outputPath, *plotsDir, logger); err != nil {
			logger.Fatal("batch build failed", zap.Error(err))
		}
		return
	}

	runServer(cfg, builder, logger)
}

// runBatch reads a wide cohort CSV, writes the long panel CSV and renders
// the diagnostic scatter plots, then exits.
func runBatch(cfg *config.Config, builder *panel.Builder, inputPath, outputPath, plotsDir string, logger *zap.Logger) error {
	if outputPath == "" {
		return fmt.Errorf("batch mode requires -output")
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	cohort, err := ingest.ReadWide(in, inputColumns(cfg))
	if err != nil {
		return fmt.Errorf("read cohort: %w", err)
	}
	for _, ie := range cohort.Errors {
		logger.Warn("skipping unparseable record",
			zap.Int("line", ie.Line),
			zap.String("patient_id", ie.PatientID),
			zap.String("reason", ie.Reason))
	}

	result, err := builder.Build(context.Background(), cohort.Records)
	if err != nil {
		return err
	}
	for _, ex := range result.Excluded {
		logger.Warn("patient excluded", zap.String("patient_id", ex.PatientID), zap.String("reason", ex.Reason))
	}
	for _, w := range result.Warnings {
		logger.Warn(w)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close()
	if err := ingest.WritePanel(out, result.Rows); err != nil {
		return fmt.Errorf("write panel: %w", err)
	}

	if plotsDir == "" {
		plotsDir = filepath.Dir(outputPath)
	}
	if err := renderPlots(plotsDir, cohort.Records, result.Rows, builder.Config()); err != nil {
		return err
	}

	report := diagnostics.CrossCheck(cohort.Records, result.Rows)
	logger.Info("panel build complete",
		zap.Int("patients", result.Patients),
		zap.Int("rows", len(result.Rows)),
		zap.Int("excluded", len(result.Excluded)),
		zap.Int("censored", report.CensoredCount),
		zap.Float64("max_abs_gap", report.MaxAbsGap),
		zap.String("output", outputPath))
	return nil
}

func renderPlots(dir string, records []panel.PatientRecord, rows []panel.PeriodRow, cfg panel.Config) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create plots directory: %w", err)
	}

	report := diagnostics.CrossCheck(records, rows)
	plots := map[string]*diagnostics.ScatterPlot{
		"end_vs_lastobs.png":  diagnostics.EndVsLastObservation(records, cfg),
		"tte_vs_duration.png": diagnostics.TimeToEventVsDuration(report),
		"cohort_overview.png": diagnostics.CohortOverview(records, cfg),
	}
	for name, plot := range plots {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("create plot %s: %w", name, err)
		}
		renderErr := plot.Render(f)
		closeErr := f.Close()
		if renderErr != nil {
			return fmt.Errorf("render plot %s: %w", name, renderErr)
		}
		if closeErr != nil {
			return closeErr
		}
	}
	return nil
}

func runServer(cfg *config.Config, builder *panel.Builder, logger *zap.Logger) {
	store, err := storage.NewEmbeddedStore(cfg.Storage.Path)
	if err != nil {
		logger.Fatal("failed to open run store", zap.Error(err))
	}
	defer store.Close()

	server := api.NewServer(cfg, builder, store, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("survpanel API listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down survpanel")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("survpanel stopped")
}

func loadConfig(path string) *config.Config {
	if path == "" {
		path = os.Getenv("SURVPANEL_CONFIG")
	}
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config from %s: %v, using defaults\n", path, err)
			return config.LoadFromEnv()
		}
		return cfg
	}
	return config.LoadFromEnv()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Logging.Level, err)
	}

	var zc zap.Config
	if cfg.Server.Environment == "production" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func inputColumns(cfg *config.Config) ingest.Columns {
	in := cfg.Input
	return ingest.Columns{
		ID:              in.IDColumn,
		Origin:          in.OriginColumn,
		EventDate:       in.EventDateColumn,
		LastObservation: in.LastObservationColumn,
		TimeToEvent:     in.TimeToEventColumn,
		EventFlag:       in.EventFlagColumn,
	}
}
