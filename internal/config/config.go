package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/survpanel/survpanel/internal/panel"
)

// Config holds all configuration for survpanel
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Panel   PanelConfig   `yaml:"panel"`
	Input   InputConfig   `yaml:"input"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`
}

// PanelConfig holds the person-period panel constants
type PanelConfig struct {
	PeriodLengthDays     int    `yaml:"period_length_days"`
	AdministrativeCutoff string `yaml:"administrative_cutoff"`
	MaxFollowUpDays      int    `yaml:"max_followup_days"`
	GracePeriodDays      int    `yaml:"grace_period_days"`
	Workers              int    `yaml:"workers"`
	Strict               bool   `yaml:"strict"`
}

// InputConfig maps wide-table column names onto record fields
type InputConfig struct {
	IDColumn              string `yaml:"id_column"`
	OriginColumn          string `yaml:"origin_column"`
	EventDateColumn       string `yaml:"event_date_column"`
	LastObservationColumn string `yaml:"last_observation_column"`
	TimeToEventColumn     string `yaml:"time_to_event_column"`
	EventFlagColumn       string `yaml:"event_flag_column"`
}

// StorageConfig holds embedded storage configuration
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads a yaml config file, expands environment variables and
// applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)
	return &cfg, nil
}

// LoadFromEnv builds a config from defaults plus environment overrides.
func LoadFromEnv() *Config {
	cfg := &Config{}
	setDefaults(cfg)

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if path := os.Getenv("SURVPANEL_DATA"); path != "" {
		cfg.Storage.Path = path
	}
	if cutoff := os.Getenv("SURVPANEL_CUTOFF"); cutoff != "" {
		cfg.Panel.AdministrativeCutoff = cutoff
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3007
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = "development"
	}
	if cfg.Panel.PeriodLengthDays == 0 {
		cfg.Panel.PeriodLengthDays = 30
	}
	if cfg.Panel.AdministrativeCutoff == "" {
		cfg.Panel.AdministrativeCutoff = "2020-10-01"
	}
	if cfg.Panel.MaxFollowUpDays == 0 {
		cfg.Panel.MaxFollowUpDays = 2160 // six 360-day years
	}
	if cfg.Panel.GracePeriodDays == 0 {
		cfg.Panel.GracePeriodDays = 30
	}
	if cfg.Input.IDColumn == "" {
		cfg.Input.IDColumn = "PatientID"
	}
	if cfg.Input.OriginColumn == "" {
		cfg.Input.OriginColumn = "t0"
	}
	if cfg.Input.EventDateColumn == "" {
		cfg.Input.EventDateColumn = "DateOfDeath"
	}
	if cfg.Input.LastObservationColumn == "" {
		cfg.Input.LastObservationColumn = "maxvisit"
	}
	if cfg.Input.TimeToEventColumn == "" {
		cfg.Input.TimeToEventColumn = "OS"
	}
	if cfg.Input.EventFlagColumn == "" {
		cfg.Input.EventFlagColumn = "EVENT"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "./data"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// PanelConfig converts the yaml panel section into the immutable core
// config, validating the startup preconditions (cutoff parseable,
// follow-up a multiple of the period length).
func (c *Config) PanelConfig() (panel.Config, error) {
	cutoff, err := time.Parse(panel.DateLayout, c.Panel.AdministrativeCutoff)
	if err != nil {
		return panel.Config{}, fmt.Errorf("administrative cutoff: %w", err)
	}
	pc := panel.Config{
		PeriodLengthDays: c.Panel.PeriodLengthDays,
		Cutoff:           cutoff,
		MaxFollowUpDays:  c.Panel.MaxFollowUpDays,
		GraceDays:        c.Panel.GracePeriodDays,
	}
	if err := pc.Validate(); err != nil {
		return panel.Config{}, err
	}
	return pc, nil
}
