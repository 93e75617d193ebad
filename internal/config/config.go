package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/landrepurpose/lrp-smb/internal/domain"
)

// Store backends.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Engine options.
	GapPolicy              string
	GapTolerance           float64
	GoverningMetric        string
	EvaluationBasis        string
	PeriodScheme           string
	BalanceModel           string
	InitialStorageFraction float64
	RunoffFraction         float64
	Cadence                string

	Workers      int
	EvalInterval time.Duration
	ParcelsPath  string
	EndDate      time.Time

	// Time-series store.
	StoreBackend   string
	PrecipPath     string
	ETPath         string
	FieldKeyPath   string
	FieldAttribute string
	SQLitePath     string

	// Sinks.
	KafkaEnabled      bool
	KafkaBrokers      []string
	KafkaVerdictTopic string
	ReportPath        string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	gapTolerance, err := parseFloat("GAP_TOLERANCE", 0.25)
	collect(err)
	initialFraction, err := parseFloat("INITIAL_STORAGE_FRACTION", 1.0)
	collect(err)
	runoffFraction, err := parseFloat("RUNOFF_FRACTION", 0)
	collect(err)
	workers, err := parsePositiveInt("WORKERS", runtime.NumCPU())
	collect(err)
	evalInterval, err := parsePositiveDuration("EVAL_INTERVAL", 24*time.Hour)
	collect(err)
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	collect(err)
	endDate, err := parseDate("END_DATE")
	collect(err)
	kafkaEnabled, err := parseBool("KAFKA_ENABLED", false)
	collect(err)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cfg := &Config{
		GapPolicy:              sharedcfg.EnvOrDefault("GAP_POLICY", string(domain.GapCarryForward)),
		GapTolerance:           gapTolerance,
		GoverningMetric:        sharedcfg.EnvOrDefault("GOVERNING_METRIC", string(domain.MetricDeficit)),
		EvaluationBasis:        sharedcfg.EnvOrDefault("EVALUATION_BASIS", string(domain.BasisPeriod)),
		PeriodScheme:           sharedcfg.EnvOrDefault("PERIOD_SCHEME", string(domain.SchemeCalendarQuarter)),
		BalanceModel:           sharedcfg.EnvOrDefault("BALANCE_MODEL", string(domain.ModelSimple)),
		InitialStorageFraction: initialFraction,
		RunoffFraction:         runoffFraction,
		Cadence:                sharedcfg.EnvOrDefault("CADENCE", string(domain.CadenceDaily)),

		Workers:      workers,
		EvalInterval: evalInterval,
		ParcelsPath:  sharedcfg.EnvOrDefault("PARCELS_PATH", "parcels.yaml"),
		EndDate:      endDate,

		StoreBackend:   strings.ToLower(sharedcfg.EnvOrDefault("STORE_BACKEND", BackendCSV)),
		PrecipPath:     sharedcfg.EnvOrDefault("PRECIP_PATH", ""),
		ETPath:         sharedcfg.EnvOrDefault("ET_PATH", ""),
		FieldKeyPath:   sharedcfg.EnvOrDefault("FIELD_KEY_PATH", ""),
		FieldAttribute: sharedcfg.EnvOrDefault("FIELD_ATTRIBUTE", "EKIfld"),
		SQLitePath:     sharedcfg.EnvOrDefault("SQLITE_PATH", "lrp.db"),

		KafkaEnabled:      kafkaEnabled,
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaVerdictTopic: sharedcfg.EnvOrDefault("KAFKA_VERDICT_TOPIC", "lrp-compliance-verdicts"),
		ReportPath:        sharedcfg.EnvOrDefault("REPORT_PATH", ""),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := c.Options().Validate(); err != nil {
		return err
	}

	switch c.StoreBackend {
	case BackendCSV:
		if c.PrecipPath == "" || c.ETPath == "" || c.FieldKeyPath == "" {
			return errors.New("PRECIP_PATH, ET_PATH and FIELD_KEY_PATH are required for the csv store")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", c.StoreBackend)
	}

	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if c.KafkaVerdictTopic == "" {
			return errors.New("KAFKA_VERDICT_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	return nil
}

// Options converts the engine settings into the core's option set.
func (c *Config) Options() domain.Options {
	return domain.Options{
		GapPolicy:              domain.GapPolicy(c.GapPolicy),
		GapTolerance:           c.GapTolerance,
		Metric:                 domain.Metric(c.GoverningMetric),
		Basis:                  domain.Basis(c.EvaluationBasis),
		Scheme:                 domain.PeriodScheme(c.PeriodScheme),
		Model:                  domain.BalanceModel(c.BalanceModel),
		Cadence:                domain.Cadence(c.Cadence),
		InitialStorageFraction: c.InitialStorageFraction,
		RunoffFraction:         c.RunoffFraction,
	}
}

// LogSettings implements observability.LogConfig.
func (c *Config) LogSettings() (level, format string) {
	return c.LogLevel, c.LogFormat
}
