package main

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/landrepurpose/lrp-smb/internal/adapter/csvstore"
	"github.com/landrepurpose/lrp-smb/internal/adapter/sqlite"
	"github.com/landrepurpose/lrp-smb/internal/config"
	"github.com/landrepurpose/lrp-smb/internal/domain"
	"github.com/landrepurpose/lrp-smb/internal/observability"
	"github.com/landrepurpose/lrp-smb/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newRootCommand wires the subcommands to a fresh viper instance. Flag values
// win over LRP_* environment variables, which win over the --config file.
func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LRP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "lrpctl",
		Short:         "Soil moisture budget compliance tooling for the Land Repurposing Program",
		SilenceUsage: true,
	}

	setupFlags(root)
	cobra.CheckErr(v.BindPFlags(root.PersistentFlags()))

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		path := v.GetString("config")
		if path == "" {
			return nil
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	root.AddCommand(
		evaluateCommand(v),
		genmockCommand(),
		validateCommand(v),
	)
	return root
}

func setupFlags(root *cobra.Command) {
	defaults := domain.DefaultOptions()
	f := root.PersistentFlags()

	f.String("config", "", "YAML file with any of the flags below as keys")
	f.String("log-level", "warn", "debug, info, warn or error")
	f.String("log-format", "text", "text or json")

	f.String("gap-policy", string(defaults.GapPolicy), "carry-forward or interpolate")
	f.Float64("gap-tolerance", defaults.GapTolerance, "largest gap-filled fraction of a period that still yields a verdict")
	f.String("metric", string(defaults.Metric), "governing metric: deficit or demand")
	f.String("basis", string(defaults.Basis), "evaluation basis: period or year-to-date")
	f.String("scheme", string(defaults.Scheme), "period scheme: calendar-quarter or water-year-quarter")
	f.String("model", string(defaults.Model), "balance model: simple or partitioned")
	f.String("cadence", string(defaults.Cadence), "observation cadence: daily or monthly")
	f.Float64("initial-storage-fraction", defaults.InitialStorageFraction, "starting storage as a share of capacity")
	f.Float64("runoff-fraction", defaults.RunoffFraction, "share of precipitation lost to runoff (partitioned model)")
	f.Int("workers", runtime.NumCPU(), "parcels evaluated concurrently")

	f.String("registry", "parcels.yaml", "parcel registry YAML")
	f.String("backend", config.BackendCSV, "time-series store: csv or sqlite")
	f.String("precip", "", "precipitation export CSV")
	f.String("et", "", "evapotranspiration export CSV")
	f.String("field-key", "", "parcel to field key CSV")
	f.String("field-attribute", "EKIfld", "field id column in the exports")
	f.String("sqlite", "lrp.db", "SQLite database")
	f.String("end-date", "", "drop observations after this date (YYYY-MM-DD)")
}

// settings is the resolved view of flags, environment and config file.
type settings struct {
	opts      domain.Options
	workers   int
	registry  string
	backend   string
	csv       csvstore.Config
	sqlite    string
	logLevel  string
	logFormat string
}

func loadSettings(v *viper.Viper) (*settings, error) {
	s := &settings{
		opts: domain.Options{
			GapPolicy:              domain.GapPolicy(v.GetString("gap-policy")),
			GapTolerance:           v.GetFloat64("gap-tolerance"),
			Metric:                 domain.Metric(v.GetString("metric")),
			Basis:                  domain.Basis(v.GetString("basis")),
			Scheme:                 domain.PeriodScheme(v.GetString("scheme")),
			Model:                  domain.BalanceModel(v.GetString("model")),
			Cadence:                domain.Cadence(v.GetString("cadence")),
			InitialStorageFraction: v.GetFloat64("initial-storage-fraction"),
			RunoffFraction:         v.GetFloat64("runoff-fraction"),
		},
		workers:  v.GetInt("workers"),
		registry: v.GetString("registry"),
		backend:  strings.ToLower(v.GetString("backend")),
		csv: csvstore.Config{
			PrecipPath:     v.GetString("precip"),
			ETPath:         v.GetString("et"),
			FieldKeyPath:   v.GetString("field-key"),
			FieldAttribute: v.GetString("field-attribute"),
		},
		sqlite:    v.GetString("sqlite"),
		logLevel:  v.GetString("log-level"),
		logFormat: v.GetString("log-format"),
	}

	if raw := v.GetString("end-date"); raw != "" {
		end, err := time.Parse(domain.DateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid end-date %q: %w", raw, err)
		}
		s.csv.EndDate = end
	}
	if err := s.opts.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *settings) logger(cmd *cobra.Command) *slog.Logger {
	return observability.NewLoggerTo(cmd.ErrOrStderr(), s.logLevel, s.logFormat)
}

// openSource opens the configured time-series store. The returned close
// function is never nil.
func (s *settings) openSource(logger *slog.Logger) (pipeline.SeriesSource, func() error, error) {
	switch s.backend {
	case config.BackendCSV:
		if s.csv.PrecipPath == "" || s.csv.ETPath == "" {
			return nil, nil, fmt.Errorf("--precip and --et are required for the csv store")
		}
		store, err := csvstore.Open(s.csv)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	case config.BackendSQLite:
		store, err := sqlite.Open(s.sqlite, s.csv.EndDate, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", s.backend)
	}
}
