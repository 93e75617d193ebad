package config

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/landrepurpose/lrp-smb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

// setCSVPaths satisfies the default csv backend's required paths.
func setCSVPaths(t *testing.T) {
	t.Helper()
	t.Setenv("PRECIP_PATH", "testdata/precip.csv")
	t.Setenv("ET_PATH", "testdata/et.csv")
	t.Setenv("FIELD_KEY_PATH", "testdata/fields.csv")
}

func TestLoad_Defaults(t *testing.T) {
	setCSVPaths(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultOptions(), cfg.Options())
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, 24*time.Hour, cfg.EvalInterval)
	assert.Equal(t, "parcels.yaml", cfg.ParcelsPath)
	assert.True(t, cfg.EndDate.IsZero())
	assert.Equal(t, BackendCSV, cfg.StoreBackend)
	assert.Equal(t, "EKIfld", cfg.FieldAttribute)
	assert.Equal(t, "lrp.db", cfg.SQLitePath)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "lrp-compliance-verdicts", cfg.KafkaVerdictTopic)
	assert.Empty(t, cfg.ReportPath)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("GAP_POLICY", "interpolate")
	t.Setenv("GAP_TOLERANCE", "0.1")
	t.Setenv("GOVERNING_METRIC", "demand")
	t.Setenv("EVALUATION_BASIS", "year-to-date")
	t.Setenv("PERIOD_SCHEME", "water-year-quarter")
	t.Setenv("BALANCE_MODEL", "partitioned")
	t.Setenv("INITIAL_STORAGE_FRACTION", "0")
	t.Setenv("RUNOFF_FRACTION", "0.3")
	t.Setenv("CADENCE", "monthly")
	t.Setenv("WORKERS", "3")
	t.Setenv("EVAL_INTERVAL", "1h")
	t.Setenv("END_DATE", "2024-03-31")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/var/lib/lrp/smb.db")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_VERDICT_TOPIC", "verdicts")
	t.Setenv("REPORT_PATH", "out/report.txt")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	opts := cfg.Options()
	assert.Equal(t, domain.GapInterpolate, opts.GapPolicy)
	assert.Equal(t, 0.1, opts.GapTolerance)
	assert.Equal(t, domain.MetricDemand, opts.Metric)
	assert.Equal(t, domain.BasisYearToDate, opts.Basis)
	assert.Equal(t, domain.SchemeWaterYearQuarter, opts.Scheme)
	assert.Equal(t, domain.ModelPartitioned, opts.Model)
	assert.Equal(t, domain.CadenceMonthly, opts.Cadence)
	assert.Zero(t, opts.InitialStorageFraction)
	assert.Equal(t, 0.3, opts.RunoffFraction)

	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, time.Hour, cfg.EvalInterval)
	assert.Equal(t, time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC), cfg.EndDate)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, "/var/lib/lrp/smb.db", cfg.SQLitePath)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "verdicts", cfg.KafkaVerdictTopic)
	assert.Equal(t, "out/report.txt", cfg.ReportPath)
	assert.Equal(t, ":9090", cfg.HTTPAddr)

	level, format := cfg.LogSettings()
	assert.Equal(t, "debug", level)
	assert.Equal(t, "text", format)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"GAP_TOLERANCE", "lots"},
		{"WORKERS", "0"},
		{"WORKERS", "many"},
		{"EVAL_INTERVAL", "-1h"},
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"END_DATE", "31/03/2024"},
		{"KAFKA_ENABLED", "perhaps"},
	}

	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			setCSVPaths(t)
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestLoad_InvalidEngineOption(t *testing.T) {
	setCSVPaths(t)
	t.Setenv("GAP_POLICY", "guess")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	var ce *domain.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "gap_policy", ce.Field)
}

func TestLoad_GapToleranceOutOfRange(t *testing.T) {
	setCSVPaths(t)
	t.Setenv("GAP_TOLERANCE", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestLoad_MissingCSVPaths(t *testing.T) {
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRECIP_PATH")
}

func TestLoad_UnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND")
}

func TestLoad_KafkaEnabledWithoutBrokers(t *testing.T) {
	setCSVPaths(t)
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", " , ")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}
