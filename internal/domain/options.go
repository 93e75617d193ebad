package domain

import (
	"fmt"
	"math"
)

// GapPolicy selects how the engine treats missing or invalid observations.
type GapPolicy string

const (
	GapCarryForward GapPolicy = "carry-forward"
	GapInterpolate  GapPolicy = "interpolate"
)

// Metric selects which aggregated quantity governs compliance.
type Metric string

const (
	MetricDeficit Metric = "deficit"
	MetricDemand  Metric = "demand"
)

// Basis selects whether a period is judged on its own total or on the running
// total of its reporting year.
type Basis string

const (
	BasisPeriod     Basis = "period"
	BasisYearToDate Basis = "year-to-date"
)

// PeriodScheme selects the reporting period boundaries.
type PeriodScheme string

const (
	SchemeCalendarQuarter  PeriodScheme = "calendar-quarter"
	SchemeWaterYearQuarter PeriodScheme = "water-year-quarter"
)

// BalanceModel selects the storage update rule.
type BalanceModel string

const (
	// ModelSimple applies S(t) = clamp(S(t-1) + P - ET, 0, capacity).
	ModelSimple BalanceModel = "simple"
	// ModelPartitioned splits precipitation into effective precipitation,
	// runoff and infiltration before storage is drawn down.
	ModelPartitioned BalanceModel = "partitioned"
)

// Cadence is the native spacing of observations.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceMonthly Cadence = "monthly"
)

// Options is the validated configuration surface consumed by the core.
type Options struct {
	GapPolicy              GapPolicy
	GapTolerance           float64
	Metric                 Metric
	Basis                  Basis
	Scheme                 PeriodScheme
	Model                  BalanceModel
	Cadence                Cadence
	InitialStorageFraction float64
	RunoffFraction         float64
}

// DefaultOptions returns the program defaults.
func DefaultOptions() Options {
	return Options{
		GapPolicy:              GapCarryForward,
		GapTolerance:           0.25,
		Metric:                 MetricDeficit,
		Basis:                  BasisPeriod,
		Scheme:                 SchemeCalendarQuarter,
		Model:                  ModelSimple,
		Cadence:                CadenceDaily,
		InitialStorageFraction: 1.0,
		RunoffFraction:         0,
	}
}

// Validate checks every enumerated field and numeric range. It returns a
// *ConfigurationError for the first problem found.
func (o Options) Validate() error {
	switch o.GapPolicy {
	case GapCarryForward, GapInterpolate:
	default:
		return configErr("gap_policy", fmt.Sprintf("unknown gap policy %q", o.GapPolicy))
	}
	switch o.Metric {
	case MetricDeficit, MetricDemand:
	default:
		return configErr("metric", fmt.Sprintf("unknown governing metric %q", o.Metric))
	}
	switch o.Basis {
	case BasisPeriod, BasisYearToDate:
	default:
		return configErr("basis", fmt.Sprintf("unknown evaluation basis %q", o.Basis))
	}
	switch o.Scheme {
	case SchemeCalendarQuarter, SchemeWaterYearQuarter:
	default:
		return configErr("period_scheme", fmt.Sprintf("unknown period scheme %q", o.Scheme))
	}
	switch o.Model {
	case ModelSimple, ModelPartitioned:
	default:
		return configErr("balance_model", fmt.Sprintf("unknown balance model %q", o.Model))
	}
	switch o.Cadence {
	case CadenceDaily, CadenceMonthly:
	default:
		return configErr("cadence", fmt.Sprintf("unknown cadence %q", o.Cadence))
	}
	if !inUnitInterval(o.GapTolerance) {
		return configErr("gap_tolerance", fmt.Sprintf("must be within [0, 1], got %v", o.GapTolerance))
	}
	if !inUnitInterval(o.InitialStorageFraction) {
		return configErr("initial_storage_fraction", fmt.Sprintf("must be within [0, 1], got %v", o.InitialStorageFraction))
	}
	if !inUnitInterval(o.RunoffFraction) {
		return configErr("runoff_fraction", fmt.Sprintf("must be within [0, 1], got %v", o.RunoffFraction))
	}
	return nil
}

func inUnitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
