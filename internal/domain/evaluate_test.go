package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summary(deficit float64, total, gaps int) PeriodSummary {
	return PeriodSummary{
		ParcelID:       testParcel,
		Period:         PeriodFor(date(2024, time.February, 1), SchemeCalendarQuarter),
		Deficit:        deficit,
		Demand:         deficit,
		TotalCount:     total,
		GapFilledCount: gaps,
	}
}

func TestEvaluate_ThresholdBoundary(t *testing.T) {
	opts := DefaultOptions()

	at := Evaluate(summary(15.0, 90, 0), 15, opts)
	assert.Equal(t, VerdictCompliant, at.Status)
	assert.Equal(t, 0.0, at.Margin)
	assert.Equal(t, []ReasonCode{ReasonDataSufficient, ReasonThresholdMet}, at.Reasons)

	over := Evaluate(summary(15.01, 90, 0), 15, opts)
	assert.Equal(t, VerdictNonCompliant, over.Status)
	assert.InDelta(t, 0.01, over.Margin, 1e-9)
	assert.Equal(t, []ReasonCode{ReasonDataSufficient, ReasonThresholdExceeded}, over.Reasons)

	under := Evaluate(summary(10, 90, 0), 15, opts)
	assert.Equal(t, VerdictCompliant, under.Status)
	assert.Equal(t, -5.0, under.Margin)
}

func TestEvaluate_InsufficientData(t *testing.T) {
	opts := DefaultOptions()

	v := Evaluate(summary(0, 100, 26), 15, opts)
	assert.Equal(t, VerdictIndeterminate, v.Status, "zero deficit does not rescue a gappy period")
	assert.Equal(t, []ReasonCode{ReasonDataInsufficient}, v.Reasons)
	assert.Zero(t, v.Margin)
	assert.InDelta(t, 0.26, v.GapFraction, 1e-12)

	atTolerance := Evaluate(summary(0, 100, 25), 15, opts)
	assert.Equal(t, VerdictCompliant, atTolerance.Status)

	empty := Evaluate(summary(0, 0, 0), 15, opts)
	assert.Equal(t, VerdictIndeterminate, empty.Status)
}

func TestEvaluate_GoverningValue(t *testing.T) {
	s := summary(4, 90, 0)
	s.Demand = 20
	s.YearToDateDeficit = 30
	s.YearToDateDemand = 40

	tests := []struct {
		metric Metric
		basis  Basis
		want   float64
	}{
		{MetricDeficit, BasisPeriod, 4},
		{MetricDemand, BasisPeriod, 20},
		{MetricDeficit, BasisYearToDate, 30},
		{MetricDemand, BasisYearToDate, 40},
	}

	for _, tc := range tests {
		t.Run(string(tc.metric)+"/"+string(tc.basis), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Metric = tc.metric
			opts.Basis = tc.basis

			v := Evaluate(s, 25, opts)
			assert.Equal(t, tc.want, v.Value)
			assert.Equal(t, tc.metric, v.Metric)
			assert.Equal(t, tc.basis, v.Basis)
			assert.Equal(t, tc.want > 25, v.Status == VerdictNonCompliant)
		})
	}
}

func TestEvaluate_IsPure(t *testing.T) {
	summaries := []PeriodSummary{summary(1, 10, 0), summary(99, 10, 0)}

	first := EvaluateAll(summaries, 15, DefaultOptions())
	second := EvaluateAll(summaries, 15, DefaultOptions())
	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	for _, v := range first {
		assert.True(t, v.EvaluatedAt.IsZero(), "stamped by the caller")
		assert.Equal(t, testParcel, v.ParcelID)
		assert.Equal(t, "2024-Q1", v.PeriodID)
	}
	assert.Equal(t, VerdictCompliant, first[0].Status)
	assert.Equal(t, VerdictNonCompliant, first[1].Status)
}

func TestToday(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.April, 2, 8, 30, 0, 0, time.UTC)))
	t.Cleanup(func() { SetClock(nil) })

	assert.Equal(t, time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC), Today())
}

func TestOptions_Validate(t *testing.T) {
	require.NoError(t, DefaultOptions().Validate())

	tests := []struct {
		field  string
		mutate func(*Options)
	}{
		{"gap_policy", func(o *Options) { o.GapPolicy = "guess" }},
		{"metric", func(o *Options) { o.Metric = "storage" }},
		{"basis", func(o *Options) { o.Basis = "lifetime" }},
		{"period_scheme", func(o *Options) { o.Scheme = "fiscal" }},
		{"balance_model", func(o *Options) { o.Model = "bucket" }},
		{"cadence", func(o *Options) { o.Cadence = "hourly" }},
		{"gap_tolerance", func(o *Options) { o.GapTolerance = 1.5 }},
		{"gap_tolerance", func(o *Options) { o.GapTolerance = math.NaN() }},
		{"initial_storage_fraction", func(o *Options) { o.InitialStorageFraction = -0.1 }},
		{"runoff_fraction", func(o *Options) { o.RunoffFraction = 2 }},
	}

	for _, tc := range tests {
		t.Run(tc.field, func(t *testing.T) {
			opts := DefaultOptions()
			tc.mutate(&opts)

			err := opts.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))

			var ce *ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func TestParcel_StartingStorage(t *testing.T) {
	opts := DefaultOptions()
	opts.InitialStorageFraction = 0.5

	p := Parcel{ID: testParcel, Capacity: 16}
	assert.Equal(t, 8.0, p.StartingStorage(opts))

	explicit := 3.0
	p.InitialStorage = &explicit
	assert.Equal(t, 3.0, p.StartingStorage(opts))
}

func TestParcel_Validate(t *testing.T) {
	ok := Parcel{ID: testParcel, Capacity: 16, Threshold: 2}
	require.NoError(t, ok.Validate())

	for name, p := range map[string]Parcel{
		"missing id":         {Threshold: 1},
		"negative threshold": {ID: testParcel, Threshold: -1},
		"NaN threshold":      {ID: testParcel, Threshold: math.NaN()},
		"inverted enrollment": {ID: testParcel, Enrollment: DateRange{
			Start: date(2024, time.January, 2), End: date(2024, time.January, 1),
		}},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, p.Validate(), ErrInvalidInput)
		})
	}
}
