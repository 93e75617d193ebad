package domain

import (
	"math"
	"time"
)

// DateLayout is the calendar-date format used across records, IDs and logs.
const DateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar dates. A zero End leaves the
// range open.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitempty"`
}

// Contains reports whether d falls on or between Start and End.
func (r DateRange) Contains(d time.Time) bool {
	d = Day(d)
	if !r.Start.IsZero() && d.Before(Day(r.Start)) {
		return false
	}
	if !r.End.IsZero() && d.After(Day(r.End)) {
		return false
	}
	return true
}

// Parcel is the immutable reference data for one enrolled parcel.
type Parcel struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`

	// Capacity is the root-zone storage capacity, in the same depth unit as
	// the observations.
	Capacity float64 `json:"capacity"`
	// InitialStorage overrides Options.InitialStorageFraction when set.
	InitialStorage *float64 `json:"initial_storage,omitempty"`
	// Threshold is the maximum governing metric allowed per evaluation basis.
	Threshold float64 `json:"threshold"`

	Enrollment DateRange `json:"enrollment"`
	AreaAcres  float64   `json:"area_acres,omitempty"`
	Fields     []string  `json:"fields,omitempty"`
}

// Validate checks the reference values the engine does not. Capacity and
// initial storage are checked by RunBalance.
func (p Parcel) Validate() error {
	if p.ID == "" {
		return invalidInput(p.ID, time.Time{}, "missing parcel id")
	}
	if math.IsNaN(p.Threshold) || math.IsInf(p.Threshold, 0) || p.Threshold < 0 {
		return invalidInput(p.ID, time.Time{}, "threshold must be a non-negative number, got %v", p.Threshold)
	}
	if !p.Enrollment.Start.IsZero() && !p.Enrollment.End.IsZero() && p.Enrollment.End.Before(p.Enrollment.Start) {
		return invalidInput(p.ID, time.Time{}, "enrollment ends before it starts")
	}
	return nil
}

// StartingStorage resolves the storage level the engine starts from.
func (p Parcel) StartingStorage(opts Options) float64 {
	if p.InitialStorage != nil {
		return *p.InitialStorage
	}
	return opts.InitialStorageFraction * p.Capacity
}

// ObservationStatus flags whether a record carries usable values.
type ObservationStatus string

const (
	StatusValid   ObservationStatus = "valid"
	StatusMissing ObservationStatus = "missing"
	StatusInvalid ObservationStatus = "invalid"
)

// ObservationRecord is one (parcel, date) sample of precipitation and ET.
type ObservationRecord struct {
	ParcelID           string            `json:"parcel_id"`
	Date               time.Time         `json:"date"`
	Precipitation      float64           `json:"precipitation"`
	Evapotranspiration float64           `json:"evapotranspiration"`
	Status             ObservationStatus `json:"status"`
}

// Usable reports whether the record's values may enter the balance.
func (r ObservationRecord) Usable() bool {
	return r.Status == StatusValid || r.Status == ""
}

// BalanceState is the engine output for one date.
type BalanceState struct {
	Date      time.Time `json:"date"`
	Storage   float64   `json:"storage"`
	Deficit   float64   `json:"deficit"`
	Demand    float64   `json:"demand"`
	GapFilled bool      `json:"gap_filled"`

	// Trace of the fluxes actually applied on this date.
	Precipitation          float64 `json:"precipitation"`
	Evapotranspiration     float64 `json:"evapotranspiration"`
	EffectivePrecipitation float64 `json:"effective_precipitation"`
	Runoff                 float64 `json:"runoff"`
	StorageUse             float64 `json:"storage_use"`
}

// Period is one reporting window, inclusive of both ends.
type Period struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// Year is the calendar or water year the period belongs to; year-to-date
	// totals reset when it changes.
	Year int `json:"year"`
}

// PeriodSummary aggregates the states of one parcel within one period.
type PeriodSummary struct {
	ParcelID       string  `json:"parcel_id"`
	Period         Period  `json:"period"`
	Deficit        float64 `json:"deficit"`
	Demand         float64 `json:"demand"`
	TotalCount     int     `json:"total_count"`
	GapFilledCount int     `json:"gap_filled_count"`

	Precipitation          float64 `json:"precipitation"`
	Evapotranspiration     float64 `json:"evapotranspiration"`
	EffectivePrecipitation float64 `json:"effective_precipitation"`
	YearToDateDeficit      float64 `json:"year_to_date_deficit"`
	YearToDateDemand       float64 `json:"year_to_date_demand"`
}

// GapFraction is the share of gap-filled dates in the period.
func (s PeriodSummary) GapFraction() float64 {
	if s.TotalCount == 0 {
		return 1
	}
	return float64(s.GapFilledCount) / float64(s.TotalCount)
}

// VerdictStatus is the outcome of a compliance evaluation.
type VerdictStatus string

const (
	VerdictCompliant     VerdictStatus = "compliant"
	VerdictNonCompliant  VerdictStatus = "non-compliant"
	VerdictIndeterminate VerdictStatus = "indeterminate"
)

// ReasonCode records the outcome of one individual check.
type ReasonCode string

const (
	ReasonDataSufficient    ReasonCode = "DATA_SUFFICIENT"
	ReasonDataInsufficient  ReasonCode = "DATA_INSUFFICIENT"
	ReasonThresholdMet      ReasonCode = "THRESHOLD_MET"
	ReasonThresholdExceeded ReasonCode = "THRESHOLD_EXCEEDED"
)

// ComplianceVerdict is the terminal artifact of the core.
type ComplianceVerdict struct {
	ParcelID    string        `json:"parcel_id"`
	PeriodID    string        `json:"period_id"`
	Status      VerdictStatus `json:"status"`
	Margin      float64       `json:"margin"`
	Reasons     []ReasonCode  `json:"reasons"`
	Metric      Metric        `json:"metric"`
	Basis       Basis         `json:"basis"`
	Value       float64       `json:"value"`
	Threshold   float64       `json:"threshold"`
	GapFraction float64       `json:"gap_fraction"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
