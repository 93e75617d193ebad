package domain

import (
	"math"
	"time"
)

// Coefficients of the empirical effective-precipitation curve.
const (
	effPrecipScale    = 0.70917
	effPrecipExponent = 0.82416
	effPrecipOffset   = 0.11556
	effPrecipETFactor = 0.02426
)

// BalanceInput is everything one engine run needs for one parcel.
type BalanceInput struct {
	ParcelID       string
	Records        []ObservationRecord
	Capacity       float64
	InitialStorage float64
}

// NewBalanceInput builds the engine input for a parcel, resolving its
// starting storage from opts.
func NewBalanceInput(p Parcel, records []ObservationRecord, opts Options) BalanceInput {
	return BalanceInput{
		ParcelID:       p.ID,
		Records:        records,
		Capacity:       p.Capacity,
		InitialStorage: p.StartingStorage(opts),
	}
}

// RunBalance advances the soil-water state over in.Records and returns one
// state per record, in order. Gaps produce a state flagged GapFilled rather
// than an omission. The function is pure: equal inputs yield bit-identical
// output.
func RunBalance(in BalanceInput, opts Options) ([]BalanceState, error) {
	if err := validateBalanceInput(in); err != nil {
		return nil, err
	}
	if len(in.Records) == 0 {
		return []BalanceState{}, nil
	}

	var prevValid, nextValid []int
	if opts.GapPolicy == GapInterpolate {
		prevValid, nextValid = validNeighbours(in.Records)
	}

	states := make([]BalanceState, len(in.Records))
	storage := in.InitialStorage

	for i, rec := range in.Records {
		date := Day(rec.Date)

		if rec.Usable() {
			states[i] = step(date, storage, rec.Precipitation, rec.Evapotranspiration, in.Capacity, opts)
			storage = states[i].Storage
			continue
		}

		if opts.GapPolicy == GapInterpolate && prevValid[i] >= 0 && nextValid[i] >= 0 {
			p, et := interpolate(in.Records[prevValid[i]], in.Records[nextValid[i]], date)
			states[i] = step(date, storage, p, et, in.Capacity, opts)
			states[i].GapFilled = true
			storage = states[i].Storage
			continue
		}

		states[i] = BalanceState{Date: date, Storage: storage, GapFilled: true}
	}

	return states, nil
}

func validateBalanceInput(in BalanceInput) error {
	if math.IsNaN(in.Capacity) || math.IsInf(in.Capacity, 0) || in.Capacity <= 0 {
		return invalidInput(in.ParcelID, time.Time{}, "storage capacity must be positive, got %v", in.Capacity)
	}
	if math.IsNaN(in.InitialStorage) || in.InitialStorage < 0 || in.InitialStorage > in.Capacity {
		return invalidInput(in.ParcelID, time.Time{}, "initial storage %v outside [0, %v]", in.InitialStorage, in.Capacity)
	}

	var prev time.Time
	for i, rec := range in.Records {
		date := Day(rec.Date)
		if rec.ParcelID != "" && rec.ParcelID != in.ParcelID {
			return invalidInput(in.ParcelID, date, "record belongs to parcel %s", rec.ParcelID)
		}
		if i > 0 && !date.After(prev) {
			return invalidInput(in.ParcelID, date, "dates must be strictly increasing (previous %s)", prev.Format(DateLayout))
		}
		prev = date

		switch rec.Status {
		case "", StatusValid, StatusMissing, StatusInvalid:
		default:
			return invalidInput(in.ParcelID, date, "unknown observation status %q", rec.Status)
		}
		if !rec.Usable() {
			continue
		}
		if !validFlux(rec.Precipitation) {
			return invalidInput(in.ParcelID, date, "precipitation must be a non-negative number, got %v", rec.Precipitation)
		}
		if !validFlux(rec.Evapotranspiration) {
			return invalidInput(in.ParcelID, date, "evapotranspiration must be a non-negative number, got %v", rec.Evapotranspiration)
		}
	}
	return nil
}

func validFlux(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// step applies one update of the selected balance model.
func step(date time.Time, prev, p, et, capacity float64, opts Options) BalanceState {
	if opts.Model == ModelPartitioned {
		return stepPartitioned(date, prev, p, et, capacity, opts.RunoffFraction)
	}
	return stepSimple(date, prev, p, et, capacity)
}

// stepSimple: storage absorbs P - ET and is clamped to [0, capacity].
func stepSimple(date time.Time, prev, p, et, capacity float64) BalanceState {
	raw := prev + p - et
	return BalanceState{
		Date:                   date,
		Storage:                clamp(raw, 0, capacity),
		Deficit:                math.Max(0, -raw),
		Demand:                 math.Max(0, et-p-prev),
		Precipitation:          p,
		Evapotranspiration:     et,
		EffectivePrecipitation: math.Min(p, et),
		Runoff:                 math.Max(0, raw-capacity),
		StorageUse:             math.Min(prev, math.Max(0, et-p)),
	}
}

// stepPartitioned: effective precipitation meets ET directly, a fraction of
// the remainder runs off, the rest infiltrates up to capacity, and storage
// covers what ET is left. Demand is the ET still unmet afterwards.
func stepPartitioned(date time.Time, prev, p, et, capacity, runoffFraction float64) BalanceState {
	pe := EffectivePrecipitation(p, et)
	ro := (p - pe) * runoffFraction
	infiltrated := prev + p - pe - ro
	before := clamp(infiltrated, 0, capacity)
	use := math.Min(before, et-pe)

	return BalanceState{
		Date:                   date,
		Storage:                before - use,
		Deficit:                math.Max(0, et-(p-ro)-prev),
		Demand:                 math.Max(0, et-pe-use),
		Precipitation:          p,
		Evapotranspiration:     et,
		EffectivePrecipitation: pe,
		Runoff:                 ro + math.Max(0, infiltrated-capacity),
		StorageUse:             use,
	}
}

// EffectivePrecipitation returns the share of precipitation p consumed
// directly by evapotranspiration et. The result never exceeds p or et.
func EffectivePrecipitation(p, et float64) float64 {
	if p <= 0 || et <= 0 {
		return 0
	}
	curve := (effPrecipScale*math.Pow(p, effPrecipExponent) - effPrecipOffset) * math.Pow(10, effPrecipETFactor*et)
	return math.Min(p, math.Min(et, math.Max(0, curve)))
}

// validNeighbours returns, for every index, the closest usable record before
// and after it (-1 when none).
func validNeighbours(records []ObservationRecord) (prev, next []int) {
	prev = make([]int, len(records))
	next = make([]int, len(records))

	last := -1
	for i := range records {
		prev[i] = last
		if records[i].Usable() {
			last = i
		}
	}
	last = -1
	for i := len(records) - 1; i >= 0; i-- {
		next[i] = last
		if records[i].Usable() {
			last = i
		}
	}
	return prev, next
}

// interpolate estimates P and ET at date linearly in time between a and b.
func interpolate(a, b ObservationRecord, date time.Time) (float64, float64) {
	span := Day(b.Date).Sub(Day(a.Date)).Hours()
	w := date.Sub(Day(a.Date)).Hours() / span
	p := a.Precipitation + w*(b.Precipitation-a.Precipitation)
	et := a.Evapotranspiration + w*(b.Evapotranspiration-a.Evapotranspiration)
	return p, et
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
