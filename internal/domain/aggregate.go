package domain

// Aggregate slices a parcel's state trace into reporting periods and sums
// each one. States dated outside enrollment are not applicable and are left
// out entirely; they neither count as gaps nor contribute to the sums.
// Periods without any in-enrollment state are omitted. Storage is never
// recomputed here: carryover across period boundaries is whatever the engine
// already produced.
func Aggregate(parcelID string, states []BalanceState, enrollment DateRange, scheme PeriodScheme) []PeriodSummary {
	summaries := make([]PeriodSummary, 0)
	index := make(map[string]int)

	for _, s := range states {
		if !enrollment.Contains(s.Date) {
			continue
		}

		period := PeriodFor(s.Date, scheme)
		i, ok := index[period.ID]
		if !ok {
			i = len(summaries)
			index[period.ID] = i
			summaries = append(summaries, PeriodSummary{ParcelID: parcelID, Period: period})
		}

		sum := &summaries[i]
		sum.Deficit += s.Deficit
		sum.Demand += s.Demand
		sum.Precipitation += s.Precipitation
		sum.Evapotranspiration += s.Evapotranspiration
		sum.EffectivePrecipitation += s.EffectivePrecipitation
		sum.TotalCount++
		if s.GapFilled {
			sum.GapFilledCount++
		}
	}

	accumulateYearToDate(summaries)
	return summaries
}

// accumulateYearToDate fills the running totals, resetting whenever the
// reporting year changes.
func accumulateYearToDate(summaries []PeriodSummary) {
	year := 0
	var deficit, demand float64
	for i := range summaries {
		if i == 0 || summaries[i].Period.Year != year {
			year = summaries[i].Period.Year
			deficit, demand = 0, 0
		}
		deficit += summaries[i].Deficit
		demand += summaries[i].Demand
		summaries[i].YearToDateDeficit = deficit
		summaries[i].YearToDateDemand = demand
	}
}
