package domain

// Evaluate classifies one period summary against a parcel's threshold.
//
// Data sufficiency is checked first: when the gap-filled fraction exceeds
// opts.GapTolerance the verdict is indeterminate no matter what the numbers
// say. Otherwise the governing metric (deficit or demand, on the period or
// year-to-date basis) is compared with the threshold; exactly-at-threshold is
// compliant. Margin is metric minus threshold, so it is positive only when
// the parcel is out of compliance. The result depends only on the arguments;
// EvaluatedAt is left zero for the caller to stamp.
func Evaluate(summary PeriodSummary, threshold float64, opts Options) ComplianceVerdict {
	v := ComplianceVerdict{
		ParcelID:    summary.ParcelID,
		PeriodID:    summary.Period.ID,
		Metric:      opts.Metric,
		Basis:       opts.Basis,
		Threshold:   threshold,
		GapFraction: summary.GapFraction(),
	}

	if summary.TotalCount == 0 || v.GapFraction > opts.GapTolerance {
		v.Status = VerdictIndeterminate
		v.Reasons = []ReasonCode{ReasonDataInsufficient}
		return v
	}

	v.Value = governingValue(summary, opts)
	v.Margin = v.Value - threshold

	if v.Value <= threshold {
		v.Status = VerdictCompliant
		v.Reasons = []ReasonCode{ReasonDataSufficient, ReasonThresholdMet}
		return v
	}

	v.Status = VerdictNonCompliant
	v.Reasons = []ReasonCode{ReasonDataSufficient, ReasonThresholdExceeded}
	return v
}

// EvaluateAll classifies every summary of one parcel in order.
func EvaluateAll(summaries []PeriodSummary, threshold float64, opts Options) []ComplianceVerdict {
	verdicts := make([]ComplianceVerdict, len(summaries))
	for i, s := range summaries {
		verdicts[i] = Evaluate(s, threshold, opts)
	}
	return verdicts
}

func governingValue(s PeriodSummary, opts Options) float64 {
	switch {
	case opts.Metric == MetricDemand && opts.Basis == BasisYearToDate:
		return s.YearToDateDemand
	case opts.Metric == MetricDemand:
		return s.Demand
	case opts.Basis == BasisYearToDate:
		return s.YearToDateDeficit
	default:
		return s.Deficit
	}
}
