package pipeline

import (
	"time"

	"github.com/landrepurpose/lrp-smb/internal/domain"
)

// ParcelResult is everything one parcel run produced: the numeric trace,
// the period roll-up and the verdicts.
type ParcelResult struct {
	Parcel    domain.Parcel              `json:"parcel"`
	States    []domain.BalanceState      `json:"states,omitempty"`
	Summaries []domain.PeriodSummary     `json:"summaries"`
	Verdicts  []domain.ComplianceVerdict `json:"verdicts"`
}

// Processor runs the three core stages for a single parcel.
type Processor struct {
	opts domain.Options
	asOf time.Time
}

// NewProcessor validates opts and returns a Processor bound to them.
func NewProcessor(opts domain.Options) (*Processor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Processor{opts: opts}, nil
}

// Options returns the option set the processor was built with.
func (p *Processor) Options() domain.Options { return p.opts }

// WithAsOf sets the date data is expected up to. Zero means today.
func (p *Processor) WithAsOf(t time.Time) *Processor {
	p.asOf = t
	return p
}

// Process densifies the parcel's series, runs the balance over it, rolls the
// trace up into periods and evaluates each one.
func (p *Processor) Process(parcel domain.Parcel, records []domain.ObservationRecord) (ParcelResult, error) {
	if err := parcel.Validate(); err != nil {
		return ParcelResult{}, err
	}

	from, to := p.coverage(parcel, records)
	dense, err := domain.FillGaps(parcel.ID, records, from, to, p.opts.Cadence)
	if err != nil {
		return ParcelResult{}, err
	}

	states, err := domain.RunBalance(domain.NewBalanceInput(parcel, dense, p.opts), p.opts)
	if err != nil {
		return ParcelResult{}, err
	}

	summaries := domain.Aggregate(parcel.ID, states, parcel.Enrollment, p.opts.Scheme)

	return ParcelResult{
		Parcel:    parcel,
		States:    states,
		Summaries: summaries,
		Verdicts:  domain.EvaluateAll(summaries, parcel.Threshold, p.opts),
	}, nil
}

// coverage widens the series to the enrollment window so that missing
// lead-in and tail dates count as gaps. The tail stops at the as-of date;
// an open-ended enrollment ends at the last record. Zero bounds leave
// FillGaps to use the records' own range.
func (p *Processor) coverage(parcel domain.Parcel, records []domain.ObservationRecord) (from, to time.Time) {
	if len(records) == 0 {
		return time.Time{}, time.Time{}
	}

	if start := parcel.Enrollment.Start; !start.IsZero() && start.Before(records[0].Date) {
		from = start
	}

	end := parcel.Enrollment.End
	if end.IsZero() {
		return from, time.Time{}
	}
	asOf := p.asOf
	if asOf.IsZero() {
		asOf = domain.Today()
	}
	if asOf.Before(end) {
		end = asOf
	}
	if end.After(records[len(records)-1].Date) {
		to = end
	}
	return from, to
}
