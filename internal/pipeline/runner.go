package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/landrepurpose/lrp-smb/internal/domain"
	"github.com/landrepurpose/lrp-smb/internal/observability"
	"golang.org/x/sync/errgroup"
)

// SeriesSource supplies a parcel's raw observation series.
type SeriesSource interface {
	Observations(ctx context.Context, parcel domain.Parcel) ([]domain.ObservationRecord, error)
}

// BatchResult collects one evaluation of many parcels. Every parcel handed to
// the runner lands in exactly one of the two maps.
type BatchResult struct {
	Results    map[string]ParcelResult
	Errors     map[string]error
	StartedAt  time.Time
	FinishedAt time.Time
}

// ParcelIDs returns every parcel id in the batch, sorted.
func (b BatchResult) ParcelIDs() []string {
	ids := make([]string, 0, len(b.Results)+len(b.Errors))
	for id := range b.Results {
		ids = append(ids, id)
	}
	for id := range b.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Verdicts flattens the batch's verdicts, ordered by parcel then period.
func (b BatchResult) Verdicts() []domain.ComplianceVerdict {
	var out []domain.ComplianceVerdict
	for _, id := range b.ParcelIDs() {
		if r, ok := b.Results[id]; ok {
			out = append(out, r.Verdicts...)
		}
	}
	return out
}

// Runner evaluates parcels concurrently on a bounded pool. Each parcel's
// stages run sequentially on one goroutine; parcels share no mutable state.
type Runner struct {
	source    SeriesSource
	processor *Processor
	workers   int
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewRunner validates the options up front so a bad configuration fails
// before any parcel is touched.
func NewRunner(source SeriesSource, opts domain.Options, workers int, logger *slog.Logger, metrics *observability.Metrics) (*Runner, error) {
	processor, err := NewProcessor(opts)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		return nil, &domain.ConfigurationError{Field: "workers", Reason: fmt.Sprintf("must be at least 1, got %d", workers)}
	}
	return &Runner{
		source:    source,
		processor: processor,
		workers:   workers,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// WithClock replaces the clock used for batch timestamps.
func (r *Runner) WithClock(c clockwork.Clock) *Runner {
	r.clock = c
	return r
}

// WithAsOf sets the date observations are expected up to; see
// Processor.WithAsOf.
func (r *Runner) WithAsOf(t time.Time) *Runner {
	r.processor.WithAsOf(t)
	return r
}

// Options returns the validated option set.
func (r *Runner) Options() domain.Options { return r.processor.Options() }

// EvaluateAll runs every parcel and collects the outcome. A failing parcel
// never affects the others. Once ctx is done no new parcel starts; parcels
// that never started are recorded with the context error.
func (r *Runner) EvaluateAll(ctx context.Context, parcels []domain.Parcel) BatchResult {
	batch := BatchResult{
		Results:   make(map[string]ParcelResult, len(parcels)),
		Errors:    make(map[string]error),
		StartedAt: r.clock.Now().UTC(),
	}

	// Every verdict of one pass carries the pass's start time.
	var mu sync.Mutex
	record := func(id string, res ParcelResult, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			batch.Errors[id] = err
			return
		}
		for i := range res.Verdicts {
			res.Verdicts[i].EvaluatedAt = batch.StartedAt
		}
		batch.Results[id] = res
	}

	todo := r.dedupe(parcels, record)

	var g errgroup.Group
	g.SetLimit(r.workers)

	for _, p := range todo {
		if err := ctx.Err(); err != nil {
			record(p.ID, ParcelResult{}, err)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				record(p.ID, ParcelResult{}, err)
				return nil
			}
			res, err := r.evaluate(ctx, p)
			record(p.ID, res, err)
			return nil
		})
	}
	_ = g.Wait()

	batch.FinishedAt = r.clock.Now().UTC()
	return batch
}

// dedupe records every id that appears more than once as an error and
// returns the parcels that are safe to run.
func (r *Runner) dedupe(parcels []domain.Parcel, record func(string, ParcelResult, error)) []domain.Parcel {
	counts := make(map[string]int, len(parcels))
	for _, p := range parcels {
		counts[p.ID]++
	}

	todo := make([]domain.Parcel, 0, len(parcels))
	for _, p := range parcels {
		switch n := counts[p.ID]; {
		case n == 1:
			todo = append(todo, p)
		case n > 1:
			record(p.ID, ParcelResult{}, &domain.InvalidInputError{
				ParcelID: p.ID,
				Reason:   fmt.Sprintf("parcel id listed %d times", n),
			})
			counts[p.ID] = 0
		}
	}
	return todo
}

func (r *Runner) evaluate(ctx context.Context, p domain.Parcel) (ParcelResult, error) {
	records, err := r.source.Observations(ctx, p)
	if err != nil {
		r.parcelFailed(p.ID, err)
		return ParcelResult{}, fmt.Errorf("load observations: %w", err)
	}
	if r.metrics != nil {
		r.metrics.SourceRecords.Add(float64(len(records)))
	}

	res, err := r.processor.Process(p, records)
	if err != nil {
		r.parcelFailed(p.ID, err)
		return ParcelResult{}, err
	}

	if r.metrics != nil {
		r.metrics.ParcelsEvaluated.Inc()
		for _, v := range res.Verdicts {
			r.metrics.Verdicts.WithLabelValues(string(v.Status)).Inc()
		}
	}
	r.logger.Debug("parcel evaluated",
		"parcel_id", p.ID,
		"dates", len(res.States),
		"periods", len(res.Summaries),
	)
	return res, nil
}

func (r *Runner) parcelFailed(id string, err error) {
	if r.metrics != nil {
		r.metrics.ParcelErrors.Inc()
	}
	r.logger.Warn("parcel evaluation failed", "parcel_id", id, "error", err)
}
