package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/landrepurpose/lrp-smb/internal/domain"
	"github.com/landrepurpose/lrp-smb/internal/observability"
)

// ParcelLoader supplies the parcels to evaluate on each pass.
type ParcelLoader interface {
	Parcels(ctx context.Context) ([]domain.Parcel, error)
}

// BatchLoader writes verdicts to a destination.
type BatchLoader interface {
	Name() string
	LoadBatch(ctx context.Context, verdicts []domain.ComplianceVerdict) error
}

// ReportWriter receives every completed batch.
type ReportWriter interface {
	WriteBatch(batch BatchResult, opts domain.Options) error
}

// Pipeline re-evaluates the registry on a fixed interval and fans the
// verdicts out to its loaders.
type Pipeline struct {
	parcels  ParcelLoader
	runner   *Runner
	loaders  []BatchLoader
	reports  []ReportWriter
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
	interval time.Duration

	// maxLoadElapsed bounds the retries of a single loader per batch.
	maxLoadElapsed time.Duration

	ready  atomic.Bool
	latest atomic.Pointer[BatchResult]
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithLoaders adds verdict destinations.
func WithLoaders(l ...BatchLoader) Option {
	return func(p *Pipeline) { p.loaders = append(p.loaders, l...) }
}

// WithReports adds report destinations.
func WithReports(r ...ReportWriter) Option {
	return func(p *Pipeline) { p.reports = append(p.reports, r...) }
}

// WithClock replaces the real clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithLoadRetry bounds how long a failing loader is retried per batch.
func WithLoadRetry(maxElapsed time.Duration) Option {
	return func(p *Pipeline) { p.maxLoadElapsed = maxElapsed }
}

// New creates a Pipeline that runs every interval.
func New(parcels ParcelLoader, runner *Runner, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		parcels:        parcels,
		runner:         runner,
		logger:         logger,
		metrics:        metrics,
		clock:          clockwork.NewRealClock(),
		interval:       interval,
		maxLoadElapsed: 30 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// CheckReadiness returns nil once the pipeline has completed a batch.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed an evaluation yet")
	}
	return nil
}

// Latest returns the most recent completed batch.
func (p *Pipeline) Latest() (BatchResult, bool) {
	b := p.latest.Load()
	if b == nil {
		return BatchResult{}, false
	}
	return *b, true
}

// Run evaluates immediately and then once per interval until ctx is
// cancelled. A failed pass is logged and retried on the next tick.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "interval", p.interval, "workers", p.runner.workers)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("evaluation pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// RunOnce performs a single load-evaluate-publish pass.
func (p *Pipeline) RunOnce(ctx context.Context) (BatchResult, error) {
	start := p.clock.Now()

	parcels, err := p.parcels.Parcels(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("load parcels: %w", err)
	}
	p.metrics.BatchParcels.Observe(float64(len(parcels)))

	batch := p.runner.EvaluateAll(ctx, parcels)
	if ctx.Err() != nil {
		return batch, ctx.Err()
	}

	verdicts := batch.Verdicts()
	var loadErrs []error
	for _, l := range p.loaders {
		if err := p.load(ctx, l, verdicts); err != nil {
			loadErrs = append(loadErrs, err)
		}
	}
	for _, r := range p.reports {
		if err := r.WriteBatch(batch, p.runner.Options()); err != nil {
			p.logger.Error("write report failed", "error", err)
			loadErrs = append(loadErrs, fmt.Errorf("write report: %w", err))
		}
	}

	p.latest.Store(&batch)
	p.ready.Store(true)
	p.metrics.BatchDuration.Observe(p.clock.Since(start).Seconds())

	p.logger.Info("evaluation pass complete",
		"parcels", len(parcels),
		"evaluated", len(batch.Results),
		"failed", len(batch.Errors),
		"verdicts", len(verdicts),
	)
	return batch, errors.Join(loadErrs...)
}

// load publishes to one loader, retrying with exponential backoff.
func (p *Pipeline) load(ctx context.Context, l BatchLoader, verdicts []domain.ComplianceVerdict) error {
	if len(verdicts) == 0 {
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = p.maxLoadElapsed

	op := func() error {
		err := l.LoadBatch(ctx, verdicts)
		if err != nil {
			p.metrics.LoadErrors.WithLabelValues(l.Name()).Inc()
			p.logger.Warn("load batch failed", "sink", l.Name(), "error", err, "batch_size", len(verdicts))
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("load %s: %w", l.Name(), err)
	}
	return nil
}
