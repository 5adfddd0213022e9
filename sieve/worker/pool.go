// Package worker runs the generate and verify loop on a fixed pool of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/ZanzyTHEbar/keysieve/sieve/hits"
	"github.com/ZanzyTHEbar/keysieve/sieve/keygen"
	"github.com/ZanzyTHEbar/keysieve/sieve/verify"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// HitSink durably stores confirmed hits.
type HitSink interface {
	Append(rec hits.HitRecord) error
}

// Options configures a Pool.
type Options struct {
	// Workers defaults to the number of logical cores.
	Workers int
	// StopOnError cancels every worker when one of them fails.
	StopOnError bool
	// ReportInterval of zero disables progress logging.
	ReportInterval time.Duration
	RunID          uuid.UUID
}

// Pool owns the workers. Each worker holds read-only references to the
// verifier and shares the sink and notifier.
type Pool struct {
	source   keygen.Source
	verifier *verify.Verifier
	sink     HitSink
	notifier hits.Notifier
	opts     Options
	metrics  *PoolMetrics
	logger   zerolog.Logger
}

// New creates a Pool. A nil notifier disables alerts.
func New(source keygen.Source, verifier *verify.Verifier, sink HitSink, notifier hits.Notifier, opts Options, logger zerolog.Logger) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.RunID == uuid.Nil {
		opts.RunID = uuid.New()
	}
	if notifier == nil {
		notifier = hits.NopNotifier{}
	}
	return &Pool{
		source:   source,
		verifier: verifier,
		sink:     sink,
		notifier: notifier,
		opts:     opts,
		metrics:  newPoolMetrics(opts.Workers),
		logger:   logger.With().Str("component", "worker").Str("run", opts.RunID.String()).Logger(),
	}
}

// Metrics returns the live pool metrics.
func (p *Pool) Metrics() *PoolMetrics {
	return p.metrics
}

// Run starts the workers and blocks until ctx is cancelled, every worker's
// source is exhausted, or a worker fails. Cancellation is not an error.
func (p *Pool) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wp := pool.New().WithMaxGoroutines(p.opts.Workers).WithContext(ctx)
	if p.opts.StopOnError {
		wp = wp.WithCancelOnError().WithFirstError()
	}

	reportDone := make(chan struct{})
	if p.opts.ReportInterval > 0 {
		r := &reporter{metrics: p.metrics, verifier: p.verifier, interval: p.opts.ReportInterval, logger: p.logger}
		go func() {
			defer close(reportDone)
			r.run(ctx)
		}()
	} else {
		close(reportDone)
	}

	p.logger.Info().Int("workers", p.opts.Workers).Bool("stopOnError", p.opts.StopOnError).Msg("worker pool started")

	for _, m := range p.metrics.Workers {
		wp.Go(func(ctx context.Context) error {
			return p.work(ctx, m)
		})
	}

	err := wp.Wait()
	cancel()
	<-reportDone

	for _, m := range p.metrics.Workers {
		withMetrics(p.logger.Debug(), m).Msg("worker stopped")
	}
	iterations, _, _ := p.metrics.Totals()
	elapsed := time.Since(p.metrics.Started)
	withMetrics(p.logger.Info(), p.metrics).
		Float64("rate", float64(iterations)/max(elapsed.Seconds(), 1e-9)).
		Msg("worker pool stopped")

	return err
}

// work runs one worker loop: generate, verify, and record on a hit.
func (p *Pool) work(ctx context.Context, m *WorkerMetrics) error {
	log := p.logger.With().Int("worker", m.ID).Logger()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		c, err := p.source.Next()
		if errors.Is(err, keygen.ErrSourceExhausted) {
			log.Debug().Msg("candidate source exhausted")
			return nil
		}
		if err != nil {
			m.Skipped.Add(1)
			log.Debug().Err(err).Msg("skipping candidate")
			continue
		}
		m.Iterations.Add(1)

		res, err := p.verifier.Verify(ctx, c.Address)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("address", c.Address).Msg("verification failed")
			return fmt.Errorf("worker %d: %w", m.ID, err)
		}
		if res.Outcome != verify.ConfirmedHit {
			continue
		}

		m.Hits.Add(1)
		if err := p.record(ctx, log, c, res); err != nil {
			return fmt.Errorf("worker %d: %w", m.ID, err)
		}
	}
}

func (p *Pool) record(ctx context.Context, log zerolog.Logger, c keygen.Candidate, res verify.Result) error {
	rec := hits.HitRecord{
		Candidate: c,
		Key:       res.Key,
		Balance:   res.Record.Balance,
		FoundAt:   time.Now().UTC(),
	}

	if err := p.sink.Append(rec); err != nil {
		// The hit log is the only durable copy, so the block goes to the log instead.
		log.Error().
			Err(err).
			Str("address", c.Address).
			Str("record", string(rec.Format())).
			Msg("failed to persist confirmed hit")
		return err
	}

	if err := p.notifier.Notify(ctx, hits.NewAlert(p.opts.RunID, rec)); err != nil {
		log.Warn().Err(err).Str("address", c.Address).Msg("failed to send notification")
	}
	return nil
}
