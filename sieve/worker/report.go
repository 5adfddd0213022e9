package worker

import (
	"context"
	"time"

	"github.com/ZanzyTHEbar/keysieve/sieve/verify"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// Progress is the throughput observed over one reporting interval.
type Progress struct {
	Iterations int64
	Rate       float64 // iterations per second, all workers
	MeanRate   float64 // per worker
	StdDevRate float64 // per worker
}

// Summarize computes throughput from two per-worker iteration samples taken
// elapsed apart.
func Summarize(prev, cur []int64, elapsed time.Duration) Progress {
	var p Progress
	if elapsed <= 0 || len(cur) == 0 {
		return p
	}

	rates := make([]float64, len(cur))
	secs := elapsed.Seconds()
	for i := range cur {
		var before int64
		if i < len(prev) {
			before = prev[i]
		}
		delta := cur[i] - before
		p.Iterations += delta
		rates[i] = float64(delta) / secs
	}

	p.Rate = float64(p.Iterations) / secs
	if len(rates) > 1 {
		p.MeanRate, p.StdDevRate = stat.MeanStdDev(rates, nil)
	} else {
		p.MeanRate = rates[0]
	}
	return p
}

// reporter logs pool throughput every interval until ctx is done.
type reporter struct {
	metrics  *PoolMetrics
	verifier *verify.Verifier
	interval time.Duration
	logger   zerolog.Logger
}

func (r *reporter) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	prev := r.metrics.Iterations()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			cur := r.metrics.Iterations()
			r.log(Summarize(prev, cur, now.Sub(last)))
			prev, last = cur, now
		}
	}
}

func (r *reporter) log(p Progress) {
	st := r.verifier.Stats()
	r.logger.Info().
		Int64("iterations", p.Iterations).
		Float64("rate", p.Rate).
		Float64("meanWorkerRate", p.MeanRate).
		Float64("stddevWorkerRate", p.StdDevRate).
		Int64("tested", st.Tested).
		Int64("falsePositives", st.FalsePositives).
		Int64("hits", st.ConfirmedHits).
		Msg("progress")
}
