// Package bench times Run calls on an open team.
package bench

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fxnlabs/pal/internal/hal"
	"github.com/fxnlabs/pal/internal/metrics"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultFlushSize is larger than the last level cache of common hosts.
const DefaultFlushSize = 32 << 20

// Item is one benchmark: a program run over a whole team.
type Item struct {
	Name    string
	Program *hal.Program
	Args    []string
	// Size is reported in the CSV output, e.g. the problem size passed in Args.
	Size int
}

// Harness runs items on a team and records per-iteration latencies.
type Harness struct {
	team   *hal.Team
	logger *zap.Logger
	flush  []byte
}

// Options sizes the cache flush area. Zero uses DefaultFlushSize.
type Options struct {
	FlushSize int
}

// New prepares a harness for team.
func New(team *hal.Team, opts Options, logger *zap.Logger) (*Harness, error) {
	if team == nil {
		return nil, fmt.Errorf("bench: nil team")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FlushSize <= 0 {
		opts.FlushSize = DefaultFlushSize
	}
	h := &Harness{
		team:   team,
		logger: logger.Named("bench"),
		flush:  make([]byte, opts.FlushSize),
	}
	// prefault the flush area
	fillPrandom(h.flush, 0)
	return h, nil
}

// fillPrandom writes a fixed byte sequence derived from seed.
func fillPrandom(p []byte, r uint32) {
	for i := range p {
		r = 7559*r + 5
		p[i] = byte(r)
	}
}

// invalidateCaches walks an area larger than the last level cache.
func (h *Harness) invalidateCaches() byte {
	var sum byte
	for i := 0; i < len(h.flush); i += 64 {
		h.flush[i]++
		sum += h.flush[i]
	}
	return sum
}

// Measure runs item iterations times after warmup untimed runs.
func (h *Harness) Measure(ctx context.Context, item Item, warmup, iterations int) (*Result, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("bench: iterations must be positive, got %d", iterations)
	}
	size := h.team.Size()
	for i := 0; i < warmup; i++ {
		if err := hal.Run(item.Program, h.team, 0, size, item.Args, 0); err != nil {
			return nil, fmt.Errorf("bench %s warmup: %w", item.Name, err)
		}
	}

	res := &Result{Name: item.Name, Size: item.Size, Durations: make([]time.Duration, 0, iterations)}
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		h.invalidateCaches()
		began := time.Now()
		err := hal.Run(item.Program, h.team, 0, size, item.Args, 0)
		d := time.Since(began)
		if err != nil {
			return res, fmt.Errorf("bench %s iteration %d: %w", item.Name, i, err)
		}
		res.Durations = append(res.Durations, d)
		metrics.BenchRunDuration.WithLabelValues(item.Name).Observe(float64(d) / float64(time.Millisecond))
	}
	s := res.Stats()
	h.logger.Info("item measured",
		zap.String("item", item.Name),
		zap.Int("iterations", iterations),
		zap.Duration("mean", s.Mean),
		zap.Duration("stddev", s.StdDev))
	return res, nil
}

// Result holds the latencies of one item.
type Result struct {
	Name      string
	Size      int
	Durations []time.Duration
}

// Stats summarizes a result.
type Stats struct {
	Mean   time.Duration
	StdDev time.Duration
	Min    time.Duration
	Max    time.Duration
}

func (r *Result) Stats() Stats {
	if len(r.Durations) == 0 {
		return Stats{}
	}
	ns := make([]float64, len(r.Durations))
	for i, d := range r.Durations {
		ns[i] = float64(d)
	}
	mean, std := stat.MeanStdDev(ns, nil)
	if len(ns) == 1 {
		std = 0
	}
	return Stats{
		Mean:   time.Duration(mean),
		StdDev: time.Duration(std),
		Min:    time.Duration(floats.Min(ns)),
		Max:    time.Duration(floats.Max(ns)),
	}
}

// WriteCSV writes one line per result with its mean duration.
func WriteCSV(w io.Writer, results []*Result) error {
	if _, err := fmt.Fprintln(w, ";name, size, duration (ns)"); err != nil {
		return err
	}
	for _, r := range results {
		if _, err := fmt.Fprintf(w, "%s, %d, %d\n", r.Name, r.Size, r.Stats().Mean.Nanoseconds()); err != nil {
			return err
		}
	}
	return nil
}
