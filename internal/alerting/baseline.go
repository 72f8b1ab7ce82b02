// Package alerting transforms raw threshold crossings into deduplicated,
// grouped, prioritized, fatigue-suppressed alerts committed through the
// repository.
package alerting

import (
	"math"
	"sort"
	"sync"
)

// BaselineConfig bounds one adaptive threshold.
type BaselineConfig struct {
	Metric        string
	Static        float64 // used until warm-up completes
	Min           float64
	Max           float64
	Sigma         float64 // k in mu + k*sigma
	UsePercentile bool    // 95th percentile instead of sigma band (loss)
	MinSamples    int
	WindowSize    int
}

// Baseline keeps a bounded sample window per metric and derives an adaptive
// threshold once warmed up.
type Baseline struct {
	cfg BaselineConfig

	mu      sync.Mutex
	samples []float64
}

// NewBaseline builds a baseline for one metric.
func NewBaseline(cfg BaselineConfig) *Baseline {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 5
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 360
	}
	if cfg.Sigma <= 0 {
		cfg.Sigma = 2.0
	}
	return &Baseline{cfg: cfg}
}

// Observe feeds one sample into the window.
func (b *Baseline) Observe(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	b.mu.Lock()
	b.samples = append(b.samples, v)
	if len(b.samples) > b.cfg.WindowSize {
		b.samples = b.samples[len(b.samples)-b.cfg.WindowSize:]
	}
	b.mu.Unlock()
}

// WarmedUp reports whether enough samples exist for adaptive thresholds.
func (b *Baseline) WarmedUp() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples) >= b.cfg.MinSamples
}

// Threshold returns the current threshold: the static default before
// warm-up, then mu+k*sigma or the 95th percentile, clamped into [Min, Max].
func (b *Baseline) Threshold() float64 {
	b.mu.Lock()
	samples := append([]float64(nil), b.samples...)
	b.mu.Unlock()

	if len(samples) < b.cfg.MinSamples {
		return b.cfg.Static
	}

	var threshold float64
	if b.cfg.UsePercentile {
		threshold = percentile(samples, 0.95)
	} else {
		mean, sd := meanStdev(samples)
		threshold = mean + b.cfg.Sigma*sd
	}

	if b.cfg.Min > 0 && threshold < b.cfg.Min {
		threshold = b.cfg.Min
	}
	if b.cfg.Max > 0 && threshold > b.cfg.Max {
		threshold = b.cfg.Max
	}
	return threshold
}

// Mean returns the current window mean (0 before any sample).
func (b *Baseline) Mean() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.samples) == 0 {
		return 0
	}
	m, _ := meanStdev(b.samples)
	return m
}

// Stdev returns the current window standard deviation.
func (b *Baseline) Stdev() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, sd := meanStdev(b.samples)
	return sd
}

func meanStdev(values []float64) (mean, sd float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if len(values) < 2 {
		return mean, 0
	}
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(variance / float64(len(values)-1))
}

func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
