package dnsmon

import (
	"math"
	"sync"

	"github.com/tinytelemetry/netwatch/internal/model"
	"github.com/tinytelemetry/netwatch/internal/stats"
)

// Score weights: record success dominates, then benchmark reliability, then
// latency. The latency term is normalized as min(1, avgRTT/slowThreshold).
const (
	weightRecords     = 0.40
	weightReliability = 0.30
	weightLatency     = 0.30
)

// Scorer folds monitor and benchmark results into one composite DNS score
// in [0, 100], bucketed for the dashboard and classifier.
type Scorer struct {
	slowThresholdMs float64

	mu      sync.Mutex
	records []model.DNSRecordStatus
	bench   []model.DNSBenchStats
}

// NewScorer builds a scorer with the configured slow threshold.
func NewScorer(slowThresholdMs float64) *Scorer {
	if slowThresholdMs <= 0 {
		slowThresholdMs = model.DefaultDNSSlowThreshold
	}
	return &Scorer{slowThresholdMs: slowThresholdMs}
}

// SetRecordResults stores the latest monitor results.
func (s *Scorer) SetRecordResults(results []model.DNSRecordStatus) {
	s.mu.Lock()
	s.records = results
	s.mu.Unlock()
}

// SetBenchResults stores the latest benchmark aggregates.
func (s *Scorer) SetBenchResults(results []model.DNSBenchStats) {
	s.mu.Lock()
	s.bench = results
	s.mu.Unlock()
}

// Score computes the composite value and its bucket.
func (s *Scorer) Score() (float64, model.DNSScoreBucket) {
	s.mu.Lock()
	records := s.records
	bench := s.bench
	s.mu.Unlock()

	successRate := 1.0
	if len(records) > 0 {
		ok := 0
		for _, r := range records {
			if r.OK {
				ok++
			}
		}
		successRate = float64(ok) / float64(len(records))
	}

	reliability := 1.0
	avgLatency := 0.0
	if len(bench) > 0 {
		relSum, latSum := 0.0, 0.0
		latN := 0
		for _, b := range bench {
			relSum += b.Reliability
			if b.AvgMs > 0 {
				latSum += b.AvgMs
				latN++
			}
		}
		reliability = relSum / float64(len(bench))
		if latN > 0 {
			avgLatency = latSum / float64(latN)
		}
	}

	normalized := math.Min(1, avgLatency/s.slowThresholdMs)
	score := 100 * (weightRecords*successRate + weightReliability*reliability + weightLatency*(1-normalized))
	score = math.Min(100, math.Max(0, score))
	return score, Bucket(score)
}

// Commit writes the current score into the repository.
func (s *Scorer) Commit(repo *stats.Repository) {
	score, bucket := s.Score()
	repo.UpdateDNSScore(score, bucket)
}

// Bucket maps a score to its quality band.
func Bucket(score float64) model.DNSScoreBucket {
	switch {
	case score >= 90:
		return model.DNSExcellent
	case score >= 75:
		return model.DNSGood
	case score >= 60:
		return model.DNSFair
	case score >= 40:
		return model.DNSPoor
	default:
		return model.DNSCritical
	}
}
