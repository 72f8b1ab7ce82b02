// Package classify turns raw repository signals into an exclusive problem
// diagnosis with a short-term prediction and recurring-pattern detection.
package classify

import (
	"context"
	"sync"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
	"github.com/tinytelemetry/netwatch/internal/stats"

	"go.uber.org/zap"
)

// Thresholds tune the classification table.
type Thresholds struct {
	PacketLossPct      float64 // loss considered problematic over the 30 min window
	ConsecutiveLoss    int
	FirstHopLossPct    float64 // first-hop loss marking a local problem
	SuppressionWindow  time.Duration
	RecurringWindow    time.Duration
	RecurringCount     int
	HistorySize        int
}

// DefaultThresholds mirror the repository defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PacketLossPct:     model.DefaultPacketLossThreshold,
		ConsecutiveLoss:   model.DefaultConsecutiveLossThreshold,
		FirstHopLossPct:   20,
		SuppressionWindow: time.Minute,
		RecurringWindow:   time.Hour,
		RecurringCount:    3,
		HistorySize:       100,
	}
}

type record struct {
	kind model.ProblemKind
	at   time.Time
}

// Classifier evaluates periodically and on demand after connection-state
// transitions.
type Classifier struct {
	th      Thresholds
	repo    *stats.Repository
	trigger func(ctx context.Context) bool // escalation hook into the route detector
	now     func() time.Time
	log     *zap.Logger

	mu      sync.Mutex
	history []record
}

// New wires the classifier. trigger may be nil.
func New(th Thresholds, repo *stats.Repository, trigger func(ctx context.Context) bool, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{th: th, repo: repo, trigger: trigger, now: time.Now, log: log}
}

// RunOnce is the periodic worker entry point.
func (c *Classifier) RunOnce(ctx context.Context) error {
	c.Evaluate(ctx)
	return nil
}

// Evaluate classifies the current snapshot and writes the diagnosis back.
// It is called synchronously on disconnect/recover so the dashboard never
// shows a stale state.
func (c *Classifier) Evaluate(ctx context.Context) model.Diagnosis {
	snap := c.repo.Snapshot()
	now := c.now().UTC()

	kind := c.classify(snap)
	c.recordProblem(kind, now)

	d := model.Diagnosis{
		Kind:        kind,
		Prediction:  c.predict(kind, now),
		Recurring:   c.recurring(kind, now),
		Pattern:     c.pattern(),
		Cause:       cause(kind),
		EvaluatedAt: now,
	}
	c.repo.SetDiagnosis(d)

	if (kind == model.ProblemISP || kind == model.ProblemLocal) && c.trigger != nil {
		c.trigger(ctx)
	}
	return d
}

// classify walks the decision table top-down; first match wins.
func (c *Classifier) classify(snap model.StatsSnapshot) model.ProblemKind {
	loss := snap.LossPct()

	if snap.ConnectionLost || snap.Counters.ConsecutiveLost >= c.th.ConsecutiveLoss {
		return model.ProblemISP
	}

	if loss > c.th.PacketLossPct && firstHopLoss(snap.Hops) > c.th.FirstHopLossPct {
		return model.ProblemLocal
	}

	if bucketRank(snap.DNSBucket) <= bucketRank(model.DNSPoor) && loss <= c.th.PacketLossPct {
		return model.ProblemDNS
	}

	if snap.MTU.Issue && loss > 0 {
		return model.ProblemMTU
	}

	if loss > 0 {
		return model.ProblemUnknown
	}
	return model.ProblemNone
}

// recordProblem appends to history unless the same kind was recorded within
// the suppression window. The check happens before appending so a sustained
// incident cannot flood the history.
func (c *Classifier) recordProblem(kind model.ProblemKind, now time.Time) {
	if kind == model.ProblemNone {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := len(c.history); n > 0 {
		last := c.history[n-1]
		if last.kind == kind && now.Sub(last.at) < c.th.SuppressionWindow {
			return
		}
	}
	c.history = append(c.history, record{kind: kind, at: now})
	if len(c.history) > c.th.HistorySize {
		c.history = c.history[len(c.history)-c.th.HistorySize:]
	}
	c.log.Info("problem recorded", zap.String("kind", string(kind)))
}

func (c *Classifier) predict(kind model.ProblemKind, now time.Time) model.Prediction {
	if kind != model.ProblemNone {
		return model.PredictionRisk
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[model.ProblemKind]int)
	cutoff := now.Add(-c.th.RecurringWindow)
	for _, r := range c.history {
		if r.at.After(cutoff) {
			counts[r.kind]++
		}
	}
	for _, n := range counts {
		if n >= c.th.RecurringCount {
			return model.PredictionRisk
		}
	}
	return model.PredictionStable
}

func (c *Classifier) recurring(kind model.ProblemKind, now time.Time) bool {
	if kind == model.ProblemNone {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := now.Add(-c.th.RecurringWindow)
	n := 0
	for _, r := range c.history {
		if r.kind == kind && r.at.After(cutoff) {
			n++
		}
	}
	return n >= c.th.RecurringCount
}

// pattern reports the dominant problem kind when it covers at least half of
// the bounded history.
func (c *Classifier) pattern() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) < 10 {
		return ""
	}
	counts := make(map[model.ProblemKind]int)
	for _, r := range c.history {
		counts[r.kind]++
	}
	var dominant model.ProblemKind
	max := 0
	for k, n := range counts {
		if n > max {
			dominant, max = k, n
		}
	}
	if max*2 >= len(c.history) {
		return string(dominant)
	}
	return ""
}

func cause(kind model.ProblemKind) string {
	switch kind {
	case model.ProblemISP:
		return "target unreachable or sustained loss toward the provider"
	case model.ProblemLocal:
		return "loss already present at the first hop"
	case model.ProblemDNS:
		return "resolver degraded while connectivity is fine"
	case model.ProblemMTU:
		return "path MTU below local MTU with intermittent loss"
	case model.ProblemUnknown:
		return "loss present without a clear bucket"
	}
	return ""
}

func firstHopLoss(hops []model.HopStatus) float64 {
	if len(hops) == 0 {
		return 0
	}
	return hops[0].LossPct()
}

func bucketRank(b model.DNSScoreBucket) int {
	switch b {
	case model.DNSCritical:
		return 0
	case model.DNSPoor:
		return 1
	case model.DNSFair:
		return 2
	case model.DNSGood:
		return 3
	default:
		return 4
	}
}
