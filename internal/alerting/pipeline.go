package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
	"github.com/tinytelemetry/netwatch/internal/stats"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config tunes the pipeline.
type Config struct {
	Target              string
	RatePerMinute       float64
	RateBurst           int
	DedupWindow         time.Duration
	GroupWindow         time.Duration
	EscalationAfter     time.Duration
	RecoveryEvaluations int
	SoundEnabled        bool
	SoundCooldown       time.Duration // minimum spacing between audible alerts
	Quiet               *QuietHours

	StaticLatency float64
	StaticJitter  float64
	StaticLoss    float64
	MinSamples    int
}

// Pipeline is the smart-alert engine. Each tick it derives candidate
// conditions from a snapshot and pushes them through the stages in order:
// adaptive thresholds, rate limit, priority, dedup, grouping, recovery,
// fatigue, quiet hours.
type Pipeline struct {
	cfg  Config
	repo *stats.Repository
	log  *zap.Logger
	now  func() time.Time

	latency *Baseline
	jitter  *Baseline
	loss    *Baseline

	dedup   *Deduplicator
	grouper *Grouper
	prio    *Prioritizer
	fatigue *Fatigue

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	falseRuns   map[string]int
	lastEvalAt  time.Time
	lastSoundAt time.Time
	soundFired  func(model.AlertType) // test hook; nil in production
}

// New wires the pipeline.
func New(cfg Config, repo *stats.Repository, log *zap.Logger) *Pipeline {
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 5
	}
	if cfg.RecoveryEvaluations <= 0 {
		cfg.RecoveryEvaluations = 3
	}
	if cfg.StaticLatency <= 0 {
		cfg.StaticLatency = model.DefaultAvgLatencyThreshold
	}
	if cfg.StaticJitter <= 0 {
		cfg.StaticJitter = model.DefaultJitterThreshold
	}
	if cfg.StaticLoss <= 0 {
		cfg.StaticLoss = model.DefaultPacketLossThreshold
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 30
	}
	if cfg.Quiet == nil {
		cfg.Quiet = &QuietHours{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Pipeline{
		cfg:  cfg,
		repo: repo,
		log:  log,
		now:  time.Now,

		latency: NewBaseline(BaselineConfig{
			Metric: "avg_latency", Static: cfg.StaticLatency,
			Min: 20, Max: 500, MinSamples: cfg.MinSamples,
		}),
		jitter: NewBaseline(BaselineConfig{
			Metric: "jitter", Static: cfg.StaticJitter,
			Min: 10, Max: 100, MinSamples: cfg.MinSamples,
		}),
		loss: NewBaseline(BaselineConfig{
			Metric: "packet_loss", Static: cfg.StaticLoss,
			Min: 1, Max: 20, UsePercentile: true, MinSamples: cfg.MinSamples,
		}),

		dedup:   NewDeduplicator(cfg.DedupWindow, 0.85),
		grouper: NewGrouper(cfg.GroupWindow, 0),
		prio:    NewPrioritizer(cfg.EscalationAfter),
		fatigue: NewFatigue(),

		limiters:  make(map[string]*rate.Limiter),
		falseRuns: make(map[string]int),
	}
}

// SetClock overrides the pipeline time source. Scenario tests drive fake
// time through it; production wiring leaves the default.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// candidate is one evaluated condition.
type candidate struct {
	typ     model.AlertType
	ctx     model.AlertContext
	metric  string
	value   float64
	message string
	firing  bool
}

// RunOnce evaluates one pipeline tick.
func (p *Pipeline) RunOnce(_ context.Context) error {
	snap := p.repo.Snapshot()
	now := p.now().UTC()

	p.observe(snap)
	cands := p.conditions(snap, now)

	firing := make(map[string]bool, len(cands))
	for _, c := range cands {
		fp := model.ComputeFingerprint(c.typ, c.ctx)
		if c.firing {
			firing[fp] = true
			p.process(c, fp, now)
		}
	}
	p.recover(firing, now)

	p.mu.Lock()
	p.lastEvalAt = now
	p.mu.Unlock()
	return nil
}

// observe feeds the watched metrics into their baselines. Each baseline is a
// single bounded window of recent samples; samples are not bucketed by hour.
func (p *Pipeline) observe(snap model.StatsSnapshot) {
	if snap.Counters.OK > 0 {
		p.latency.Observe(snap.AvgRTT())
		p.jitter.Observe(snap.Jitter)
	}
	if len(snap.Recent) > 0 {
		p.loss.Observe(snap.LossPct())
	}
}

// conditions derives every watched condition from the snapshot. All
// candidates are returned, firing or not, so recovery can track each one.
func (p *Pipeline) conditions(snap model.StatsSnapshot, now time.Time) []candidate {
	target := p.cfg.Target
	netCtx := func(service, component, problem string) model.AlertContext {
		return model.AlertContext{Service: service, Component: component, Problem: problem, Target: target}
	}

	loss := snap.LossPct()
	avg := snap.AvgRTT()

	out := []candidate{
		{
			typ: model.AlertConnectionLost, ctx: netCtx("ping", "connectivity", "availability"),
			metric: "connection", value: float64(snap.Counters.ConsecutiveLost),
			message: fmt.Sprintf("connection lost to %s (%d consecutive losses)", target, snap.Counters.ConsecutiveLost),
			firing:  snap.ConnectionLost,
		},
		{
			typ: model.AlertPacketLoss, ctx: netCtx("ping", "network", "performance"),
			metric: "packet_loss", value: loss,
			message: fmt.Sprintf("packet loss %.1f%% to %s", loss, target),
			firing:  len(snap.Recent) > 0 && loss > p.loss.Threshold(),
		},
		{
			typ: model.AlertHighAvgLatency, ctx: netCtx("ping", "latency", "performance"),
			metric: "avg_latency", value: avg,
			message: fmt.Sprintf("average latency %.1f ms to %s", avg, target),
			firing:  snap.Counters.OK > 0 && avg > p.latency.Threshold(),
		},
		{
			typ: model.AlertHighJitter, ctx: netCtx("ping", "latency", "performance"),
			metric: "jitter", value: snap.Jitter,
			message: fmt.Sprintf("jitter %.1f ms to %s", snap.Jitter, target),
			firing:  snap.Counters.OK > 0 && snap.Jitter > p.jitter.Threshold(),
		},
		{
			typ: model.AlertMTUIssue, ctx: netCtx("mtu", "network", "performance"),
			metric: "path_mtu", value: float64(snap.MTU.PathMTU),
			message: fmt.Sprintf("path MTU %d below local MTU %d", snap.MTU.PathMTU, snap.MTU.LocalMTU),
			firing:  snap.MTU.Issue,
		},
		{
			typ: model.AlertDNSFailure, ctx: netCtx("dns", "resolution", "availability"),
			metric: "dns_score", value: snap.DNSScore,
			message: fmt.Sprintf("dns degraded, score %.0f (%s)", snap.DNSScore, snap.DNSBucket),
			firing:  snap.DNSBucket == model.DNSPoor || snap.DNSBucket == model.DNSCritical,
		},
		{
			typ: model.AlertRouteChange, ctx: netCtx("route", "network", "stability"),
			metric: "route_changes", value: float64(snap.RouteChangeCount),
			message: fmt.Sprintf("route to %s changed (%d hops differ)", target, snap.RouteLastDiffCount),
			firing:  p.freshEvent(snap.RouteLastChangeAt, now),
		},
		{
			typ: model.AlertIPChange, ctx: netCtx("ip", "identity", "stability"),
			metric: "public_ip", value: 0,
			message: fmt.Sprintf("public IP changed from %s to %s", snap.PreviousIP, snap.PublicIP.IP),
			firing:  p.freshEvent(snap.IPChangedAt, now),
		},
		{
			typ: model.AlertHopIssue, ctx: netCtx("hop", "network", "performance"),
			metric: "route_health", value: snap.RouteStats.AvgLossPct,
			message: fmt.Sprintf("route degraded: hops %v losing packets", snap.RouteStats.ProblemHops),
			firing:  snap.RouteStats.Health == model.RouteCritical,
		},
	}
	return out
}

// freshEvent reports whether an event timestamp landed since the last tick.
func (p *Pipeline) freshEvent(at, now time.Time) bool {
	if at.IsZero() {
		return false
	}
	p.mu.Lock()
	last := p.lastEvalAt
	p.mu.Unlock()
	if last.IsZero() {
		return false
	}
	return at.After(last) && !at.After(now)
}

// process pushes one firing candidate through the emission stages.
func (p *Pipeline) process(c candidate, fp string, now time.Time) {
	// Condition is live: any recovery run restarts.
	p.mu.Lock()
	p.falseRuns[fp] = 0
	p.mu.Unlock()

	// Rate limit per fingerprint.
	if !p.limiter(fp).Allow() {
		p.log.Debug("alert rate limited", zap.String("type", string(c.typ)))
		return
	}

	a := model.Alert{
		ID:          uuid.NewString()[:8],
		Type:        c.typ,
		Message:     c.message,
		Context:     c.ctx,
		Fingerprint: fp,
		State:       model.AlertPending,
		CreatedAt:   now,
		LastSeenAt:  now,
		Metric:      c.metric,
		Value:       c.value,
	}
	a.Priority = p.prio.Calculate(a, now)
	a.Severity = severityFor(a.Priority)

	if p.dedup.ShouldSuppress(a, now) {
		// Known incident: refresh last-seen under the fatigue schedule, but
		// never materialize an alert that grouping absorbed earlier.
		if p.isActive(fp) && p.fatigue.Allow(fp, now) {
			p.repo.PutAlert(a)
		}
		return
	}

	if p.grouper.Suppressed(a, now) {
		p.log.Debug("alert absorbed by root cause", zap.String("type", string(c.typ)))
		return
	}
	grp := p.grouper.Add(&a, now)
	a.GroupID = grp.ID

	if !p.fatigue.Allow(fp, now) {
		return
	}

	a.Sound = p.cfg.SoundEnabled && !p.cfg.Quiet.Active(now) && p.soundAllowed(now)
	if a.Sound && p.soundFired != nil {
		p.soundFired(a.Type)
	}

	p.repo.PutAlert(a)
	p.log.Info("alert raised",
		zap.String("type", string(c.typ)),
		zap.String("severity", string(a.Severity)),
		zap.String("priority", a.Priority.String()))
}

// recover advances the false-run counters and auto-recovers alerts whose
// condition stayed false for the configured number of evaluations.
func (p *Pipeline) recover(firing map[string]bool, now time.Time) {
	for _, a := range p.repo.ActiveAlerts() {
		if firing[a.Fingerprint] {
			continue
		}
		p.mu.Lock()
		p.falseRuns[a.Fingerprint]++
		runs := p.falseRuns[a.Fingerprint]
		p.mu.Unlock()

		if runs >= p.cfg.RecoveryEvaluations {
			if p.repo.ResolveAlert(a.Fingerprint, now) {
				p.log.Info("alert recovered", zap.String("type", string(a.Type)))
			}
			p.fatigue.Reset(a.Fingerprint)
			p.dedup.Forget(a.Fingerprint)
			p.mu.Lock()
			delete(p.falseRuns, a.Fingerprint)
			p.mu.Unlock()
		}
	}

	// Escalate aged survivors.
	for _, a := range p.repo.ActiveAlerts() {
		alert := a
		if p.prio.Escalate(&alert, now) {
			alert.Severity = severityFor(alert.Priority)
			p.repo.PutAlert(alert)
		}
	}
}

// soundAllowed enforces the audible-alert cooldown.
func (p *Pipeline) soundAllowed(now time.Time) bool {
	if p.cfg.SoundCooldown <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.lastSoundAt.IsZero() && now.Sub(p.lastSoundAt) < p.cfg.SoundCooldown {
		return false
	}
	p.lastSoundAt = now
	return true
}

func (p *Pipeline) isActive(fingerprint string) bool {
	for _, a := range p.repo.ActiveAlerts() {
		if a.Fingerprint == fingerprint {
			return true
		}
	}
	return false
}

func (p *Pipeline) limiter(fp string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[fp]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.cfg.RatePerMinute/60), p.cfg.RateBurst)
		p.limiters[fp] = l
	}
	return l
}
