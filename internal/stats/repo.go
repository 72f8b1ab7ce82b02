package stats

import (
	"math"
	"sync"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"

	"go.uber.org/zap"
)

// Options bounds the repository's ring buffers and thresholds.
type Options struct {
	Target                  string
	WindowSize              int
	LatencyWindow           int
	ConsecutiveLossThreshold int
	Now                     func() time.Time
	Logger                  *zap.Logger
}

// Repository is the single writer point for every counter, window, and
// sub-state. All mutators are infallible: out-of-range values are clamped and
// anomalies logged. Readers only ever see Snapshot copies.
type Repository struct {
	mu sync.RWMutex

	// alertMu guards the alert sub-state so the alert pipeline never
	// contends with the sample hot path.
	alertMu sync.Mutex

	opts Options
	now  func() time.Time
	log  *zap.Logger

	startTime time.Time

	counters       model.Counters
	connectionLost bool
	lastStatus     string
	lastRTT        float64
	lastSampleAt   time.Time
	firstTickDone  bool

	minRTT      float64
	maxRTT      float64
	totalRTTSum float64
	latencies   []float64
	jitter      float64
	jitterHist  []float64
	recent      []bool

	publicIP    model.PublicIP
	previousIP  string
	ipChangedAt time.Time
	lastProblem time.Time

	mtu model.MTUState
	ttl model.TTLState

	route              model.Route
	routeChanged       bool
	routeChangeCount   int
	routeConsecChanges int
	routeConsecSame    int
	routeLastChangeAt  time.Time
	routeLastDiffCount int
	problematicHop     int
	tracerouteRunning  bool
	lastTracerouteAt   time.Time

	hops            []model.HopStatus
	hopsDiscovering bool
	routeStats      model.RouteStats

	dnsRecords   map[string]model.DNSRecordStatus
	dnsBench     map[model.DNSTestKind]model.DNSBenchStats
	dnsScore     float64
	dnsBucket    model.DNSScoreBucket
	dnsCheckedAt time.Time

	diagnosis model.Diagnosis

	activeAlerts []model.Alert
	alertHistory []model.Alert

	version model.VersionStatus
}

const maxAlertHistory = 500

// NewRepository builds the process-wide statistics repository.
func NewRepository(opts Options) *Repository {
	if opts.WindowSize <= 0 {
		opts.WindowSize = model.DefaultWindowSize
	}
	if opts.LatencyWindow <= 0 {
		opts.LatencyWindow = model.DefaultLatencyWindow
	}
	if opts.ConsecutiveLossThreshold <= 0 {
		opts.ConsecutiveLossThreshold = model.DefaultConsecutiveLossThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Repository{
		opts:       opts,
		now:        opts.Now,
		log:        opts.Logger,
		startTime:  opts.Now().UTC(),
		minRTT:     math.Inf(1),
		dnsRecords: make(map[string]model.DNSRecordStatus),
		dnsBench:   make(map[model.DNSTestKind]model.DNSBenchStats),
		diagnosis:  model.Diagnosis{Kind: model.ProblemNone, Prediction: model.PredictionStable},
		dnsBucket:  model.DNSGood,
		routeStats: model.RouteStats{Health: model.RouteUnknown},
	}
}

// Transition reports a connection-state change caused by one sample.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionDisconnect
	TransitionRecover
)

// RecordPingResult atomically applies one sample: counters, latency window,
// loss window, EMA jitter, and connection-lost state. Cancelled samples are
// recorded as status only and never counted as packet loss.
func (r *Repository) RecordPingResult(s model.Sample) Transition {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastSampleAt = s.SentAt

	if s.Err == model.ErrCancelled {
		r.lastStatus = "cancelled"
		return TransitionNone
	}

	r.counters.Sent++
	tr := TransitionNone

	if s.OK {
		rtt := s.RTTms
		if rtt < 0 {
			r.log.Warn("negative rtt clamped", zap.Float64("rtt_ms", rtt))
			rtt = 0
		}
		r.counters.OK++
		wasLost := r.connectionLost
		r.counters.ConsecutiveLost = 0
		r.connectionLost = false
		if wasLost {
			tr = TransitionRecover
		}
		r.lastStatus = "ok"
		r.lastRTT = rtt
		r.totalRTTSum += rtt
		if rtt < r.minRTT {
			r.minRTT = rtt
		}
		if rtt > r.maxRTT {
			r.maxRTT = rtt
		}
		if len(r.latencies) > 0 {
			prev := r.latencies[len(r.latencies)-1]
			diff := math.Abs(rtt - prev)
			r.jitter += model.JitterAlpha * (diff - r.jitter)
		}
		r.latencies = appendBounded(r.latencies, rtt, r.opts.LatencyWindow)
		r.jitterHist = appendBounded(r.jitterHist, r.jitter, r.opts.LatencyWindow)
	} else {
		r.counters.Lost++
		r.counters.ConsecutiveLost++
		if r.counters.ConsecutiveLost > r.counters.MaxConsecutiveLost {
			r.counters.MaxConsecutiveLost = r.counters.ConsecutiveLost
		}
		r.lastStatus = "timeout"
		r.lastProblem = monoMax(r.lastProblem, s.SentAt)
		if !r.connectionLost && r.counters.ConsecutiveLost >= r.opts.ConsecutiveLossThreshold {
			r.connectionLost = true
			tr = TransitionDisconnect
		}
	}

	r.recent = appendBoundedBool(r.recent, s.OK, r.opts.WindowSize)

	if r.counters.Sent != r.counters.OK+r.counters.Lost {
		r.log.Error("counter invariant violated, clamping",
			zap.Int64("sent", r.counters.Sent),
			zap.Int64("ok", r.counters.OK),
			zap.Int64("lost", r.counters.Lost))
		r.counters.Sent = r.counters.OK + r.counters.Lost
	}

	return tr
}

// MarkFirstTick records that the ping worker completed its first run.
func (r *Repository) MarkFirstTick() {
	r.mu.Lock()
	r.firstTickDone = true
	r.mu.Unlock()
}

// ConnectionLost reports the current connection state.
func (r *Repository) ConnectionLost() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connectionLost
}

// ConsecutiveLost returns the current loss streak.
func (r *Repository) ConsecutiveLost() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters.ConsecutiveLost
}

// UpdateTTL stores the last reply TTL and hop estimate.
func (r *Repository) UpdateTTL(ttl, hops int) {
	r.mu.Lock()
	r.ttl = model.TTLState{LastTTL: ttl, EstimatedHops: hops}
	r.mu.Unlock()
}

// UpdatePublicIP stores validated public address info. Returns the previous
// address when it actually changed so the caller can raise an IP-change event.
func (r *Repository) UpdatePublicIP(info model.PublicIP) (changed bool, previous string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.publicIP.IP
	r.publicIP = info
	if prev != "" && prev != info.IP {
		r.previousIP = prev
		r.ipChangedAt = r.now().UTC()
		return true, prev
	}
	return false, ""
}

// SetDiagnosis writes the classifier result back atomically.
func (r *Repository) SetDiagnosis(d model.Diagnosis) {
	r.mu.Lock()
	r.diagnosis = d
	r.mu.Unlock()
}

// UpdateDNSRecords replaces the per-record-type monitor results.
func (r *Repository) UpdateDNSRecords(results []model.DNSRecordStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range results {
		r.dnsRecords[res.RecordType] = res
	}
	r.dnsCheckedAt = r.now().UTC()
}

// UpdateDNSBench replaces the stored benchmark aggregates.
func (r *Repository) UpdateDNSBench(stats []model.DNSBenchStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range stats {
		r.dnsBench[s.Kind] = s
	}
}

// UpdateDNSScore stores the composite score, clamped into [0, 100].
func (r *Repository) UpdateDNSScore(score float64, bucket model.DNSScoreBucket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if score < 0 || score > 100 {
		r.log.Warn("dns score out of range, clamping", zap.Float64("score", score))
		score = math.Min(100, math.Max(0, score))
	}
	r.dnsScore = score
	r.dnsBucket = bucket
}

// SetVersion stores the release poller result.
func (r *Repository) SetVersion(v model.VersionStatus) {
	r.mu.Lock()
	r.version = v
	r.mu.Unlock()
}

func appendBounded(s []float64, v float64, bound int) []float64 {
	s = append(s, v)
	if len(s) > bound {
		s = s[len(s)-bound:]
	}
	return s
}

func appendBoundedBool(s []bool, v bool, bound int) []bool {
	s = append(s, v)
	if len(s) > bound {
		s = s[len(s)-bound:]
	}
	return s
}

// monoMax keeps timestamps monotone under out-of-order commits.
func monoMax(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
