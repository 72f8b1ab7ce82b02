package model

import "time"

// StatsSnapshot is an immutable copy of all reader-visible repository state.
// It is the only object shared with the TUI, the metrics exporter, and the
// health API. Histories are copied; mutating a snapshot never affects the
// repository.
type StatsSnapshot struct {
	Target    string
	StartTime time.Time

	Counters       Counters
	ConnectionLost bool
	LastStatus     string
	LastRTT        float64
	LastSampleAt   time.Time
	FirstTickDone  bool

	MinRTT      float64
	MaxRTT      float64
	TotalRTTSum float64
	Latencies   []float64
	Jitter      float64 // EMA
	JitterHist  []float64
	Recent      []bool // loss window, newest last

	PublicIP     PublicIP
	PreviousIP   string
	IPChangedAt  time.Time
	LastProblem  time.Time

	MTU MTUState
	TTL TTLState

	Route              Route
	RouteChanged       bool
	RouteChangeCount   int
	RouteConsecChanges int
	RouteConsecSame    int
	RouteLastChangeAt  time.Time
	RouteLastDiffCount int
	ProblematicHop     int // 0 = none
	TracerouteRunning  bool
	LastTracerouteAt   time.Time

	Hops            []HopStatus
	HopsDiscovering bool
	RouteStats      RouteStats

	DNSRecords   map[string]DNSRecordStatus
	DNSBench     map[DNSTestKind]DNSBenchStats
	DNSScore     float64
	DNSBucket    DNSScoreBucket
	DNSCheckedAt time.Time

	Diagnosis Diagnosis

	ActiveAlerts []Alert
	AlertHistory []Alert

	Version VersionStatus
}

// AvgRTT returns the running average latency over all ok samples.
func (s StatsSnapshot) AvgRTT() float64 {
	if s.Counters.OK == 0 {
		return 0
	}
	return s.TotalRTTSum / float64(s.Counters.OK)
}

// LossPct returns the loss percentage over the bounded loss window.
func (s StatsSnapshot) LossPct() float64 {
	if len(s.Recent) == 0 {
		return 0
	}
	lost := 0
	for _, ok := range s.Recent {
		if !ok {
			lost++
		}
	}
	return float64(lost) / float64(len(s.Recent)) * 100
}
