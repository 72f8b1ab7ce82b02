package stats

import (
	"math"

	"github.com/tinytelemetry/netwatch/internal/model"
)

// Snapshot returns a consistent immutable copy of all reader-visible state.
func (r *Repository) Snapshot() model.StatsSnapshot {
	r.mu.RLock()

	minRTT := r.minRTT
	if math.IsInf(minRTT, 1) {
		minRTT = 0
	}

	s := model.StatsSnapshot{
		Target:    r.opts.Target,
		StartTime: r.startTime,

		Counters:       r.counters,
		ConnectionLost: r.connectionLost,
		LastStatus:     r.lastStatus,
		LastRTT:        r.lastRTT,
		LastSampleAt:   r.lastSampleAt,
		FirstTickDone:  r.firstTickDone,

		MinRTT:      minRTT,
		MaxRTT:      r.maxRTT,
		TotalRTTSum: r.totalRTTSum,
		Latencies:   append([]float64(nil), r.latencies...),
		Jitter:      r.jitter,
		JitterHist:  append([]float64(nil), r.jitterHist...),
		Recent:      append([]bool(nil), r.recent...),

		PublicIP:    r.publicIP,
		PreviousIP:  r.previousIP,
		IPChangedAt: r.ipChangedAt,
		LastProblem: r.lastProblem,

		MTU: r.mtu,
		TTL: r.ttl,

		Route:              copyRoute(r.route),
		RouteChanged:       r.routeChanged,
		RouteChangeCount:   r.routeChangeCount,
		RouteConsecChanges: r.routeConsecChanges,
		RouteConsecSame:    r.routeConsecSame,
		RouteLastChangeAt:  r.routeLastChangeAt,
		RouteLastDiffCount: r.routeLastDiffCount,
		ProblematicHop:     r.problematicHop,
		TracerouteRunning:  r.tracerouteRunning,
		LastTracerouteAt:   r.lastTracerouteAt,

		Hops:            copyHops(r.hops),
		HopsDiscovering: r.hopsDiscovering,
		RouteStats:      copyRouteStats(r.routeStats),

		DNSRecords:   copyRecords(r.dnsRecords),
		DNSBench:     copyBench(r.dnsBench),
		DNSScore:     r.dnsScore,
		DNSBucket:    r.dnsBucket,
		DNSCheckedAt: r.dnsCheckedAt,

		Diagnosis: r.diagnosis,

		Version: r.version,
	}
	r.mu.RUnlock()

	r.alertMu.Lock()
	s.ActiveAlerts = append([]model.Alert(nil), r.activeAlerts...)
	s.AlertHistory = append([]model.Alert(nil), r.alertHistory...)
	r.alertMu.Unlock()

	return s
}

func copyRoute(route model.Route) model.Route {
	out := route
	out.Hops = append([]model.Hop(nil), route.Hops...)
	return out
}

func copyHops(hops []model.HopStatus) []model.HopStatus {
	out := make([]model.HopStatus, len(hops))
	for i, h := range hops {
		out[i] = h
		out[i].History = append([]float64(nil), h.History...)
		out[i].Sparkline = append([]int(nil), h.Sparkline...)
	}
	return out
}

func copyRouteStats(rs model.RouteStats) model.RouteStats {
	out := rs
	out.ProblemHops = append([]int(nil), rs.ProblemHops...)
	return out
}

func copyRecords(in map[string]model.DNSRecordStatus) map[string]model.DNSRecordStatus {
	out := make(map[string]model.DNSRecordStatus, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyBench(in map[model.DNSTestKind]model.DNSBenchStats) map[model.DNSTestKind]model.DNSBenchStats {
	out := make(map[model.DNSTestKind]model.DNSBenchStats, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
