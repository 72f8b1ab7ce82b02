// Package metricsrv exposes every numeric repository attribute as Prometheus
// metrics derived from snapshots.
package metricsrv

import (
	"strconv"

	"github.com/tinytelemetry/netwatch/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector derives metrics from a repository snapshot at scrape time, so
// the exporter never holds the repository lock across I/O.
type Collector struct {
	source model.SnapshotSource

	pingsTotal      *prometheus.Desc
	pingsOK         *prometheus.Desc
	pingsLost       *prometheus.Desc
	consecutiveLost *prometheus.Desc
	connectionLost  *prometheus.Desc
	lastRTT         *prometheus.Desc
	avgRTT          *prometheus.Desc
	jitter          *prometheus.Desc
	lossPct         *prometheus.Desc
	localMTU        *prometheus.Desc
	pathMTU         *prometheus.Desc
	mtuIssue        *prometheus.Desc
	lastTTL         *prometheus.Desc
	estimatedHops   *prometheus.Desc
	routeChanges    *prometheus.Desc
	routeHops       *prometheus.Desc
	hopRTT          *prometheus.Desc
	hopJitter       *prometheus.Desc
	hopLossPct      *prometheus.Desc
	dnsScore        *prometheus.Desc
	dnsRecordOK     *prometheus.Desc
	dnsRecordRTT    *prometheus.Desc
	dnsBenchAvg     *prometheus.Desc
	dnsBenchRel     *prometheus.Desc
	activeAlerts    *prometheus.Desc
	problemKind     *prometheus.Desc
	publicIPInfo    *prometheus.Desc
	updateAvailable *prometheus.Desc
}

// NewCollector builds the snapshot-backed collector.
func NewCollector(source model.SnapshotSource) *Collector {
	target := []string{"target"}
	return &Collector{
		source: source,

		pingsTotal:      prometheus.NewDesc("netwatch_pings_total", "Total ping samples sent.", target, nil),
		pingsOK:         prometheus.NewDesc("netwatch_pings_ok_total", "Successful ping samples.", target, nil),
		pingsLost:       prometheus.NewDesc("netwatch_pings_lost_total", "Lost ping samples.", target, nil),
		consecutiveLost: prometheus.NewDesc("netwatch_consecutive_losses", "Current consecutive loss streak.", target, nil),
		connectionLost:  prometheus.NewDesc("netwatch_connection_lost", "1 while the connection is considered lost.", target, nil),
		lastRTT:         prometheus.NewDesc("netwatch_last_rtt_ms", "Last round-trip time in ms.", target, nil),
		avgRTT:          prometheus.NewDesc("netwatch_avg_rtt_ms", "Running average round-trip time in ms.", target, nil),
		jitter:          prometheus.NewDesc("netwatch_jitter_ms", "EMA jitter in ms.", target, nil),
		lossPct:         prometheus.NewDesc("netwatch_packet_loss_pct", "Loss percentage over the bounded window.", target, nil),
		localMTU:        prometheus.NewDesc("netwatch_local_mtu_bytes", "Local interface MTU.", target, nil),
		pathMTU:         prometheus.NewDesc("netwatch_path_mtu_bytes", "Discovered path MTU.", target, nil),
		mtuIssue:        prometheus.NewDesc("netwatch_mtu_issue", "1 while the MTU hysteresis reports an issue.", target, nil),
		lastTTL:         prometheus.NewDesc("netwatch_last_ttl", "Last observed reply TTL.", target, nil),
		estimatedHops:   prometheus.NewDesc("netwatch_estimated_hops", "Hop count estimated from TTL.", target, nil),
		routeChanges:    prometheus.NewDesc("netwatch_route_changes_total", "Committed route changes.", target, nil),
		routeHops:       prometheus.NewDesc("netwatch_route_hops", "Hops on the current route.", target, nil),
		hopRTT:          prometheus.NewDesc("netwatch_hop_rtt_ms", "Per-hop average round-trip time.", []string{"target", "hop_index", "hop_ip"}, nil),
		hopJitter:       prometheus.NewDesc("netwatch_hop_jitter_ms", "Per-hop jitter (stdev).", []string{"target", "hop_index", "hop_ip"}, nil),
		hopLossPct:      prometheus.NewDesc("netwatch_hop_loss_pct", "Per-hop loss percentage.", []string{"target", "hop_index", "hop_ip"}, nil),
		dnsScore:        prometheus.NewDesc("netwatch_dns_score", "Composite DNS score in [0,100].", target, nil),
		dnsRecordOK:     prometheus.NewDesc("netwatch_dns_record_ok", "1 when the record type resolved on the last check.", []string{"target", "record_type"}, nil),
		dnsRecordRTT:    prometheus.NewDesc("netwatch_dns_record_rtt_ms", "Last resolution latency per record type.", []string{"target", "record_type"}, nil),
		dnsBenchAvg:     prometheus.NewDesc("netwatch_dns_benchmark_avg_ms", "Benchmark average latency per test kind.", []string{"target", "test_kind", "server"}, nil),
		dnsBenchRel:     prometheus.NewDesc("netwatch_dns_benchmark_reliability", "Benchmark reliability per test kind.", []string{"target", "test_kind", "server"}, nil),
		activeAlerts:    prometheus.NewDesc("netwatch_active_alerts", "Active alerts by priority.", []string{"target", "priority"}, nil),
		problemKind:     prometheus.NewDesc("netwatch_problem", "1 for the currently diagnosed problem kind.", []string{"target", "kind"}, nil),
		publicIPInfo:    prometheus.NewDesc("netwatch_public_ip_info", "Constant 1 carrying the public address and its provider.", []string{"target", "ip", "provider"}, nil),
		updateAvailable: prometheus.NewDesc("netwatch_update_available", "1 when a newer release exists.", target, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Snapshot()
	t := s.Target

	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	counter(c.pingsTotal, float64(s.Counters.Sent), t)
	counter(c.pingsOK, float64(s.Counters.OK), t)
	counter(c.pingsLost, float64(s.Counters.Lost), t)
	gauge(c.consecutiveLost, float64(s.Counters.ConsecutiveLost), t)
	gauge(c.connectionLost, boolVal(s.ConnectionLost), t)
	gauge(c.lastRTT, s.LastRTT, t)
	gauge(c.avgRTT, s.AvgRTT(), t)
	gauge(c.jitter, s.Jitter, t)
	gauge(c.lossPct, s.LossPct(), t)

	gauge(c.localMTU, float64(s.MTU.LocalMTU), t)
	gauge(c.pathMTU, float64(s.MTU.PathMTU), t)
	gauge(c.mtuIssue, boolVal(s.MTU.Issue), t)
	gauge(c.lastTTL, float64(s.TTL.LastTTL), t)
	gauge(c.estimatedHops, float64(s.TTL.EstimatedHops), t)

	counter(c.routeChanges, float64(s.RouteChangeCount), t)
	gauge(c.routeHops, float64(len(s.Route.Hops)), t)

	for _, h := range s.Hops {
		idx := strconv.Itoa(h.Index)
		gauge(c.hopRTT, h.AvgRTT, t, idx, h.IP)
		gauge(c.hopJitter, h.Jitter, t, idx, h.IP)
		gauge(c.hopLossPct, h.LossPct(), t, idx, h.IP)
	}

	gauge(c.dnsScore, s.DNSScore, t)
	for rt, r := range s.DNSRecords {
		gauge(c.dnsRecordOK, boolVal(r.OK), t, rt)
		gauge(c.dnsRecordRTT, r.LatencyMs, t, rt)
	}
	for kind, b := range s.DNSBench {
		gauge(c.dnsBenchAvg, b.AvgMs, t, string(kind), b.Server)
		gauge(c.dnsBenchRel, b.Reliability, t, string(kind), b.Server)
	}

	byPriority := make(map[model.Priority]int)
	for _, a := range s.ActiveAlerts {
		byPriority[a.Priority]++
	}
	for _, p := range []model.Priority{model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityCritical} {
		gauge(c.activeAlerts, float64(byPriority[p]), t, p.String())
	}

	for _, kind := range []model.ProblemKind{
		model.ProblemNone, model.ProblemISP, model.ProblemLocal,
		model.ProblemDNS, model.ProblemMTU, model.ProblemUnknown,
	} {
		gauge(c.problemKind, boolVal(s.Diagnosis.Kind == kind), t, string(kind))
	}

	if s.PublicIP.IP != "" {
		gauge(c.publicIPInfo, 1, t, s.PublicIP.IP, s.PublicIP.Provider)
	}

	gauge(c.updateAvailable, boolVal(s.Version.UpdateAvailable), t)
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

