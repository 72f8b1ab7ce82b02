// Package hop maintains the per-hop probe table. It reacts to committed
// route changes by rebuilding the table, then pings every hop in parallel
// each tick and publishes per-hop stats plus a compact route summary.
package hop

import (
	"context"
	"math"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
	"github.com/tinytelemetry/netwatch/internal/probe/ping"
	"github.com/tinytelemetry/netwatch/internal/procsup"
	"github.com/tinytelemetry/netwatch/internal/stats"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	historySize    = model.DefaultHopHistorySize
	sparklineTail  = 10
	sparklineBins  = 5
	maxParallel    = 20
	resolveTimeout = 2 * time.Second
)

// GeoLookup resolves ASN/country for an IP. Implementations are expected to
// rate-limit and cache; a miss returns ok=false and is never an error here.
type GeoLookup interface {
	Lookup(ctx context.Context, ip string) (asn, country, countryCode string, ok bool)
}

type hopState struct {
	model.HopStatus
}

// Prober owns the hop table.
type Prober struct {
	timeout time.Duration
	repo    *stats.Repository
	sup     *procsup.Supervisor
	geo     GeoLookup
	log     *zap.Logger

	mu          sync.Mutex
	hops        []*hopState
	fingerprint string
}

// NewProber wires the hop prober. geo may be nil.
func NewProber(timeout time.Duration, repo *stats.Repository, sup *procsup.Supervisor, geo GeoLookup, log *zap.Logger) *Prober {
	if timeout <= 0 {
		timeout = model.DefaultHopPingTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Prober{timeout: timeout, repo: repo, sup: sup, geo: geo, log: log}
}

// RunOnce rebuilds the table when the route changed, then pings all hops.
func (p *Prober) RunOnce(ctx context.Context) error {
	route := p.repo.Route()
	if route.Fingerprint == "" {
		return nil // no route discovered yet
	}

	p.mu.Lock()
	rebuild := p.fingerprint != route.Fingerprint
	p.mu.Unlock()

	if rebuild {
		p.rebuild(ctx, route)
		p.repo.ClearRouteChanged()
	}

	p.pingAll(ctx)
	p.publish()
	return nil
}

// rebuild resets every hop's counters and history for the new route and
// kicks off background hostname and geo resolution.
func (p *Prober) rebuild(ctx context.Context, route model.Route) {
	fresh := make([]*hopState, 0, len(route.Hops))
	for _, h := range route.Hops {
		hs := &hopState{HopStatus: model.HopStatus{
			Index:    h.Index,
			IP:       h.IP,
			Hostname: h.IP,
			MinRTT:   math.Inf(1),
		}}
		fresh = append(fresh, hs)
	}

	p.mu.Lock()
	p.hops = fresh
	p.fingerprint = route.Fingerprint
	p.mu.Unlock()

	p.log.Info("hop table rebuilt", zap.Int("hops", len(fresh)))

	for _, hs := range fresh {
		go p.resolveHostname(ctx, hs)
		if p.geo != nil {
			go p.resolveGeo(ctx, hs)
		}
	}
}

func (p *Prober) resolveHostname(ctx context.Context, hs *hopState) {
	rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()
	names, err := net.DefaultResolver.LookupAddr(rctx, hs.IP)
	if err != nil || len(names) == 0 {
		return
	}
	p.mu.Lock()
	hs.Hostname = names[0]
	p.mu.Unlock()
}

func (p *Prober) resolveGeo(ctx context.Context, hs *hopState) {
	asn, country, code, ok := p.geo.Lookup(ctx, hs.IP)
	if !ok {
		return
	}
	p.mu.Lock()
	hs.ASN = asn
	hs.Country = country
	hs.CountryCode = code
	p.mu.Unlock()
}

// pingAll probes every hop concurrently within the hop-ping timeout.
func (p *Prober) pingAll(ctx context.Context) {
	p.mu.Lock()
	hops := append([]*hopState(nil), p.hops...)
	p.mu.Unlock()
	if len(hops) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, hs := range hops {
		g.Go(func() error {
			rtt, ok := p.pingHop(gctx, hs.IP)
			p.record(hs, rtt, ok)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Prober) pingHop(ctx context.Context, ip string) (float64, bool) {
	argv, err := ping.BuildCommand(ip, p.timeout, false)
	if err != nil {
		return 0, false
	}
	res := p.sup.Spawn(ctx, argv, p.timeout+500*time.Millisecond)
	if res.Kind != procsup.KindOK {
		return 0, false
	}
	return ping.ParseRTT(res.Stdout, res.ExitCode)
}

func (p *Prober) record(hs *hopState, rtt float64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hs.Sent++
	hs.LastOK = ok
	if !ok {
		hs.Lost++
		hs.LastRTT = 0
		hs.Delta = 0
		return
	}

	if hs.PrevRTT > 0 {
		hs.Delta = rtt - hs.PrevRTT
	}
	hs.PrevRTT = rtt
	hs.LastRTT = rtt

	hs.History = append(hs.History, rtt)
	if len(hs.History) > historySize {
		hs.History = hs.History[len(hs.History)-historySize:]
	}

	if rtt < hs.MinRTT {
		hs.MinRTT = rtt
	}
	if rtt > hs.MaxRTT {
		hs.MaxRTT = rtt
	}

	sum := 0.0
	for _, v := range hs.History {
		sum += v
	}
	hs.AvgRTT = sum / float64(len(hs.History))
	hs.Jitter = stdev(hs.History)
	hs.Sparkline = sparkline(hs.History)
}

// publish commits a snapshot of the hop table and route summary.
func (p *Prober) publish() {
	p.mu.Lock()
	out := make([]model.HopStatus, len(p.hops))
	for i, hs := range p.hops {
		out[i] = hs.HopStatus
		out[i].History = append([]float64(nil), hs.History...)
		out[i].Sparkline = append([]int(nil), hs.Sparkline...)
		if math.IsInf(out[i].MinRTT, 1) {
			out[i].MinRTT = 0
		}
	}
	p.mu.Unlock()

	p.repo.UpdateHops(out, Summarize(out, time.Now().UTC()))
}

// Summarize derives the compact route summary from hop statuses.
func Summarize(hops []model.HopStatus, now time.Time) model.RouteStats {
	if len(hops) == 0 {
		return model.RouteStats{Health: model.RouteUnknown, UpdatedAt: now}
	}

	rs := model.RouteStats{HopCount: len(hops), UpdatedAt: now}
	totalLoss := 0.0
	totalRTT := 0.0

	for _, h := range hops {
		loss := h.LossPct()
		totalLoss += loss

		if h.AvgRTT > 0 {
			totalRTT += h.AvgRTT
			rs.RespondingHops++
		}
		if h.MaxRTT > rs.MaxRTT {
			rs.MaxRTT = h.MaxRTT
		}
		if loss > rs.WorstHopLoss {
			rs.WorstHopLoss = loss
			rs.WorstHop = h.Index
		}
		if loss > 5.0 {
			rs.ProblemHops = append(rs.ProblemHops, h.Index)
		}
	}

	rs.AvgLossPct = totalLoss / float64(len(hops))
	if rs.RespondingHops > 0 {
		rs.AvgRTT = totalRTT / float64(rs.RespondingHops)
	}

	switch {
	case rs.RespondingHops == 0:
		rs.Health = model.RouteUnknown
	case rs.AvgLossPct < 1.0 && len(rs.ProblemHops) == 0:
		rs.Health = model.RouteHealthy
	case rs.AvgLossPct < 5.0 && len(rs.ProblemHops) <= 1:
		rs.Health = model.RouteDegraded
	default:
		rs.Health = model.RouteCritical
	}
	return rs
}

// sparkline normalizes the last few RTTs into small integer bins for the
// dashboard's inline chart.
func sparkline(history []float64) []int {
	if len(history) == 0 {
		return nil
	}
	tail := history
	if len(tail) > sparklineTail {
		tail = tail[len(tail)-sparklineTail:]
	}

	minV, maxV := tail[0], tail[0]
	for _, v := range tail {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	out := make([]int, len(tail))
	span := maxV - minV
	for i, v := range tail {
		if span == 0 {
			out[i] = sparklineBins / 2
			continue
		}
		bin := int((v - minV) / span * float64(sparklineBins-1))
		out[i] = bin
	}
	return out
}

func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)-1))
}
