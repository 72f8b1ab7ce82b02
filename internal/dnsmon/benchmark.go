package dnsmon

import (
	"context"
	"math"
	"sync"

	"github.com/tinytelemetry/netwatch/internal/model"
	"github.com/tinytelemetry/netwatch/internal/stats"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dotComDomain = "cloudflare.com"

// history is one bounded latency series with success accounting.
type history struct {
	samples []float64
	ok      int
	total   int
}

// Benchmark runs cached/uncached/dotcom tests per configured server, keeping
// an independent bounded statistics window per (server, kind).
type Benchmark struct {
	domain      string
	servers     []string
	historySize int
	client      *Client
	repo        *stats.Repository
	scorer      *Scorer
	log         *zap.Logger

	mu        sync.Mutex
	histories map[string]*history // key: server|kind
}

// NewBenchmark wires the DNS benchmark worker.
func NewBenchmark(domain string, servers []string, historySize int, client *Client, repo *stats.Repository, scorer *Scorer, log *zap.Logger) *Benchmark {
	if historySize <= 0 {
		historySize = model.DefaultDNSBenchHistory
	}
	if len(servers) == 0 {
		servers = []string{SystemServer()}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Benchmark{
		domain:      domain,
		servers:     servers,
		historySize: historySize,
		client:      client,
		repo:        repo,
		scorer:      scorer,
		log:         log,
	}
}

// RunOnce executes the three test kinds against every server.
func (b *Benchmark) RunOnce(ctx context.Context) error {
	var out []model.DNSBenchStats
	for _, server := range b.servers {
		out = append(out, b.testCached(ctx, server))
		out = append(out, b.testUncached(ctx, server))
		out = append(out, b.testDotCom(ctx, server))
	}

	b.repo.UpdateDNSBench(out)
	b.scorer.SetBenchResults(out)
	b.scorer.Commit(b.repo)
	return nil
}

// testCached queries the same name twice and records the second latency,
// which should be served from the resolver cache.
func (b *Benchmark) testCached(ctx context.Context, server string) model.DNSBenchStats {
	_, _, _ = b.client.Query(ctx, server, b.domain, "A")
	latency, _, err := b.client.Query(ctx, server, b.domain, "A")
	return b.finish(server, model.DNSTestCached, latency, err)
}

// testUncached queries a freshly generated random subdomain, forcing the
// resolver to recurse. A negative answer still measures recursion latency;
// only transport errors count as failure. Single attempt, no retry.
func (b *Benchmark) testUncached(ctx context.Context, server string) model.DNSBenchStats {
	name := uuid.NewString()[:12] + "." + b.domain
	latency, _, err := b.client.Query(ctx, server, name, "A")
	if err != nil && latency > 0 {
		// Got a response (NXDOMAIN/no answer): recursion worked.
		err = nil
	}
	return b.finish(server, model.DNSTestUncached, latency, err)
}

func (b *Benchmark) testDotCom(ctx context.Context, server string) model.DNSBenchStats {
	latency, _, err := b.client.Query(ctx, server, dotComDomain, "A")
	return b.finish(server, model.DNSTestDotCom, latency, err)
}

// finish folds one result into the bounded history and returns the updated
// aggregate. Error strings are captured here and never inspected elsewhere.
func (b *Benchmark) finish(server string, kind model.DNSTestKind, latency float64, err error) model.DNSBenchStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.histories == nil {
		b.histories = make(map[string]*history)
	}
	key := server + "|" + string(kind)
	h := b.histories[key]
	if h == nil {
		h = &history{}
		b.histories[key] = h
	}

	h.total++
	if err == nil {
		h.ok++
		h.samples = append(h.samples, latency)
		if len(h.samples) > b.historySize {
			h.samples = h.samples[len(h.samples)-b.historySize:]
		}
	}

	out := model.DNSBenchStats{
		Server:      server,
		Kind:        kind,
		Queries:     h.total,
		Reliability: float64(h.ok) / float64(h.total),
		LastOK:      err == nil,
	}
	if err == nil {
		out.LastMs = latency
	} else {
		out.LastError = err.Error()
	}

	if len(h.samples) > 0 {
		out.MinMs, out.MaxMs = h.samples[0], h.samples[0]
		sum := 0.0
		for _, v := range h.samples {
			sum += v
			if v < out.MinMs {
				out.MinMs = v
			}
			if v > out.MaxMs {
				out.MaxMs = v
			}
		}
		out.AvgMs = sum / float64(len(h.samples))
		if len(h.samples) >= 2 {
			variance := 0.0
			for _, v := range h.samples {
				variance += (v - out.AvgMs) * (v - out.AvgMs)
			}
			out.StdDevMs = math.Sqrt(variance / float64(len(h.samples)-1))
		}
	}
	return out
}

