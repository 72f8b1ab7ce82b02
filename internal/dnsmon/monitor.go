package dnsmon

import (
	"context"
	"sync"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
	"github.com/tinytelemetry/netwatch/internal/stats"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Monitor periodically resolves the test domain for every configured record
// type and records per-type status.
type Monitor struct {
	domain      string
	recordTypes []string
	server      string
	client      *Client
	repo        *stats.Repository
	scorer      *Scorer
	log         *zap.Logger
}

// NewMonitor wires the DNS monitor worker.
func NewMonitor(domain string, recordTypes []string, server string, client *Client, repo *stats.Repository, scorer *Scorer, log *zap.Logger) *Monitor {
	if len(recordTypes) == 0 {
		recordTypes = []string{"A", "AAAA", "CNAME", "MX", "TXT", "NS"}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		domain:      domain,
		recordTypes: recordTypes,
		server:      server,
		client:      client,
		repo:        repo,
		scorer:      scorer,
		log:         log,
	}
}

// RunOnce queries every record type concurrently and commits the results.
func (m *Monitor) RunOnce(ctx context.Context) error {
	results := make([]model.DNSRecordStatus, len(m.recordTypes))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, rt := range m.recordTypes {
		g.Go(func() error {
			latency, count, err := m.client.Query(gctx, m.server, m.domain, rt)
			res := model.DNSRecordStatus{
				RecordType: rt,
				CheckedAt:  time.Now().UTC(),
			}
			if err != nil {
				res.Error = err.Error()
			} else {
				res.OK = true
				res.LatencyMs = latency
				res.RecordCount = count
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	m.repo.UpdateDNSRecords(results)
	m.scorer.SetRecordResults(results)
	m.scorer.Commit(m.repo)
	return nil
}
