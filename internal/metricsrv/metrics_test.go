package metricsrv

import (
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
	"github.com/tinytelemetry/netwatch/internal/stats"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorExportsCoreSeries(t *testing.T) {
	repo := stats.NewRepository(stats.Options{Target: "1.1.1.1"})
	at := time.Now().UTC()
	for i := 0; i < 9; i++ {
		repo.RecordPingResult(model.Sample{SentAt: at, OK: true, RTTms: 20})
	}
	repo.RecordPingResult(model.Sample{SentAt: at, OK: false, Err: model.ErrTransient})
	repo.UpdateHops([]model.HopStatus{
		{Index: 1, IP: "10.0.0.1", AvgRTT: 2, Sent: 10, Lost: 1},
	}, model.RouteStats{Health: model.RouteHealthy})
	repo.UpdateDNSScore(88, model.DNSGood)

	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(repo))

	expected := `
		# HELP netwatch_pings_total Total ping samples sent.
		# TYPE netwatch_pings_total counter
		netwatch_pings_total{target="1.1.1.1"} 10
	`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "netwatch_pings_total"); err != nil {
		t.Fatalf("pings_total: %v", err)
	}

	count, err := testutil.GatherAndCount(registry)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count < 20 {
		t.Fatalf("series=%d, want a full export", count)
	}
}

func TestCollectorHopLabels(t *testing.T) {
	repo := stats.NewRepository(stats.Options{Target: "1.1.1.1"})
	repo.UpdateHops([]model.HopStatus{
		{Index: 3, IP: "172.16.0.1", AvgRTT: 7.5, Sent: 4, Lost: 2},
	}, model.RouteStats{})

	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(repo))

	expected := `
		# HELP netwatch_hop_loss_pct Per-hop loss percentage.
		# TYPE netwatch_hop_loss_pct gauge
		netwatch_hop_loss_pct{hop_index="3",hop_ip="172.16.0.1",target="1.1.1.1"} 50
	`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "netwatch_hop_loss_pct"); err != nil {
		t.Fatalf("hop series: %v", err)
	}
}
