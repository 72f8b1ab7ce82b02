// Blackbox scenario tests: drive the repository, classifier, and alert
// pipeline together the way the orchestrator does, without real probes.
package tests

import (
	"context"
	"testing"
	"time"

	"github.com/tinytelemetry/netwatch/internal/alerting"
	"github.com/tinytelemetry/netwatch/internal/classify"
	"github.com/tinytelemetry/netwatch/internal/model"
	"github.com/tinytelemetry/netwatch/internal/stats"
)

type harness struct {
	repo       *stats.Repository
	classifier *classify.Classifier
	pipeline   *alerting.Pipeline
	now        time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := stats.NewRepository(stats.Options{
		Target:                   "1.1.1.1",
		WindowSize:               1800,
		LatencyWindow:            600,
		ConsecutiveLossThreshold: 5,
	})
	h := &harness{
		repo:       repo,
		classifier: classify.New(classify.DefaultThresholds(), repo, nil, nil),
		pipeline:   alerting.New(alerting.Config{Target: "1.1.1.1"}, repo, nil),
		now:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.pipeline.SetClock(func() time.Time { return h.now })
	return h
}

// tick feeds one sample and runs one evaluation round, advancing fake time
// by one second, like the 1 Hz schedule would.
func (h *harness) tick(t *testing.T, ok bool, rtt float64) {
	t.Helper()
	sample := model.Sample{SentAt: h.now, OK: ok, RTTms: rtt}
	if !ok {
		sample.Err = model.ErrTransient
	}
	h.repo.RecordPingResult(sample)
	h.repo.MarkFirstTick()
	h.classifier.Evaluate(context.Background())
	if err := h.pipeline.RunOnce(context.Background()); err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	h.now = h.now.Add(time.Second)
}

func activeOf(repo *stats.Repository, typ model.AlertType) *model.Alert {
	for _, a := range repo.ActiveAlerts() {
		if a.Type == typ {
			out := a
			return &out
		}
	}
	return nil
}

func TestScenarioStableLink(t *testing.T) {
	h := newHarness(t)

	dnsBefore := h.repo.Snapshot().DNSScore
	for i := 0; i < 600; i++ {
		h.tick(t, true, 20)
	}

	s := h.repo.Snapshot()
	if s.Counters.Sent != 600 || s.Counters.OK != 600 || s.Counters.Lost != 0 {
		t.Fatalf("counters=%+v", s.Counters)
	}
	if s.Diagnosis.Kind != model.ProblemNone {
		t.Fatalf("kind=%s", s.Diagnosis.Kind)
	}
	if s.Diagnosis.Prediction != model.PredictionStable {
		t.Fatalf("prediction=%s", s.Diagnosis.Prediction)
	}
	if len(s.ActiveAlerts) != 0 {
		t.Fatalf("active alerts=%+v", s.ActiveAlerts)
	}
	if s.DNSScore != dnsBefore {
		t.Fatalf("ping activity moved the dns score: %f -> %f", dnsBefore, s.DNSScore)
	}
	if s.MTU.Issue {
		t.Fatal("mtu state changed without mtu probes")
	}
}

func TestScenarioISPOutageAndRecovery(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 100; i++ {
		h.tick(t, true, 20)
	}

	// Inject consecutive failures; check state at the 5th.
	for i := 0; i < 5; i++ {
		h.tick(t, false, 0)
	}
	s := h.repo.Snapshot()
	if !s.ConnectionLost {
		t.Fatal("connection_lost not set at 5th failure")
	}
	if s.Diagnosis.Kind != model.ProblemISP {
		t.Fatalf("kind=%s, want isp", s.Diagnosis.Kind)
	}
	if s.Diagnosis.Prediction != model.PredictionRisk {
		t.Fatalf("prediction=%s", s.Diagnosis.Prediction)
	}
	alert := activeOf(h.repo, model.AlertConnectionLost)
	if alert == nil {
		t.Fatal("no connection_lost alert")
	}
	if alert.Severity != model.SeverityCritical {
		t.Fatalf("severity=%s", alert.Severity)
	}

	for i := 0; i < 5; i++ {
		h.tick(t, false, 0)
	}

	// One ok sample restores the connection flag.
	h.tick(t, true, 25)
	if h.repo.ConnectionLost() {
		t.Fatal("connection_lost still set after ok sample")
	}

	// Three further clean evaluations recover the alert.
	for i := 0; i < 3; i++ {
		h.tick(t, true, 25)
	}
	if activeOf(h.repo, model.AlertConnectionLost) != nil {
		t.Fatal("alert still active after recovery window")
	}
	s = h.repo.Snapshot()
	if len(s.AlertHistory) == 0 {
		t.Fatal("recovered alert missing from history")
	}
}

func TestScenarioDNSDegradationWithoutPingLoss(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 50; i++ {
		h.tick(t, true, 20)
	}

	// Benchmark reliability collapses while pings stay fine.
	h.repo.UpdateDNSBench([]model.DNSBenchStats{
		{Server: "system", Kind: model.DNSTestUncached, Reliability: 0.3, AvgMs: 250, Queries: 20},
	})
	h.repo.UpdateDNSScore(38, model.DNSPoor)

	for i := 0; i < 30; i++ {
		h.tick(t, true, 20)
	}

	s := h.repo.Snapshot()
	if s.Diagnosis.Kind != model.ProblemDNS {
		t.Fatalf("kind=%s, want dns", s.Diagnosis.Kind)
	}

	count := 0
	for _, a := range s.ActiveAlerts {
		if a.Type == model.AlertDNSFailure {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("dns alerts=%d, want exactly 1", count)
	}
}

func TestScenarioAlertFatigueDuringSustainedOutage(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 60; i++ {
		h.tick(t, true, 20)
	}

	// 30 minutes of sustained outage at 1 Hz.
	for i := 0; i < 1800; i++ {
		h.tick(t, false, 0)
	}

	alert := activeOf(h.repo, model.AlertConnectionLost)
	if alert == nil {
		t.Fatal("no active alert after sustained outage")
	}
	// One creation plus re-emissions on the {1,3,5,15,30} schedule.
	if emissions := alert.SuppressCount + 1; emissions > 6 {
		t.Fatalf("visible emissions=%d during 30 min outage, want <=6", emissions)
	}
}

func TestScenarioRouteChangeResetsHopState(t *testing.T) {
	repo := stats.NewRepository(stats.Options{Target: "1.1.1.1"})

	repo.SetRoute(model.Route{
		Fingerprint: "fp-old",
		Hops: []model.Hop{
			{Index: 1, IP: "10.0.0.1"},
			{Index: 2, IP: "10.0.1.1"},
			{Index: 3, IP: "10.0.2.1"},
		},
	}, 0, 0)

	// Two consecutive detections of the new fingerprint commit the change.
	if changed, _ := repo.UpdateRouteHysteresis("fp-new", 2); changed {
		t.Fatal("committed after one detection")
	}
	changed, _ := repo.UpdateRouteHysteresis("fp-new", 2)
	if !changed {
		t.Fatal("not committed after two consecutive detections")
	}
	if repo.Snapshot().RouteChangeCount != 1 {
		t.Fatalf("change count=%d", repo.Snapshot().RouteChangeCount)
	}
	if !repo.RouteChanged() {
		t.Fatal("route change flag missing for the hop prober")
	}
}
