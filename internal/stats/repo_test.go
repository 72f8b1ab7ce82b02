package stats

import (
	"testing"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return NewRepository(Options{
		Target:                   "1.1.1.1",
		WindowSize:               10,
		LatencyWindow:            5,
		ConsecutiveLossThreshold: 3,
		Now:                      func() time.Time { return base },
	})
}

func okSample(at time.Time, rtt float64) model.Sample {
	return model.Sample{SentAt: at, OK: true, RTTms: rtt}
}

func lostSample(at time.Time) model.Sample {
	return model.Sample{SentAt: at, OK: false, Err: model.ErrTransient}
}

func TestCountersInvariant(t *testing.T) {
	r := testRepo(t)
	at := time.Now().UTC()

	for i := 0; i < 7; i++ {
		r.RecordPingResult(okSample(at, 20))
	}
	for i := 0; i < 4; i++ {
		r.RecordPingResult(lostSample(at))
	}

	s := r.Snapshot()
	if s.Counters.Sent != s.Counters.OK+s.Counters.Lost {
		t.Fatalf("sent=%d ok=%d lost=%d", s.Counters.Sent, s.Counters.OK, s.Counters.Lost)
	}
	if s.Counters.Sent != 11 || s.Counters.OK != 7 || s.Counters.Lost != 4 {
		t.Fatalf("unexpected counters: %+v", s.Counters)
	}
	if int64(s.Counters.ConsecutiveLost) > s.Counters.Lost {
		t.Fatalf("consecutive=%d > lost=%d", s.Counters.ConsecutiveLost, s.Counters.Lost)
	}
}

func TestLatencyWindowBounded(t *testing.T) {
	r := testRepo(t)
	at := time.Now().UTC()
	for i := 0; i < 50; i++ {
		r.RecordPingResult(okSample(at, float64(10+i)))
	}
	s := r.Snapshot()
	if len(s.Latencies) != 5 {
		t.Fatalf("latency window len=%d, want 5", len(s.Latencies))
	}
	for _, v := range s.Latencies {
		if v < 0 {
			t.Fatalf("negative latency %f in window", v)
		}
	}
	if len(s.Recent) != 10 {
		t.Fatalf("loss window len=%d, want 10", len(s.Recent))
	}
}

func TestConnectionLostTransitions(t *testing.T) {
	r := testRepo(t)
	at := time.Now().UTC()

	r.RecordPingResult(okSample(at, 20))

	var tr Transition
	for i := 0; i < 3; i++ {
		tr = r.RecordPingResult(lostSample(at))
	}
	if tr != TransitionDisconnect {
		t.Fatalf("expected disconnect on loss #3, got %v", tr)
	}
	if !r.ConnectionLost() {
		t.Fatal("connection_lost not set after threshold")
	}

	// More losses do not re-fire the transition.
	if tr = r.RecordPingResult(lostSample(at)); tr != TransitionNone {
		t.Fatalf("duplicate disconnect transition: %v", tr)
	}

	// A single ok sample recovers.
	if tr = r.RecordPingResult(okSample(at, 25)); tr != TransitionRecover {
		t.Fatalf("expected recover, got %v", tr)
	}
	if r.ConnectionLost() {
		t.Fatal("connection_lost still set after ok sample")
	}
}

func TestCancelledSampleNotCountedAsLoss(t *testing.T) {
	r := testRepo(t)
	at := time.Now().UTC()
	r.RecordPingResult(okSample(at, 20))
	r.RecordPingResult(model.Sample{SentAt: at, OK: false, Err: model.ErrCancelled})

	s := r.Snapshot()
	if s.Counters.Lost != 0 {
		t.Fatalf("cancelled sample counted as loss: %+v", s.Counters)
	}
	if s.Counters.Sent != 1 {
		t.Fatalf("cancelled sample counted as sent: %+v", s.Counters)
	}
	if s.LastStatus != "cancelled" {
		t.Fatalf("last status=%q", s.LastStatus)
	}
}

func TestJitterEMA(t *testing.T) {
	r := testRepo(t)
	at := time.Now().UTC()

	// Constant stream: jitter stays zero.
	for i := 0; i < 10; i++ {
		r.RecordPingResult(okSample(at, 30))
	}
	if s := r.Snapshot(); s.Jitter != 0 {
		t.Fatalf("jitter=%f for constant stream", s.Jitter)
	}

	// Alternating values: jitter rises above zero.
	for i := 0; i < 10; i++ {
		rtt := 10.0
		if i%2 == 0 {
			rtt = 50.0
		}
		r.RecordPingResult(okSample(at, rtt))
	}
	if s := r.Snapshot(); s.Jitter <= 0 {
		t.Fatalf("jitter=%f for alternating stream", s.Jitter)
	}
}

func TestMTUHysteresis(t *testing.T) {
	r := testRepo(t)

	// First probe bypasses hysteresis entirely.
	changed, issue := r.UpdateMTUHysteresis(false, 3, 3)
	if changed || issue {
		t.Fatalf("first clear probe: changed=%v issue=%v", changed, issue)
	}

	// Two consecutive issues do not flip; the third does.
	for i := 0; i < 2; i++ {
		changed, issue = r.UpdateMTUHysteresis(true, 3, 3)
		if changed || issue {
			t.Fatalf("flipped early at issue #%d", i+1)
		}
	}
	changed, issue = r.UpdateMTUHysteresis(true, 3, 3)
	if !changed || !issue {
		t.Fatalf("did not flip on 3rd consecutive issue: changed=%v issue=%v", changed, issue)
	}

	// Clearing likewise needs three consecutive ok probes.
	r.UpdateMTUHysteresis(false, 3, 3)
	changed, issue = r.UpdateMTUHysteresis(false, 3, 3)
	if changed {
		t.Fatal("flip before clear streak completed")
	}
	changed, issue = r.UpdateMTUHysteresis(false, 3, 3)
	if !changed || issue {
		t.Fatalf("did not clear after 3 consecutive ok: changed=%v issue=%v", changed, issue)
	}
}

func TestRouteHysteresis(t *testing.T) {
	r := testRepo(t)
	r.SetRoute(model.Route{Fingerprint: "aaaa"}, 0, 0)

	if changed, _ := r.UpdateRouteHysteresis("bbbb", 2); changed {
		t.Fatal("route change committed after single detection")
	}
	changed, _ := r.UpdateRouteHysteresis("bbbb", 2)
	if !changed {
		t.Fatal("route change not committed after 2 consecutive detections")
	}
	if !r.RouteChanged() {
		t.Fatal("route changed flag not set")
	}

	// Matching fingerprint resets the counting run.
	r.ClearRouteChanged()
	r.SetRoute(model.Route{Fingerprint: "bbbb"}, 1, 0)
	r.UpdateRouteHysteresis("cccc", 2)
	r.UpdateRouteHysteresis("bbbb", 2)
	if changed, _ := r.UpdateRouteHysteresis("cccc", 2); changed {
		t.Fatal("run survived an identical detection")
	}
}

func TestSnapshotIsReadOnly(t *testing.T) {
	r := testRepo(t)
	at := time.Now().UTC()
	for i := 0; i < 5; i++ {
		r.RecordPingResult(okSample(at, 20))
	}
	r.UpdateHops([]model.HopStatus{{Index: 1, IP: "10.0.0.1", History: []float64{1, 2}}}, model.RouteStats{})

	s := r.Snapshot()
	s.Latencies[0] = -999
	s.Hops[0].History[0] = -999
	s.DNSRecords["A"] = model.DNSRecordStatus{RecordType: "A"}

	s2 := r.Snapshot()
	if s2.Latencies[0] == -999 {
		t.Fatal("snapshot latency mutation leaked into repository")
	}
	if s2.Hops[0].History[0] == -999 {
		t.Fatal("snapshot hop history mutation leaked into repository")
	}
	if _, ok := s2.DNSRecords["A"]; ok {
		t.Fatal("snapshot map mutation leaked into repository")
	}
}

func TestAlertPutResolveHistory(t *testing.T) {
	r := testRepo(t)
	now := time.Now().UTC()

	a := model.Alert{
		ID:          "a1",
		Type:        model.AlertPacketLoss,
		Severity:    model.SeverityWarning,
		Fingerprint: "fp1",
		CreatedAt:   now,
		LastSeenAt:  now,
	}
	r.PutAlert(a)

	// Refreshing the same fingerprint bumps suppression and keeps one entry.
	a.Severity = model.SeverityCritical
	a.LastSeenAt = now.Add(time.Second)
	r.PutAlert(a)

	active := r.ActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("active=%d, want 1", len(active))
	}
	if active[0].SuppressCount != 1 {
		t.Fatalf("suppress count=%d", active[0].SuppressCount)
	}
	if active[0].Severity != model.SeverityCritical {
		t.Fatalf("severity not escalated: %s", active[0].Severity)
	}

	if !r.ResolveAlert("fp1", now.Add(2*time.Second)) {
		t.Fatal("resolve failed")
	}
	s := r.Snapshot()
	if len(s.ActiveAlerts) != 0 {
		t.Fatalf("active after resolve: %d", len(s.ActiveAlerts))
	}
	if len(s.AlertHistory) != 1 || s.AlertHistory[0].State != model.AlertArchived {
		t.Fatalf("history=%+v", s.AlertHistory)
	}
}
