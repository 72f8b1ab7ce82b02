package hop

import (
	"testing"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
)

func TestSummarizeHealthy(t *testing.T) {
	hops := []model.HopStatus{
		{Index: 1, IP: "10.0.0.1", AvgRTT: 2, MaxRTT: 3, Sent: 100},
		{Index: 2, IP: "10.0.1.1", AvgRTT: 8, MaxRTT: 12, Sent: 100},
	}
	rs := Summarize(hops, time.Now().UTC())
	if rs.Health != model.RouteHealthy {
		t.Fatalf("health=%s", rs.Health)
	}
	if rs.HopCount != 2 || rs.RespondingHops != 2 {
		t.Fatalf("rs=%+v", rs)
	}
	if rs.AvgRTT != 5 {
		t.Fatalf("avg=%f", rs.AvgRTT)
	}
	if rs.MaxRTT != 12 {
		t.Fatalf("max=%f", rs.MaxRTT)
	}
}

func TestSummarizeCritical(t *testing.T) {
	hops := []model.HopStatus{
		{Index: 1, IP: "10.0.0.1", AvgRTT: 2, Sent: 100, Lost: 30},
		{Index: 2, IP: "10.0.1.1", AvgRTT: 9, Sent: 100, Lost: 40},
	}
	rs := Summarize(hops, time.Now().UTC())
	if rs.Health != model.RouteCritical {
		t.Fatalf("health=%s", rs.Health)
	}
	if rs.WorstHop != 2 || rs.WorstHopLoss != 40 {
		t.Fatalf("worst=%d loss=%f", rs.WorstHop, rs.WorstHopLoss)
	}
	if len(rs.ProblemHops) != 2 {
		t.Fatalf("problem hops=%v", rs.ProblemHops)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	rs := Summarize(nil, time.Now().UTC())
	if rs.Health != model.RouteUnknown {
		t.Fatalf("health=%s", rs.Health)
	}
}

func TestSparkline(t *testing.T) {
	bins := sparkline([]float64{10, 10, 10})
	for _, b := range bins {
		if b != sparklineBins/2 {
			t.Fatalf("flat history bins=%v", bins)
		}
	}

	bins = sparkline([]float64{0, 50, 100})
	if len(bins) != 3 {
		t.Fatalf("len=%d", len(bins))
	}
	if bins[0] != 0 || bins[2] != sparklineBins-1 {
		t.Fatalf("bins=%v", bins)
	}

	// Only the last sparklineTail values contribute.
	long := make([]float64, 40)
	for i := range long {
		long[i] = float64(i)
	}
	bins = sparkline(long)
	if len(bins) != sparklineTail {
		t.Fatalf("len=%d, want %d", len(bins), sparklineTail)
	}
}

func TestRecordUpdatesStats(t *testing.T) {
	p := NewProber(time.Second, nil, nil, nil, nil)
	hs := &hopState{HopStatus: model.HopStatus{Index: 1, IP: "10.0.0.1", MinRTT: 1e18}}

	p.record(hs, 10, true)
	p.record(hs, 20, true)
	if hs.Delta != 10 {
		t.Fatalf("delta=%f", hs.Delta)
	}
	p.record(hs, 0, false)

	if hs.Sent != 3 || hs.Lost != 1 {
		t.Fatalf("sent=%d lost=%d", hs.Sent, hs.Lost)
	}
	if hs.AvgRTT != 15 {
		t.Fatalf("avg=%f", hs.AvgRTT)
	}
	if hs.MinRTT != 10 || hs.MaxRTT != 20 {
		t.Fatalf("min=%f max=%f", hs.MinRTT, hs.MaxRTT)
	}
	if hs.Jitter <= 0 {
		t.Fatalf("jitter=%f", hs.Jitter)
	}
	if hs.Delta != 0 {
		t.Fatalf("delta not reset on loss: %f", hs.Delta)
	}
	if hs.LastOK {
		t.Fatal("lastOK after failed ping")
	}
}
