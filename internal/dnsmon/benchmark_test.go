package dnsmon

import (
	"errors"
	"testing"

	"github.com/tinytelemetry/netwatch/internal/model"
)

func TestFinishAggregatesHistory(t *testing.T) {
	b := NewBenchmark("example.com", []string{"1.1.1.1"}, 5, nil, nil, nil, nil)

	b.finish("1.1.1.1", model.DNSTestCached, 10, nil)
	b.finish("1.1.1.1", model.DNSTestCached, 30, nil)
	out := b.finish("1.1.1.1", model.DNSTestCached, 20, nil)

	if out.Queries != 3 {
		t.Fatalf("queries=%d", out.Queries)
	}
	if out.MinMs != 10 || out.MaxMs != 30 || out.AvgMs != 20 {
		t.Fatalf("min=%f avg=%f max=%f", out.MinMs, out.AvgMs, out.MaxMs)
	}
	if out.StdDevMs <= 0 {
		t.Fatalf("stddev=%f", out.StdDevMs)
	}
	if out.Reliability != 1.0 {
		t.Fatalf("reliability=%f", out.Reliability)
	}
}

func TestFinishTracksFailures(t *testing.T) {
	b := NewBenchmark("example.com", nil, 5, nil, nil, nil, nil)

	b.finish("s", model.DNSTestUncached, 10, nil)
	out := b.finish("s", model.DNSTestUncached, 0, errors.New("i/o timeout"))

	if out.Reliability != 0.5 {
		t.Fatalf("reliability=%f", out.Reliability)
	}
	if out.LastOK {
		t.Fatal("lastOK after failure")
	}
	if out.LastError == "" {
		t.Fatal("error message not captured")
	}
	// Failed samples never enter the latency history.
	if out.MinMs != 10 || out.MaxMs != 10 {
		t.Fatalf("failed sample polluted history: min=%f max=%f", out.MinMs, out.MaxMs)
	}
}

func TestFinishHistoryBounded(t *testing.T) {
	b := NewBenchmark("example.com", nil, 3, nil, nil, nil, nil)
	var out model.DNSBenchStats
	for i := 1; i <= 10; i++ {
		out = b.finish("s", model.DNSTestDotCom, float64(i*10), nil)
	}
	// Only the last 3 samples (80, 90, 100) remain.
	if out.MinMs != 80 || out.MaxMs != 100 {
		t.Fatalf("history not bounded: min=%f max=%f", out.MinMs, out.MaxMs)
	}
	if out.Queries != 10 {
		t.Fatalf("queries=%d", out.Queries)
	}
}

func TestSeparateWindowsPerKind(t *testing.T) {
	b := NewBenchmark("example.com", nil, 5, nil, nil, nil, nil)
	b.finish("s", model.DNSTestCached, 5, nil)
	out := b.finish("s", model.DNSTestUncached, 50, nil)
	if out.MinMs != 50 {
		t.Fatalf("kinds share a window: min=%f", out.MinMs)
	}
}
