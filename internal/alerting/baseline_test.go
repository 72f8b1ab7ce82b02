package alerting

import "testing"

func TestBaselineStaticUntilWarmup(t *testing.T) {
	b := NewBaseline(BaselineConfig{Metric: "avg_latency", Static: 100, Min: 20, Max: 500, MinSamples: 5})

	if got := b.Threshold(); got != 100 {
		t.Fatalf("threshold=%f before warm-up, want static 100", got)
	}
	for i := 0; i < 4; i++ {
		b.Observe(30)
	}
	if got := b.Threshold(); got != 100 {
		t.Fatalf("threshold=%f with %d samples, want static", got, 4)
	}
	if b.WarmedUp() {
		t.Fatal("warmed up too early")
	}
}

func TestBaselineConvergesOnConstantStream(t *testing.T) {
	b := NewBaseline(BaselineConfig{Metric: "avg_latency", Static: 100, Min: 0, Max: 500, MinSamples: 5})
	for i := 0; i < 50; i++ {
		b.Observe(42)
	}
	if m := b.Mean(); m != 42 {
		t.Fatalf("mean=%f, want 42", m)
	}
	if sd := b.Stdev(); sd != 0 {
		t.Fatalf("stdev=%f, want 0", sd)
	}
	// mu + k*0 == mu, below Min clamp disabled here.
	if got := b.Threshold(); got != 42 {
		t.Fatalf("threshold=%f, want 42", got)
	}
}

func TestBaselineSigmaOnAlternatingStream(t *testing.T) {
	b := NewBaseline(BaselineConfig{Metric: "jitter", Static: 30, Min: 0, Max: 1000, MinSamples: 5})
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			b.Observe(10)
		} else {
			b.Observe(50)
		}
	}
	if sd := b.Stdev(); sd <= 0 {
		t.Fatalf("stdev=%f for alternating stream", sd)
	}
	if th := b.Threshold(); th <= b.Mean() {
		t.Fatalf("threshold=%f not above mean %f", th, b.Mean())
	}
}

func TestBaselinePercentile(t *testing.T) {
	b := NewBaseline(BaselineConfig{Metric: "packet_loss", Static: 5, Min: 0, Max: 100, UsePercentile: true, MinSamples: 5})
	for i := 1; i <= 100; i++ {
		b.Observe(float64(i))
	}
	th := b.Threshold()
	if th < 90 || th > 100 {
		t.Fatalf("p95 threshold=%f", th)
	}
}

func TestBaselineClamps(t *testing.T) {
	b := NewBaseline(BaselineConfig{Metric: "avg_latency", Static: 100, Min: 20, Max: 60, MinSamples: 3})
	for i := 0; i < 10; i++ {
		b.Observe(500)
	}
	if th := b.Threshold(); th != 60 {
		t.Fatalf("threshold=%f, want clamped to 60", th)
	}
}
