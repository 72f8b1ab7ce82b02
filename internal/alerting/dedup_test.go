package alerting

import (
	"testing"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
)

func alertOf(typ model.AlertType, msg string) model.Alert {
	ctx := model.AlertContext{Service: "ping", Component: "network", Problem: "performance", Target: "1.1.1.1"}
	return model.Alert{
		Type:        typ,
		Message:     msg,
		Context:     ctx,
		Fingerprint: model.ComputeFingerprint(typ, ctx),
	}
}

func TestDedupExactFingerprint(t *testing.T) {
	d := NewDeduplicator(5*time.Minute, 0.85)
	now := time.Now().UTC()

	a := alertOf(model.AlertPacketLoss, "packet loss 7.0% to 1.1.1.1")
	if d.ShouldSuppress(a, now) {
		t.Fatal("first occurrence suppressed")
	}
	if !d.ShouldSuppress(a, now.Add(time.Second)) {
		t.Fatal("duplicate not suppressed")
	}
	if d.SuppressedCount(a.Fingerprint) != 1 {
		t.Fatalf("count=%d", d.SuppressedCount(a.Fingerprint))
	}
}

func TestDedupWindowExpiry(t *testing.T) {
	d := NewDeduplicator(time.Minute, 0.85)
	now := time.Now().UTC()

	a := alertOf(model.AlertPacketLoss, "packet loss 7.0% to 1.1.1.1")
	d.ShouldSuppress(a, now)
	if d.ShouldSuppress(a, now.Add(2*time.Minute)) {
		t.Fatal("suppressed after window expiry")
	}
}

func TestDedupNearDuplicate(t *testing.T) {
	d := NewDeduplicator(5*time.Minute, 0.85)
	now := time.Now().UTC()

	a := alertOf(model.AlertPacketLoss, "sustained packet loss detected on primary link to 1.1.1.1 with threshold exceeded current value 7.1")
	b := alertOf(model.AlertPacketLoss, "sustained packet loss detected on primary link to 1.1.1.1 with threshold exceeded current value 7.2")
	// Same fingerprint anyway; force different ones to exercise similarity.
	b.Fingerprint = "different"

	d.ShouldSuppress(a, now)
	if !d.ShouldSuppress(b, now) {
		t.Fatalf("near-duplicate not suppressed (similarity=%f)", jaccard(a.Message, b.Message))
	}
}

func TestDedupDifferentTypesNotMerged(t *testing.T) {
	d := NewDeduplicator(5*time.Minute, 0.85)
	now := time.Now().UTC()

	a := alertOf(model.AlertPacketLoss, "packet loss 7.1% to 1.1.1.1")
	b := alertOf(model.AlertHighJitter, "packet loss 7.1% to 1.1.1.1")

	d.ShouldSuppress(a, now)
	if d.ShouldSuppress(b, now) {
		t.Fatal("different alert types merged by similarity")
	}
}

func TestJaccard(t *testing.T) {
	if v := jaccard("a b c", "a b c"); v != 1 {
		t.Fatalf("identical=%f", v)
	}
	if v := jaccard("a b c d", "a b c e"); v != 3.0/5.0 {
		t.Fatalf("overlap=%f", v)
	}
	if v := jaccard("", "x"); v != 0 {
		t.Fatalf("empty vs nonempty=%f", v)
	}
	if v := jaccard("Hello World", "hello world"); v != 1 {
		t.Fatalf("case folding=%f", v)
	}
}
