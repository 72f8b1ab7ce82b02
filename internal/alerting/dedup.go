package alerting

import (
	"strings"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
)

// Deduplicator suppresses repeat alerts within a time window using exact
// fingerprint matches and near-duplicate detection on message text.
type Deduplicator struct {
	window              time.Duration
	similarityThreshold float64

	cache map[string]*dedupEntry
}

type dedupEntry struct {
	alert    model.Alert
	lastSeen time.Time
	count    int
}

// NewDeduplicator builds the dedup stage.
func NewDeduplicator(window time.Duration, similarityThreshold float64) *Deduplicator {
	if window <= 0 {
		window = 5 * time.Minute
	}
	if similarityThreshold <= 0 {
		similarityThreshold = 0.85
	}
	return &Deduplicator{
		window:              window,
		similarityThreshold: similarityThreshold,
		cache:               make(map[string]*dedupEntry),
	}
}

// ShouldSuppress reports whether the alert is a duplicate within the window.
// Duplicates bump the cached entry instead of emitting.
func (d *Deduplicator) ShouldSuppress(a model.Alert, now time.Time) bool {
	d.expire(now)

	if e, ok := d.cache[a.Fingerprint]; ok {
		e.lastSeen = now
		e.count++
		return true
	}

	for _, e := range d.cache {
		if e.alert.Type != a.Type || !e.alert.Context.Matches(a.Context, false) {
			continue
		}
		if jaccard(e.alert.Message, a.Message) >= d.similarityThreshold {
			e.lastSeen = now
			e.count++
			return true
		}
	}

	d.cache[a.Fingerprint] = &dedupEntry{alert: a, lastSeen: now, count: 1}
	return false
}

// Forget drops a fingerprint so a recovered condition can alert again.
func (d *Deduplicator) Forget(fingerprint string) {
	delete(d.cache, fingerprint)
}

// SuppressedCount returns how many duplicates a fingerprint absorbed.
func (d *Deduplicator) SuppressedCount(fingerprint string) int {
	if e, ok := d.cache[fingerprint]; ok {
		return e.count - 1
	}
	return 0
}

func (d *Deduplicator) expire(now time.Time) {
	for fp, e := range d.cache {
		if now.Sub(e.lastSeen) > d.window {
			delete(d.cache, fp)
		}
	}
}

// jaccard computes word-set similarity over case-folded tokens.
func jaccard(a, b string) float64 {
	if a == b {
		return 1
	}
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = struct{}{}
	}
	return out
}
