// Package route runs traceroute, detects route changes under hysteresis,
// and persists traceroute snapshots on connection incidents.
package route

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
)

var (
	hopNumRe  = regexp.MustCompile(`^\s*(\d+)\s+`)
	ipRe      = regexp.MustCompile(`\[?((?:\d{1,3}\.){3}\d{1,3})\]?`)
	latencyRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*ms`)
	starOnlyRe = regexp.MustCompile(`^\s*\d+\s+(\*\s*)+$`)
)

// ParsedHop is one traceroute line with its probe latencies.
type ParsedHop struct {
	Index     int
	IP        string
	Latencies []float64
	Timeout   bool
}

// AvgLatency returns the mean probe latency, 0 when none responded.
func (h ParsedHop) AvgLatency() float64 {
	if len(h.Latencies) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range h.Latencies {
		sum += v
	}
	return sum / float64(len(h.Latencies))
}

// ParseOutput extracts hops from traceroute/tracert stdout. Timeout-only
// lines are kept (with Timeout set) so consecutive-timeout runs are visible
// to the problematic-hop check.
func ParseOutput(output string) []ParsedHop {
	var hops []ParsedHop
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "traceroute") || strings.HasPrefix(line, "Tracing") {
			continue
		}
		m := hopNumRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}

		if starOnlyRe.MatchString(line) {
			hops = append(hops, ParsedHop{Index: idx, Timeout: true})
			continue
		}

		ipm := ipRe.FindStringSubmatch(line)
		if ipm == nil {
			continue
		}

		hop := ParsedHop{Index: idx, IP: ipm[1]}
		for _, lm := range latencyRe.FindAllStringSubmatch(line, -1) {
			if v, err := strconv.ParseFloat(lm[1], 64); err == nil {
				hop.Latencies = append(hop.Latencies, v)
			}
		}
		hop.Timeout = strings.Contains(line, "*") && len(hop.Latencies) == 0
		hops = append(hops, hop)
	}
	return hops
}

// Fingerprint hashes the ordered hop IPs. Identical hop sequences yield
// identical fingerprints; any single hop change flips it.
func Fingerprint(hops []ParsedHop) string {
	ips := make([]string, 0, len(hops))
	for _, h := range hops {
		if h.IP != "" {
			ips = append(ips, h.IP)
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(ips, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

// ProblematicHop returns the first hop index that looks broken, 0 when none.
// A single timeout hop is normal (routers that drop ICMP); two or more
// consecutive timeout-only hops, sustained high latency, or high probe
// variance are not.
func ProblematicHop(hops []ParsedHop, latencyThreshold float64) int {
	consecutiveTimeouts := 0
	for _, h := range hops {
		if h.Timeout && len(h.Latencies) == 0 {
			consecutiveTimeouts++
			if consecutiveTimeouts >= 2 {
				return h.Index
			}
			continue
		}
		consecutiveTimeouts = 0

		if avg := h.AvgLatency(); avg > 0 && avg > latencyThreshold {
			return h.Index
		}
		if len(h.Latencies) >= 2 && stdev(h.Latencies) > 100 {
			return h.Index
		}
	}
	return 0
}

// DiffCount counts positions where two routes disagree, length gaps included.
func DiffCount(a, b []ParsedHop) int {
	diff := 0
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		if a[i].IP != b[i].IP {
			diff++
		}
	}
	if len(a) != len(b) {
		diff += int(math.Abs(float64(len(a) - len(b))))
	}
	return diff
}

// ToRoute converts parsed hops into the model route with its fingerprint.
func ToRoute(hops []ParsedHop, capturedAt time.Time) model.Route {
	out := model.Route{Fingerprint: Fingerprint(hops), CapturedAt: capturedAt}
	for _, h := range hops {
		if h.IP == "" {
			continue
		}
		out.Hops = append(out.Hops, model.Hop{Index: h.Index, IP: h.IP})
	}
	return out
}

func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)-1))
}
