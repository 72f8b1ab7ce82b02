package ping

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	timeRe    = regexp.MustCompile(`(?i)time\s*[=<>]*\s*([0-9]+[.,]?[0-9]*)`)
	subMsRe   = regexp.MustCompile(`(?i)time\s*<\s*1\s*ms`)
	ttlRe     = regexp.MustCompile(`(?i)ttl[=:\s]+(\d+)`)
)

// Some platforms print latency-looking numbers even on failure, so exit code
// wins over output and known failure phrases are rejected explicitly.
var failurePhrases = []string{
	"request timed out",
	"unreachable",
	"100% packet loss",
	"100% loss",
}

// ParseRTT extracts the round-trip time in ms from ping stdout. A non-zero
// exit code means failure regardless of output.
func ParseRTT(stdout string, exitCode int) (float64, bool) {
	if exitCode != 0 {
		return 0, false
	}

	lower := strings.ToLower(stdout)
	for _, phrase := range failurePhrases {
		if strings.Contains(lower, phrase) {
			return 0, false
		}
	}

	if subMsRe.MatchString(stdout) {
		return 0.5, true
	}

	if m := timeRe.FindStringSubmatch(stdout); m != nil {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err == nil {
			return v, true
		}
	}

	return 0, false
}

// ParseTTL extracts the reply TTL and estimates the hop count from the
// nearest common initial TTL.
func ParseTTL(stdout string) (ttl, hops int, ok bool) {
	m := ttlRe.FindStringSubmatch(stdout)
	if m == nil {
		return 0, 0, false
	}
	ttl, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	for _, initial := range []int{64, 128, 255} {
		if ttl <= initial {
			return ttl, initial - ttl, true
		}
	}
	return ttl, 0, true
}
