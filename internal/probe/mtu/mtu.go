// Package mtu discovers the local interface MTU and the path MTU to the
// target with don't-fragment pings, feeding the repository's hysteresis.
package mtu

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
	"github.com/tinytelemetry/netwatch/internal/probe/ping"
	"github.com/tinytelemetry/netwatch/internal/procsup"
	"github.com/tinytelemetry/netwatch/internal/stats"

	"go.uber.org/zap"
)

const (
	searchLow  = 500
	searchHigh = 1500
	// Per-ping budget keeps the whole binary search within a few seconds.
	probeTimeout = 2 * time.Second
)

var mtuRe = regexp.MustCompile(`mtu\s+(\d+)`)

// Worker runs the periodic MTU check.
type Worker struct {
	target        string
	diffThreshold int
	issueConsec   int
	clearConsec   int
	repo          *stats.Repository
	sup           *procsup.Supervisor
	log           *zap.Logger
}

// NewWorker wires the MTU worker.
func NewWorker(target string, diffThreshold, issueConsec, clearConsec int, repo *stats.Repository, sup *procsup.Supervisor, log *zap.Logger) *Worker {
	if diffThreshold <= 0 {
		diffThreshold = model.DefaultMTUDiffThreshold
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		target:        target,
		diffThreshold: diffThreshold,
		issueConsec:   issueConsec,
		clearConsec:   clearConsec,
		repo:          repo,
		sup:           sup,
		log:           log,
	}
}

// RunOnce probes local and path MTU once and advances the hysteresis.
func (w *Worker) RunOnce(ctx context.Context) error {
	local := w.localMTU(ctx)
	path := 0
	if local > 0 {
		path = w.discoverPathMTU(ctx)
	}
	w.repo.UpdateMTU(local, path)

	// An unreachable path probe is not an MTU verdict.
	if local == 0 || path == 0 {
		return nil
	}

	issueNow := local-path > w.diffThreshold
	changed, issue := w.repo.UpdateMTUHysteresis(issueNow, w.issueConsec, w.clearConsec)
	if changed {
		w.log.Info("mtu state changed",
			zap.Bool("issue", issue),
			zap.Int("local_mtu", local),
			zap.Int("path_mtu", path))
	}
	return nil
}

// localMTU reads the primary interface MTU from `ip link show`.
func (w *Worker) localMTU(ctx context.Context) int {
	res := w.sup.Spawn(ctx, []string{"ip", "link", "show"}, probeTimeout)
	if res.Kind != procsup.KindOK || res.ExitCode != 0 {
		return 0
	}
	if m := mtuRe.FindStringSubmatch(res.Stdout); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v >= 500 && v <= 9000 {
			return v
		}
	}
	return 0
}

// discoverPathMTU binary-searches the largest payload that survives a
// don't-fragment ping. Returns 0 when nothing got through.
func (w *Worker) discoverPathMTU(ctx context.Context) int {
	low, high := searchLow, searchHigh
	anyOK := false

	for low <= high {
		if ctx.Err() != nil {
			return 0
		}
		mid := (low + high) / 2

		argv, err := ping.BuildDFCommand(w.target, mid, probeTimeout, false)
		if err != nil {
			return 0
		}
		res := w.sup.Spawn(ctx, argv, probeTimeout)

		switch {
		case res.Kind == procsup.KindOK && res.ExitCode == 0:
			anyOK = true
			low = mid + 1
		case res.Kind == procsup.KindKilled:
			return 0
		default:
			// Timeout or fragmentation-needed: packet too large.
			high = mid - 1
		}
	}

	if !anyOK || high < searchLow {
		return 0
	}
	// The payload excludes the 28-byte IP+ICMP header overhead.
	return high + 28
}
