package route

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
	"github.com/tinytelemetry/netwatch/internal/procsup"
	"github.com/tinytelemetry/netwatch/internal/stats"

	"go.uber.org/zap"
)

// Detector runs traceroute on a long interval and on connection-problem
// escalations, bounded by a cooldown. Route changes commit only after the
// configured number of consecutive detections that differ from the stored
// route; those detections are not required to match one another.
type Detector struct {
	target           string
	maxHops          int
	cooldown         time.Duration
	changeConsec     int
	latencyThreshold float64
	snapshotDir      string
	repo             *stats.Repository
	sup              *procsup.Supervisor
	log              *zap.Logger

	lastHops []ParsedHop
}

// NewDetector wires the route detector. snapshotDir may be empty to disable
// traceroute files.
func NewDetector(target string, maxHops, changeConsec int, cooldown time.Duration, latencyThreshold float64, snapshotDir string, repo *stats.Repository, sup *procsup.Supervisor, log *zap.Logger) *Detector {
	if maxHops <= 0 {
		maxHops = model.DefaultTracerouteMaxHops
	}
	if changeConsec <= 0 {
		changeConsec = model.DefaultRouteChangeConsec
	}
	if latencyThreshold <= 0 {
		latencyThreshold = 3000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{
		target:           target,
		maxHops:          maxHops,
		cooldown:         cooldown,
		changeConsec:     changeConsec,
		latencyThreshold: latencyThreshold,
		snapshotDir:      snapshotDir,
		repo:             repo,
		sup:              sup,
		log:              log,
	}
}

// Command returns the OS-specific traceroute argv. Synchronous DNS is
// disabled; hostnames are resolved in the background afterwards.
func (d *Detector) Command() []string {
	if runtime.GOOS == "windows" {
		return []string{"tracert", "-d", "-h", strconv.Itoa(d.maxHops), "-w", "500", d.target}
	}
	return []string{"traceroute", "-n", "-m", strconv.Itoa(d.maxHops), "-w", "1", d.target}
}

// RunOnce performs one detection pass.
func (d *Detector) RunOnce(ctx context.Context) error {
	return d.detect(ctx, false)
}

// Trigger requests an out-of-band detection after a connection incident.
// It is a no-op while a traceroute runs or the cooldown has not elapsed.
func (d *Detector) Trigger(ctx context.Context) bool {
	if d.repo.TracerouteRunning() {
		return false
	}
	if last := d.repo.LastTracerouteAt(); !last.IsZero() && time.Since(last) < d.cooldown {
		return false
	}
	go func() {
		if err := d.detect(ctx, true); err != nil && ctx.Err() == nil {
			d.log.Warn("triggered traceroute failed", zap.Error(err))
		}
	}()
	return true
}

func (d *Detector) detect(ctx context.Context, incident bool) error {
	d.repo.SetTracerouteRunning(true)
	d.repo.SetHopsDiscovering(true)
	defer func() {
		d.repo.SetTracerouteRunning(false)
		d.repo.SetHopsDiscovering(false)
	}()

	res := d.sup.Spawn(ctx, d.Command(), model.DefaultTracerouteTimeout)
	if res.Kind == procsup.KindKilled {
		return nil
	}
	if res.Kind == procsup.KindSpawnError {
		return fmt.Errorf("traceroute unavailable")
	}

	hops := ParseOutput(res.Stdout)
	if len(hops) == 0 {
		d.log.Debug("traceroute produced no hops", zap.String("kind", string(res.Kind)))
		return nil
	}

	problematic := ProblematicHop(hops, d.latencyThreshold)
	fp := Fingerprint(hops)

	if d.repo.RouteFingerprint() == "" {
		// First discovery: store immediately, no hysteresis.
		d.commit(hops, fp, 0, problematic)
	} else {
		changed, _ := d.repo.UpdateRouteHysteresis(fp, d.changeConsec)
		if changed {
			diff := DiffCount(d.lastHops, hops)
			d.commit(hops, fp, diff, problematic)
			d.log.Info("route change committed",
				zap.Int("diff_count", diff),
				zap.Int("hop_count", len(hops)))
		} else {
			d.repo.SetProblematicHop(problematic)
		}
	}

	if incident && d.snapshotDir != "" {
		d.saveSnapshot(res.Stdout)
	}
	return nil
}

func (d *Detector) commit(hops []ParsedHop, fp string, diff, problematic int) {
	d.lastHops = hops
	d.repo.SetRoute(ToRoute(hops, time.Now().UTC()), diff, problematic)
}

// saveSnapshot writes the raw traceroute output for post-incident analysis.
func (d *Detector) saveSnapshot(output string) {
	if err := os.MkdirAll(d.snapshotDir, 0o755); err != nil {
		d.log.Warn("cannot create traceroute snapshot dir", zap.Error(err))
		return
	}
	name := fmt.Sprintf("traceroute_%s.txt", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	path := filepath.Join(d.snapshotDir, name)

	body := fmt.Sprintf("Traceroute to %s\nTime: %s\n%s\n%s",
		d.target,
		time.Now().UTC().Format(time.RFC3339),
		"======================================================================",
		output)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		d.log.Warn("cannot save traceroute snapshot", zap.Error(err))
		return
	}
	d.log.Info("traceroute snapshot saved", zap.String("path", path))
}
