package ping

import (
	"context"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
	"github.com/tinytelemetry/netwatch/internal/procsup"
	"github.com/tinytelemetry/netwatch/internal/stats"

	"go.uber.org/zap"
)

// Worker probes the fixed target once per tick and commits samples to the
// repository. On a connection-state transition it synchronously asks the
// classifier to re-evaluate so the dashboard never shows a stale diagnosis.
type Worker struct {
	target      string
	interval    time.Duration
	ttlEvery    int
	repo        *stats.Repository
	sup         *procsup.Supervisor
	onTransition func(ctx context.Context)
	log         *zap.Logger

	raw   *RawPinger
	fam   family
	ticks int
}

// UseRawFallback switches the worker to the raw-socket pinger. Only wired
// when the system ping binary is absent and the explicit flag enables it.
func (w *Worker) UseRawFallback(raw *RawPinger) {
	w.raw = raw
}

// NewWorker wires a ping worker. onTransition may be nil.
func NewWorker(target string, interval time.Duration, ttlEvery int, repo *stats.Repository, sup *procsup.Supervisor, onTransition func(ctx context.Context), log *zap.Logger) *Worker {
	if ttlEvery <= 0 {
		ttlEvery = model.DefaultTTLInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		target:       target,
		interval:     interval,
		ttlEvery:     ttlEvery,
		repo:         repo,
		sup:          sup,
		onTransition: onTransition,
		log:          log,
	}
}

// RunOnce executes one probe tick.
func (w *Worker) RunOnce(ctx context.Context) error {
	if w.raw != nil {
		return w.runRaw(ctx)
	}
	ipv6 := w.fam.isIPv6(ctx, w.target)
	argv, err := BuildCommand(w.target, w.interval, ipv6)
	if err != nil {
		return err
	}

	sentAt := time.Now().UTC()
	res := w.sup.Spawn(ctx, argv, w.interval)

	sample := model.Sample{SentAt: sentAt}
	switch res.Kind {
	case procsup.KindOK:
		if rtt, ok := ParseRTT(res.Stdout, res.ExitCode); ok {
			sample.OK = true
			sample.RTTms = rtt
		} else if res.ExitCode == 0 {
			sample.Err = model.ErrParse
			w.log.Debug("unparseable ping output", zap.String("stdout", res.Stdout))
		} else {
			sample.Err = model.ErrTransient
		}
	case procsup.KindTimeout:
		sample.Err = model.ErrTransient
	case procsup.KindKilled:
		sample.Err = model.ErrCancelled
	default:
		sample.Err = model.ErrPermanent
	}

	tr := w.repo.RecordPingResult(sample)

	w.ticks++
	if sample.OK && w.ticks%w.ttlEvery == 1 {
		if ttl, hops, ok := ParseTTL(res.Stdout); ok {
			w.repo.UpdateTTL(ttl, hops)
		}
	}
	w.repo.MarkFirstTick()

	if tr != stats.TransitionNone && w.onTransition != nil {
		w.onTransition(ctx)
	}
	return nil
}

func (w *Worker) runRaw(ctx context.Context) error {
	sentAt := time.Now().UTC()
	sample := model.Sample{SentAt: sentAt}

	rtt, err := w.raw.Ping(ctx, w.interval)
	switch {
	case err == nil:
		sample.OK = true
		sample.RTTms = rtt
	case ctx.Err() != nil:
		sample.Err = model.ErrCancelled
	default:
		sample.Err = model.ErrTransient
	}

	tr := w.repo.RecordPingResult(sample)
	w.ticks++
	w.repo.MarkFirstTick()
	if tr != stats.TransitionNone && w.onTransition != nil {
		w.onTransition(ctx)
	}
	return nil
}
