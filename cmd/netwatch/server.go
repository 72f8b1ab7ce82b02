package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/tinytelemetry/netwatch/internal/alerting"
	"github.com/tinytelemetry/netwatch/internal/classify"
	"github.com/tinytelemetry/netwatch/internal/dnsmon"
	"github.com/tinytelemetry/netwatch/internal/httpserver"
	"github.com/tinytelemetry/netwatch/internal/ipinfo"
	"github.com/tinytelemetry/netwatch/internal/lockfile"
	"github.com/tinytelemetry/netwatch/internal/logx"
	"github.com/tinytelemetry/netwatch/internal/metricsrv"
	"github.com/tinytelemetry/netwatch/internal/probe/hop"
	"github.com/tinytelemetry/netwatch/internal/probe/mtu"
	"github.com/tinytelemetry/netwatch/internal/probe/ping"
	"github.com/tinytelemetry/netwatch/internal/probe/route"
	"github.com/tinytelemetry/netwatch/internal/procsup"
	"github.com/tinytelemetry/netwatch/internal/sched"
	"github.com/tinytelemetry/netwatch/internal/stats"
	"github.com/tinytelemetry/netwatch/internal/tui"
	verpoll "github.com/tinytelemetry/netwatch/internal/version"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxSubprocesses  = 50
	shutdownDeadline = 2 * time.Second
)

// runMonitor wires everything and blocks until shutdown.
func runMonitor(cfg appConfig) error {
	logger, flushLogs, err := logx.New(logx.Options{
		Path:    cfg.LogPath,
		Debug:   cfg.Debug,
		Console: cfg.Headless && cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer flushLogs()

	lock, err := lockfile.Acquire("", "netwatch.lock")
	if err != nil {
		return fmt.Errorf("single instance check: %w", err)
	}
	defer lock.Release()

	repo := stats.NewRepository(stats.Options{
		Target:                   cfg.TargetIP,
		WindowSize:               cfg.WindowSize,
		LatencyWindow:            cfg.LatencyWindow,
		ConsecutiveLossThreshold: cfg.ConsecutiveLossThreshold,
		Logger:                   logger,
	})

	sup := procsup.New(maxSubprocesses, logger)
	defer sup.Shutdown(shutdownDeadline)

	// Route detector first: the classifier escalates into it.
	detector := route.NewDetector(
		cfg.TargetIP,
		cfg.TracerouteMaxHops,
		cfg.RouteChangeConsecutive,
		seconds(cfg.TracerouteCooldown),
		3000,
		cfg.TracerouteSnapshotDir,
		repo, sup, logger,
	)

	classifierThresholds := classify.DefaultThresholds()
	classifierThresholds.PacketLossPct = cfg.PacketLossThreshold
	classifierThresholds.ConsecutiveLoss = cfg.ConsecutiveLossThreshold

	var trigger func(ctx context.Context) bool
	if cfg.EnableAutoTraceroute {
		// Escalate into traceroute only once enough losses accumulated, on
		// top of the detector's own cooldown.
		trigger = func(ctx context.Context) bool {
			if repo.ConsecutiveLost() < cfg.TracerouteTriggerLosses && repo.Snapshot().LossPct() <= cfg.PacketLossThreshold {
				return false
			}
			return detector.Trigger(ctx)
		}
	}
	classifier := classify.New(classifierThresholds, repo, trigger, logger)

	pinger, err := buildPinger(cfg, repo, sup, classifier, logger)
	if err != nil {
		return err
	}

	quiet, err := alerting.NewQuietHours(cfg.EnableQuietHours, cfg.QuietHoursStart, cfg.QuietHoursEnd)
	if err != nil {
		return &configError{err}
	}
	pipeline := alerting.New(alerting.Config{
		Target:              cfg.TargetIP,
		RatePerMinute:       cfg.SmartAlertRatePerMinute,
		RateBurst:           cfg.SmartAlertRateBurst,
		DedupWindow:         seconds(cfg.SmartAlertDedupWindow),
		GroupWindow:         seconds(cfg.SmartAlertGroupWindow),
		EscalationAfter:     time.Duration(cfg.SmartAlertEscalationMin) * time.Minute,
		RecoveryEvaluations: 3,
		SoundEnabled:        cfg.EnableSoundAlerts,
		SoundCooldown:       seconds(cfg.AlertCooldown),
		Quiet:               quiet,
		StaticLatency:       cfg.AvgLatencyThreshold,
		StaticJitter:        cfg.JitterThreshold,
		StaticLoss:          cfg.PacketLossThreshold,
		MinSamples:          cfg.SmartAlertMinSamples,
	}, repo, logger)

	dnsClient := dnsmon.NewClient(time.Duration(cfg.DNSTimeout * float64(time.Second)))
	dnsServer := dnsmon.SystemServer()
	scorer := dnsmon.NewScorer(cfg.DNSSlowThreshold)
	monitor := dnsmon.NewMonitor(cfg.DNSTestDomain, cfg.DNSRecordTypes, dnsServer, dnsClient, repo, scorer, logger)

	benchServers := cfg.DNSBenchmarkServers
	if len(benchServers) == 0 {
		benchServers = []string{dnsServer}
	}
	benchmark := dnsmon.NewBenchmark(cfg.DNSTestDomain, benchServers, cfg.DNSBenchmarkHistorySize, dnsClient, repo, scorer, logger)

	mtuWorker := mtu.NewWorker(cfg.TargetIP, cfg.MTUDiffThreshold, cfg.MTUIssueConsecutive, cfg.MTUClearConsecutive, repo, sup, logger)

	var geo hop.GeoLookup
	if cfg.EnableHopGeo {
		geo = ipinfo.NewGeo(logger)
	}
	hopProber := hop.NewProber(time.Duration(cfg.HopPingTimeout*float64(time.Second)), repo, sup, geo, logger)

	ipWorker := ipinfo.NewWorker(repo, logger)
	versionWorker := verpoll.NewWorker(version, "", repo, logger)

	// Register the fixed worker set.
	orch := sched.New(logger)
	orch.Register(sched.Worker{Name: "ping", Period: cfg.interval(), Enabled: true, Run: pinger.RunOnce})
	orch.Register(sched.Worker{Name: "dns-monitor", Period: seconds(cfg.DNSCheckInterval), Enabled: cfg.EnableDNSMonitoring, Run: monitor.RunOnce})
	orch.Register(sched.Worker{Name: "dns-benchmark", Period: seconds(cfg.DNSBenchmarkInterval), Enabled: cfg.EnableDNSBenchmark, Run: benchmark.RunOnce})
	orch.Register(sched.Worker{Name: "mtu", Period: seconds(cfg.MTUCheckInterval), Enabled: cfg.EnableMTUMonitoring, Run: mtuWorker.RunOnce})
	// Hop monitoring piggybacks on the detector for periodic rediscovery,
	// so its rediscover interval caps the detector period.
	detectorPeriod := seconds(cfg.RouteAnalysisInterval)
	if cfg.EnableHopMonitoring && seconds(cfg.HopRediscoverInterval) < detectorPeriod {
		detectorPeriod = seconds(cfg.HopRediscoverInterval)
	}
	orch.Register(sched.Worker{Name: "route-detector", Period: detectorPeriod, Enabled: cfg.EnableAutoTraceroute || cfg.EnableHopMonitoring, Run: detector.RunOnce})
	orch.Register(sched.Worker{Name: "hop-prober", Period: time.Duration(cfg.HopPingInterval * float64(time.Second)), Enabled: cfg.EnableHopMonitoring, Run: hopProber.RunOnce})
	orch.Register(sched.Worker{Name: "public-ip", Period: seconds(cfg.IPCheckInterval), Enabled: true, Run: ipWorker.RunOnce})
	orch.Register(sched.Worker{Name: "version-check", Period: seconds(cfg.VersionCheckInterval), Enabled: true, Run: versionWorker.RunOnce})
	orch.Register(sched.Worker{Name: "problem-analyzer", Period: seconds(cfg.ProblemAnalysisInterval), Enabled: true, Run: classifier.RunOnce})
	orch.Register(sched.Worker{Name: "smart-alerts", Period: cfg.interval(), Enabled: true, Run: pipeline.RunOnce})

	// Read-only surfaces.
	if cfg.MetricsEnabled {
		metrics := metricsrv.NewServer(cfg.MetricsAddr, repo)
		if err := metrics.Start(); err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}
		defer metrics.Stop()
	}
	if cfg.HealthEnabled {
		health, err := httpserver.NewServer(httpserver.Config{
			Addr:         cfg.HealthAddr,
			Interval:     cfg.interval(),
			AuthUser:     cfg.HealthUser,
			AuthPassword: cfg.HealthPassword,
			AllowPublic:  cfg.HealthPublic,
		}, repo)
		if err != nil {
			return &configError{err}
		}
		if err := health.Start(); err != nil {
			return fmt.Errorf("starting health server: %w", err)
		}
		defer health.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	orch.Start(ctx)
	logger.Info("netwatch started",
		zap.String("target", cfg.TargetIP),
		zap.String("version", version),
		zap.Strings("workers", orch.Names()))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-sigCh:
			logger.Info("shutdown signal received")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if cfg.Headless {
		g.Go(func() error {
			<-gctx.Done()
			return nil
		})
	} else {
		g.Go(func() error {
			defer cancel()
			return tui.Run(gctx, repo)
		})
	}

	err = g.Wait()
	cancel()

	// Cooperative exit: drain workers, kill tracked subprocesses, release the
	// lock and flush logs via the deferred finalizers.
	orch.Wait(shutdownDeadline)
	sup.Shutdown(shutdownDeadline)
	logger.Info("netwatch stopped")
	return err
}

// buildPinger selects the system ping binary, or the raw-socket fallback
// when the binary is missing and the explicit flag enables it.
func buildPinger(cfg appConfig, repo *stats.Repository, sup *procsup.Supervisor, classifier *classify.Classifier, logger *zap.Logger) (*ping.Worker, error) {
	onTransition := func(ctx context.Context) { classifier.Evaluate(ctx) }
	worker := ping.NewWorker(cfg.TargetIP, cfg.interval(), 10, repo, sup, onTransition, logger)

	if _, err := exec.LookPath("ping"); err != nil {
		if !cfg.EnableRawSocketFallback {
			return nil, fmt.Errorf("ping binary not found and raw socket fallback disabled")
		}
		raw, err := ping.NewRawPinger(cfg.TargetIP)
		if err != nil {
			return nil, err
		}
		worker.UseRawFallback(raw)
		logger.Warn("system ping unavailable, using raw socket fallback")
	}
	return worker, nil
}
