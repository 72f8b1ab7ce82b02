package model

import "time"

// Shared defaults used by the binary and the probe packages.
const (
	DefaultInterval       = 1 * time.Second
	DefaultWindowSize     = 1800 // loss window, 30 min at 1 Hz
	DefaultLatencyWindow  = 600

	DefaultConsecutiveLossThreshold = 5
	DefaultPacketLossThreshold      = 5.0
	DefaultAvgLatencyThreshold      = 100.0
	DefaultJitterThreshold          = 30.0

	DefaultDNSCheckInterval  = 10 * time.Second
	DefaultDNSSlowThreshold  = 100.0 // ms
	DefaultDNSBenchHistory   = 20
	DefaultDNSTimeout        = 2 * time.Second

	DefaultMTUCheckInterval   = 30 * time.Second
	DefaultMTUIssueConsec     = 3
	DefaultMTUClearConsec     = 3
	DefaultMTUDiffThreshold   = 50

	DefaultTTLInterval = 10 // every N pings

	DefaultHopPingInterval     = 1 * time.Second
	DefaultHopPingTimeout      = 1 * time.Second
	DefaultHopRediscover       = time.Hour
	DefaultHopHistorySize      = 30

	DefaultRouteInterval         = 30 * time.Minute
	DefaultTracerouteCooldown    = 5 * time.Minute
	DefaultTracerouteMaxHops     = 20
	DefaultTracerouteTimeout     = 60 * time.Second
	DefaultRouteChangeConsec     = 2
	DefaultTracerouteTriggerLoss = 10

	DefaultIPCheckInterval      = 15 * time.Second
	DefaultVersionCheckInterval = time.Hour

	DefaultProblemInterval = 60 * time.Second
)

// EMA smoothing factor for jitter updates.
const JitterAlpha = 0.1
