package main

import "time"

// appConfig is populated by viper from environment variables with file
// defaults. Bounds are validated in loadConfig.
type appConfig struct {
	TargetIP string `mapstructure:"target_ip"`
	Interval float64 `mapstructure:"interval"` // seconds

	WindowSize    int `mapstructure:"window_size"`
	LatencyWindow int `mapstructure:"latency_window"`

	PacketLossThreshold      float64 `mapstructure:"packet_loss_threshold"`
	AvgLatencyThreshold      float64 `mapstructure:"avg_latency_threshold"`
	JitterThreshold          float64 `mapstructure:"jitter_threshold"`
	ConsecutiveLossThreshold int     `mapstructure:"consecutive_loss_threshold"`

	EnableSoundAlerts bool   `mapstructure:"enable_sound_alerts"`
	AlertCooldown     int    `mapstructure:"alert_cooldown"`
	EnableQuietHours  bool   `mapstructure:"enable_quiet_hours"`
	QuietHoursStart   string `mapstructure:"quiet_hours_start"`
	QuietHoursEnd     string `mapstructure:"quiet_hours_end"`

	EnableDNSMonitoring bool     `mapstructure:"enable_dns_monitoring"`
	DNSTestDomain       string   `mapstructure:"dns_test_domain"`
	DNSRecordTypes      []string `mapstructure:"dns_record_types"`
	DNSCheckInterval    int      `mapstructure:"dns_check_interval"`
	DNSSlowThreshold    float64  `mapstructure:"dns_slow_threshold"`
	DNSTimeout          float64  `mapstructure:"dns_timeout"`

	EnableDNSBenchmark      bool     `mapstructure:"enable_dns_benchmark"`
	DNSBenchmarkServers     []string `mapstructure:"dns_benchmark_servers"`
	DNSBenchmarkHistorySize int      `mapstructure:"dns_benchmark_history_size"`
	DNSBenchmarkInterval    int      `mapstructure:"dns_benchmark_interval"`

	EnableMTUMonitoring bool `mapstructure:"enable_mtu_monitoring"`
	MTUCheckInterval    int  `mapstructure:"mtu_check_interval"`
	MTUIssueConsecutive int  `mapstructure:"mtu_issue_consecutive"`
	MTUClearConsecutive int  `mapstructure:"mtu_clear_consecutive"`
	MTUDiffThreshold    int  `mapstructure:"mtu_diff_threshold"`

	EnableHopMonitoring   bool    `mapstructure:"enable_hop_monitoring"`
	HopPingInterval       float64 `mapstructure:"hop_ping_interval"`
	HopPingTimeout        float64 `mapstructure:"hop_ping_timeout"`
	HopRediscoverInterval int     `mapstructure:"hop_rediscover_interval"`
	EnableHopGeo          bool    `mapstructure:"enable_hop_geo"`

	EnableAutoTraceroute    bool `mapstructure:"enable_auto_traceroute"`
	RouteAnalysisInterval   int  `mapstructure:"route_analysis_interval"`
	TracerouteTriggerLosses int  `mapstructure:"traceroute_trigger_losses"`
	TracerouteCooldown      int  `mapstructure:"traceroute_cooldown"`
	TracerouteMaxHops       int  `mapstructure:"traceroute_max_hops"`
	TracerouteSnapshotDir   string `mapstructure:"traceroute_snapshot_dir"`
	RouteChangeConsecutive  int  `mapstructure:"route_change_consecutive"`

	IPCheckInterval      int `mapstructure:"ip_check_interval"`
	VersionCheckInterval int `mapstructure:"version_check_interval"`

	ProblemAnalysisInterval int `mapstructure:"problem_analysis_interval"`

	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
	HealthEnabled  bool   `mapstructure:"health_enabled"`
	HealthAddr     string `mapstructure:"health_addr"`
	HealthUser     string `mapstructure:"health_auth_user"`
	HealthPassword string `mapstructure:"health_auth_password"`
	HealthPublic   bool   `mapstructure:"health_allow_public"`

	SmartAlertRatePerMinute float64 `mapstructure:"smart_alert_rate_per_minute"`
	SmartAlertRateBurst     int     `mapstructure:"smart_alert_rate_burst"`
	SmartAlertDedupWindow   int     `mapstructure:"smart_alert_dedup_window"`
	SmartAlertGroupWindow   int     `mapstructure:"smart_alert_group_window"`
	SmartAlertEscalationMin int     `mapstructure:"smart_alert_escalation_minutes"`
	SmartAlertMinSamples    int     `mapstructure:"smart_alert_min_samples"`

	EnableRawSocketFallback bool `mapstructure:"enable_raw_socket_fallback"`

	Headless bool   `mapstructure:"headless"`
	Debug    bool   `mapstructure:"debug"`
	LogPath  string `mapstructure:"log_path"`

	ConfigPath string `mapstructure:"-"`
}

func (c appConfig) interval() time.Duration {
	return time.Duration(c.Interval * float64(time.Second))
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}
