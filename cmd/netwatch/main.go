package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Exit codes: 0 graceful, 1 unrecoverable startup error, 2 misconfiguration.
const (
	exitStartupError = 1
	exitConfigError  = 2
)

func main() {
	var configPath string
	var showVersion bool
	var headless bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/netwatch/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.BoolVar(&headless, "headless", false, "run without the terminal dashboard")
	flag.Parse()

	if showVersion {
		fmt.Printf("netwatch - network path monitor\n")
		fmt.Printf("  Version: %s\n", version)
		fmt.Printf("  Commit:  %s\n", commit)
		fmt.Printf("  Built:   %s\n", buildTime)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(exitConfigError)
	}
	if headless {
		cfg.Headless = true
	}

	if err := runMonitor(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var cfgErr *configError
		if errors.As(err, &cfgErr) {
			os.Exit(exitConfigError)
		}
		os.Exit(exitStartupError)
	}
}

// configError marks misconfiguration (exit code 2) as opposed to runtime
// startup failures (exit code 1).
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("target_ip", "1.1.1.1")
	v.SetDefault("interval", 1.0)
	v.SetDefault("window_size", 1800)
	v.SetDefault("latency_window", 600)

	v.SetDefault("packet_loss_threshold", 5.0)
	v.SetDefault("avg_latency_threshold", 100.0)
	v.SetDefault("jitter_threshold", 30.0)
	v.SetDefault("consecutive_loss_threshold", 5)

	v.SetDefault("enable_sound_alerts", true)
	v.SetDefault("alert_cooldown", 5)
	v.SetDefault("enable_quiet_hours", false)
	v.SetDefault("quiet_hours_start", "22:00")
	v.SetDefault("quiet_hours_end", "07:00")

	v.SetDefault("enable_dns_monitoring", true)
	v.SetDefault("dns_test_domain", "example.com")
	v.SetDefault("dns_record_types", []string{"A", "AAAA", "CNAME", "MX", "TXT", "NS"})
	v.SetDefault("dns_check_interval", 10)
	v.SetDefault("dns_slow_threshold", 100.0)
	v.SetDefault("dns_timeout", 2.0)

	v.SetDefault("enable_dns_benchmark", true)
	v.SetDefault("dns_benchmark_servers", []string{})
	v.SetDefault("dns_benchmark_history_size", 20)
	v.SetDefault("dns_benchmark_interval", 60)

	v.SetDefault("enable_mtu_monitoring", true)
	v.SetDefault("mtu_check_interval", 30)
	v.SetDefault("mtu_issue_consecutive", 3)
	v.SetDefault("mtu_clear_consecutive", 3)
	v.SetDefault("mtu_diff_threshold", 50)

	v.SetDefault("enable_hop_monitoring", true)
	v.SetDefault("hop_ping_interval", 1.0)
	v.SetDefault("hop_ping_timeout", 1.0)
	v.SetDefault("hop_rediscover_interval", 3600)
	v.SetDefault("enable_hop_geo", true)

	v.SetDefault("enable_auto_traceroute", true)
	v.SetDefault("route_analysis_interval", 1800)
	v.SetDefault("traceroute_trigger_losses", 10)
	v.SetDefault("traceroute_cooldown", 300)
	v.SetDefault("traceroute_max_hops", 20)
	v.SetDefault("traceroute_snapshot_dir", filepath.Join(home, ".local", "share", "netwatch", "traceroutes"))
	v.SetDefault("route_change_consecutive", 2)

	v.SetDefault("ip_check_interval", 15)
	v.SetDefault("version_check_interval", 3600)
	v.SetDefault("problem_analysis_interval", 60)

	v.SetDefault("metrics_enabled", true)
	v.SetDefault("metrics_addr", "127.0.0.1:9214")
	v.SetDefault("health_enabled", true)
	v.SetDefault("health_addr", "127.0.0.1:8787")
	v.SetDefault("health_auth_user", "")
	v.SetDefault("health_auth_password", "")
	v.SetDefault("health_allow_public", false)

	v.SetDefault("smart_alert_rate_per_minute", 10.0)
	v.SetDefault("smart_alert_rate_burst", 5)
	v.SetDefault("smart_alert_dedup_window", 300)
	v.SetDefault("smart_alert_group_window", 600)
	v.SetDefault("smart_alert_escalation_minutes", 30)
	v.SetDefault("smart_alert_min_samples", 30)

	v.SetDefault("enable_raw_socket_fallback", false)
	v.SetDefault("headless", false)
	v.SetDefault("debug", false)
	v.SetDefault("log_path", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "netwatch", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if net.ParseIP(cfg.TargetIP) == nil && !validHostname(cfg.TargetIP) {
		return cfg, fmt.Errorf("invalid target_ip %q", cfg.TargetIP)
	}
	if cfg.Interval <= 0 || cfg.Interval > 60 {
		return cfg, fmt.Errorf("interval %v out of range (0, 60]", cfg.Interval)
	}
	if cfg.WindowSize <= 0 || cfg.LatencyWindow <= 0 {
		return cfg, fmt.Errorf("window bounds must be positive")
	}
	if cfg.ConsecutiveLossThreshold <= 0 {
		return cfg, fmt.Errorf("consecutive_loss_threshold must be positive")
	}

	return cfg, nil
}

func validHostname(host string) bool {
	if host == "" || len(host) > 253 || strings.HasPrefix(host, "-") {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
	}
	return true
}
