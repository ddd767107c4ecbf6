package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/naoina/toml"
)

// fileConfig mirrors Config's TOML-facing shape. Durations are encoded as
// seconds in the file (TOML has no native duration type) and converted on
// load, matching the teacher's own preference for explicit, typed config
// fields over opaque strings.
type fileConfig struct {
	JournalPath               string `toml:"journal_path"`
	HealthReportPath          string `toml:"health_report_path"`
	VerifierURL               string `toml:"verifier_url"`
	StabilityHost             string `toml:"stability_host"`
	BrownoutMarkerPath        string `toml:"brownout_marker_path"`
	T2Score                   uint32 `toml:"t2_score"`
	T3Score                   uint32 `toml:"t3_score"`
	T3ScoreRuntime            uint32 `toml:"t3_score_runtime"`
	TriesT2                   uint8  `toml:"tries_t2"`
	TriesT3                   uint8  `toml:"tries_t3"`
	BrownoutCooldownBoots     uint8  `toml:"brownout_cooldown_boots"`
	TickIntervalSeconds       int64  `toml:"tick_interval_seconds"`
	EmergencyCooldownSeconds  int64  `toml:"emergency_cooldown_seconds"`
	Tier3GraceSeconds         int64  `toml:"tier3_grace_seconds"`
	VerifierUnreachableStreak int    `toml:"verifier_unreachable_streak"`
	SustainedLowHealthStreak  int    `toml:"sustained_low_health_streak"`
	NetworkStabilityWindowSec int64  `toml:"network_stability_window_seconds"`
	ReachabilityTimeoutSec    int64  `toml:"reachability_probe_timeout_seconds"`
	LogLevel                  string `toml:"log_level"`
	LogFilePath               string `toml:"log_file_path"`
	LogMaxSizeMB              int    `toml:"log_max_size_mb"`
	LogMaxBackups             int    `toml:"log_max_backups"`
	LogMaxAgeDays             int    `toml:"log_max_age_days"`
}

// LoadFile parses a TOML configuration file at path into a Config, using
// naoina/toml the way the teacher's own go.mod pulls it in for exactly
// this concern. Only fields present in the file are populated; everything
// else is left at Config's zero value so Manager.ApplyFile's non-zero-wins
// merge leaves compiled-in defaults untouched.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return Config{
		JournalPath:               fc.JournalPath,
		HealthReportPath:          fc.HealthReportPath,
		VerifierURL:               fc.VerifierURL,
		StabilityHost:             fc.StabilityHost,
		BrownoutMarkerPath:        fc.BrownoutMarkerPath,
		T2Score:                   fc.T2Score,
		T3Score:                   fc.T3Score,
		T3ScoreRuntime:            fc.T3ScoreRuntime,
		TriesT2:                   fc.TriesT2,
		TriesT3:                   fc.TriesT3,
		BrownoutCooldownBoots:     fc.BrownoutCooldownBoots,
		TickInterval:              time.Duration(fc.TickIntervalSeconds) * time.Second,
		EmergencyCooldown:         time.Duration(fc.EmergencyCooldownSeconds) * time.Second,
		Tier3Grace:                time.Duration(fc.Tier3GraceSeconds) * time.Second,
		VerifierUnreachableStreak: fc.VerifierUnreachableStreak,
		SustainedLowHealthStreak:  fc.SustainedLowHealthStreak,
		NetworkStabilityWindow:    time.Duration(fc.NetworkStabilityWindowSec) * time.Second,
		ReachabilityProbeTimeout:  time.Duration(fc.ReachabilityTimeoutSec) * time.Second,
		LogLevel:                  fc.LogLevel,
		LogFilePath:               fc.LogFilePath,
		LogMaxSizeMB:              fc.LogMaxSizeMB,
		LogMaxBackups:             fc.LogMaxBackups,
		LogMaxAgeDays:             fc.LogMaxAgeDays,
	}, nil
}

// envPrefix namespaces every environment variable this package reads.
const envPrefix = "PAC_"

// LoadEnv reads PAC_* environment variables into a Config. Unset or
// unparsable numeric/duration variables are left at zero rather than
// erroring, since ApplyEnv's merge treats zero as "not set by this layer".
func LoadEnv() Config {
	var c Config
	c.JournalPath = os.Getenv(envPrefix + "JOURNAL_PATH")
	c.HealthReportPath = os.Getenv(envPrefix + "HEALTH_REPORT_PATH")
	c.VerifierURL = os.Getenv(envPrefix + "VERIFIER_URL")
	c.StabilityHost = os.Getenv(envPrefix + "STABILITY_HOST")
	c.BrownoutMarkerPath = os.Getenv(envPrefix + "BROWNOUT_MARKER_PATH")
	c.LogLevel = os.Getenv(envPrefix + "LOG_LEVEL")
	c.LogFilePath = os.Getenv(envPrefix + "LOG_FILE_PATH")

	if v, ok := envUint32(envPrefix + "T2_SCORE"); ok {
		c.T2Score = v
	}
	if v, ok := envUint32(envPrefix + "T3_SCORE"); ok {
		c.T3Score = v
	}
	if v, ok := envUint32(envPrefix + "T3_SCORE_RUNTIME"); ok {
		c.T3ScoreRuntime = v
	}
	if v, ok := envSeconds(envPrefix + "TICK_INTERVAL_SECONDS"); ok {
		c.TickInterval = v
	}
	if v, ok := envSeconds(envPrefix + "TIER3_GRACE_SECONDS"); ok {
		c.Tier3Grace = v
	}
	return c
}

func envUint32(key string) (uint32, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

func envSeconds(key string) (time.Duration, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
