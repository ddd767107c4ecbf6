// Package config holds pacboot's operator-tunable configuration: the flat
// set of knobs the specification leaves as "default" or "configuration,
// not constants" rather than fixed invariants, plus the layered loader and
// provenance tracking used to populate them (§4.8, §9(b) of the design).
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds every operator-tunable knob of a pacboot installation.
// Thresholds and timings mirror the defaults built into internal/policy,
// internal/bootctl, and internal/monitor; a Config overrides them rather
// than replacing those packages' own zero-value defaults.
type Config struct {
	// JournalPath is the boot journal's on-disk path (§3.2).
	JournalPath string

	// HealthReportPath is where the external health collector writes its
	// report (§6.2).
	HealthReportPath string

	// VerifierURL is the reachability-probe target for Tier 3 (§6.4).
	VerifierURL string

	// StabilityHost is the host:port dialed for network-stability probes.
	StabilityHost string

	// BrownoutMarkerPath is the sidecar file recording when BROWNOUT was
	// first observed, used to measure cooldown elapsed-boots (§4.4).
	BrownoutMarkerPath string

	// T2Score and T3Score are the minimum overall_score required to
	// promote into Tier 2 and Tier 3 respectively (§4.8).
	T2Score uint32
	T3Score uint32
	// T3ScoreRuntime is the (typically stricter) Tier 3 score floor the
	// runtime monitor applies once past the initial boot-time promotion.
	T3ScoreRuntime uint32

	// TriesT2 and TriesT3 are the retry budgets consumed by failed
	// promotion attempts into Tier 2 and Tier 3 (§3.1, §4.5).
	TriesT2 uint8
	TriesT3 uint8

	// BrownoutCooldownBoots is the number of full boots that must elapse
	// after BROWNOUT is observed before promotion is reconsidered (§4.4).
	BrownoutCooldownBoots uint8

	// TickInterval is the runtime monitor's steady-state poll period.
	TickInterval time.Duration
	// EmergencyCooldown is how long the monitor sleeps between ticks while
	// EMERGENCY is set, instead of TickInterval.
	EmergencyCooldown time.Duration
	// Tier3Grace is the settle period after reaching Tier 3 during which
	// degradation guards are suppressed (§4.10).
	Tier3Grace time.Duration

	// VerifierUnreachableStreak and SustainedLowHealthStreak are the
	// consecutive-tick counts that arm the Tier 3 and Tier 2 degrade
	// guards respectively (§4.10).
	VerifierUnreachableStreak int
	SustainedLowHealthStreak  int

	// NetworkStabilityWindow is how long the network must stay reachable
	// before Tier 2->3 promotion is permitted (§4.7).
	NetworkStabilityWindow time.Duration
	// ReachabilityProbeTimeout bounds a single verifier reachability probe.
	ReachabilityProbeTimeout time.Duration

	// EmergencyOnExhaustion decides whether exhausting tries_t2 alone
	// forces EMERGENCY mode (§4.9's INIT->EMERGENCY Open Question).
	EmergencyOnExhaustion bool

	// LogLevel controls log verbosity (debug, info, warn, error).
	LogLevel string
	// LogFilePath, if set, routes logs through a rotating file sink
	// instead of stderr alone (internal/logging's NewRotating).
	LogFilePath    string
	LogMaxSizeMB   int
	LogMaxBackups  int
	LogMaxAgeDays  int
}

// DefaultConfig returns a Config with the specification's documented
// defaults (§4.8, §9(b)).
func DefaultConfig() Config {
	return Config{
		JournalPath:               "/boot/pacboot.journal",
		HealthReportPath:          "/run/pacboot/health.json",
		VerifierURL:               "",
		StabilityHost:             "",
		BrownoutMarkerPath:        "/var/pacboot/brownout-marker.json",
		T2Score:                   3,
		T3Score:                   6,
		T3ScoreRuntime:            9,
		TriesT2:                   3,
		TriesT3:                   3,
		BrownoutCooldownBoots:     2,
		TickInterval:              10 * time.Second,
		EmergencyCooldown:         5 * time.Minute,
		Tier3Grace:                10 * time.Second,
		VerifierUnreachableStreak: 2,
		SustainedLowHealthStreak:  2,
		NetworkStabilityWindow:    60 * time.Second,
		ReachabilityProbeTimeout:  2 * time.Second,
		EmergencyOnExhaustion:     true,
		LogLevel:                  "info",
		LogMaxSizeMB:              10,
		LogMaxBackups:             3,
		LogMaxAgeDays:             28,
	}
}

// Validate checks every field, accumulating every problem found rather
// than failing fast (teacher's ConfigValidator.Validate pattern).
func (c *Config) Validate() []error {
	var errs []error

	if c.JournalPath == "" {
		errs = append(errs, errors.New("config: journal_path must not be empty"))
	}
	if c.HealthReportPath == "" {
		errs = append(errs, errors.New("config: health_report_path must not be empty"))
	}
	if c.T2Score > c.T3Score {
		errs = append(errs, fmt.Errorf("config: t2_score (%d) must not exceed t3_score (%d)", c.T2Score, c.T3Score))
	}
	if c.T3Score > c.T3ScoreRuntime {
		errs = append(errs, fmt.Errorf("config: t3_score (%d) must not exceed t3_score_runtime (%d)", c.T3Score, c.T3ScoreRuntime))
	}
	if c.TriesT2 == 0 {
		errs = append(errs, errors.New("config: tries_t2 must be greater than 0"))
	}
	if c.TriesT3 == 0 {
		errs = append(errs, errors.New("config: tries_t3 must be greater than 0"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("config: tick_interval must be positive"))
	}
	if c.EmergencyCooldown <= 0 {
		errs = append(errs, errors.New("config: emergency_cooldown must be positive"))
	}
	if c.Tier3Grace < 0 {
		errs = append(errs, errors.New("config: tier3_grace must not be negative"))
	}
	if c.VerifierUnreachableStreak <= 0 {
		errs = append(errs, errors.New("config: verifier_unreachable_streak must be greater than 0"))
	}
	if c.SustainedLowHealthStreak <= 0 {
		errs = append(errs, errors.New("config: sustained_low_health_streak must be greater than 0"))
	}
	if c.NetworkStabilityWindow <= 0 {
		errs = append(errs, errors.New("config: network_stability_window must be positive"))
	}
	if c.ReachabilityProbeTimeout <= 0 {
		errs = append(errs, errors.New("config: reachability_probe_timeout must be positive"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log level %q", c.LogLevel))
	}

	return errs
}
