// Command pacd is the pacboot boot controller and runtime monitor daemon.
// One process drives both halves of the state machine (§4.9, §4.10): on
// start it runs a single boot-time tier-ladder pass, then (unless
// --boot-only is given) hands off to the long-running runtime monitor
// until it receives SIGINT or SIGTERM.
//
// Usage:
//
//	pacd [flags]
//
// Flags:
//
//	--config           path to a TOML configuration file
//	--journal          path to the boot journal file
//	--health-report    path to the health report JSON file
//	--verifier-url     URL of the attestation verifier
//	--stability-host   host polled for network stability
//	--log-level        log level: debug, info, warn, error
//	--log-file         path to the log file (stderr if empty)
//	--boot-only        run the boot ladder once and exit
//	--version          print version and exit
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/anonymous-shadowhawk/pacboot/internal/bootctl"
	"github.com/anonymous-shadowhawk/pacboot/internal/config"
	"github.com/anonymous-shadowhawk/pacboot/internal/health"
	"github.com/anonymous-shadowhawk/pacboot/internal/journal"
	"github.com/anonymous-shadowhawk/pacboot/internal/logging"
	"github.com/anonymous-shadowhawk/pacboot/internal/monitor"
	"github.com/anonymous-shadowhawk/pacboot/internal/policy"
	"github.com/anonymous-shadowhawk/pacboot/internal/probes"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is pacd's actual entry point, returning an exit code. It accepts CLI
// arguments without the program name so it is testable in isolation.
func run(args []string) int {
	mgr := config.NewManager()

	configPath := firstConfigFlag(args)
	if configPath != "" {
		file, err := config.LoadFile(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pacd: load config: %v\n", err)
			return 2
		}
		mgr.ApplyFile(file)
	}
	mgr.ApplyEnv(config.LoadEnv())

	if exit, code := parseFlags(args, mgr); exit {
		return code
	}

	cfg := mgr.Config()
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "pacd: invalid configuration: %v\n", e)
		}
		return 1
	}

	log := newLogger(cfg)
	logging.SetDefault(log)

	log.Info("pacd starting", "version", version, "commit", commit,
		"journal", cfg.JournalPath, "health_report", cfg.HealthReportPath,
		"verifier_url", cfg.VerifierURL, "boot_only", bootOnlyFlag)

	j, err := journal.OpenOrInit(cfg.JournalPath, journal.WithLogger(log))
	if err != nil {
		log.Error("open journal", "err", err)
		return 1
	}
	defer j.Close()

	h := health.New(cfg.HealthReportPath, health.WithLogger(log))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Watch(ctx); err != nil {
		log.Warn("health report watch failed, falling back to per-call reads", "err", err)
	}

	p := probes.New(cfg.VerifierURL, cfg.StabilityHost,
		probes.WithLogger(log),
		probes.WithHTTPClient(&http.Client{Timeout: cfg.ReachabilityProbeTimeout}))

	thresholds := policy.DefaultThresholds()
	thresholds.T2Score = cfg.T2Score
	thresholds.T3Score = cfg.T3Score
	thresholds.T3ScoreRuntime = cfg.T3ScoreRuntime
	thresholds.BrownoutCooldownBoots = cfg.BrownoutCooldownBoots
	thresholds.VerifierUnreachableStreak = cfg.VerifierUnreachableStreak
	thresholds.SustainedLowHealthStreak = cfg.SustainedLowHealthStreak
	thresholds.NetworkStabilityWindow = cfg.NetworkStabilityWindow

	mounter := newBlockMounter(log)
	attestor := newHTTPAttestor(cfg.VerifierURL, cfg.ReachabilityProbeTimeout)
	rebooter := newExecRebooter(log)
	actions := scriptNetworkSetup{scriptPath: networkSetupScriptFlag, attestor: attestor}

	bc := bootctl.New(j, h, p, attestor, mounter,
		bootctl.WithLogger(log),
		bootctl.WithConfig(bootctl.Config{
			Thresholds:            thresholds,
			EmergencyOnExhaustion: cfg.EmergencyOnExhaustion,
			BrownoutMarkerPath:    cfg.BrownoutMarkerPath,
		}))

	state, rec, err := bc.Run(ctx)
	if err != nil {
		log.Error("boot pass failed", "err", err)
		return 1
	}
	log.Info("boot pass complete", "state", state.String(), "tier", rec.Tier.String())

	if bootOnlyFlag {
		return 0
	}

	mon := monitor.New(j, h, p, actions, rebooter,
		monitor.WithLogger(log),
		monitor.WithConfig(monitor.Config{
			TickInterval:      cfg.TickInterval,
			EmergencyCooldown: cfg.EmergencyCooldown,
			Tier3Grace:        cfg.Tier3Grace,
			Thresholds:        thresholds,
		}))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Error("monitor loop exited with error", "err", err)
			return 1
		}
	}

	log.Info("shutdown complete")
	return 0
}

// newLogger builds the daemon's logger from the resolved configuration,
// rotating to disk via lumberjack when a log file path is set.
func newLogger(cfg config.Config) *logging.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if cfg.LogFilePath == "" {
		return logging.New(level, os.Stderr)
	}
	return logging.NewRotating(level, os.Stderr, logging.Options{
		FilePath:   cfg.LogFilePath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
}

// firstConfigFlag scans for --config/-config ahead of the main flag parse,
// since the config file must be loaded before building the flag.FlagSet
// that flags then override.
func firstConfigFlag(args []string) string {
	for i, a := range args {
		switch {
		case a == "--config" || a == "-config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case len(a) > len("--config=") && a[:len("--config=")] == "--config=":
			return a[len("--config="):]
		case len(a) > len("-config=") && a[:len("-config=")] == "-config=":
			return a[len("-config="):]
		}
	}
	return ""
}
