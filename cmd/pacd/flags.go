package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/anonymous-shadowhawk/pacboot/internal/config"
)

// parseFlags parses CLI arguments into a config.Config, applied on top of
// any --config file and PAC_-prefixed environment variables already loaded
// into mgr. Returns whether the caller should exit immediately and with
// what code.
func parseFlags(args []string, mgr *config.Manager) (bool, int) {
	cli := config.Config{}

	fs := flag.NewFlagSet("pacd", flag.ContinueOnError)
	fs.String("config", "", "path to a TOML configuration file (read ahead of flag parsing)")
	fs.StringVar(&cli.JournalPath, "journal", "", "path to the boot journal file")
	fs.StringVar(&cli.HealthReportPath, "health-report", "", "path to the health report JSON file")
	fs.StringVar(&cli.VerifierURL, "verifier-url", "", "URL of the attestation verifier")
	fs.StringVar(&cli.StabilityHost, "stability-host", "", "host polled for network stability")
	fs.StringVar(&cli.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&cli.LogFilePath, "log-file", "", "path to the log file (stderr if empty)")
	bootOnly := fs.Bool("boot-only", false, "run a single boot-ladder pass and exit, without starting the monitor")
	networkSetupScript := fs.String("network-setup-script", "", "script to run before a Tier1->Tier2 promotion; no-op if empty")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return true, 2
	}
	if *showVersion {
		fmt.Printf("pacd %s (commit %s)\n", version, commit)
		return true, 0
	}

	mgr.ApplyCLI(cli)
	bootOnlyFlag = *bootOnly
	networkSetupScriptFlag = *networkSetupScript
	return false, 0
}

// bootOnlyFlag and networkSetupScriptFlag are package state rather than
// Config fields since they control cmd/pacd's own process behavior, not
// any subsystem's policy.
var (
	bootOnlyFlag           bool
	networkSetupScriptFlag string
)
