// Command pacctl is the administrative CLI for a pacboot device: it reads
// and edits the on-disk boot journal directly, for use from a recovery
// shell or a provisioning script (§6.4 of the specification).
//
// Usage:
//
//	pacctl [global flags] <command> [args]
//
// Commands:
//
//	init                    create a fresh journal
//	read                    print the current boot record
//	status                  print a human-readable health/tier summary
//	set-tier <1|2|3>        administratively force the committed tier
//	dec-tries <t2|t3>       decrement a retry budget by one
//	reset-tries             restore both retry budgets to their default
//	set-flag <name>         set a named status flag
//	clear-flag <name>       clear a named status flag
//	inc-boot                increment boot_count (diagnostic use)
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/anonymous-shadowhawk/pacboot/internal/journal"
)

var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

// colorEnabled decides whether aurora should emit ANSI codes at all, so
// output piped to a file or another process stays plain.
var colorEnabled = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

var journalPathFlag = &cli.StringFlag{
	Name:    "journal",
	Aliases: []string{"j"},
	Value:   "/boot/pacboot.journal",
	Usage:   "path to the boot journal file",
}

var configPathFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "path to the TOML configuration file",
}

// Writer defaults to a color-aware stdout writer: on terminals that support
// it ANSI sequences render directly, and on Windows consoles without native
// ANSI support go-colorable translates them. Tests swap it for a buffer.
var app = &cli.App{
	Name:    "pacctl",
	Usage:   "inspect and administer a pacboot device's boot journal",
	Version: fmt.Sprintf("%s (commit %s)", version, commit),
	Writer:  colorable.NewColorableStdout(),
	Flags:   []cli.Flag{journalPathFlag, configPathFlag},
	Commands: []*cli.Command{
		initCommand,
		readCommand,
		statusCommand,
		setTierCommand,
		decTriesCommand,
		resetTriesCommand,
		setFlagCommand,
		clearFlagCommand,
		incBootCommand,
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "pacctl: %v\n", err)
		if errors.Is(err, journal.ErrIo) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
