package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/logrusorgru/aurora"
	"github.com/urfave/cli/v2"

	"github.com/anonymous-shadowhawk/pacboot/internal/config"
	"github.com/anonymous-shadowhawk/pacboot/internal/journal"
	"github.com/anonymous-shadowhawk/pacboot/internal/record"
)

func au() aurora.Aurora {
	return aurora.NewAurora(colorEnabled)
}

func openStore(c *cli.Context) (*journal.Store, error) {
	return journal.OpenOrInit(c.String("journal"))
}

// withStore opens the journal, runs fn against a freshly read record, and
// (unless fn returns an error) writes the possibly-modified record back.
func withStore(c *cli.Context, fn func(r *record.BootRecord) error) error {
	s, err := openStore(c)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	r, err := s.Read()
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if err := fn(&r); err != nil {
		return err
	}
	return s.Write(r)
}

var initCommand = &cli.Command{
	Name:  "init",
	Usage: "create a fresh two-page journal at --journal, if it does not already exist",
	Action: func(c *cli.Context) error {
		s, err := openStore(c)
		if err != nil {
			return fmt.Errorf("init journal: %w", err)
		}
		r, err := s.Read()
		if err != nil {
			return fmt.Errorf("read back newly initialized journal: %w", err)
		}
		fmt.Fprintf(c.App.Writer, "%s journal ready at %s\n", au().Green("ok"), c.String("journal"))
		printRecord(c.App.Writer, r)
		return nil
	},
}

var readCommand = &cli.Command{
	Name:  "read",
	Usage: "print the current boot record",
	Action: func(c *cli.Context) error {
		s, err := openStore(c)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		r, err := s.Read()
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		printRecord(c.App.Writer, r)

		if cfgPath := c.String("config"); cfgPath != "" {
			if err := printConfigProvenance(c.App.Writer, cfgPath); err != nil {
				return err
			}
		}
		return nil
	},
}

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "print a human-readable tier/flag health summary",
	Action: func(c *cli.Context) error {
		s, err := openStore(c)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		r, err := s.Read()
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}

		tierLabel := au().Green(r.Tier.String())
		switch {
		case r.Flags.Test(record.FlagEmergency):
			tierLabel = au().Red("emergency")
		case r.Tier == record.Tier1:
			tierLabel = au().Yellow(r.Tier.String())
		}
		fmt.Fprintf(c.App.Writer, "tier:       %s\n", tierLabel)
		fmt.Fprintf(c.App.Writer, "flags:      %s\n", colorFlags(r.Flags))
		fmt.Fprintf(c.App.Writer, "boots:      %d\n", r.BootCount)
		fmt.Fprintf(c.App.Writer, "tries t2/t3: %d/%d\n", r.TriesT2, r.TriesT3)
		if record.Exhausted(&r, record.Tier2) {
			fmt.Fprintf(c.App.Writer, "%s tier2 retry budget exhausted or quarantined\n", au().Red("warning:"))
		}
		if record.Exhausted(&r, record.Tier3) {
			fmt.Fprintf(c.App.Writer, "%s tier3 retry budget exhausted\n", au().Yellow("note:"))
		}
		return nil
	},
}

var setTierCommand = &cli.Command{
	Name:      "set-tier",
	Usage:     "administratively force the committed tier",
	ArgsUsage: "<1|2|3>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return errors.New("set-tier requires exactly one argument")
		}
		n, err := strconv.Atoi(c.Args().Get(0))
		if err != nil {
			return fmt.Errorf("invalid tier %q: %w", c.Args().Get(0), err)
		}
		tier := record.Tier(n)
		if !tier.Valid() {
			return fmt.Errorf("tier must be 1, 2, or 3, got %d", n)
		}
		return withStore(c, func(r *record.BootRecord) error {
			if tier < r.Tier {
				r.IncRollback()
			}
			r.Tier = tier
			return nil
		})
	},
}

var decTriesCommand = &cli.Command{
	Name:      "dec-tries",
	Usage:     "decrement a retry budget by one",
	ArgsUsage: "<t2|t3>",
	Action: func(c *cli.Context) error {
		tier, err := parseTierArg(c)
		if err != nil {
			return err
		}
		return withStore(c, func(r *record.BootRecord) error {
			_, err := record.Decrement(r, tier)
			return err
		})
	},
}

var resetTriesCommand = &cli.Command{
	Name:  "reset-tries",
	Usage: "restore both retry budgets to their default",
	Action: func(c *cli.Context) error {
		return withStore(c, func(r *record.BootRecord) error {
			record.Reset(r)
			return nil
		})
	},
}

var setFlagCommand = &cli.Command{
	Name:      "set-flag",
	Usage:     "set a named status flag",
	ArgsUsage: "<emergency|quarantine|brownout|dirty|network_gated>",
	Action: func(c *cli.Context) error {
		bit, err := parseFlagArg(c)
		if err != nil {
			return err
		}
		return withStore(c, func(r *record.BootRecord) error {
			r.Flags = r.Flags.Set(bit)
			return nil
		})
	},
}

var clearFlagCommand = &cli.Command{
	Name:      "clear-flag",
	Usage:     "clear a named status flag",
	ArgsUsage: "<emergency|quarantine|brownout|dirty|network_gated>",
	Action: func(c *cli.Context) error {
		bit, err := parseFlagArg(c)
		if err != nil {
			return err
		}
		return withStore(c, func(r *record.BootRecord) error {
			r.Flags = r.Flags.Clear(bit)
			return nil
		})
	},
}

var incBootCommand = &cli.Command{
	Name:  "inc-boot",
	Usage: "increment boot_count (diagnostic use only)",
	Action: func(c *cli.Context) error {
		return withStore(c, func(r *record.BootRecord) error {
			r.IncBootCount()
			return nil
		})
	},
}

func parseTierArg(c *cli.Context) (record.Tier, error) {
	if c.NArg() != 1 {
		return 0, errors.New("expected exactly one argument: t2 or t3")
	}
	switch c.Args().Get(0) {
	case "t2":
		return record.Tier2, nil
	case "t3":
		return record.Tier3, nil
	default:
		return 0, fmt.Errorf("unknown tier %q, want t2 or t3", c.Args().Get(0))
	}
}

func parseFlagArg(c *cli.Context) (record.Flags, error) {
	if c.NArg() != 1 {
		return 0, errors.New("expected exactly one flag name argument")
	}
	bit, ok := record.ParseFlagName(c.Args().Get(0))
	if !ok {
		return 0, fmt.Errorf("unknown flag name %q", c.Args().Get(0))
	}
	return bit, nil
}

func colorFlags(f record.Flags) string {
	if f.Test(record.FlagEmergency) || f.Test(record.FlagQuarantine) {
		return au().Red(f.String()).String()
	}
	if f == 0 {
		return au().Green(f.String()).String()
	}
	return au().Yellow(f.String()).String()
}

func printRecord(w io.Writer, r record.BootRecord) {
	fmt.Fprintf(w, "version:      %d\n", r.Version)
	fmt.Fprintf(w, "tier:         %s\n", r.Tier.String())
	fmt.Fprintf(w, "flags:        %s\n", colorFlags(r.Flags))
	fmt.Fprintf(w, "boot_count:   %d\n", r.BootCount)
	fmt.Fprintf(w, "tries_t2:     %d\n", r.TriesT2)
	fmt.Fprintf(w, "tries_t3:     %d\n", r.TriesT3)
	fmt.Fprintf(w, "rollback_idx: %d\n", r.RollbackIdx)
	fmt.Fprintf(w, "timestamp:    %d\n", r.Timestamp)
}

func printConfigProvenance(w io.Writer, path string) error {
	m := config.NewManager()
	file, err := config.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	m.ApplyFile(file)
	m.ApplyEnv(config.LoadEnv())

	fmt.Fprintln(w, "\nconfig:")
	for _, field := range []string{
		"journal_path", "health_report_path", "verifier_url", "t2_score",
		"t3_score", "t3_score_runtime", "tries_t2", "tries_t3",
		"brownout_cooldown_boots", "tick_interval", "log_level",
	} {
		fmt.Fprintf(w, "  %-28s source=%s\n", field, au().Cyan(m.Source(field).String()))
	}
	return nil
}
