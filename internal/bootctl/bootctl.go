// Package bootctl implements the boot-time tier ladder driver (C9): a
// single pass through the state machine of §4.9, executed once per boot.
// It owns no long-running state; the runtime monitor (internal/monitor)
// takes over once a terminal tier is reached.
package bootctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/anonymous-shadowhawk/pacboot/internal/journal"
	"github.com/anonymous-shadowhawk/pacboot/internal/logging"
	"github.com/anonymous-shadowhawk/pacboot/internal/policy"
	"github.com/anonymous-shadowhawk/pacboot/internal/record"
)

// State names the boot ladder's states (§4.9).
type State int

const (
	StateInit State = iota
	StateT1
	StateT1ToT2
	StateT2
	StateT2ToT3
	StateT3
	StateEmergency
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateT1:
		return "t1"
	case StateT1ToT2:
		return "t1->t2"
	case StateT2:
		return "t2"
	case StateT2ToT3:
		return "t2->t3"
	case StateT3:
		return "t3"
	case StateEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Attestor performs the externalized attestation procedure (§6.3). The
// core treats a returned error identically to pass=false but logs it
// distinctly.
type Attestor interface {
	Attest(ctx context.Context) (pass bool, err error)
}

// Mounter switches the device's root filesystem to the image for the
// given tier. In test harnesses this may simply record the call; in
// production it performs (or requests) the actual mount and reboot.
type Mounter interface {
	Mount(tier record.Tier) error
}

// Config holds the boot controller's policy knobs.
type Config struct {
	Thresholds policy.Thresholds

	// EmergencyOnExhaustion decides the Open Question of §4.9's INIT ->
	// EMERGENCY transition: whether exhausting tries_t2 alone (without the
	// EMERGENCY flag already set) forces emergency mode. Default true.
	EmergencyOnExhaustion bool

	// BrownoutMarkerPath stores the boot_count at which BROWNOUT was first
	// observed set, so cooldown elapsed-boots math survives a reboot. This
	// lives outside the journal's fixed byte layout (§6.1 forbids adding
	// fields to BootRecord) in a small sidecar file.
	BrownoutMarkerPath string
}

// DefaultConfig returns the boot controller's default configuration.
func DefaultConfig() Config {
	return Config{
		Thresholds:            policy.DefaultThresholds(),
		EmergencyOnExhaustion: true,
		BrownoutMarkerPath:    "/var/pacboot/brownout-marker.json",
	}
}

// Controller drives one boot-time pass of the tier ladder.
type Controller struct {
	journal  *journal.Store
	health   policy.HealthSource
	probes   policy.ProbeSource
	attestor Attestor
	mounter  Mounter
	fs       afero.Fs
	log      *logging.Logger
	cfg      Config
}

// Option configures New.
type Option func(*Controller)

// WithFs overrides the filesystem backing the brownout marker sidecar.
func WithFs(fs afero.Fs) Option {
	return func(c *Controller) { c.fs = fs }
}

// WithLogger attaches a logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithConfig overrides the default configuration.
func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

// New creates a boot controller over an already-open journal.
func New(j *journal.Store, h policy.HealthSource, p policy.ProbeSource, attestor Attestor, mounter Mounter, opts ...Option) *Controller {
	c := &Controller{
		journal:  j,
		health:   h,
		probes:   p,
		attestor: attestor,
		mounter:  mounter,
		fs:       afero.NewOsFs(),
		log:      logging.Default().Module("bootctl"),
		cfg:      DefaultConfig(),
	}
	for _, fn := range opts {
		fn(c)
	}
	return c
}

// Run executes a single boot-time pass (§4.9) and returns the terminal
// state reached along with the final committed record.
func (c *Controller) Run(ctx context.Context) (State, record.BootRecord, error) {
	r, err := c.journal.Read()
	if err != nil {
		return StateInit, record.BootRecord{}, fmt.Errorf("bootctl: read journal: %w", err)
	}

	// Step 2: increment boot_count as its own write, ahead of any ladder
	// decision, so a crash mid-ladder still leaves an advanced boot_count.
	r.IncBootCount()
	if err := c.journal.Write(r); err != nil {
		return StateInit, r, fmt.Errorf("bootctl: commit boot_count: %w", err)
	}

	if r.Flags.Test(record.FlagEmergency) {
		c.log.Warn("entering emergency: flag already set")
		return StateEmergency, r, nil
	}
	if r.TriesT2 == 0 && c.cfg.EmergencyOnExhaustion {
		r.Flags = r.Flags.Set(record.FlagEmergency).Set(record.FlagQuarantine)
		r.Tier = record.Tier1
		if err := c.journal.Write(r); err != nil {
			return StateInit, r, fmt.Errorf("bootctl: commit emergency: %w", err)
		}
		c.log.Warn("entering emergency: tries_t2 exhausted")
		return StateEmergency, r, nil
	}

	brownoutElapsed, err := c.brownoutCooldownElapsed(r)
	if err != nil {
		c.log.Warn("brownout marker unreadable, treating cooldown as not elapsed", "err", err)
	}

	okT2, reasonT2 := policy.MayPromote(ctx, r, c.health, c.probes,
		policy.PromoteInputs{BrownoutCooldownElapsed: brownoutElapsed}, c.cfg.Thresholds, record.Tier1, record.Tier2)
	if !okT2 {
		c.log.Info("staying in tier1", "reason", reasonT2.String())
		if err := c.journal.Write(r); err != nil {
			return StateT1, r, fmt.Errorf("bootctl: commit stay-t1: %w", err)
		}
		return StateT1, r, nil
	}

	if err := c.mounter.Mount(record.Tier2); err != nil {
		c.log.Warn("tier2 mount failed, staying in tier1", "err", err)
		record.Decrement(&r, record.Tier2)
		r.Flags = r.Flags.Set(record.FlagDirty)
		if werr := c.journal.Write(r); werr != nil {
			return StateT1, r, fmt.Errorf("bootctl: commit failed-mount-t1: %w", werr)
		}
		return StateT1, r, nil
	}

	r.Tier = record.Tier2
	r.Flags = r.Flags.Clear(record.FlagDirty)
	if r.Flags.Test(record.FlagBrownout) && brownoutElapsed {
		r.Flags = r.Flags.Clear(record.FlagBrownout)
		if err := c.clearBrownoutMarker(); err != nil {
			c.log.Warn("failed to clear brownout marker", "err", err)
		}
	}
	if err := c.journal.Write(r); err != nil {
		return StateT2, r, fmt.Errorf("bootctl: commit tier2: %w", err)
	}

	okT3, reasonT3 := policy.MayPromote(ctx, r, c.health, c.probes, policy.PromoteInputs{}, c.cfg.Thresholds, record.Tier2, record.Tier3)
	if !okT3 {
		c.log.Info("staying in tier2", "reason", reasonT3.String())
		return StateT2, r, nil
	}

	pass, attestErr := c.attestor.Attest(ctx)
	if attestErr != nil {
		c.log.Error("attestation procedure error", "err", attestErr)
	}
	if pass && attestErr == nil {
		if err := c.mounter.Mount(record.Tier3); err == nil {
			r.Tier = record.Tier3
			if werr := c.journal.Write(r); werr != nil {
				return StateT2, r, fmt.Errorf("bootctl: commit tier3: %w", werr)
			}
			return StateT3, r, nil
		}
		c.log.Warn("tier3 mount failed after successful attestation")
	}

	record.Decrement(&r, record.Tier3)
	if err := c.journal.Write(r); err != nil {
		return StateT2, r, fmt.Errorf("bootctl: commit tier3-attempt-failed: %w", err)
	}
	return StateT2, r, nil
}

type brownoutMarker struct {
	SetAtBootCount uint64 `json:"set_at_boot_count"`
}

// brownoutCooldownElapsed implements §4.4's "cooldown measured in boots
// since flag was set": the first boot that observes BROWNOUT set records
// the current boot_count in a sidecar file; cooldown is elapsed once
// boot_count has advanced by at least BrownoutCooldownBoots since then.
func (c *Controller) brownoutCooldownElapsed(r record.BootRecord) (bool, error) {
	if !r.Flags.Test(record.FlagBrownout) {
		_ = c.clearBrownoutMarker()
		return true, nil
	}

	raw, err := afero.ReadFile(c.fs, c.cfg.BrownoutMarkerPath)
	if err != nil {
		if werr := c.writeBrownoutMarker(r.BootCount); werr != nil {
			return false, werr
		}
		return false, nil
	}

	var m brownoutMarker
	if err := json.Unmarshal(raw, &m); err != nil {
		if werr := c.writeBrownoutMarker(r.BootCount); werr != nil {
			return false, werr
		}
		return false, nil
	}

	elapsed := r.BootCount - m.SetAtBootCount
	return elapsed >= uint64(c.cfg.Thresholds.BrownoutCooldownBoots), nil
}

// writeBrownoutMarker persists the sidecar with a single plain write rather
// than §9's double-buffered discipline for counters: a torn write here is
// recovered by brownoutCooldownElapsed's unmarshal-failure branch, which
// just re-marks the current boot_count, so the extra durability is not
// load-bearing (persistence itself is an implementation choice under §4.4).
func (c *Controller) writeBrownoutMarker(bootCount uint64) error {
	data, err := json.Marshal(brownoutMarker{SetAtBootCount: bootCount})
	if err != nil {
		return err
	}
	return afero.WriteFile(c.fs, c.cfg.BrownoutMarkerPath, data, 0o644)
}

func (c *Controller) clearBrownoutMarker() error {
	err := c.fs.Remove(c.cfg.BrownoutMarkerPath)
	if err != nil && errors.Is(err, afero.ErrFileNotFound) {
		return nil
	}
	return err
}
