// Package monitor implements the runtime monitor (C10): the long-running
// loop that re-evaluates promotion and degradation once the boot
// controller has reached a terminal Tier 2 or Tier 3 state. It is the
// journal's only writer after boot (§4.10); the boot controller and the
// monitor never run concurrently.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/anonymous-shadowhawk/pacboot/internal/journal"
	"github.com/anonymous-shadowhawk/pacboot/internal/logging"
	"github.com/anonymous-shadowhawk/pacboot/internal/policy"
	"github.com/anonymous-shadowhawk/pacboot/internal/record"
)

// Actions executes the external procedures a tier transition requires:
// network setup for Tier1->Tier2, attestation for Tier2->Tier3 (and for
// the Tier-3 verifier "sanity" re-check, §4.10).
type Actions interface {
	SetupNetwork(ctx context.Context) error
	Attest(ctx context.Context) (pass bool, err error)
}

// Rebooter requests that a committed tier change be applied. Production
// implementations reboot; test harnesses may re-enter the boot controller
// in-process instead (§9 design note: reboot is abstracted as a
// tier-apply event, not a literal call).
type Rebooter interface {
	RequestReboot(reason string) error
}

// Config holds the monitor's timing knobs (§4.10).
type Config struct {
	TickInterval      time.Duration
	EmergencyCooldown time.Duration
	Tier3Grace        time.Duration
	Thresholds        policy.Thresholds
}

// DefaultConfig returns the monitor's default configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval:      10 * time.Second,
		EmergencyCooldown: 5 * time.Minute,
		Tier3Grace:        10 * time.Second,
		Thresholds:        policy.DefaultThresholds(),
	}
}

// Monitor runs the Tier 2 / Tier 3 steady-state control loop.
type Monitor struct {
	journal  *journal.Store
	health   policy.HealthSource
	probes   policy.ProbeSource
	actions  Actions
	rebooter Rebooter
	log      *logging.Logger
	cfg      Config
	now      func() time.Time

	mu                        sync.Mutex
	verifierUnreachableStreak int
	sustainedLowHealthStreak  int
	tier3GraceStarted         bool
	tier3GraceStart           time.Time
}

// Option configures New.
type Option func(*Monitor)

// WithLogger attaches a logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// WithConfig overrides the default configuration.
func WithConfig(cfg Config) Option {
	return func(m *Monitor) { m.cfg = cfg }
}

// WithClock overrides the clock, for deterministic grace-period tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a runtime monitor over an already-open journal.
func New(j *journal.Store, h policy.HealthSource, p policy.ProbeSource, actions Actions, rebooter Rebooter, opts ...Option) *Monitor {
	m := &Monitor{
		journal:  j,
		health:   h,
		probes:   p,
		actions:  actions,
		rebooter: rebooter,
		log:      logging.Default().Module("monitor"),
		cfg:      DefaultConfig(),
		now:      time.Now,
	}
	for _, fn := range opts {
		fn(m)
	}
	return m
}

// Run drives the loop until ctx is canceled. Each tick is sequential;
// two ticks never overlap (§5). On EMERGENCY, it sleeps the configured
// cooldown instead of the normal tick interval before checking again.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		decision, err := m.Tick(ctx)
		if err != nil {
			m.log.Error("tick failed, continuing", "err", err)
		}

		interval := m.cfg.TickInterval
		if decision.Kind == policy.DecisionEmergency {
			interval = m.cfg.EmergencyCooldown
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// Tick executes one loop iteration (§4.10): re-read the journal, check for
// EMERGENCY, evaluate degradation (which wins ties over promotion, §4.8),
// then promotion. It never returns an error that should stop the loop;
// callers of Run log and continue regardless.
func (m *Monitor) Tick(ctx context.Context) (policy.TierDecision, error) {
	r, err := m.journal.Read()
	if err != nil {
		return policy.TierDecision{}, err
	}

	if r.Flags.Test(record.FlagEmergency) {
		m.log.Warn("monitor observed emergency, cooling down")
		return policy.Emergency(policy.ReasonNone), nil
	}

	m.updateGrace(r.Tier)
	m.updateStickyCounters(ctx, r)

	degradeIn := m.degradeInputs(r.Tier)
	if ok, primary, secondary := policy.MustDegrade(r.Tier, r, m.health, degradeIn, m.cfg.Thresholds); ok {
		to := r.Tier - 1
		r.Tier = to
		if werr := m.journal.Write(r); werr != nil {
			return policy.TierDecision{}, werr
		}
		m.log.Warn("degrading", "to", to.String(), "reason", primary.String())
		if rerr := m.rebooter.RequestReboot("tier degraded: " + primary.String()); rerr != nil {
			m.log.Error("reboot request failed", "err", rerr)
		}
		return policy.Demote(to+1, to, primary, secondary...), nil
	}

	next := r.Tier + 1
	if next > record.Tier3 {
		return policy.Stay(r.Tier, policy.ReasonNone), nil
	}

	pi := policy.PromoteInputs{BrownoutCooldownElapsed: true}
	okPromote, reason := policy.MayPromote(ctx, r, m.health, m.probes, pi, m.cfg.Thresholds, r.Tier, next)
	if !okPromote {
		return policy.Stay(r.Tier, reason), nil
	}

	return m.executePromotion(ctx, r, next)
}

func (m *Monitor) executePromotion(ctx context.Context, r record.BootRecord, to record.Tier) (policy.TierDecision, error) {
	switch to {
	case record.Tier2:
		if err := m.actions.SetupNetwork(ctx); err != nil {
			m.log.Warn("network setup failed, staying in tier1", "err", err)
			record.Decrement(&r, record.Tier2)
			if werr := m.journal.Write(r); werr != nil {
				return policy.TierDecision{}, werr
			}
			return policy.Stay(record.Tier1, policy.ReasonNone), nil
		}
	case record.Tier3:
		pass, err := m.actions.Attest(ctx)
		if err != nil {
			m.log.Error("attestation error", "err", err)
		}
		if !pass || err != nil {
			record.Decrement(&r, record.Tier3)
			if werr := m.journal.Write(r); werr != nil {
				return policy.TierDecision{}, werr
			}
			return policy.Stay(record.Tier2, policy.ReasonAttestationFailed), nil
		}
	}

	r.Tier = to
	if err := m.journal.Write(r); err != nil {
		return policy.TierDecision{}, err
	}
	if err := m.rebooter.RequestReboot("tier promoted to " + to.String()); err != nil {
		m.log.Error("reboot request failed", "err", err)
	}
	return policy.Promote(to), nil
}

func (m *Monitor) updateGrace(tier record.Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tier != record.Tier3 {
		m.tier3GraceStarted = false
		return
	}
	now := m.now()
	if !m.tier3GraceStarted || now.Before(m.tier3GraceStart) {
		m.tier3GraceStarted = true
		m.tier3GraceStart = now
	}
}

func (m *Monitor) updateStickyCounters(ctx context.Context, r record.BootRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.Tier == record.Tier3 {
		if m.probes.VerifierReachable(ctx) {
			m.verifierUnreachableStreak = 0
		} else {
			m.verifierUnreachableStreak++
		}
	}
	if r.Tier == record.Tier2 {
		if m.health.Score() < m.cfg.Thresholds.T2Score {
			m.sustainedLowHealthStreak++
		} else {
			m.sustainedLowHealthStreak = 0
		}
	}
}

// degradeInputs builds the facts MustDegrade needs from this monitor's
// sticky counters and grace timer. When the Tier-3 verifier streak has
// reached its threshold, it runs the attestation "sanity" re-check
// described in §4.10 and folds the result in, resetting the streak so the
// sanity check does not re-fire every tick.
func (m *Monitor) degradeInputs(tier record.Tier) policy.DegradeInputs {
	m.mu.Lock()
	streak := m.verifierUnreachableStreak
	graceStarted := m.tier3GraceStarted
	graceStart := m.tier3GraceStart
	lowHealthStreak := m.sustainedLowHealthStreak
	m.mu.Unlock()

	in := policy.DegradeInputs{
		VerifierUnreachableStreak: streak,
		SustainedLowHealthStreak:  lowHealthStreak,
	}

	if tier == record.Tier3 {
		in.GraceElapsed = graceStarted && m.now().Sub(graceStart) >= m.cfg.Tier3Grace
		if streak >= m.cfg.Thresholds.VerifierUnreachableStreak {
			pass, err := m.actions.Attest(context.Background())
			in.SanityAttestationFailed = err != nil || !pass
			m.mu.Lock()
			m.verifierUnreachableStreak = 0
			m.mu.Unlock()
		}
	}

	return in
}
