package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/anonymous-shadowhawk/pacboot/internal/journal"
	"github.com/anonymous-shadowhawk/pacboot/internal/policy"
	"github.com/anonymous-shadowhawk/pacboot/internal/record"
)

type fakeHealth struct{ score uint32 }

func (f fakeHealth) Score() uint32          { return f.score }
func (f fakeHealth) Check(name string) bool { return true }

type fakeProbes struct {
	reachable bool
	stable    bool
	tierRoots map[int]bool
}

func (f fakeProbes) VerifierReachable(ctx context.Context) bool                { return f.reachable }
func (f fakeProbes) NetworkStableFor(ctx context.Context, d time.Duration) bool { return f.stable }
func (f fakeProbes) TierRootPresent(tier int) bool                             { return f.tierRoots[tier] }

// mutableProbes lets a test flip VerifierReachable's answer between ticks,
// since the monitor's sticky counter is keyed off every Tick's probe call.
type mutableProbes struct {
	reachable *bool
	stable    bool
	tierRoots map[int]bool
}

func (f mutableProbes) VerifierReachable(ctx context.Context) bool                { return *f.reachable }
func (f mutableProbes) NetworkStableFor(ctx context.Context, d time.Duration) bool { return f.stable }
func (f mutableProbes) TierRootPresent(tier int) bool                             { return f.tierRoots[tier] }

type fakeActions struct {
	attestPass    bool
	attestResults []bool // if set, consumed in order across calls
	callCount     int
}

func (a *fakeActions) SetupNetwork(ctx context.Context) error { return nil }

func (a *fakeActions) Attest(ctx context.Context) (bool, error) {
	if len(a.attestResults) > 0 {
		r := a.attestResults[a.callCount%len(a.attestResults)]
		a.callCount++
		return r, nil
	}
	return a.attestPass, nil
}

type fakeRebooter struct{ reasons []string }

func (r *fakeRebooter) RequestReboot(reason string) error {
	r.reasons = append(r.reasons, reason)
	return nil
}

func newT3Store(t *testing.T) *journal.Store {
	t.Helper()
	fs := afero.NewMemMapFs()
	j, err := journal.OpenOrInit("/boot/journal", journal.WithFs(fs))
	if err != nil {
		t.Fatalf("OpenOrInit: %v", err)
	}
	r, err := j.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	r.Tier = record.Tier3
	if err := j.Write(r); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return j
}

// S4: verifier unreachable twice at Tier 3, grace elapsed, sanity
// attestation also fails -> monitor commits tier 2 and requests reboot.
func TestTickDegradesAfterVerifierUnreachableTwice(t *testing.T) {
	j := newT3Store(t)
	h := fakeHealth{score: 9}
	reachable := true
	p := mutableProbes{reachable: &reachable, stable: true, tierRoots: map[int]bool{2: true, 3: true}}
	actions := &fakeActions{attestPass: false} // sanity check fails
	rebooter := &fakeRebooter{}

	fixedNow := time.Unix(1000, 0)
	cfg := DefaultConfig()
	m := New(j, h, p, actions, rebooter,
		WithClock(func() time.Time { return fixedNow }),
		WithConfig(cfg))

	// First tick establishes the tier-3 grace timer while the verifier is
	// still reachable, so it doesn't contribute to the unreachable streak.
	if _, err := m.Tick(context.Background()); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	fixedNow = fixedNow.Add(cfg.Tier3Grace + time.Second)
	reachable = false

	// First failed probe: counter=1, no degrade yet.
	decision, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	if decision.Kind == policy.DecisionDemote {
		t.Fatal("should not degrade after only one failed probe")
	}

	// Second failed probe: counter=2, sanity retry runs and fails too ->
	// degrade.
	decision, err = m.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick 3: %v", err)
	}
	if decision.Kind != policy.DecisionDemote {
		t.Fatalf("decision.Kind = %v, want Demote", decision.Kind)
	}
	if decision.To != record.Tier2 {
		t.Fatalf("decision.To = %v, want tier2", decision.To)
	}

	r, err := j.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Tier != record.Tier2 {
		t.Fatalf("committed tier = %v, want tier2", r.Tier)
	}
	if len(rebooter.reasons) != 1 {
		t.Fatalf("reboot requests = %d, want 1", len(rebooter.reasons))
	}
}

func TestTickSuppressesDegradeDuringGrace(t *testing.T) {
	j := newT3Store(t)
	h := fakeHealth{score: 0} // would fail T3 threshold immediately
	p := fakeProbes{reachable: true, stable: true, tierRoots: map[int]bool{2: true, 3: true}}
	actions := &fakeActions{attestPass: true}
	rebooter := &fakeRebooter{}

	fixedNow := time.Unix(1000, 0)
	m := New(j, h, p, actions, rebooter, WithClock(func() time.Time { return fixedNow }))

	decision, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if decision.Kind == policy.DecisionDemote {
		t.Fatal("should not degrade before the grace period elapses")
	}
}

func TestTickEmergencyShortCircuits(t *testing.T) {
	fs := afero.NewMemMapFs()
	j, err := journal.OpenOrInit("/boot/journal", journal.WithFs(fs))
	if err != nil {
		t.Fatalf("OpenOrInit: %v", err)
	}
	r, err := j.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	r.Flags = r.Flags.Set(record.FlagEmergency)
	if err := j.Write(r); err != nil {
		t.Fatalf("Write: %v", err)
	}

	h := fakeHealth{score: 0}
	p := fakeProbes{}
	actions := &fakeActions{}
	rebooter := &fakeRebooter{}
	m := New(j, h, p, actions, rebooter)

	decision, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if decision.Kind != policy.DecisionEmergency {
		t.Fatalf("decision.Kind = %v, want Emergency", decision.Kind)
	}
	if len(rebooter.reasons) != 0 {
		t.Fatal("emergency tick should not request a reboot")
	}
}

func TestTickPromotesWhenGuardsPass(t *testing.T) {
	fs := afero.NewMemMapFs()
	j, err := journal.OpenOrInit("/boot/journal", journal.WithFs(fs))
	if err != nil {
		t.Fatalf("OpenOrInit: %v", err)
	}
	r, err := j.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	r.Tier = record.Tier2
	if err := j.Write(r); err != nil {
		t.Fatalf("Write: %v", err)
	}

	h := fakeHealth{score: 9}
	p := fakeProbes{reachable: true, stable: true, tierRoots: map[int]bool{3: true}}
	actions := &fakeActions{attestPass: true}
	rebooter := &fakeRebooter{}
	m := New(j, h, p, actions, rebooter)

	decision, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if decision.Kind != policy.DecisionPromote {
		t.Fatalf("decision.Kind = %v, want Promote", decision.Kind)
	}
	got, err := j.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Tier != record.Tier3 {
		t.Fatalf("committed tier = %v, want tier3", got.Tier)
	}
	if len(rebooter.reasons) != 1 {
		t.Fatalf("reboot requests = %d, want 1", len(rebooter.reasons))
	}
}
