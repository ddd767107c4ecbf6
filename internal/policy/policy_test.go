package policy

import (
	"context"
	"testing"
	"time"

	"github.com/anonymous-shadowhawk/pacboot/internal/record"
)

type fakeHealth struct {
	score  uint32
	checks map[string]bool
}

func (f fakeHealth) Score() uint32          { return f.score }
func (f fakeHealth) Check(name string) bool { return f.checks[name] }

type fakeProbes struct {
	verifierOk    bool
	networkStable bool
	tierRoots     map[int]bool
}

func (f fakeProbes) VerifierReachable(ctx context.Context) bool                { return f.verifierOk }
func (f fakeProbes) NetworkStableFor(ctx context.Context, d time.Duration) bool { return f.networkStable }
func (f fakeProbes) TierRootPresent(tier int) bool                             { return f.tierRoots[tier] }

func healthyT1T2() (record.BootRecord, fakeHealth, fakeProbes) {
	r := record.NewDefault()
	h := fakeHealth{score: 6, checks: map[string]bool{"memory": true, "storage": true}}
	p := fakeProbes{tierRoots: map[int]bool{2: true, 3: true}, verifierOk: true, networkStable: true}
	return r, h, p
}

func TestMayPromoteT1T2Success(t *testing.T) {
	r, h, p := healthyT1T2()
	ok, reason := MayPromote(context.Background(), r, h, p, PromoteInputs{}, DefaultThresholds(), record.Tier1, record.Tier2)
	if !ok {
		t.Fatalf("expected promotion to succeed, got reason %v", reason)
	}
}

func TestMayPromoteT1T2RetriesExhausted(t *testing.T) {
	r, h, p := healthyT1T2()
	r.TriesT2 = 0
	ok, reason := MayPromote(context.Background(), r, h, p, PromoteInputs{}, DefaultThresholds(), record.Tier1, record.Tier2)
	if ok || reason != ReasonRetriesExhausted {
		t.Fatalf("got (%v, %v), want (false, ReasonRetriesExhausted)", ok, reason)
	}
}

func TestMayPromoteT1T2Quarantined(t *testing.T) {
	r, h, p := healthyT1T2()
	r.Flags = r.Flags.Set(record.FlagQuarantine)
	// QUARANTINE makes Exhausted(tier2) true, and the exhaustion guard is
	// evaluated first, so it supplies the reason.
	ok, reason := MayPromote(context.Background(), r, h, p, PromoteInputs{}, DefaultThresholds(), record.Tier1, record.Tier2)
	if ok || reason != ReasonRetriesExhausted {
		t.Fatalf("got (%v, %v), want (false, ReasonRetriesExhausted)", ok, reason)
	}
}

func TestMayPromoteT1T2BrownoutCooldown(t *testing.T) {
	r, h, p := healthyT1T2()
	r.Flags = r.Flags.Set(record.FlagBrownout)
	ok, reason := MayPromote(context.Background(), r, h, p, PromoteInputs{BrownoutCooldownElapsed: false}, DefaultThresholds(), record.Tier1, record.Tier2)
	if ok || reason != ReasonBrownoutCooldown {
		t.Fatalf("got (%v, %v), want (false, ReasonBrownoutCooldown)", ok, reason)
	}

	ok, _ = MayPromote(context.Background(), r, h, p, PromoteInputs{BrownoutCooldownElapsed: true}, DefaultThresholds(), record.Tier1, record.Tier2)
	if !ok {
		t.Fatal("expected promotion once cooldown has elapsed")
	}
}

func TestMayPromoteT1T2TierRootMissing(t *testing.T) {
	r, h, p := healthyT1T2()
	p.tierRoots[2] = false
	ok, reason := MayPromote(context.Background(), r, h, p, PromoteInputs{}, DefaultThresholds(), record.Tier1, record.Tier2)
	if ok || reason != ReasonTierRootMissing {
		t.Fatalf("got (%v, %v), want (false, ReasonTierRootMissing)", ok, reason)
	}
}

func TestMayPromoteT1T2HealthBelowThreshold(t *testing.T) {
	r, h, p := healthyT1T2()
	h.score = 1
	ok, reason := MayPromote(context.Background(), r, h, p, PromoteInputs{}, DefaultThresholds(), record.Tier1, record.Tier2)
	if ok || reason != ReasonHealthBelowThreshold {
		t.Fatalf("got (%v, %v), want (false, ReasonHealthBelowThreshold)", ok, reason)
	}
}

func TestMayPromoteT1T2MissingComponentCheck(t *testing.T) {
	r, h, p := healthyT1T2()
	h.checks["storage"] = false
	ok, reason := MayPromote(context.Background(), r, h, p, PromoteInputs{}, DefaultThresholds(), record.Tier1, record.Tier2)
	if ok || reason != ReasonHealthBelowThreshold {
		t.Fatalf("got (%v, %v), want (false, ReasonHealthBelowThreshold)", ok, reason)
	}
}

func TestMayPromoteT2T3Success(t *testing.T) {
	r := record.NewDefault()
	r.Tier = record.Tier2
	h := fakeHealth{score: 9}
	p := fakeProbes{tierRoots: map[int]bool{3: true}, verifierOk: true, networkStable: true}
	ok, reason := MayPromote(context.Background(), r, h, p, PromoteInputs{}, DefaultThresholds(), record.Tier2, record.Tier3)
	if !ok {
		t.Fatalf("expected promotion to succeed, got reason %v", reason)
	}
}

func TestMayPromoteT2T3VerifierUnreachable(t *testing.T) {
	r := record.NewDefault()
	r.Tier = record.Tier2
	h := fakeHealth{score: 9}
	p := fakeProbes{tierRoots: map[int]bool{3: true}, verifierOk: false, networkStable: true}
	ok, reason := MayPromote(context.Background(), r, h, p, PromoteInputs{}, DefaultThresholds(), record.Tier2, record.Tier3)
	if ok || reason != ReasonVerifierUnreachable {
		t.Fatalf("got (%v, %v), want (false, ReasonVerifierUnreachable)", ok, reason)
	}
}

func TestMayPromoteT2T3NetworkUnstable(t *testing.T) {
	r := record.NewDefault()
	r.Tier = record.Tier2
	h := fakeHealth{score: 9}
	p := fakeProbes{tierRoots: map[int]bool{3: true}, verifierOk: true, networkStable: false}
	ok, reason := MayPromote(context.Background(), r, h, p, PromoteInputs{}, DefaultThresholds(), record.Tier2, record.Tier3)
	if ok || reason != ReasonNetworkUnstable {
		t.Fatalf("got (%v, %v), want (false, ReasonNetworkUnstable)", ok, reason)
	}
}

func TestMustDegradeTier3NoGuardsFail(t *testing.T) {
	r := record.NewDefault()
	r.Tier = record.Tier3
	h := fakeHealth{score: 9}
	ok, _, _ := MustDegrade(record.Tier3, r, h, DegradeInputs{GraceElapsed: true}, DefaultThresholds())
	if ok {
		t.Fatal("expected no degradation")
	}
}

func TestMustDegradeTier3HealthIgnoredDuringGrace(t *testing.T) {
	r := record.NewDefault()
	r.Tier = record.Tier3
	h := fakeHealth{score: 0}
	ok, _, _ := MustDegrade(record.Tier3, r, h, DegradeInputs{GraceElapsed: false}, DefaultThresholds())
	if ok {
		t.Fatal("expected degradation to be suppressed during grace period")
	}
}

func TestMustDegradeTier3PrimaryAndSecondary(t *testing.T) {
	r := record.NewDefault()
	r.Tier = record.Tier3
	r.Flags = r.Flags.Set(record.FlagBrownout)
	h := fakeHealth{score: 0}
	in := DegradeInputs{
		GraceElapsed:    true,
		VarFreeKnown:    true,
		VarFreeBytes:    1 << 20,
		MemAvailKnown:   true,
		MemAvailPercent: 1,
	}
	ok, primary, secondary := MustDegrade(record.Tier3, r, h, in, DefaultThresholds())
	if !ok {
		t.Fatal("expected degradation")
	}
	if primary != ReasonHealthBelowThreshold {
		t.Fatalf("primary = %v, want ReasonHealthBelowThreshold (first in guard order)", primary)
	}
	if len(secondary) != 3 {
		t.Fatalf("secondary = %v, want 3 additional reasons (disk, memory, brownout)", secondary)
	}
}

func TestMustDegradeTier3VerifierSanityPath(t *testing.T) {
	r := record.NewDefault()
	r.Tier = record.Tier3
	h := fakeHealth{score: 9}
	in := DegradeInputs{GraceElapsed: true, VerifierUnreachableStreak: 1, SanityAttestationFailed: true}
	ok, _, _ := MustDegrade(record.Tier3, r, h, in, DefaultThresholds())
	if ok {
		t.Fatal("should not degrade before the unreachable streak threshold is reached")
	}

	in.VerifierUnreachableStreak = 2
	ok, primary, _ := MustDegrade(record.Tier3, r, h, in, DefaultThresholds())
	if !ok || primary != ReasonVerifierUnreachable {
		t.Fatalf("got (%v, %v), want (true, ReasonVerifierUnreachable)", ok, primary)
	}
}

func TestMustDegradeTier2SustainedLowHealth(t *testing.T) {
	r := record.NewDefault()
	r.Tier = record.Tier2
	h := fakeHealth{score: 1}
	ok, _, _ := MustDegrade(record.Tier2, r, h, DegradeInputs{SustainedLowHealthStreak: 1}, DefaultThresholds())
	if ok {
		t.Fatal("should not degrade before the sustained-low-health streak threshold")
	}
	ok, primary, _ := MustDegrade(record.Tier2, r, h, DegradeInputs{SustainedLowHealthStreak: 2}, DefaultThresholds())
	if !ok || primary != ReasonHealthBelowThreshold {
		t.Fatalf("got (%v, %v), want (true, ReasonHealthBelowThreshold)", ok, primary)
	}
}

func TestMustDegradeTier1Never(t *testing.T) {
	r := record.NewDefault()
	h := fakeHealth{score: 0}
	ok, _, _ := MustDegrade(record.Tier1, r, h, DegradeInputs{}, DefaultThresholds())
	if ok {
		t.Fatal("tier 1 has nothing below it to degrade to")
	}
}

func TestReasonCodeString(t *testing.T) {
	if ReasonRetriesExhausted.String() != "retries-exhausted" {
		t.Fatalf("String() = %q", ReasonRetriesExhausted.String())
	}
	if ReasonCode(999).String() != "unknown-reason" {
		t.Fatalf("unknown code String() = %q", ReasonCode(999).String())
	}
}

func TestTierDecisionConstructors(t *testing.T) {
	d := Demote(record.Tier3, record.Tier2, ReasonHealthBelowThreshold, ReasonDiskCritical)
	if d.Kind != DecisionDemote || d.Primary != ReasonHealthBelowThreshold || len(d.Secondary) != 1 {
		t.Fatalf("Demote() = %+v", d)
	}
	p := Promote(record.Tier2)
	if p.Kind != DecisionPromote || p.To != record.Tier2 {
		t.Fatalf("Promote() = %+v", p)
	}
}
