// Package policy implements the stateless policy evaluator (C8): two pure
// guard functions over a record, a health snapshot, and probe results,
// plus the ReasonCode and TierDecision types they and their callers share.
// Nothing here performs I/O; everything it needs is passed in.
package policy

import (
	"context"
	"time"

	"github.com/anonymous-shadowhawk/pacboot/internal/record"
)

// HealthSource is the subset of the health oracle the policy evaluator
// consults.
type HealthSource interface {
	Score() uint32
	Check(name string) bool
}

// ProbeSource is the subset of the external probe facade the policy
// evaluator consults.
type ProbeSource interface {
	VerifierReachable(ctx context.Context) bool
	NetworkStableFor(ctx context.Context, d time.Duration) bool
	TierRootPresent(tier int) bool
}

// ReasonCode enumerates every outcome a guard evaluation can attach to a
// TierDecision (§3.4).
type ReasonCode int

const (
	ReasonNone ReasonCode = iota
	ReasonHealthBelowThreshold
	ReasonRetriesExhausted
	ReasonVerifierUnreachable
	ReasonAttestationFailed
	ReasonNetworkUnstable
	ReasonTierRootMissing
	ReasonQuarantined
	ReasonBrownoutCooldown
	ReasonImaViolation
	ReasonDiskCritical
	ReasonMemoryCritical
)

var reasonNames = map[ReasonCode]string{
	ReasonNone:                 "none",
	ReasonHealthBelowThreshold: "health-below-threshold",
	ReasonRetriesExhausted:     "retries-exhausted",
	ReasonVerifierUnreachable:  "verifier-unreachable",
	ReasonAttestationFailed:    "attestation-failed",
	ReasonNetworkUnstable:      "network-unstable",
	ReasonTierRootMissing:      "tier-root-missing",
	ReasonQuarantined:          "quarantined",
	ReasonBrownoutCooldown:     "brownout-cooldown",
	ReasonImaViolation:         "ima-violation",
	ReasonDiskCritical:         "disk-critical",
	ReasonMemoryCritical:       "memory-critical",
}

// String returns the reason code's canonical lowercase-hyphenated name.
func (r ReasonCode) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return "unknown-reason"
}

// DecisionKind distinguishes the branches of the TierDecision sum type.
type DecisionKind int

const (
	DecisionPromote DecisionKind = iota
	DecisionStay
	DecisionDemote
	DecisionEmergency
)

// TierDecision is the sum-typed result of a tier evaluation (§3.4):
// Promote(to), Stay(at, reason), Demote(from, to, reason), or
// Emergency(reason). Exactly one of these shapes is meaningful depending
// on Kind; callers should switch on Kind rather than inspect fields
// directly.
type TierDecision struct {
	Kind      DecisionKind
	From      record.Tier
	To        record.Tier
	Primary   ReasonCode
	Secondary []ReasonCode
}

// Promote constructs a Promote decision.
func Promote(to record.Tier) TierDecision {
	return TierDecision{Kind: DecisionPromote, To: to}
}

// Stay constructs a Stay decision with its reason.
func Stay(at record.Tier, reason ReasonCode) TierDecision {
	return TierDecision{Kind: DecisionStay, From: at, To: at, Primary: reason}
}

// Demote constructs a Demote decision, recording any secondary guards that
// also failed alongside the primary one (§4.8 tie-break rules).
func Demote(from, to record.Tier, primary ReasonCode, secondary ...ReasonCode) TierDecision {
	return TierDecision{Kind: DecisionDemote, From: from, To: to, Primary: primary, Secondary: secondary}
}

// Emergency constructs an Emergency decision.
func Emergency(reason ReasonCode) TierDecision {
	return TierDecision{Kind: DecisionEmergency, Primary: reason}
}

// Thresholds bundles the configuration knobs §4.8's guards reference.
// Implementations configuration, not constants (§9 design note (b)): pick
// one score scale and document it. This implementation uses 0..10.
type Thresholds struct {
	T2Score               uint32
	T3Score               uint32
	T3ScoreRuntime        uint32 // used by the monitor once a grace period has elapsed
	BrownoutCooldownBoots uint8
	NetworkStabilityWindow time.Duration

	VerifierUnreachableStreak int
	SustainedLowHealthStreak  int

	VarFreeCriticalT3Bytes uint64
	VarFreeCriticalT2Bytes uint64
	MemAvailCriticalT3Pct  float64
	MemAvailCriticalT2Pct  float64
}

// DefaultThresholds returns the defaults named throughout §4.8.
func DefaultThresholds() Thresholds {
	return Thresholds{
		T2Score:                   3,
		T3Score:                   6,
		T3ScoreRuntime:            9,
		BrownoutCooldownBoots:     2,
		NetworkStabilityWindow:    60 * time.Second,
		VerifierUnreachableStreak: 2,
		SustainedLowHealthStreak:  2,
		VarFreeCriticalT3Bytes:    10 << 20,
		VarFreeCriticalT2Bytes:    5 << 20,
		MemAvailCriticalT3Pct:     5.0,
		MemAvailCriticalT2Pct:     3.0,
	}
}

// PromoteInputs carries the facts a promotion guard needs that are neither
// part of the record nor obtainable from a probe: whether a brownout
// cooldown (measured in boots since the flag was set) has elapsed. The
// boot count bookkeeping this implies lives outside the journal's fixed
// byte layout (§6.1), so the caller (the boot controller) computes it and
// passes the resulting fact in, keeping this guard itself a pure function.
type PromoteInputs struct {
	BrownoutCooldownElapsed bool
}

// MayPromote evaluates whether record r may be promoted from "from" to
// "to" (§4.8). It returns ok=true only if every guard for that transition
// holds; otherwise it returns the first failing guard's ReasonCode in the
// order listed in §4.8.
func MayPromote(ctx context.Context, r record.BootRecord, h HealthSource, p ProbeSource, pi PromoteInputs, th Thresholds, from, to record.Tier) (bool, ReasonCode) {
	switch {
	case from == record.Tier1 && to == record.Tier2:
		return mayPromoteT1T2(r, h, p, pi, th)
	case from == record.Tier2 && to == record.Tier3:
		return mayPromoteT2T3(ctx, r, h, p, th)
	default:
		return false, ReasonNone
	}
}

func mayPromoteT1T2(r record.BootRecord, h HealthSource, p ProbeSource, pi PromoteInputs, th Thresholds) (bool, ReasonCode) {
	if record.Exhausted(&r, record.Tier2) {
		return false, ReasonRetriesExhausted
	}
	if r.Flags.Test(record.FlagQuarantine) {
		return false, ReasonQuarantined
	}
	if r.Flags.Test(record.FlagBrownout) && !pi.BrownoutCooldownElapsed {
		return false, ReasonBrownoutCooldown
	}
	if !p.TierRootPresent(2) {
		return false, ReasonTierRootMissing
	}
	if h.Score() < th.T2Score {
		return false, ReasonHealthBelowThreshold
	}
	if !h.Check("memory") || !h.Check("storage") {
		return false, ReasonHealthBelowThreshold
	}
	return true, ReasonNone
}

func mayPromoteT2T3(ctx context.Context, r record.BootRecord, h HealthSource, p ProbeSource, th Thresholds) (bool, ReasonCode) {
	if record.Exhausted(&r, record.Tier3) {
		return false, ReasonRetriesExhausted
	}
	if !p.TierRootPresent(3) {
		return false, ReasonTierRootMissing
	}
	if h.Score() < th.T3Score {
		return false, ReasonHealthBelowThreshold
	}
	if !p.VerifierReachable(ctx) {
		return false, ReasonVerifierUnreachable
	}
	if !p.NetworkStableFor(ctx, th.NetworkStabilityWindow) {
		return false, ReasonNetworkUnstable
	}
	return true, ReasonNone
}

// DegradeInputs carries the sticky-counter facts §4.10 assigns to the
// runtime monitor rather than to this stateless evaluator: consecutive
// poll counts, grace-period status, and any figures the health report
// itself does not carry (IMA violations, free space, memory headroom).
type DegradeInputs struct {
	GraceElapsed bool

	VerifierUnreachableStreak int
	SanityAttestationFailed   bool

	ImaViolations int

	VarFreeBytes uint64
	VarFreeKnown bool

	MemAvailPercent float64
	MemAvailKnown   bool

	SustainedLowHealthStreak int
}

// MustDegrade evaluates whether the current tier must be left (§4.8). It
// returns ok=false if no degradation guard holds. When multiple guards
// fail, the first in the order listed in §4.8 becomes the primary
// ReasonCode and the rest are attached as secondary codes.
func MustDegrade(at record.Tier, r record.BootRecord, h HealthSource, in DegradeInputs, th Thresholds) (ok bool, primary ReasonCode, secondary []ReasonCode) {
	var codes []ReasonCode

	switch at {
	case record.Tier3:
		// §4.8 annotates only the health guard with "after grace period
		// elapsed"; the disk/memory/brownout guards below are not gated on
		// in.GraceElapsed and can fire during the grace window.
		if in.GraceElapsed && h.Score() < th.T3ScoreRuntime {
			codes = append(codes, ReasonHealthBelowThreshold)
		}
		if in.VerifierUnreachableStreak >= th.VerifierUnreachableStreak && in.SanityAttestationFailed {
			codes = append(codes, ReasonVerifierUnreachable)
		}
		if in.ImaViolations > 0 {
			codes = append(codes, ReasonImaViolation)
		}
		if in.VarFreeKnown && in.VarFreeBytes < th.VarFreeCriticalT3Bytes {
			codes = append(codes, ReasonDiskCritical)
		}
		if in.MemAvailKnown && in.MemAvailPercent < th.MemAvailCriticalT3Pct {
			codes = append(codes, ReasonMemoryCritical)
		}
		if r.Flags.Test(record.FlagBrownout) {
			codes = append(codes, ReasonBrownoutCooldown)
		}
	case record.Tier2:
		if in.SustainedLowHealthStreak >= th.SustainedLowHealthStreak && h.Score() < th.T2Score {
			codes = append(codes, ReasonHealthBelowThreshold)
		}
		if in.VarFreeKnown && in.VarFreeBytes < th.VarFreeCriticalT2Bytes {
			codes = append(codes, ReasonDiskCritical)
		}
		if in.MemAvailKnown && in.MemAvailPercent < th.MemAvailCriticalT2Pct {
			codes = append(codes, ReasonMemoryCritical)
		}
	default:
		return false, ReasonNone, nil
	}

	if len(codes) == 0 {
		return false, ReasonNone, nil
	}
	return true, codes[0], codes[1:]
}
