// Package record defines the BootRecord payload stored in the journal
// (§3.1 of the specification), its flag algebra (C4), and its retry-budget
// accounting (C5). The wire codec lives in codec.go.
package record

import "fmt"

// LayoutVersion is the only BootRecord layout this implementation
// understands. A page whose version field differs is invalid.
const LayoutVersion uint32 = 1

// Magic is the trailer constant that closes every valid page.
const Magic uint32 = 0xA771A771

// Default retry budgets, per §3.1.
const DefaultTries uint8 = 3

// Tier identifies one of the three operational tiers.
type Tier uint8

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

// Valid reports whether t is one of the three defined tiers.
func (t Tier) Valid() bool {
	return t == Tier1 || t == Tier2 || t == Tier3
}

func (t Tier) String() string {
	switch t {
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	case Tier3:
		return "tier3"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// BootRecord is the journal's payload, laid out exactly as §3.1 specifies.
// Field order here is the wire order; see codec.go.
type BootRecord struct {
	Version     uint32
	Tier        Tier
	TriesT2     uint8
	TriesT3     uint8
	RollbackIdx uint8
	Flags       Flags
	BootCount   uint64
	Timestamp   uint64
	CRC32       uint32
	Trailer     uint32
}

// NewDefault returns the BootRecord a freshly initialized journal holds:
// tier 1, full retry budgets, no flags, boot_count 0. Timestamp and CRC32
// are left zero; the journal store fills them in on first write.
func NewDefault() BootRecord {
	return BootRecord{
		Version:     LayoutVersion,
		Tier:        Tier1,
		TriesT2:     DefaultTries,
		TriesT3:     DefaultTries,
		RollbackIdx: 0,
		Flags:       0,
		BootCount:   0,
		Timestamp:   0,
		Trailer:     Magic,
	}
}

// ValidateShape checks the invariants of §3.1 that do not depend on the
// checksum (which the journal store checks separately, since it needs the
// raw bytes to recompute it). Soft bounds (tries_t2/tries_t3 > 3) clamp
// rather than invalidate, per §3.1.
func (r *BootRecord) ValidateShape() error {
	if r.Trailer != Magic {
		return fmt.Errorf("record: bad trailer 0x%08X", r.Trailer)
	}
	if r.Version != LayoutVersion {
		return fmt.Errorf("record: unsupported version %d", r.Version)
	}
	if !r.Tier.Valid() {
		return fmt.Errorf("record: tier %d out of range", uint8(r.Tier))
	}
	if r.TriesT2 > DefaultTries {
		r.TriesT2 = 0
	}
	if r.TriesT3 > DefaultTries {
		r.TriesT3 = 0
	}
	return nil
}

// IncBootCount increments BootCount, saturating at the u64 maximum and
// setting a warning flag rather than wrapping or panicking (§8 boundary
// behavior: "must not crash").
func (r *BootRecord) IncBootCount() {
	if r.BootCount == ^uint64(0) {
		r.Flags = r.Flags.Set(FlagBootCountSaturated)
		return
	}
	r.BootCount++
}

// IncRollback bumps the anti-rollback counter, saturating at the u8
// maximum (§3.1: "monotonic anti-rollback counter, ≥ 0"; no defined ceiling
// behavior beyond the field's width, so it saturates rather than wraps,
// matching IncBootCount's treatment of its own overflow).
func (r *BootRecord) IncRollback() {
	if r.RollbackIdx < 255 {
		r.RollbackIdx++
	}
}
