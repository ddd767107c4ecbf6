package record

import "strings"

// Flags is the typed bitset over boot status flags (§3.1, §4.4).
type Flags uint32

const (
	// FlagEmergency: the controller must remain in Tier 1 and not
	// auto-clear; only explicit administrative action clears it.
	FlagEmergency Flags = 1 << iota
	// FlagQuarantine: retry budgets are considered exhausted regardless
	// of numeric value; promotion forbidden.
	FlagQuarantine
	// FlagBrownout: promotion temporarily forbidden until a cooldown
	// expires.
	FlagBrownout
	// FlagDirty: last shutdown was not clean; informational.
	FlagDirty
	// FlagNetworkGated: Tier-3 requires a verified stable network.
	FlagNetworkGated
)

// FlagBootCountSaturated is an implementation-defined warning flag (§8:
// boot_count overflow "must not crash", with the exact signal left to the
// implementation). It occupies the next free bit above the five flags
// named in §3.1 and is never cleared automatically.
const FlagBootCountSaturated Flags = 1 << 5

// names maps each known flag bit to its administrative CLI name (§6.4).
var names = []struct {
	bit  Flags
	name string
}{
	{FlagEmergency, "emergency"},
	{FlagQuarantine, "quarantine"},
	{FlagBrownout, "brownout"},
	{FlagDirty, "dirty"},
	{FlagNetworkGated, "network_gated"},
}

// ParseFlagName resolves a CLI flag name (§6.4) to its bit. ok is false for
// an unrecognized name.
func ParseFlagName(name string) (Flags, bool) {
	for _, n := range names {
		if n.name == name {
			return n.bit, true
		}
	}
	return 0, false
}

// Set returns f with bit set. Idempotent: Set(Set(f, b), b) == Set(f, b).
func (f Flags) Set(bit Flags) Flags {
	return f | bit
}

// Clear returns f with bit cleared. Idempotent.
func (f Flags) Clear(bit Flags) Flags {
	return f &^ bit
}

// Test reports whether bit is set in f.
func (f Flags) Test(bit Flags) bool {
	return f&bit != 0
}

// String renders the set flags as a comma-joined list of their CLI names,
// e.g. "emergency,dirty". Returns "-" when no named flag is set (unnamed
// bits such as FlagBootCountSaturated are omitted from this human-facing
// rendering; use Test to check for them directly).
func (f Flags) String() string {
	var parts []string
	for _, n := range names {
		if f.Test(n.bit) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
