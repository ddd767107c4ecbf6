package record

import "fmt"

// ErrBadTier is returned by Decrement for any tier other than 2 or 3.
var ErrBadTier = fmt.Errorf("record: tier must be 2 or 3")

// Decrement saturates the retry budget for tier (2 or 3) at zero and
// returns the new value. It never wraps past zero (§8: "retry counters at
// 0: further decrement returns 0, does not wrap").
func Decrement(r *BootRecord, tier Tier) (uint8, error) {
	switch tier {
	case Tier2:
		if r.TriesT2 > 0 {
			r.TriesT2--
		}
		return r.TriesT2, nil
	case Tier3:
		if r.TriesT3 > 0 {
			r.TriesT3--
		}
		return r.TriesT3, nil
	default:
		return 0, ErrBadTier
	}
}

// Reset restores both retry budgets to their initial value. Idempotent.
func Reset(r *BootRecord) {
	r.TriesT2 = DefaultTries
	r.TriesT3 = DefaultTries
}

// Exhausted reports whether tier's retry budget is spent. Tier 2 is also
// considered exhausted while QUARANTINE is set, regardless of its numeric
// budget (§4.5, §4.4).
func Exhausted(r *BootRecord, tier Tier) bool {
	switch tier {
	case Tier2:
		return r.TriesT2 == 0 || r.Flags.Test(FlagQuarantine)
	case Tier3:
		return r.TriesT3 == 0
	default:
		return true
	}
}
