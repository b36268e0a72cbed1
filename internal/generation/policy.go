package generation

import "github.com/cortexlayer/ragcore/internal/models"

// Policy selects which providers a generation may use.
type Policy int

const (
	// CheapOnly calls the cheap provider and fails with it.
	CheapOnly Policy = iota
	// CheapWithFallback retries once on the premium provider when the cheap one fails.
	CheapWithFallback
	// PremiumOnly calls the premium provider and fails with it.
	PremiumOnly
)

func (p Policy) String() string {
	switch p {
	case CheapOnly:
		return "cheap_only"
	case CheapWithFallback:
		return "cheap_with_fallback"
	case PremiumOnly:
		return "premium_only"
	default:
		return "unknown"
	}
}

// PolicyForPlan maps a plan tier to a policy. Unknown tiers get CheapOnly.
func PolicyForPlan(plan string) Policy {
	switch plan {
	case models.PlanGrowth:
		return CheapWithFallback
	case models.PlanScale:
		return PremiumOnly
	default:
		return CheapOnly
	}
}
