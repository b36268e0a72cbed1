package generation

import (
	"testing"

	"github.com/cortexlayer/ragcore/internal/models"
)

func TestPolicyForPlan(t *testing.T) {
	tests := []struct {
		plan string
		want Policy
	}{
		{models.PlanStarter, CheapOnly},
		{models.PlanGrowth, CheapWithFallback},
		{models.PlanScale, PremiumOnly},
		{"enterprise", CheapOnly},
		{"", CheapOnly},
	}
	for _, tt := range tests {
		t.Run(tt.plan, func(t *testing.T) {
			if got := PolicyForPlan(tt.plan); got != tt.want {
				t.Errorf("PolicyForPlan(%q) = %v, want %v", tt.plan, got, tt.want)
			}
		})
	}
}

func TestRatesCost(t *testing.T) {
	cheap := Rates{InputPerMillion: 0.27, OutputPerMillion: 0.27}
	if got := cheap.Cost(600_000, 400_000); got < 0.2699 || got > 0.2701 {
		t.Errorf("cheap cost = %f, want 0.27", got)
	}
	premium := Rates{InputPerMillion: 0.15, OutputPerMillion: 0.60}
	if got := premium.Cost(1_000_000, 1_000_000); got < 0.7499 || got > 0.7501 {
		t.Errorf("premium cost = %f, want 0.75", got)
	}
	if got := premium.Cost(0, 0); got != 0 {
		t.Errorf("zero tokens cost = %f", got)
	}
}
