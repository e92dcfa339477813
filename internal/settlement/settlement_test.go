// internal/settlement/settlement_test.go
package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeBreakdown(t *testing.T) {
	engine := NewEngine()

	tests := []struct {
		name         string
		amount       float64
		wantCharges  float64
		wantTotal    float64
		wantEarnings float64
		wantRevenue  float64
	}{
		{
			name:         "thousand dollar sale",
			amount:       1000,
			wantCharges:  115, // round(1000*0.015 + 100)
			wantTotal:    1115,
			wantEarnings: 950,
			wantRevenue:  50,
		},
		{
			name:         "small sale",
			amount:       10,
			wantCharges:  100, // flat fee dominates: round(0.15 + 100)
			wantTotal:    110,
			wantEarnings: 9.5,
			wantRevenue:  0.5,
		},
		{
			name:         "charge rounds half up",
			amount:       100,
			wantCharges:  102, // round(1.5 + 100) = 102 (half away from zero)
			wantTotal:    202,
			wantEarnings: 95,
			wantRevenue:  5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := engine.Compute(tt.amount)
			assert.Equal(t, tt.wantCharges, b.GatewayCharges)
			assert.Equal(t, tt.wantTotal, b.TotalAmount)
			assert.Equal(t, tt.wantEarnings, b.SellerEarnings)
			assert.Equal(t, tt.wantRevenue, b.Revenue)
		})
	}
}

func TestComputeConservation(t *testing.T) {
	engine := NewEngine()

	for _, amount := range []float64{1, 50, 999.99, 1000, 12345.67} {
		b := engine.Compute(amount)
		assert.InDelta(t, amount, b.SellerEarnings+b.Revenue, 1e-9,
			"earnings plus revenue must reconstruct the gross amount for %v", amount)
		assert.Equal(t, amount+b.GatewayCharges, b.TotalAmount)
	}
}

func TestReferralReward(t *testing.T) {
	engine := NewEngine()

	assert.Equal(t, 1.0, engine.ReferralReward(50))   // round(0.5) away from zero
	assert.Equal(t, 0.0, engine.ReferralReward(49))   // round(0.49)
	assert.Equal(t, 10.0, engine.ReferralReward(1000))
	assert.Equal(t, 0.0, engine.ReferralReward(0))
}

func TestItemShare(t *testing.T) {
	// Single-item order gets the whole figure.
	assert.Equal(t, 950.0, ItemShare(950, 1000, 1000))

	// Multi-item order splits by price weight and the shares reconstruct
	// the transaction-level figure.
	assert.Equal(t, 114.0, ItemShare(190, 120, 200))
	assert.Equal(t, 76.0, ItemShare(190, 80, 200))
	assert.InDelta(t, 190.0, ItemShare(190, 120, 200)+ItemShare(190, 80, 200), 1e-9)

	// A degenerate subtotal yields no share rather than a division blowup.
	assert.Equal(t, 0.0, ItemShare(950, 1000, 0))
}
