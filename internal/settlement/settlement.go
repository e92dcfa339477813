// internal/settlement/settlement.go
package settlement

import "math"

// Default policy rates. Historical transactions persist the breakdown
// computed at sale time, so changing these never rewrites old ledger rows.
const (
	DefaultGatewayFeeRate = 0.015
	DefaultGatewayFlatFee = 100.0
	DefaultCommissionRate = 0.05
	DefaultReferralRate   = 0.01
)

// Breakdown is the fee/commission/earnings split for one sale.
type Breakdown struct {
	TotalAmount    float64 `json:"total_amount"`
	GatewayCharges float64 `json:"gateway_charges"`
	SellerEarnings float64 `json:"seller_earnings"`
	Revenue        float64 `json:"revenue"`
}

// Engine computes settlement splits. It performs no I/O.
type Engine struct {
	GatewayFeeRate float64
	GatewayFlatFee float64
	CommissionRate float64
	ReferralRate   float64
}

func NewEngine() *Engine {
	return &Engine{
		GatewayFeeRate: DefaultGatewayFeeRate,
		GatewayFlatFee: DefaultGatewayFlatFee,
		CommissionRate: DefaultCommissionRate,
		ReferralRate:   DefaultReferralRate,
	}
}

// Compute splits a gross sale amount. Only the gateway charge is rounded
// (math.Round, half away from zero); earnings and revenue carry the full
// precision of the input so the buyer-facing total is deterministic.
func (e *Engine) Compute(amount float64) Breakdown {
	charges := math.Round(amount*e.GatewayFeeRate + e.GatewayFlatFee)
	earnings := amount * (1 - e.CommissionRate)
	revenue := amount * e.CommissionRate

	return Breakdown{
		TotalAmount:    amount + charges,
		GatewayCharges: charges,
		SellerEarnings: earnings,
		Revenue:        revenue,
	}
}

// ReferralReward computes the referrer's cut of the platform revenue on a
// settled sale. Rewards are rounded to whole currency units; a zero reward
// means no credit is made.
func (e *Engine) ReferralReward(revenue float64) float64 {
	return math.Round(revenue * e.ReferralRate)
}

// ItemShare apportions a persisted transaction-level figure across one line
// item by its price weight. Downstream credits, releases, and clawbacks use
// this on the breakdown stored at sale time, so a later rate change never
// skews a settled transaction.
func ItemShare(total, itemPrice, subtotal float64) float64 {
	if subtotal <= 0 {
		return 0
	}
	return total * itemPrice / subtotal
}
