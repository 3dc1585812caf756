package aggregate

import (
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// DefaultVATRate is the flat rate the tax panel estimates with unless
// configured otherwise.
var DefaultVATRate = decimal.NewFromFloat(0.10)

// ComputeMargin returns profit over revenue as a percentage. It is 0, never
// NaN or Inf, when revenue is 0.
func ComputeMargin(revenue, cost core.Money) float64 {
	if revenue.Cents == 0 {
		return 0
	}
	return float64(revenue.Cents-cost.Cents) / float64(revenue.Cents) * 100
}

// ComputeVAT estimates tax owed as amount*rate, rounded half-up to the cent.
func ComputeVAT(amount core.Money, rate decimal.Decimal) core.Money {
	v := decimal.NewFromInt(amount.Cents).Mul(rate).Round(0)
	return core.Money{Cents: v.IntPart()}
}

// BudgetRealization returns the share of budget already realized, as a
// percentage. A zero budget gives 0.
func BudgetRealization(actual, budget core.Money) float64 {
	if budget.Cents == 0 {
		return 0
	}
	return float64(actual.Cents) / float64(budget.Cents) * 100
}

// ParseRate parses a configured rate such as "0.10" or "10%".
func ParseRate(s string) (decimal.Decimal, error) {
	if n := len(s); n > 0 && s[n-1] == '%' {
		pct, err := decimal.NewFromString(s[:n-1])
		if err != nil {
			return decimal.Zero, err
		}
		return pct.Div(decimal.NewFromInt(100)), nil
	}
	return decimal.NewFromString(s)
}
