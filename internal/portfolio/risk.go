package portfolio

import "github.com/shopspring/decimal"

// MinCashForBuy is the cash floor below which the bot opens nothing.
var MinCashForBuy = decimal.NewFromInt(500)

// BuyQuantity sizes a new entry: floor(equity × pct/100 / price).
// Returns 0 for non-positive inputs.
func BuyQuantity(equity decimal.Decimal, positionSizePct, price float64) int64 {
	if positionSizePct <= 0 || price <= 0 || !equity.IsPositive() {
		return 0
	}
	notional := equity.Mul(decimal.NewFromFloat(positionSizePct)).Div(decimal.NewFromInt(100))
	return notional.Div(decimal.NewFromFloat(price)).Floor().IntPart()
}

// CanAfford reports whether cash covers qty × price.
func CanAfford(cash decimal.Decimal, qty int64, price float64) bool {
	return cash.GreaterThanOrEqual(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(qty)))
}
