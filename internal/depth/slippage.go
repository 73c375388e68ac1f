package depth

import (
	"github.com/shopspring/decimal"

	"depth-watch/internal/oracle"
)

// Slippage computes the fractional shortfall between the USD value paid and
// the USD value received for a quoted trade: 1 - sellUSD/buyUSD.
//
// The second result is false when the buy-side USD value is zero, the
// degenerate-quote case whose slippage is effectively positive infinity;
// callers must treat it as above any finite target.
func Slippage(q oracle.Quote, sellDecimals, buyDecimals int32) (decimal.Decimal, bool) {
	sellUnits := decimal.NewFromBigInt(q.SellAmountRaw, -sellDecimals)
	buyUnits := decimal.NewFromBigInt(q.BuyAmountRaw, -buyDecimals)

	sellUSD := sellUnits.Mul(q.SellPriceUSD)
	buyUSD := buyUnits.Mul(q.BuyPriceUSD)

	if buyUSD.IsZero() {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromInt(1).Sub(sellUSD.Div(buyUSD)), true
}
