package depth

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"depth-watch/internal/oracle"
	"depth-watch/internal/registry"
)

// ErrNotFound signals that no trade amount matching the target slippage
// could be determined. Every failure path wraps it with a reason so callers
// can both match with errors.Is and log the cause.
var ErrNotFound = errors.New("depth not found")

// Params are the search policy constants. Zero values are replaced by
// DefaultParams in NewEngine.
type Params struct {
	TargetSlippage  decimal.Decimal
	Tolerance       decimal.Decimal
	MaxIterations   int
	MinAmountUSD    decimal.Decimal
	MaxAmountUSD    decimal.Decimal
	RangeFactorLow  decimal.Decimal
	RangeFactorHigh decimal.Decimal
	// CollapseWidth is the raw-unit interval width at or below which the
	// search terminates with the last probed amount.
	CollapseWidth int64
}

// DefaultParams returns the production search policy: ±2% target, 0.001
// tolerance, 20 iterations, $10k–$500M notional, 0.5x/2.0x warm-start
// narrowing, 10 raw-unit collapse width.
func DefaultParams() Params {
	return Params{
		TargetSlippage:  decimal.NewFromFloat(0.02),
		Tolerance:       decimal.NewFromFloat(0.001),
		MaxIterations:   20,
		MinAmountUSD:    decimal.NewFromInt(10_000),
		MaxAmountUSD:    decimal.NewFromInt(500_000_000),
		RangeFactorLow:  decimal.NewFromFloat(0.5),
		RangeFactorHigh: decimal.NewFromFloat(2.0),
		CollapseWidth:   10,
	}
}

// Finder locates the raw trade amount producing the target slippage.
type Finder interface {
	FindDepth(ctx context.Context, sell, buy registry.AssetDescriptor, sellSide bool, warmStart *decimal.Decimal) (*big.Int, error)
}

// Engine runs an adaptive binary search over trade amounts, driven by a
// quote source. Correctness rests on the venue's slippage being
// monotonically non-decreasing in trade amount; the engine does not verify
// that at runtime.
type Engine struct {
	source oracle.Source
	params Params
	logger zerolog.Logger
}

// NewEngine constructs a search engine around a quote source.
func NewEngine(source oracle.Source, params Params, logger zerolog.Logger) *Engine {
	defaults := DefaultParams()
	if params.TargetSlippage.IsZero() {
		params.TargetSlippage = defaults.TargetSlippage
	}
	if params.Tolerance.IsZero() {
		params.Tolerance = defaults.Tolerance
	}
	if params.MaxIterations <= 0 {
		params.MaxIterations = defaults.MaxIterations
	}
	if params.MinAmountUSD.IsZero() {
		params.MinAmountUSD = defaults.MinAmountUSD
	}
	if params.MaxAmountUSD.IsZero() {
		params.MaxAmountUSD = defaults.MaxAmountUSD
	}
	if params.RangeFactorLow.IsZero() {
		params.RangeFactorLow = defaults.RangeFactorLow
	}
	if params.RangeFactorHigh.IsZero() {
		params.RangeFactorHigh = defaults.RangeFactorHigh
	}
	if params.CollapseWidth <= 0 {
		params.CollapseWidth = defaults.CollapseWidth
	}

	return &Engine{
		source: source,
		params: params,
		logger: logger.With().Str("component", "depth_engine").Logger(),
	}
}

// FindDepth searches for the raw amount whose slippage hits the target.
//
// When sellSide is true (selling the asset for the reference currency) the
// result is the quote's buy-side raw amount, i.e. the reference currency
// received; otherwise it is the probed sell amount, i.e. the reference
// currency spent. warmStart is an optional previously observed depth in USD
// used to narrow the default search bounds; narrowing only ever shrinks the
// interval.
func (e *Engine) FindDepth(ctx context.Context, sell, buy registry.AssetDescriptor, sellSide bool, warmStart *decimal.Decimal) (*big.Int, error) {
	seedAmount := pow10(sell.Decimals)
	seed, err := e.source.Quote(ctx, sell.Address, buy.Address, seedAmount)
	if err != nil {
		return nil, fmt.Errorf("seed quote %s/%s: %w: %w", sell.Symbol, buy.Symbol, err, ErrNotFound)
	}
	if !seed.SellPriceUSD.IsPositive() {
		return nil, fmt.Errorf("degenerate seed price %s for %s: %w", seed.SellPriceUSD, sell.Symbol, ErrNotFound)
	}

	minRaw, maxRaw := e.defaultBounds(seed.SellPriceUSD, sell.Decimals)
	if warmStart != nil && warmStart.IsPositive() {
		minRaw, maxRaw = e.narrowBounds(minRaw, maxRaw, *warmStart, seed.SellPriceUSD, sell.Decimals)
	}

	e.logger.Debug().
		Str("sell", sell.Symbol).
		Str("buy", buy.Symbol).
		Str("min_raw", minRaw.String()).
		Str("max_raw", maxRaw.String()).
		Msg("search bounds derived")

	collapse := big.NewInt(e.params.CollapseWidth)

	for i := 0; i < e.params.MaxIterations; i++ {
		amount := new(big.Int).Add(minRaw, maxRaw)
		amount.Quo(amount, big.NewInt(2))
		if amount.Sign() == 0 {
			return nil, fmt.Errorf("midpoint collapsed to zero for %s/%s: %w", sell.Symbol, buy.Symbol, ErrNotFound)
		}

		quote, err := e.source.Quote(ctx, sell.Address, buy.Address, amount)
		if err != nil {
			return nil, fmt.Errorf("quote at iteration %d for %s/%s: %w: %w", i, sell.Symbol, buy.Symbol, err, ErrNotFound)
		}

		slip, finite := Slippage(quote, sell.Decimals, buy.Decimals)

		e.logger.Debug().
			Int("iteration", i).
			Str("amount", amount.String()).
			Str("slippage", slipString(slip, finite)).
			Msg("probe")

		if finite && slip.Sub(e.params.TargetSlippage).Abs().LessThan(e.params.Tolerance) {
			return e.result(quote, amount, sellSide), nil
		}

		if finite && slip.LessThan(e.params.TargetSlippage) {
			minRaw = amount
		} else {
			// Infinite slippage steers the search down just like an
			// overshoot.
			maxRaw = amount
		}

		if new(big.Int).Sub(maxRaw, minRaw).Cmp(collapse) <= 0 {
			// Range collapse: the target is unreachable within the current
			// interval, return the best midpoint probed.
			return e.result(quote, amount, sellSide), nil
		}
	}

	return nil, fmt.Errorf("no convergence after %d iterations for %s/%s: %w", e.params.MaxIterations, sell.Symbol, buy.Symbol, ErrNotFound)
}

func (e *Engine) result(quote oracle.Quote, amount *big.Int, sellSide bool) *big.Int {
	if sellSide {
		return new(big.Int).Set(quote.BuyAmountRaw)
	}
	return new(big.Int).Set(amount)
}

// defaultBounds converts the USD notional bounds to raw sell-asset units at
// the seed price, rounding up.
func (e *Engine) defaultBounds(seedPrice decimal.Decimal, decimals int32) (*big.Int, *big.Int) {
	minRaw := usdToRawCeil(e.params.MinAmountUSD, seedPrice, decimals)
	maxRaw := usdToRawCeil(e.params.MaxAmountUSD, seedPrice, decimals)
	return minRaw, maxRaw
}

// narrowBounds intersects the default bounds with a window around the prior
// depth. If the intersection would invert the range the defaults are kept.
func (e *Engine) narrowBounds(defMin, defMax *big.Int, priorUSD, seedPrice decimal.Decimal, decimals int32) (*big.Int, *big.Int) {
	priorRaw := priorUSD.Div(seedPrice).Mul(decimal.New(1, decimals))

	low := bigCeil(priorRaw.Mul(e.params.RangeFactorLow))
	high := bigCeil(priorRaw.Mul(e.params.RangeFactorHigh))

	minRaw := bigMax(defMin, low)
	maxRaw := bigMin(defMax, high)
	if minRaw.Cmp(maxRaw) > 0 {
		return defMin, defMax
	}
	return minRaw, maxRaw
}

func usdToRawCeil(usd, price decimal.Decimal, decimals int32) *big.Int {
	return bigCeil(usd.Div(price).Mul(decimal.New(1, decimals)))
}

func bigCeil(d decimal.Decimal) *big.Int {
	return d.Ceil().BigInt()
}

func bigMax(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func bigMin(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func pow10(decimals int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

func slipString(slip decimal.Decimal, finite bool) string {
	if !finite {
		return "inf"
	}
	return slip.String()
}

var _ Finder = (*Engine)(nil)
