package oracle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Quote is a single venue quote for selling sellAmountRaw of one asset
// against another. Raw amounts are in each asset's smallest unit.
type Quote struct {
	SellAmountRaw *big.Int
	BuyAmountRaw  *big.Int
	SellPriceUSD  decimal.Decimal
	BuyPriceUSD   decimal.Decimal
	FeesUSD       decimal.Decimal
}

// Source retrieves quotes from the price-quoting venue.
type Source interface {
	Quote(ctx context.Context, sellAddress, buyAddress string, sellAmountRaw *big.Int) (Quote, error)
}

// Kind classifies why a quote was unavailable. All kinds are equally
// non-fatal to callers; the distinction exists for logs and diagnostics.
type Kind int

const (
	KindTransport Kind = iota // connection failure or timeout
	KindHTTPStatus
	KindEmptyResponse
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTPStatus:
		return "http_status"
	case KindEmptyResponse:
		return "empty_response"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error reports an unavailable quote along with its failure kind.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("oracle unavailable (%s %d): %v", e.Kind, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("oracle unavailable (%s %d)", e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("oracle unavailable (%s): %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("oracle unavailable (%s)", e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
