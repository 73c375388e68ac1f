package depth

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"depth-watch/internal/oracle"
)

func TestSlippageZeroForBalancedQuote(t *testing.T) {
	q := oracle.Quote{
		SellAmountRaw: big.NewInt(1_000_000),
		BuyAmountRaw:  big.NewInt(1_000_000),
		SellPriceUSD:  decimal.NewFromFloat(1.5),
		BuyPriceUSD:   decimal.NewFromFloat(1.5),
	}

	slip, finite := Slippage(q, 6, 6)
	if !finite {
		t.Fatal("balanced quote 不应返回无穷大")
	}
	if !slip.IsZero() {
		t.Fatalf("期望滑点 0, 实际 %s", slip.String())
	}
}

func TestSlippageInfiniteWhenBuySideZero(t *testing.T) {
	cases := []oracle.Quote{
		{
			SellAmountRaw: big.NewInt(1_000_000),
			BuyAmountRaw:  big.NewInt(0),
			SellPriceUSD:  decimal.NewFromInt(1),
			BuyPriceUSD:   decimal.NewFromInt(1),
		},
		{
			SellAmountRaw: big.NewInt(1_000_000),
			BuyAmountRaw:  big.NewInt(1_000_000),
			SellPriceUSD:  decimal.NewFromInt(1),
			BuyPriceUSD:   decimal.Zero,
		},
	}

	for i, q := range cases {
		if _, finite := Slippage(q, 6, 6); finite {
			t.Fatalf("case %d: buy 侧 USD 为 0 时应返回无穷大", i)
		}
	}
}

func TestSlippageAtTargetRatio(t *testing.T) {
	// sellUSD/buyUSD = 0.98 puts the slippage exactly at 0.02.
	q := oracle.Quote{
		SellAmountRaw: big.NewInt(98_000_000),
		BuyAmountRaw:  big.NewInt(100_000_000),
		SellPriceUSD:  decimal.NewFromInt(1),
		BuyPriceUSD:   decimal.NewFromInt(1),
	}

	slip, finite := Slippage(q, 6, 6)
	if !finite {
		t.Fatal("expected finite slippage")
	}

	want := decimal.NewFromFloat(0.02)
	if !slip.Equal(want) {
		t.Fatalf("期望滑点 %s, 实际 %s", want.String(), slip.String())
	}
}
