package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepthRecord is one completed measurement cycle for a single token.
// Records are append-only: they are written once by the orchestrator and
// never updated.
type DepthRecord struct {
	Token        string
	BuyDepthUSD  decimal.Decimal
	SellDepthUSD decimal.Decimal
	Timestamp    time.Time
}
