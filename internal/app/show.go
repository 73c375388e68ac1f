package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints the latest measured depth for every known token.
func (a *App) Show(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show depths")
	}
	if closeStore != nil {
		defer closeStore()
	}

	tokens, err := store.ListTokens(ctx)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		fmt.Fprintln(os.Stdout, "no depth records found")
		return nil
	}

	lastUpdated, err := store.LastUpdated(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Token\tBuy Depth (USD)\tSell Depth (USD)\tMeasured (UTC)")

	for _, token := range tokens {
		record, err := store.LatestDepth(ctx, token)
		if err != nil {
			return err
		}
		if record == nil {
			continue
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\n",
			record.Token,
			formatDecimal(record.BuyDepthUSD, 2),
			formatDecimal(record.SellDepthUSD, 2),
			record.Timestamp.UTC().Format(time.RFC3339),
		)
	}

	writer.Flush()
	if lastUpdated != nil {
		fmt.Fprintf(os.Stdout, "\nlast updated: %s\n", lastUpdated.UTC().Format(time.RFC3339))
	}
	return nil
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
