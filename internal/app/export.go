package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"depth-watch/internal/storage"
)

// Export renders one token's depth history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Token == "" {
		return errors.New("--token must be provided")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	since := time.Now().UTC().Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.Since != nil {
		since = opts.Since.UTC()
	}

	records, err := store.DepthsSince(ctx, opts.Token, since)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Str("token", opts.Token).Msg("no depth records found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting depth history")

	if opts.CSVPath != "" {
		if err := writeDepthsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeDepthsPNG(opts.PNGPath, opts.Token, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRecords(records []storage.DepthRecord, max int) []storage.DepthRecord {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]storage.DepthRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeDepthsCSV(path string, records []storage.DepthRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"timestamp", "token", "buy_depth_usd", "sell_depth_usd"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, record := range records {
		row := []string{
			record.Timestamp.Format(time.RFC3339),
			record.Token,
			record.BuyDepthUSD.String(),
			record.SellDepthUSD.String(),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeDepthsPNG(path, token string, records []storage.DepthRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	buy := make([]float64, len(records))
	sell := make([]float64, len(records))

	for i, record := range records {
		x[i] = record.Timestamp
		buy[i] = record.BuyDepthUSD.InexactFloat64()
		sell[i] = record.SellDepthUSD.InexactFloat64()
	}

	usdFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Title:  token + " ±2% depth",
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Depth (USD)",
			ValueFormatter: usdFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Buy Depth",
				XValues: x,
				YValues: buy,
			},
			chart.TimeSeries{
				Name:    "Sell Depth",
				XValues: x,
				YValues: sell,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
