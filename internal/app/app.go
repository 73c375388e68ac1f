package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"depth-watch/internal/config"
	"depth-watch/internal/depth"
	"depth-watch/internal/oracle"
	"depth-watch/internal/registry"
	"depth-watch/internal/scheduler"
	"depth-watch/internal/service"
	"depth-watch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newEngine() *depth.Engine {
	source := oracle.NewAVNU(oracle.AVNUOptions{
		BaseURL:       a.Config.Oracle.BaseURL,
		Timeout:       a.Config.Oracle.RequestTimeout,
		UserAgent:     a.Config.Oracle.UserAgent,
		QuoteInterval: a.Config.Oracle.QuoteInterval,
	}, a.Logger)

	return depth.NewEngine(source, a.searchParams(), a.Logger)
}

func (a *App) searchParams() depth.Params {
	s := a.Config.Search
	return depth.Params{
		TargetSlippage:  decimal.NewFromFloat(s.TargetSlippage),
		Tolerance:       decimal.NewFromFloat(s.Tolerance),
		MaxIterations:   s.MaxIterations,
		MinAmountUSD:    decimal.NewFromFloat(s.MinAmountUSD),
		MaxAmountUSD:    decimal.NewFromFloat(s.MaxAmountUSD),
		RangeFactorLow:  decimal.NewFromFloat(s.RangeFactorLow),
		RangeFactorHigh: decimal.NewFromFloat(s.RangeFactorHigh),
		CollapseWidth:   s.CollapseWidth,
	}
}

func (a *App) buildRegistry() (registry.Registry, error) {
	return a.Config.BuildRegistry()
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running measurement service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence and warm starts disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	reg, err := a.buildRegistry()
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	var depthStore storage.DepthStore
	if store != nil {
		depthStore = store
	}

	svc := service.New(a.Config, sched, a.newEngine(), depthStore, reg, a.Logger)

	a.Logger.Info().Int("assets", len(reg.Assets)).Msg("starting depth measurement service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("depth measurement service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical depths.
type ExportOptions struct {
	Token     string
	Since     *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// OnceOptions configure a single immediate measurement cycle.
type OnceOptions struct {
	DryRun bool
}
