package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"depth-watch/internal/config"
	"depth-watch/internal/depth"
	"depth-watch/internal/registry"
	"depth-watch/internal/scheduler"
	"depth-watch/internal/storage"
)

// Service orchestrates depth measurement cycles: it walks the asset
// registry, reuses fresh records, runs the search engine in both directions
// and commits results through the store.
type Service struct {
	scheduler *scheduler.Scheduler
	finder    depth.Finder
	store     storage.DepthStore
	reg       registry.Registry
	logger    zerolog.Logger

	freshness       time.Duration
	persistDegraded bool
	locker          storage.AdvisoryLocker
	lockKey         int64
}

// New constructs the orchestrator. store may be nil, in which case cycles
// run without warm starts and results are only logged (the standalone mode).
func New(cfg *config.Config, sched *scheduler.Scheduler, finder depth.Finder, store storage.DepthStore, reg registry.Registry, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:       sched,
		finder:          finder,
		store:           store,
		reg:             reg,
		logger:          logger.With().Str("component", "service").Logger(),
		freshness:       cfg.Orchestrator.Freshness,
		persistDegraded: cfg.Orchestrator.PersistDegraded,
		locker:          locker,
		lockKey:         cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the aligned measurement loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessCycle)
}

// ProcessCycle measures every configured asset once. Failures for one asset
// never prevent the remaining assets from being processed.
func (s *Service) ProcessCycle(ctx context.Context, now time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("cycle", now).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	updated, skipped, failed := 0, 0, 0
	for _, asset := range s.reg.Assets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch outcome := s.processAsset(ctx, asset, now); outcome {
		case outcomeUpdated:
			updated++
		case outcomeSkipped:
			skipped++
		default:
			failed++
		}
	}

	s.logger.Info().
		Time("cycle", now).
		Int("updated", updated).
		Int("skipped", skipped).
		Int("failed", failed).
		Msg("measurement cycle complete")
	return nil
}

type outcome int

const (
	outcomeUpdated outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (s *Service) processAsset(ctx context.Context, asset registry.AssetDescriptor, now time.Time) outcome {
	logger := s.logger.With().Str("token", asset.Symbol).Logger()

	var last *storage.DepthRecord
	if s.store != nil {
		var err error
		last, err = s.store.LatestDepth(ctx, asset.Symbol)
		if err != nil {
			// A read failure only costs the warm start.
			logger.Warn().Err(err).Msg("failed to load latest depth, searching cold")
			last = nil
		}
	}

	if last != nil && now.Sub(last.Timestamp) < s.freshness {
		logger.Debug().Time("recorded", last.Timestamp).Msg("record still fresh, reusing")
		return outcomeSkipped
	}

	var warmBuy, warmSell *decimal.Decimal
	if last != nil {
		if last.BuyDepthUSD.IsPositive() {
			v := last.BuyDepthUSD
			warmBuy = &v
		}
		if last.SellDepthUSD.IsPositive() {
			v := last.SellDepthUSD
			warmSell = &v
		}
	}

	buyDepth := s.measure(ctx, logger, s.reg.Reference, asset, false, warmBuy)
	sellDepth := s.measure(ctx, logger, asset, s.reg.Reference, true, warmSell)

	logger.Info().
		Str("buy_depth_usd", buyDepth.String()).
		Str("sell_depth_usd", sellDepth.String()).
		Msg("depths measured")

	degraded := !buyDepth.IsPositive() || !sellDepth.IsPositive()
	if degraded && !s.persistDegraded {
		logger.Warn().Msg("degraded result, not persisting")
		return outcomeFailed
	}

	if s.store == nil {
		return outcomeUpdated
	}

	record := storage.DepthRecord{
		Token:        asset.Symbol,
		BuyDepthUSD:  buyDepth,
		SellDepthUSD: sellDepth,
		Timestamp:    now,
	}
	if err := s.store.InsertDepth(ctx, record); err != nil {
		logger.Error().Err(err).Msg("failed to persist depth record")
		return outcomeFailed
	}
	return outcomeUpdated
}

// measure runs one direction of the search and converts the raw result to
// USD using the reference currency's decimals. A failed search degrades to
// zero depth.
func (s *Service) measure(ctx context.Context, logger zerolog.Logger, sell, buy registry.AssetDescriptor, sellSide bool, warmStart *decimal.Decimal) decimal.Decimal {
	raw, err := s.finder.FindDepth(ctx, sell, buy, sellSide, warmStart)
	if err != nil {
		logger.Warn().Err(err).Bool("sell_side", sellSide).Msg("depth search failed")
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -s.reg.Reference.Decimals)
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
