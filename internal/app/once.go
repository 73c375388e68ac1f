package app

import (
	"context"
	"time"

	"depth-watch/internal/service"
	"depth-watch/internal/storage"
)

// Once 立即执行一个完整的测量周期，不经过调度器。
// DryRun 模式跳过数据库，仅把测得的深度写入日志。
func (a *App) Once(ctx context.Context, opts OnceOptions) error {
	var store *storage.Store
	var closeStore func()
	var err error
	var depthStore storage.DepthStore

	if opts.DryRun {
		a.Logger.Warn().Msg("dry-run：不会写入数据库，也不使用 warm start")
	} else {
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			a.Logger.Warn().Msg("database.dsn not configured; running without persistence")
		}
		if closeStore != nil {
			defer closeStore()
		}
		if store != nil {
			depthStore = store
		}
	}

	reg, err := a.buildRegistry()
	if err != nil {
		return err
	}

	svc := service.New(a.Config, nil, a.newEngine(), depthStore, reg, a.Logger)
	return svc.ProcessCycle(ctx, time.Now().UTC())
}
