package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"depth-watch/internal/config"
	"depth-watch/internal/registry"
	"depth-watch/internal/storage"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

type fakeStore struct {
	latest    map[string]*storage.DepthRecord
	latestErr error
	inserted  []storage.DepthRecord
	insertErr error
}

func (f *fakeStore) InsertDepth(_ context.Context, record storage.DepthRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, record)
	return nil
}

func (f *fakeStore) LatestDepth(_ context.Context, token string) (*storage.DepthRecord, error) {
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	return f.latest[token], nil
}

func (f *fakeStore) DepthsSince(_ context.Context, _ string, _ time.Time) ([]storage.DepthRecord, error) {
	return nil, nil
}

func (f *fakeStore) ListTokens(_ context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) LastUpdated(_ context.Context) (*time.Time, error) {
	return nil, nil
}

type searchCall struct {
	sell      string
	buy       string
	sellSide  bool
	warmStart *decimal.Decimal
}

type fakeFinder struct {
	calls   []searchCall
	results map[string]*big.Int
	errs    map[string]error
}

func (f *fakeFinder) FindDepth(_ context.Context, sell, buy registry.AssetDescriptor, sellSide bool, warmStart *decimal.Decimal) (*big.Int, error) {
	f.calls = append(f.calls, searchCall{sell: sell.Symbol, buy: buy.Symbol, sellSide: sellSide, warmStart: warmStart})
	key := sell.Symbol + "->" + buy.Symbol
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	if raw := f.results[key]; raw != nil {
		return new(big.Int).Set(raw), nil
	}
	return big.NewInt(50_000_000_000), nil // 50k USD at 6 位小数
}

func testRegistry(symbols ...string) registry.Registry {
	assets := make([]registry.AssetDescriptor, 0, len(symbols))
	for i, sym := range symbols {
		assets = append(assets, registry.AssetDescriptor{
			Symbol:   sym,
			Address:  "0x" + string(rune('a'+i)),
			Decimals: 18,
		})
	}
	reg, err := registry.New(assets, registry.AssetDescriptor{
		Symbol:   "USDC",
		Address:  "0xusdc",
		Decimals: 6,
	})
	if err != nil {
		panic(err)
	}
	return reg
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Orchestrator.Freshness = 5 * time.Minute
	return cfg
}

func newTestService(cfg *config.Config, finder *fakeFinder, store storage.DepthStore, reg registry.Registry) *Service {
	return New(cfg, nil, finder, store, reg, noopLogger())
}

func TestProcessCycleInsertsDepths(t *testing.T) {
	store := &fakeStore{latest: map[string]*storage.DepthRecord{}}
	finder := &fakeFinder{}
	svc := newTestService(testConfig(), finder, store, testRegistry("ETH"))

	now := time.Now().UTC()
	if err := svc.ProcessCycle(context.Background(), now); err != nil {
		t.Fatalf("周期执行失败: %v", err)
	}

	if len(store.inserted) != 1 {
		t.Fatalf("应写入 1 条记录, 实际 %d", len(store.inserted))
	}
	rec := store.inserted[0]
	if rec.Token != "ETH" {
		t.Fatalf("token 不正确: %s", rec.Token)
	}
	if !rec.Timestamp.Equal(now) {
		t.Fatalf("记录应使用周期时间戳, 实际 %s", rec.Timestamp)
	}
	want := decimal.NewFromInt(50_000)
	if !rec.BuyDepthUSD.Equal(want) || !rec.SellDepthUSD.Equal(want) {
		t.Fatalf("深度换算错误: buy=%s sell=%s", rec.BuyDepthUSD, rec.SellDepthUSD)
	}

	// Both directions searched, cold.
	if len(finder.calls) != 2 {
		t.Fatalf("应搜索两个方向, 实际 %d 次", len(finder.calls))
	}
	buyCall, sellCall := finder.calls[0], finder.calls[1]
	if buyCall.sellSide || buyCall.sell != "USDC" || buyCall.buy != "ETH" {
		t.Fatalf("买方向参数错误: %+v", buyCall)
	}
	if !sellCall.sellSide || sellCall.sell != "ETH" || sellCall.buy != "USDC" {
		t.Fatalf("卖方向参数错误: %+v", sellCall)
	}
	if buyCall.warmStart != nil || sellCall.warmStart != nil {
		t.Fatal("无历史记录时不应有热启动")
	}
}

func TestProcessCycleSkipsFreshRecord(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{latest: map[string]*storage.DepthRecord{
		"ETH": {
			Token:        "ETH",
			BuyDepthUSD:  decimal.NewFromInt(60_000),
			SellDepthUSD: decimal.NewFromInt(55_000),
			Timestamp:    now.Add(-4 * time.Minute),
		},
	}}
	finder := &fakeFinder{}
	svc := newTestService(testConfig(), finder, store, testRegistry("ETH"))

	if err := svc.ProcessCycle(context.Background(), now); err != nil {
		t.Fatalf("周期执行失败: %v", err)
	}
	if len(finder.calls) != 0 {
		t.Fatalf("新鲜记录不应触发搜索, 实际 %d 次", len(finder.calls))
	}
	if len(store.inserted) != 0 {
		t.Fatalf("新鲜记录不应重复写入, 实际 %d 条", len(store.inserted))
	}
}

func TestProcessCycleWarmStartsFromStaleRecord(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{latest: map[string]*storage.DepthRecord{
		"ETH": {
			Token:        "ETH",
			BuyDepthUSD:  decimal.NewFromInt(60_000),
			SellDepthUSD: decimal.NewFromInt(55_000),
			Timestamp:    now.Add(-6 * time.Minute),
		},
	}}
	finder := &fakeFinder{}
	svc := newTestService(testConfig(), finder, store, testRegistry("ETH"))

	if err := svc.ProcessCycle(context.Background(), now); err != nil {
		t.Fatalf("周期执行失败: %v", err)
	}
	if len(finder.calls) != 2 {
		t.Fatalf("过期记录应重新测量, 实际 %d 次", len(finder.calls))
	}
	if finder.calls[0].warmStart == nil || !finder.calls[0].warmStart.Equal(decimal.NewFromInt(60_000)) {
		t.Fatalf("买方向热启动错误: %v", finder.calls[0].warmStart)
	}
	if finder.calls[1].warmStart == nil || !finder.calls[1].warmStart.Equal(decimal.NewFromInt(55_000)) {
		t.Fatalf("卖方向热启动错误: %v", finder.calls[1].warmStart)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("过期记录应写入新结果, 实际 %d 条", len(store.inserted))
	}
}

func TestProcessCycleNoWarmStartFromNonPositiveDepth(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{latest: map[string]*storage.DepthRecord{
		"ETH": {
			Token:        "ETH",
			BuyDepthUSD:  decimal.Zero,
			SellDepthUSD: decimal.NewFromInt(55_000),
			Timestamp:    now.Add(-10 * time.Minute),
		},
	}}
	finder := &fakeFinder{}
	svc := newTestService(testConfig(), finder, store, testRegistry("ETH"))

	if err := svc.ProcessCycle(context.Background(), now); err != nil {
		t.Fatalf("周期执行失败: %v", err)
	}
	if finder.calls[0].warmStart != nil {
		t.Fatal("零深度不应作为热启动")
	}
	if finder.calls[1].warmStart == nil {
		t.Fatal("正深度应作为热启动")
	}
}

func TestProcessCycleDegradedNotPersisted(t *testing.T) {
	store := &fakeStore{latest: map[string]*storage.DepthRecord{}}
	finder := &fakeFinder{errs: map[string]error{
		"USDC->ETH": errors.New("search failed"),
	}}
	svc := newTestService(testConfig(), finder, store, testRegistry("ETH"))

	if err := svc.ProcessCycle(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("周期执行失败: %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("单侧失败默认不应写入, 实际 %d 条", len(store.inserted))
	}
}

func TestProcessCyclePersistDegradedWhenConfigured(t *testing.T) {
	store := &fakeStore{latest: map[string]*storage.DepthRecord{}}
	finder := &fakeFinder{errs: map[string]error{
		"USDC->ETH": errors.New("search failed"),
	}}
	cfg := testConfig()
	cfg.Orchestrator.PersistDegraded = true
	svc := newTestService(cfg, finder, store, testRegistry("ETH"))

	if err := svc.ProcessCycle(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("周期执行失败: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("开启 persist_degraded 时应写入, 实际 %d 条", len(store.inserted))
	}
	rec := store.inserted[0]
	if !rec.BuyDepthUSD.IsZero() {
		t.Fatalf("失败方向应记为零, 实际 %s", rec.BuyDepthUSD)
	}
	if !rec.SellDepthUSD.IsPositive() {
		t.Fatalf("成功方向应保留结果, 实际 %s", rec.SellDepthUSD)
	}
}

func TestProcessCycleIsolatesAssetFailures(t *testing.T) {
	store := &fakeStore{latest: map[string]*storage.DepthRecord{}}
	finder := &fakeFinder{errs: map[string]error{
		"USDC->ETH": errors.New("search failed"),
		"ETH->USDC": errors.New("search failed"),
	}}
	svc := newTestService(testConfig(), finder, store, testRegistry("ETH", "WBTC"))

	if err := svc.ProcessCycle(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("周期执行失败: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("一个资产失败不应影响其他资产, 实际写入 %d 条", len(store.inserted))
	}
	if store.inserted[0].Token != "WBTC" {
		t.Fatalf("应写入未失败的资产, 实际 %s", store.inserted[0].Token)
	}
}

func TestProcessCycleSearchesColdOnReadError(t *testing.T) {
	store := &fakeStore{latestErr: errors.New("db down")}
	finder := &fakeFinder{}
	svc := newTestService(testConfig(), finder, store, testRegistry("ETH"))

	if err := svc.ProcessCycle(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("读失败不应中止周期: %v", err)
	}
	if len(finder.calls) != 2 {
		t.Fatalf("读失败应退化为冷搜索, 实际 %d 次", len(finder.calls))
	}
	for _, call := range finder.calls {
		if call.warmStart != nil {
			t.Fatal("读失败后不应有热启动")
		}
	}
}

func TestProcessCycleStandaloneWithoutStore(t *testing.T) {
	finder := &fakeFinder{}
	svc := newTestService(testConfig(), finder, nil, testRegistry("ETH"))

	if err := svc.ProcessCycle(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("无存储模式应可运行: %v", err)
	}
	if len(finder.calls) != 2 {
		t.Fatalf("无存储时仍应测量, 实际 %d 次", len(finder.calls))
	}
}
