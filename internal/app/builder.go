package app

import (
	"fmt"

	"kquant/internal/backtest"
	"kquant/internal/config"
	"kquant/internal/store"
	"kquant/internal/strategy"
)

// buildApp 按依赖顺序手工装配：行情库 → 结果库 → 策略 registry → 模拟器 → HTTP。
func buildApp(cfg *config.Config) (*App, error) {
	marketStore, err := store.NewSqliteStore(cfg.Data.MarketDB)
	if err != nil {
		return nil, fmt.Errorf("打开行情库失败: %w", err)
	}

	results, err := backtest.NewResultStore(cfg.Data.ResultsDB)
	if err != nil {
		marketStore.Close()
		return nil, fmt.Errorf("打开结果库失败: %w", err)
	}

	registry, err := strategy.NewRegistry(cfg.Data.PresetsPath)
	if err != nil {
		marketStore.Close()
		results.Close()
		return nil, fmt.Errorf("加载策略预设失败: %w", err)
	}

	sim, err := backtest.NewSimulator(backtest.SimulatorConfig{
		Provider:      backtest.NewStoreProvider(marketStore),
		Results:       results,
		Factory:       registry,
		Defaults:      cfg.Backtest,
		MaxConcurrent: cfg.Backtest.MaxConcurrent,
	})
	if err != nil {
		marketStore.Close()
		results.Close()
		return nil, err
	}

	httpSrv, err := backtest.NewHTTPServer(backtest.HTTPConfig{
		Addr:      cfg.App.HTTPAddr,
		Data:      marketStore,
		Simulator: sim,
		Results:   results,
		Factory:   registry,
	})
	if err != nil {
		marketStore.Close()
		results.Close()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		store:   marketStore,
		results: results,
		sim:     sim,
		httpSrv: httpSrv,
	}, nil
}
