package app

import (
	"context"
	"fmt"

	"kquant/internal/backtest"
	"kquant/internal/config"
	"kquant/internal/logger"
	"kquant/internal/store"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置 → 初始化依赖 → 启动回测服务。
type App struct {
	cfg     *config.Config
	store   *store.SqliteStore
	results *backtest.ResultStore
	sim     *backtest.Simulator
	httpSrv *backtest.HTTPServer
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildApp(cfg)
}

// Run 启动 HTTP 服务，阻塞到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.sim.SetContext(ctx)
	logger.Infof("kquant 启动: http=%s market_db=%s results_db=%s",
		a.cfg.App.HTTPAddr, a.cfg.Data.MarketDB, a.cfg.Data.ResultsDB)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	err := group.Wait()
	a.Close()
	return err
}

// Close 释放存储句柄。
func (a *App) Close() {
	if a.results != nil {
		if err := a.results.Close(); err != nil {
			logger.Warnf("关闭结果库失败: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("关闭行情库失败: %v", err)
		}
	}
}

// Simulator 暴露内部模拟器，测试与一次性 CLI 场景用。
func (a *App) Simulator() *backtest.Simulator { return a.sim }
