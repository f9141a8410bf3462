package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kquant/internal/config"
	"kquant/internal/logger"
	"kquant/internal/market"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// RunRequest 为发起一次回测的外部请求。
// 本金与费率字段缺省时回退到配置默认值；显式传 0 表示零费率。
type RunRequest struct {
	Codes          []string         `json:"codes"`
	StartDate      string           `json:"start_date"`
	EndDate        string           `json:"end_date"`
	Strategy       string           `json:"strategy"`
	Params         map[string]any   `json:"params"`
	InitialCapital *int64           `json:"initial_capital,omitempty"`
	CommissionRate *float64         `json:"commission_rate,omitempty"`
	SlippageRate   *float64         `json:"slippage_rate,omitempty"`
	GapPolicy      string           `json:"gap_policy"`
	DateAxis       string           `json:"date_axis"`
	Rebalance      *RebalancePolicy `json:"rebalance"`
}

type SimulatorConfig struct {
	Provider      PriceSeriesProvider
	Results       *ResultStore
	Factory       StrategyFactory
	Defaults      config.BacktestConfig
	MaxConcurrent int
}

// Simulator 负责回测任务的生命周期：受理请求、限流执行、状态落库。
// 任务在后台 goroutine 中运行，并发数由信号量约束。
type Simulator struct {
	engine   *Engine
	results  *ResultStore
	defaults config.BacktestConfig

	sem     *semaphore.Weighted
	baseCtx context.Context
}

func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("price provider 不能为空")
	}
	if cfg.Results == nil {
		return nil, fmt.Errorf("result store 不能为空")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("strategy factory 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Simulator{
		engine:   NewEngine(cfg.Provider, cfg.Factory),
		results:  cfg.Results,
		defaults: cfg.Defaults,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		baseCtx:  context.Background(),
	}, nil
}

func (s *Simulator) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Simulator) ctx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

func (s *Simulator) buildConfig(req RunRequest) (RunConfig, error) {
	codes := make([]string, 0, len(req.Codes))
	for _, c := range req.Codes {
		c = strings.TrimSpace(c)
		if c != "" {
			codes = append(codes, c)
		}
	}
	if len(codes) == 0 {
		return RunConfig{}, fmt.Errorf("codes 不能为空")
	}
	start, err := market.ParseDate(req.StartDate)
	if err != nil {
		return RunConfig{}, fmt.Errorf("start_date 无效: %w", err)
	}
	end, err := market.ParseDate(req.EndDate)
	if err != nil {
		return RunConfig{}, fmt.Errorf("end_date 无效: %w", err)
	}
	if end.Before(start) {
		return RunConfig{}, fmt.Errorf("end_date 早于 start_date")
	}

	initial := s.defaults.InitialCapital
	if req.InitialCapital != nil {
		initial = *req.InitialCapital
	}
	commission := s.defaults.CommissionRate
	if req.CommissionRate != nil {
		commission = *req.CommissionRate
	}
	slippage := s.defaults.SlippageRate
	if req.SlippageRate != nil {
		slippage = *req.SlippageRate
	}
	gap := GapPolicy(req.GapPolicy)
	if gap == "" {
		gap = GapPolicy(s.defaults.GapPolicy)
	}
	axis := DateAxis(req.DateAxis)
	if axis == "" {
		axis = DateAxis(s.defaults.DateAxis)
	}

	cfg := RunConfig{
		Codes:          codes,
		Start:          start,
		End:            end,
		InitialCapital: initial,
		CommissionRate: commission,
		SlippageRate:   slippage,
		GapPolicy:      gap,
		DateAxis:       axis,
		StrategyName:   req.Strategy,
		StrategyParams: req.Params,
	}
	if req.Rebalance != nil {
		cfg.Rebalance = *req.Rebalance
	}
	if cfg.StrategyName == "" && !cfg.Rebalance.Enabled() {
		return RunConfig{}, fmt.Errorf("strategy 与 rebalance 不能同时为空")
	}
	if err := validateRunConfig(&cfg); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// StartRun 创建回测任务并立即返回，模拟过程在后台进行。
func (s *Simulator) StartRun(req RunRequest) (Run, error) {
	cfg, err := s.buildConfig(req)
	if err != nil {
		return Run{}, err
	}
	run := Run{
		ID:       uuid.NewString(),
		Strategy: cfg.StrategyName,
		Status:   RunStatusPending,
		Config:   cfg,
	}
	if err := s.results.InsertRun(s.ctx(), run); err != nil {
		return Run{}, err
	}
	go s.runLoop(run.ID, cfg)
	return run, nil
}

// RunSync 同步执行一次回测并落库，CLI 一次性场景用。
func (s *Simulator) RunSync(ctx context.Context, req RunRequest) (*RunOutput, error) {
	cfg, err := s.buildConfig(req)
	if err != nil {
		return nil, err
	}
	run := Run{
		ID:       uuid.NewString(),
		Strategy: cfg.StrategyName,
		Status:   RunStatusPending,
		Config:   cfg,
	}
	if err := s.results.InsertRun(ctx, run); err != nil {
		return nil, err
	}
	return s.execute(ctx, run.ID, cfg)
}

func (s *Simulator) runLoop(runID string, cfg RunConfig) {
	ctx := s.ctx()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		_ = s.results.UpdateRunStatus(ctx, runID, RunStatusFailed, err.Error())
		return
	}
	defer s.sem.Release(1)

	if _, err := s.execute(ctx, runID, cfg); err != nil {
		logger.Warnf("[backtest] run %s 失败: %v", runID, err)
	}
}

func (s *Simulator) execute(ctx context.Context, runID string, cfg RunConfig) (*RunOutput, error) {
	_ = s.results.UpdateRunStatus(ctx, runID, RunStatusRunning, "回测执行中")
	started := time.Now()

	out, err := s.engine.Run(ctx, runID, cfg)
	if err != nil {
		_ = s.results.UpdateRunStatus(ctx, runID, RunStatusFailed, err.Error())
		return nil, err
	}
	if err := s.results.SaveResult(ctx, out); err != nil {
		_ = s.results.UpdateRunStatus(ctx, runID, RunStatusFailed, err.Error())
		return nil, err
	}
	msg := fmt.Sprintf("收益 %.2f%%, %d 笔成交, 耗时 %s",
		out.Result.Summary.TotalReturn*100, out.Result.Summary.TotalTrades,
		time.Since(started).Round(time.Millisecond))
	_ = s.results.UpdateRunStatus(ctx, runID, RunStatusDone, msg)
	return out, nil
}
