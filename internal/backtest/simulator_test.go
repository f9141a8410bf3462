package backtest

import (
	"context"
	"testing"
	"time"

	"kquant/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSimulator(t *testing.T, provider PriceSeriesProvider, factory StrategyFactory) (*Simulator, *ResultStore) {
	t.Helper()
	results := newTestResultStore(t)
	sim, err := NewSimulator(SimulatorConfig{
		Provider: provider,
		Results:  results,
		Factory:  factory,
		Defaults: config.BacktestConfig{
			InitialCapital: 1_000_000,
			CommissionRate: 0.001,
			GapPolicy:      "carry",
			DateAxis:       "union",
		},
		MaxConcurrent: 2,
	})
	require.NoError(t, err)
	return sim, results
}

func TestSimulator_RunSync(t *testing.T) {
	provider := NewMemoryProvider()
	provider.Add(
		bar("005930", "2024-01-02", 100),
		bar("005930", "2024-01-03", 120),
	)
	strat := &scriptStrategy{signals: map[string][]Signal{
		"2024-01-02": {{Code: "005930", Side: SideBuy, Quantity: 1000}},
		"2024-01-03": {{Code: "005930", Side: SideSell}},
	}}
	sim, results := newTestSimulator(t, provider, &scriptFactory{strat: strat})

	out, err := sim.RunSync(context.Background(), RunRequest{
		Codes:     []string{"005930"},
		StartDate: "2024-01-02",
		EndDate:   "2024-01-03",
		Strategy:  "script",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1_019_780), out.Result.FinalCapital)

	// 状态与结果都已落库
	run, err := results.GetRun(context.Background(), out.Result.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, run.Status)

	saved, err := results.GetResult(context.Background(), out.Result.RunID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_019_780), saved.FinalCapital)
}

func TestSimulator_StartRunAsync(t *testing.T) {
	provider := NewMemoryProvider()
	provider.Add(
		bar("005930", "2024-01-02", 100),
		bar("005930", "2024-01-03", 110),
	)
	sim, results := newTestSimulator(t, provider, &scriptFactory{strat: &scriptStrategy{}})

	run, err := sim.StartRun(RunRequest{
		Codes:     []string{"005930"},
		StartDate: "2024-01-02",
		EndDate:   "2024-01-03",
		Strategy:  "script",
	})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusPending, run.Status)

	// 等待后台完成
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := results.GetRun(context.Background(), run.ID)
		require.NoError(t, err)
		if got.Status == RunStatusDone || got.Status == RunStatusFailed {
			assert.Equal(t, RunStatusDone, got.Status)
			break
		}
		require.True(t, time.Now().Before(deadline), "回测未在期限内完成")
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSimulator_FailedRunPersisted(t *testing.T) {
	// provider 无任何数据，run 必然失败
	sim, results := newTestSimulator(t, NewMemoryProvider(), &scriptFactory{strat: &scriptStrategy{}})

	out, err := sim.RunSync(context.Background(), RunRequest{
		Codes:     []string{"005930"},
		StartDate: "2024-01-02",
		EndDate:   "2024-01-03",
		Strategy:  "script",
	})
	require.Error(t, err)
	assert.Nil(t, out)

	runs, err := results.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Message)
}

func TestSimulator_RequestValidation(t *testing.T) {
	sim, _ := newTestSimulator(t, NewMemoryProvider(), &scriptFactory{strat: &scriptStrategy{}})

	_, err := sim.StartRun(RunRequest{StartDate: "2024-01-02", EndDate: "2024-01-03", Strategy: "script"})
	assert.Error(t, err) // codes 为空

	_, err = sim.StartRun(RunRequest{Codes: []string{"005930"}, StartDate: "bad", EndDate: "2024-01-03", Strategy: "script"})
	assert.Error(t, err) // 日期非法

	_, err = sim.StartRun(RunRequest{Codes: []string{"005930"}, StartDate: "2024-01-03", EndDate: "2024-01-02", Strategy: "script"})
	assert.Error(t, err) // 日期倒置

	_, err = sim.StartRun(RunRequest{Codes: []string{"005930"}, StartDate: "2024-01-02", EndDate: "2024-01-03"})
	assert.Error(t, err) // strategy 与 rebalance 都缺失
}

func TestSimulator_DefaultsApplied(t *testing.T) {
	sim, _ := newTestSimulator(t, NewMemoryProvider(), &scriptFactory{strat: &scriptStrategy{}})

	cfg, err := sim.buildConfig(RunRequest{
		Codes:     []string{" 005930 ", ""},
		StartDate: "2024-01-02",
		EndDate:   "2024-01-03",
		Strategy:  "script",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"005930"}, cfg.Codes)
	assert.Equal(t, int64(1_000_000), cfg.InitialCapital)
	assert.InDelta(t, 0.001, cfg.CommissionRate, 1e-12)
	assert.Equal(t, GapCarry, cfg.GapPolicy)
	assert.Equal(t, AxisUnion, cfg.DateAxis)
}

func TestSimulator_ExplicitZeroCost(t *testing.T) {
	sim, _ := newTestSimulator(t, NewMemoryProvider(), &scriptFactory{strat: &scriptStrategy{}})

	// 显式传 0 表示零费率，不回退到默认值
	zeroRate := 0.0
	capital := int64(5_000_000)
	cfg, err := sim.buildConfig(RunRequest{
		Codes:          []string{"005930"},
		StartDate:      "2024-01-02",
		EndDate:        "2024-01-03",
		Strategy:       "script",
		InitialCapital: &capital,
		CommissionRate: &zeroRate,
		SlippageRate:   &zeroRate,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), cfg.InitialCapital)
	assert.Equal(t, 0.0, cfg.CommissionRate)
	assert.Equal(t, 0.0, cfg.SlippageRate)

	// 非法的显式值仍然被拒绝
	bad := int64(-1)
	_, err = sim.buildConfig(RunRequest{
		Codes:          []string{"005930"},
		StartDate:      "2024-01-02",
		EndDate:        "2024-01-03",
		Strategy:       "script",
		InitialCapital: &bad,
	})
	assert.Error(t, err)
}
