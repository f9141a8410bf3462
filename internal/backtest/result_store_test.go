package backtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResultStore(t *testing.T) *ResultStore {
	t.Helper()
	store, err := NewResultStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleOutput(runID string) *RunOutput {
	return &RunOutput{
		Result: Result{
			RunID:          runID,
			StrategyName:   "ma_crossover",
			StartDate:      day("2024-01-02"),
			EndDate:        day("2024-01-03"),
			InitialCapital: 1_000_000,
			FinalCapital:   1_019_780,
			CommissionRate: 0.001,
			SlippageRate:   0,
			Summary: Summary{
				TotalReturn:  0.01978,
				MaxDrawdown:  -0.05,
				TotalTrades:  2,
				WinRate:      1.0,
				ProfitFactor: -1,
			},
		},
		Fills: []Fill{
			{Date: day("2024-01-02"), Code: "005930", Side: SideBuy, Price: 100, Quantity: 1000, Commission: 100, PositionSize: 1000, PortfolioValue: 999_900, Status: FillStatusFilled},
			{Date: day("2024-01-03"), Code: "005930", Side: SideSell, Price: 120, Quantity: 1000, Commission: 120, PnL: 19_880, PortfolioValue: 1_019_780, Status: FillStatusFilled},
			{Date: day("2024-01-03"), Code: "005930", Side: SideBuy, Price: 120, Quantity: 99_999, Status: FillStatusRejected, Reason: "insufficient cash", PortfolioValue: 1_019_780},
		},
		Equity: []EquityPoint{
			{Date: day("2024-01-02"), Value: 999_900, Cash: 899_900, HoldingsValue: 100_000},
			{Date: day("2024-01-03"), Value: 1_019_780, Cash: 1_019_780},
		},
	}
}

func TestResultStore_RunLifecycle(t *testing.T) {
	store := newTestResultStore(t)
	ctx := context.Background()

	run := Run{
		ID:       "run-1",
		Strategy: "ma_crossover",
		Status:   RunStatusPending,
		Config: RunConfig{
			Codes:          []string{"005930"},
			InitialCapital: 1_000_000,
			GapPolicy:      GapCarry,
			DateAxis:       AxisUnion,
			StrategyName:   "ma_crossover",
		},
	}
	require.NoError(t, store.InsertRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusPending, got.Status)
	assert.Equal(t, []string{"005930"}, got.Config.Codes)
	assert.True(t, got.CompletedAt.IsZero())

	require.NoError(t, store.UpdateRunStatus(ctx, "run-1", RunStatusRunning, "回测执行中"))
	got, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.True(t, got.CompletedAt.IsZero())

	require.NoError(t, store.UpdateRunStatus(ctx, "run-1", RunStatusDone, "ok"))
	got, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, got.Status)
	assert.False(t, got.CompletedAt.IsZero())
}

func TestResultStore_SaveResultRoundTrip(t *testing.T) {
	store := newTestResultStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRun(ctx, Run{ID: "run-1", Strategy: "ma_crossover", Status: RunStatusRunning}))
	out := sampleOutput("run-1")
	require.NoError(t, store.SaveResult(ctx, out))
	assert.NotZero(t, out.Result.ResultID)

	result, err := store.GetResult(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1_019_780), result.FinalCapital)
	assert.InDelta(t, 0.01978, result.Summary.TotalReturn, 1e-9)
	assert.Equal(t, 1.0, result.Summary.WinRate)
	// -1 哨兵落库为 NULL，读回仍是 -1
	assert.Equal(t, -1.0, result.Summary.ProfitFactor)

	trades, err := store.ListTrades(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, SideBuy, trades[0].Side)
	assert.Equal(t, int64(19_880), trades[1].PnL)
	assert.Equal(t, FillStatusRejected, trades[2].Status)
	assert.Equal(t, "insufficient cash", trades[2].Reason)

	equity, err := store.ListEquity(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, equity, 2)
	assert.Equal(t, int64(999_900), equity[0].Value)
	assert.Equal(t, int64(1_019_780), equity[1].Value)
}

func TestResultStore_SaveResultIdempotent(t *testing.T) {
	store := newTestResultStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRun(ctx, Run{ID: "run-1", Status: RunStatusRunning}))
	require.NoError(t, store.SaveResult(ctx, sampleOutput("run-1")))
	require.NoError(t, store.SaveResult(ctx, sampleOutput("run-1")))

	trades, err := store.ListTrades(ctx, "run-1", 0)
	require.NoError(t, err)
	assert.Len(t, trades, 3)

	equity, err := store.ListEquity(ctx, "run-1", 0)
	require.NoError(t, err)
	assert.Len(t, equity, 2)
}

func TestResultStore_MissingRunFK(t *testing.T) {
	store := newTestResultStore(t)
	// run 行不存在时外键拒绝写入
	err := store.SaveResult(context.Background(), sampleOutput("ghost"))
	require.Error(t, err)
	var pe *PersistenceError
	assert.ErrorAs(t, err, &pe)
}

func TestResultStore_GetResultNotFound(t *testing.T) {
	store := newTestResultStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertRun(ctx, Run{ID: "run-1", Status: RunStatusPending}))
	_, err := store.GetResult(ctx, "run-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestResultStore_ListRuns(t *testing.T) {
	store := newTestResultStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertRun(ctx, Run{ID: "run-1", Status: RunStatusPending}))
	require.NoError(t, store.InsertRun(ctx, Run{ID: "run-2", Status: RunStatusPending}))

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
