package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func equityFrom(values ...int64) []EquityPoint {
	dates := []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05", "2024-01-08", "2024-01-09"}
	out := make([]EquityPoint, len(values))
	for i, v := range values {
		out[i] = EquityPoint{Date: day(dates[i]), Value: v}
	}
	return out
}

func TestMaxDrawdown(t *testing.T) {
	// 峰值 120 跌到 80：-33.33%
	dd := maxDrawdown(equityFrom(100, 120, 80, 150))
	assert.InDelta(t, -1.0/3.0, dd, 1e-9)

	// 单调上涨无回撤
	assert.Equal(t, 0.0, maxDrawdown(equityFrom(100, 110, 120)))

	// 新高后再回撤取更深的一段
	dd = maxDrawdown(equityFrom(100, 80, 160, 100))
	assert.InDelta(t, -0.375, dd, 1e-9)
}

func TestComputeSummary_Basic(t *testing.T) {
	equity := equityFrom(999_900, 1_019_780)
	fills := []Fill{
		{Side: SideBuy, Status: FillStatusFilled},
		{Side: SideSell, Status: FillStatusFilled, PnL: 19_880},
	}
	s := ComputeSummary(1_000_000, equity, fills)
	assert.InDelta(t, 0.01978, s.TotalReturn, 1e-9)
	assert.Equal(t, 2, s.TotalTrades)
	assert.Equal(t, 1.0, s.WinRate)
	assert.True(t, math.IsInf(s.ProfitFactor, 1))
	assert.True(t, s.AnnualizedReturn > s.TotalReturn)
}

func TestComputeSummary_NoTrades(t *testing.T) {
	s := ComputeSummary(1_000_000, equityFrom(1_000_000, 1_000_000, 1_000_000), nil)
	assert.Equal(t, 0.0, s.TotalReturn)
	assert.Equal(t, 0.0, s.SharpeRatio)
	assert.Equal(t, 0, s.TotalTrades)
	assert.Equal(t, -1.0, s.WinRate)
	assert.Equal(t, -1.0, s.ProfitFactor)
}

func TestComputeSummary_RejectedNotCounted(t *testing.T) {
	fills := []Fill{
		{Side: SideBuy, Status: FillStatusFilled},
		{Side: SideBuy, Status: FillStatusRejected},
		{Side: SideSell, Status: FillStatusFilled, PnL: -500},
		{Side: SideSell, Status: FillStatusRejected},
	}
	s := ComputeSummary(1_000_000, equityFrom(1_000_000, 999_500), fills)
	assert.Equal(t, 2, s.TotalTrades)
	assert.Equal(t, 0.0, s.WinRate)
	// 只有亏损平仓
	assert.Equal(t, 0.0, s.ProfitFactor)
}

func TestComputeSummary_ProfitFactor(t *testing.T) {
	fills := []Fill{
		{Side: SideSell, Status: FillStatusFilled, PnL: 3000},
		{Side: SideSell, Status: FillStatusFilled, PnL: -1000},
		{Side: SideSell, Status: FillStatusFilled, PnL: -500},
	}
	s := ComputeSummary(1_000_000, equityFrom(1_000_000, 1_001_500), fills)
	assert.InDelta(t, 2.0, s.ProfitFactor, 1e-9)
	assert.InDelta(t, 1.0/3.0, s.WinRate, 1e-9)
}

func TestComputeSummary_BreakEvenProfitFactor(t *testing.T) {
	// 有平仓但全部持平：无亏损，盈亏比取 +Inf 哨兵而不是 0
	fills := []Fill{
		{Side: SideBuy, Status: FillStatusFilled},
		{Side: SideSell, Status: FillStatusFilled, PnL: 0},
		{Side: SideSell, Status: FillStatusFilled, PnL: 0},
	}
	s := ComputeSummary(1_000_000, equityFrom(1_000_000, 1_000_000), fills)
	assert.True(t, math.IsInf(s.ProfitFactor, 1))
	assert.Equal(t, 0.0, s.WinRate)
}

func TestComputeSummary_EmptyEquity(t *testing.T) {
	s := ComputeSummary(1_000_000, nil, nil)
	assert.Equal(t, 0.0, s.TotalReturn)
	assert.Equal(t, -1.0, s.WinRate)
}

func TestSharpeRatio_ZeroVolatility(t *testing.T) {
	assert.Equal(t, 0.0, sharpeRatio(equityFrom(100, 100, 100, 100)))
	// 样本不足
	assert.Equal(t, 0.0, sharpeRatio(equityFrom(100, 110)))
}

func TestSharpeRatio_Positive(t *testing.T) {
	s := sharpeRatio(equityFrom(100, 101, 103, 104, 106))
	assert.True(t, s > 0)
	assert.False(t, math.IsNaN(s))
}
