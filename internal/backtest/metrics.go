package backtest

import (
	"math"
)

// 年化口径：收益按自然日 365 复利，夏普按交易日 252 缩放。
const (
	daysPerYear        = 365.0
	tradingDaysPerYear = 252.0
)

// ComputeSummary 由资金曲线与成交记录推导全部指标。
// 输入不足（空曲线、零初始资金）时各指标退化为 0 或哨兵值，
// 不会返回 NaN。
func ComputeSummary(initialCapital int64, equity []EquityPoint, fills []Fill) Summary {
	s := Summary{WinRate: -1, ProfitFactor: -1}
	if len(equity) == 0 || initialCapital <= 0 {
		return s
	}
	final := equity[len(equity)-1].Value
	s.TotalReturn = float64(final-initialCapital) / float64(initialCapital)
	s.AnnualizedReturn = annualizedReturn(initialCapital, final, equity[0], equity[len(equity)-1])
	s.MaxDrawdown = maxDrawdown(equity)
	s.SharpeRatio = sharpeRatio(equity)
	s.TotalTrades, s.WinRate, s.ProfitFactor = tradeStats(fills)
	return s
}

func annualizedReturn(initial, final int64, first, last EquityPoint) float64 {
	days := last.Date.Sub(first.Date).Hours() / 24
	if days < 1 {
		days = 1
	}
	if final <= 0 {
		return -1
	}
	ratio := float64(final) / float64(initial)
	return math.Pow(ratio, daysPerYear/days) - 1
}

// maxDrawdown 单次正向扫描：维护历史峰值，回撤取 (v-peak)/peak 的最小值。
// 返回非正的分数，曲线不回撤时为 0。
func maxDrawdown(equity []EquityPoint) float64 {
	peak := equity[0].Value
	worst := 0.0
	for _, p := range equity[1:] {
		if p.Value > peak {
			peak = p.Value
			continue
		}
		if peak > 0 {
			dd := float64(p.Value-peak) / float64(peak)
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpeRatio 用日收益率的均值/标准差乘以 sqrt(252)，无风险利率取 0。
// 样本不足两个收益率或波动为 0 时返回 0。
func sharpeRatio(equity []EquityPoint) float64 {
	if len(equity) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Value
		if prev <= 0 {
			return 0
		}
		returns = append(returns, float64(equity[i].Value-prev)/float64(prev))
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

// tradeStats 统计成交笔数、胜率与盈亏比。平仓交易指成交的卖单；
// 没有平仓交易时胜率与盈亏比取 -1 哨兵，有平仓但无亏损时盈亏比为 +Inf。
func tradeStats(fills []Fill) (total int, winRate, profitFactor float64) {
	winRate, profitFactor = -1, -1
	var closes, wins int
	var grossProfit, grossLoss int64
	for _, f := range fills {
		if f.Status != FillStatusFilled {
			continue
		}
		total++
		if f.Side != SideSell {
			continue
		}
		closes++
		switch {
		case f.PnL > 0:
			wins++
			grossProfit += f.PnL
		case f.PnL < 0:
			grossLoss += -f.PnL
		}
	}
	if closes == 0 {
		return total, winRate, profitFactor
	}
	winRate = float64(wins) / float64(closes)
	if grossLoss > 0 {
		profitFactor = float64(grossProfit) / float64(grossLoss)
	} else {
		// 无亏损平仓（含全部持平）统一取无穷哨兵，落库时转 NULL
		profitFactor = math.Inf(1)
	}
	return total, winRate, profitFactor
}
