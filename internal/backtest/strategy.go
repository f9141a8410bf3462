package backtest

import (
	"time"

	"kquant/internal/market"
)

// Signal 是策略对单只股票发出的交易意图。
// Quantity > 0 时按股数下单；否则按 Weight（组合总值的比例）换算股数。
// 卖出时 Weight 为 0 表示清仓该股票。
type Signal struct {
	Code     string  `json:"code"`
	Side     Side    `json:"side"`
	Quantity int64   `json:"quantity,omitempty"`
	Weight   float64 `json:"weight,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// BarContext 是引擎在每个交易日推给策略的只读上下文。
// CloseHistory 含当日收盘价，按日期升序，供指标计算直接使用。
type BarContext struct {
	Date      time.Time
	Bars      map[string]market.Bar
	Portfolio PortfolioSnapshot

	history map[string][]float64
}

// NewBarContext 构造策略上下文，引擎与策略测试共用。
// history 按代码给出截至当日的收盘价序列。
func NewBarContext(date time.Time, bars map[string]market.Bar, snap PortfolioSnapshot, history map[string][]float64) *BarContext {
	if bars == nil {
		bars = map[string]market.Bar{}
	}
	if history == nil {
		history = map[string][]float64{}
	}
	return &BarContext{Date: date, Bars: bars, Portfolio: snap, history: history}
}

// Bar 返回某只股票当日的日线（缺口日不存在）。
func (c *BarContext) Bar(code string) (market.Bar, bool) {
	b, ok := c.Bars[code]
	return b, ok
}

// CloseHistory 返回某只股票截至当日的收盘价序列。
// 返回的切片归引擎所有，策略不得修改。
func (c *BarContext) CloseHistory(code string) []float64 {
	return c.history[code]
}

// Strategy 为回测策略的最小接口。实现必须是确定性的：
// 相同的输入序列必须产生相同的信号序列。
type Strategy interface {
	// Name 返回策略标识，用于结果落库。
	Name() string
	// WarmupBars 返回产生首个信号前需要的最少历史根数。
	WarmupBars() int
	// OnBar 在每个交易日收盘后被调用一次，返回当日信号。
	OnBar(ctx *BarContext) ([]Signal, error)
}

// StrategyFactory 按名字和参数构建策略实例。
// 每次 run 必须拿到独立实例，策略内部状态不跨 run 共享。
type StrategyFactory interface {
	Create(name string, params map[string]any) (Strategy, error)
	Names() []string
}
