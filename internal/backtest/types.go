package backtest

import (
	"time"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// Side 为交易方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Fill 状态：executed 为成交，rejected 为被拒绝的空操作记录（§ 被拒订单也入账）。
const (
	FillStatusFilled   = "filled"
	FillStatusRejected = "rejected"
)

// Order 表示一笔待执行的市价单（数量为正，方向由 Side 决定）。
type Order struct {
	Code     string `json:"code"`
	Side     Side   `json:"side"`
	Quantity int64  `json:"quantity"`
}

// Fill 为一笔执行记录，创建后不可变，仅追加。
// 被拒绝的订单同样生成 Fill（Status=rejected，现金与持仓均无变化）。
type Fill struct {
	Date           time.Time `json:"date"`
	Code           string    `json:"code"`
	Side           Side      `json:"side"`
	Price          int64     `json:"price"`    // 含滑点的成交价
	Quantity       int64     `json:"quantity"`
	Commission     int64     `json:"commission"`
	Slippage       int64     `json:"slippage"` // 滑点造成的总成本（货币单位）
	PnL            int64     `json:"pnl"`      // 仅卖出（减仓）时有意义
	PositionSize   int64     `json:"position_size"`   // 成交后的持仓数量
	PortfolioValue int64     `json:"portfolio_value"` // 成交后的组合总值
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"` // 拒绝原因
}

// EquityPoint 为资金曲线上的一个点，每个交易日一条，严格按日期递增。
type EquityPoint struct {
	Date          time.Time `json:"date"`
	Value         int64     `json:"value"` // 现金 + 持仓市值
	Cash          int64     `json:"cash"`
	HoldingsValue int64     `json:"holdings_value"`
}

// Summary 为一次 run 的指标汇总，全部由资金曲线与成交记录推导，可复算。
// WinRate / ProfitFactor 在没有平仓交易时取 -1 哨兵；
// ProfitFactor 在有平仓但无亏损时为 +Inf。
type Summary struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	MaxDrawdown      float64 `json:"max_drawdown"` // 负分数，如 -0.3333
	SharpeRatio      float64 `json:"sharpe_ratio"`
	TotalTrades      int     `json:"total_trades"` // 仅统计成交的 Fill
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
}

// Result 对应 backtest_results 的一行，run 完成时创建一次，之后不可变。
type Result struct {
	ResultID       int64     `json:"result_id"`
	RunID          string    `json:"run_id"`
	StrategyName   string    `json:"strategy_name"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	InitialCapital int64     `json:"initial_capital"`
	FinalCapital   int64     `json:"final_capital"`
	CommissionRate float64   `json:"commission_rate"`
	SlippageRate   float64   `json:"slippage_rate"`
	Summary        Summary   `json:"summary"`
	CreatedAt      time.Time `json:"created_at"`
}

// GapPolicy 决定必需股票缺日线时的行为。
type GapPolicy string

const (
	GapCarry GapPolicy = "carry" // 跳过并沿用上一个收盘价（默认）
	GapFail  GapPolicy = "fail"  // 立即以 DataGapError 终止
)

// DateAxis 决定多只股票的交易日轴如何合并。
type DateAxis string

const (
	AxisUnion        DateAxis = "union"
	AxisIntersection DateAxis = "intersection"
)

// RunConfig 记录一次模拟的完整参数快照，便于重放。
type RunConfig struct {
	Codes          []string           `json:"codes"`
	Start          time.Time          `json:"start"`
	End            time.Time          `json:"end"`
	InitialCapital int64              `json:"initial_capital"`
	CommissionRate float64            `json:"commission_rate"`
	SlippageRate   float64            `json:"slippage_rate"`
	GapPolicy      GapPolicy          `json:"gap_policy"`
	DateAxis       DateAxis           `json:"date_axis"`
	Rebalance      RebalancePolicy    `json:"rebalance"`
	StrategyName   string             `json:"strategy_name"`
	StrategyParams map[string]any     `json:"strategy_params,omitempty"`
}

// Run 表示一次模拟任务的生命周期状态。
type Run struct {
	ID          string    `json:"id"`
	Strategy    string    `json:"strategy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Config      RunConfig `json:"config"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// RunOutput 为引擎一次完整运行的产物。
type RunOutput struct {
	Result Result        `json:"result"`
	Fills  []Fill        `json:"fills"`
	Equity []EquityPoint `json:"equity"`
}
