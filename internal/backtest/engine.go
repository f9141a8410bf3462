package backtest

import (
	"context"
	"fmt"
	"time"

	"kquant/internal/logger"
	"kquant/internal/market"
)

// Engine 执行单次回测：按交易日轴逐日重放，
// 每日顺序固定为 市值刷新 -> 策略信号 -> 再平衡 -> 订单执行 -> 资金曲线记点。
// Engine 无内部状态，可被多个 run 并发共享。
type Engine struct {
	provider PriceSeriesProvider
	factory  StrategyFactory
}

func NewEngine(provider PriceSeriesProvider, factory StrategyFactory) *Engine {
	return &Engine{provider: provider, factory: factory}
}

func validateRunConfig(cfg *RunConfig) error {
	if len(cfg.Codes) == 0 {
		return fmt.Errorf("codes 不能为空")
	}
	if cfg.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital 必须为正: %d", cfg.InitialCapital)
	}
	if !cfg.End.IsZero() && cfg.End.Before(cfg.Start) {
		return fmt.Errorf("end 早于 start")
	}
	if cfg.CommissionRate < 0 || cfg.SlippageRate < 0 {
		return fmt.Errorf("费率不能为负")
	}
	if cfg.GapPolicy == "" {
		cfg.GapPolicy = GapCarry
	}
	if cfg.DateAxis == "" {
		cfg.DateAxis = AxisUnion
	}
	return cfg.Rebalance.Validate()
}

// Run 完整执行一次回测并返回结果。结果完全由输入决定：
// 相同的 RunConfig 与相同的数据必须产生逐字节相同的成交与曲线。
func (e *Engine) Run(ctx context.Context, runID string, cfg RunConfig) (*RunOutput, error) {
	if err := validateRunConfig(&cfg); err != nil {
		return nil, err
	}

	series := make(map[string][]market.Bar, len(cfg.Codes))
	for _, code := range cfg.Codes {
		bars, err := e.provider.Bars(ctx, code, cfg.Start, cfg.End)
		if err != nil {
			return nil, fmt.Errorf("加载 %s 日线失败: %w", code, err)
		}
		if len(bars) == 0 {
			return nil, &DataGapError{Code: code, Date: cfg.Start}
		}
		series[code] = bars
	}

	set := newSeriesSet(series, cfg.DateAxis)
	axis := set.Axis()
	if len(axis) == 0 {
		return nil, fmt.Errorf("区间内没有共同交易日")
	}

	var strat Strategy
	if cfg.StrategyName != "" {
		var err error
		strat, err = e.factory.Create(cfg.StrategyName, cfg.StrategyParams)
		if err != nil {
			return nil, fmt.Errorf("构建策略 %s 失败: %w", cfg.StrategyName, err)
		}
	}

	port := NewPortfolio(cfg.InitialCapital)
	costs := NewCostModel(cfg.CommissionRate, cfg.SlippageRate)
	history := make(map[string][]float64, len(cfg.Codes))

	output := &RunOutput{
		Fills:  make([]Fill, 0, 64),
		Equity: make([]EquityPoint, 0, len(axis)),
	}

	var prevDate time.Time
	for _, date := range axis {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		closes := set.Closes(date)
		if cfg.GapPolicy == GapFail {
			for _, code := range cfg.Codes {
				if _, ok := closes[code]; !ok {
					return nil, &DataGapError{Code: code, Date: date}
				}
			}
		}

		totalValue := port.MarkToMarket(closes)

		todayBars := make(map[string]market.Bar, len(closes))
		for code := range closes {
			b, _ := set.Bar(code, date)
			todayBars[code] = b
			history[code] = append(history[code], float64(b.Close))
		}
		barCtx := NewBarContext(date, todayBars, port.Snapshot(), history)

		var orders []Order
		if strat != nil {
			signals, err := strat.OnBar(barCtx)
			if err != nil {
				return nil, fmt.Errorf("策略 %s 在 %s 出错: %w",
					strat.Name(), market.FormatDate(date), err)
			}
			orders = ordersFromSignals(signals, port, closes, totalValue, costs)
		}
		if cfg.Rebalance.Due(prevDate, date) {
			rebOrders, err := cfg.Rebalance.BuildOrders(port, closes, totalValue)
			if err != nil {
				return nil, err
			}
			orders = append(orders, rebOrders...)
		}

		for _, order := range orders {
			price, ok := closes[order.Code]
			if !ok {
				// 无当日收盘价的订单无法成交，按拒绝流水入账
				fill := Fill{
					Date:           date,
					Code:           order.Code,
					Side:           order.Side,
					Quantity:       order.Quantity,
					Status:         FillStatusRejected,
					Reason:         "当日无收盘价",
					PositionSize:   port.Quantity(order.Code),
					PortfolioValue: port.Value(),
				}
				logger.Debugf("run %s %s 订单被拒: %s %s x%d (%s)",
					runID, market.FormatDate(date), fill.Side, fill.Code, fill.Quantity, fill.Reason)
				output.Fills = append(output.Fills, fill)
				continue
			}
			fill := costs.Execute(port, date, order, price)
			if fill.Status == FillStatusRejected {
				logger.Debugf("run %s %s 订单被拒: %s %s x%d (%s)",
					runID, market.FormatDate(date), fill.Side, fill.Code, fill.Quantity, fill.Reason)
			}
			output.Fills = append(output.Fills, fill)
		}

		output.Equity = append(output.Equity, EquityPoint{
			Date:          date,
			Value:         port.Value(),
			Cash:          port.Cash(),
			HoldingsValue: port.HoldingsValue(),
		})
		prevDate = date
	}

	finalValue := output.Equity[len(output.Equity)-1].Value
	summary := ComputeSummary(cfg.InitialCapital, output.Equity, output.Fills)
	output.Result = Result{
		RunID:          runID,
		StrategyName:   cfg.StrategyName,
		StartDate:      axis[0],
		EndDate:        axis[len(axis)-1],
		InitialCapital: cfg.InitialCapital,
		FinalCapital:   finalValue,
		CommissionRate: cfg.CommissionRate,
		SlippageRate:   cfg.SlippageRate,
		Summary:        summary,
		CreatedAt:      time.Now().UTC(),
	}
	logger.Infof("run %s 完成: %d 个交易日, %d 笔成交, 收益 %.4f",
		runID, len(axis), summary.TotalTrades, summary.TotalReturn)
	return output, nil
}
