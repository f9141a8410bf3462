package strategy

import (
	"fmt"

	"kquant/internal/backtest"
)

// BuyHoldParams 为买入持有策略参数。Budget 是全部建仓占组合总值的比例，
// 平均分给当日可交易的股票。
type BuyHoldParams struct {
	Budget float64 `mapstructure:"budget"`
}

// BuyHold 在每只股票首个有日线的交易日买入并持有到结束，基准策略。
// 是否建仓看当前持仓而非历史信号，被拒绝的买入会在下个交易日重试。
type BuyHold struct {
	p BuyHoldParams
}

func NewBuyHold(params map[string]any) (backtest.Strategy, error) {
	p := BuyHoldParams{Budget: 1.0}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Budget <= 0 || p.Budget > 1 {
		return nil, fmt.Errorf("budget 必须在 (0, 1]: %f", p.Budget)
	}
	return &BuyHold{p: p}, nil
}

func (s *BuyHold) Name() string { return "buy_hold" }

func (s *BuyHold) WarmupBars() int { return 1 }

func (s *BuyHold) OnBar(ctx *backtest.BarContext) ([]backtest.Signal, error) {
	var pending []string
	for _, code := range sortedCodes(ctx.Bars) {
		if !held(ctx.Portfolio, code) {
			pending = append(pending, code)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	// 剩余预算按未建仓股票数均摊
	weight := s.p.Budget / float64(len(pending))
	var signals []backtest.Signal
	for _, code := range pending {
		signals = append(signals, backtest.Signal{
			Code:   code,
			Side:   backtest.SideBuy,
			Weight: weight,
			Reason: "initial buy and hold",
		})
	}
	return signals, nil
}
