package strategy

import (
	"fmt"

	"kquant/internal/backtest"

	"github.com/markcheno/go-talib"
)

// RSIReversalParams 为 RSI 反转策略参数。
type RSIReversalParams struct {
	Period     int     `mapstructure:"period"`
	Oversold   float64 `mapstructure:"oversold"`
	Overbought float64 `mapstructure:"overbought"`
	Budget     float64 `mapstructure:"budget"`
}

// RSIReversal 在 RSI 跌破超卖线时买入、突破超买线时清仓。
type RSIReversal struct {
	p RSIReversalParams
}

func NewRSIReversal(params map[string]any) (backtest.Strategy, error) {
	p := RSIReversalParams{Period: 14, Oversold: 30, Overbought: 70, Budget: 0.3}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Period < 2 {
		return nil, fmt.Errorf("period 过小: %d", p.Period)
	}
	if p.Oversold >= p.Overbought {
		return nil, fmt.Errorf("oversold %.1f 必须小于 overbought %.1f", p.Oversold, p.Overbought)
	}
	if p.Budget <= 0 || p.Budget > 1 {
		return nil, fmt.Errorf("budget 必须在 (0, 1]: %f", p.Budget)
	}
	return &RSIReversal{p: p}, nil
}

func (s *RSIReversal) Name() string { return "rsi_reversal" }

func (s *RSIReversal) WarmupBars() int { return s.p.Period + 1 }

func (s *RSIReversal) OnBar(ctx *backtest.BarContext) ([]backtest.Signal, error) {
	var signals []backtest.Signal
	for _, code := range sortedCodes(ctx.Bars) {
		closes := ctx.CloseHistory(code)
		if len(closes) < s.WarmupBars() {
			continue
		}
		rsi := talib.Rsi(closes, s.p.Period)
		cur := rsi[len(rsi)-1]

		switch {
		case cur < s.p.Oversold && !held(ctx.Portfolio, code):
			signals = append(signals, backtest.Signal{
				Code:   code,
				Side:   backtest.SideBuy,
				Weight: s.p.Budget,
				Reason: fmt.Sprintf("RSI %.1f < %.1f", cur, s.p.Oversold),
			})
		case cur > s.p.Overbought && held(ctx.Portfolio, code):
			signals = append(signals, backtest.Signal{
				Code:   code,
				Side:   backtest.SideSell,
				Reason: fmt.Sprintf("RSI %.1f > %.1f", cur, s.p.Overbought),
			})
		}
	}
	return signals, nil
}
