package strategy

import (
	"fmt"

	"kquant/internal/backtest"

	"github.com/markcheno/go-talib"
)

// MACrossoverParams 为均线交叉策略参数。
// Budget 是单次建仓占组合总值的比例。
type MACrossoverParams struct {
	ShortWindow int     `mapstructure:"short_window"`
	LongWindow  int     `mapstructure:"long_window"`
	Budget      float64 `mapstructure:"budget"`
}

// MACrossover 在短均线上穿长均线（金叉）时买入、下穿（死叉）时清仓。
// 只在空仓时开仓，多只股票各自独立判断。
type MACrossover struct {
	p MACrossoverParams
}

func NewMACrossover(params map[string]any) (backtest.Strategy, error) {
	p := MACrossoverParams{ShortWindow: 5, LongWindow: 20, Budget: 0.3}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ShortWindow <= 0 || p.LongWindow <= p.ShortWindow {
		return nil, fmt.Errorf("均线窗口非法: short=%d long=%d", p.ShortWindow, p.LongWindow)
	}
	if p.Budget <= 0 || p.Budget > 1 {
		return nil, fmt.Errorf("budget 必须在 (0, 1]: %f", p.Budget)
	}
	return &MACrossover{p: p}, nil
}

func (s *MACrossover) Name() string { return "ma_crossover" }

func (s *MACrossover) WarmupBars() int { return s.p.LongWindow + 1 }

func (s *MACrossover) OnBar(ctx *backtest.BarContext) ([]backtest.Signal, error) {
	var signals []backtest.Signal
	for _, code := range sortedCodes(ctx.Bars) {
		closes := ctx.CloseHistory(code)
		if len(closes) < s.WarmupBars() {
			continue
		}
		shortMA := talib.Sma(closes, s.p.ShortWindow)
		longMA := talib.Sma(closes, s.p.LongWindow)
		cur, prev := len(closes)-1, len(closes)-2

		golden := shortMA[prev] <= longMA[prev] && shortMA[cur] > longMA[cur]
		dead := shortMA[prev] >= longMA[prev] && shortMA[cur] < longMA[cur]

		switch {
		case golden && !held(ctx.Portfolio, code):
			signals = append(signals, backtest.Signal{
				Code:   code,
				Side:   backtest.SideBuy,
				Weight: s.p.Budget,
				Reason: fmt.Sprintf("golden cross %d/%d", s.p.ShortWindow, s.p.LongWindow),
			})
		case dead && held(ctx.Portfolio, code):
			signals = append(signals, backtest.Signal{
				Code:   code,
				Side:   backtest.SideSell,
				Reason: fmt.Sprintf("dead cross %d/%d", s.p.ShortWindow, s.p.LongWindow),
			})
		}
	}
	return signals, nil
}
