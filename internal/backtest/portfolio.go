package backtest

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// positionState 为单只股票的持仓。数量只增不为负（仅做多）；
// 平均成本用 decimal 精确维护，加权平均法。
type positionState struct {
	qty       int64
	avgCost   decimal.Decimal
	lastClose int64
}

// Portfolio 持有现金与持仓，是账务的唯一事实来源；
// 状态只通过 Apply 的成交记录变更。
type Portfolio struct {
	initial   int64
	cash      int64
	positions map[string]*positionState
}

func NewPortfolio(initialCapital int64) *Portfolio {
	return &Portfolio{
		initial:   initialCapital,
		cash:      initialCapital,
		positions: make(map[string]*positionState),
	}
}

func (p *Portfolio) Cash() int64 { return p.cash }

// Quantity 返回某只股票当前持仓数量。
func (p *Portfolio) Quantity(code string) int64 {
	if pos, ok := p.positions[code]; ok {
		return pos.qty
	}
	return 0
}

// Apply 将一笔成交落账，并补全 Fill 的 PnL 与 PositionSize。
// 买单现金不足返回 ErrInsufficientCash，卖单持仓不足返回 ErrInsufficientShares；
// 两种情况下组合状态都不发生任何变化。
func (p *Portfolio) Apply(f *Fill) error {
	if f.Quantity <= 0 || f.Price <= 0 {
		return fmt.Errorf("fill 数量/价格非法: qty=%d price=%d", f.Quantity, f.Price)
	}
	switch f.Side {
	case SideBuy:
		cost := f.Price*f.Quantity + f.Commission
		if cost > p.cash {
			return fmt.Errorf("%w: 需要 %d, 现金 %d", ErrInsufficientCash, cost, p.cash)
		}
		p.cash -= cost
		pos, ok := p.positions[f.Code]
		if !ok {
			pos = &positionState{}
			p.positions[f.Code] = pos
		}
		// 加权平均成本，佣金不计入成本基数（与成交流水分开核算）
		oldValue := pos.avgCost.Mul(decimal.NewFromInt(pos.qty))
		newValue := oldValue.Add(decimal.NewFromInt(f.Price * f.Quantity))
		pos.qty += f.Quantity
		pos.avgCost = newValue.Div(decimal.NewFromInt(pos.qty))
		pos.lastClose = f.Price
		f.PnL = 0
		f.PositionSize = pos.qty
	case SideSell:
		pos, ok := p.positions[f.Code]
		if !ok || pos.qty < f.Quantity {
			held := int64(0)
			if ok {
				held = pos.qty
			}
			return fmt.Errorf("%w: %s 持仓 %d, 卖出 %d", ErrInsufficientShares, f.Code, held, f.Quantity)
		}
		proceeds := f.Price*f.Quantity - f.Commission
		p.cash += proceeds
		costBasis := pos.avgCost.Mul(decimal.NewFromInt(f.Quantity))
		pnl := decimal.NewFromInt(proceeds).Sub(costBasis)
		f.PnL = pnl.Round(0).IntPart()
		pos.qty -= f.Quantity
		if pos.qty == 0 {
			delete(p.positions, f.Code)
			f.PositionSize = 0
		} else {
			// 卖出不改变剩余持仓的平均成本
			f.PositionSize = pos.qty
		}
	default:
		return fmt.Errorf("未知交易方向: %s", f.Side)
	}
	return nil
}

// MarkToMarket 用当日收盘价刷新持仓市值；缺价的持仓沿用上一个收盘价。
// 返回刷新后的组合总值。
func (p *Portfolio) MarkToMarket(closes map[string]int64) int64 {
	for code, pos := range p.positions {
		if c, ok := closes[code]; ok && c > 0 {
			pos.lastClose = c
		}
	}
	return p.Value()
}

// Value 返回现金 + 持仓按最近收盘价的市值。
func (p *Portfolio) Value() int64 {
	total := p.cash
	for _, pos := range p.positions {
		total += pos.qty * pos.lastClose
	}
	return total
}

// HoldingsValue 返回持仓市值部分。
func (p *Portfolio) HoldingsValue() int64 {
	return p.Value() - p.cash
}

// UnrealizedPnL 返回某只股票的浮动盈亏（按最近收盘价）。
func (p *Portfolio) UnrealizedPnL(code string) int64 {
	pos, ok := p.positions[code]
	if !ok {
		return 0
	}
	marketValue := decimal.NewFromInt(pos.qty * pos.lastClose)
	costBasis := pos.avgCost.Mul(decimal.NewFromInt(pos.qty))
	return marketValue.Sub(costBasis).Round(0).IntPart()
}

// PositionView 为对外暴露的持仓快照。
type PositionView struct {
	Code        string  `json:"code"`
	Quantity    int64   `json:"quantity"`
	AvgCost     float64 `json:"avg_cost"`
	LastClose   int64   `json:"last_close"`
	MarketValue int64   `json:"market_value"`
}

// PortfolioSnapshot 提供给策略与再平衡器的只读视图。
type PortfolioSnapshot struct {
	Cash      int64                   `json:"cash"`
	Value     int64                   `json:"value"`
	Positions map[string]PositionView `json:"positions"`
}

// Snapshot 生成当前组合的只读快照（按代码稳定）。
func (p *Portfolio) Snapshot() PortfolioSnapshot {
	snap := PortfolioSnapshot{
		Cash:      p.cash,
		Value:     p.Value(),
		Positions: make(map[string]PositionView, len(p.positions)),
	}
	for code, pos := range p.positions {
		avg, _ := pos.avgCost.Float64()
		snap.Positions[code] = PositionView{
			Code:        code,
			Quantity:    pos.qty,
			AvgCost:     avg,
			LastClose:   pos.lastClose,
			MarketValue: pos.qty * pos.lastClose,
		}
	}
	return snap
}

// HeldCodes 返回当前持仓代码（升序）。
func (p *Portfolio) HeldCodes() []string {
	codes := make([]string, 0, len(p.positions))
	for code := range p.positions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
