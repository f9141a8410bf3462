package backtest

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostModel 负责把市价单换算成含滑点的成交价与佣金。
// 所有中间运算用 decimal，最终四舍五入到整数货币单位。
type CostModel struct {
	commissionRate decimal.Decimal
	slippageRate   decimal.Decimal
}

func NewCostModel(commissionRate, slippageRate float64) *CostModel {
	return &CostModel{
		commissionRate: decimal.NewFromFloat(commissionRate),
		slippageRate:   decimal.NewFromFloat(slippageRate),
	}
}

// FillPrice 返回含滑点的成交价：买单向上、卖单向下偏移 slippageRate。
func (m *CostModel) FillPrice(side Side, closePrice int64) int64 {
	base := decimal.NewFromInt(closePrice)
	offset := base.Mul(m.slippageRate)
	var adjusted decimal.Decimal
	if side == SideBuy {
		adjusted = base.Add(offset)
	} else {
		adjusted = base.Sub(offset)
	}
	price := adjusted.Round(0).IntPart()
	if price < 1 {
		price = 1
	}
	return price
}

// Commission 按成交金额计算佣金，四舍五入到整数。
func (m *CostModel) Commission(price, quantity int64) int64 {
	gross := decimal.NewFromInt(price * quantity)
	return gross.Mul(m.commissionRate).Round(0).IntPart()
}

// MaxAffordableQuantity 返回 cash 可以负担的最大买入股数，
// 成交价与佣金都计算在内。买不起一股时返回 0。
func (m *CostModel) MaxAffordableQuantity(cash, closePrice int64) int64 {
	if cash <= 0 || closePrice <= 0 {
		return 0
	}
	price := m.FillPrice(SideBuy, closePrice)
	unit := decimal.NewFromInt(price).Mul(decimal.NewFromInt(1).Add(m.commissionRate))
	qty := decimal.NewFromInt(cash).Div(unit).IntPart()
	// 佣金四舍五入可能让估算值仍然超支，向下修正
	for qty > 0 && price*qty+m.Commission(price, qty) > cash {
		qty--
	}
	return qty
}

// Execute 按当日收盘价执行一笔市价单并落账。
// 全额成交或全额拒绝，不做部分成交；被拒订单返回 Status=rejected 的 Fill，
// 组合状态保持不变。
func (m *CostModel) Execute(p *Portfolio, date time.Time, order Order, closePrice int64) Fill {
	price := m.FillPrice(order.Side, closePrice)
	commission := m.Commission(price, order.Quantity)
	slipPerShare := price - closePrice
	if slipPerShare < 0 {
		slipPerShare = -slipPerShare
	}
	fill := Fill{
		Date:       date,
		Code:       order.Code,
		Side:       order.Side,
		Price:      price,
		Quantity:   order.Quantity,
		Commission: commission,
		Slippage:   slipPerShare * order.Quantity,
		Status:     FillStatusFilled,
	}
	if err := p.Apply(&fill); err != nil {
		fill.Status = FillStatusRejected
		fill.Reason = err.Error()
		fill.Commission = 0
		fill.Slippage = 0
		fill.PnL = 0
		fill.PositionSize = p.Quantity(order.Code)
	}
	fill.PortfolioValue = p.Value()
	return fill
}
