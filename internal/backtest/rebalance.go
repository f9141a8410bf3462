package backtest

import (
	"fmt"
	"sort"
	"time"
)

// 再平衡日程。none 表示只依赖策略信号。
const (
	ScheduleNone    = "none"
	ScheduleDaily   = "daily"
	ScheduleWeekly  = "weekly"
	ScheduleMonthly = "monthly"
)

// RebalancePolicy 描述按日历的定期再平衡：在到期日把组合调整到目标权重。
// Targets 之外的持仓会被清仓。
type RebalancePolicy struct {
	Schedule string             `json:"schedule" mapstructure:"schedule"`
	Targets  map[string]float64 `json:"targets,omitempty" mapstructure:"targets"`
}

// Enabled 报告该策略是否会触发任何再平衡。
func (p RebalancePolicy) Enabled() bool {
	return p.Schedule != "" && p.Schedule != ScheduleNone && len(p.Targets) > 0
}

// Validate 校验日程与权重。权重为负或合计超过 1（容忍 1e-9 浮点误差）都非法。
func (p RebalancePolicy) Validate() error {
	switch p.Schedule {
	case "", ScheduleNone, ScheduleDaily, ScheduleWeekly, ScheduleMonthly:
	default:
		return fmt.Errorf("未知再平衡日程: %s", p.Schedule)
	}
	sum := 0.0
	for code, w := range p.Targets {
		if w < 0 {
			return &InvalidWeightError{Code: code, Weight: w}
		}
		sum += w
	}
	if sum > 1+1e-9 {
		return &InvalidWeightError{Sum: sum}
	}
	return nil
}

// Due 报告从 prev 到 cur 是否跨过了一个再平衡周期边界。
// prev 为零值（首个交易日）时视为到期。
func (p RebalancePolicy) Due(prev, cur time.Time) bool {
	if !p.Enabled() {
		return false
	}
	if prev.IsZero() {
		return true
	}
	switch p.Schedule {
	case ScheduleDaily:
		return true
	case ScheduleWeekly:
		py, pw := prev.ISOWeek()
		cy, cw := cur.ISOWeek()
		return py != cy || pw != cw
	case ScheduleMonthly:
		return prev.Year() != cur.Year() || prev.Month() != cur.Month()
	}
	return false
}

// BuildOrders 由目标权重生成当日订单：先把 Targets 外的持仓全部卖出，
// 再对每个目标股票按 floor(总值×权重/价格) 求目标股数，卖单在前、买单在后，
// 同方向内按代码升序，保证执行顺序确定。
// 缺当日收盘价的股票跳过（由 gap 策略在引擎层处理）。
func (p RebalancePolicy) BuildOrders(port *Portfolio, closes map[string]int64, totalValue int64) ([]Order, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var sells, buys []Order

	for _, code := range port.HeldCodes() {
		if _, keep := p.Targets[code]; keep {
			continue
		}
		if _, ok := closes[code]; !ok {
			continue
		}
		sells = append(sells, Order{Code: code, Side: SideSell, Quantity: port.Quantity(code)})
	}

	codes := make([]string, 0, len(p.Targets))
	for code := range p.Targets {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		price, ok := closes[code]
		if !ok || price <= 0 {
			continue
		}
		targetQty := int64(float64(totalValue) * p.Targets[code] / float64(price))
		delta := targetQty - port.Quantity(code)
		switch {
		case delta > 0:
			buys = append(buys, Order{Code: code, Side: SideBuy, Quantity: delta})
		case delta < 0:
			sells = append(sells, Order{Code: code, Side: SideSell, Quantity: -delta})
		}
	}

	sort.Slice(sells, func(i, j int) bool { return sells[i].Code < sells[j].Code })
	sort.Slice(buys, func(i, j int) bool { return buys[i].Code < buys[j].Code })
	return append(sells, buys...), nil
}

// ordersFromSignals 把策略信号换算成订单。Quantity 缺省时按 Weight 乘以
// 组合总值对收盘价取整求股数，并压到现金（含佣金）可负担的上限，
// 保证满仓权重（1.0）也能成交；卖出信号 Weight 为 0 表示清仓。
// 缺当日收盘价时权重信号被跳过，显式股数的信号保留给引擎记一笔拒绝。
// 同样保持 卖前买后、代码升序 的确定顺序。
func ordersFromSignals(signals []Signal, port *Portfolio, closes map[string]int64, totalValue int64, costs *CostModel) []Order {
	var sells, buys []Order
	for _, sig := range signals {
		price, ok := closes[sig.Code]
		if !ok || price <= 0 {
			if sig.Quantity > 0 {
				order := Order{Code: sig.Code, Side: sig.Side, Quantity: sig.Quantity}
				if sig.Side == SideSell {
					sells = append(sells, order)
				} else {
					buys = append(buys, order)
				}
			}
			continue
		}
		qty := sig.Quantity
		if qty <= 0 {
			switch sig.Side {
			case SideBuy:
				qty = int64(float64(totalValue) * sig.Weight / float64(price))
				if max := costs.MaxAffordableQuantity(port.Cash(), price); qty > max {
					qty = max
				}
			case SideSell:
				if sig.Weight <= 0 {
					qty = port.Quantity(sig.Code)
				} else {
					target := int64(float64(totalValue) * sig.Weight / float64(price))
					qty = port.Quantity(sig.Code) - target
				}
			}
		}
		if qty <= 0 {
			continue
		}
		order := Order{Code: sig.Code, Side: sig.Side, Quantity: qty}
		if sig.Side == SideSell {
			sells = append(sells, order)
		} else {
			buys = append(buys, order)
		}
	}
	sort.Slice(sells, func(i, j int) bool { return sells[i].Code < sells[j].Code })
	sort.Slice(buys, func(i, j int) bool { return buys[i].Code < buys[j].Code })
	return append(sells, buys...)
}
