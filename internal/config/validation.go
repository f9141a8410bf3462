package config

import "fmt"

func validate(c *Config) error {
	if c.Backtest.CommissionRate < 0 {
		return fmt.Errorf("backtest.commission_rate 不能为负: %f", c.Backtest.CommissionRate)
	}
	if c.Backtest.SlippageRate < 0 {
		return fmt.Errorf("backtest.slippage_rate 不能为负: %f", c.Backtest.SlippageRate)
	}
	switch c.Backtest.GapPolicy {
	case "carry", "fail":
	default:
		return fmt.Errorf("backtest.gap_policy 非法: %s（应为 carry 或 fail）", c.Backtest.GapPolicy)
	}
	switch c.Backtest.DateAxis {
	case "union", "intersection":
	default:
		return fmt.Errorf("backtest.date_axis 非法: %s（应为 union 或 intersection）", c.Backtest.DateAxis)
	}
	return nil
}
