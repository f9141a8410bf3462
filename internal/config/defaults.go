package config

// 原始系统的默认成本模型：单边佣金 0.015%，滑点 0.01%。
const (
	defaultInitialCapital = int64(100_000_000)
	defaultCommissionRate = 0.00015
	defaultSlippageRate   = 0.0001
)

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":9981"
	}
	if c.Data.MarketDB == "" {
		c.Data.MarketDB = "data/market.db"
	}
	if c.Data.ResultsDB == "" {
		c.Data.ResultsDB = "data/results.db"
	}
	if c.Backtest.InitialCapital <= 0 {
		c.Backtest.InitialCapital = defaultInitialCapital
	}
	if c.Backtest.CommissionRate == 0 {
		c.Backtest.CommissionRate = defaultCommissionRate
	}
	if c.Backtest.SlippageRate == 0 {
		c.Backtest.SlippageRate = defaultSlippageRate
	}
	if c.Backtest.MaxConcurrent <= 0 {
		c.Backtest.MaxConcurrent = 2
	}
	if c.Backtest.GapPolicy == "" {
		c.Backtest.GapPolicy = "carry"
	}
	if c.Backtest.DateAxis == "" {
		c.Backtest.DateAxis = "union"
	}
}
