package config

// Config 汇总应用全部配置。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Data     DataConfig     `mapstructure:"data"`
	Backtest BacktestConfig `mapstructure:"backtest"`
}

// AppConfig 为进程级配置。
type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
	HTTPAddr string `mapstructure:"http_addr"`
}

// DataConfig 指定存储位置。
type DataConfig struct {
	MarketDB    string `mapstructure:"market_db"`
	ResultsDB   string `mapstructure:"results_db"`
	PresetsPath string `mapstructure:"presets_path"`
}

// BacktestConfig 为回测引擎的全局默认值；单次 run 可覆盖。
// 成本参数不读全局进程状态，构造时显式传入，保证并行多 run 安全。
type BacktestConfig struct {
	InitialCapital int64   `mapstructure:"initial_capital"`
	CommissionRate float64 `mapstructure:"commission_rate"`
	SlippageRate   float64 `mapstructure:"slippage_rate"`
	MaxConcurrent  int     `mapstructure:"max_concurrent"`
	GapPolicy      string  `mapstructure:"gap_policy"` // carry / fail
	DateAxis       string  `mapstructure:"date_axis"`  // union / intersection
}
