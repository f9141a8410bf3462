package market

// Instrument 描述一只可回测的股票。回测期间视为不可变；
// 基本面字段仅用于选股过滤，引擎本身不读取。
type Instrument struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	MarketType string  `json:"market_type"` // KOSPI / KOSDAQ
	Sector     string  `json:"sector,omitempty"`
	PER        float64 `json:"per,omitempty"`
	PBR        float64 `json:"pbr,omitempty"`
	EPS        float64 `json:"eps,omitempty"`
}
