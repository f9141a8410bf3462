package market

import "time"

// Bar 表示某只股票某个交易日的日线数据。价格以最小货币单位（韩元整数）存储。
type Bar struct {
	Code         string    `json:"code"`
	Date         time.Time `json:"date"`
	Open         int64     `json:"open"`
	High         int64     `json:"high"`
	Low          int64     `json:"low"`
	Close        int64     `json:"close"`
	Volume       int64     `json:"volume"`
	ChangeRate   float64   `json:"change_rate"`
	TradingValue int64     `json:"trading_value"`
}

// MinuteBar 为分钟级数据，形状与日线一致，仅时间粒度不同。
// 核心回测循环不消费分钟数据，仅存储层保留。
type MinuteBar struct {
	Code     string    `json:"code"`
	Datetime time.Time `json:"datetime"`
	Open     int64     `json:"open"`
	High     int64     `json:"high"`
	Low      int64     `json:"low"`
	Close    int64     `json:"close"`
	Volume   int64     `json:"volume"`
}

// DateLayout 为交易日的统一字符串格式。
const DateLayout = "2006-01-02"

// Day 将时间规整到 UTC 零点，保证同一交易日的比较与 map 键一致。
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate 解析 "2006-01-02" 形式的交易日。
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// FormatDate 输出交易日字符串。
func FormatDate(t time.Time) string {
	return Day(t).Format(DateLayout)
}
