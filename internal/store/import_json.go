package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kquant/internal/market"

	"github.com/tidwall/gjson"
)

// 不同券商导出的日线 JSON 字段名并不统一，这里按别名依次取值。
var (
	dateKeys   = []string{"date", "trade_date", "dt"}
	openKeys   = []string{"open", "open_price", "o"}
	highKeys   = []string{"high", "high_price", "h"}
	lowKeys    = []string{"low", "low_price", "l"}
	closeKeys  = []string{"close", "close_price", "c"}
	volumeKeys = []string{"volume", "vol", "v"}
)

// ImportDailyJSON 解析券商导出的日线 JSON 并入库。
// 顶层既可以是数组，也可以是 {"data": [...]} 或 {"bars": [...]} 包装。
func (s *SqliteStore) ImportDailyJSON(ctx context.Context, code string, payload []byte) (int, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, fmt.Errorf("stock code 不能为空")
	}
	if !gjson.ValidBytes(payload) {
		return 0, fmt.Errorf("JSON 无法解析")
	}
	root := gjson.ParseBytes(payload)
	rows := root
	if !root.IsArray() {
		for _, key := range []string{"data", "bars", "rows"} {
			if v := root.Get(key); v.IsArray() {
				rows = v
				break
			}
		}
	}
	if !rows.IsArray() {
		return 0, fmt.Errorf("未找到日线数组字段")
	}

	var bars []market.Bar
	var parseErr error
	rows.ForEach(func(_, row gjson.Result) bool {
		bar, err := parseDailyRow(code, row)
		if err != nil {
			parseErr = err
			return false
		}
		bars = append(bars, bar)
		return true
	})
	if parseErr != nil {
		return 0, parseErr
	}
	return s.UpsertDailyBars(ctx, bars)
}

func parseDailyRow(code string, row gjson.Result) (market.Bar, error) {
	rawDate := firstString(row, dateKeys)
	if rawDate == "" {
		return market.Bar{}, fmt.Errorf("记录缺少日期字段: %s", row.Raw)
	}
	date, err := parseFlexibleDate(rawDate)
	if err != nil {
		return market.Bar{}, fmt.Errorf("日期无法解析 (%s): %w", rawDate, err)
	}
	bar := market.Bar{
		Code:         code,
		Date:         date,
		Open:         firstInt(row, openKeys),
		High:         firstInt(row, highKeys),
		Low:          firstInt(row, lowKeys),
		Close:        firstInt(row, closeKeys),
		Volume:       firstInt(row, volumeKeys),
		ChangeRate:   row.Get("change_rate").Float(),
		TradingValue: row.Get("trading_value").Int(),
	}
	if bar.Close <= 0 {
		return market.Bar{}, fmt.Errorf("收盘价非法 (%s %s): %d", code, rawDate, bar.Close)
	}
	return bar, nil
}

func firstString(row gjson.Result, keys []string) string {
	for _, k := range keys {
		if v := row.Get(k); v.Exists() {
			return strings.TrimSpace(v.String())
		}
	}
	return ""
}

func firstInt(row gjson.Result, keys []string) int64 {
	for _, k := range keys {
		if v := row.Get(k); v.Exists() {
			return v.Int()
		}
	}
	return 0
}

func parseFlexibleDate(s string) (time.Time, error) {
	for _, layout := range []string{market.DateLayout, "20060102", "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return market.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("不支持的日期格式")
}
