package strategy

import (
	"fmt"
	"sort"

	"kquant/internal/backtest"
	"kquant/internal/market"

	"github.com/mitchellh/mapstructure"
)

// decodeParams 把松散的参数 map 解到强类型结构，数字/字符串宽松转换。
func decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("策略参数解析失败: %w", err)
	}
	return nil
}

// sortedCodes 返回当日有日线的代码，升序，保证信号顺序确定。
func sortedCodes(bars map[string]market.Bar) []string {
	codes := make([]string, 0, len(bars))
	for code := range bars {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// held 报告快照中是否持有某只股票。
func held(snap backtest.PortfolioSnapshot, code string) bool {
	pos, ok := snap.Positions[code]
	return ok && pos.Quantity > 0
}
