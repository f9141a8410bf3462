package backtest

import (
	"sort"
	"time"

	"kquant/internal/market"
)

// seriesSet 把多只股票的日线整理成 按日期可查 的结构，
// 并按 union / intersection 规则合并出回测的交易日轴。
type seriesSet struct {
	byCode map[string]map[int64]market.Bar
	axis   []time.Time
}

func newSeriesSet(series map[string][]market.Bar, mode DateAxis) *seriesSet {
	set := &seriesSet{byCode: make(map[string]map[int64]market.Bar, len(series))}
	counts := make(map[int64]int)
	for code, bars := range series {
		idx := make(map[int64]market.Bar, len(bars))
		for _, b := range bars {
			day := market.Day(b.Date).Unix()
			if _, dup := idx[day]; dup {
				continue
			}
			idx[day] = b
			counts[day]++
		}
		set.byCode[code] = idx
	}

	need := 1
	if mode == AxisIntersection {
		need = len(series)
	}
	days := make([]int64, 0, len(counts))
	for day, n := range counts {
		if n >= need {
			days = append(days, day)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	set.axis = make([]time.Time, len(days))
	for i, day := range days {
		set.axis[i] = time.Unix(day, 0).UTC()
	}
	return set
}

// Axis 返回合并后的交易日轴，严格升序且无重复。
func (s *seriesSet) Axis() []time.Time { return s.axis }

// Bar 返回某只股票在某个交易日的日线。
func (s *seriesSet) Bar(code string, date time.Time) (market.Bar, bool) {
	idx, ok := s.byCode[code]
	if !ok {
		return market.Bar{}, false
	}
	b, ok := idx[market.Day(date).Unix()]
	return b, ok
}

// Closes 返回某个交易日所有有日线的股票收盘价。
func (s *seriesSet) Closes(date time.Time) map[string]int64 {
	day := market.Day(date).Unix()
	closes := make(map[string]int64)
	for code, idx := range s.byCode {
		if b, ok := idx[day]; ok {
			closes[code] = b.Close
		}
	}
	return closes
}
