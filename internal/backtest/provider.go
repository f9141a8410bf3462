package backtest

import (
	"context"
	"sort"
	"time"

	"kquant/internal/market"
)

// PriceSeriesProvider 按股票与日期区间提供升序日线。
// 实现必须只读、可被多个并发 run 安全共享。
type PriceSeriesProvider interface {
	Bars(ctx context.Context, code string, start, end time.Time) ([]market.Bar, error)
}

// DailyBarSource 是行情库暴露给回测的最小查询面。
type DailyBarSource interface {
	RangeDailyBars(ctx context.Context, code string, start, end time.Time) ([]market.Bar, error)
}

// StoreProvider 将 sqlite 行情库适配成 PriceSeriesProvider。
type StoreProvider struct {
	source DailyBarSource
}

func NewStoreProvider(source DailyBarSource) *StoreProvider {
	return &StoreProvider{source: source}
}

func (p *StoreProvider) Bars(ctx context.Context, code string, start, end time.Time) ([]market.Bar, error) {
	return p.source.RangeDailyBars(ctx, code, start, end)
}

// MemoryProvider 持有内存中的日线，测试与小规模重放用。
type MemoryProvider struct {
	bars map[string][]market.Bar
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{bars: make(map[string][]market.Bar)}
}

// Add 追加日线并保持按日期升序。
func (p *MemoryProvider) Add(bars ...market.Bar) {
	for _, b := range bars {
		b.Date = market.Day(b.Date)
		p.bars[b.Code] = append(p.bars[b.Code], b)
	}
	for code := range p.bars {
		list := p.bars[code]
		sort.Slice(list, func(i, j int) bool { return list[i].Date.Before(list[j].Date) })
		p.bars[code] = list
	}
}

func (p *MemoryProvider) Bars(_ context.Context, code string, start, end time.Time) ([]market.Bar, error) {
	var out []market.Bar
	for _, b := range p.bars[code] {
		if !start.IsZero() && b.Date.Before(market.Day(start)) {
			continue
		}
		if !end.IsZero() && b.Date.After(market.Day(end)) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
