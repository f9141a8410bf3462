package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"kquant/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	s, err := NewSqliteStore(filepath.Join(t.TempDir(), "market.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSqliteStore_StockInfoUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inst := market.Instrument{Code: "005930", Name: "삼성전자", MarketType: "KOSPI", Sector: "IT", PER: 12.5}
	require.NoError(t, s.UpsertStockInfo(ctx, inst, map[string]any{"listed_shares": 5969782550}))

	got, err := s.GetStockInfo(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, "삼성전자", got.Name)
	assert.Equal(t, "KOSPI", got.MarketType)

	// 重复写入覆盖旧值
	inst.Name = "Samsung Electronics"
	require.NoError(t, s.UpsertStockInfo(ctx, inst, nil))
	got, err = s.GetStockInfo(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, "Samsung Electronics", got.Name)

	list, err := s.ListStocks(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSqliteStore_DailyBarsRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mk := func(date string, close int64) market.Bar {
		d, err := market.ParseDate(date)
		require.NoError(t, err)
		return market.Bar{Code: "005930", Date: d, Open: close, High: close, Low: close, Close: close, Volume: 100}
	}
	n, err := s.UpsertDailyBars(ctx, []market.Bar{
		mk("2024-01-04", 120),
		mk("2024-01-02", 100),
		mk("2024-01-03", 110),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	start, _ := market.ParseDate("2024-01-02")
	end, _ := market.ParseDate("2024-01-03")
	bars, err := s.RangeDailyBars(ctx, "005930", start, end)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	// 按日期升序
	assert.Equal(t, int64(100), bars[0].Close)
	assert.Equal(t, int64(110), bars[1].Close)

	// 同一 code+date 覆盖
	_, err = s.UpsertDailyBars(ctx, []market.Bar{mk("2024-01-02", 105)})
	require.NoError(t, err)
	count, err := s.CountDailyBars(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	bars, err = s.RangeDailyBars(ctx, "005930", start, start)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, int64(105), bars[0].Close)
}

func TestSqliteStore_ImportDailyJSON(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("bare array", func(t *testing.T) {
		payload := []byte(`[
			{"date": "2024-01-02", "open": 100, "high": 105, "low": 99, "close": 104, "volume": 1000},
			{"date": "2024-01-03", "open": 104, "high": 110, "low": 103, "close": 108, "volume": 1200}
		]`)
		n, err := s.ImportDailyJSON(ctx, "005930", payload)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("wrapped with aliases", func(t *testing.T) {
		payload := []byte(`{"data": [
			{"trade_date": "20240104", "open_price": 108, "high_price": 112, "low_price": 107, "close_price": 111, "vol": 900}
		]}`)
		n, err := s.ImportDailyJSON(ctx, "005930", payload)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		start, _ := market.ParseDate("2024-01-04")
		bars, err := s.RangeDailyBars(ctx, "005930", start, start)
		require.NoError(t, err)
		require.Len(t, bars, 1)
		assert.Equal(t, int64(111), bars[0].Close)
		assert.Equal(t, int64(900), bars[0].Volume)
	})

	t.Run("rejects bad payload", func(t *testing.T) {
		_, err := s.ImportDailyJSON(ctx, "005930", []byte(`not json`))
		assert.Error(t, err)
		_, err = s.ImportDailyJSON(ctx, "005930", []byte(`{"other": 1}`))
		assert.Error(t, err)
		_, err = s.ImportDailyJSON(ctx, "", []byte(`[]`))
		assert.Error(t, err)
		// 收盘价非法
		_, err = s.ImportDailyJSON(ctx, "005930", []byte(`[{"date": "2024-01-05", "close": 0}]`))
		assert.Error(t, err)
	})
}

func TestSqliteStore_MinuteBars(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2024, 1, 2, 9, 1, 0, 0, time.UTC)
	n, err := s.UpsertMinuteBars(ctx, []market.MinuteBar{
		{Code: "005930", Datetime: ts, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
