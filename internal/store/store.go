package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kquant/internal/market"
	"kquant/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// SqliteStore 管理行情库：stock_info / daily_stock_data / minute_stock_data。
// 回测期间只读共享，写入仅发生在数据导入阶段。
type SqliteStore struct {
	db *gorm.DB
}

func NewSqliteStore(path string) (*SqliteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path 不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return newSqliteStore(db)
}

// NewSqliteStoreFromDB 供测试注入内存库。
func NewSqliteStoreFromDB(db *gorm.DB) (*SqliteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db 不能为空")
	}
	return newSqliteStore(db)
}

func newSqliteStore(db *gorm.DB) (*SqliteStore, error) {
	models := []interface{}{
		&model.StockInfoModel{},
		&model.DailyBarModel{},
		&model.MinuteBarModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertStockInfo 写入或更新股票基础信息。
func (s *SqliteStore) UpsertStockInfo(ctx context.Context, inst market.Instrument, extra map[string]any) error {
	if inst.Code == "" {
		return fmt.Errorf("stock code 不能为空")
	}
	rec := model.StockInfoModel{
		StockCode:  inst.Code,
		StockName:  inst.Name,
		MarketType: inst.MarketType,
		Sector:     inst.Sector,
		PER:        inst.PER,
		PBR:        inst.PBR,
		EPS:        inst.EPS,
	}
	if len(extra) > 0 {
		raw, err := json.Marshal(extra)
		if err != nil {
			return err
		}
		rec.ExtraJSON = datatypes.JSON(raw)
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stock_code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stock_name", "market_type", "sector", "per", "pbr", "eps", "extra_json", "updated_at",
		}),
	}).Create(&rec).Error
}

// GetStockInfo 返回单只股票信息。
func (s *SqliteStore) GetStockInfo(ctx context.Context, code string) (market.Instrument, error) {
	var rec model.StockInfoModel
	if err := s.db.WithContext(ctx).First(&rec, "stock_code = ?", code).Error; err != nil {
		return market.Instrument{}, err
	}
	return toInstrument(rec), nil
}

// ListStocks 返回全部股票信息（按代码升序）。
func (s *SqliteStore) ListStocks(ctx context.Context) ([]market.Instrument, error) {
	var recs []model.StockInfoModel
	if err := s.db.WithContext(ctx).Order("stock_code ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]market.Instrument, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toInstrument(rec))
	}
	return out, nil
}

func toInstrument(rec model.StockInfoModel) market.Instrument {
	return market.Instrument{
		Code:       rec.StockCode,
		Name:       rec.StockName,
		MarketType: rec.MarketType,
		Sector:     rec.Sector,
		PER:        rec.PER,
		PBR:        rec.PBR,
		EPS:        rec.EPS,
	}
}

// UpsertDailyBars 批量写入日线（同一 code+date 覆盖旧值）。
func (s *SqliteStore) UpsertDailyBars(ctx context.Context, bars []market.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	recs := make([]model.DailyBarModel, 0, len(bars))
	for _, b := range bars {
		if b.Code == "" || b.Date.IsZero() {
			return 0, fmt.Errorf("bar 缺少 code 或 date")
		}
		recs = append(recs, model.DailyBarModel{
			StockCode:    b.Code,
			Date:         market.FormatDate(b.Date),
			OpenPrice:    b.Open,
			HighPrice:    b.High,
			LowPrice:     b.Low,
			ClosePrice:   b.Close,
			Volume:       b.Volume,
			ChangeRate:   b.ChangeRate,
			TradingValue: b.TradingValue,
		})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stock_code"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"open_price", "high_price", "low_price", "close_price",
			"volume", "change_rate", "trading_value",
		}),
	}).CreateInBatches(recs, 500).Error
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// RangeDailyBars 返回某只股票 [start, end] 闭区间内的日线，按日期升序。
func (s *SqliteStore) RangeDailyBars(ctx context.Context, code string, start, end time.Time) ([]market.Bar, error) {
	if code == "" {
		return nil, fmt.Errorf("stock code 不能为空")
	}
	var recs []model.DailyBarModel
	q := s.db.WithContext(ctx).Where("stock_code = ?", code)
	if !start.IsZero() {
		q = q.Where("date >= ?", market.FormatDate(start))
	}
	if !end.IsZero() {
		q = q.Where("date <= ?", market.FormatDate(end))
	}
	if err := q.Order("date ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]market.Bar, 0, len(recs))
	for _, rec := range recs {
		d, err := market.ParseDate(rec.Date)
		if err != nil {
			return nil, fmt.Errorf("日期字段损坏 (%s %s): %w", rec.StockCode, rec.Date, err)
		}
		out = append(out, market.Bar{
			Code:         rec.StockCode,
			Date:         d,
			Open:         rec.OpenPrice,
			High:         rec.HighPrice,
			Low:          rec.LowPrice,
			Close:        rec.ClosePrice,
			Volume:       rec.Volume,
			ChangeRate:   rec.ChangeRate,
			TradingValue: rec.TradingValue,
		})
	}
	return out, nil
}

// CountDailyBars 返回某只股票已有的日线条数。
func (s *SqliteStore) CountDailyBars(ctx context.Context, code string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.DailyBarModel{}).
		Where("stock_code = ?", code).Count(&n).Error
	return n, err
}

// UpsertMinuteBars 批量写入分钟线。
func (s *SqliteStore) UpsertMinuteBars(ctx context.Context, bars []market.MinuteBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	recs := make([]model.MinuteBarModel, 0, len(bars))
	for _, b := range bars {
		recs = append(recs, model.MinuteBarModel{
			StockCode:  b.Code,
			Datetime:   b.Datetime.UTC().Format("2006-01-02 15:04:05"),
			OpenPrice:  b.Open,
			HighPrice:  b.High,
			LowPrice:   b.Low,
			ClosePrice: b.Close,
			Volume:     b.Volume,
		})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stock_code"}, {Name: "datetime"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"open_price", "high_price", "low_price", "close_price", "volume",
		}),
	}).CreateInBatches(recs, 500).Error
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}
