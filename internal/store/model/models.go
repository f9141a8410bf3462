package model

import (
	"time"

	"gorm.io/datatypes"
)

// StockInfoModel 对应 stock_info 表。
type StockInfoModel struct {
	StockCode  string         `gorm:"column:stock_code;primaryKey;size:16"`
	StockName  string         `gorm:"column:stock_name;size:64;not null"`
	MarketType string         `gorm:"column:market_type;size:16;index"`
	Sector     string         `gorm:"column:sector;size:64"`
	PER        float64        `gorm:"column:per"`
	PBR        float64        `gorm:"column:pbr"`
	EPS        float64        `gorm:"column:eps"`
	ExtraJSON  datatypes.JSON `gorm:"column:extra_json;type:TEXT"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (StockInfoModel) TableName() string { return "stock_info" }

// DailyBarModel 对应 daily_stock_data 表，主输入数据。
// (stock_code, date) 唯一；date 存 "2006-01-02" 字符串，排序即日期序。
type DailyBarModel struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	StockCode    string `gorm:"column:stock_code;size:16;uniqueIndex:uniq_daily_code_date,priority:1;not null"`
	Date         string `gorm:"column:date;size:10;uniqueIndex:uniq_daily_code_date,priority:2;not null"`
	OpenPrice    int64  `gorm:"column:open_price;not null"`
	HighPrice    int64  `gorm:"column:high_price;not null"`
	LowPrice     int64  `gorm:"column:low_price;not null"`
	ClosePrice   int64  `gorm:"column:close_price;not null"`
	Volume       int64  `gorm:"column:volume;not null"`
	ChangeRate   float64 `gorm:"column:change_rate"`
	TradingValue int64  `gorm:"column:trading_value"`
}

func (DailyBarModel) TableName() string { return "daily_stock_data" }

// MinuteBarModel 对应 minute_stock_data 表。日线回测不读取，仅保留存储形状。
type MinuteBarModel struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	StockCode  string `gorm:"column:stock_code;size:16;uniqueIndex:uniq_minute_code_dt,priority:1;not null"`
	Datetime   string `gorm:"column:datetime;size:19;uniqueIndex:uniq_minute_code_dt,priority:2;not null"`
	OpenPrice  int64  `gorm:"column:open_price;not null"`
	HighPrice  int64  `gorm:"column:high_price;not null"`
	LowPrice   int64  `gorm:"column:low_price;not null"`
	ClosePrice int64  `gorm:"column:close_price;not null"`
	Volume     int64  `gorm:"column:volume;not null"`
}

func (MinuteBarModel) TableName() string { return "minute_stock_data" }
