package backtest

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInsufficientCash 表示买单会把现金打成负数，订单被拒绝（不允许杠杆）。
	ErrInsufficientCash = errors.New("insufficient cash")
	// ErrInsufficientShares 表示卖出数量超过持仓。
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrDataGap 表示 fail 策略下某只必需股票在某个交易日缺少日线。
	ErrDataGap = errors.New("data gap")
	// ErrInvalidWeight 表示再平衡目标权重非法（负数或合计超过 1），在下任何单前中止。
	ErrInvalidWeight = errors.New("invalid target weight")
)

// DataGapError 携带缺口明细，errors.Is(err, ErrDataGap) 成立。
type DataGapError struct {
	Code string
	Date time.Time
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("%s 在 %s 缺少日线数据", e.Code, e.Date.Format("2006-01-02"))
}

func (e *DataGapError) Unwrap() error { return ErrDataGap }

// InvalidWeightError 描述哪个权重出了问题。
type InvalidWeightError struct {
	Code   string
	Weight float64
	Sum    float64
}

func (e *InvalidWeightError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("目标权重非法: %s=%.4f", e.Code, e.Weight)
	}
	return fmt.Sprintf("目标权重合计 %.4f 超过 1", e.Sum)
}

func (e *InvalidWeightError) Unwrap() error { return ErrInvalidWeight }

// PersistenceError 包装结果落库失败；内存中的结果仍然有效，
// 写入按 run id 幂等，重试安全。
type PersistenceError struct {
	RunID string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("run %s 结果写入失败: %v", e.RunID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
