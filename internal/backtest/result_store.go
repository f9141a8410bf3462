package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kquant/internal/market"

	_ "modernc.org/sqlite"
)

// ResultStore 管理 backtest_runs/backtest_results/trade_log/equity_curve 表。
// 结果落库与行情库分离，各自独立文件。
type ResultStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewResultStore(path string) (*ResultStore, error) {
	if path == "" {
		return nil, fmt.Errorf("result store path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureResultSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &ResultStore{db: db, path: path}, nil
}

// NewResultStoreFromDB 复用外部连接，测试用（:memory: 等）。
func NewResultStoreFromDB(db *sql.DB) (*ResultStore, error) {
	if err := ensureResultSchema(db); err != nil {
		return nil, err
	}
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureResultSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id TEXT PRIMARY KEY,
			strategy TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT,
			config_json TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_results (
			result_id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL UNIQUE,
			strategy_name TEXT NOT NULL,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			initial_capital INTEGER NOT NULL,
			final_capital INTEGER NOT NULL,
			commission_rate REAL NOT NULL,
			slippage_rate REAL NOT NULL,
			total_return REAL NOT NULL,
			annualized_return REAL NOT NULL,
			max_drawdown REAL NOT NULL,
			sharpe_ratio REAL NOT NULL,
			total_trades INTEGER NOT NULL,
			win_rate REAL,
			profit_factor REAL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS trade_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			trade_date TEXT NOT NULL,
			stock_code TEXT NOT NULL,
			side TEXT NOT NULL,
			price INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			commission INTEGER NOT NULL,
			slippage INTEGER NOT NULL,
			pnl INTEGER NOT NULL,
			position_size INTEGER NOT NULL,
			portfolio_value INTEGER NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS equity_curve (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			trade_date TEXT NOT NULL,
			value INTEGER NOT NULL,
			cash INTEGER NOT NULL,
			holdings_value INTEGER NOT NULL,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON trade_log(run_id, trade_date);`,
		`CREATE INDEX IF NOT EXISTS idx_equity_run ON equity_curve(run_id, trade_date);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun 写入一条 run 记录（pending 状态）。
func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtest_runs (id, strategy, status, message, config_json, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.Status, run.Message, string(cfgJSON), now, now, nullableTime(run.CompletedAt))
	return err
}

// UpdateRunStatus 更新状态与提示；进入终态时记录完成时间。
func (s *ResultStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	now := time.Now().UnixMilli()
	var completed interface{}
	if status == RunStatusDone || status == RunStatusFailed {
		completed = now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE backtest_runs
		SET status=?, message=?, updated_at=?, completed_at=CASE WHEN ? IS NULL THEN completed_at ELSE ? END
		WHERE id=?`, status, message, now, completed, completed, id)
	return err
}

// SaveResult 在单个事务内写入结果、成交流水与资金曲线。
// 按 run_id 幂等：先删除同一 run 的旧数据（级联），失败整体回滚，重试安全。
func (s *ResultStore) SaveResult(ctx context.Context, out *RunOutput) error {
	runID := out.Result.RunID
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{RunID: runID, Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM backtest_results WHERE run_id=?`, runID); err != nil {
		return &PersistenceError{RunID: runID, Err: err}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM trade_log WHERE run_id=?`, runID); err != nil {
		return &PersistenceError{RunID: runID, Err: err}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM equity_curve WHERE run_id=?`, runID); err != nil {
		return &PersistenceError{RunID: runID, Err: err}
	}

	r := out.Result
	res, err := tx.ExecContext(ctx, `
		INSERT INTO backtest_results
			(run_id, strategy_name, start_date, end_date, initial_capital, final_capital,
			 commission_rate, slippage_rate, total_return, annualized_return, max_drawdown,
			 sharpe_ratio, total_trades, win_rate, profit_factor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.StrategyName, market.FormatDate(r.StartDate), market.FormatDate(r.EndDate),
		r.InitialCapital, r.FinalCapital, r.CommissionRate, r.SlippageRate,
		r.Summary.TotalReturn, r.Summary.AnnualizedReturn, r.Summary.MaxDrawdown,
		r.Summary.SharpeRatio, r.Summary.TotalTrades,
		nullIfSentinel(r.Summary.WinRate), nullIfSentinel(r.Summary.ProfitFactor),
		time.Now().UnixMilli())
	if err != nil {
		return &PersistenceError{RunID: runID, Err: err}
	}
	if id, err := res.LastInsertId(); err == nil {
		out.Result.ResultID = id
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trade_log
			(run_id, trade_date, stock_code, side, price, quantity, commission, slippage,
			 pnl, position_size, portfolio_value, status, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return &PersistenceError{RunID: runID, Err: err}
	}
	defer tradeStmt.Close()
	for _, f := range out.Fills {
		if _, err := tradeStmt.ExecContext(ctx, runID, market.FormatDate(f.Date), f.Code,
			string(f.Side), f.Price, f.Quantity, f.Commission, f.Slippage,
			f.PnL, f.PositionSize, f.PortfolioValue, f.Status, f.Reason); err != nil {
			return &PersistenceError{RunID: runID, Err: err}
		}
	}

	equityStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO equity_curve (run_id, trade_date, value, cash, holdings_value)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return &PersistenceError{RunID: runID, Err: err}
	}
	defer equityStmt.Close()
	for _, p := range out.Equity {
		if _, err := equityStmt.ExecContext(ctx, runID, market.FormatDate(p.Date),
			p.Value, p.Cash, p.HoldingsValue); err != nil {
			return &PersistenceError{RunID: runID, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{RunID: runID, Err: err}
	}
	return nil
}

// ListRuns 按创建时间倒序返回最近的 run。
func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, status, message, config_json, created_at, updated_at, completed_at
		FROM backtest_runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, run)
	}
	return list, rows.Err()
}

func (s *ResultStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, status, message, config_json, created_at, updated_at, completed_at
		FROM backtest_runs WHERE id=?`, id)
	return scanRun(row)
}

// GetResult 返回某次 run 的结果汇总；未完成的 run 返回 sql.ErrNoRows。
func (s *ResultStore) GetResult(ctx context.Context, runID string) (Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT result_id, run_id, strategy_name, start_date, end_date, initial_capital, final_capital,
		       commission_rate, slippage_rate, total_return, annualized_return, max_drawdown,
		       sharpe_ratio, total_trades, win_rate, profit_factor, created_at
		FROM backtest_results WHERE run_id=?`, runID)
	var r Result
	var startStr, endStr string
	var winRate, profitFactor sql.NullFloat64
	var created int64
	if err := row.Scan(&r.ResultID, &r.RunID, &r.StrategyName, &startStr, &endStr,
		&r.InitialCapital, &r.FinalCapital, &r.CommissionRate, &r.SlippageRate,
		&r.Summary.TotalReturn, &r.Summary.AnnualizedReturn, &r.Summary.MaxDrawdown,
		&r.Summary.SharpeRatio, &r.Summary.TotalTrades, &winRate, &profitFactor, &created); err != nil {
		return Result{}, err
	}
	r.StartDate, _ = market.ParseDate(startStr)
	r.EndDate, _ = market.ParseDate(endStr)
	r.Summary.WinRate = floatOrSentinel(winRate)
	r.Summary.ProfitFactor = floatOrSentinel(profitFactor)
	r.CreatedAt = timeFromMillis(created)
	return r, nil
}

// ListTrades 按日期与写入顺序返回某次 run 的成交流水。
func (s *ResultStore) ListTrades(ctx context.Context, runID string, limit int) ([]Fill, error) {
	if limit <= 0 || limit > 2000 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_date, stock_code, side, price, quantity, commission, slippage,
		       pnl, position_size, portfolio_value, status, reason
		FROM trade_log
		WHERE run_id=?
		ORDER BY id ASC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Fill
	for rows.Next() {
		var f Fill
		var dateStr, side string
		var reason sql.NullString
		if err := rows.Scan(&dateStr, &f.Code, &side, &f.Price, &f.Quantity, &f.Commission,
			&f.Slippage, &f.PnL, &f.PositionSize, &f.PortfolioValue, &f.Status, &reason); err != nil {
			return nil, err
		}
		f.Date, _ = market.ParseDate(dateStr)
		f.Side = Side(side)
		f.Reason = reason.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListEquity 按日期升序返回某次 run 的资金曲线。
func (s *ResultStore) ListEquity(ctx context.Context, runID string, limit int) ([]EquityPoint, error) {
	if limit <= 0 || limit > 10000 {
		limit = 2000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_date, value, cash, holdings_value
		FROM equity_curve
		WHERE run_id=?
		ORDER BY trade_date ASC, id ASC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EquityPoint
	for rows.Next() {
		var p EquityPoint
		var dateStr string
		if err := rows.Scan(&dateStr, &p.Value, &p.Cash, &p.HoldingsValue); err != nil {
			return nil, err
		}
		p.Date, _ = market.ParseDate(dateStr)
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var message sql.NullString
	var cfgStr string
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64
	if err := row.Scan(&run.ID, &run.Strategy, &run.Status, &message, &cfgStr,
		&createdAt, &updatedAt, &completedAt); err != nil {
		return Run{}, err
	}
	run.Message = message.String
	run.CreatedAt = timeFromMillis(createdAt)
	run.UpdatedAt = timeFromMillis(updatedAt)
	if completedAt.Valid {
		run.CompletedAt = timeFromMillis(completedAt.Int64)
	}
	if err := json.Unmarshal([]byte(cfgStr), &run.Config); err != nil {
		return Run{}, err
	}
	return run, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

// nullIfSentinel 把哨兵（-1）与非有限值落库为 NULL。
func nullIfSentinel(v float64) interface{} {
	if v == -1 || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func floatOrSentinel(v sql.NullFloat64) float64 {
	if !v.Valid {
		return -1
	}
	return v.Float64
}

func timeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond)).UTC()
}
