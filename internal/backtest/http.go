package backtest

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"kquant/internal/market"

	"github.com/gin-gonic/gin"
)

// MarketData 是 HTTP 层依赖的行情库查询面，由 store.SqliteStore 实现。
type MarketData interface {
	ListStocks(ctx context.Context) ([]market.Instrument, error)
	GetStockInfo(ctx context.Context, code string) (market.Instrument, error)
	RangeDailyBars(ctx context.Context, code string, start, end time.Time) ([]market.Bar, error)
	CountDailyBars(ctx context.Context, code string) (int64, error)
	ImportDailyJSON(ctx context.Context, code string, payload []byte) (int, error)
}

// HTTPServer 提供 Gin 接口：行情浏览/导入、发起回测、查询结果。
type HTTPServer struct {
	addr    string
	data    MarketData
	sim     *Simulator
	results *ResultStore
	factory StrategyFactory
	router  *gin.Engine
}

type HTTPConfig struct {
	Addr      string
	Data      MarketData
	Simulator *Simulator
	Results   *ResultStore
	Factory   StrategyFactory
}

func NewHTTPServer(cfg HTTPConfig) (*HTTPServer, error) {
	if cfg.Simulator == nil {
		return nil, errors.New("simulator 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9981"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &HTTPServer{
		addr:    cfg.Addr,
		data:    cfg.Data,
		sim:     cfg.Simulator,
		results: cfg.Results,
		factory: cfg.Factory,
		router:  router,
	}
	s.registerRoutes()
	return s, nil
}

// Router 暴露内部路由，测试用。
func (s *HTTPServer) Router() *gin.Engine { return s.router }

func (s *HTTPServer) registerRoutes() {
	api := s.router.Group("/api/backtest")
	api.GET("/strategies", s.handleStrategies)
	api.POST("/runs", s.handleRunStart)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/trades", s.handleRunTrades)
	api.GET("/runs/:id/equity", s.handleRunEquity)

	data := s.router.Group("/api/data")
	data.GET("/stocks", s.handleStocks)
	data.GET("/stocks/:code", s.handleStockDetail)
	data.GET("/stocks/:code/bars", s.handleStockBars)
	data.POST("/stocks/:code/bars", s.handleImportBars)
}

func (s *HTTPServer) handleStrategies(c *gin.Context) {
	if s.factory == nil {
		c.JSON(http.StatusOK, gin.H{"strategies": []string{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": s.factory.Names()})
}

func (s *HTTPServer) handleRunStart(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.sim.StartRun(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *HTTPServer) handleRunList(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.results.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *HTTPServer) handleRunDetail(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	id := c.Param("id")
	run, err := s.results.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	payload := gin.H{"run": run}
	result, err := s.results.GetResult(c.Request.Context(), id)
	if err == nil {
		payload["result"] = result
	} else if !errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, payload)
}

func (s *HTTPServer) handleRunTrades(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))
	trades, err := s.results.ListTrades(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *HTTPServer) handleRunEquity(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "2000"))
	equity, err := s.results.ListEquity(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": equity})
}

func (s *HTTPServer) handleStocks(c *gin.Context) {
	if s.data == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "行情库未启用"})
		return
	}
	stocks, err := s.data.ListStocks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stocks": stocks})
}

func (s *HTTPServer) handleStockDetail(c *gin.Context) {
	if s.data == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "行情库未启用"})
		return
	}
	code := c.Param("code")
	info, err := s.data.GetStockInfo(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	count, err := s.data.CountDailyBars(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stock": info, "daily_bars": count})
}

func (s *HTTPServer) handleStockBars(c *gin.Context) {
	if s.data == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "行情库未启用"})
		return
	}
	var start, end time.Time
	if v := c.Query("start"); v != "" {
		t, err := market.ParseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start 非法"})
			return
		}
		start = t
	}
	if v := c.Query("end"); v != "" {
		t, err := market.ParseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end 非法"})
			return
		}
		end = t
	}
	bars, err := s.data.RangeDailyBars(c.Request.Context(), c.Param("code"), start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bars": bars})
}

func (s *HTTPServer) handleImportBars(c *gin.Context) {
	if s.data == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "行情库未启用"})
		return
	}
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := s.data.ImportDailyJSON(c.Request.Context(), c.Param("code"), payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *HTTPServer) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
