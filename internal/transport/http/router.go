package apihttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"candlevault/internal/analysis/indicator"
	"candlevault/internal/analysis/visual"
	"candlevault/internal/archive"
	"candlevault/internal/market"
	"candlevault/internal/service"
	"candlevault/internal/timeseries"
)

// MarketService 是 handler 依赖的服务面，service.MarketData 实现它。
type MarketService interface {
	GetSeries(ctx context.Context, symbol string, interval market.Interval, limit int, forceRefresh bool) (*market.Series, error)
	ArchivedRange(ctx context.Context, symbol string, interval market.Interval, start, end int64) (*market.Series, error)
	ArchiveManifest(ctx context.Context, symbol string, interval market.Interval) (archive.Manifest, error)
	ListSymbols(ctx context.Context) ([]string, error)
	Invalidate(symbol string, interval market.Interval)
	ClearCache() error
	Stats() service.Stats
}

// Router 暴露行情查询与缓存管理接口。
type Router struct {
	market MarketService
}

func NewRouter(m MarketService) *Router {
	return &Router{market: m}
}

// Register 将 /api/v1 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/symbols", r.handleSymbols)
	group.GET("/candles/:symbol/:interval", r.handleCandles)
	group.GET("/candles/:symbol/:interval/resample", r.handleResample)
	group.GET("/candles/:symbol/:interval/summary", r.handleSummary)
	group.GET("/candles/:symbol/:interval/chart", r.handleChart)
	group.GET("/archive/:symbol/:interval", r.handleArchiveRange)
	group.GET("/archive/:symbol/:interval/manifest", r.handleArchiveManifest)
	group.GET("/cache/stats", r.handleCacheStats)
	group.DELETE("/cache", r.handleCacheClear)
	group.DELETE("/cache/:symbol/:interval", r.handleCacheInvalidate)
}

func (r *Router) handleSymbols(c *gin.Context) {
	syms, err := r.market.ListSymbols(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": syms, "count": len(syms)})
}

// parseSeriesParams 解析路径里的 symbol/interval 与通用 query 参数。
func (r *Router) parseSeriesParams(c *gin.Context) (string, market.Interval, int, bool, bool) {
	symbol := strings.TrimSpace(c.Param("symbol"))
	interval, err := market.ParseInterval(c.Param("interval"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", 0, 0, false, false
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if limit < 0 {
		limit = 0
	}
	force := c.Query("force") == "true" || c.Query("force") == "1"
	return symbol, interval, limit, force, true
}

func (r *Router) fetchSeries(c *gin.Context) (*market.Series, bool) {
	symbol, interval, limit, force, ok := r.parseSeriesParams(c)
	if !ok {
		return nil, false
	}
	s, err := r.market.GetSeries(c.Request.Context(), symbol, interval, limit, force)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, service.ErrNoData) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return nil, false
	}
	return s, true
}

func (r *Router) handleCandles(c *gin.Context) {
	s, ok := r.fetchSeries(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s)
}

func (r *Router) handleResample(c *gin.Context) {
	target, err := market.ParseInterval(c.Query("target"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, ok := r.fetchSeries(c)
	if !ok {
		return
	}
	out, err := timeseries.Resample(s, target)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) handleSummary(c *gin.Context) {
	s, ok := r.fetchSeries(c)
	if !ok {
		return
	}
	stats, err := timeseries.SummaryStatistics(s)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	rep, err := indicator.Compute(s, indicator.Settings{})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	// 摘要接口不回传整条指标序列，只保留最新值与状态
	for key, v := range rep.Values {
		v.Series = nil
		rep.Values[key] = v
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":     s.Symbol,
		"interval":   s.Interval,
		"summary":    stats,
		"indicators": rep.Values,
	})
}

func (r *Router) handleChart(c *gin.Context) {
	s, ok := r.fetchSeries(c)
	if !ok {
		return
	}
	rep, _ := indicator.Compute(s, indicator.Settings{})
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := visual.RenderHTML(c.Writer, s, rep); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (r *Router) handleArchiveRange(c *gin.Context) {
	symbol := strings.TrimSpace(c.Param("symbol"))
	interval, err := market.ParseInterval(c.Param("interval"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, _ := strconv.ParseInt(c.DefaultQuery("start", "0"), 10, 64)
	end, _ := strconv.ParseInt(c.DefaultQuery("end", "0"), 10, 64)
	s, err := r.market.ArchivedRange(c.Request.Context(), symbol, interval, start, end)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrArchiveDisabled) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (r *Router) handleArchiveManifest(c *gin.Context) {
	symbol := strings.TrimSpace(c.Param("symbol"))
	interval, err := market.ParseInterval(c.Param("interval"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := r.market.ArchiveManifest(c.Request.Context(), symbol, interval)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrArchiveDisabled) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (r *Router) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, r.market.Stats())
}

func (r *Router) handleCacheClear(c *gin.Context) {
	if err := r.market.ClearCache(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (r *Router) handleCacheInvalidate(c *gin.Context) {
	symbol := strings.TrimSpace(c.Param("symbol"))
	interval, err := market.ParseInterval(c.Param("interval"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.market.Invalidate(symbol, interval)
	c.JSON(http.StatusOK, gin.H{"status": "invalidated", "symbol": strings.ToUpper(symbol), "interval": interval})
}
