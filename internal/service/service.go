// Package service 实现行情数据读取主链路：缓存优先，未命中回源、
// 校验、回填缓存，并把新数据旁路写入长期归档。
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"candlevault/internal/archive"
	"candlevault/internal/cache"
	"candlevault/internal/logger"
	"candlevault/internal/market"
	"candlevault/internal/provider"
	"candlevault/internal/validator"
)

// ErrNoData 表示回源成功但没有任何可用 K 线。
var ErrNoData = errors.New("provider 未返回任何 K 线")

// ErrArchiveDisabled 表示归档未启用时访问归档查询接口。
var ErrArchiveDisabled = errors.New("归档未启用")

// Cache 是服务依赖的缓存面，TieredCache 实现它。
type Cache interface {
	Get(symbol string, interval market.Interval, forceRefresh bool) (*market.Series, bool)
	Set(series *market.Series) error
	Invalidate(symbol string, interval market.Interval)
	Clear() error
	Stats() cache.Stats
}

// Archiver 是可选的长期归档面。
type Archiver interface {
	InsertSeries(ctx context.Context, series *market.Series) (int, error)
	LoadRange(ctx context.Context, symbol string, interval market.Interval, start, end int64) (*market.Series, error)
	Manifest(ctx context.Context, symbol string, interval market.Interval) (archive.Manifest, error)
}

// Options 控制服务行为，零值即可用。
type Options struct {
	FetchLimit int  // 回源时默认请求的 K 线数
	Strict     bool // 校验失败直接报错而非降级告警
}

// MarketData 是缓存 + 回源 + 校验 + 归档的组合服务。
type MarketData struct {
	cache    Cache
	provider provider.Provider
	archiver Archiver // 可为 nil，归档关闭
	check    *validator.Validator
	opts     Options

	mu       sync.Mutex
	fetches  int64
	cacheHit int64
}

func NewMarketData(c Cache, p provider.Provider, a Archiver, opts Options) *MarketData {
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = 500
	}
	return &MarketData{
		cache:    c,
		provider: p,
		archiver: a,
		check:    validator.New(opts.Strict),
		opts:     opts,
	}
}

// GetSeries 返回 symbol@interval 的最新序列。forceRefresh 跳过缓存直连数据源。
// 返回的序列是调用方私有副本。
func (m *MarketData) GetSeries(ctx context.Context, symbol string, interval market.Interval, limit int, forceRefresh bool) (*market.Series, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	if limit <= 0 {
		limit = m.opts.FetchLimit
	}

	if s, ok := m.cache.Get(symbol, interval, forceRefresh); ok && s.Len() >= limit {
		m.mu.Lock()
		m.cacheHit++
		m.mu.Unlock()
		return tail(s, limit)
	}

	traceID := uuid.NewString()[:8]
	logger.Debugf("[%s] 缓存未命中, 回源 %s@%s limit=%d", traceID, symbol, interval, limit)

	fetched, err := m.provider.FetchSeries(ctx, symbol, interval, 0, 0, limit)
	if err != nil {
		return nil, fmt.Errorf("回源 %s@%s 失败: %w", symbol, interval, err)
	}
	if fetched == nil || fetched.Len() == 0 {
		return nil, fmt.Errorf("%s@%s: %w", symbol, interval, ErrNoData)
	}
	if _, err := m.check.ValidateSeries(fetched); err != nil {
		return nil, fmt.Errorf("[%s] 数据校验失败: %w", traceID, err)
	}

	if err := m.cache.Set(fetched); err != nil {
		// 持久层写失败要暴露给调用方，内存里已经是新数据
		return nil, err
	}
	m.mu.Lock()
	m.fetches++
	m.mu.Unlock()

	if m.archiver != nil {
		if _, err := m.archiver.InsertSeries(ctx, fetched); err != nil {
			logger.Warnf("[%s] 归档 %s@%s 失败: %v", traceID, symbol, interval, err)
		}
	}
	return tail(fetched, limit)
}

// tail 截取序列末尾 n 根并返回独立副本。
func tail(s *market.Series, n int) (*market.Series, error) {
	if s.Len() <= n {
		return s.Clone(), nil
	}
	return market.NewSeries(s.Symbol, s.Interval, s.Latest(n))
}

// LatestCandle 返回最新一根（可能未收线的）K 线，不经过缓存。
func (m *MarketData) LatestCandle(ctx context.Context, symbol string, interval market.Interval) (market.Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	c, err := m.provider.FetchLatestCandle(ctx, symbol, interval)
	if err != nil {
		return market.Candle{}, err
	}
	if _, err := m.check.ValidateCandle(c); err != nil {
		return market.Candle{}, err
	}
	return c, nil
}

// Warmup 并发预热一组 symbol × interval 的缓存，单个失败不中断其余任务。
// 返回第一个遇到的错误。
func (m *MarketData) Warmup(ctx context.Context, symbols []string, intervals []market.Interval) error {
	if len(symbols) == 0 || len(intervals) == 0 {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, sym := range symbols {
		for _, iv := range intervals {
			sym, iv := sym, iv
			g.Go(func() error {
				if _, err := m.GetSeries(ctx, sym, iv, 0, false); err != nil {
					logger.Warnf("预热 %s@%s 失败: %v", sym, iv, err)
					return err
				}
				return nil
			})
		}
	}
	err := g.Wait()
	if err == nil {
		logger.Infof("预热完成: %d symbols × %d intervals", len(symbols), len(intervals))
	}
	return err
}

// ArchivedRange 读取闭区间 [start, end] 内的归档 K 线，超出缓存 TTL 的
// 历史数据走这里。start/end 为 0 表示不设界。
func (m *MarketData) ArchivedRange(ctx context.Context, symbol string, interval market.Interval, start, end int64) (*market.Series, error) {
	if m.archiver == nil {
		return nil, ErrArchiveDisabled
	}
	return m.archiver.LoadRange(ctx, strings.ToUpper(strings.TrimSpace(symbol)), interval, start, end)
}

// ArchiveManifest 返回归档文件的统计信息。
func (m *MarketData) ArchiveManifest(ctx context.Context, symbol string, interval market.Interval) (archive.Manifest, error) {
	if m.archiver == nil {
		return archive.Manifest{}, ErrArchiveDisabled
	}
	return m.archiver.Manifest(ctx, strings.ToUpper(strings.TrimSpace(symbol)), interval)
}

// ListSymbols 透传数据源可用交易对，排序后返回。
func (m *MarketData) ListSymbols(ctx context.Context) ([]string, error) {
	syms, err := m.provider.ListSymbols(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(syms)
	return syms, nil
}

// Invalidate 清除单个 key 的两级缓存。
func (m *MarketData) Invalidate(symbol string, interval market.Interval) {
	m.cache.Invalidate(strings.ToUpper(strings.TrimSpace(symbol)), interval)
}

// ClearCache 清空全部缓存。
func (m *MarketData) ClearCache() error {
	return m.cache.Clear()
}

// Stats 汇总缓存与服务计数。
type Stats struct {
	Cache     cache.Stats `json:"cache"`
	Fetches   int64       `json:"fetches"`
	CacheHits int64       `json:"cache_hits"`
}

func (m *MarketData) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Cache:     m.cache.Stats(),
		Fetches:   m.fetches,
		CacheHits: m.cacheHit,
	}
}
