package provider

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"candlevault/internal/logger"
	"candlevault/internal/market"
)

const defaultFetchLimit = 100

// SampleProvider 生成随机游走的模拟行情，用于离线开发与测试。
// 波动按基准价的 0.1% 取均匀分布，close 链式传递保证序列连续。
type SampleProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time

	basePrices map[string]float64
}

// NewSampleProvider 构造模拟数据源。seed 固定时输出可复现。
func NewSampleProvider(seed int64) *SampleProvider {
	return &SampleProvider{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
		basePrices: map[string]float64{
			"EURUSD": 1.0850,
			"GBPUSD": 1.2650,
			"USDJPY": 148.50,
			"XAUUSD": 2050.00,
		},
	}
}

func (p *SampleProvider) FetchSeries(ctx context.Context, symbol string, interval market.Interval, start, end int64, limit int) (*market.Series, error) {
	base, ok := p.basePrices[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolUnavailable, symbol)
	}
	if limit <= 0 {
		limit = defaultFetchLimit
	}
	step := interval.DurationMillis()
	if end <= 0 {
		end = interval.AlignDown(p.now().UnixMilli())
	}
	if start <= 0 {
		start = end - int64(limit-1)*step
	}
	start = interval.AlignDown(start)
	end = interval.AlignDown(end)
	if end < start {
		return nil, fmt.Errorf("%w: 时间范围非法 start=%d end=%d", ErrFetch, start, end)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	series, err := market.NewSeries(symbol, interval, nil)
	if err != nil {
		return nil, err
	}
	price := base
	for ts := start; ts <= end; ts += step {
		c, err := p.generate(ts, price, interval)
		if err != nil {
			return nil, err
		}
		series.Candles = append(series.Candles, c)
		price = c.Close
	}
	logger.Debugf("[sample] 生成 %s %s 共 %d 根", symbol, interval, series.Len())
	return series, nil
}

func (p *SampleProvider) FetchLatestCandle(ctx context.Context, symbol string, interval market.Interval) (market.Candle, error) {
	base, ok := p.basePrices[symbol]
	if !ok {
		return market.Candle{}, fmt.Errorf("%w: %s", ErrSymbolUnavailable, symbol)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generate(interval.AlignDown(p.now().UnixMilli()), base, interval)
}

func (p *SampleProvider) ListSymbols(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(p.basePrices))
	for sym := range p.basePrices {
		out = append(out, sym)
	}
	return out, nil
}

// generate 需在持锁状态下调用（rng 非并发安全）。
func (p *SampleProvider) generate(ts int64, base float64, interval market.Interval) (market.Candle, error) {
	vol := base * 0.001
	open := base
	closePx := base + p.uniform(-vol, vol)
	high := math.Max(open, closePx) + p.uniform(0, vol/2)
	low := math.Min(open, closePx) - p.uniform(0, vol/2)
	volume := p.uniform(1000, 10000)
	return market.NewCandle(ts, open, high, low, closePx, volume, interval)
}

func (p *SampleProvider) uniform(lo, hi float64) float64 {
	return lo + p.rng.Float64()*(hi-lo)
}
