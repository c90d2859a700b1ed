package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"candlevault/internal/logger"
	"candlevault/internal/market"
)

const maxKlineLimit = 1500

// BinanceProvider 基于 go-binance SDK 访问 USDT 合约行情。
type BinanceProvider struct {
	client *futures.Client
}

// NewBinanceProvider 构造 Binance 数据源。baseURL 为空用 SDK 默认地址。
func NewBinanceProvider(baseURL string) *BinanceProvider {
	client := futures.NewClient("", "")
	if base := strings.TrimSpace(baseURL); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	return &BinanceProvider{client: client}
}

func (p *BinanceProvider) FetchSeries(ctx context.Context, symbol string, interval market.Interval, start, end int64, limit int) (*market.Series, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol 不能为空", ErrSymbolUnavailable)
	}
	if limit <= 0 {
		limit = defaultFetchLimit
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	svc := p.client.NewKlinesService().Symbol(symbol).Interval(interval.String()).Limit(limit)
	if start > 0 {
		svc = svc.StartTime(start)
	}
	if end > 0 {
		svc = svc.EndTime(end)
	}
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: binance klines %s %s: %v", ErrFetch, symbol, interval, err)
	}

	series, err := market.NewSeries(symbol, interval, nil)
	if err != nil {
		return nil, err
	}
	for _, k := range kls {
		c, err := klineToCandle(k, interval)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		series.Candles = append(series.Candles, c)
	}
	logger.Debugf("[binance] %s %s 拉取 %d 根", symbol, interval, series.Len())
	return series, nil
}

func (p *BinanceProvider) FetchLatestCandle(ctx context.Context, symbol string, interval market.Interval) (market.Candle, error) {
	series, err := p.FetchSeries(ctx, symbol, interval, 0, 0, 1)
	if err != nil {
		return market.Candle{}, err
	}
	last, ok := series.Last()
	if !ok {
		return market.Candle{}, fmt.Errorf("%w: %s %s 无数据", ErrFetch, symbol, interval)
	}
	return last, nil
}

func (p *BinanceProvider) ListSymbols(ctx context.Context) ([]string, error) {
	info, err := p.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: binance exchangeInfo: %v", ErrFetch, err)
	}
	out := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status == "TRADING" {
			out = append(out, s.Symbol)
		}
	}
	return out, nil
}

func klineToCandle(k *futures.Kline, interval market.Interval) (market.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return market.Candle{}, fmt.Errorf("kline@%d: open %q 非法", k.OpenTime, k.Open)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return market.Candle{}, fmt.Errorf("kline@%d: high %q 非法", k.OpenTime, k.High)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return market.Candle{}, fmt.Errorf("kline@%d: low %q 非法", k.OpenTime, k.Low)
	}
	closePx, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return market.Candle{}, fmt.Errorf("kline@%d: close %q 非法", k.OpenTime, k.Close)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return market.Candle{}, fmt.Errorf("kline@%d: volume %q 非法", k.OpenTime, k.Volume)
	}
	return market.NewCandle(k.OpenTime, open, high, low, closePx, volume, interval)
}

// normalizeSymbol 去掉分隔符并大写（ETH/USDT → ETHUSDT），Binance 不接受斜杠。
func normalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	symbol = strings.ReplaceAll(symbol, "/", "")
	return strings.ReplaceAll(symbol, "-", "")
}
