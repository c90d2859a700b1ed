package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"candlevault/internal/logger"
	"candlevault/internal/market"
)

// RESTProvider 直接访问 Binance 风格的 /fapi/v1/klines REST 接口，
// 不经 SDK，适合只读回补场景。响应是嵌套数组，用 gjson 按下标取值：
// [openTime, open, high, low, close, volume, closeTime, ...]
type RESTProvider struct {
	baseURL string
	client  *http.Client
}

func NewRESTProvider(baseURL string) *RESTProvider {
	if baseURL == "" {
		baseURL = "https://fapi.binance.com"
	}
	return &RESTProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *RESTProvider) FetchSeries(ctx context.Context, symbol string, interval market.Interval, start, end int64, limit int) (*market.Series, error) {
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

	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base url 非法: %v", ErrFetch, err)
	}
	u.Path = "/fapi/v1/klines"
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("interval", interval.String())
	q.Set("limit", strconv.Itoa(limit))
	if start > 0 {
		q.Set("startTime", strconv.FormatInt(start, 10))
	}
	if end > 0 {
		q.Set("endTime", strconv.FormatInt(end, 10))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取响应: %v", ErrFetch, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: 状态码 %d: %s", ErrFetch, resp.StatusCode, gjson.GetBytes(body, "msg").String())
	}

	series, err := market.NewSeries(symbol, interval, nil)
	if err != nil {
		return nil, err
	}
	for _, row := range gjson.ParseBytes(body).Array() {
		cols := row.Array()
		if len(cols) < 7 {
			logger.Warnf("[rest] %s %s 忽略畸形行: %s", symbol, interval, row.Raw)
			continue
		}
		c, err := market.NewCandle(
			cols[0].Int(),
			cols[1].Float(),
			cols[2].Float(),
			cols[3].Float(),
			cols[4].Float(),
			cols[5].Float(),
			interval,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		series.Candles = append(series.Candles, c)
	}
	return series, nil
}

func (p *RESTProvider) FetchLatestCandle(ctx context.Context, symbol string, interval market.Interval) (market.Candle, error) {
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

func (p *RESTProvider) ListSymbols(ctx context.Context) ([]string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base url 非法: %v", ErrFetch, err)
	}
	u.Path = "/fapi/v1/exchangeInfo"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取响应: %v", ErrFetch, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: 状态码 %d", ErrFetch, resp.StatusCode)
	}
	var out []string
	for _, s := range gjson.GetBytes(body, "symbols").Array() {
		if s.Get("status").String() == "TRADING" {
			out = append(out, s.Get("symbol").String())
		}
	}
	return out, nil
}
