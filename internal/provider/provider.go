// Package provider 定义行情数据来源接口。缓存与时序引擎只消费返回的
// Series/Candle 值，不关心数据如何取得。
package provider

import (
	"context"
	"errors"

	"candlevault/internal/market"
)

// ErrSymbolUnavailable 标记数据源不认识请求的 symbol。
var ErrSymbolUnavailable = errors.New("provider: symbol unavailable")

// ErrFetch 标记传输层失败（网络、限流、非 2xx 响应）。
var ErrFetch = errors.New("provider: fetch failed")

// Provider 是行情数据源的统一接口。start/end 为 Unix 毫秒，0 表示不设界；
// limit<=0 时由实现选择默认条数。
type Provider interface {
	FetchSeries(ctx context.Context, symbol string, interval market.Interval, start, end int64, limit int) (*market.Series, error)
	FetchLatestCandle(ctx context.Context, symbol string, interval market.Interval) (market.Candle, error)
	ListSymbols(ctx context.Context) ([]string, error)
}
