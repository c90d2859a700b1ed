package service

import (
	"context"
	"errors"
	"testing"

	"candlevault/internal/archive"
	"candlevault/internal/cache"
	"candlevault/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) FetchSeries(ctx context.Context, symbol string, interval market.Interval, start, end int64, limit int) (*market.Series, error) {
	args := m.Called(ctx, symbol, interval, start, end, limit)
	if s, ok := args.Get(0).(*market.Series); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProvider) FetchLatestCandle(ctx context.Context, symbol string, interval market.Interval) (market.Candle, error) {
	args := m.Called(ctx, symbol, interval)
	return args.Get(0).(market.Candle), args.Error(1)
}

func (m *mockProvider) ListSymbols(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if syms, ok := args.Get(0).([]string); ok {
		return syms, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockArchiver struct {
	mock.Mock
}

func (m *mockArchiver) InsertSeries(ctx context.Context, series *market.Series) (int, error) {
	args := m.Called(ctx, series)
	return args.Int(0), args.Error(1)
}

func (m *mockArchiver) LoadRange(ctx context.Context, symbol string, interval market.Interval, start, end int64) (*market.Series, error) {
	args := m.Called(ctx, symbol, interval, start, end)
	if s, ok := args.Get(0).(*market.Series); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockArchiver) Manifest(ctx context.Context, symbol string, interval market.Interval) (archive.Manifest, error) {
	args := m.Called(ctx, symbol, interval)
	return args.Get(0).(archive.Manifest), args.Error(1)
}

func fixtureSeriesAt(t *testing.T, symbol string, interval market.Interval, n int) *market.Series {
	t.Helper()
	candles := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		c, err := market.NewCandle(int64(i)*interval.DurationMillis(), 100, 101, 99, 100.5, 10, interval)
		require.NoError(t, err)
		candles = append(candles, c)
	}
	s, err := market.NewSeries(symbol, interval, candles)
	require.NoError(t, err)
	return s
}

func fixtureSeries(t *testing.T, symbol string, n int) *market.Series {
	return fixtureSeriesAt(t, symbol, market.Interval5m, n)
}

func newTestCache(t *testing.T) *cache.TieredCache {
	t.Helper()
	c, err := cache.New(cache.Config{Dir: t.TempDir(), MaxMemoryEntries: 16})
	require.NoError(t, err)
	return c
}

func TestGetSeriesFetchThenCacheHit(t *testing.T) {
	p := new(mockProvider)
	p.On("FetchSeries", mock.Anything, "BTCUSDT", market.Interval5m, int64(0), int64(0), 10).
		Return(fixtureSeries(t, "BTCUSDT", 10), nil).Once()

	svc := NewMarketData(newTestCache(t), p, nil, Options{})
	ctx := context.Background()

	got, err := svc.GetSeries(ctx, "btcusdt", market.Interval5m, 10, false)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Len())

	// 第二次走缓存，provider 不应再被调用
	got, err = svc.GetSeries(ctx, "BTCUSDT", market.Interval5m, 10, false)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Len())
	p.AssertExpectations(t)

	stats := svc.Stats()
	assert.Equal(t, int64(1), stats.Fetches)
	assert.Equal(t, int64(1), stats.CacheHits)
}

func TestGetSeriesForceRefresh(t *testing.T) {
	p := new(mockProvider)
	p.On("FetchSeries", mock.Anything, "BTCUSDT", market.Interval5m, int64(0), int64(0), 10).
		Return(fixtureSeries(t, "BTCUSDT", 10), nil).Twice()

	svc := NewMarketData(newTestCache(t), p, nil, Options{})
	ctx := context.Background()

	_, err := svc.GetSeries(ctx, "BTCUSDT", market.Interval5m, 10, false)
	require.NoError(t, err)
	_, err = svc.GetSeries(ctx, "BTCUSDT", market.Interval5m, 10, true)
	require.NoError(t, err)
	p.AssertExpectations(t)
}

func TestGetSeriesTrimsToLimit(t *testing.T) {
	p := new(mockProvider)
	p.On("FetchSeries", mock.Anything, "BTCUSDT", market.Interval5m, int64(0), int64(0), 3).
		Return(fixtureSeries(t, "BTCUSDT", 10), nil).Once()

	svc := NewMarketData(newTestCache(t), p, nil, Options{})
	got, err := svc.GetSeries(context.Background(), "BTCUSDT", market.Interval5m, 3, false)
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())
	assert.Equal(t, int64(7*300_000), got.Candles[0].OpenTime)
}

func TestGetSeriesProviderErrors(t *testing.T) {
	p := new(mockProvider)
	boom := errors.New("连接超时")
	p.On("FetchSeries", mock.Anything, "BTCUSDT", market.Interval5m, int64(0), int64(0), 10).
		Return(nil, boom).Once()
	p.On("FetchSeries", mock.Anything, "ETHUSDT", market.Interval5m, int64(0), int64(0), 10).
		Return(fixtureSeries(t, "ETHUSDT", 0), nil).Once()

	svc := NewMarketData(newTestCache(t), p, nil, Options{})
	ctx := context.Background()

	_, err := svc.GetSeries(ctx, "BTCUSDT", market.Interval5m, 10, false)
	assert.ErrorIs(t, err, boom)

	_, err = svc.GetSeries(ctx, "ETHUSDT", market.Interval5m, 10, false)
	assert.ErrorIs(t, err, ErrNoData)

	_, err = svc.GetSeries(ctx, "   ", market.Interval5m, 10, false)
	assert.Error(t, err)
}

func TestGetSeriesArchivesBestEffort(t *testing.T) {
	p := new(mockProvider)
	p.On("FetchSeries", mock.Anything, "BTCUSDT", market.Interval5m, int64(0), int64(0), 10).
		Return(fixtureSeries(t, "BTCUSDT", 10), nil).Once()
	a := new(mockArchiver)
	// 归档失败只告警，不影响返回
	a.On("InsertSeries", mock.Anything, mock.Anything).Return(0, errors.New("磁盘满")).Once()

	svc := NewMarketData(newTestCache(t), p, a, Options{})
	got, err := svc.GetSeries(context.Background(), "BTCUSDT", market.Interval5m, 10, false)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Len())
	a.AssertExpectations(t)
}

func TestArchivedRangeAndManifest(t *testing.T) {
	a := new(mockArchiver)
	a.On("LoadRange", mock.Anything, "BTCUSDT", market.Interval5m, int64(0), int64(600_000)).
		Return(fixtureSeries(t, "BTCUSDT", 3), nil).Once()
	a.On("Manifest", mock.Anything, "BTCUSDT", market.Interval5m).
		Return(archive.Manifest{Symbol: "BTCUSDT", Interval: "5m", Rows: 3}, nil).Once()

	svc := NewMarketData(newTestCache(t), new(mockProvider), a, Options{})
	ctx := context.Background()

	// symbol 归一化：小写带空格也能命中归档 key
	s, err := svc.ArchivedRange(ctx, " btcusdt ", market.Interval5m, 0, 600_000)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	m, err := svc.ArchiveManifest(ctx, "btcusdt", market.Interval5m)
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Rows)
	a.AssertExpectations(t)
}

func TestArchiveQueriesWithoutArchiver(t *testing.T) {
	svc := NewMarketData(newTestCache(t), new(mockProvider), nil, Options{})
	_, err := svc.ArchivedRange(context.Background(), "BTCUSDT", market.Interval5m, 0, 0)
	assert.ErrorIs(t, err, ErrArchiveDisabled)
	_, err = svc.ArchiveManifest(context.Background(), "BTCUSDT", market.Interval5m)
	assert.ErrorIs(t, err, ErrArchiveDisabled)
}

func TestWarmup(t *testing.T) {
	p := new(mockProvider)
	for _, sym := range []string{"BTCUSDT", "ETHUSDT"} {
		for _, iv := range []market.Interval{market.Interval5m, market.Interval1h} {
			p.On("FetchSeries", mock.Anything, sym, iv, int64(0), int64(0), 500).
				Return(fixtureSeriesAt(t, sym, iv, 500), nil).Once()
		}
	}
	svc := NewMarketData(newTestCache(t), p, nil, Options{})
	require.NoError(t, svc.Warmup(context.Background(),
		[]string{"BTCUSDT", "ETHUSDT"},
		[]market.Interval{market.Interval5m, market.Interval1h}))
	p.AssertExpectations(t)
}

func TestListSymbolsSorted(t *testing.T) {
	p := new(mockProvider)
	p.On("ListSymbols", mock.Anything).Return([]string{"ETHUSDT", "BTCUSDT"}, nil).Once()
	svc := NewMarketData(newTestCache(t), p, nil, Options{})
	syms, err := svc.ListSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, syms)
}
