package apihttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"candlevault/internal/archive"
	"candlevault/internal/cache"
	"candlevault/internal/market"
	"candlevault/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type stubMarket struct {
	series      *market.Series
	archived    *market.Series
	manifest    archive.Manifest
	err         error
	archiveErr  error
	invalidated []string
	cleared     bool
}

func (s *stubMarket) GetSeries(_ context.Context, symbol string, interval market.Interval, limit int, _ bool) (*market.Series, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.series, nil
}

func (s *stubMarket) ArchivedRange(_ context.Context, symbol string, interval market.Interval, start, end int64) (*market.Series, error) {
	if s.archiveErr != nil {
		return nil, s.archiveErr
	}
	return s.archived, nil
}

func (s *stubMarket) ArchiveManifest(_ context.Context, symbol string, interval market.Interval) (archive.Manifest, error) {
	if s.archiveErr != nil {
		return archive.Manifest{}, s.archiveErr
	}
	return s.manifest, nil
}

func (s *stubMarket) ListSymbols(context.Context) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []string{"BTCUSDT", "ETHUSDT"}, nil
}

func (s *stubMarket) Invalidate(symbol string, interval market.Interval) {
	s.invalidated = append(s.invalidated, symbol+"_"+interval.String())
}

func (s *stubMarket) ClearCache() error {
	s.cleared = true
	return nil
}

func (s *stubMarket) Stats() service.Stats {
	return service.Stats{Cache: cache.Stats{MemoryEntries: 3}, Fetches: 7}
}

func stubSeries(t *testing.T, n int) *market.Series {
	t.Helper()
	candles := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		c, err := market.NewCandle(int64(i)*300_000, 100, 101, 99, 100.5, 10, market.Interval5m)
		require.NoError(t, err)
		candles = append(candles, c)
	}
	s, err := market.NewSeries("BTCUSDT", market.Interval5m, candles)
	require.NoError(t, err)
	return s
}

func newTestServer(t *testing.T, m MarketService) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{Market: m})
	require.NoError(t, err)
	return srv
}

func doGet(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &stubMarket{series: stubSeries(t, 3)})
	rec := doGet(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())
}

func TestSymbols(t *testing.T) {
	srv := newTestServer(t, &stubMarket{})
	rec := doGet(t, srv, "/api/v1/symbols")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), gjson.Get(rec.Body.String(), "count").Int())
}

func TestCandles(t *testing.T) {
	srv := newTestServer(t, &stubMarket{series: stubSeries(t, 12)})
	rec := doGet(t, srv, "/api/v1/candles/BTCUSDT/5m?limit=12")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "BTCUSDT", gjson.Get(body, "symbol").String())
	assert.Equal(t, "5m", gjson.Get(body, "interval").String())
	assert.Equal(t, int64(12), gjson.Get(body, "candles.#").Int())
}

func TestCandlesBadInterval(t *testing.T) {
	srv := newTestServer(t, &stubMarket{series: stubSeries(t, 3)})
	rec := doGet(t, srv, "/api/v1/candles/BTCUSDT/7m")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCandlesNoData(t *testing.T) {
	srv := newTestServer(t, &stubMarket{err: fmt.Errorf("BTCUSDT@5m: %w", service.ErrNoData)})
	rec := doGet(t, srv, "/api/v1/candles/BTCUSDT/5m")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	srv = newTestServer(t, &stubMarket{err: errors.New("连接超时")})
	rec = doGet(t, srv, "/api/v1/candles/BTCUSDT/5m")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestResample(t *testing.T) {
	srv := newTestServer(t, &stubMarket{series: stubSeries(t, 24)})
	rec := doGet(t, srv, "/api/v1/candles/BTCUSDT/5m/resample?target=1h")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "1h", gjson.Get(body, "interval").String())
	assert.Equal(t, int64(2), gjson.Get(body, "candles.#").Int())

	// 目标周期必须比源粗
	rec = doGet(t, srv, "/api/v1/candles/BTCUSDT/5m/resample?target=1m")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doGet(t, srv, "/api/v1/candles/BTCUSDT/5m/resample?target=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummary(t *testing.T) {
	srv := newTestServer(t, &stubMarket{series: stubSeries(t, 60)})
	rec := doGet(t, srv, "/api/v1/candles/BTCUSDT/5m/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, int64(60), gjson.Get(body, "summary.count").Int())
	assert.True(t, gjson.Get(body, "indicators.rsi").Exists())
	// 摘要不应包含完整指标序列
	assert.False(t, gjson.Get(body, "indicators.rsi.series").Exists())
}

func TestChart(t *testing.T) {
	srv := newTestServer(t, &stubMarket{series: stubSeries(t, 30)})
	rec := doGet(t, srv, "/api/v1/candles/BTCUSDT/5m/chart")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "echarts")
}

func TestArchiveEndpoints(t *testing.T) {
	m := &stubMarket{
		archived: stubSeries(t, 4),
		manifest: archive.Manifest{Symbol: "BTCUSDT", Interval: "5m", Rows: 4, MaxTime: 900_000},
	}
	srv := newTestServer(t, m)

	rec := doGet(t, srv, "/api/v1/archive/BTCUSDT/5m?start=0&end=900000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(4), gjson.Get(rec.Body.String(), "candles.#").Int())

	rec = doGet(t, srv, "/api/v1/archive/BTCUSDT/5m/manifest")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, int64(4), gjson.Get(body, "rows").Int())
	assert.Equal(t, "5m", gjson.Get(body, "interval").String())

	rec = doGet(t, srv, "/api/v1/archive/BTCUSDT/7m/manifest")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArchiveEndpointsDisabled(t *testing.T) {
	srv := newTestServer(t, &stubMarket{archiveErr: service.ErrArchiveDisabled})

	rec := doGet(t, srv, "/api/v1/archive/BTCUSDT/5m")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doGet(t, srv, "/api/v1/archive/BTCUSDT/5m/manifest")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCacheEndpoints(t *testing.T) {
	m := &stubMarket{series: stubSeries(t, 3)}
	srv := newTestServer(t, m)

	rec := doGet(t, srv, "/api/v1/cache/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), gjson.Get(rec.Body.String(), "cache.memory_entries").Int())

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cache/btcusdt/5m", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"btcusdt_5m"}, m.invalidated)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/cache", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, m.cleared)
}
