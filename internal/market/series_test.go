package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCandle(t *testing.T, openTime int64, closePx float64, iv Interval) Candle {
	t.Helper()
	c, err := NewCandle(openTime, closePx, closePx, closePx, closePx, 100, iv)
	require.NoError(t, err)
	return c
}

func TestNewSeriesSortsInput(t *testing.T) {
	candles := []Candle{
		mustCandle(t, 3000, 3, Interval1m),
		mustCandle(t, 1000, 1, Interval1m),
		mustCandle(t, 2000, 2, Interval1m),
	}
	s, err := NewSeries("EURUSD", Interval1m, candles)
	require.NoError(t, err)
	assert.Equal(t, []int64{1000, 2000, 3000}, s.Timestamps())
	// 输入切片不被修改
	assert.Equal(t, int64(3000), candles[0].OpenTime)
}

func TestNewSeriesRejectsMismatchedInterval(t *testing.T) {
	_, err := NewSeries("EURUSD", Interval5m, []Candle{mustCandle(t, 0, 1, Interval1m)})
	assert.Error(t, err)
}

func TestSeriesAppend(t *testing.T) {
	s, err := NewSeries("GBPUSD", Interval5m, nil)
	require.NoError(t, err)

	require.NoError(t, s.Append(mustCandle(t, 600000, 1, Interval5m)))
	require.NoError(t, s.Append(mustCandle(t, 300000, 2, Interval5m)))
	require.NoError(t, s.Append(mustCandle(t, 900000, 3, Interval5m)))
	assert.Equal(t, []int64{300000, 600000, 900000}, s.Timestamps())

	err = s.Append(mustCandle(t, 1200000, 4, Interval1h))
	assert.Error(t, err)
	assert.Equal(t, 3, s.Len())
}

func TestSeriesAccessors(t *testing.T) {
	s, err := NewSeries("USDJPY", Interval1m, []Candle{
		mustCandle(t, 0, 10, Interval1m),
		mustCandle(t, 60000, 11, Interval1m),
		mustCandle(t, 120000, 12, Interval1m),
	})
	require.NoError(t, err)

	first, ok := s.First()
	require.True(t, ok)
	assert.Equal(t, int64(0), first.OpenTime)
	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, int64(120000), last.OpenTime)

	latest := s.Latest(2)
	require.Len(t, latest, 2)
	assert.Equal(t, int64(60000), latest[0].OpenTime)
	assert.Len(t, s.Latest(10), 3)
	assert.Nil(t, s.Latest(0))

	assert.Equal(t, []float64{10, 11, 12}, s.Closes())
	assert.Equal(t, []float64{100, 100, 100}, s.Volumes())
}

func TestSeriesBetween(t *testing.T) {
	s, err := NewSeries("USDJPY", Interval1m, []Candle{
		mustCandle(t, 0, 10, Interval1m),
		mustCandle(t, 60000, 11, Interval1m),
		mustCandle(t, 120000, 12, Interval1m),
		mustCandle(t, 180000, 13, Interval1m),
	})
	require.NoError(t, err)

	// 闭区间，两端都命中
	got := s.Between(60000, 120000)
	require.Len(t, got, 2)
	assert.Equal(t, int64(60000), got[0].OpenTime)
	assert.Equal(t, int64(120000), got[1].OpenTime)

	// 0 表示该侧不设界
	assert.Len(t, s.Between(0, 60000), 2)
	assert.Len(t, s.Between(120000, 0), 2)
	assert.Len(t, s.Between(0, 0), 4)

	// 区间外与空序列
	assert.Nil(t, s.Between(300000, 400000))
	empty, err := NewSeries("USDJPY", Interval1m, nil)
	require.NoError(t, err)
	assert.Nil(t, empty.Between(0, 0))

	// 返回的是副本，改写不影响原序列
	got[0].Close = 999
	assert.Equal(t, 11.0, s.Candles[1].Close)
}

func TestSeriesEmptyAndClone(t *testing.T) {
	var nilSeries *Series
	assert.Equal(t, 0, nilSeries.Len())

	s, err := NewSeries("XAUUSD", Interval1d, nil)
	require.NoError(t, err)
	_, ok := s.First()
	assert.False(t, ok)

	require.NoError(t, s.Append(mustCandle(t, 0, 2050, Interval1d)))
	clone := s.Clone()
	clone.Candles[0].Close = 1
	assert.Equal(t, float64(2050), s.Candles[0].Close)
}
