package indicator

import (
	"math"
	"testing"

	"candlevault/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trendSeries(t *testing.T, n int) *market.Series {
	t.Helper()
	candles := make([]market.Candle, 0, n)
	px := 100.0
	for i := 0; i < n; i++ {
		// 缓慢上行加一点波动，保证指标有非平凡输出
		drift := 0.3
		if i%5 == 0 {
			drift = -0.2
		}
		open := px
		px += drift
		c, err := market.NewCandle(int64(i)*300_000, open, math.Max(open, px)+0.5, math.Min(open, px)-0.5, px, 50, market.Interval5m)
		require.NoError(t, err)
		candles = append(candles, c)
	}
	s, err := market.NewSeries("EURUSD", market.Interval5m, candles)
	require.NoError(t, err)
	return s
}

func TestComputeReport(t *testing.T) {
	s := trendSeries(t, 120)
	rep, err := Compute(s, Settings{})
	require.NoError(t, err)

	assert.Equal(t, "EURUSD", rep.Symbol)
	assert.Equal(t, "5m", rep.Interval)
	assert.Equal(t, 120, rep.Count)
	for _, key := range []string{"ema_fast", "ema_slow", "rsi", "macd", "atr"} {
		v, ok := rep.Values[key]
		require.True(t, ok, key)
		assert.NotEmpty(t, v.Series, key)
	}
	// 上涨趋势下收盘价应高于快线，RSI 落在有效区间
	assert.Equal(t, "above", rep.Values["ema_fast"].State)
	rsi := rep.Values["rsi"].Latest
	assert.Greater(t, rsi, 0.0)
	assert.LessOrEqual(t, rsi, 100.0)
	assert.Greater(t, rep.Values["atr"].Latest, 0.0)
}

func TestComputeEmptySeries(t *testing.T) {
	_, err := Compute(nil, Settings{})
	assert.Error(t, err)
}

func TestComputeATRWarmupTrimmed(t *testing.T) {
	s := trendSeries(t, 40)
	rep, err := Compute(s, Settings{ATR: 14})
	require.NoError(t, err)
	atr := rep.Values["atr"].Series
	// talib 预热段被裁掉，剩余长度 = n - period
	assert.Len(t, atr, 40-14)
	for _, v := range atr {
		assert.Greater(t, v, 0.0)
	}
}
