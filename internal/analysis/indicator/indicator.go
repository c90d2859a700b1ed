// Package indicator 基于归一化后的 K 线序列计算常用技术指标快照，
// 供 HTTP 摘要接口与可视化模块复用。
package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"candlevault/internal/market"
)

// Settings 描述计算指标所需的最小配置，零值字段使用内置默认。
type Settings struct {
	EMA EMASettings `json:"ema"`
	RSI RSISettings `json:"rsi"`
	ATR int         `json:"atr_period"`
}

// EMASettings 描述 EMA 指标参数。
type EMASettings struct {
	Fast int `json:"fast,omitempty"`
	Slow int `json:"slow,omitempty"`
}

// RSISettings 描述 RSI 指标参数。
type RSISettings struct {
	Period     int     `json:"period,omitempty"`
	Oversold   float64 `json:"oversold,omitempty"`
	Overbought float64 `json:"overbought,omitempty"`
}

// Value 保存单个指标的最新值、序列与状态。
type Value struct {
	Latest float64   `json:"latest"`
	Series []float64 `json:"series,omitempty"`
	State  string    `json:"state,omitempty"`
	Note   string    `json:"note,omitempty"`
}

// Report 汇总单个 symbol+interval 的指标输出。
type Report struct {
	Symbol   string           `json:"symbol"`
	Interval string           `json:"interval"`
	Count    int              `json:"count"`
	Values   map[string]Value `json:"values"`
}

// Compute 对序列计算 EMA/RSI/MACD/ATR 快照。
func Compute(s *market.Series, cfg Settings) (Report, error) {
	if s == nil || s.Len() == 0 {
		return Report{}, fmt.Errorf("序列为空，无法计算指标")
	}
	rep := Report{
		Symbol:   s.Symbol,
		Interval: s.Interval.String(),
		Count:    s.Len(),
		Values:   make(map[string]Value),
	}
	closes := s.Closes()
	highs := s.Highs()
	lows := s.Lows()
	lastClose := closes[len(closes)-1]

	if cfg.EMA.Fast <= 0 {
		cfg.EMA.Fast = 21
	}
	if cfg.EMA.Slow <= 0 {
		cfg.EMA.Slow = 50
	}
	emaFast := trimLeadingZeros(sanitize(talib.Ema(closes, cfg.EMA.Fast)))
	emaSlow := trimLeadingZeros(sanitize(talib.Ema(closes, cfg.EMA.Slow)))
	rep.Values["ema_fast"] = Value{
		Latest: lastValid(emaFast),
		Series: emaFast,
		State:  relativeState(lastClose, lastValid(emaFast)),
		Note:   fmt.Sprintf("EMA%d vs price", cfg.EMA.Fast),
	}
	rep.Values["ema_slow"] = Value{
		Latest: lastValid(emaSlow),
		Series: emaSlow,
		State:  relativeState(lastClose, lastValid(emaSlow)),
		Note:   fmt.Sprintf("EMA%d vs price", cfg.EMA.Slow),
	}

	if cfg.RSI.Period <= 0 {
		cfg.RSI.Period = 14
	}
	if cfg.RSI.Overbought == 0 {
		cfg.RSI.Overbought = 70
	}
	if cfg.RSI.Oversold == 0 {
		cfg.RSI.Oversold = 30
	}
	rsi := sanitize(talib.Rsi(closes, cfg.RSI.Period))
	rsiVal := lastValid(rsi)
	rsiState := "neutral"
	switch {
	case rsiVal >= cfg.RSI.Overbought:
		rsiState = "overbought"
	case rsiVal <= cfg.RSI.Oversold:
		rsiState = "oversold"
	}
	rep.Values["rsi"] = Value{
		Latest: rsiVal,
		Series: rsi,
		State:  rsiState,
		Note:   fmt.Sprintf("period=%d thresholds=%.1f/%.1f", cfg.RSI.Period, cfg.RSI.Oversold, cfg.RSI.Overbought),
	}

	_, signal, hist := talib.Macd(closes, 12, 26, 9)
	histSeries := sanitize(hist)
	macdState := "flat"
	switch {
	case lastValid(histSeries) > 0:
		macdState = "bullish"
	case lastValid(histSeries) < 0:
		macdState = "bearish"
	}
	rep.Values["macd"] = Value{
		Latest: lastValid(histSeries),
		Series: histSeries,
		State:  macdState,
		Note:   fmt.Sprintf("signal=%.4f", lastValid(sanitize(signal))),
	}

	if cfg.ATR <= 0 {
		cfg.ATR = 14
	}
	atr := trimLeadingZeros(sanitize(talib.Atr(highs, lows, closes, cfg.ATR)))
	rep.Values["atr"] = Value{
		Latest: lastValid(atr),
		Series: atr,
		State:  "volatility",
		Note:   fmt.Sprintf("period=%d", cfg.ATR),
	}

	return rep, nil
}

func sanitize(src []float64) []float64 {
	out := make([]float64, 0, len(src))
	for _, v := range src {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, round4(v))
	}
	return out
}

// trimLeadingZeros drops TALib's zero-seeded warmup values.
func trimLeadingZeros(series []float64) []float64 {
	start := 0
	for start < len(series) && math.Abs(series[start]) <= 1e-9 {
		start++
	}
	return series[start:]
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}

func relativeState(price, ref float64) string {
	if ref == 0 {
		return "unknown"
	}
	if price >= ref {
		return "above"
	}
	return "below"
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
