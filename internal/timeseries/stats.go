package timeseries

import (
	"fmt"
	"math"
	"strings"

	"candlevault/internal/market"
)

// VolMethod 枚举波动率计算方式。
type VolMethod int

const (
	// VolStd 用单步收益率的滚动标准差。
	VolStd VolMethod = iota
	// VolATR 用真实波幅（true range）的滚动均值。
	VolATR
)

func (m VolMethod) String() string {
	switch m {
	case VolStd:
		return "std"
	case VolATR:
		return "atr"
	default:
		return fmt.Sprintf("vol(%d)", int(m))
	}
}

// ParseVolMethod 解析 "std"/"atr"。
func ParseVolMethod(s string) (VolMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "std":
		return VolStd, nil
	case "atr":
		return VolATR, nil
	default:
		return 0, fmt.Errorf("%w: 未知波动率方法 %q", ErrInvalidParameter, s)
	}
}

// Returns 计算 close 的 period 步简单收益率。输出与输入 K 线一一对应，
// 前 period 个位置没有参照值，填 NaN。
func Returns(s *market.Series, period int) ([]float64, error) {
	if s == nil || period <= 0 {
		return nil, fmt.Errorf("%w: period 必须为正", ErrInvalidParameter)
	}
	out := make([]float64, s.Len())
	for i := range out {
		if i < period {
			out[i] = math.NaN()
			continue
		}
		prev := s.Candles[i-period].Close
		out[i] = (s.Candles[i].Close - prev) / prev
	}
	return out, nil
}

// Volatility 计算滚动波动率。窗口未满的位置填 NaN：
// std 方法首个有效位置是 window（单步收益率本身消耗一个位置），
// atr 方法是 window-1（首根的 true range 退化为 high-low）。
func Volatility(s *market.Series, window int, method VolMethod) ([]float64, error) {
	if s == nil || window <= 0 {
		return nil, fmt.Errorf("%w: window 必须为正", ErrInvalidParameter)
	}
	switch method {
	case VolStd:
		returns, err := Returns(s, 1)
		if err != nil {
			return nil, err
		}
		return rollingStd(returns, window), nil
	case VolATR:
		return rollingMean(trueRanges(s), window), nil
	default:
		return nil, fmt.Errorf("%w: 未知波动率方法 %s", ErrInvalidParameter, method)
	}
}

func trueRanges(s *market.Series) []float64 {
	tr := make([]float64, s.Len())
	for i, c := range s.Candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		prevClose := s.Candles[i-1].Close
		tr[i] = math.Max(c.High-c.Low,
			math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	return tr
}

// rollingStd 计算样本标准差（除 n-1），窗口内含 NaN 时结果为 NaN。
func rollingStd(vals []float64, window int) []float64 {
	out := make([]float64, len(vals))
	for i := range out {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sampleStd(vals[i-window+1 : i+1])
	}
	return out
}

func sampleStd(win []float64) float64 {
	if len(win) < 2 {
		return math.NaN()
	}
	var sum float64
	for _, v := range win {
		if math.IsNaN(v) {
			return math.NaN()
		}
		sum += v
	}
	mean := sum / float64(len(win))
	var ss float64
	for _, v := range win {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(win)-1))
}

func rollingMean(vals []float64, window int) []float64 {
	out := make([]float64, len(vals))
	var sum float64
	for i, v := range vals {
		sum += v
		if i >= window {
			sum -= vals[i-window]
		}
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}

// SummaryStats 汇总一个序列的基础统计量。
type SummaryStats struct {
	Count          int     `json:"count"`
	StartTime      int64   `json:"start_time"`
	EndTime        int64   `json:"end_time"`
	FirstOpen      float64 `json:"first_open"`
	LastClose      float64 `json:"last_close"`
	MaxHigh        float64 `json:"max_high"`
	MinLow         float64 `json:"min_low"`
	TotalVolume    float64 `json:"total_volume"`
	MeanVolume     float64 `json:"mean_volume"`
	PriceChange    float64 `json:"price_change"`
	PriceChangePct float64 `json:"price_change_pct"`
}

// SummaryStatistics 计算摘要统计，空序列返回 ErrEmptySeries。
// 首根 open 为 0 时涨跌幅无法定义，PriceChangePct 保持 0。
func SummaryStatistics(s *market.Series) (SummaryStats, error) {
	if s.Len() == 0 {
		return SummaryStats{}, ErrEmptySeries
	}
	first := s.Candles[0]
	last := s.Candles[len(s.Candles)-1]
	stats := SummaryStats{
		Count:     s.Len(),
		StartTime: first.OpenTime,
		EndTime:   last.OpenTime,
		FirstOpen: first.Open,
		LastClose: last.Close,
		MaxHigh:   first.High,
		MinLow:    first.Low,
	}
	for _, c := range s.Candles {
		if c.High > stats.MaxHigh {
			stats.MaxHigh = c.High
		}
		if c.Low < stats.MinLow {
			stats.MinLow = c.Low
		}
		stats.TotalVolume += c.Volume
	}
	stats.MeanVolume = stats.TotalVolume / float64(s.Len())
	stats.PriceChange = last.Close - first.Open
	if first.Open != 0 {
		stats.PriceChangePct = stats.PriceChange / first.Open * 100
	}
	return stats, nil
}
