package market

import (
	"fmt"
	"math"
)

// Candle 是单根 OHLCV K 线。OpenTime 为 Unix 毫秒（桶左边界），构造后不再修改。
type Candle struct {
	OpenTime int64    `json:"open_time"`
	Open     float64  `json:"open"`
	High     float64  `json:"high"`
	Low      float64  `json:"low"`
	Close    float64  `json:"close"`
	Volume   float64  `json:"volume"`
	Interval Interval `json:"interval"`
}

// NewCandle 校验 OHLC 不变量后构造 K 线。非法数据直接拒绝，不做静默修复。
func NewCandle(openTime int64, open, high, low, closePx, volume float64, interval Interval) (Candle, error) {
	for _, v := range []float64{open, high, low, closePx, volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Candle{}, fmt.Errorf("candle@%d: 包含 NaN/Inf 字段", openTime)
		}
	}
	if high < math.Max(open, closePx) {
		return Candle{}, fmt.Errorf("candle@%d: high %.8f < max(open, close)", openTime, high)
	}
	if low > math.Min(open, closePx) {
		return Candle{}, fmt.Errorf("candle@%d: low %.8f > min(open, close)", openTime, low)
	}
	if volume < 0 {
		return Candle{}, fmt.Errorf("candle@%d: volume %.8f 为负", openTime, volume)
	}
	return Candle{
		OpenTime: openTime,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePx,
		Volume:   volume,
		Interval: interval,
	}, nil
}

func (c Candle) IsBullish() bool { return c.Close > c.Open }
func (c Candle) IsBearish() bool { return c.Close < c.Open }

// BodySize 返回实体长度 |close-open|。
func (c Candle) BodySize() float64 { return math.Abs(c.Close - c.Open) }

func (c Candle) UpperWick() float64 { return c.High - math.Max(c.Open, c.Close) }
func (c Candle) LowerWick() float64 { return math.Min(c.Open, c.Close) - c.Low }

// Range 返回振幅 high-low。
func (c Candle) Range() float64 { return c.High - c.Low }
