package market

import (
	"fmt"
	"sort"
)

// Series 是单个 symbol + interval 的有序 K 线集合。
// 不变量：Candles 始终按 OpenTime 升序；每根 K 线的 Interval 与 Series 一致。
// 空序列是合法的，只是不携带统计信息。
type Series struct {
	Symbol   string   `json:"symbol"`
	Interval Interval `json:"interval"`
	Candles  []Candle `json:"candles"`
}

// NewSeries 构造序列并立即排序。不校验单根 K 线（构造期已校验），
// 但拒绝周期不匹配的输入。
func NewSeries(symbol string, interval Interval, candles []Candle) (*Series, error) {
	for _, c := range candles {
		if c.Interval != interval {
			return nil, fmt.Errorf("series %s@%s: K 线周期 %s 不匹配", symbol, interval, c.Interval)
		}
	}
	dst := make([]Candle, len(candles))
	copy(dst, candles)
	s := &Series{Symbol: symbol, Interval: interval, Candles: dst}
	s.sortCandles()
	return s, nil
}

func (s *Series) sortCandles() {
	sort.Slice(s.Candles, func(i, j int) bool {
		return s.Candles[i].OpenTime < s.Candles[j].OpenTime
	})
}

// Append 插入一根 K 线并重新排序，周期不匹配直接拒绝。
func (s *Series) Append(c Candle) error {
	if c.Interval != s.Interval {
		return fmt.Errorf("series %s@%s: K 线周期 %s 不匹配", s.Symbol, s.Interval, c.Interval)
	}
	s.Candles = append(s.Candles, c)
	// 绝大多数插入是追加在尾部，只有乱序时才需要整体排序
	if n := len(s.Candles); n > 1 && s.Candles[n-2].OpenTime > s.Candles[n-1].OpenTime {
		s.sortCandles()
	}
	return nil
}

func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Candles)
}

func (s *Series) At(i int) Candle { return s.Candles[i] }

func (s *Series) First() (Candle, bool) {
	if s.Len() == 0 {
		return Candle{}, false
	}
	return s.Candles[0], true
}

func (s *Series) Last() (Candle, bool) {
	if s.Len() == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// Latest 返回最近 n 根；n 超过长度时返回全部。
func (s *Series) Latest(n int) []Candle {
	if n <= 0 || s.Len() == 0 {
		return nil
	}
	if n > len(s.Candles) {
		n = len(s.Candles)
	}
	out := make([]Candle, n)
	copy(out, s.Candles[len(s.Candles)-n:])
	return out
}

// Between 返回 OpenTime 落在闭区间 [start, end] 内的 K 线副本；
// 边界传 0 表示该侧不设界。
func (s *Series) Between(start, end int64) []Candle {
	if s.Len() == 0 {
		return nil
	}
	lo := 0
	if start > 0 {
		lo = sort.Search(len(s.Candles), func(i int) bool {
			return s.Candles[i].OpenTime >= start
		})
	}
	hi := len(s.Candles)
	if end > 0 {
		hi = sort.Search(len(s.Candles), func(i int) bool {
			return s.Candles[i].OpenTime > end
		})
	}
	if lo >= hi {
		return nil
	}
	out := make([]Candle, hi-lo)
	copy(out, s.Candles[lo:hi])
	return out
}

// Timestamps 返回全部 OpenTime（升序）。
func (s *Series) Timestamps() []int64 {
	out := make([]int64, s.Len())
	for i, c := range s.Candles {
		out[i] = c.OpenTime
	}
	return out
}

func (s *Series) Closes() []float64 {
	out := make([]float64, s.Len())
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

func (s *Series) Highs() []float64 {
	out := make([]float64, s.Len())
	for i, c := range s.Candles {
		out[i] = c.High
	}
	return out
}

func (s *Series) Lows() []float64 {
	out := make([]float64, s.Len())
	for i, c := range s.Candles {
		out[i] = c.Low
	}
	return out
}

func (s *Series) Volumes() []float64 {
	out := make([]float64, s.Len())
	for i, c := range s.Candles {
		out[i] = c.Volume
	}
	return out
}

// Clone 做深拷贝，缓存写入时用它保证快照不被调用方后续修改污染。
func (s *Series) Clone() *Series {
	if s == nil {
		return nil
	}
	dst := make([]Candle, len(s.Candles))
	copy(dst, s.Candles)
	return &Series{Symbol: s.Symbol, Interval: s.Interval, Candles: dst}
}
