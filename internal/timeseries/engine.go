// Package timeseries 提供对 market.Series 的纯函数变换：
// 重采样、缺口填充、时间切片、滚动窗口、多序列对齐与统计。
// 所有操作不持有状态，输入序列不会被修改。
package timeseries

import (
	"fmt"
	"sort"

	"candlevault/internal/logger"
	"candlevault/internal/market"
)

// Resample 将序列聚合到更粗的周期。桶边界按 target 周期对齐到日历网格
// （Unix 毫秒整除），聚合规则：open=首根 open，high=max，low=min，
// close=末根 close，volume=求和。没有任何成分 K 线的桶不产出（不补零行）。
func Resample(s *market.Series, target market.Interval) (*market.Series, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: series 为空", ErrInvalidParameter)
	}
	if target.Minutes() <= s.Interval.Minutes() {
		return nil, fmt.Errorf("%w: 不能从 %s 重采样到 %s，目标周期必须更粗",
			ErrInvalidParameter, s.Interval, target)
	}

	out, err := market.NewSeries(s.Symbol, target, nil)
	if err != nil {
		return nil, err
	}
	var (
		bucket  int64
		cur     market.Candle
		started bool
	)
	flush := func() {
		if !started {
			return
		}
		out.Candles = append(out.Candles, cur)
	}
	for _, c := range s.Candles {
		b := target.AlignDown(c.OpenTime)
		if !started || b != bucket {
			flush()
			bucket = b
			cur = market.Candle{
				OpenTime: b,
				Open:     c.Open,
				High:     c.High,
				Low:      c.Low,
				Close:    c.Close,
				Volume:   c.Volume,
				Interval: target,
			}
			started = true
			continue
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	flush()

	logger.Debugf("[resample] %s %s→%s 输入=%d 输出=%d", s.Symbol, s.Interval, target, s.Len(), out.Len())
	return out, nil
}

// ForwardFill 在首尾 K 线之间按本周期网格补齐缺失点：缺口内的点复制最近一根
// 真实 K 线（仅 OpenTime 改为网格点）。连续缺失超过 maxGap 的整段缺口不填充，
// 其网格点直接从输出中丢弃——宁可留洞也不伪造无界历史。maxGap<=0 表示不填充。
func ForwardFill(s *market.Series, maxGap int) (*market.Series, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: series 为空", ErrInvalidParameter)
	}
	if s.Len() < 2 {
		return s.Clone(), nil
	}

	step := s.Interval.DurationMillis()
	out, err := market.NewSeries(s.Symbol, s.Interval, nil)
	if err != nil {
		return nil, err
	}

	filled := 0
	idx := 0
	carry := s.Candles[0]
	first, last := s.Candles[0].OpenTime, s.Candles[len(s.Candles)-1].OpenTime
	for ts := first; ts <= last; {
		if idx < len(s.Candles) && s.Candles[idx].OpenTime == ts {
			carry = s.Candles[idx]
			out.Candles = append(out.Candles, carry)
			idx++
			ts += step
			continue
		}
		// 统计本段连续缺失长度
		next := last + step
		if idx < len(s.Candles) {
			next = s.Candles[idx].OpenTime
		}
		run := int((next - ts) / step)
		if maxGap > 0 && run <= maxGap {
			for ; ts < next; ts += step {
				synthetic := carry
				synthetic.OpenTime = ts
				out.Candles = append(out.Candles, synthetic)
				filled++
			}
		} else {
			ts = next
		}
	}

	if filled > 0 {
		logger.Infof("[ffill] %s %s 补齐 %d 根缺失 K 线", s.Symbol, s.Interval, filled)
	}
	return out, nil
}

// SliceByTime 按 OpenTime 闭区间过滤；start/end 传 0 表示该侧不设界。
// 返回的新序列与原序列共享底层 K 线值。
func SliceByTime(s *market.Series, start, end int64) *market.Series {
	if s == nil {
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
	if lo > hi {
		lo = hi
	}
	return &market.Series{Symbol: s.Symbol, Interval: s.Interval, Candles: s.Candles[lo:hi]}
}

// RollingWindows 产出所有长度恰为 windowSize 的连续子序列，窗口起点每次
// 前进 step。剩余不足 windowSize 时停止；序列过短时返回零个窗口。
// 子序列与原序列共享底层数组，调用方不应修改。
func RollingWindows(s *market.Series, windowSize, step int) ([]*market.Series, error) {
	if s == nil || windowSize <= 0 {
		return nil, fmt.Errorf("%w: windowSize 必须为正", ErrInvalidParameter)
	}
	if step <= 0 {
		step = 1
	}
	var windows []*market.Series
	for i := 0; i+windowSize <= s.Len(); i += step {
		windows = append(windows, &market.Series{
			Symbol:   s.Symbol,
			Interval: s.Interval,
			Candles:  s.Candles[i : i+windowSize],
		})
	}
	logger.Debugf("[rolling] %s 窗口=%d 步长=%d 产出=%d", s.Symbol, windowSize, step, len(windows))
	return windows, nil
}
