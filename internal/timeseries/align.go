package timeseries

import (
	"fmt"
	"sort"
	"strings"

	"candlevault/internal/logger"
	"candlevault/internal/market"
)

// AlignMethod 枚举多序列对齐方式。
type AlignMethod int

const (
	// AlignInner 保留所有序列共同拥有的时间戳（交集）。
	AlignInner AlignMethod = iota
	// AlignOuter 扩展到时间戳并集，缺失点按各自序列向前填充；
	// 序列首根之前的并集点无值可携带，直接丢弃。
	AlignOuter
)

func (m AlignMethod) String() string {
	switch m {
	case AlignInner:
		return "inner"
	case AlignOuter:
		return "outer"
	default:
		return fmt.Sprintf("align(%d)", int(m))
	}
}

// ParseAlignMethod 解析 "inner"/"outer"。
func ParseAlignMethod(s string) (AlignMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inner":
		return AlignInner, nil
	case "outer":
		return AlignOuter, nil
	default:
		return 0, fmt.Errorf("%w: 未知对齐方式 %q", ErrInvalidParameter, s)
	}
}

// AlignMultiple 将多个同周期序列按时间戳对齐，返回与输入同顺序的新序列。
// 所有输入必须是同一周期，否则返回参数错误。
func AlignMultiple(list []*market.Series, method AlignMethod) ([]*market.Series, error) {
	if len(list) == 0 {
		return nil, nil
	}
	if len(list) == 1 {
		return []*market.Series{list[0].Clone()}, nil
	}
	interval := list[0].Interval
	for _, s := range list {
		if s == nil {
			return nil, fmt.Errorf("%w: 对齐输入包含空序列", ErrInvalidParameter)
		}
		if s.Interval != interval {
			return nil, fmt.Errorf("%w: 对齐要求所有序列同周期，遇到 %s 与 %s",
				ErrInvalidParameter, interval, s.Interval)
		}
	}

	var grid []int64
	switch method {
	case AlignInner:
		grid = intersectTimestamps(list)
	case AlignOuter:
		grid = unionTimestamps(list)
	default:
		return nil, fmt.Errorf("%w: 未知对齐方式 %s", ErrInvalidParameter, method)
	}

	out := make([]*market.Series, 0, len(list))
	for _, s := range list {
		aligned, err := reindex(s, grid, method == AlignOuter)
		if err != nil {
			return nil, err
		}
		out = append(out, aligned)
	}
	logger.Infof("[align] %d 个序列按 %s 对齐，网格=%d 点", len(list), method, len(grid))
	return out, nil
}

func intersectTimestamps(list []*market.Series) []int64 {
	counts := make(map[int64]int)
	for _, s := range list {
		// 同一序列内的重复时间戳只计一次，否则重复会冒充其它序列的出现
		seen := make(map[int64]struct{}, s.Len())
		for _, c := range s.Candles {
			if _, dup := seen[c.OpenTime]; dup {
				continue
			}
			seen[c.OpenTime] = struct{}{}
			counts[c.OpenTime]++
		}
	}
	var grid []int64
	for ts, n := range counts {
		if n == len(list) {
			grid = append(grid, ts)
		}
	}
	sort.Slice(grid, func(i, j int) bool { return grid[i] < grid[j] })
	return grid
}

func unionTimestamps(list []*market.Series) []int64 {
	seen := make(map[int64]struct{})
	for _, s := range list {
		for _, c := range s.Candles {
			seen[c.OpenTime] = struct{}{}
		}
	}
	grid := make([]int64, 0, len(seen))
	for ts := range seen {
		grid = append(grid, ts)
	}
	sort.Slice(grid, func(i, j int) bool { return grid[i] < grid[j] })
	return grid
}

// reindex 将序列投影到给定时间戳网格。fill 为 true 时缺失点携带最近一根
// 真实 K 线（outer 对齐）；为 false 时网格点保证存在于序列中（inner 对齐）。
func reindex(s *market.Series, grid []int64, fill bool) (*market.Series, error) {
	out, err := market.NewSeries(s.Symbol, s.Interval, nil)
	if err != nil {
		return nil, err
	}
	idx := 0
	var carry market.Candle
	hasCarry := false
	for _, ts := range grid {
		for idx < len(s.Candles) && s.Candles[idx].OpenTime < ts {
			carry = s.Candles[idx]
			hasCarry = true
			idx++
		}
		if idx < len(s.Candles) && s.Candles[idx].OpenTime == ts {
			carry = s.Candles[idx]
			hasCarry = true
			out.Candles = append(out.Candles, carry)
			idx++
			continue
		}
		if fill && hasCarry {
			synthetic := carry
			synthetic.OpenTime = ts
			out.Candles = append(out.Candles, synthetic)
		}
	}
	return out, nil
}
