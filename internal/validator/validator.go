// Package validator 对 K 线数据做咨询式校验：默认只告警并返回布尔结果，
// Strict 模式升级为错误。缓存与时序引擎不依赖校验结论。
package validator

import (
	"errors"
	"fmt"
	"math"

	"candlevault/internal/logger"
	"candlevault/internal/market"
)

// ErrValidation 标记 Strict 模式下的校验失败。
var ErrValidation = errors.New("validator: validation failed")

// Gap 表示一段数据缺口：前后两根真实 K 线的 OpenTime。
type Gap struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type Validator struct {
	// Strict 为 true 时校验失败返回错误而不是仅告警。
	Strict bool
}

func New(strict bool) *Validator {
	return &Validator{Strict: strict}
}

// ValidateCandle 检查单根 K 线的取值关系。构造期已保证大部分不变量，
// 这里兼容来源不明的 K 线（手工构造、反序列化）。
func (v *Validator) ValidateCandle(c market.Candle) (bool, error) {
	var problems []string
	for _, f := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(f) {
			problems = append(problems, "包含 NaN 字段")
			break
		}
	}
	if c.High < c.Open || c.High < c.Close {
		problems = append(problems, fmt.Sprintf("high %.8f 低于 open/close", c.High))
	}
	if c.Low > c.Open || c.Low > c.Close {
		problems = append(problems, fmt.Sprintf("low %.8f 高于 open/close", c.Low))
	}
	if c.Volume < 0 {
		problems = append(problems, fmt.Sprintf("volume %.8f 为负", c.Volume))
	}
	if c.Open < 0 || c.High < 0 || c.Low < 0 || c.Close < 0 {
		problems = append(problems, "价格为负")
	}
	if c.Open == 0 || c.High == 0 || c.Low == 0 || c.Close == 0 {
		// 零价罕见但不算非法，只提示
		logger.Warnf("[validator] candle@%d 存在零价字段", c.OpenTime)
	}
	return v.report("candle", c.OpenTime, problems)
}

// ValidateSeries 检查整个序列：空序列、逐根校验、重复时间戳、周期间距一致性。
func (v *Validator) ValidateSeries(s *market.Series) (bool, error) {
	if s.Len() == 0 {
		return v.report("series", 0, []string{"序列为空"})
	}
	allValid := true
	for _, c := range s.Candles {
		ok, err := v.ValidateCandle(c)
		if err != nil {
			return false, err
		}
		if !ok {
			allValid = false
		}
	}

	seen := make(map[int64]struct{}, s.Len())
	dup := false
	for _, c := range s.Candles {
		if _, exists := seen[c.OpenTime]; exists {
			dup = true
			break
		}
		seen[c.OpenTime] = struct{}{}
	}
	if dup {
		ok, err := v.report("series", 0, []string{fmt.Sprintf("%s 存在重复时间戳", s.Symbol)})
		if err != nil {
			return false, err
		}
		allValid = allValid && ok
	}

	if !v.consistentSpacing(s) {
		allValid = false
	}
	return allValid, nil
}

// consistentSpacing 检查相邻 K 线间距是否恰为一个周期宽度。
// 不一致只告警，不会升级为错误（缺口由 CheckGaps 单独汇报）。
func (v *Validator) consistentSpacing(s *market.Series) bool {
	if s.Len() < 2 {
		return true
	}
	step := s.Interval.DurationMillis()
	issues := 0
	for i := 1; i < len(s.Candles); i++ {
		if s.Candles[i].OpenTime-s.Candles[i-1].OpenTime != step {
			issues++
		}
	}
	if issues > 0 {
		logger.Warnf("[validator] %s %s 存在 %d 处间距异常", s.Symbol, s.Interval, issues)
		return false
	}
	return true
}

// CheckGaps 找出超过 maxGapMultiple 个周期宽度的缺口。
func (v *Validator) CheckGaps(s *market.Series, maxGapMultiple int) []Gap {
	if s.Len() < 2 {
		return nil
	}
	if maxGapMultiple <= 0 {
		maxGapMultiple = 2
	}
	maxDelta := s.Interval.DurationMillis() * int64(maxGapMultiple)
	var gaps []Gap
	for i := 1; i < len(s.Candles); i++ {
		if s.Candles[i].OpenTime-s.Candles[i-1].OpenTime > maxDelta {
			gaps = append(gaps, Gap{Start: s.Candles[i-1].OpenTime, End: s.Candles[i].OpenTime})
		}
	}
	if len(gaps) > 0 {
		logger.Infof("[validator] %s %s 发现 %d 处缺口", s.Symbol, s.Interval, len(gaps))
	}
	return gaps
}

// ValidatePriceRange 检查价格是否落在合理区间内。
func (v *Validator) ValidatePriceRange(c market.Candle, minPrice, maxPrice float64) (bool, error) {
	for _, px := range []float64{c.Open, c.High, c.Low, c.Close} {
		if px < minPrice || px > maxPrice {
			return v.report("candle", c.OpenTime,
				[]string{fmt.Sprintf("价格 %.8f 超出区间 [%.8f, %.8f]", px, minPrice, maxPrice)})
		}
	}
	return true, nil
}

func (v *Validator) report(kind string, ts int64, problems []string) (bool, error) {
	if len(problems) == 0 {
		return true, nil
	}
	msg := fmt.Sprintf("%s@%d: %v", kind, ts, problems)
	if v.Strict {
		return false, fmt.Errorf("%w: %s", ErrValidation, msg)
	}
	logger.Warnf("[validator] %s", msg)
	return false, nil
}
