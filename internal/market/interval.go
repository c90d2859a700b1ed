package market

import (
	"fmt"
	"strings"
	"time"
)

// Interval 是闭合的 K 线周期枚举。所有 switch 必须覆盖全部六个周期，
// 新增周期时编译器路径（exhaustive switch + default panic in tests）会暴露遗漏。
type Interval int

const (
	Interval1m Interval = iota
	Interval5m
	Interval15m
	Interval1h
	Interval4h
	Interval1d
)

// Intervals 按从细到粗排列。
func Intervals() []Interval {
	return []Interval{Interval1m, Interval5m, Interval15m, Interval1h, Interval4h, Interval1d}
}

func (iv Interval) String() string {
	switch iv {
	case Interval1m:
		return "1m"
	case Interval5m:
		return "5m"
	case Interval15m:
		return "15m"
	case Interval1h:
		return "1h"
	case Interval4h:
		return "4h"
	case Interval1d:
		return "1d"
	default:
		return fmt.Sprintf("interval(%d)", int(iv))
	}
}

// Minutes 返回周期宽度（分钟）。
func (iv Interval) Minutes() int {
	switch iv {
	case Interval1m:
		return 1
	case Interval5m:
		return 5
	case Interval15m:
		return 15
	case Interval1h:
		return 60
	case Interval4h:
		return 240
	case Interval1d:
		return 1440
	default:
		return 0
	}
}

func (iv Interval) Duration() time.Duration {
	return time.Duration(iv.Minutes()) * time.Minute
}

// DurationMillis 返回周期宽度（毫秒），K 线时间戳统一用 Unix 毫秒。
func (iv Interval) DurationMillis() int64 {
	return int64(iv.Minutes()) * 60_000
}

// DefaultTTLMinutes 是缓存层的默认新鲜度窗口。周期越粗，数据变化越慢。
func (iv Interval) DefaultTTLMinutes() int {
	switch iv {
	case Interval1m:
		return 5
	case Interval5m:
		return 10
	case Interval15m:
		return 30
	case Interval1h:
		return 120
	case Interval4h:
		return 480
	case Interval1d:
		return 1440
	default:
		return 60
	}
}

// ParseInterval 解析 "5m"/"1h" 等表示，大小写不敏感。
func ParseInterval(s string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1m":
		return Interval1m, nil
	case "5m":
		return Interval5m, nil
	case "15m":
		return Interval15m, nil
	case "1h":
		return Interval1h, nil
	case "4h":
		return Interval4h, nil
	case "1d":
		return Interval1d, nil
	default:
		return 0, fmt.Errorf("不支持的周期: %s", s)
	}
}

// AlignDown 将毫秒时间戳对齐到本周期网格的下边界。
func (iv Interval) AlignDown(ts int64) int64 {
	step := iv.DurationMillis()
	if step <= 0 {
		return ts
	}
	rem := ts % step
	if rem < 0 {
		rem += step
	}
	return ts - rem
}

// MarshalText/UnmarshalText 让 Interval 以 "5m" 形式进出 JSON 快照。
func (iv Interval) MarshalText() ([]byte, error) {
	return []byte(iv.String()), nil
}

func (iv *Interval) UnmarshalText(b []byte) error {
	parsed, err := ParseInterval(string(b))
	if err != nil {
		return err
	}
	*iv = parsed
	return nil
}
