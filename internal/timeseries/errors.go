package timeseries

import "errors"

// ErrInvalidParameter 标记调用方参数错误（非法周期组合、未知方法等），
// 调用方可用 errors.Is 区分参数错误与数据问题。
var ErrInvalidParameter = errors.New("timeseries: invalid parameter")

// ErrEmptySeries 在需要至少一根 K 线的统计操作遇到空序列时返回。
var ErrEmptySeries = errors.New("timeseries: empty series")
