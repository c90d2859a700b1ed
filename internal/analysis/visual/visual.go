// Package visual 把 K 线序列渲染成自包含的 ECharts HTML 页面，
// 供浏览器直接打开或由 HTTP 图表接口返回。
package visual

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"candlevault/internal/analysis/indicator"
	"candlevault/internal/market"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorEmaFast       = "#3b82f6"
	colorEmaSlow       = "#f472b6"

	chartWidthPx   = 1600
	klineHeightPx  = 600
	volumeHeightPx = 260
)

// RenderHTML 渲染 K 线 + EMA 叠加 + 成交量两块图表并写入 w。
// rep 可为零值，此时不画 EMA 叠加线。
func RenderHTML(w io.Writer, s *market.Series, rep indicator.Report) error {
	if s == nil || s.Len() == 0 {
		return fmt.Errorf("序列为空，无法渲染图表")
	}
	xAxis := buildXAxis(s.Candles)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(buildKlineChart(s, xAxis, rep), buildVolumeChart(s, xAxis))
	return page.Render(w)
}

func buildKlineChart(s *market.Series, xAxis []string, rep indicator.Report) *charts.Kline {
	minPrice, maxPrice := priceBounds(s.Candles)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", klineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s", strings.ToUpper(s.Symbol), s.Interval.String()),
			Subtitle:      buildSubtitle(rep),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	data := make([]opts.KlineData, 0, len(s.Candles))
	for _, c := range s.Candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", data)

	if line := buildEMALine(len(s.Candles), rep); line != nil {
		line.SetXAxis(xAxis)
		kline.Overlap(line)
	}
	return kline
}

func buildEMALine(length int, rep indicator.Report) *charts.Line {
	fast, okFast := rep.Values["ema_fast"]
	slow, okSlow := rep.Values["ema_slow"]
	if !okFast && !okSlow {
		return nil
	}
	line := charts.NewLine()
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	if okFast {
		line.AddSeries(legendLabel(fast.Note, "EMA Fast"), toLineData(fast.Series, length),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorEmaFast, Width: 2}))
	}
	if okSlow {
		line.AddSeries(legendLabel(slow.Note, "EMA Slow"), toLineData(slow.Series, length),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorEmaSlow, Width: 2}))
	}
	return line
}

func buildVolumeChart(s *market.Series, xAxis []string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", volumeHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Volume", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			SplitNumber: 6,
			AxisLabel:   &opts.AxisLabel{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	vols := make([]opts.BarData, len(s.Candles))
	for i, c := range s.Candles {
		color := colorBear
		if c.Close >= c.Open {
			color = colorBull
		}
		vols[i] = opts.BarData{
			Value:     c.Volume,
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.6)},
		}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("Volume", vols)
	return bar
}

func buildSubtitle(rep indicator.Report) string {
	if len(rep.Values) == 0 {
		return ""
	}
	rsi := rep.Values["rsi"]
	macd := rep.Values["macd"]
	return fmt.Sprintf("RSI %.1f (%s) | MACD %s", rsi.Latest, rsi.State, macd.State)
}

func buildXAxis(candles []market.Candle) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = time.UnixMilli(c.OpenTime).UTC().Format("01-02 15:04")
	}
	return x
}

// toLineData 右对齐指标序列：talib 预热段被裁掉后序列偏短，前面补空值。
func toLineData(series []float64, length int) []opts.LineData {
	out := make([]opts.LineData, length)
	offset := length - len(series)
	for i := 0; i < length; i++ {
		if i < offset {
			out[i] = opts.LineData{Value: "-"}
			continue
		}
		out[i] = opts.LineData{Value: series[i-offset]}
	}
	return out
}

func legendLabel(note, fallback string) string {
	fields := strings.Fields(strings.TrimSpace(note))
	if len(fields) > 0 && fields[0] != "" {
		return fields[0]
	}
	return fallback
}

func priceBounds(candles []market.Candle) (minVal, maxVal float64) {
	minVal = math.Inf(1)
	maxVal = math.Inf(-1)
	for _, c := range candles {
		minVal = math.Min(minVal, c.Low)
		maxVal = math.Max(maxVal, c.High)
	}
	return
}

func round(val float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(val*factor) / factor
}
