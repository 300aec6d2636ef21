package chart

import (
	"io"

	"BikeShareDashboard/src/processor"
)

// 图表类型
const (
	KindLine = "line"
	KindBar  = "bar"
)

// 调色板, 排名第一的柱子高亮, 其余灰色
const (
	ColorHighlight = "#72BCD4"
	ColorMuted     = "#D3D3D3"
	ColorCasual    = "#66c2a5"
	ColorRegister  = "#fc8d62"
)

// Series 一条数据序列
type Series struct {
	Name   string
	Values []float64
	Color  string
}

// Spec 一张图的描述, 与具体渲染方式无关
type Spec struct {
	Name   string
	Title  string
	Kind   string
	Labels []string
	Values []float64 // 主序列
	Color  string
	Colors []string // 柱状图逐个柱子的颜色, 为空时使用 Color
	Extra  []Series // 折线图的附加序列
}

// Empty 没有可画的数据
func (s Spec) Empty() bool {
	return len(s.Labels) == 0 || len(s.Values) == 0
}

// Renderer 渲染接口
type Renderer interface {
	// Render 写出 PNG
	Render(spec Spec, w io.Writer) error
	// Source 页面中 <img src> 的地址, query 为当前日期区间
	Source(spec Spec, query string) string
}

// Names 固定的图表集合, 顺序即页面顺序
var Names = []string{
	"trend",
	"casual_by_day",
	"registered_by_day",
	"by_weather",
	"by_season",
	"by_hour",
	"by_tier",
	"rfm_recency",
	"rfm_frequency",
	"rfm_monetary",
}

// SpecsFor 由报表生成全部图表
func SpecsFor(r *processor.Report) []Spec {
	specs := make([]Spec, 0, len(Names))
	for _, name := range Names {
		spec, _ := Find(r, name)
		specs = append(specs, spec)
	}
	return specs
}

// Find 按名称生成单张图表
func Find(r *processor.Report, name string) (Spec, bool) {
	switch name {
	case "trend":
		return trendSpec(r), true
	case "casual_by_day":
		return categorySpec(name, "Casual Users by Day", r.CasualByDay, true), true
	case "registered_by_day":
		return categorySpec(name, "Registered Users by Day", r.RegisteredByDay, true), true
	case "by_weather":
		return categorySpec(name, "Total Users by Weather", r.ByWeather, true), true
	case "by_season":
		return categorySpec(name, "Total Users by Season", r.BySeason, true), true
	case "by_hour":
		return categorySpec(name, "Total Users by Hour", r.ByHour, false), true
	case "by_tier":
		return categorySpec(name, "Total Users by Volume Tier", r.ByTier, true), true
	case "rfm_recency":
		return rfmSpec(name, "By Recency (days)", r.TopRecency, func(row processor.RFMRow) int { return row.Recency }), true
	case "rfm_frequency":
		return rfmSpec(name, "By Frequency", r.TopFrequency, func(row processor.RFMRow) int { return row.Frequency }), true
	case "rfm_monetary":
		return rfmSpec(name, "By Monetary", r.TopMonetary, func(row processor.RFMRow) int { return row.Monetary }), true
	}
	return Spec{}, false
}

func trendSpec(r *processor.Report) Spec {
	spec := Spec{Name: "trend", Title: "Bike Usage Trend", Kind: KindLine, Color: ColorHighlight}
	casual := Series{Name: "Casual", Color: ColorCasual}
	registered := Series{Name: "Registered", Color: ColorRegister}
	for _, p := range r.Trend {
		spec.Labels = append(spec.Labels, p.Period)
		spec.Values = append(spec.Values, float64(p.Total))
		casual.Values = append(casual.Values, float64(p.Casual))
		registered.Values = append(registered.Values, float64(p.Registered))
	}
	spec.Extra = []Series{casual, registered}
	return spec
}

func categorySpec(name, title string, rows []processor.CategoryTotal, highlightFirst bool) Spec {
	spec := Spec{Name: name, Title: title, Kind: KindBar, Color: ColorHighlight}
	for i, row := range rows {
		spec.Labels = append(spec.Labels, row.Category)
		spec.Values = append(spec.Values, float64(row.Value))
		if highlightFirst {
			if i == 0 {
				spec.Colors = append(spec.Colors, ColorHighlight)
			} else {
				spec.Colors = append(spec.Colors, ColorMuted)
			}
		}
	}
	return spec
}

func rfmSpec(name, title string, rows []processor.RFMRow, value func(processor.RFMRow) int) Spec {
	spec := Spec{Name: name, Title: title, Kind: KindBar, Color: ColorHighlight}
	for _, row := range rows {
		spec.Labels = append(spec.Labels, row.Day)
		spec.Values = append(spec.Values, float64(value(row)))
	}
	return spec
}

// colorAt 第 i 个柱子的颜色
func (s Spec) colorAt(i int) string {
	if i >= 0 && i < len(s.Colors) {
		return s.Colors[i]
	}
	if s.Color != "" {
		return s.Color
	}
	return ColorHighlight
}
