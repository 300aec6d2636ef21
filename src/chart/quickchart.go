package chart

import (
	"encoding/json"
	"errors"
	"io"

	quickchartgo "github.com/henomis/quickchart-go"
)

// chart.js 配置, 只包含用到的字段
type chartConfig struct {
	Type    string       `json:"type"`
	Data    chartData    `json:"data"`
	Options chartOptions `json:"options"`
}

type chartData struct {
	Labels   []string  `json:"labels"`
	DataSets []dataset `json:"datasets"`
}

type dataset struct {
	Label           string      `json:"label"`
	Data            []float64   `json:"data"`
	Fill            bool        `json:"fill"`
	LineTension     float32     `json:"lineTension,omitempty"`
	BackgroundColor interface{} `json:"backgroundColor,omitempty"`
	BorderColor     string      `json:"borderColor,omitempty"`
}

type chartOptions struct {
	Title struct {
		Display bool   `json:"display"`
		Text    string `json:"text"`
	} `json:"title"`
	Legend struct {
		Display bool `json:"display"`
	} `json:"legend"`
}

// QuickChartRenderer 图片由 quickchart.io 生成, 页面直接引用其 URL
// 本地 /chart 接口和导出仍然走 LocalRenderer
type QuickChartRenderer struct {
	*LocalRenderer
}

func NewQuickChartRenderer(width, height int) *QuickChartRenderer {
	return &QuickChartRenderer{LocalRenderer: NewLocalRenderer(width, height)}
}

// Source 返回 quickchart 地址, 生成失败时退回本地地址
func (q *QuickChartRenderer) Source(spec Spec, query string) string {
	u, err := URL(spec, q.Width, q.Height)
	if err != nil {
		return q.LocalRenderer.Source(spec, query)
	}
	return u
}

func (q *QuickChartRenderer) Render(spec Spec, w io.Writer) error {
	return q.LocalRenderer.Render(spec, w)
}

// buildConfig 生成 chart.js 配置
func buildConfig(spec Spec) chartConfig {
	cfg := chartConfig{Type: spec.Kind, Data: chartData{Labels: spec.Labels}}
	cfg.Options.Title.Display = true
	cfg.Options.Title.Text = spec.Title

	main := dataset{Label: spec.Title, Data: spec.Values, LineTension: 0.3}
	if spec.Kind == KindLine {
		main.Label = "Total"
		main.BorderColor = spec.colorAt(-1)
		cfg.Data.DataSets = append(cfg.Data.DataSets, main)
		for _, s := range spec.Extra {
			cfg.Data.DataSets = append(cfg.Data.DataSets, dataset{Label: s.Name, Data: s.Values, BorderColor: s.Color, LineTension: 0.3})
		}
		cfg.Options.Legend.Display = true
		return cfg
	}

	colors := make([]string, len(spec.Values))
	for i := range colors {
		colors[i] = spec.colorAt(i)
	}
	main.BackgroundColor = colors
	cfg.Data.DataSets = append(cfg.Data.DataSets, main)
	return cfg
}

// URL quickchart 图片地址, width/height 不大于 0 时使用 quickchart 默认尺寸
func URL(spec Spec, width, height int) (string, error) {
	if spec.Empty() {
		return "", errors.New("no data")
	}

	bytes, err := json.Marshal(buildConfig(spec))
	if err != nil {
		return "", err
	}

	qc := quickchartgo.New()
	qc.Config = string(bytes)
	if width > 0 && height > 0 {
		qc.Width = int64(width)
		qc.Height = int64(height)
	}
	return qc.GetUrl()
}
