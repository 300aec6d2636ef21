package chart

import (
	"bytes"
	"encoding/json"
	"image/png"
	"strings"
	"testing"

	"BikeShareDashboard/src/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *processor.Report {
	return &processor.Report{
		Start: "2011-01-01",
		End:   "2011-01-03",
		Rows:  3,
		Trend: []processor.PeriodUsage{
			{Period: "2011-01-01", Casual: 331, Registered: 654, Total: 985},
			{Period: "2011-01-02", Casual: 131, Registered: 670, Total: 801},
			{Period: "2011-01-03", Casual: 120, Registered: 1229, Total: 1349},
		},
		CasualByDay: []processor.CategoryTotal{{Category: "Saturday", Value: 331}, {Category: "Sunday", Value: 131}},
		ByWeather:   []processor.CategoryTotal{{Category: "Clear", Value: 2334}, {Category: "Misty/Cloudy", Value: 801}},
		TopRecency:  []processor.RFMRow{{Day: "Monday", Recency: 0}, {Day: "Sunday", Recency: 1}},
		TopMonetary: []processor.RFMRow{{Day: "Monday", Monetary: 1349}},
	}
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestSpecsFor(t *testing.T) {
	specs := SpecsFor(sampleReport())
	require.Len(t, specs, len(Names))
	for i, s := range specs {
		assert.Equal(t, Names[i], s.Name)
	}

	trend := specs[0]
	assert.Equal(t, KindLine, trend.Kind)
	assert.Equal(t, []string{"2011-01-01", "2011-01-02", "2011-01-03"}, trend.Labels)
	assert.Equal(t, []float64{985, 801, 1349}, trend.Values)
	require.Len(t, trend.Extra, 2)
	assert.Equal(t, []float64{331, 131, 120}, trend.Extra[0].Values)

	casual, ok := Find(sampleReport(), "casual_by_day")
	require.True(t, ok)
	assert.Equal(t, []string{ColorHighlight, ColorMuted}, casual.Colors)

	monetary, _ := Find(sampleReport(), "rfm_monetary")
	assert.Equal(t, []float64{1349}, monetary.Values)

	hour, _ := Find(sampleReport(), "by_hour")
	assert.True(t, hour.Empty())

	_, ok = Find(sampleReport(), "pie")
	assert.False(t, ok)
}

func TestLocalRenderer(t *testing.T) {
	r := NewLocalRenderer(640, 320)

	for _, spec := range SpecsFor(sampleReport()) {
		var buf bytes.Buffer
		require.NoError(t, r.Render(spec, &buf), spec.Name)
		w, h := decodeSize(t, buf.Bytes())
		assert.Equal(t, 640, w, spec.Name)
		assert.Equal(t, 320, h, spec.Name)
	}
}

func TestLocalRendererFallbacks(t *testing.T) {
	r := NewLocalRenderer(300, 150)

	cases := []Spec{
		{Name: "empty", Title: "Empty", Kind: KindBar},
		{Name: "zeros", Kind: KindBar, Labels: []string{"a", "b"}, Values: []float64{0, 0}},
		{Name: "single", Kind: KindLine, Labels: []string{"2011-01"}, Values: []float64{42}},
		{Name: "bad", Kind: KindLine, Labels: []string{"x", "y"}, Values: []float64{1, 2}},
	}
	for _, spec := range cases {
		var buf bytes.Buffer
		require.NoError(t, r.Render(spec, &buf), spec.Name)
		w, h := decodeSize(t, buf.Bytes())
		assert.Equal(t, 300, w, spec.Name)
		assert.Equal(t, 150, h, spec.Name)
	}
}

func TestLocalRendererZeroBars(t *testing.T) {
	r := NewLocalRenderer(300, 150)
	spec := Spec{Name: "rfm_recency", Title: "By Recency (days)", Kind: KindBar, Labels: []string{"Monday"}, Values: []float64{0}}

	var bars, rendered bytes.Buffer
	require.NoError(t, r.renderBar(spec, &bars))
	require.NoError(t, r.Render(spec, &rendered))
	assert.Equal(t, bars.Bytes(), rendered.Bytes())

	// 不能退回 "no data" 空白图
	var empty bytes.Buffer
	require.NoError(t, r.blank(spec.Title, &empty))
	assert.NotEqual(t, empty.Bytes(), bars.Bytes())
}

func TestLocalSource(t *testing.T) {
	r := NewLocalRenderer(100, 100)
	assert.Equal(t, "/chart/trend.png?start=2011-01-01&end=2011-01-03",
		r.Source(Spec{Name: "trend"}, "start=2011-01-01&end=2011-01-03"))
	assert.Equal(t, "/chart/by_tier.png", r.Source(Spec{Name: "by_tier"}, ""))
}

func TestQuickChart(t *testing.T) {
	spec, _ := Find(sampleReport(), "by_weather")

	var cfg map[string]interface{}
	raw, err := json.Marshal(buildConfig(spec))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &cfg))
	assert.Equal(t, "bar", cfg["type"])

	q := NewQuickChartRenderer(640, 320)
	src := q.Source(spec, "start=2011-01-01")
	assert.True(t, strings.Contains(src, "quickchart.io"), src)
	assert.True(t, strings.Contains(src, "w=640&h=320"), src)

	u, err := URL(spec, 0, 0)
	require.NoError(t, err)
	assert.True(t, strings.Contains(u, "w=500&h=300"), u)

	// 没有数据时退回本地地址
	empty := Spec{Name: "by_hour"}
	assert.Equal(t, "/chart/by_hour.png?start=2011-01-01", q.Source(empty, "start=2011-01-01"))

	var buf bytes.Buffer
	require.NoError(t, q.Render(spec, &buf))
	decodeSize(t, buf.Bytes())
}
