package chart

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/url"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// LocalRenderer 使用 go-chart 在本地生成 PNG
type LocalRenderer struct {
	Width  int
	Height int
}

func NewLocalRenderer(width, height int) *LocalRenderer {
	return &LocalRenderer{Width: width, Height: height}
}

// Source 指向本服务的 /chart/{name}.png
func (l *LocalRenderer) Source(spec Spec, query string) string {
	src := "/chart/" + url.PathEscape(spec.Name) + ".png"
	if query != "" {
		src += "?" + query
	}
	return src
}

// Render 数据为空或者 go-chart 报错时输出带提示的空白图
func (l *LocalRenderer) Render(spec Spec, w io.Writer) error {
	if spec.Empty() {
		return l.blank(spec.Title, w)
	}

	var (
		buf bytes.Buffer
		err error
	)
	if spec.Kind == KindLine && len(spec.Labels) > 1 {
		err = l.renderLine(spec, &buf)
	} else {
		err = l.renderBar(spec, &buf)
	}
	if err != nil {
		return l.blank(spec.Title, w)
	}

	_, err = io.Copy(w, &buf)
	return err
}

func (l *LocalRenderer) renderBar(spec Spec, w io.Writer) error {
	maxValue := 0.0
	bars := make([]gochart.Value, len(spec.Values))
	for i, v := range spec.Values {
		if v > maxValue {
			maxValue = v
		}
		c := drawing.ColorFromHex(spec.colorAt(i))
		bars[i] = gochart.Value{
			Label: spec.Labels[i],
			Value: v,
			Style: gochart.Style{FillColor: c, StrokeColor: c, StrokeWidth: 1},
		}
	}
	// 全部为 0 时仍然画出标签, 纵轴至少到 1
	yMax := maxValue * 1.1
	if yMax < 1 {
		yMax = 1
	}

	barWidth := (l.Width - 100) / (len(bars) * 2)
	if barWidth < 8 {
		barWidth = 8
	}
	if barWidth > 80 {
		barWidth = 80
	}

	bc := gochart.BarChart{
		Title:      spec.Title,
		Width:      l.Width,
		Height:     l.Height,
		BarWidth:   barWidth,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		YAxis: gochart.YAxis{
			Range: &gochart.ContinuousRange{Min: 0, Max: yMax},
		},
		Bars: bars,
	}
	return bc.Render(gochart.PNG, w)
}

func (l *LocalRenderer) renderLine(spec Spec, w io.Writer) error {
	layout := "2006-01-02"
	if len(spec.Labels[0]) == len("2006-01") {
		layout = "2006-01"
	}

	xs := make([]time.Time, len(spec.Labels))
	for i, label := range spec.Labels {
		t, err := time.Parse(layout, label)
		if err != nil {
			return err
		}
		xs[i] = t
	}

	line := func(name, hex string, values []float64, width float64) gochart.TimeSeries {
		c := drawing.ColorFromHex(hex)
		return gochart.TimeSeries{
			Name:    name,
			XValues: xs,
			YValues: values,
			Style:   gochart.Style{StrokeColor: c, StrokeWidth: width, DotColor: c, DotWidth: 2},
		}
	}

	series := []gochart.Series{line("Total", spec.colorAt(-1), spec.Values, 3)}
	for _, s := range spec.Extra {
		if len(s.Values) == len(xs) {
			series = append(series, line(s.Name, s.Color, s.Values, 1.5))
		}
	}

	c := gochart.Chart{
		Title:      spec.Title,
		Width:      l.Width,
		Height:     l.Height,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      gochart.XAxis{ValueFormatter: gochart.TimeValueFormatterWithFormat(layout)},
		Series:     series,
	}
	c.Elements = []gochart.Renderable{gochart.Legend(&c)}
	return c.Render(gochart.PNG, w)
}

// blank 空白图, 中间写上 "No data"
func (l *LocalRenderer) blank(title string, w io.Writer) error {
	width, height := l.Width, l.Height
	if width <= 0 || height <= 0 {
		width, height = 400, 200
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 250, G: 250, B: 250, A: 255}), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	text := "No data"
	if title != "" {
		text = title + ": no data"
	}
	d := &font.Drawer{Dst: img, Src: image.NewUniform(color.RGBA{R: 120, G: 120, B: 120, A: 255}), Face: face}
	x := (width - d.MeasureString(text).Ceil()) / 2
	if x < 4 {
		x = 4
	}
	d.Dot = fixed.P(x, height/2)
	d.DrawString(text)

	return png.Encode(w, img)
}
