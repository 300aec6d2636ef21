package dashboard

import (
	"embed"
	"html/template"
	"time"

	"BikeShareDashboard/src/chart"
	"BikeShareDashboard/src/processor"
)

//go:embed templates/index.html static/logo.svg
var content embed.FS

var pageTemplate = template.Must(template.ParseFS(content, "templates/index.html"))

type chartView struct {
	Title string
	Src   string
}

type seasonView struct {
	Season    string
	Available bool
	Message   string
	Tiles     []processor.Tile
}

type pageData struct {
	Title      string
	Min, Max   string
	Start, End string
	Query      string
	Empty      bool
	Hourly     bool
	TotalTiles []processor.Tile
	RFMTiles   []processor.Tile
	Charts     map[string]chartView
	Seasons    []seasonView
	Year       int
	LoadedAt   string
}

func (s *Server) buildPage(report *processor.Report, first, last string) pageData {
	query := rangeQuery(report.Start, report.End)

	charts := make(map[string]chartView, len(chart.Names))
	for _, spec := range chart.SpecsFor(report) {
		charts[spec.Name] = chartView{Title: spec.Title, Src: s.renderer.Source(spec, query)}
	}

	seasons := make([]seasonView, 0, len(report.Seasons))
	for _, sec := range report.Seasons {
		v := seasonView{Season: sec.Season, Available: sec.Available, Message: sec.Message}
		if sec.Available {
			v.Tiles = s.formatter.TotalTiles(processor.Totals{
				Casual:     sec.Casual,
				Registered: sec.Registered,
				Total:      sec.Total,
			})
		}
		seasons = append(seasons, v)
	}

	return pageData{
		Title:      "Capital Bike Share Dashboard",
		Min:        first,
		Max:        last,
		Start:      report.Start,
		End:        report.End,
		Query:      query,
		Empty:      report.Empty(),
		Hourly:     report.Hourly,
		TotalTiles: s.formatter.TotalTiles(report.Totals),
		RFMTiles:   s.formatter.RFMTiles(report.RFMSummary),
		Charts:     charts,
		Seasons:    seasons,
		Year:       time.Now().Year(),
		LoadedAt:   s.data.LoadedAt().Format("2006-01-02 15:04:05"),
	}
}
