package processor

import (
	"fmt"

	"BikeShareDashboard/src/config"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// SeasonSection 页面上每个季节一段, 没有数据时 Available 为 false
type SeasonSection struct {
	Season     string `json:"season"`
	Available  bool   `json:"available"`
	Casual     int    `json:"casual"`
	Registered int    `json:"registered"`
	Total      int    `json:"total"`
	Message    string `json:"message,omitempty"`
}

// NoDataMessage 区间内没有该季节数据时的提示
func NoDataMessage(season string) string {
	return fmt.Sprintf("No data available for %s in the selected range.", season)
}

// SeasonBreakdown 按配置的季节顺序输出每个季节的合计
func SeasonBreakdown(df dataframe.DataFrame, seasons []string) ([]SeasonSection, error) {
	sections := make([]SeasonSection, 0, len(seasons))
	for _, season := range seasons {
		section := SeasonSection{Season: season}

		var subset dataframe.DataFrame
		if df.Nrow() > 0 {
			subset = df.Filter(dataframe.F{Colname: config.ColSeason, Comparator: series.Eq, Comparando: season})
			if subset.Err != nil {
				return nil, fmt.Errorf("按季节过滤失败: %w", subset.Err)
			}
		}

		if df.Nrow() == 0 || subset.Nrow() == 0 {
			section.Message = NoDataMessage(season)
			sections = append(sections, section)
			continue
		}

		totals := ComputeTotals(subset)
		section.Available = true
		section.Casual = totals.Casual
		section.Registered = totals.Registered
		section.Total = totals.Total
		sections = append(sections, section)
	}
	return sections, nil
}
