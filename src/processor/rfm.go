package processor

import (
	"fmt"
	"math"
	"sort"
	"time"

	"BikeShareDashboard/src/config"
	"BikeShareDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
)

// RFMRow 按星期统计的 RFM 指标
type RFMRow struct {
	Day       string `json:"day"`
	Recency   int    `json:"recency"`   // 距离区间内最后一天的天数
	Frequency int    `json:"frequency"` // 不同 instant 的个数
	Monetary  int    `json:"monetary"`  // total_user 之和
}

// RFMSummary 平均值卡片
type RFMSummary struct {
	AvgRecency   float64 `json:"avg_recency"`
	AvgFrequency float64 `json:"avg_frequency"`
	AvgMonetary  float64 `json:"avg_monetary"`
}

// RFM 排序维度
const (
	ByRecency   = "recency"
	ByFrequency = "frequency"
	ByMonetary  = "monetary"
)

// CreateRFM 按 day 分组计算 RFM, 结果按 dayOrder 排列, 不在 dayOrder 中的排在最后
func CreateRFM(df dataframe.DataFrame, dayOrder []string) ([]RFMRow, error) {
	if df.Err != nil {
		return nil, df.Err
	}
	if df.Nrow() == 0 {
		return nil, nil
	}

	_, latest := DateBounds(df)
	latestDate, err := time.Parse(config.DateLayout, latest)
	if err != nil {
		return nil, fmt.Errorf("解析最后日期失败: %w", err)
	}

	groups := df.GroupBy(config.ColDay)
	if groups.Err != nil {
		return nil, groups.Err
	}

	rows := make([]RFMRow, 0, 7)
	for _, g := range groups.GetGroups() {
		if g.Err != nil {
			return nil, g.Err
		}
		_, groupLatest := DateBounds(g)
		last, err := time.Parse(config.DateLayout, groupLatest)
		if err != nil {
			return nil, fmt.Errorf("解析分组日期失败: %w", err)
		}

		instants := make(map[string]struct{})
		for _, id := range g.Col(config.ColInstant).Records() {
			instants[id] = struct{}{}
		}

		rows = append(rows, RFMRow{
			Day:       g.Col(config.ColDay).Elem(0).String(),
			Recency:   int(latestDate.Sub(last).Hours() / 24),
			Frequency: len(instants),
			Monetary:  sumInt(g.Col(config.ColTotal)),
		})
	}

	rank := func(day string) int {
		for i, d := range dayOrder {
			if d == day {
				return i
			}
		}
		return len(dayOrder)
	}
	sort.Slice(rows, func(i, j int) bool {
		ri, rj := rank(rows[i].Day), rank(rows[j].Day)
		if ri != rj {
			return ri < rj
		}
		return rows[i].Day < rows[j].Day
	})
	return rows, nil
}

// TopRFM 取前 n 个, recency 升序, frequency 和 monetary 降序
func TopRFM(rows []RFMRow, by string, n int) ([]RFMRow, error) {
	if !utils.Contains([]string{ByRecency, ByFrequency, ByMonetary}, by) {
		return nil, fmt.Errorf("未知的 RFM 维度: %s", by)
	}

	sorted := make([]RFMRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch by {
		case ByRecency:
			if a.Recency != b.Recency {
				return a.Recency < b.Recency
			}
		case ByFrequency:
			if a.Frequency != b.Frequency {
				return a.Frequency > b.Frequency
			}
		case ByMonetary:
			if a.Monetary != b.Monetary {
				return a.Monetary > b.Monetary
			}
		}
		return false
	})

	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted, nil
}

// SummarizeRFM recency 保留1位, frequency 保留2位, monetary 不取整
func SummarizeRFM(rows []RFMRow) RFMSummary {
	if len(rows) == 0 {
		return RFMSummary{}
	}

	var r, f, m float64
	for _, row := range rows {
		r += float64(row.Recency)
		f += float64(row.Frequency)
		m += float64(row.Monetary)
	}
	n := float64(len(rows))
	return RFMSummary{
		AvgRecency:   math.Round(r/n*10) / 10,
		AvgFrequency: math.Round(f/n*100) / 100,
		AvgMonetary:  m / n,
	}
}
