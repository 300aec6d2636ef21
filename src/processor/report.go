package processor

import (
	"fmt"

	"BikeShareDashboard/src/config"
	"BikeShareDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
)

// Options BuildReport 的可选参数
type Options struct {
	Resample string   // D / W / M
	Seasons  []string // 季节顺序
	DayOrder []string // 星期顺序
	TopN     int      // RFM 排行数量
}

// OptionsFrom 从配置生成 Options
func OptionsFrom(cfg *config.Config, dcfg *config.DataConfig) Options {
	return Options{
		Resample: cfg.Resample,
		Seasons:  dcfg.SeasonOrder,
		DayOrder: dcfg.DayOrder,
		TopN:     5,
	}
}

// Report 一个日期区间内的全部统计结果
type Report struct {
	Start  string        `json:"start"`
	End    string        `json:"end"`
	Rows   int           `json:"rows"`
	Hourly bool          `json:"hourly"`
	Totals Totals        `json:"totals"`
	Trend  []PeriodUsage `json:"trend"`

	CasualByDay     []CategoryTotal `json:"casual_by_day"`
	RegisteredByDay []CategoryTotal `json:"registered_by_day"`
	ByWeather       []CategoryTotal `json:"by_weather"`
	BySeason        []CategoryTotal `json:"by_season"`
	ByTier          []CategoryTotal `json:"by_tier"`
	ByHour          []CategoryTotal `json:"by_hour,omitempty"`

	RFM          []RFMRow   `json:"rfm"`
	RFMSummary   RFMSummary `json:"rfm_summary"`
	TopRecency   []RFMRow   `json:"top_recency"`
	TopFrequency []RFMRow   `json:"top_frequency"`
	TopMonetary  []RFMRow   `json:"top_monetary"`

	Seasons []SeasonSection `json:"seasons"`
}

// Empty 区间内没有数据
func (r *Report) Empty() bool {
	return r.Rows == 0
}

// BuildReport 对一个日期区间计算所有统计, start/end 为空时使用数据的起止日期
func BuildReport(df dataframe.DataFrame, start, end string, opts Options) (*Report, error) {
	if df.Err != nil {
		return nil, df.Err
	}

	first, last := DateBounds(df)
	if start == "" {
		start = first
	}
	if end == "" {
		end = last
	}

	r := &Report{Start: start, End: end, Hourly: utils.HasColumn(df, config.ColHour)}

	filtered := df
	if start != "" || end != "" {
		var err error
		if filtered, err = FilterByDate(df, start, end); err != nil {
			return nil, err
		}
	}
	r.Rows = filtered.Nrow()
	r.Totals = ComputeTotals(filtered)

	var err error
	if r.Trend, err = Resample(filtered, opts.Resample); err != nil {
		return nil, fmt.Errorf("趋势统计失败: %w", err)
	}

	tables := []struct {
		dst      *[]CategoryTotal
		category string
		value    string
	}{
		{&r.CasualByDay, config.ColDay, config.ColCasual},
		{&r.RegisteredByDay, config.ColDay, config.ColRegistered},
		{&r.ByWeather, config.ColWeather, config.ColTotal},
		{&r.BySeason, config.ColSeason, config.ColTotal},
		{&r.ByTier, config.ColTier, config.ColTotal},
	}
	for _, t := range tables {
		if *t.dst, err = SumByCategory(filtered, t.category, t.value); err != nil {
			return nil, fmt.Errorf("分组统计 %s 失败: %w", t.category, err)
		}
	}

	if r.ByHour, err = SumByHour(filtered); err != nil {
		return nil, err
	}

	if r.RFM, err = CreateRFM(filtered, opts.DayOrder); err != nil {
		return nil, fmt.Errorf("RFM 计算失败: %w", err)
	}
	r.RFMSummary = SummarizeRFM(r.RFM)

	n := opts.TopN
	if n <= 0 {
		n = 5
	}
	if r.TopRecency, err = TopRFM(r.RFM, ByRecency, n); err != nil {
		return nil, err
	}
	if r.TopFrequency, err = TopRFM(r.RFM, ByFrequency, n); err != nil {
		return nil, err
	}
	if r.TopMonetary, err = TopRFM(r.RFM, ByMonetary, n); err != nil {
		return nil, err
	}

	if r.Seasons, err = SeasonBreakdown(filtered, opts.Seasons); err != nil {
		return nil, err
	}
	return r, nil
}

// Sheets 导出 xlsx 时每张表一个工作表
func (r *Report) Sheets() []utils.Sheet {
	categorySheet := func(name, label string, rows []CategoryTotal) utils.Sheet {
		s := utils.Sheet{Name: name, Header: []string{label, "total"}}
		for _, row := range rows {
			s.Rows = append(s.Rows, []interface{}{row.Category, row.Value})
		}
		return s
	}

	summary := utils.Sheet{
		Name:   "summary",
		Header: []string{"metric", "value"},
		Rows: [][]interface{}{
			{"start", r.Start},
			{"end", r.End},
			{"rows", r.Rows},
			{"casual_user", r.Totals.Casual},
			{"registered_user", r.Totals.Registered},
			{"total_user", r.Totals.Total},
			{"avg_recency", r.RFMSummary.AvgRecency},
			{"avg_frequency", r.RFMSummary.AvgFrequency},
			{"avg_monetary", r.RFMSummary.AvgMonetary},
		},
	}

	trend := utils.Sheet{Name: "trend", Header: []string{"period", "casual_user", "registered_user", "total_user"}}
	for _, p := range r.Trend {
		trend.Rows = append(trend.Rows, []interface{}{p.Period, p.Casual, p.Registered, p.Total})
	}

	rfm := utils.Sheet{Name: "rfm", Header: []string{"day", "recency", "frequency", "monetary"}}
	for _, row := range r.RFM {
		rfm.Rows = append(rfm.Rows, []interface{}{row.Day, row.Recency, row.Frequency, row.Monetary})
	}

	seasons := utils.Sheet{Name: "seasons", Header: []string{"season", "casual_user", "registered_user", "total_user", "note"}}
	for _, s := range r.Seasons {
		seasons.Rows = append(seasons.Rows, []interface{}{s.Season, s.Casual, s.Registered, s.Total, s.Message})
	}

	sheets := []utils.Sheet{
		summary,
		trend,
		categorySheet("casual_by_day", "day", r.CasualByDay),
		categorySheet("registered_by_day", "day", r.RegisteredByDay),
		categorySheet("by_weather", "weather", r.ByWeather),
		categorySheet("by_season", "season", r.BySeason),
		categorySheet("by_tier", "tier", r.ByTier),
		rfm,
		seasons,
	}
	if r.Hourly {
		sheets = append(sheets, categorySheet("by_hour", "hour", r.ByHour))
	}
	return sheets
}
