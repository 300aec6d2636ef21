package processor

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"BikeShareDashboard/src/config"
	"BikeShareDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ErrInvalidRange 开始日期晚于结束日期
var ErrInvalidRange = errors.New("开始日期不能晚于结束日期")

// CategoryTotal 分组求和结果
type CategoryTotal struct {
	Category string `json:"category"`
	Value    int    `json:"value"`
}

// PeriodUsage 按天/周/月汇总的用车量
type PeriodUsage struct {
	Period     string `json:"period"`
	Casual     int    `json:"casual"`
	Registered int    `json:"registered"`
	Total      int    `json:"total"`
}

// Totals 指标卡片上的三个总数
type Totals struct {
	Casual     int `json:"casual"`
	Registered int `json:"registered"`
	Total      int `json:"total"`
}

// FilterByDate 按日期闭区间过滤, 结果可以为空
func FilterByDate(df dataframe.DataFrame, start, end string) (dataframe.DataFrame, error) {
	if df.Err != nil {
		return df, df.Err
	}
	s, err := time.Parse(config.DateLayout, start)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("开始日期格式错误: %w", err)
	}
	e, err := time.Parse(config.DateLayout, end)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("结束日期格式错误: %w", err)
	}
	if s.After(e) {
		return dataframe.DataFrame{}, ErrInvalidRange
	}

	filtered := df.FilterAggregation(
		dataframe.And,
		dataframe.F{Colname: config.ColDate, Comparator: series.GreaterEq, Comparando: start},
		dataframe.F{Colname: config.ColDate, Comparator: series.LessEq, Comparando: end},
	)
	if filtered.Err != nil {
		return filtered, fmt.Errorf("按日期过滤失败: %w", filtered.Err)
	}
	return filtered, nil
}

// groupSums 按 key 分组, 对 cols 逐列求和
func groupSums(df dataframe.DataFrame, key string, cols ...string) (map[string][]int, error) {
	out := make(map[string][]int)
	if df.Nrow() == 0 {
		return out, nil
	}

	groups := df.GroupBy(key)
	if groups.Err != nil {
		return nil, groups.Err
	}
	for _, g := range groups.GetGroups() {
		if g.Err != nil {
			return nil, g.Err
		}
		sums := make([]int, len(cols))
		for i, c := range cols {
			sums[i] = int(math.Round(g.Col(c).Sum()))
		}
		out[g.Col(key).Elem(0).String()] = sums
	}
	return out, nil
}

// SumByCategory 分组求和, 按数值降序, 数值相同按名称升序
func SumByCategory(df dataframe.DataFrame, category, value string) ([]CategoryTotal, error) {
	if !utils.HasColumn(df, category) || !utils.HasColumn(df, value) {
		return nil, fmt.Errorf("缺少列 %s 或 %s", category, value)
	}
	sums, err := groupSums(df, category, value)
	if err != nil {
		return nil, err
	}

	result := make([]CategoryTotal, 0, len(sums))
	for k, v := range sums {
		result = append(result, CategoryTotal{Category: k, Value: v[0]})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Value != result[j].Value {
			return result[i].Value > result[j].Value
		}
		return result[i].Category < result[j].Category
	})
	return result, nil
}

// SumByHour 每小时总用车量, 没有 hour 列时返回 nil
func SumByHour(df dataframe.DataFrame) ([]CategoryTotal, error) {
	if !utils.HasColumn(df, config.ColHour) {
		return nil, nil
	}
	sums, err := groupSums(df, config.ColHour, config.ColTotal)
	if err != nil {
		return nil, err
	}

	hours := make([]int, 0, len(sums))
	for k := range sums {
		h, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("hour 列取值异常: %q", k)
		}
		hours = append(hours, h)
	}
	sort.Ints(hours)

	result := make([]CategoryTotal, 0, len(hours))
	for _, h := range hours {
		result = append(result, CategoryTotal{Category: strconv.Itoa(h), Value: sums[strconv.Itoa(h)][0]})
	}
	return result, nil
}

// periodKey 计算日期所属的周期
func periodKey(date, freq string) (string, error) {
	t, err := time.Parse(config.DateLayout, date)
	if err != nil {
		return "", err
	}
	switch freq {
	case "", "D":
		return date, nil
	case "W":
		// ISO 周从周一开始
		offset := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -offset).Format(config.DateLayout), nil
	case "M":
		return t.Format("2006-01"), nil
	default:
		return "", fmt.Errorf("不支持的重采样频率: %s", freq)
	}
}

// Resample 按天/周/月汇总 casual/registered/total, 按时间升序
func Resample(df dataframe.DataFrame, freq string) ([]PeriodUsage, error) {
	if _, err := periodKey("2000-01-01", freq); err != nil {
		return nil, err
	}
	if df.Nrow() == 0 {
		return nil, nil
	}

	dates := df.Col(config.ColDate).Records()
	keys := make([]string, len(dates))
	for i, d := range dates {
		k, err := periodKey(d, freq)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}

	withPeriod := df.Mutate(series.New(keys, series.String, "period"))
	sums, err := groupSums(withPeriod, "period", config.ColCasual, config.ColRegistered, config.ColTotal)
	if err != nil {
		return nil, err
	}

	result := make([]PeriodUsage, 0, len(sums))
	for k, v := range sums {
		result = append(result, PeriodUsage{Period: k, Casual: v[0], Registered: v[1], Total: v[2]})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Period < result[j].Period })
	return result, nil
}

// ComputeTotals 三个总数, 空数据返回 0
func ComputeTotals(df dataframe.DataFrame) Totals {
	if df.Err != nil || df.Nrow() == 0 {
		return Totals{}
	}
	return Totals{
		Casual:     sumInt(df.Col(config.ColCasual)),
		Registered: sumInt(df.Col(config.ColRegistered)),
		Total:      sumInt(df.Col(config.ColTotal)),
	}
}

func sumInt(s series.Series) int {
	if s.Len() == 0 {
		return 0
	}
	return int(math.Round(s.Sum()))
}
