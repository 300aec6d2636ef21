// reader.go
package file

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"BikeShareDashboard/src/config"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Number Excel 序列号日期
var Number = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// 支持的日期格式
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"2006/1/2",
	"01-02-2006",
	"01/02/2006",
	"1/2/2006",
}

// LoadStats 加载结果统计
type LoadStats struct {
	Source   string
	Rows     int
	Repaired int // total_user 被重新计算的行数
	Hourly   bool
}

// Load 根据扩展名选择读取方式, 然后标准化
func Load(filePath string, cfg *config.Config, dcfg *config.DataConfig) (dataframe.DataFrame, LoadStats, error) {
	var (
		raw dataframe.DataFrame
		err error
	)

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		raw, err = ReadCSVToDataFrame(filePath, cfg.Encoding)
	case ".xlsx":
		raw, err = ReadXLSXToDataFrame(filePath, cfg.SheetName, cfg.HeaderRow)
	default:
		err = fmt.Errorf("不支持的数据文件类型: %s", filePath)
	}
	if err != nil {
		return dataframe.DataFrame{}, LoadStats{}, err
	}

	df, stats, err := Normalize(raw, dcfg, cfg.StrictTotals)
	if err != nil {
		return dataframe.DataFrame{}, stats, fmt.Errorf("%s: %w", filePath, err)
	}
	stats.Source = filePath
	return df, stats, nil
}

// ReadCSVToDataFrame 读取 csv, 所有列按字符串读入
func ReadCSVToDataFrame(filePath, encoding string) (dataframe.DataFrame, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("打开数据文件失败: %w", err)
	}
	defer f.Close()

	r, err := decodeReader(f, encoding)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("解析csv失败: %w", df.Err)
	}
	return df, nil
}

func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return transform.NewReader(r, unicode.UTF8BOM.NewDecoder()), nil
	case "gbk", "gb2312":
		return transform.NewReader(r, simplifiedchinese.GBK.NewDecoder()), nil
	case "gb18030":
		return transform.NewReader(r, simplifiedchinese.GB18030.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("不支持的编码: %s", encoding)
	}
}

// ReadXLSXToDataFrame 读取 xlsx 指定工作表, sheetName 为空时取第一个
func ReadXLSXToDataFrame(filePath, sheetName string, headerRow int) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("xlsx open file false: %w", err)
	}

	if len(xlFile.Sheets) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("excel文件中没有工作表: %s", filePath)
	}

	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		s, ok := xlFile.Sheet[sheetName]
		if !ok {
			return dataframe.DataFrame{}, fmt.Errorf("工作表 %s 不存在", sheetName)
		}
		sheet = s
	}

	return convertSheetToDataFrame(sheet, headerRow)
}

// convertSheetToDataFrame 将xlsx.Sheet转换为dataframe.DataFrame
func convertSheetToDataFrame(sheet *xlsx.Sheet, headerRow int) (dataframe.DataFrame, error) {
	if headerRow < 0 || len(sheet.Rows) <= headerRow+1 {
		return dataframe.DataFrame{}, fmt.Errorf("工作表 %s 没有数据行", sheet.Name)
	}

	var headers []string
	for _, cell := range sheet.Rows[headerRow].Cells {
		headers = append(headers, strings.TrimSpace(cell.Value))
	}
	// 去掉标题行末尾的空列
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}
	if len(headers) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("工作表 %s 标题行为空", sheet.Name)
	}

	columns := make([][]string, len(headers))
	for _, row := range sheet.Rows[headerRow+1:] {
		if row == nil || isEmptyRow(row) {
			continue
		}
		for i := range headers {
			value := ""
			if i < len(row.Cells) {
				value = strings.TrimSpace(row.Cells[i].Value)
			}
			columns[i] = append(columns[i], value)
		}
	}
	if len(columns[0]) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("工作表 %s 没有数据行", sheet.Name)
	}

	seriesList := make([]series.Series, len(headers))
	for i, colName := range headers {
		seriesList[i] = series.New(columns[i], series.String, colName)
	}

	df := dataframe.New(seriesList...)
	return df, df.Err
}

func isEmptyRow(row *xlsx.Row) bool {
	for _, cell := range row.Cells {
		if strings.TrimSpace(cell.Value) != "" {
			return false
		}
	}
	return true
}

// Normalize 重命名列, 转换类型, 补齐派生列并校验 total_user
func Normalize(df dataframe.DataFrame, dcfg *config.DataConfig, strict bool) (dataframe.DataFrame, LoadStats, error) {
	var stats LoadStats
	if df.Err != nil {
		return df, stats, df.Err
	}

	// 1. 源列名 -> 标准列名, 目标列已存在时保留原列
	for _, name := range df.Names() {
		canonical, ok := dcfg.Columns[name]
		if !ok || canonical == name || hasColumn(df, canonical) {
			continue
		}
		df = df.Rename(canonical, name)
	}
	if df.Err != nil {
		return df, stats, fmt.Errorf("重命名列失败: %w", df.Err)
	}

	for _, col := range []string{config.ColDate, config.ColCasual, config.ColRegistered} {
		if !hasColumn(df, col) {
			return dataframe.DataFrame{}, stats, fmt.Errorf("缺少必要列: %s", col)
		}
	}

	n := df.Nrow()
	stats.Rows = n

	// 2. 日期
	dates := make([]string, n)
	parsed := make([]time.Time, n)
	for i, raw := range df.Col(config.ColDate).Records() {
		t, err := ParseDate(raw)
		if err != nil {
			return dataframe.DataFrame{}, stats, fmt.Errorf("第 %d 行: %w", i+1, err)
		}
		parsed[i] = t
		dates[i] = t.Format(config.DateLayout)
	}

	// 3. 数值列
	casual, err := intColumn(df, config.ColCasual)
	if err != nil {
		return dataframe.DataFrame{}, stats, err
	}
	registered, err := intColumn(df, config.ColRegistered)
	if err != nil {
		return dataframe.DataFrame{}, stats, err
	}

	total := make([]int, n)
	hasTotal := hasColumn(df, config.ColTotal)
	if hasTotal {
		if total, err = intColumn(df, config.ColTotal); err != nil {
			return dataframe.DataFrame{}, stats, err
		}
	}
	for i := range total {
		sum := casual[i] + registered[i]
		if hasTotal && total[i] != sum {
			stats.Repaired++
		}
		total[i] = sum
	}
	if strict && stats.Repaired > 0 {
		return dataframe.DataFrame{}, stats, fmt.Errorf("%d 行不满足 total_user = casual_user + registered_user", stats.Repaired)
	}

	instants := make([]int, n)
	if hasColumn(df, config.ColInstant) {
		if instants, err = intColumn(df, config.ColInstant); err != nil {
			return dataframe.DataFrame{}, stats, err
		}
	} else {
		for i := range instants {
			instants[i] = i + 1
		}
	}

	// 4. 标签列
	days := make([]string, n)
	seasons := make([]string, n)
	weathers := make([]string, n)
	for i := 0; i < n; i++ {
		days[i] = dcfg.Label("day", strconv.Itoa(int(parsed[i].Weekday())))
		seasons[i] = dcfg.Label("season", seasonOfMonth(parsed[i].Month()))
		weathers[i] = "Unknown"
	}
	if hasColumn(df, config.ColDay) {
		days = labelColumn(df, config.ColDay, "day", dcfg)
	}
	if hasColumn(df, config.ColSeason) {
		seasons = labelColumn(df, config.ColSeason, "season", dcfg)
	}
	if hasColumn(df, config.ColWeather) {
		weathers = labelColumn(df, config.ColWeather, "weather", dcfg)
	}

	tiers := make([]string, n)
	if dcfg.TierColumn != "" && hasColumn(df, dcfg.TierColumn) {
		tiers = df.Col(dcfg.TierColumn).Records()
	} else {
		for i, t := range total {
			tiers[i] = dcfg.Tier(t)
		}
	}

	cols := []series.Series{
		series.New(instants, series.Int, config.ColInstant),
		series.New(dates, series.String, config.ColDate),
		series.New(days, series.String, config.ColDay),
		series.New(seasons, series.String, config.ColSeason),
		series.New(weathers, series.String, config.ColWeather),
	}
	if hasColumn(df, config.ColHour) {
		hours, err := intColumn(df, config.ColHour)
		if err != nil {
			return dataframe.DataFrame{}, stats, err
		}
		cols = append(cols, series.New(hours, series.Int, config.ColHour))
		stats.Hourly = true
	}
	cols = append(cols,
		series.New(casual, series.Int, config.ColCasual),
		series.New(registered, series.Int, config.ColRegistered),
		series.New(total, series.Int, config.ColTotal),
		series.New(tiers, series.String, config.ColTier),
	)

	out := dataframe.New(cols...)
	if out.Err != nil {
		return out, stats, out.Err
	}
	if n > 0 {
		out = out.Arrange(dataframe.Sort(config.ColDate), dataframe.Sort(config.ColInstant))
	}
	return out, stats, out.Err
}

// ParseDate 解析多种日期格式以及 Excel 序列号
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	if Number.MatchString(s) {
		days, err := strconv.ParseFloat(s, 64)
		if err == nil {
			t := excelToTime(days)
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析日期 %q", raw)
}

// excelToTime Excel 序列号转 time.Time
func excelToTime(excelDays float64) time.Time {
	base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	days := int(excelDays)
	fraction := excelDays - float64(days)
	return base.AddDate(0, 0, days).Add(time.Duration(86400 * fraction * float64(time.Second)))
}

func intColumn(df dataframe.DataFrame, col string) ([]int, error) {
	records := df.Col(col).Records()
	out := make([]int, len(records))
	for i, raw := range records {
		s := strings.TrimSpace(raw)
		if v, err := strconv.Atoi(s); err == nil {
			out[i] = v
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || f != math.Trunc(f) {
			return nil, fmt.Errorf("第 %d 行 %s 不是整数: %q", i+1, col, raw)
		}
		out[i] = int(f)
	}
	return out, nil
}

func labelColumn(df dataframe.DataFrame, col, kind string, dcfg *config.DataConfig) []string {
	records := df.Col(col).Records()
	for i, raw := range records {
		records[i] = dcfg.Label(kind, strings.TrimSpace(raw))
	}
	return records
}

// seasonOfMonth 数据缺少 season 列时按月份推算季节编号
func seasonOfMonth(m time.Month) string {
	switch m {
	case time.March, time.April, time.May:
		return "1"
	case time.June, time.July, time.August:
		return "2"
	case time.September, time.October, time.November:
		return "3"
	default:
		return "4"
	}
}

func hasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}
