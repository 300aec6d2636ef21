package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"BikeShareDashboard/src/config"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding/simplifiedchinese"
)

const sampleCSV = `instant,dteday,season,yr,mnth,holiday,weekday,workingday,weathersit,temp,casual,registered,cnt
2,2011-01-02,1,0,1,0,0,0,2,0.36,131,670,801
1,2011-01-01,1,0,1,0,6,0,2,0.34,331,654,985
3,2011-01-03,1,0,1,0,1,1,1,0.19,120,1229,1349
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadCSV(t *testing.T) {
	cfg, dcfg := config.Default()
	path := writeFile(t, "day.csv", sampleCSV)

	df, stats, err := Load(path, cfg, dcfg)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Rows)
	assert.Zero(t, stats.Repaired)
	assert.False(t, stats.Hourly)
	assert.Equal(t, path, stats.Source)

	assert.Equal(t, []string{
		config.ColInstant, config.ColDate, config.ColDay, config.ColSeason, config.ColWeather,
		config.ColCasual, config.ColRegistered, config.ColTotal, config.ColTier,
	}, df.Names())

	// 按日期排序
	assert.Equal(t, []string{"2011-01-01", "2011-01-02", "2011-01-03"}, df.Col(config.ColDate).Records())
	assert.Equal(t, []string{"Saturday", "Sunday", "Monday"}, df.Col(config.ColDay).Records())
	assert.Equal(t, []string{"Spring", "Spring", "Spring"}, df.Col(config.ColSeason).Records())
	assert.Equal(t, []string{"Misty/Cloudy", "Misty/Cloudy", "Clear"}, df.Col(config.ColWeather).Records())
	assert.Equal(t, []string{"Low", "Low", "Low"}, df.Col(config.ColTier).Records())
	assert.Equal(t, series.Int, df.Col(config.ColTotal).Type())

	totals, err := df.Col(config.ColTotal).Int()
	require.NoError(t, err)
	assert.Equal(t, []int{985, 801, 1349}, totals)
}

func TestNormalizeRepairsTotals(t *testing.T) {
	_, dcfg := config.Default()
	raw := dataframe.LoadRecords([][]string{
		{"dteday", "casual", "registered", "cnt"},
		{"2012-06-01", "10", "20", "31"},
		{"2012-06-02", "5", "5", "10"},
	}, dataframe.DetectTypes(false))

	df, stats, err := Normalize(raw, dcfg, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Repaired)

	totals, err := df.Col(config.ColTotal).Int()
	require.NoError(t, err)
	assert.Equal(t, []int{30, 10}, totals)

	_, stats, err = Normalize(raw, dcfg, true)
	require.Error(t, err)
	assert.Equal(t, 1, stats.Repaired)
}

func TestNormalizeDerivesColumns(t *testing.T) {
	_, dcfg := config.Default()
	raw := dataframe.LoadRecords([][]string{
		{"dteday", "hr", "casual", "registered", "user_volume"},
		{"2012/07/04", "9", "100", "2500", "Busy"},
		{"40909", "10", "1", "2", "Quiet"},
	}, dataframe.DetectTypes(false))

	df, stats, err := Normalize(raw, dcfg, true)
	require.NoError(t, err)
	assert.True(t, stats.Hourly)

	// Excel 序列号 40909 = 2012-01-01
	assert.Equal(t, []string{"2012-01-01", "2012-07-04"}, df.Col(config.ColDate).Records())
	assert.Equal(t, []string{"Sunday", "Wednesday"}, df.Col(config.ColDay).Records())
	assert.Equal(t, []string{"Winter", "Summer"}, df.Col(config.ColSeason).Records())
	assert.Equal(t, []string{"Quiet", "Busy"}, df.Col(config.ColTier).Records())

	instants, err := df.Col(config.ColInstant).Int()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, instants)

	totals, err := df.Col(config.ColTotal).Int()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2600}, totals)

	hours, err := df.Col(config.ColHour).Int()
	require.NoError(t, err)
	assert.Equal(t, []int{10, 9}, hours)
}

func TestNormalizeErrors(t *testing.T) {
	_, dcfg := config.Default()

	missing := dataframe.LoadRecords([][]string{
		{"dteday", "casual"},
		{"2012-06-01", "10"},
	}, dataframe.DetectTypes(false))
	_, _, err := Normalize(missing, dcfg, false)
	assert.ErrorContains(t, err, "registered_user")

	badDate := dataframe.LoadRecords([][]string{
		{"dteday", "casual", "registered"},
		{"yesterday", "1", "2"},
	}, dataframe.DetectTypes(false))
	_, _, err = Normalize(badDate, dcfg, false)
	assert.ErrorContains(t, err, "yesterday")

	badNumber := dataframe.LoadRecords([][]string{
		{"dteday", "casual", "registered"},
		{"2012-06-01", "1.5", "2"},
	}, dataframe.DetectTypes(false))
	_, _, err = Normalize(badNumber, dcfg, false)
	assert.ErrorContains(t, err, "casual_user")
}

func TestReadCSVGBK(t *testing.T) {
	content := "dteday,casual,registered,备注\n2011-01-01,1,2,晴天\n"
	encoded, err := simplifiedchinese.GBK.NewEncoder().String(content)
	require.NoError(t, err)
	path := writeFile(t, "gbk.csv", encoded)

	df, err := ReadCSVToDataFrame(path, "gbk")
	require.NoError(t, err)
	assert.Equal(t, []string{"晴天"}, df.Col("备注").Records())

	_, err = ReadCSVToDataFrame(path, "latin9")
	assert.Error(t, err)
}

func TestReadCSVStripsBOM(t *testing.T) {
	path := writeFile(t, "bom.csv", "\xef\xbb\xbfdteday,casual,registered\n2011-01-01,1,2\n")

	df, err := ReadCSVToDataFrame(path, "utf-8")
	require.NoError(t, err)
	assert.Equal(t, "dteday", df.Names()[0])
}

func TestReadXLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("rides")
	require.NoError(t, err)

	rows := [][]string{
		{"Bike share export"},
		{"dteday", "weekday", "casual", "registered", "cnt"},
		{"2011-01-01", "6", "331", "654", "985"},
		{},
		{"2011-01-02", "0", "131", "670", "801"},
	}
	for _, values := range rows {
		row := sheet.AddRow()
		for _, v := range values {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "rides.xlsx")
	require.NoError(t, f.Save(path))

	df, err := ReadXLSXToDataFrame(path, "rides", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, df.Nrow())
	assert.Equal(t, []string{"dteday", "weekday", "casual", "registered", "cnt"}, df.Names())

	_, err = ReadXLSXToDataFrame(path, "missing", 1)
	assert.Error(t, err)

	cfg, dcfg := config.Default()
	cfg.SheetName = "rides"
	cfg.HeaderRow = 1
	norm, _, err := Load(path, cfg, dcfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"Saturday", "Sunday"}, norm.Col(config.ColDay).Records())
}

func TestLoadUnsupported(t *testing.T) {
	cfg, dcfg := config.Default()
	_, _, err := Load(writeFile(t, "day.json", "[]"), cfg, dcfg)
	assert.Error(t, err)

	_, _, err = Load(filepath.Join(t.TempDir(), "nope.csv"), cfg, dcfg)
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2011, 1, 5, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2011-01-05", "2011/01/05", "2011-01-05 13:45:00", "01/05/2011", "40548"} {
		got, err := ParseDate(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}
