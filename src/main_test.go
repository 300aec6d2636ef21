package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"BikeShareDashboard/src/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sampleCSV = `instant,dteday,season,yr,mnth,holiday,weekday,workingday,weathersit,temp,casual,registered,cnt
1,2011-01-01,1,0,1,0,6,0,2,0.34,331,654,985
2,2011-01-02,1,0,1,0,0,0,2,0.36,131,670,801
3,2011-01-03,1,0,1,0,1,1,1,0.19,120,1229,1349
`

// 配置只加载一次, 所有测试共用同一个目录
var (
	baseDir   string
	configDir string
)

func TestMain(m *testing.M) {
	code, err := runWithFixture(m)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(code)
}

func runWithFixture(m *testing.M) (int, error) {
	dir, err := os.MkdirTemp("", "bikeshare")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(dir)

	baseDir = dir
	configDir = filepath.Join(dir, "config")
	for _, d := range []string{configDir, filepath.Join(dir, "data")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return 0, err
		}
	}

	cfg := map[string]interface{}{
		"server": map[string]interface{}{
			"addr":     "127.0.0.1:0",
			"pid_file": filepath.Join(dir, "bikeshare.pid"),
		},
		"data_file": "data/day.csv",
		"log_name":  filepath.Join(dir, "logs", "app.log"),
		"log_level": "info",
		"export":    map[string]interface{}{"dir": filepath.Join(dir, "export")},
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return 0, err
	}

	files := map[string][]byte{
		filepath.Join(configDir, jsonFile):     raw,
		filepath.Join(configDir, dataJsonFile): []byte(`{"currency": "USD"}`),
		filepath.Join(dir, "data", "day.csv"):  []byte(sampleCSV),
	}
	for path, data := range files {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return 0, err
		}
	}
	return m.Run(), nil
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config-dir", configDir}, args...))
	err := root.Execute()
	return out.String(), err
}

func testApp(t *testing.T) *app {
	t.Helper()
	a, err := newApp(&rootOptions{configDir: configDir})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestExportCommand(t *testing.T) {
	out, err := execute(t, "export", "--start", "2011-01-01", "--end", "2011-01-02")
	require.NoError(t, err)

	path := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(baseDir, "export", "bikeshare_2011-01-01_2011-01-02.xlsx"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "summary")
	assert.Contains(t, f.GetSheetList(), "by_weather")
}

func TestExportCommandCustomOut(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "report.xlsx")
	out, err := execute(t, "export", "--out", target)
	require.NoError(t, err)
	assert.Equal(t, target, strings.TrimSpace(out))
	assert.FileExists(t, target)
}

func TestExportCommandWithRows(t *testing.T) {
	dir := t.TempDir()
	report := filepath.Join(dir, "report.xlsx")
	rows := filepath.Join(dir, "rows.xlsx")
	_, err := execute(t, "export", "--start", "2011-01-02", "--end", "2011-01-03", "--out", report, "--data-out", rows)
	require.NoError(t, err)

	f, err := excelize.OpenFile(rows)
	require.NoError(t, err)
	defer f.Close()
	got, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	require.Len(t, got, 3) // 标题 + 2 行
	assert.Equal(t, "instant", got[0][0])
	assert.Equal(t, "2011-01-02", got[1][1])
}

func TestExportCommandInvalidRange(t *testing.T) {
	_, err := execute(t, "export", "--start", "2011-01-03", "--end", "2011-01-01")
	assert.ErrorIs(t, err, processor.ErrInvalidRange)
}

func TestSummaryCommand(t *testing.T) {
	out, err := execute(t, "summary")
	require.NoError(t, err)

	assert.Contains(t, out, "Bike Share Summary 2011-01-01 ~ 2011-01-03 (3 rows)")
	assert.Contains(t, out, "Total Casual User: 582")
	assert.Contains(t, out, "Total User: 3,135")
	assert.Contains(t, out, "[Spring] casual 582, registered 2,553, total 3,135")
	assert.Contains(t, out, "[Summer] No data available for Summer in the selected range.")
	assert.Contains(t, out, "Average Monetary: ")
	assert.Contains(t, out, "$")
}

func TestSummaryEmptyRange(t *testing.T) {
	out, err := execute(t, "summary", "--start", "2012-01-01", "--end", "2012-01-31")
	require.NoError(t, err)
	assert.Contains(t, out, "Total User: 0")
	assert.Contains(t, out, "[Spring] No data available for Spring in the selected range.")
}

func TestPidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.pid")
	require.NoError(t, writePidFile(path))
	pid, err := readPidFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))
	_, err = readPidFile(path)
	assert.Error(t, err)

	_, err = readPidFile(filepath.Join(t.TempDir(), "missing.pid"))
	assert.Error(t, err)
}

func TestReloadCommand(t *testing.T) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	a := testApp(t)
	require.NoError(t, writePidFile(a.cfg.Server.PidFile))
	defer os.Remove(a.cfg.Server.PidFile)

	out, err := execute(t, "reload")
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprint(os.Getpid()))

	select {
	case <-hup:
	case <-time.After(2 * time.Second):
		t.Fatal("没有收到 SIGHUP")
	}
}

func TestScheduleJobs(t *testing.T) {
	a := testApp(t)
	defer func(s string) { a.cfg.Export.Schedule = s }(a.cfg.Export.Schedule)

	c, err := a.scheduleJobs(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	a.cfg.Export.Schedule = "@daily"
	c, err = a.scheduleJobs(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 2)

	a.cfg.Export.Schedule = "every day"
	_, err = a.scheduleJobs(context.Background())
	assert.Error(t, err)
}

func TestExportAndMailWithoutMailer(t *testing.T) {
	a := testApp(t)
	require.Nil(t, a.mailer)
	require.NoError(t, a.exportAndMail(context.Background()))
	assert.FileExists(t, filepath.Join(baseDir, "export", "bikeshare_2011-01-01_2011-01-03.xlsx"))
}

func TestReloadData(t *testing.T) {
	a := testApp(t)
	before := a.data.Version()
	a.reloadData()
	assert.Equal(t, before+1, a.data.Version())
}

func TestServeShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, &rootOptions{configDir: configDir})
	}()

	pidFile := filepath.Join(baseDir, "bikeshare.pid")
	require.Eventually(t, func() bool {
		_, err := os.Stat(pidFile)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("服务没有退出")
	}
	assert.NoFileExists(t, pidFile)
}
