package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"BikeShareDashboard/src/config"
	"BikeShareDashboard/src/dashboard"
	"BikeShareDashboard/src/datapush"
	"BikeShareDashboard/src/datasource/file"
	"BikeShareDashboard/src/processor"
	"BikeShareDashboard/src/storage"
	"BikeShareDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/robfig/cron"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

const (
	shutdownTimeout = 10 * time.Second
	watchDebounce   = 500 * time.Millisecond
)

// app 一次运行所需的全部依赖
type app struct {
	cfg       *config.Config
	dcfg      *config.DataConfig
	logger    *storage.Logger
	data      *processor.Dataset
	formatter *processor.Formatter
	mailer    *datapush.ReportMailer // 未配置邮件时为 nil
	server    *dashboard.Server      // 只有 serve 时才有
}

func loadConfig(opts *rootOptions) (*config.Config, *config.DataConfig, error) {
	cfg, dcfg, err := config.LoadConfig(opts.configDir, jsonFile, dataJsonFile)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, dcfg, nil
}

// newApp 加载配置, 初始化日志并读取数据
func newApp(opts *rootOptions) (*app, error) {
	cfg, dcfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(cfg.LogName)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		logger.Close()
		return nil, err
	}

	formatter, err := processor.NewFormatter(language.English, dcfg.Currency)
	if err != nil {
		logger.Close()
		return nil, err
	}

	a := &app{cfg: cfg, dcfg: dcfg, logger: logger, formatter: formatter}

	df, err := a.loadData()
	if err != nil {
		logger.Close()
		return nil, err
	}
	a.data = processor.NewDataset(df)

	a.mailer, err = datapush.NewReportMailer(cfg, logger)
	if err != nil && !errors.Is(err, datapush.ErrNotConfigured) {
		logger.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() error {
	return a.logger.Close()
}

func (a *app) loadData() (dataframe.DataFrame, error) {
	t1 := time.Now()
	df, stats, err := file.Load(a.cfg.DataFile, a.cfg, a.dcfg)
	if err != nil {
		return df, logFatal(a.logger, "加载数据失败", err)
	}
	if stats.Repaired > 0 {
		a.logger.Warning("total_user 与 casual_user + registered_user 不一致, 已重新计算",
			zap.Int("rows", stats.Repaired))
	}
	a.logger.Info("数据加载完成",
		zap.String("source", stats.Source),
		zap.Int("rows", stats.Rows),
		zap.Bool("hourly", stats.Hourly),
		zap.Duration("cost", time.Since(t1)))
	return df, nil
}

// reloadData 重新读取数据文件, 失败时保留旧数据
func (a *app) reloadData() {
	df, err := a.loadData()
	if err != nil {
		return
	}
	if a.server != nil {
		a.server.Reload(df)
		return
	}
	a.data.Set(df)
}

func (a *app) buildReport(start, end string) (*processor.Report, error) {
	df, _ := a.data.Get()
	return processor.BuildReport(df, start, end, processor.OptionsFrom(a.cfg, a.dcfg))
}

// exportReport 写出报表, out 为空时写到 export.dir
func (a *app) exportReport(start, end, out string) (string, *processor.Report, error) {
	report, err := a.buildReport(start, end)
	if err != nil {
		return "", nil, err
	}
	if out == "" {
		out = filepath.Join(a.cfg.Export.Dir, dashboard.ExportFileName(report.Start, report.End))
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", nil, fmt.Errorf("创建导出目录失败: %w", err)
	}
	if err := utils.SaveWorkbook(report.Sheets(), out); err != nil {
		return "", nil, err
	}
	a.logger.Info("报表已导出", zap.String("path", out), zap.Int("rows", report.Rows))
	return out, report, nil
}

// exportRows 导出区间内的明细行
func (a *app) exportRows(start, end, out string) error {
	df, _ := a.data.Get()
	if start != "" && end != "" {
		var err error
		if df, err = processor.FilterByDate(df, start, end); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("创建导出目录失败: %w", err)
	}
	return utils.SaveToExcel(df, out)
}

// exportAndMail 定时任务: 导出全量报表, 配置了邮件时作为附件发送
func (a *app) exportAndMail(ctx context.Context) error {
	path, report, err := a.exportReport("", "", "")
	if err != nil {
		return err
	}
	if a.mailer == nil {
		return nil
	}

	var body strings.Builder
	if err := a.writeSummary(&body, report); err != nil {
		return err
	}
	return a.mailer.Send(ctx, path, body.String())
}

// writeSummary 以文本形式输出指标卡片
func (a *app) writeSummary(w io.Writer, report *processor.Report) error {
	f := a.formatter
	lines := []string{
		fmt.Sprintf("Bike Share Summary %s ~ %s (%s rows)", report.Start, report.End, f.Int(report.Rows)),
	}
	for _, tile := range f.TotalTiles(report.Totals) {
		lines = append(lines, fmt.Sprintf("%s: %s", tile.Label, tile.Value))
	}
	for _, sec := range report.Seasons {
		if !sec.Available {
			lines = append(lines, fmt.Sprintf("[%s] %s", sec.Season, sec.Message))
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] casual %s, registered %s, total %s",
			sec.Season, f.Int(sec.Casual), f.Int(sec.Registered), f.Int(sec.Total)))
	}
	for _, tile := range f.RFMTiles(report.RFMSummary) {
		lines = append(lines, fmt.Sprintf("%s: %s", tile.Label, tile.Value))
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// scheduleJobs 日志轮转检查和定时导出
func (a *app) scheduleJobs(ctx context.Context) (*cron.Cron, error) {
	maxSize, err := storage.ParseSize(a.cfg.LogMaxSize)
	if err != nil {
		return nil, err
	}

	c := cron.New()

	// 使用配置中的检查间隔而不是硬编码的1分钟
	cronSpec := fmt.Sprintf("@every %s", a.cfg.RotateCheck.Std())
	err = c.AddFunc(cronSpec, func() {
		rotated, err := a.logger.CheckRotate(maxSize)
		if err != nil {
			a.logger.Error("日志轮转失败", zap.Error(err))
			return
		}
		if rotated {
			a.logger.Info("日志文件已轮转", zap.Int64("max_size", maxSize))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("创建日志轮转任务失败: %w", err)
	}

	if a.cfg.Export.Schedule != "" {
		err = c.AddFunc(a.cfg.Export.Schedule, func() {
			a.logger.Info(fmt.Sprintf("开始定时导出(%s)...", a.cfg.Export.Schedule))
			if err := a.exportAndMail(ctx); err != nil {
				a.logger.Error("定时导出失败", zap.Error(err))
			}
		})
		if err != nil {
			return nil, fmt.Errorf("创建定时导出任务失败: %w", err)
		}
	}
	return c, nil
}

// watchData 数据文件变化时重新加载
func (a *app) watchData(ctx context.Context) error {
	monitor, err := file.NewFileMonitor(a.cfg.DataFile, watchDebounce)
	if err != nil {
		return err
	}
	go func() {
		err := monitor.Watch(ctx, func(path string) {
			a.logger.Info("数据文件已更新", zap.String("path", path))
			a.reloadData()
		})
		if err != nil {
			a.logger.Error("文件监控异常", zap.Error(err))
		}
	}()
	return nil
}

// serve 运行 HTTP 服务, SIGHUP 重新打开日志并重新加载数据
func (a *app) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := writePidFile(a.cfg.Server.PidFile); err != nil {
		return fmt.Errorf("写入 pid 文件失败: %w", err)
	}
	defer os.Remove(a.cfg.Server.PidFile)

	go a.server.Hub().Run(ctx)

	c, err := a.scheduleJobs(ctx)
	if err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	if a.cfg.Watch {
		if err := a.watchData(ctx); err != nil {
			return err
		}
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	httpServer := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      a.server.Router(),
		ReadTimeout:  a.cfg.Server.ReadTimeout.Std(),
		WriteTimeout: a.cfg.Server.WriteTimeout.Std(),
	}
	httpServer.RegisterOnShutdown(a.server.Shutdown)
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.logger.Info(fmt.Sprintf("仪表盘已启动 %s, 按Ctrl+C退出", a.cfg.Server.Addr))

	for {
		select {
		case <-hup:
			a.logger.Info("收到 SIGHUP, 重新打开日志并重新加载数据")
			if err := a.logger.Reopen(""); err != nil {
				a.logger.Error("重新打开日志失败", zap.Error(err))
			}
			a.reloadData()

		case err := <-errCh:
			return fmt.Errorf("HTTP 服务异常退出: %w", err)

		case <-ctx.Done():
			a.logger.Info("Received shutdown signal, shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		}
	}
}
