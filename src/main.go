package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"BikeShareDashboard/src/dashboard"
	"BikeShareDashboard/src/storage"

	"github.com/spf13/cobra"
)

const (
	jsonFile     = "config.json"
	dataJsonFile = "dataconfig.json"
)

type rootOptions struct {
	configDir string
	logLevel  string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "启动仪表盘 Web 服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	root := &cobra.Command{
		Use:          "bikeshare",
		Short:        "共享单车用车数据仪表盘",
		SilenceUsage: true,
		RunE:         serveCmd.RunE, // 默认执行 serve
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config-dir", "./config", "配置文件目录")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "日志级别, 覆盖配置文件 (debug/info/warn/error)")

	root.AddCommand(serveCmd, newExportCmd(opts), newSummaryCmd(opts), newReloadCmd(opts))
	return root
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var start, end, out, dataOut string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "导出日期区间内的统计报表(xlsx)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			path, report, err := a.exportReport(start, end, out)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)

			if dataOut != "" {
				if err := a.exportRows(report.Start, report.End, dataOut); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), dataOut)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "开始日期 YYYY-MM-DD, 默认为数据最早日期")
	cmd.Flags().StringVar(&end, "end", "", "结束日期 YYYY-MM-DD, 默认为数据最晚日期")
	cmd.Flags().StringVar(&out, "out", "", "输出文件, 默认写到 export.dir")
	cmd.Flags().StringVar(&dataOut, "data-out", "", "同时导出区间内标准化后的明细数据")
	return cmd
}

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "在终端输出指标卡片",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.buildReport(start, end)
			if err != nil {
				return err
			}
			return a.writeSummary(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "开始日期 YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "结束日期 YYYY-MM-DD")
	return cmd
}

// newReloadCmd 向正在运行的服务发送 SIGHUP
func newReloadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "通知运行中的服务重新打开日志并重新加载数据",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			pid, err := readPidFile(cfg.Server.PidFile)
			if err != nil {
				return err
			}
			if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
				return fmt.Errorf("发送 SIGHUP 到进程 %d 失败: %w", pid, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已通知进程 %d 重新加载\n", pid)
			return nil
		},
	}
}

func writePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func readPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("读取 pid 文件失败: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid 文件内容无效: %q", string(data))
	}
	return pid, nil
}

// runServe 启动服务直到收到 SIGINT/SIGTERM
func runServe(ctx context.Context, opts *rootOptions) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := dashboard.NewServer(a.cfg, a.dcfg, a.data, a.logger)
	if err != nil {
		return err
	}
	a.server = srv

	return a.serve(ctx)
}

// logFatal 记录错误并返回包装后的错误
func logFatal(logger *storage.Logger, msg string, err error) error {
	if logger != nil {
		logger.Error(msg + ": " + err.Error())
	}
	return fmt.Errorf("%s: %w", msg, err)
}
