package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"BikeShareDashboard/src/chart"
	"BikeShareDashboard/src/config"
	"BikeShareDashboard/src/processor"
	"BikeShareDashboard/src/storage"
	"BikeShareDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Server 仪表盘的 HTTP 服务
type Server struct {
	cfg       *config.Config
	data      *processor.Dataset
	renderer  chart.Renderer
	formatter *processor.Formatter
	cache     *ReportCache
	hub       *Hub
	logger    *storage.Logger
	opts      processor.Options
	done      chan struct{} // Shutdown 时关闭, 结束 /logs 长连接
	closeOnce sync.Once
}

// NewServer 创建服务, hub 需要调用方通过 Hub().Run 启动
func NewServer(cfg *config.Config, dcfg *config.DataConfig, data *processor.Dataset, logger *storage.Logger) (*Server, error) {
	renderer, err := NewRenderer(cfg)
	if err != nil {
		return nil, err
	}
	formatter, err := processor.NewFormatter(language.English, dcfg.Currency)
	if err != nil {
		return nil, err
	}
	cache, err := NewReportCache(cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:       cfg,
		data:      data,
		renderer:  renderer,
		formatter: formatter,
		cache:     cache,
		hub:       NewHub(logger),
		logger:    logger,
		opts:      processor.OptionsFrom(cfg, dcfg),
		done:      make(chan struct{}),
	}, nil
}

// NewRenderer 根据 chart.renderer 选择渲染方式
func NewRenderer(cfg *config.Config) (chart.Renderer, error) {
	switch cfg.Chart.Renderer {
	case "", "local":
		return chart.NewLocalRenderer(cfg.Chart.Width, cfg.Chart.Height), nil
	case "quickchart":
		return chart.NewQuickChartRenderer(cfg.Chart.Width, cfg.Chart.Height), nil
	default:
		return nil, fmt.Errorf("未知的图表渲染方式: %s", cfg.Chart.Renderer)
	}
}

// Shutdown 结束所有日志流, 交给 http.Server.RegisterOnShutdown
func (s *Server) Shutdown() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// Router 注册全部路由
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.index).Methods(http.MethodGet)
	r.HandleFunc("/chart/{name:[a-z_]+}.png", s.chartImage).Methods(http.MethodGet)
	r.HandleFunc("/api/report", s.apiReport).Methods(http.MethodGet)
	r.HandleFunc("/api/export.xlsx", s.export).Methods(http.MethodGet)
	r.HandleFunc("/logs", s.streamLogs).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.hub.ServeWS)
	r.HandleFunc("/static/logo", s.logo).Methods(http.MethodGet)
	r.Use(s.logRequests)
	return r
}

// logRequests 不包装 ResponseWriter, /logs 和 /ws 需要原始的 Flusher/Hijacker
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		begin := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("请求完成",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("cost", time.Since(begin)))
	})
}

// Reload 替换数据, 清空缓存并通知已打开的页面刷新
func (s *Server) Reload(df dataframe.DataFrame) uint64 {
	version := s.data.Set(df)
	s.cache.Purge()
	s.hub.Broadcast(ReloadMessage)
	s.logger.Info("数据已重新加载", zap.Uint64("version", version), zap.Int("rows", df.Nrow()))
	return version
}

// Report 取缓存或重新计算
func (s *Server) Report(start, end string) (*processor.Report, error) {
	df, version := s.data.Get()
	if r, ok := s.cache.Get(version, start, end); ok {
		return r, nil
	}

	r, err := processor.BuildReport(df, start, end, s.opts)
	if err != nil {
		return nil, err
	}
	s.cache.Add(version, start, end, r)
	return r, nil
}

// requestRange 读取 start/end 参数, 缺省时使用数据的起止日期
func (s *Server) requestRange(r *http.Request) (string, string, error) {
	q := r.URL.Query()
	start, end := q.Get("start"), q.Get("end")

	first, last := s.data.Bounds()
	if start == "" {
		start = first
	}
	if end == "" {
		end = last
	}

	for _, d := range []string{start, end} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(config.DateLayout, d); err != nil {
			return "", "", fmt.Errorf("日期格式错误 %q, 应为 YYYY-MM-DD", d)
		}
	}
	if start != "" && end != "" && start > end {
		return "", "", processor.ErrInvalidRange
	}
	return start, end, nil
}

// report 解析参数并取得报表, 出错时已写好响应
func (s *Server) report(w http.ResponseWriter, r *http.Request) (*processor.Report, bool) {
	start, end, err := s.requestRange(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return nil, false
	}

	report, err := s.Report(start, end)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, processor.ErrInvalidRange) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err)
		return nil, false
	}
	return report, true
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	report, ok := s.report(w, r)
	if !ok {
		return
	}

	first, last := s.data.Bounds()
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, s.buildPage(report, first, last)); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("页面渲染失败: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (s *Server) chartImage(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	report, ok := s.report(w, r)
	if !ok {
		return
	}

	spec, found := chart.Find(report, name)
	if !found {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("未知的图表: %s", name))
		return
	}

	var buf bytes.Buffer
	if err := s.renderer.Render(spec, &buf); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("图表 %s 渲染失败: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	buf.WriteTo(w)
}

func (s *Server) apiReport(w http.ResponseWriter, r *http.Request) {
	report, ok := s.report(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	report, ok := s.report(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := utils.WriteWorkbook(report.Sheets(), &buf); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ExportFileName(report.Start, report.End)))
	buf.WriteTo(w)
}

// logo 优先使用配置的文件, 否则使用内置图标
func (s *Server) logo(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Logo != "" {
		if _, err := os.Stat(s.cfg.Logo); err == nil {
			http.ServeFile(w, r, s.cfg.Logo)
			return
		}
		s.logger.Warning("logo 文件不存在, 使用内置图标", zap.String("path", s.cfg.Logo))
	}

	data, err := content.ReadFile("static/logo.svg")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Write(data)
}

// ExportFileName 导出文件名, 例如 bikeshare_2011-01-01_2011-12-31.xlsx
func ExportFileName(start, end string) string {
	if start == "" && end == "" {
		return "bikeshare.xlsx"
	}
	return fmt.Sprintf("bikeshare_%s_%s.xlsx", start, end)
}

func rangeQuery(start, end string) string {
	if start == "" && end == "" {
		return ""
	}
	return "start=" + url.QueryEscape(start) + "&end=" + url.QueryEscape(end)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("响应编码失败", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("请求处理失败", zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Warning("请求参数错误", zap.Int("status", status), zap.Error(err))
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
