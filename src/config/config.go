package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix 环境变量前缀, 例如 BIKESHARE_DATA_FILE
const EnvPrefix = "BIKESHARE"

// 标准化之后的列名
const (
	ColInstant    = "instant"
	ColDate       = "date"
	ColDay        = "day"
	ColSeason     = "season"
	ColWeather    = "weather"
	ColHour       = "hour"
	ColCasual     = "casual_user"
	ColRegistered = "registered_user"
	ColTotal      = "total_user"
	ColTier       = "tier"
)

// DateLayout 日期列统一格式
const DateLayout = "2006-01-02"

// Config 结构体定义了应用程序的配置结构
type Config struct {
	Server struct {
		Addr         string   `json:"addr" envconfig:"ADDR"`                   // 监听地址
		ReadTimeout  Duration `json:"read_timeout" envconfig:"READ_TIMEOUT"`   // 读超时
		WriteTimeout Duration `json:"write_timeout" envconfig:"WRITE_TIMEOUT"` // 写超时
		PidFile      string   `json:"pid_file" envconfig:"PID_FILE"`
	} `json:"server" envconfig:"SERVER"`

	DataFile     string `json:"data_file" envconfig:"DATA_FILE"`   // 数据文件(csv/xlsx)
	SheetName    string `json:"sheet_name" envconfig:"SHEET_NAME"` // xlsx 工作表名
	HeaderRow    int    `json:"header_row" envconfig:"HEADER_ROW"` // xlsx 标题行(从0开始)
	Encoding     string `json:"encoding" envconfig:"ENCODING"`     // utf-8 或 gbk
	StrictTotals bool   `json:"strict_totals" envconfig:"STRICT_TOTALS"`
	Resample     string `json:"resample" envconfig:"RESAMPLE"` // D / W / M
	CacheSize    int    `json:"cache_size" envconfig:"CACHE_SIZE"`
	Watch        bool   `json:"watch" envconfig:"WATCH"`
	Logo         string `json:"logo" envconfig:"LOGO"`

	LogName     string   `json:"log_name" envconfig:"LOG_NAME"`
	LogLevel    string   `json:"log_level" envconfig:"LOG_LEVEL"`
	LogMaxSize  string   `json:"log_max_size" envconfig:"LOG_MAX_SIZE"`
	RotateCheck Duration `json:"rotate_check" envconfig:"ROTATE_CHECK"`

	Chart struct {
		Renderer string `json:"renderer" envconfig:"RENDERER"` // local 或 quickchart
		Width    int    `json:"width" envconfig:"WIDTH"`
		Height   int    `json:"height" envconfig:"HEIGHT"`
	} `json:"chart" envconfig:"CHART"`

	Export struct {
		Dir      string `json:"dir" envconfig:"DIR"`
		Schedule string `json:"schedule" envconfig:"SCHEDULE"` // cron 表达式, 为空则不定时导出
	} `json:"export" envconfig:"EXPORT"`

	SendEmail struct {
		Server   string   `json:"server" envconfig:"SERVER"`     // 邮件服务器地址
		Username string   `json:"username" envconfig:"USERNAME"` // 邮箱用户名
		Password string   `json:"password" envconfig:"PASSWORD"` // 邮箱密码
		To       []string `json:"to" envconfig:"TO"`
		Subject  string   `json:"subject" envconfig:"SUBJECT"`
	} `json:"send_email" envconfig:"SEND_EMAIL"`
}

// VolumeTier 用车量分档, Max 为 0 表示无上限
type VolumeTier struct {
	Label string `json:"label"`
	Max   int    `json:"max"`
}

// DataConfig 数据列映射与标签配置
type DataConfig struct {
	Columns       map[string]string `json:"columns"` // 源列名 -> 标准列名
	SeasonLabels  map[string]string `json:"season_labels"`
	WeatherLabels map[string]string `json:"weather_labels"`
	WeekdayLabels map[string]string `json:"weekday_labels"`
	DayOrder      []string          `json:"day_order"`
	SeasonOrder   []string          `json:"season_order"`
	TierColumn    string            `json:"tier_column"`
	VolumeTiers   []VolumeTier      `json:"volume_tiers"`
	Currency      string            `json:"currency"`
}

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
	loadErr            error
)

// LoadConfig 只加载一次配置, 之后的调用返回同一份实例
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	once.Do(func() {
		instance, dataConfigInstance, loadErr = Load(jsonFolder, jsonFile, dataJsonFile)
	})
	return instance, dataConfigInstance, loadErr
}

// Load 读取并解析两份配置文件, 不做缓存
func Load(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	dataConfigFile := filepath.Join(jsonFolder, dataJsonFile)

	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	dataConfigData, err := readFile(dataConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取数据配置文件失败: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseDataConfig(dataConfigData, dcfgChan, errChan)

	cfg, dcfg, err := waitForResults(cfgChan, dcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	cfg.applyDefaults()
	dcfg.applyDefaults()

	// 相对路径以配置目录的上一级(项目根目录)为基准
	base := filepath.Dir(filepath.Clean(jsonFolder))
	if jsonFolder == "" {
		base = "."
	}
	cfg.DataFile = resolvePath(base, cfg.DataFile)
	cfg.Logo = resolvePath(base, cfg.Logo)

	return cfg, dcfg, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		errChan <- fmt.Errorf("解析Config失败: %w", err)
		return
	}
	resultChan <- &cfg
}

func parseDataConfig(data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	var dcfg DataConfig
	if err := json.Unmarshal(data, &dcfg); err != nil {
		errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
		return
	}
	resultChan <- &dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg    *Config
		dcfg   *DataConfig
		errors []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return nil, nil, combineErrors(errors)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}

	msg := "配置加载遇到多个错误:"
	for _, err := range errs {
		msg = fmt.Sprintf("%s\n- %v", msg, err)
	}
	return fmt.Errorf("%s", msg)
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(15 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(30 * time.Second)
	}
	if c.Server.PidFile == "" {
		c.Server.PidFile = "bikeshare.pid"
	}
	if c.DataFile == "" {
		c.DataFile = "data/data_clean.csv"
	}
	if c.Encoding == "" {
		c.Encoding = "utf-8"
	}
	if c.Resample == "" {
		c.Resample = "D"
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 64
	}
	if c.LogName == "" {
		c.LogName = "app.log"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSize == "" {
		c.LogMaxSize = "10 * 1024 * 1024"
	}
	if c.RotateCheck == 0 {
		c.RotateCheck = Duration(time.Minute)
	}
	if c.Chart.Renderer == "" {
		c.Chart.Renderer = "local"
	}
	if c.Chart.Width == 0 {
		c.Chart.Width = 1000
	}
	if c.Chart.Height == 0 {
		c.Chart.Height = 500
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "export"
	}
	if c.SendEmail.Subject == "" {
		c.SendEmail.Subject = "Bike Share Report"
	}
}

func (dc *DataConfig) applyDefaults() {
	if dc.Columns == nil {
		dc.Columns = map[string]string{
			"instant":    "instant",
			"dteday":     "date",
			"weekday":    "day",
			"season":     "season",
			"weathersit": "weather",
			"hr":         "hour",
			"casual":     "casual_user",
			"registered": "registered_user",
			"cnt":        "total_user",
		}
	}
	if dc.SeasonLabels == nil {
		dc.SeasonLabels = map[string]string{"1": "Spring", "2": "Summer", "3": "Fall", "4": "Winter"}
	}
	if dc.WeatherLabels == nil {
		dc.WeatherLabels = map[string]string{
			"1": "Clear",
			"2": "Misty/Cloudy",
			"3": "Light Snow/Rain",
			"4": "Severe Weather",
		}
	}
	if dc.WeekdayLabels == nil {
		dc.WeekdayLabels = map[string]string{
			"0": "Sunday", "1": "Monday", "2": "Tuesday", "3": "Wednesday",
			"4": "Thursday", "5": "Friday", "6": "Saturday",
		}
	}
	if len(dc.DayOrder) == 0 {
		dc.DayOrder = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	}
	if len(dc.SeasonOrder) == 0 {
		dc.SeasonOrder = []string{"Spring", "Summer", "Fall", "Winter"}
	}
	if dc.TierColumn == "" {
		dc.TierColumn = "user_volume"
	}
	if len(dc.VolumeTiers) == 0 {
		dc.VolumeTiers = []VolumeTier{
			{Label: "Low", Max: 2000},
			{Label: "Medium", Max: 5000},
			{Label: "High"},
		}
	}
	if dc.Currency == "" {
		dc.Currency = "USD"
	}
}

// Default 返回仅包含默认值的配置, 供测试和无配置文件时使用
func Default() (*Config, *DataConfig) {
	cfg := &Config{}
	dcfg := &DataConfig{}
	cfg.applyDefaults()
	dcfg.applyDefaults()
	return cfg, dcfg
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON序列化和反序列化
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON 实现json.Marshaler接口
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Decode 实现envconfig.Decoder, 环境变量同样使用 "5m" 这种写法
func (d *Duration) Decode(value string) error {
	dur, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Std 转换为标准库类型
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Label 根据映射表返回标签, 未配置时原样返回
func (dc *DataConfig) Label(kind, raw string) string {
	var m map[string]string
	switch kind {
	case "season":
		m = dc.SeasonLabels
	case "weather":
		m = dc.WeatherLabels
	case "day":
		m = dc.WeekdayLabels
	}
	if v, ok := m[raw]; ok {
		return v
	}
	return raw
}

// Tier 按 total 返回所属分档
func (dc *DataConfig) Tier(total int) string {
	for _, t := range dc.VolumeTiers {
		if t.Max == 0 || total < t.Max {
			return t.Label
		}
	}
	return "Unknown"
}
