package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dushixiang/quanterra/internal/metric"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTemplate       = "Template Quanterra"
	DefaultInterval       = 300
	DefaultStationPort    = 6381
	DefaultStationPath    = "/stats.html"
	DefaultStationTimeout = 10
)

// Config 采集器配置
type Config struct {
	Path     string         `yaml:"-"`
	Zabbix   ZabbixConfig   `yaml:"zabbix"`
	Station  StationConfig  `yaml:"station"`
	Poller   PollerConfig   `yaml:"poller"`
	Probe    ProbeConfig    `yaml:"probe"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// ZabbixConfig Zabbix 配置（台站清单与指标接收）
type ZabbixConfig struct {
	APIURL         string `yaml:"apiUrl" validate:"required,url"`                 // JSON-RPC 地址，如 http://zabbix/api_jsonrpc.php
	User           string `yaml:"user" validate:"required_without=APIToken"`     // 登录用户
	Password       string `yaml:"password" validate:"required_without=APIToken"` // 登录密码
	APIToken       string `yaml:"apiToken"`                                      // API token（可选，配置后不再登录）
	Template       string `yaml:"template"`                                      // 台站所挂载的模板名
	RequestTimeout int    `yaml:"requestTimeout" validate:"gte=0"`               // API 请求超时（秒）
	LoginRetries   int    `yaml:"loginRetries" validate:"gte=0,lte=10"`          // 登录重试次数
	SenderServer   string `yaml:"senderServer" validate:"required,hostname|ip"`  // trapper 地址
	SenderPort     int    `yaml:"senderPort" validate:"gte=0,lte=65535"`         // trapper 端口
	SenderTimeout  int    `yaml:"senderTimeout" validate:"gte=0"`                // 发送超时（秒）
	HostSuffix     string `yaml:"hostSuffix"`                                    // Zabbix 主机名后缀，如 _QA
	MaxBatch       int    `yaml:"maxBatch" validate:"gte=0"`                     // 单个 trapper 请求的最大条数
}

// StationConfig 台站状态页配置
type StationConfig struct {
	Port         int      `yaml:"port" validate:"gte=0,lte=65535"`
	Path         string   `yaml:"path"`
	URLTemplate  string   `yaml:"urlTemplate"`              // 占位符: {address} {port} {hostport} {path}
	Timeout      int      `yaml:"timeout" validate:"gte=0"` // 秒
	MaxBodyBytes int64    `yaml:"maxBodyBytes" validate:"gte=0"`
	Metrics      []string `yaml:"metrics"` // 为空表示全部指标
}

// PollerConfig 并发采集配置
type PollerConfig struct {
	Workers int `yaml:"workers" validate:"gte=0,lte=1024"`
}

// ProbeConfig ICMP 预检配置
type ProbeConfig struct {
	Enabled    *bool  `yaml:"enabled"`
	Mode       string `yaml:"mode" validate:"omitempty,oneof=icmp tcp"` // tcp 模式连接台站状态页端口
	Count      int    `yaml:"count" validate:"gte=0"`
	Timeout    int    `yaml:"timeout" validate:"gte=0"` // 秒
	Privileged bool   `yaml:"privileged"`
	Workers    int    `yaml:"workers" validate:"gte=0,lte=1024"`
}

// ScheduleConfig 调度配置
type ScheduleConfig struct {
	Interval int    `yaml:"interval" validate:"gte=0"` // 采集间隔（秒）
	Cron     string `yaml:"cron"`                      // 带秒字段的 cron 表达式，优先于 interval
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

// HTTPConfig 自身指标接口
type HTTPConfig struct {
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"` // 为空时不启动
}

var validate = validator.New()

// Load 从文件加载配置
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if abs, err := filepath.Abs(path); err == nil {
		cfg.Path = abs
	} else {
		cfg.Path = path
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 填充默认值
func (c *Config) applyDefaults() {
	if c.Zabbix.Template == "" {
		c.Zabbix.Template = DefaultTemplate
	}
	if c.Zabbix.RequestTimeout == 0 {
		c.Zabbix.RequestTimeout = 30
	}
	if c.Zabbix.LoginRetries == 0 {
		c.Zabbix.LoginRetries = 3
	}
	if c.Zabbix.SenderPort == 0 {
		c.Zabbix.SenderPort = 10051
	}
	if c.Zabbix.SenderTimeout == 0 {
		c.Zabbix.SenderTimeout = 30
	}
	if c.Zabbix.MaxBatch == 0 {
		c.Zabbix.MaxBatch = 250
	}

	if c.Station.Port == 0 {
		c.Station.Port = DefaultStationPort
	}
	if c.Station.Path == "" {
		c.Station.Path = DefaultStationPath
	}
	if c.Station.Timeout == 0 {
		c.Station.Timeout = DefaultStationTimeout
	}

	if c.Poller.Workers == 0 {
		c.Poller.Workers = 50
	}

	if c.Probe.Enabled == nil {
		enabled := true
		c.Probe.Enabled = &enabled
	}
	if c.Probe.Mode == "" {
		c.Probe.Mode = "icmp"
	}
	if c.Probe.Count == 0 {
		c.Probe.Count = 1
	}
	if c.Probe.Timeout == 0 {
		c.Probe.Timeout = 2
	}
	if c.Probe.Workers == 0 {
		c.Probe.Workers = 50
	}

	if c.Schedule.Interval == 0 {
		c.Schedule.Interval = DefaultInterval
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = 50
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 7
	}
	if c.Log.MaxAge == 0 {
		c.Log.MaxAge = 30
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("配置校验失败: %s (%s)", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("配置校验失败: %w", err)
	}
	if _, err := metric.ParseNames(c.Station.Metrics); err != nil {
		return fmt.Errorf("配置校验失败: station.metrics: %w", err)
	}
	return nil
}

// MetricNames 需要采集的指标
func (c *Config) MetricNames() []metric.Name {
	names, err := metric.ParseNames(c.Station.Metrics)
	if err != nil {
		return metric.AllNames
	}
	return names
}

// ProbeEnabled 是否启用 ICMP 预检
func (c *Config) ProbeEnabled() bool {
	return c.Probe.Enabled == nil || *c.Probe.Enabled
}

// GetScheduleSpec 返回 cron 表达式
func (c *Config) GetScheduleSpec() string {
	if c.Schedule.Cron != "" {
		return c.Schedule.Cron
	}
	interval := c.Schedule.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return fmt.Sprintf("@every %ds", interval)
}

// GetStationTimeout 状态页请求超时
func (c *Config) GetStationTimeout() time.Duration {
	return time.Duration(c.Station.Timeout) * time.Second
}

// GetProbeTimeout ICMP 超时
func (c *Config) GetProbeTimeout() time.Duration {
	return time.Duration(c.Probe.Timeout) * time.Second
}

// GetRequestTimeout Zabbix API 超时
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Zabbix.RequestTimeout) * time.Second
}

// GetSenderTimeout trapper 发送超时
func (c *Config) GetSenderTimeout() time.Duration {
	return time.Duration(c.Zabbix.SenderTimeout) * time.Second
}
