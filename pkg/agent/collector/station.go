package collector

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dushixiang/quanterra/internal/metric"
	"github.com/dushixiang/quanterra/pkg/agent/statspage"
	"github.com/valyala/fasttemplate"
)

const (
	DefaultStationPort  = 6381
	DefaultStationPath  = "/stats.html"
	DefaultURLTemplate  = "http://{hostport}{path}"
	DefaultFetchTimeout = 10 * time.Second
	DefaultMaxBodyBytes = 1 << 20
)

// StationConfig 状态页采集配置
type StationConfig struct {
	Port         int
	Path         string
	URLTemplate  string // 可用占位符: {address} {port} {hostport} {path}
	Timeout      time.Duration
	MaxBodyBytes int64
}

// StationCollector 台站状态页采集器
type StationCollector struct {
	httpClient *http.Client
	urlTmpl    *fasttemplate.Template
	cfg        StationConfig
	parser     *statspage.Parser
}

// NewStationCollector 创建台站采集器
func NewStationCollector(cfg StationConfig) (*StationCollector, error) {
	if cfg.Port <= 0 {
		cfg.Port = DefaultStationPort
	}
	if cfg.Path == "" {
		cfg.Path = DefaultStationPath
	}
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultURLTemplate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	tmpl, err := fasttemplate.NewTemplate(cfg.URLTemplate, "{", "}")
	if err != nil {
		return nil, fmt.Errorf("invalid url template %q: %w", cfg.URLTemplate, err)
	}

	// 每次采集都是独立的新连接
	httpClient := &http.Client{
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}

	return &StationCollector{
		httpClient: httpClient,
		urlTmpl:    tmpl,
		cfg:        cfg,
		parser:     statspage.NewParser(),
	}, nil
}

// URL 台站状态页地址
func (c *StationCollector) URL(address string) string {
	port := strconv.Itoa(c.cfg.Port)
	return c.urlTmpl.ExecuteString(map[string]interface{}{
		"address":  address,
		"port":     port,
		"hostport": net.JoinHostPort(address, port),
		"path":     c.cfg.Path,
	})
}

// Harvest 拉取台站状态页并解析出请求的指标
// 失败时只返回 *FetchError，不会返回部分结果
func (c *StationCollector) Harvest(ctx context.Context, address string, names []metric.Name) (metric.Record, error) {
	url := c.URL(address)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return metric.Record{}, &FetchError{Kind: FetchConnectionError, Address: address, URL: url, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return metric.Record{}, &FetchError{Kind: classify(err), Address: address, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return metric.Record{}, &FetchError{
			Kind:       FetchHTTPError,
			Address:    address,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return metric.Record{}, &FetchError{Kind: classify(err), Address: address, URL: url, Err: fmt.Errorf("read response body failed: %w", err)}
	}

	record := c.parser.Parse(string(body))
	return record.Filter(names), nil
}
