package zbxclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

// ErrTemplateNotFound 模板不存在
var ErrTemplateNotFound = errors.New("zabbix template not found")

// APIError Zabbix JSON-RPC 错误对象
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zabbix api error %d: %s %s", e.Code, e.Message, e.Data)
}

// Config Zabbix API 配置
type Config struct {
	URL          string
	User         string
	Password     string
	APIToken     string // 配置后不再调用 user.login
	Timeout      time.Duration
	LoginRetries int
}

// Client Zabbix JSON-RPC 客户端，一轮采集使用一个实例
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	token      string
	nextID     atomic.Int64
	backoff    *backoff.Backoff
}

// NewClient 创建客户端
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.LoginRetries <= 0 {
		cfg.LoginRetries = 1
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		token:      cfg.APIToken,
		backoff: &backoff.Backoff{
			Min:    500 * time.Millisecond,
			Max:    10 * time.Second,
			Factor: 2,
			Jitter: true,
		},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *APIError       `json:"error"`
	ID      int64           `json:"id"`
}

// call 发起一次 JSON-RPC 调用
func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json-rpc")
	if c.token != "" && method != "user.login" && method != "apiinfo.version" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP 状态码: %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// Login 登录并保存会话 token，网络错误按退避重试，认证错误直接返回
func (c *Client) Login(ctx context.Context) error {
	if c.cfg.APIToken != "" {
		return nil
	}

	params := map[string]string{
		"username": c.cfg.User,
		"password": c.cfg.Password,
	}

	c.backoff.Reset()
	var err error
	for attempt := 1; attempt <= c.cfg.LoginRetries; attempt++ {
		var token string
		err = c.call(ctx, "user.login", params, &token)
		if err == nil {
			c.token = token
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) || attempt == c.cfg.LoginRetries {
			break
		}

		wait := c.backoff.Duration()
		c.logger.Warn("Zabbix 登录失败，稍后重试",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("zabbix login: %w", err)
}

// Logout 注销会话，使用 API token 时不做任何事
func (c *Client) Logout(ctx context.Context) error {
	if c.cfg.APIToken != "" || c.token == "" {
		return nil
	}
	err := c.call(ctx, "user.logout", []string{}, nil)
	c.token = ""
	return err
}

// Interface 主机接口
type Interface struct {
	IP    string `json:"ip"`
	Main  string `json:"main"`
	UseIP string `json:"useip"`
	Type  string `json:"type"`
}

// Host Zabbix 主机
type Host struct {
	HostID     string      `json:"hostid"`
	Host       string      `json:"host"`
	Name       string      `json:"name"`
	Interfaces []Interface `json:"interfaces"`
}

// PrimaryIP 返回主接口地址，没有主接口时返回第一个非空地址
func (h Host) PrimaryIP() string {
	for _, iface := range h.Interfaces {
		if iface.Main == "1" && iface.IP != "" {
			return iface.IP
		}
	}
	for _, iface := range h.Interfaces {
		if iface.IP != "" {
			return iface.IP
		}
	}
	return ""
}

// TemplateID 根据模板名查找模板 ID
func (c *Client) TemplateID(ctx context.Context, name string) (string, error) {
	var templates []struct {
		TemplateID string `json:"templateid"`
		Host       string `json:"host"`
	}
	params := map[string]interface{}{
		"output": []string{"templateid", "host"},
		"filter": map[string]interface{}{"host": []string{name}},
	}
	if err := c.call(ctx, "template.get", params, &templates); err != nil {
		return "", err
	}
	if len(templates) == 0 {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return templates[0].TemplateID, nil
}

// HostsByTemplate 查询挂载了指定模板的主机及其接口
func (c *Client) HostsByTemplate(ctx context.Context, templateID string) ([]Host, error) {
	var hosts []Host
	params := map[string]interface{}{
		"output":           []string{"hostid", "host", "name"},
		"templateids":      []string{templateID},
		"selectInterfaces": []string{"ip", "main", "useip", "type"},
	}
	if err := c.call(ctx, "host.get", params, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}
