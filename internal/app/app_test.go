package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/dushixiang/quanterra/internal/config"
	"github.com/dushixiang/quanterra/internal/protocol"
	"github.com/dushixiang/quanterra/internal/zbxclient"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const statsPage = `Station EC-QUIL
Tag 12345 - Station EC-QUIL
Input Voltage: 12.1V
System Temperature: 31C
MEDIA site 1 ... free=23.50%
`

func newZabbixAPI(t *testing.T, stationIP string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			ID     int64  `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var result interface{}
		switch req.Method {
		case "user.login":
			result = "session-token"
		case "user.logout":
			result = true
		case "template.get":
			result = []map[string]string{{"templateid": "10001", "host": "Template Quanterra"}}
		case "host.get":
			result = []map[string]interface{}{{
				"hostid": "20001",
				"host":   "STA1",
				"name":   "Station 1",
				"interfaces": []map[string]string{
					{"ip": stationIP, "main": "1", "useip": "1", "type": "1"},
				},
			}}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"result":  result,
			"id":      req.ID,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type trapper struct {
	ln       net.Listener
	mu       sync.Mutex
	requests []protocol.SenderRequest
}

func newTrapper(t *testing.T) *trapper {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	tr := &trapper{ln: ln}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go tr.handle(conn)
		}
	}()
	return tr
}

func (tr *trapper) handle(conn net.Conn) {
	defer conn.Close()
	data, err := zbxclient.DecodePacket(conn)
	if err != nil {
		return
	}
	var req protocol.SenderRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	tr.mu.Lock()
	tr.requests = append(tr.requests, req)
	tr.mu.Unlock()

	n := len(req.Data)
	reply := fmt.Sprintf(`{"response":"success","info":"processed: %d; failed: 0; total: %d; seconds spent: 0.000120"}`, n, n)
	_, _ = conn.Write(zbxclient.EncodePacket([]byte(reply)))
}

func (tr *trapper) received() []protocol.SenderRequest {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]protocol.SenderRequest(nil), tr.requests...)
}

func (tr *trapper) port() int {
	return tr.ln.Addr().(*net.TCPAddr).Port
}

func loadConfig(t *testing.T, apiURL string, stationPort, senderPort int) (afero.Fs, *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`
zabbix:
  apiUrl: %s
  user: collector
  password: secret
  senderServer: 127.0.0.1
  senderPort: %d
  hostSuffix: _QA
station:
  port: %d
  timeout: 2
  metrics: [station.code, input.voltage, media.site1.space.occupied]
probe:
  enabled: false
schedule:
  interval: 3600
`, apiURL, senderPort, stationPort)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/quanterra/config.yaml", []byte(content), 0o644))
	cfg, err := config.Load(fs, "/etc/quanterra/config.yaml")
	require.NoError(t, err)
	return fs, cfg
}

func newStation(t *testing.T) (string, int) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(statsPage))
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	var port int
	_, err = fmt.Sscanf(portStr, "%d", &port)
	require.NoError(t, err)
	return host, port
}

func TestRunOnce(t *testing.T) {
	stationIP, stationPort := newStation(t)
	api := newZabbixAPI(t, stationIP)
	tr := newTrapper(t)

	fs, cfg := loadConfig(t, api.URL, stationPort, tr.port())
	a, err := New(fs, cfg, zap.NewNop())
	require.NoError(t, err)

	result, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Registered)
	assert.Equal(t, 1, result.Harvested)
	assert.Equal(t, 3, result.Samples)
	assert.Equal(t, 3, result.Acknowledged)

	requests := tr.received()
	require.Len(t, requests, 1)
	assert.Equal(t, "sender data", requests[0].Request)

	got := map[string]string{}
	for _, item := range requests[0].Data {
		assert.Equal(t, "STA1_QA", item.Host)
		got[item.Key] = item.Value
	}
	assert.Equal(t, map[string]string{
		"station.code":               "QUIL",
		"input.voltage":              "12.1",
		"media.site1.space.occupied": "76.5",
	}, got)
}

func TestRunOnceInventoryUnavailable(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer api.Close()
	tr := newTrapper(t)

	fs, cfg := loadConfig(t, api.URL, 6381, tr.port())
	cfg.Zabbix.LoginRetries = 1
	a, err := New(fs, cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = a.RunOnce(context.Background())
	require.Error(t, err)
	assert.Empty(t, tr.received())
}

func TestServeRunsImmediatelyAndStops(t *testing.T) {
	stationIP, stationPort := newStation(t)
	api := newZabbixAPI(t, stationIP)
	tr := newTrapper(t)

	fs, cfg := loadConfig(t, api.URL, stationPort, tr.port())
	// 内存文件系统无法监听，跳过配置热更新
	cfg.Path = ""
	a, err := New(fs, cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	require.Eventually(t, func() bool {
		return len(tr.received()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve 未退出")
	}
}
