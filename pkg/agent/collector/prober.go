package collector

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const (
	ProbeICMP = "icmp"
	ProbeTCP  = "tcp"
)

// ProbeConfig 连通性探测配置
type ProbeConfig struct {
	Mode       string // icmp 或 tcp，默认 icmp
	Port       int    // tcp 模式下连接的端口
	Count      int
	Timeout    time.Duration
	Privileged bool
	Workers    int
}

// ProbeResult 单个地址的探测结果
type ProbeResult struct {
	Address string
	Alive   bool
	RTT     time.Duration
	Detail  string
}

// Prober 连通性探测器，按配置使用 ICMP 或 TCP 建连
type Prober struct {
	cfg    ProbeConfig
	logger *zap.Logger
	probe  func(ctx context.Context, address string) ProbeResult
}

// NewProber 创建探测器
func NewProber(cfg ProbeConfig, logger *zap.Logger) *Prober {
	if cfg.Count <= 0 {
		cfg.Count = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 50
	}

	p := &Prober{
		cfg:    cfg,
		logger: logger,
	}
	p.probe = p.ping
	if cfg.Mode == ProbeTCP {
		p.probe = p.dial
	}
	return p
}

// Probe 探测单个地址
func (p *Prober) Probe(ctx context.Context, address string) ProbeResult {
	return p.probe(ctx, address)
}

// ProbeAll 并发探测，返回可达的地址
func (p *Prober) ProbeAll(ctx context.Context, addresses []string) []string {
	if len(addresses) == 0 {
		return nil
	}

	workers := pool.NewWithResults[ProbeResult]().WithMaxGoroutines(p.cfg.Workers)
	for _, address := range addresses {
		address := address
		workers.Go(func() ProbeResult {
			return p.probe(ctx, address)
		})
	}

	alive := make([]string, 0, len(addresses))
	for _, result := range workers.Wait() {
		if !result.Alive {
			p.logger.Warn("台站不可达",
				zap.String("address", result.Address),
				zap.String("detail", result.Detail))
			continue
		}
		p.logger.Debug("台站可达",
			zap.String("address", result.Address),
			zap.Duration("rtt", result.RTT))
		alive = append(alive, result.Address)
	}
	return alive
}

// ping 使用 pro-bing 发送 ICMP Echo
func (p *Prober) ping(ctx context.Context, address string) ProbeResult {
	result := ProbeResult{Address: address}

	pinger, err := probing.NewPinger(address)
	if err != nil {
		result.Detail = fmt.Sprintf("create pinger failed: %v", err)
		return result
	}

	pinger.Count = p.cfg.Count
	pinger.Timeout = p.cfg.Timeout
	pinger.Interval = 100 * time.Millisecond
	pinger.SetPrivileged(p.cfg.Privileged)

	err = pinger.RunWithContext(ctx)
	if err != nil && !p.cfg.Privileged {
		// 非特权模式失败时尝试特权模式（需要 root 或 CAP_NET_RAW）
		pinger.SetPrivileged(true)
		err = pinger.RunWithContext(ctx)
	}
	if err != nil {
		result.Detail = fmt.Sprintf("ping failed: %v", err)
		return result
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		result.Detail = fmt.Sprintf("all %d ping attempts failed (timeout: %s)", p.cfg.Count, p.cfg.Timeout)
		return result
	}

	result.Alive = true
	result.RTT = stats.AvgRtt
	result.Detail = fmt.Sprintf("%d/%d packets, %dms avg, %d%% loss",
		stats.PacketsRecv, stats.PacketsSent, stats.AvgRtt.Milliseconds(), int(stats.PacketLoss))
	return result
}

// dial 以 TCP 建连判断可达，适用于禁止 ICMP 的网络
func (p *Prober) dial(ctx context.Context, address string) ProbeResult {
	result := ProbeResult{Address: address}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	var d net.Dialer
	startTime := time.Now()
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(p.cfg.Port)))
	result.RTT = time.Since(startTime)
	if err != nil {
		result.Detail = fmt.Sprintf("connection failed: %v", err)
		return result
	}
	defer conn.Close()

	result.Alive = true
	result.Detail = fmt.Sprintf("TCP connected - %dms", result.RTT.Milliseconds())
	return result
}
