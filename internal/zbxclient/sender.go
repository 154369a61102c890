package zbxclient

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/dushixiang/quanterra/internal/metric"
	"github.com/dushixiang/quanterra/internal/protocol"
	"go.uber.org/zap"
)

const (
	headerMagic   = "ZBXD"
	flagProtocol  = 0x01
	headerLength  = 13
	maxReplyBytes = 16 << 20

	DefaultSenderPort = 10051
	DefaultMaxBatch   = 250
)

var infoPattern = regexp.MustCompile(`processed:\s*(\d+);\s*failed:\s*(\d+);\s*total:\s*(\d+);\s*seconds spent:\s*([0-9.]+)`)

// SenderConfig trapper 发送配置
type SenderConfig struct {
	Server     string
	Port       int
	Timeout    time.Duration
	HostSuffix string // 追加到台站标识后作为 Zabbix 主机名
	MaxBatch   int
}

// SendResult 服务端确认信息
type SendResult struct {
	Processed int
	Failed    int
	Total     int
	Spent     time.Duration
}

// Sender Zabbix trapper 客户端
type Sender struct {
	cfg    SenderConfig
	logger *zap.Logger
	dialer *net.Dialer
	now    func() time.Time
}

// NewSender 创建 trapper 客户端
func NewSender(cfg SenderConfig, logger *zap.Logger) *Sender {
	if cfg.Port <= 0 {
		cfg.Port = DefaultSenderPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	return &Sender{
		cfg:    cfg,
		logger: logger,
		dialer: &net.Dialer{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

// Address trapper 服务地址
func (s *Sender) Address() string {
	return net.JoinHostPort(s.cfg.Server, strconv.Itoa(s.cfg.Port))
}

// Send 发送一批指标，返回服务端确认处理的条数
func (s *Sender) Send(ctx context.Context, samples []metric.Sample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	clock := s.now().Unix()
	items := make([]protocol.SenderItem, 0, len(samples))
	for _, sample := range samples {
		items = append(items, protocol.SenderItem{
			Host:  sample.Identity + s.cfg.HostSuffix,
			Key:   string(sample.Name),
			Value: sample.Value,
			Clock: clock,
		})
	}

	processed := 0
	for start := 0; start < len(items); start += s.cfg.MaxBatch {
		end := min(start+s.cfg.MaxBatch, len(items))
		result, err := s.sendChunk(ctx, items[start:end], clock)
		if err != nil {
			return processed, err
		}
		if result.Failed > 0 {
			s.logger.Warn("Zabbix 拒绝了部分数据",
				zap.Int("processed", result.Processed),
				zap.Int("failed", result.Failed),
				zap.Int("total", result.Total))
		}
		processed += result.Processed
	}
	return processed, nil
}

func (s *Sender) sendChunk(ctx context.Context, items []protocol.SenderItem, clock int64) (*SendResult, error) {
	payload, err := json.Marshal(protocol.SenderRequest{
		Request: "sender data",
		Data:    items,
		Clock:   clock,
	})
	if err != nil {
		return nil, fmt.Errorf("encode sender data: %w", err)
	}

	conn, err := s.dialer.DialContext(ctx, "tcp", s.Address())
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", s.Address(), err)
	}
	defer conn.Close()

	deadline := time.Now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if _, err := conn.Write(EncodePacket(payload)); err != nil {
		return nil, fmt.Errorf("write sender data: %w", err)
	}

	reply, err := DecodePacket(conn)
	if err != nil {
		return nil, fmt.Errorf("read sender response: %w", err)
	}

	var resp protocol.SenderResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		return nil, fmt.Errorf("decode sender response: %w", err)
	}
	if resp.Response != "success" {
		return nil, fmt.Errorf("zabbix trapper responded %q: %s", resp.Response, resp.Info)
	}

	result, err := ParseInfo(resp.Info)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EncodePacket 封装 ZBXD 协议头
func EncodePacket(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(headerLength + len(payload))
	buf.WriteString(headerMagic)
	buf.WriteByte(flagProtocol)
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(payload)))
	buf.Write(payload)
	return buf.Bytes()
}

// DecodePacket 读取一个 ZBXD 数据包并返回其内容
func DecodePacket(r io.Reader) ([]byte, error) {
	header := make([]byte, headerLength)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if string(header[:4]) != headerMagic {
		return nil, fmt.Errorf("invalid packet header %q", header[:4])
	}
	if header[4] != flagProtocol {
		return nil, fmt.Errorf("unsupported packet flags 0x%02x", header[4])
	}

	size := binary.LittleEndian.Uint64(header[5:])
	if size > maxReplyBytes {
		return nil, fmt.Errorf("packet too large: %d bytes", size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// ParseInfo 解析 trapper 响应中的 info 字段
func ParseInfo(info string) (*SendResult, error) {
	m := infoPattern.FindStringSubmatch(info)
	if m == nil {
		return nil, fmt.Errorf("unexpected sender info: %q", info)
	}

	processed, _ := strconv.Atoi(m[1])
	failed, _ := strconv.Atoi(m[2])
	total, _ := strconv.Atoi(m[3])
	seconds, _ := strconv.ParseFloat(m[4], 64)
	return &SendResult{
		Processed: processed,
		Failed:    failed,
		Total:     total,
		Spent:     time.Duration(seconds * float64(time.Second)),
	}, nil
}
