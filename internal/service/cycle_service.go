package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dushixiang/quanterra/internal/metric"
	"github.com/dushixiang/quanterra/internal/protocol"
	"github.com/dushixiang/quanterra/pkg/agent/poller"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInventoryUnavailable 台站清单查询失败
var ErrInventoryUnavailable = errors.New("inventory unavailable")

// Inventory 台站清单
type Inventory interface {
	Resolve(ctx context.Context, group string) ([]protocol.Device, error)
}

// Reachability 连通性预筛选
type Reachability interface {
	ProbeAll(ctx context.Context, addresses []string) []string
}

// FleetPoller 台站批量采集
type FleetPoller interface {
	Poll(ctx context.Context, addresses []string, names []metric.Name) *poller.Outcome
}

// StatsRecorder 采集统计
type StatsRecorder interface {
	ObserveCycle(result *CycleResult, err error)
}

// CycleResult 一轮采集的汇总
type CycleResult struct {
	ID             string         `json:"id"`
	StartedAt      time.Time      `json:"startedAt"`
	Duration       time.Duration  `json:"duration"`
	Registered     int            `json:"registered"`     // 清单中的台站数
	Reachable      int            `json:"reachable"`      // 通过连通性检测的台站数
	Harvested      int            `json:"harvested"`      // 采集成功数
	Failed         int            `json:"failed"`         // 采集失败数
	FailuresByKind map[string]int `json:"failuresByKind"` // 按失败类型统计
	Unmapped       int            `json:"unmapped"`       // 无法解析标识的地址数
	Stations       int            `json:"stations"`       // 解析出标识的台站数
	Samples        int            `json:"samples"`        // 发送的指标条数
	Acknowledged   int            `json:"acknowledged"`   // 监控端确认条数
}

// CycleConfig 采集参数
type CycleConfig struct {
	Group string        // 台站分组（Zabbix 模板名）
	Names []metric.Name // 需要采集的指标
}

// CycleService 采集周期：清单 -> 连通性 -> 采集 -> 标识解析 -> 发送
type CycleService struct {
	logger       *zap.Logger
	cfg          CycleConfig
	inventory    Inventory
	reachability Reachability
	poller       FleetPoller
	dispatcher   *Dispatcher
	stats        StatsRecorder
}

// NewCycleService 创建采集周期服务，reachability 与 stats 可以为 nil
func NewCycleService(logger *zap.Logger, cfg CycleConfig, inventory Inventory, reachability Reachability, poller FleetPoller, sink Sink, stats StatsRecorder) *CycleService {
	if len(cfg.Names) == 0 {
		cfg.Names = metric.AllNames
	}
	return &CycleService{
		logger:       logger,
		cfg:          cfg,
		inventory:    inventory,
		reachability: reachability,
		poller:       poller,
		dispatcher:   NewDispatcher(sink, logger),
		stats:        stats,
	}
}

// RunCycle 执行一轮采集，结果总是非 nil
// 单台台站失败不会返回错误；清单不可用、标识冲突、发送失败会结束本轮并返回错误
func (s *CycleService) RunCycle(ctx context.Context) (result *CycleResult, err error) {
	result = &CycleResult{
		ID:             uuid.NewString(),
		StartedAt:      time.Now(),
		FailuresByKind: make(map[string]int),
	}
	logger := s.logger.With(zap.String("cycleID", result.ID))
	logger.Info("采集周期开始", zap.String("group", s.cfg.Group))

	defer func() {
		result.Duration = time.Since(result.StartedAt)
		if s.stats != nil {
			s.stats.ObserveCycle(result, err)
		}
	}()

	devices, err := s.inventory.Resolve(ctx, s.cfg.Group)
	if err != nil {
		logger.Error("获取台站清单失败",
			zap.String("collaborator", "inventory"),
			zap.String("group", s.cfg.Group),
			zap.Error(err))
		return result, fmt.Errorf("%w: %v", ErrInventoryUnavailable, err)
	}
	result.Registered = len(devices)
	if len(devices) == 0 {
		logger.Warn("台站清单为空", zap.String("group", s.cfg.Group))
	}

	table, err := BuildIdentityTable(devices)
	if err != nil {
		logger.Error("台站标识对照表冲突",
			zap.String("collaborator", "inventory"),
			zap.Error(err))
		return result, err
	}

	addresses := make([]string, 0, len(devices))
	for _, d := range devices {
		addresses = append(addresses, d.Address)
	}
	if s.reachability != nil && len(addresses) > 0 {
		addresses = s.reachability.ProbeAll(ctx, addresses)
	}
	result.Reachable = len(addresses)

	outcome := s.poller.Poll(ctx, addresses, s.cfg.Names)
	result.Harvested = len(outcome.Records)
	result.Failed = len(outcome.Failures)
	for kind, n := range outcome.FailuresByKind() {
		result.FailuresByKind[kind.String()] = n
	}

	resolution, err := ResolveIdentities(outcome.Records, table)
	if err != nil {
		logger.Error("台站标识解析失败",
			zap.String("collaborator", "inventory"),
			zap.Error(err))
		return result, err
	}
	for _, address := range resolution.Unmapped {
		logger.Warn("地址没有对应的台站标识，已丢弃", zap.String("address", address))
	}
	result.Unmapped = len(resolution.Unmapped)
	result.Stations = len(resolution.Records)

	samples, acked, err := s.dispatcher.Dispatch(ctx, resolution.Records)
	result.Samples = samples
	result.Acknowledged = acked
	if err != nil {
		logger.Error("发送指标失败",
			zap.String("collaborator", "sink"),
			zap.Int("samples", samples),
			zap.Error(err))
		return result, err
	}

	logger.Info("采集周期完成",
		zap.Int("registered", result.Registered),
		zap.Int("reachable", result.Reachable),
		zap.Int("harvested", result.Harvested),
		zap.Int("failed", result.Failed),
		zap.Int("unmapped", result.Unmapped),
		zap.Int("samples", result.Samples),
		zap.Duration("duration", time.Since(result.StartedAt)))
	return result, nil
}
