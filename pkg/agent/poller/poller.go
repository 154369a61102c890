package poller

import (
	"context"

	"github.com/dushixiang/quanterra/internal/metric"
	"github.com/dushixiang/quanterra/pkg/agent/collector"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const DefaultWorkers = 50

// Harvester 单台台站采集
type Harvester interface {
	Harvest(ctx context.Context, address string, names []metric.Name) (metric.Record, error)
}

// Outcome 一次批量采集的结果
type Outcome struct {
	Records  map[string]metric.Record // 采集成功的台站（记录可能为空）
	Failures map[string]error         // 采集失败的台站
}

// Attempted 本次尝试的台站数
func (o *Outcome) Attempted() int {
	return len(o.Records) + len(o.Failures)
}

// FailuresByKind 按失败类型统计
func (o *Outcome) FailuresByKind() map[collector.FetchErrorKind]int {
	counts := make(map[collector.FetchErrorKind]int)
	for _, err := range o.Failures {
		counts[collector.KindOf(err)]++
	}
	return counts
}

// Poller 台站批量采集器
type Poller struct {
	harvester Harvester
	workers   int
	logger    *zap.Logger
}

// New 创建批量采集器，workers 为并发上限
func New(harvester Harvester, workers int, logger *zap.Logger) *Poller {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Poller{
		harvester: harvester,
		workers:   workers,
		logger:    logger,
	}
}

type harvestResult struct {
	address string
	record  metric.Record
	err     error
}

// Poll 并发采集所有地址，每个地址只尝试一次
// 单台失败只记录日志，不影响其他台站
func (p *Poller) Poll(ctx context.Context, addresses []string, names []metric.Name) *Outcome {
	outcome := &Outcome{
		Records:  make(map[string]metric.Record),
		Failures: make(map[string]error),
	}

	workers := pool.NewWithResults[harvestResult]().WithMaxGoroutines(p.workers)
	seen := make(map[string]bool, len(addresses))
	for _, address := range addresses {
		if seen[address] {
			continue
		}
		seen[address] = true

		address := address
		workers.Go(func() harvestResult {
			record, err := p.harvester.Harvest(ctx, address, names)
			return harvestResult{address: address, record: record, err: err}
		})
	}

	// 汇总只在当前 goroutine 中进行
	for _, r := range workers.Wait() {
		if r.err != nil {
			p.logger.Warn("台站采集失败",
				zap.String("address", r.address),
				zap.String("kind", collector.KindOf(r.err).String()),
				zap.Error(r.err))
			outcome.Failures[r.address] = r.err
			continue
		}
		p.logger.Debug("台站采集成功",
			zap.String("address", r.address),
			zap.Int("metrics", r.record.Len()))
		outcome.Records[r.address] = r.record
	}

	return outcome
}

// PollAll 并发采集，只返回成功的台站
func (p *Poller) PollAll(ctx context.Context, addresses []string, names []metric.Name) map[string]metric.Record {
	return p.Poll(ctx, addresses, names).Records
}
