package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/dushixiang/quanterra/internal/metric"
	"go.uber.org/zap"
)

// Sink 监控端客户端
type Sink interface {
	Send(ctx context.Context, samples []metric.Sample) (int, error)
}

// SinkDispatchError 监控端发送失败，本轮不重试
type SinkDispatchError struct {
	Samples int
	Err     error
}

func (e *SinkDispatchError) Error() string {
	return fmt.Sprintf("dispatch %d samples: %v", e.Samples, e.Err)
}

func (e *SinkDispatchError) Unwrap() error {
	return e.Err
}

// BuildBatch 将各台站记录展开为指标列表
// 按标识排序，同一台站内按指标固定顺序，缺失的指标不会出现
func BuildBatch(records map[string]metric.Record) []metric.Sample {
	identities := make([]string, 0, len(records))
	for identity := range records {
		identities = append(identities, identity)
	}
	sort.Strings(identities)

	var batch []metric.Sample
	for _, identity := range identities {
		batch = append(batch, records[identity].Samples(identity)...)
	}
	return batch
}

// Dispatcher 每轮采集向监控端发送一次
type Dispatcher struct {
	sink   Sink
	logger *zap.Logger
}

// NewDispatcher 创建发送器
func NewDispatcher(sink Sink, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sink:   sink,
		logger: logger,
	}
}

// Dispatch 构建并发送本轮数据，空批次直接返回
// 返回发送条数与监控端确认条数
func (d *Dispatcher) Dispatch(ctx context.Context, records map[string]metric.Record) (int, int, error) {
	batch := BuildBatch(records)
	if len(batch) == 0 {
		d.logger.Debug("没有需要发送的指标")
		return 0, 0, nil
	}

	acked, err := d.sink.Send(ctx, batch)
	if err != nil {
		return len(batch), acked, &SinkDispatchError{Samples: len(batch), Err: err}
	}

	d.logger.Info("指标发送完成",
		zap.Int("stations", len(records)),
		zap.Int("samples", len(batch)),
		zap.Int("acknowledged", acked))
	return len(batch), acked, nil
}
