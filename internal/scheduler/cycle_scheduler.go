package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dushixiang/quanterra/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CycleRunner 执行一轮采集
type CycleRunner interface {
	RunCycle(ctx context.Context) (*service.CycleResult, error)
}

// CycleScheduler 采集周期调度器
type CycleScheduler struct {
	mu      sync.RWMutex
	cron    *cron.Cron
	spec    string
	entryID cron.EntryID
	job     cron.Job
	runner  CycleRunner
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	manual  sync.WaitGroup // RunNow 触发的采集，不在 cron 的等待范围内

	lastResult *service.CycleResult
	lastErr    error
	lastRunAt  time.Time
}

// NewCycleScheduler 创建采集周期调度器
func NewCycleScheduler(runner CycleRunner, logger *zap.Logger) *CycleScheduler {
	cronLogger := &zapCronLogger{logger: logger.Named("cron")}
	s := &CycleScheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithLogger(cronLogger)), // 支持秒级调度
		runner: runner,
		logger: logger,
	}
	// 上一轮尚未结束时跳过本轮，首次执行与定时执行共用同一个 job
	s.job = cron.NewChain(cron.SkipIfStillRunning(cronLogger)).Then(cron.FuncJob(s.execute))
	return s
}

// Start 启动调度器，runNow 为 true 时立即执行一轮
func (s *CycleScheduler) Start(ctx context.Context, spec string, runNow bool) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	err := s.scheduleLocked(spec)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.logger.Info("启动采集调度器", zap.String("spec", spec))
	s.cron.Start()

	if runNow {
		s.RunNow()
	}
	return nil
}

// Stop 停止调度器，等待正在执行的采集结束
func (s *CycleScheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	// 停止 cron 调度器
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.manual.Wait()

	s.logger.Info("采集调度器已停止")
}

// RunNow 立即触发一轮采集，上一轮未结束时跳过
func (s *CycleScheduler) RunNow() {
	s.manual.Add(1)
	go func() {
		defer s.manual.Done()
		s.job.Run()
	}()
}

// UpdateSchedule 更新调度表达式，表达式非法时保留原调度
func (s *CycleScheduler) UpdateSchedule(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if spec == s.spec {
		return nil
	}
	return s.scheduleLocked(spec)
}

// scheduleLocked 添加新的 cron 任务后再删除旧任务（需要持有锁）
func (s *CycleScheduler) scheduleLocked(spec string) error {
	entryID, err := s.cron.AddJob(spec, s.job)
	if err != nil {
		return fmt.Errorf("添加 cron 任务失败: %w", err)
	}

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.logger.Info("更新采集调度", zap.String("from", s.spec), zap.String("to", spec))
	}
	s.entryID = entryID
	s.spec = spec
	return nil
}

// execute 执行一轮采集
func (s *CycleScheduler) execute() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	startedAt := time.Now()
	result, err := s.runner.RunCycle(ctx)

	s.mu.Lock()
	s.lastResult = result
	s.lastErr = err
	s.lastRunAt = startedAt
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("采集周期失败", zap.Error(err))
		return
	}
	s.logger.Debug("采集周期完成", zap.Duration("elapsed", time.Since(startedAt)))
}

// LastResult 最近一轮采集的结果
func (s *CycleScheduler) LastResult() (*service.CycleResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult, s.lastErr
}

// GetTaskStatus 获取任务状态
func (s *CycleScheduler) GetTaskStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := map[string]interface{}{
		"spec": s.spec,
	}

	// 从 cron entry 获取下次执行时间
	entry := s.cron.Entry(s.entryID)
	if entry.Valid() && !entry.Next.IsZero() {
		status["nextRunTime"] = entry.Next.Format(time.RFC3339)
	}
	if !s.lastRunAt.IsZero() {
		status["lastRunTime"] = s.lastRunAt.Format(time.RFC3339)
		if s.lastErr != nil {
			status["lastError"] = s.lastErr.Error()
		}
	}
	return status
}

// zapCronLogger 将 cron 日志输出到 zap
type zapCronLogger struct {
	logger *zap.Logger
}

func (l *zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l *zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
