package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dushixiang/quanterra/internal/config"
	"github.com/dushixiang/quanterra/internal/handler"
	"github.com/dushixiang/quanterra/internal/scheduler"
	"github.com/dushixiang/quanterra/internal/service"
	"github.com/dushixiang/quanterra/internal/stats"
	"github.com/dushixiang/quanterra/internal/zbxclient"
	"github.com/dushixiang/quanterra/pkg/agent/collector"
	"github.com/dushixiang/quanterra/pkg/agent/poller"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// App 组装采集器各组件
type App struct {
	fs     afero.Fs
	cfg    *config.Config
	logger *zap.Logger
	stats  *stats.Recorder
	cycle  *service.CycleService
}

// New 根据配置创建采集器
func New(fs afero.Fs, cfg *config.Config, logger *zap.Logger) (*App, error) {
	harvester, err := collector.NewStationCollector(collector.StationConfig{
		Port:         cfg.Station.Port,
		Path:         cfg.Station.Path,
		URLTemplate:  cfg.Station.URLTemplate,
		Timeout:      cfg.GetStationTimeout(),
		MaxBodyBytes: cfg.Station.MaxBodyBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("创建台站采集器失败: %w", err)
	}

	inventory := zbxclient.NewInventory(zbxclient.Config{
		URL:          cfg.Zabbix.APIURL,
		User:         cfg.Zabbix.User,
		Password:     cfg.Zabbix.Password,
		APIToken:     cfg.Zabbix.APIToken,
		Timeout:      cfg.GetRequestTimeout(),
		LoginRetries: cfg.Zabbix.LoginRetries,
	}, logger.Named("inventory"))

	sender := zbxclient.NewSender(zbxclient.SenderConfig{
		Server:     cfg.Zabbix.SenderServer,
		Port:       cfg.Zabbix.SenderPort,
		Timeout:    cfg.GetSenderTimeout(),
		HostSuffix: cfg.Zabbix.HostSuffix,
		MaxBatch:   cfg.Zabbix.MaxBatch,
	}, logger.Named("sender"))

	var reachability service.Reachability
	if cfg.ProbeEnabled() {
		reachability = collector.NewProber(collector.ProbeConfig{
			Mode:       cfg.Probe.Mode,
			Port:       cfg.Station.Port,
			Count:      cfg.Probe.Count,
			Timeout:    cfg.GetProbeTimeout(),
			Privileged: cfg.Probe.Privileged,
			Workers:    cfg.Probe.Workers,
		}, logger.Named("prober"))
	}

	recorder := stats.New()
	cycle := service.NewCycleService(
		logger.Named("cycle"),
		service.CycleConfig{
			Group: cfg.Zabbix.Template,
			Names: cfg.MetricNames(),
		},
		inventory,
		reachability,
		poller.New(harvester, cfg.Poller.Workers, logger.Named("poller")),
		sender,
		recorder,
	)

	return &App{
		fs:     fs,
		cfg:    cfg,
		logger: logger,
		stats:  recorder,
		cycle:  cycle,
	}, nil
}

// RunOnce 执行一轮采集
func (a *App) RunOnce(ctx context.Context) (*service.CycleResult, error) {
	return a.cycle.RunCycle(ctx)
}

// Serve 按调度周期持续采集，直到 ctx 结束
func (a *App) Serve(ctx context.Context) error {
	sched := scheduler.NewCycleScheduler(a.cycle, a.logger.Named("scheduler"))
	if err := sched.Start(ctx, a.cfg.GetScheduleSpec(), true); err != nil {
		return err
	}
	defer sched.Stop()

	if a.cfg.Path != "" {
		watcher := config.NewWatcher(a.fs, a.cfg.Path, func(cfg *config.Config) {
			// 仅调度周期支持热更新，其余配置需重启生效
			if err := sched.UpdateSchedule(cfg.GetScheduleSpec()); err != nil {
				a.logger.Error("更新采集调度失败", zap.Error(err))
			}
		}, a.logger.Named("config"))
		if err := watcher.Start(ctx); err != nil {
			a.logger.Warn("配置文件监听启动失败", zap.Error(err))
		}
	}

	errCh := make(chan error, 1)
	var server *http.Server
	if a.cfg.HTTP.Listen != "" {
		e := handler.NewRouter(handler.NewCycleHandler(a.logger.Named("http"), sched), a.stats.Handler())
		server = &http.Server{
			Addr:              a.cfg.HTTP.Listen,
			Handler:           e,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			a.logger.Info("HTTP 服务已启动", zap.String("listen", a.cfg.HTTP.Listen))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTP 服务异常退出: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("关闭 HTTP 服务失败", zap.Error(err))
		}
	}
	return serveErr
}

// Stats 自身运行指标
func (a *App) Stats() *stats.Recorder {
	return a.stats
}
