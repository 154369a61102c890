package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dushixiang/quanterra/internal/app"
	"github.com/dushixiang/quanterra/internal/config"
	"github.com/dushixiang/quanterra/pkg/agent"
	"github.com/kardianos/service"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const serviceName = "quanterra-collector"

// NewLogger 根据配置创建日志器
func NewLogger(cfg *config.Config) *zap.Logger {
	return agent.NewLogger(&agent.LogConfig{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
}

// program 实现 service.Interface
type program struct {
	fs     afero.Fs
	cfg    *config.Config
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// startCollector 在后台启动持续采集（抽取通用逻辑）
func startCollector(ctx context.Context, fs afero.Fs, cfg *config.Config, logger *zap.Logger) (<-chan struct{}, error) {
	a, err := app.New(fs, cfg, logger)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.Serve(ctx); err != nil {
			logger.Error("采集器运行出错", zap.Error(err))
		}
	}()
	return done, nil
}

// Start 启动服务
func (p *program) Start(s service.Service) error {
	p.logger = NewLogger(p.cfg)
	p.logger.Info("Quanterra 采集服务启动中...", zap.String("version", GetVersion()))

	ctx, cancel := context.WithCancel(context.Background())
	done, err := startCollector(ctx, p.fs, p.cfg, p.logger)
	if err != nil {
		cancel()
		return err
	}
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		<-done
		close(p.done)
	}()
	return nil
}

// Stop 停止服务
func (p *program) Stop(s service.Service) error {
	p.logger.Info("Quanterra 采集服务停止中...")

	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		<-p.done
	}

	p.logger.Info("Quanterra 采集服务已停止")
	_ = p.logger.Sync()
	return nil
}

// ServiceManager 服务管理器
type ServiceManager struct {
	fs      afero.Fs
	cfg     *config.Config
	service service.Service
}

// NewServiceManager 创建服务管理器
func NewServiceManager(fs afero.Fs, cfg *config.Config) (*ServiceManager, error) {
	// 获取可执行文件路径
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("获取可执行文件路径失败: %w", err)
	}

	// 配置服务
	svcConfig := &service.Config{
		Name:        serviceName,
		DisplayName: "Quanterra Collector",
		Description: "Quanterra 台站状态采集 - 读取台站状态页并发送到 Zabbix",
		Arguments:   []string{"service", "run", "--config", cfg.Path},
		Executable:  execPath,
		Option: service.KeyValue{
			// Linux systemd 配置
			"Restart":            "always",  // 总是重启
			"RestartSec":         "10",      // 重启前等待 10 秒
			"StartLimitInterval": "0",       // 无限制重启次数
			"KillMode":           "process", // 只杀主进程

			// Windows 配置
			"OnFailure":    "restart", // 失败时重启
			"ResetPeriod":  86400,     // 重置失败计数周期 (秒)
			"RestartDelay": 10000,     // 重启延迟 (毫秒)

			// 其他 Unix 系统 (upstart/launchd)
			"KeepAlive": true, // 保持运行
			"RunAtLoad": true, // 启动时运行
		},
	}

	prg := &program{
		fs:  fs,
		cfg: cfg,
	}

	s, err := service.New(prg, svcConfig)
	if err != nil {
		return nil, fmt.Errorf("创建服务失败: %w", err)
	}

	return &ServiceManager{
		fs:      fs,
		cfg:     cfg,
		service: s,
	}, nil
}

// Install 安装服务
func (m *ServiceManager) Install() error {
	return m.service.Install()
}

// Uninstall 卸载服务
func (m *ServiceManager) Uninstall() error {
	// 先停止服务
	_ = m.service.Stop()

	return m.service.Uninstall()
}

// Start 启动服务
func (m *ServiceManager) Start() error {
	return m.service.Start()
}

// Stop 停止服务
func (m *ServiceManager) Stop() error {
	return m.service.Stop()
}

// Restart 重启服务
func (m *ServiceManager) Restart() error {
	return m.service.Restart()
}

// Status 查看服务状态
func (m *ServiceManager) Status() (string, error) {
	status, err := m.service.Status()
	if err != nil {
		return "", err
	}
	return StatusText(status), nil
}

// StatusText 服务状态描述
func StatusText(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "运行中 (Running)"
	case service.StatusStopped:
		return "已停止 (Stopped)"
	case service.StatusUnknown:
		return "未知 (Unknown)"
	default:
		return fmt.Sprintf("状态: %d", status)
	}
}

// Run 运行服务（用于 service run 命令）
func (m *ServiceManager) Run() error {
	if !service.Interactive() {
		// 在服务管理器控制下运行
		return m.service.Run()
	}

	// 交互模式（前台运行）
	logger := NewLogger(m.cfg)
	defer logger.Sync()

	logger.Info("配置加载成功",
		zap.String("config", m.cfg.Path),
		zap.String("zabbix", m.cfg.Zabbix.APIURL),
		zap.String("schedule", m.cfg.GetScheduleSpec()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done, err := startCollector(ctx, m.fs, m.cfg, logger)
	if err != nil {
		return err
	}

	// 等待中断信号
	<-ctx.Done()
	logger.Info("收到中断信号，正在关闭...")
	<-done
	logger.Info("采集器已停止")
	return nil
}
