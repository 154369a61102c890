package zbxclient

import (
	"context"
	"time"

	"github.com/dushixiang/quanterra/internal/protocol"
	"go.uber.org/zap"
)

// Inventory 通过 Zabbix 模板查询台站清单
type Inventory struct {
	cfg    Config
	logger *zap.Logger
}

// NewInventory 创建台站清单查询
func NewInventory(cfg Config, logger *zap.Logger) *Inventory {
	return &Inventory{
		cfg:    cfg,
		logger: logger,
	}
}

// Resolve 返回挂载在模板 group 下的台站 (地址, 标识)
// 每台主机取主接口地址，重复地址保留第一个出现的主机
func (i *Inventory) Resolve(ctx context.Context, group string) ([]protocol.Device, error) {
	client := NewClient(i.cfg, i.logger)
	if err := client.Login(ctx); err != nil {
		return nil, err
	}
	defer func() {
		// 会话注销不受本轮 ctx 取消影响
		logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Logout(logoutCtx); err != nil {
			i.logger.Warn("Zabbix 注销失败", zap.Error(err))
		}
	}()

	templateID, err := client.TemplateID(ctx, group)
	if err != nil {
		return nil, err
	}

	hosts, err := client.HostsByTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]string, len(hosts))
	devices := make([]protocol.Device, 0, len(hosts))
	for _, host := range hosts {
		ip := host.PrimaryIP()
		if ip == "" {
			i.logger.Debug("主机没有可用接口，跳过", zap.String("host", host.Host))
			continue
		}
		if owner, ok := seen[ip]; ok {
			i.logger.Warn("地址重复，保留先出现的主机",
				zap.String("address", ip),
				zap.String("kept", owner),
				zap.String("skipped", host.Host))
			continue
		}
		seen[ip] = host.Host
		devices = append(devices, protocol.Device{Address: ip, Identity: host.Host})
	}

	i.logger.Info("台站清单查询完成",
		zap.String("template", group),
		zap.Int("hosts", len(hosts)),
		zap.Int("devices", len(devices)))
	return devices, nil
}
