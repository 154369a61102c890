package main

import (
	"fmt"

	"github.com/dushixiang/quanterra/pkg/agent/service"
	"github.com/spf13/cobra"
)

func newServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "管理系统服务",
	}

	actions := []struct {
		use   string
		short string
		done  string
		fn    func(*service.ServiceManager) error
	}{
		{"install", "安装系统服务", "服务已安装", (*service.ServiceManager).Install},
		{"uninstall", "卸载系统服务", "服务已卸载", (*service.ServiceManager).Uninstall},
		{"start", "启动服务", "服务已启动", (*service.ServiceManager).Start},
		{"stop", "停止服务", "服务已停止", (*service.ServiceManager).Stop},
		{"restart", "重启服务", "服务已重启", (*service.ServiceManager).Restart},
		{"run", "运行服务（由服务管理器调用）", "", (*service.ServiceManager).Run},
	}

	for _, action := range actions {
		cmd.AddCommand(&cobra.Command{
			Use:   action.use,
			Short: action.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				mgr, err := newServiceManager()
				if err != nil {
					return err
				}
				if err := action.fn(mgr); err != nil {
					return fmt.Errorf("%s失败: %w", action.short, err)
				}
				if action.done != "" {
					fmt.Fprintln(cmd.OutOrStdout(), action.done)
				}
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "查看服务状态",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newServiceManager()
			if err != nil {
				return err
			}
			status, err := mgr.Status()
			if err != nil {
				return fmt.Errorf("获取服务状态失败: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		},
	})
	return cmd
}

func newServiceManager() (*service.ServiceManager, error) {
	fs, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return service.NewServiceManager(fs, cfg)
}
