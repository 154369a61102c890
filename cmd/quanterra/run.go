package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/dushixiang/quanterra/internal/app"
	"github.com/dushixiang/quanterra/pkg/agent/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	var printResult bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "执行一轮采集后退出",
		Long:  "执行一轮采集后退出，台站清单不可用或本轮失败时返回非零退出码",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger := service.NewLogger(cfg)
			defer logger.Sync()

			a, err := app.New(fs, cfg, logger)
			if err != nil {
				logger.Error("初始化采集器失败", zap.Error(err))
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := a.RunOnce(ctx)
			if printResult && result != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				_ = enc.Encode(result)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&printResult, "print", false, "以 JSON 输出本轮采集汇总")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "按调度周期持续采集（前台运行）",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger := service.NewLogger(cfg)
			defer logger.Sync()

			a, err := app.New(fs, cfg, logger)
			if err != nil {
				logger.Error("初始化采集器失败", zap.Error(err))
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("采集器已启动",
				zap.String("version", service.GetVersion()),
				zap.String("schedule", cfg.GetScheduleSpec()))
			return a.Serve(ctx)
		},
	}
}
