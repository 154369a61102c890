package main

import (
	"fmt"
	"os"

	"github.com/dushixiang/quanterra/internal/config"
	"github.com/dushixiang/quanterra/pkg/agent/service"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "/etc/quanterra/config.yaml"

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quanterra",
		Short:         "Quanterra 台站状态采集器",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "配置文件路径")

	root.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newServiceCmd(),
		newVersionCmd(),
	)
	return root
}

func loadConfig() (afero.Fs, *config.Config, error) {
	fs := afero.NewOsFs()
	cfg, err := config.Load(fs, configPath)
	if err != nil {
		return nil, nil, err
	}
	return fs, cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "quanterra %s\n", service.GetVersion())
			if service.BuildTime != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "构建时间: %s\n", service.BuildTime)
			}
		},
	}
}
