// AutoShift 自动排班服务
// 主程序入口

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paiban/autoshift/internal/config"
	"github.com/paiban/autoshift/pkg/logger"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// rootOptions 全局参数
type rootOptions struct {
	ConfigPath string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "autoshift",
		Short: "自动排班服务",
		Long: `AutoShift 根据团队历史排班、休息规则与班次配额生成排班方案，
以异步任务方式运行并推送进度，可选择自动写回数据库。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "配置文件路径（默认仅使用默认值与环境变量）")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "打印版本信息",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "AutoShift %s\nBuild: %s (%s)\n", Version, BuildTime, GitCommit)
		},
	}
}

// loadConfig 加载配置并初始化日志
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if cfg.App.Version == "dev" {
		cfg.App.Version = Version
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logCfg.Output = cfg.Log.Output
	if logCfg.Output != "stdout" && logCfg.Output != "stderr" {
		logCfg.FilePath = logCfg.Output
		logCfg.Output = "file"
	}
	logger.Init(logCfg)
	return cfg, nil
}
