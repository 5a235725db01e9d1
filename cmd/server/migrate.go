package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/paiban/autoshift/internal/database"
	"github.com/paiban/autoshift/pkg/logger"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "创建排班、台账与任务表",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			db, err := database.New(&cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			logger.Info().Str("database", cfg.Database.Name).Msg("数据表已就绪")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "迁移超时时间")
	return cmd
}
