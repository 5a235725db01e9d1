package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/paiban/autoshift/internal/config"
	"github.com/paiban/autoshift/internal/database"
	"github.com/paiban/autoshift/internal/eventbus"
	"github.com/paiban/autoshift/internal/handler"
	"github.com/paiban/autoshift/internal/jobs"
	"github.com/paiban/autoshift/internal/metrics"
	"github.com/paiban/autoshift/internal/middleware"
	"github.com/paiban/autoshift/internal/repository"
	"github.com/paiban/autoshift/pkg/logger"
	"github.com/paiban/autoshift/pkg/scheduler/engine"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("env", cfg.App.Env).
		Msg("AutoShift 自动排班服务启动中")

	// 排班数据、权限与写入都依赖数据库
	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	store := repository.NewStore(db)
	jobRepo := repository.NewJobRepository(db)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.Default()
	}

	managerOpts := []jobs.Option{jobs.WithSink(jobRepo), jobs.WithArchive(jobRepo), jobs.WithMetrics(m)}

	rdb, err := openRedis(cmd.Context(), &cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		mirror := eventbus.NewRedisMirror(rdb, cfg.Redis.Prefix, cfg.Redis.TTL)
		managerOpts = append(managerOpts,
			jobs.WithSink(mirror),
			// 本实例与数据库都查不到时再看其他实例的镜像
			jobs.WithArchive(mirror),
			// 订阅其他实例执行的任务时由 PUBLISH 唤醒
			jobs.WithNotifier(mirror),
		)
	}

	eng := engine.New(store, store, store, engine.Config{
		Workers:          cfg.Scheduler.SearchWorkers,
		BatchSize:        cfg.Scheduler.BatchSize,
		ProgressInterval: cfg.Scheduler.ProgressInterval,
		MaxBudget:        cfg.Scheduler.MaxBudget,
	})
	manager := jobs.NewManager(eng, store, jobs.Config{
		Workers:         cfg.Scheduler.Workers,
		QueueSize:       cfg.Scheduler.QueueSize,
		ShutdownTimeout: cfg.Scheduler.ShutdownTimeout,
		Retention:       cfg.Scheduler.Retention,
		MaxFinished:     cfg.Scheduler.MaxFinishedJobs,
	}, managerOpts...)

	mux := http.NewServeMux()
	registerSystemRoutes(mux, cfg, db, m)
	handler.NewAutoScheduleHandler(manager).Register(mux)

	chain := []middleware.Middleware{
		middleware.Recovery,
		middleware.RequestID,
		middleware.User,
		middleware.Logging(m),
		middleware.NewRateLimiter(cfg.API.RateLimit, cfg.API.Burst).Handler,
	}
	if cfg.API.CORS.Enabled {
		chain = append(chain, middleware.CORS(cfg.API.CORS.Origins))
	}
	chain = append(chain, middleware.SecurityHeaders)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.App.Port),
		Handler:     middleware.Chain(mux, chain...),
		ReadTimeout: cfg.API.Timeout,
		// 进度推送为长连接，写超时由 websocket 自行控制
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Int("port", cfg.App.Port).
			Int("workers", cfg.Scheduler.Workers).
			Int("search_workers", cfg.Scheduler.SearchWorkers).
			Bool("redis", rdb != nil).
			Msg("服务器启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		manager.Shutdown()
		return fmt.Errorf("服务器启动失败: %w", err)
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("正在关闭服务器...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
	}

	// 等待运行中的任务结束或超时取消
	manager.Shutdown()

	logger.Info().Msg("服务器已关闭")
	return nil
}

// openRedis 未启用时返回 nil
func openRedis(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis 连接测试失败: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr()).Int("db", cfg.DB).Msg("Redis 连接成功")
	return client, nil
}

// registerSystemRoutes 健康检查、版本与监控端点
func registerSystemRoutes(mux *http.ServeMux, cfg *config.Config, db *database.DB, m *metrics.Metrics) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if err := db.Health(r.Context()); err != nil {
			logger.WithContext(r.Context()).Warn().Err(err).Msg("数据库健康检查失败")
			status, code = "degraded", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]string{"status": status, "service": cfg.App.Name})
	})

	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    cfg.App.Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	if m != nil {
		mux.Handle("GET "+cfg.Metrics.Path, m.Handler())
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
