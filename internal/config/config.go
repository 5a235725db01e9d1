// Package config 提供配置管理
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 AUTOSHIFT_DATABASE_HOST
const EnvPrefix = "AUTOSHIFT"

// Config 应用配置
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	API       APIConfig       `mapstructure:"api"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Port    int    `mapstructure:"port"`
	Version string `mapstructure:"version"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json/console
	Output string `mapstructure:"output"` // stdout/stderr/文件路径
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN 返回数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Addr 返回Redis地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// APIConfig API配置
type APIConfig struct {
	RateLimit float64       `mapstructure:"rate_limit"` // 每秒请求数，0 表示不限
	Burst     int           `mapstructure:"burst"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CORS      CORSConfig    `mapstructure:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Origins []string `mapstructure:"origins"`
}

// SchedulerConfig 排班引擎配置
type SchedulerConfig struct {
	Workers          int           `mapstructure:"workers"`
	QueueSize        int           `mapstructure:"queue_size"`
	SearchWorkers    int           `mapstructure:"search_workers"`
	BatchSize        int           `mapstructure:"batch_size"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"` // 不超过 MaxProgressInterval
	MaxBudget        time.Duration `mapstructure:"max_budget"`        // 0 表示按参数的思考时长
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	Retention        time.Duration `mapstructure:"retention"`         // 已结束任务在内存中的保留时长
	MaxFinishedJobs  int           `mapstructure:"max_finished_jobs"` // 内存中已结束任务的数量上限
}

// MaxProgressInterval 优化阶段进度推送间隔的上限
const MaxProgressInterval = 200 * time.Millisecond

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SetDefaults 设置默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "autoshift")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 7012)
	v.SetDefault("app.version", "dev")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "autoshift")
	v.SetDefault("database.user", "autoshift")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.prefix", "autoshift")
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("api.rate_limit", 50.0)
	v.SetDefault("api.burst", 100)
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.cors.enabled", true)
	v.SetDefault("api.cors.origins", []string{"*"})

	v.SetDefault("scheduler.workers", 2)
	v.SetDefault("scheduler.queue_size", 16)
	v.SetDefault("scheduler.search_workers", 4)
	v.SetDefault("scheduler.batch_size", 8)
	v.SetDefault("scheduler.progress_interval", MaxProgressInterval)
	v.SetDefault("scheduler.max_budget", time.Duration(0))
	v.SetDefault("scheduler.shutdown_timeout", 30*time.Second)
	v.SetDefault("scheduler.retention", time.Hour)
	v.SetDefault("scheduler.max_finished_jobs", 200)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// NewViper 创建绑定默认值与环境变量的 viper 实例
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load 加载配置：默认值 < 配置文件 < 环境变量。path 为空时不读文件。
func Load(path string) (*Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
		}
	}
	return LoadWithViper(v)
}

// LoadWithViper 从给定的 viper 实例解析配置
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("端口无效: %d", c.App.Port)
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers 必须大于 0")
	}
	if c.Scheduler.QueueSize <= 0 {
		return fmt.Errorf("scheduler.queue_size 必须大于 0")
	}
	if c.Scheduler.ProgressInterval <= 0 || c.Scheduler.ProgressInterval > MaxProgressInterval {
		return fmt.Errorf("scheduler.progress_interval 必须在 (0, %v] 之间: %v", MaxProgressInterval, c.Scheduler.ProgressInterval)
	}
	if c.Scheduler.Retention < 0 || c.Scheduler.MaxFinishedJobs < 0 {
		return fmt.Errorf("scheduler.retention 与 scheduler.max_finished_jobs 不能为负数")
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit 不能为负数")
	}
	return nil
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
