// Package config 提供配置管理
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/logger"
)

// Config 应用配置
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      logger.Config  `mapstructure:"log"`
	Solver   SolverConfig   `mapstructure:"solver"`
	Scenario ScenarioConfig `mapstructure:"scenario"`
	Geocoder GeocoderConfig `mapstructure:"geocoder"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	API      APIConfig      `mapstructure:"api"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port int    `mapstructure:"port"`
}

// SolverConfig 求解配置
type SolverConfig struct {
	Backend       string        `mapstructure:"backend"`
	TimeLimit     time.Duration `mapstructure:"time_limit"`
	MaxNodes      int           `mapstructure:"max_nodes"`
	AcceptTimeout bool          `mapstructure:"accept_timeout"`
	Distance      string        `mapstructure:"distance"` // order 或 geo
}

// ScenarioConfig 场景配置，时限单位为分钟
type ScenarioConfig struct {
	Workers          int     `mapstructure:"workers"`
	ExpressDeadline  float64 `mapstructure:"express_deadline"`
	PriorityDeadline float64 `mapstructure:"priority_deadline"`
	NormalDeadline   float64 `mapstructure:"normal_deadline"` // 0 表示不限
	SweepFrom        int     `mapstructure:"sweep_from"`
	SweepTo          int     `mapstructure:"sweep_to"`
	SweepMaxPoints   int     `mapstructure:"sweep_max_points"`
	Reduced          bool    `mapstructure:"reduced"`
}

// GeocoderConfig 地理编码配置
type GeocoderConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	City           string        `mapstructure:"city"`
	UserAgent      string        `mapstructure:"user_agent"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PenaltyMinutes float64       `mapstructure:"penalty_minutes"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr 返回Redis地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
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

// APIConfig API配置
type APIConfig struct {
	RateLimit   float64       `mapstructure:"rate_limit"` // 每秒请求数
	Burst       int           `mapstructure:"burst"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "courierplan")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 7012)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.time_format", time.RFC3339)

	v.SetDefault("solver.backend", "flow")
	v.SetDefault("solver.time_limit", 300*time.Second)
	v.SetDefault("solver.max_nodes", 0)
	v.SetDefault("solver.accept_timeout", true)
	v.SetDefault("solver.distance", "order")

	v.SetDefault("scenario.workers", 4)
	v.SetDefault("scenario.express_deadline", 30.0)
	v.SetDefault("scenario.priority_deadline", 45.0)
	v.SetDefault("scenario.normal_deadline", 0.0)
	v.SetDefault("scenario.sweep_from", 1)
	v.SetDefault("scenario.sweep_to", 10)
	v.SetDefault("scenario.sweep_max_points", 50)
	v.SetDefault("scenario.reduced", true)

	v.SetDefault("geocoder.enabled", false)
	v.SetDefault("geocoder.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoder.city", "Juiz de Fora")
	v.SetDefault("geocoder.user_agent", "courierplan/1.0")
	v.SetDefault("geocoder.rate_per_second", 1.0)
	v.SetDefault("geocoder.timeout", 10*time.Second)
	v.SetDefault("geocoder.penalty_minutes", 9999.0)
	v.SetDefault("geocoder.cache_ttl", 30*24*time.Hour)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "courierplan")
	v.SetDefault("database.user", "courierplan")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("api.rate_limit", 50.0)
	v.SetDefault("api.burst", 100)
	v.SetDefault("api.timeout", 60*time.Second)
	v.SetDefault("api.cors_origins", []string{"*"})

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load 加载配置：.env、默认值、配置文件、环境变量依次覆盖
func Load(path string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("COURIERPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "读取配置文件失败").WithField("path", path)
		}
	} else {
		v.SetConfigName("courierplan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "读取配置文件失败")
			}
		}
	}

	cfg := &Config{}
	hook := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "解析配置失败")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs apperrors.ValidationErrors

	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs.Add("app.port", "端口超出范围")
	}
	switch c.Solver.Backend {
	case "flow", "ip":
	default:
		errs.Add("solver.backend", fmt.Sprintf("未知求解器 %q", c.Solver.Backend))
	}
	if c.Solver.TimeLimit <= 0 {
		errs.Add("solver.time_limit", "求解时限必须为正")
	}
	if c.Solver.MaxNodes < 0 {
		errs.Add("solver.max_nodes", "节点上限不能为负")
	}
	switch c.Solver.Distance {
	case "order", "geo":
	default:
		errs.Add("solver.distance", fmt.Sprintf("未知距离来源 %q", c.Solver.Distance))
	}
	if c.Solver.Distance == "geo" && !c.Geocoder.Enabled {
		errs.Add("geocoder.enabled", "坐标距离需要启用地理编码")
	}
	if c.Scenario.Workers <= 0 {
		errs.Add("scenario.workers", "并发数必须为正")
	}
	if c.Scenario.ExpressDeadline < 0 || c.Scenario.PriorityDeadline < 0 || c.Scenario.NormalDeadline < 0 {
		errs.Add("scenario", "时限不能为负")
	}
	if c.Scenario.SweepFrom < 1 || c.Scenario.SweepTo < c.Scenario.SweepFrom {
		errs.Add("scenario.sweep", fmt.Sprintf("无效运力区间 [%d, %d]", c.Scenario.SweepFrom, c.Scenario.SweepTo))
	}
	if c.Scenario.SweepMaxPoints <= 0 {
		errs.Add("scenario.sweep_max_points", "扫描点数上限必须为正")
	} else if c.Scenario.SweepFrom >= 1 && c.Scenario.SweepTo-c.Scenario.SweepFrom >= c.Scenario.SweepMaxPoints {
		errs.Add("scenario.sweep", fmt.Sprintf("默认运力区间超过 %d 个点", c.Scenario.SweepMaxPoints))
	}
	if c.Geocoder.Enabled {
		if c.Geocoder.RatePerSecond <= 0 {
			errs.Add("geocoder.rate_per_second", "请求速率必须为正")
		}
		if c.Geocoder.UserAgent == "" {
			errs.Add("geocoder.user_agent", "必须设置 User-Agent")
		}
	}
	if c.API.RateLimit <= 0 || c.API.Burst <= 0 {
		errs.Add("api.rate_limit", "限流参数必须为正")
	}

	if errs.HasErrors() {
		return errs.ToAppError().WithDetails("配置校验失败")
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
