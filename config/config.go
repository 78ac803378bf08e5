// Package config 读取 YAML 配置文件，并允许以 SNAPTRAIL_ 前缀的环境变量覆盖
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"snaptrail/audit"
	"snaptrail/errors"
	"snaptrail/redact"
)

// EnvPrefix 环境变量前缀，例如 SNAPTRAIL_STORE_DSN 覆盖 store.dsn
const EnvPrefix = "SNAPTRAIL"

// 派发模式
const (
	DispatchDetached = "detached"
	DispatchMemory   = "memory"
	DispatchRedis    = "redis"
	DispatchNATS     = "nats"
)

// Config 全部配置
type Config struct {
	Audit    AuditConfig    `mapstructure:"audit"`
	Store    StoreConfig    `mapstructure:"store"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Tasks    TasksConfig    `mapstructure:"tasks"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Log      LogConfig      `mapstructure:"log"`
}

type AuditConfig struct {
	OmitFields    []string `mapstructure:"omit_fields"`
	SchemaVersion string   `mapstructure:"schema_version"`
	RecordType    string   `mapstructure:"record_type"`
	ListLimit     int      `mapstructure:"list_limit"`
	MaxListLimit  int      `mapstructure:"max_list_limit"`
	// PlanCacheSize 为 0 时不缓存展开计划
	PlanCacheSize int   `mapstructure:"plan_cache_size"`
	DatacenterID  int64 `mapstructure:"datacenter_id"`
	WorkerID      int64 `mapstructure:"worker_id"`
}

// StoreConfig driver 为 memory、sqlite 或 pgx
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type DispatchConfig struct {
	Mode           string        `mapstructure:"mode"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	QueueSize      int           `mapstructure:"queue_size"`
	Workers        int           `mapstructure:"workers"`
	Retry          RetryConfig   `mapstructure:"retry"`
	Redis          RedisConfig   `mapstructure:"redis"`
	NATS           NATSConfig    `mapstructure:"nats"`
}

type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	StreamPrefix string        `mapstructure:"stream_prefix"`
	Group        string        `mapstructure:"group"`
	MaxLen       int64         `mapstructure:"max_len"`
	ClaimMinIdle time.Duration `mapstructure:"claim_min_idle"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Stream        string        `mapstructure:"stream"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	DurablePrefix string        `mapstructure:"durable_prefix"`
	AckWait       time.Duration `mapstructure:"ack_wait"`
	MaxDeliver    int           `mapstructure:"max_deliver"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TasksConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type SchemaConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("audit.omit_fields", redact.DefaultOmitFields)
	v.SetDefault("audit.schema_version", audit.DefaultSchemaVersion)
	v.SetDefault("audit.record_type", audit.DefaultRecordType)
	v.SetDefault("audit.list_limit", audit.DefaultListLimit)
	v.SetDefault("audit.max_list_limit", audit.MaxListLimit)
	v.SetDefault("audit.plan_cache_size", 256)
	v.SetDefault("audit.datacenter_id", 1)
	v.SetDefault("audit.worker_id", 1)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "snaptrail.db")
	v.SetDefault("store.max_open_conns", 10)
	v.SetDefault("store.max_idle_conns", 5)
	v.SetDefault("store.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("dispatch.mode", DispatchDetached)
	v.SetDefault("dispatch.publish_timeout", 2*time.Second)
	v.SetDefault("dispatch.queue_size", 1024)
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.retry.max_attempts", 5)
	v.SetDefault("dispatch.retry.initial_delay", 100*time.Millisecond)
	v.SetDefault("dispatch.retry.max_delay", 5*time.Second)
	v.SetDefault("dispatch.redis.addr", "localhost:6379")
	v.SetDefault("dispatch.redis.username", "")
	v.SetDefault("dispatch.redis.password", "")
	v.SetDefault("dispatch.redis.db", 0)
	v.SetDefault("dispatch.redis.stream_prefix", "snaptrail:")
	v.SetDefault("dispatch.redis.group", "snaptrail")
	v.SetDefault("dispatch.redis.max_len", 100000)
	v.SetDefault("dispatch.redis.claim_min_idle", time.Minute)
	v.SetDefault("dispatch.nats.url", "nats://localhost:4222")
	v.SetDefault("dispatch.nats.stream", "SNAPTRAIL")
	v.SetDefault("dispatch.nats.subject_prefix", "snaptrail.")
	v.SetDefault("dispatch.nats.durable_prefix", "snaptrail-")
	v.SetDefault("dispatch.nats.ack_wait", 30*time.Second)
	v.SetDefault("dispatch.nats.max_deliver", 5)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{})
	v.SetDefault("http.mode", "release")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("tasks.enabled", true)
	v.SetDefault("tasks.poll_interval", time.Minute)

	v.SetDefault("schema.path", "schema.yaml")
	v.SetDefault("log.level", "info")
}

// Default 只含默认值的配置
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// 默认值总能解码
		panic(err)
	}
	return cfg
}

// Load 读取配置。path 为空时只使用默认值与环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "read config file").
				WithContext("path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查枚举值与取值范围
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "pgx", "postgres":
	default:
		return errors.Errorf(errors.ErrCodeValidation, "unsupported store.driver %q", c.Store.Driver)
	}
	switch c.Dispatch.Mode {
	case DispatchDetached, DispatchMemory, DispatchRedis, DispatchNATS:
	default:
		return errors.Errorf(errors.ErrCodeValidation, "unsupported dispatch.mode %q", c.Dispatch.Mode)
	}
	if c.Audit.ListLimit <= 0 || c.Audit.MaxListLimit < c.Audit.ListLimit {
		return errors.NewValidationError("audit.list_limit must be positive and not exceed audit.max_list_limit")
	}
	if c.Audit.PlanCacheSize < 0 {
		return errors.NewValidationError("audit.plan_cache_size cannot be negative")
	}
	if c.Tasks.PollInterval <= 0 {
		return errors.NewValidationError("tasks.poll_interval must be positive")
	}
	return nil
}
