package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config 描述了 RaiderBot 在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Storage  StorageConfig  `yaml:"storage"`
	Queue    QueueConfig    `yaml:"queue"`
	Audit    AuditConfig    `yaml:"audit"`
	Auth     AuthConfig     `yaml:"auth"`
	Adapters AdaptersConfig `yaml:"adapters"`
	Plugins  PluginsConfig  `yaml:"plugins"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `yaml:"address"`
	MetricsAddress string `yaml:"metrics_address"`
}

// LoggingConfig 控制结构化日志与审计日志的输出。
type LoggingConfig struct {
	Level      string   `yaml:"level"`
	Format     string   `yaml:"format"`
	Outputs    []string `yaml:"outputs"`
	AuditDir   string   `yaml:"audit_dir"`
	MaxSizeMB  int      `yaml:"max_size_mb"`
	MaxBackups int      `yaml:"max_backups"`
}

// StorageConfig 统一描述 MySQL 等后端的连接信息。
type StorageConfig struct {
	Knowledge KnowledgeStoreConfig `yaml:"knowledge"`
	Jobs      JobStoreConfig       `yaml:"jobs"`
}

// KnowledgeStoreConfig 配置管道执行历史的落库方式。
type KnowledgeStoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// JobStoreConfig 配置作业状态的落库方式。
type JobStoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// QueueConfig 配置作业队列后端。
type QueueConfig struct {
	Driver   string         `yaml:"driver"`
	Buffer   int            `yaml:"buffer"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Queue    string `yaml:"queue"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Queue    string `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
	Durable  bool   `yaml:"durable"`
}

// AuditConfig 配置审计事件的外部投递渠道。
type AuditConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	SlackChannel    string `yaml:"slack_channel"`
}

// AuthConfig 配置 REST 接口的访问控制。
type AuthConfig struct {
	Mode string         `yaml:"mode"`
	Keys []APIKeyConfig `yaml:"keys"`
}

// APIKeyConfig 定义启动时注入的 API key。
type APIKeyConfig struct {
	Key      string `yaml:"key"`
	Name     string `yaml:"name"`
	Disabled bool   `yaml:"disabled"`
}

// AdaptersConfig 配置各能力适配器的后端。
type AdaptersConfig struct {
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Webhook   WebhookConfig   `yaml:"webhook"`
}

// WarehouseConfig 配置 data-query 能力使用的数据仓库。
type WarehouseConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	MaxRows int    `yaml:"max_rows"`
}

// WebhookConfig 配置 notification 与 workflow-automation 能力的投递地址。
type WebhookConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PluginsConfig 指向适配器插件的独立配置文件。
type PluginsConfig struct {
	ConfigPath string `yaml:"config_path"`
}

// PipelineConfig 配置管道执行参数。
type PipelineConfig struct {
	StepTimeoutSeconds int `yaml:"step_timeout_seconds"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir    string `yaml:"data_dir"`
	Workers    int    `yaml:"workers"`
	MaxRetries int    `yaml:"max_retries"`
}

// Load 负责解析指定路径的 YAML 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if len(c.Logging.Outputs) == 0 {
		c.Logging.Outputs = []string{"stdout"}
	}

	if c.Storage.Knowledge.Driver == "" {
		c.Storage.Knowledge.Driver = "memory"
	}
	if c.Storage.Jobs.Driver == "" {
		c.Storage.Jobs.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Buffer <= 0 {
		c.Queue.Buffer = 128
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "disabled"
	}

	if c.Pipeline.StepTimeoutSeconds <= 0 {
		c.Pipeline.StepTimeoutSeconds = 30
	}

	if c.Runtime.Workers <= 0 {
		c.Runtime.Workers = 2
	}
	if c.Runtime.MaxRetries <= 0 {
		c.Runtime.MaxRetries = 3
	}
	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
	if c.Plugins.ConfigPath != "" && !filepath.IsAbs(c.Plugins.ConfigPath) {
		c.Plugins.ConfigPath = filepath.Join(baseDir, c.Plugins.ConfigPath)
	}
	if c.Logging.AuditDir == "" {
		c.Logging.AuditDir = filepath.Join(c.Runtime.DataDir, "audit")
	} else if !filepath.IsAbs(c.Logging.AuditDir) {
		c.Logging.AuditDir = filepath.Join(baseDir, c.Logging.AuditDir)
	}
}
