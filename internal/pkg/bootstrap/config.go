// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"bazaar/internal/pkg/logger"
)

// Config 是所有服务共享的配置结构，从 YAML 文件加载，
// 关键的基础设施地址允许被环境变量覆盖，方便容器化部署。
type Config struct {
	App struct {
		LogLevel        string        `yaml:"log_level"`
		FinalizeTimeout time.Duration `yaml:"finalize_timeout"`
		VoidRetry       struct {
			MaxAttempts int           `yaml:"max_attempts"`
			BaseDelay   time.Duration `yaml:"base_delay"`
		} `yaml:"void_retry"`
		ReconcileInterval time.Duration `yaml:"reconcile_interval"`
		ReconcileBatch    int           `yaml:"reconcile_batch"`
	} `yaml:"app"`

	Infra struct {
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers           []string `yaml:"brokers"`
			NotificationTopic string   `yaml:"notification_topic"`
			ConsumerGroup     string   `yaml:"consumer_group"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Nacos struct {
			ServerAddrs string `yaml:"server_addrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
	} `yaml:"infra"`
}

var (
	currentConfig Config
	configOnce    sync.Once
)

// Init 加载配置。CONFIG_PATH 未设置或文件不存在时使用内置默认值，
// 保证本地开发零配置即可启动。
func Init() {
	configOnce.Do(func() {
		currentConfig = defaultConfig()

		if path := os.Getenv("CONFIG_PATH"); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				logger.L().Warn().Err(err).Str("path", path).Msg("config file not readable, using defaults")
			} else if err := yaml.Unmarshal(data, &currentConfig); err != nil {
				logger.L().Fatal().Err(err).Str("path", path).Msg("invalid config file")
			}
		}

		applyEnvOverrides(&currentConfig)
	})
}

// GetCurrentConfig 返回进程级配置。必须先调用 Init。
func GetCurrentConfig() Config {
	return currentConfig
}

func defaultConfig() Config {
	var c Config
	c.App.LogLevel = "info"
	c.App.FinalizeTimeout = 5 * time.Second
	c.App.VoidRetry.MaxAttempts = 5
	c.App.VoidRetry.BaseDelay = 100 * time.Millisecond
	c.App.ReconcileInterval = time.Minute
	c.App.ReconcileBatch = 100
	c.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/bazaar?charset=utf8mb4&parseTime=True&loc=Local"
	c.Infra.Redis.Addr = "localhost:6379"
	c.Infra.Kafka.Brokers = []string{"localhost:9092"}
	c.Infra.Kafka.NotificationTopic = "notifications"
	c.Infra.Kafka.ConsumerGroup = "notification-group"
	c.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	c.Infra.Nacos.ServerAddrs = "localhost:8848"
	c.Infra.Nacos.Group = "DEFAULT_GROUP"
	return c
}

// applyEnvOverrides 允许用环境变量覆盖部署相关的地址类配置。
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		c.Infra.Mysql.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Infra.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Infra.Kafka.Brokers = splitAndTrim(v)
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		c.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		c.Infra.Nacos.ServerAddrs = v
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		c.Infra.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		c.Infra.Nacos.Group = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.App.LogLevel = v
	}
}
