package config

import (
	"fmt"
	"github.com/spf13/viper"
	"strings"
	"time"
)

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	JaegerURL   string `mapstructure:"jaeger_url"`
}

type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
	StoreRedis    StoreBackend = "redis"
)

type StoreConfig struct {
	Backend StoreBackend `mapstructure:"backend"`
}

type DecisionConfig struct {
	URL               string        `mapstructure:"url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	HealthURL         string        `mapstructure:"health_url"`
	HealthInterval    time.Duration `mapstructure:"health_interval"`
	LenientAmount     bool          `mapstructure:"lenient_amount"`
	AccountSentinel   string        `mapstructure:"account_sentinel"`
	FraudToken        string        `mapstructure:"fraud_token"`
	SanctionedDomains []string      `mapstructure:"sanctioned_domains"`
}

type AuditConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BatchSize   int           `mapstructure:"batch_size"`
	BatchWindow time.Duration `mapstructure:"batch_window"`
}

type AppConfig struct {
	Server    *ServerConfig    `mapstructure:"server"`
	Postgres  *PostgresConfig  `mapstructure:"postgres"`
	Redis     *RedisConfig     `mapstructure:"redis"`
	Telemetry *TelemetryConfig `mapstructure:"telemetry"`
	Store     *StoreConfig     `mapstructure:"store"`
	Decision  *DecisionConfig  `mapstructure:"decision"`
	Audit     *AuditConfig     `mapstructure:"audit"`
}

// LoadConfig reads defaults and environment. serviceName and port seed the
// telemetry and server defaults so both binaries share one loader.
func LoadConfig(serviceName string, port int) (*AppConfig, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("server.port", port)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", serviceName)
	v.SetDefault("telemetry.jaeger_url", "http://jaeger:14268/api/traces")
	v.SetDefault("postgres.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.key_prefix", "paygate:")
	v.SetDefault("store.backend", string(StoreMemory))
	v.SetDefault("decision.url", "http://localhost:8081/bank/api/charge")
	v.SetDefault("decision.timeout", 5*time.Second)
	v.SetDefault("decision.health_url", "http://localhost:8081/bank/api/health")
	v.SetDefault("decision.health_interval", 2*time.Second)
	v.SetDefault("decision.lenient_amount", false)
	v.SetDefault("decision.account_sentinel", "missing")
	v.SetDefault("decision.fraud_token", "fraud")
	v.SetDefault("decision.sanctioned_domains", []string{"banned.com"})
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.batch_size", 100)
	v.SetDefault("audit.batch_window", 50*time.Millisecond)

	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.host", "SERVER_HOST")
	_ = v.BindEnv("postgres.url", "POSTGRES_URL")
	_ = v.BindEnv("redis.url", "REDIS_URL")
	_ = v.BindEnv("redis.key_prefix", "REDIS_KEY_PREFIX")
	_ = v.BindEnv("telemetry.enabled", "TELEMETRY_ENABLED")
	_ = v.BindEnv("telemetry.service_name", "TELEMETRY_SERVICE_NAME")
	_ = v.BindEnv("telemetry.jaeger_url", "JAEGER_URL")
	_ = v.BindEnv("store.backend", "STORE_BACKEND")
	_ = v.BindEnv("decision.url", "DECISION_URL")
	_ = v.BindEnv("decision.timeout", "DECISION_TIMEOUT")
	_ = v.BindEnv("decision.health_url", "DECISION_HEALTH_URL")
	_ = v.BindEnv("decision.health_interval", "DECISION_HEALTH_INTERVAL")
	_ = v.BindEnv("decision.lenient_amount", "DECISION_LENIENT_AMOUNT")
	_ = v.BindEnv("decision.account_sentinel", "DECISION_ACCOUNT_SENTINEL")
	_ = v.BindEnv("decision.fraud_token", "DECISION_FRAUD_TOKEN")
	_ = v.BindEnv("decision.sanctioned_domains", "DECISION_SANCTIONED_DOMAINS")
	_ = v.BindEnv("audit.enabled", "AUDIT_ENABLED")
	_ = v.BindEnv("audit.batch_size", "AUDIT_BATCH_SIZE")
	_ = v.BindEnv("audit.batch_window", "AUDIT_BATCH_WINDOW")

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	config.Decision.SanctionedDomains = trimList(config.Decision.SanctionedDomains)

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *AppConfig) validate() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("store backend %q requires POSTGRES_URL", c.Store.Backend)
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("store backend %q requires REDIS_URL", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
