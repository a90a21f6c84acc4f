package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration tree.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Chapa    ChapaConfig    `mapstructure:"chapa"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
}

type AppConfig struct {
	Name           string `mapstructure:"name"`
	DeepLinkScheme string `mapstructure:"deep_link_scheme"`
}

type ServerConfig struct {
	Port     int   `mapstructure:"port"`
	Prod     bool  `mapstructure:"prod"`
	WorkerID int64 `mapstructure:"worker_id"` // snowflake worker, unique per instance
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres | mysql
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled       bool             `mapstructure:"enabled"`
	Brokers       []string         `mapstructure:"brokers"`
	Topic         KafkaTopicConfig `mapstructure:"topic"`
	MaxRetryCount int              `mapstructure:"max_retry_count"`
}

type KafkaTopicConfig struct {
	WalletEvents string `mapstructure:"wallet_events"`
}

type ChapaConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	SecretKey     string        `mapstructure:"secret_key"`
	PublicKey     string        `mapstructure:"public_key"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	CallbackURL   string        `mapstructure:"callback_url"`
	ReturnURL     string        `mapstructure:"return_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// SigningSecret returns the webhook signing key, falling back to the API secret.
func (c ChapaConfig) SigningSecret() string {
	if c.WebhookSecret != "" {
		return c.WebhookSecret
	}
	return c.SecretKey
}

type WalletConfig struct {
	Currency              string        `mapstructure:"currency"`
	AllowedPaymentMethods []string      `mapstructure:"allowed_payment_methods"`
	MinDepositCents       int64         `mapstructure:"min_deposit_cents"`
	MaxDepositCents       int64         `mapstructure:"max_deposit_cents"`
	PendingDepositExpiry  time.Duration `mapstructure:"pending_deposit_expiry"`
	FallbackEmailDomain   string        `mapstructure:"fallback_email_domain"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | text
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ridepay-wallet")
	v.SetDefault("app.deep_link_scheme", "ridepay")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.prod", false)
	v.SetDefault("server.worker_id", 1)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.wallet_events", "wallet-events")
	v.SetDefault("kafka.max_retry_count", 5)
	v.SetDefault("chapa.base_url", "https://api.chapa.co/v1")
	v.SetDefault("chapa.secret_key", "")
	v.SetDefault("chapa.public_key", "")
	v.SetDefault("chapa.webhook_secret", "")
	v.SetDefault("chapa.callback_url", "")
	v.SetDefault("chapa.return_url", "")
	v.SetDefault("chapa.timeout", 15*time.Second)
	v.SetDefault("wallet.currency", "ETB")
	v.SetDefault("wallet.allowed_payment_methods", []string{
		"telebirr", "cbe_birr", "awash_bank", "dashen_bank", "chapa", "mpesa", "ebirr",
	})
	v.SetDefault("wallet.min_deposit_cents", 100)
	v.SetDefault("wallet.max_deposit_cents", 10000000)
	v.SetDefault("wallet.pending_deposit_expiry", 24*time.Hour)
	v.SetDefault("wallet.fallback_email_domain", "wallet.ridepay.et")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig reads the YAML file at configPath. Environment variables (and a
// local .env) take precedence over file values.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate reports configuration the service cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.DSN == "" {
		missing = append(missing, "database.dsn")
	}
	if c.Chapa.SecretKey == "" {
		missing = append(missing, "chapa.secret_key")
	}
	if c.Chapa.PublicKey == "" {
		missing = append(missing, "chapa.public_key")
	}
	if c.Chapa.CallbackURL == "" {
		missing = append(missing, "chapa.callback_url")
	}
	if c.Chapa.ReturnURL == "" {
		missing = append(missing, "chapa.return_url")
	}
	if c.JWT.Secret == "" {
		missing = append(missing, "jwt.secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "mysql" {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}
