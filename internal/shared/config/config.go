package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Redis     RedisConfig      `mapstructure:"redis"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Pricing   PricingConfig    `mapstructure:"pricing"`
	Approval  ApprovalConfig   `mapstructure:"approval"`
	Providers []ProviderConfig `mapstructure:"providers"`
	Export    ExportConfig     `mapstructure:"export"`
	Log       LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
}

// PricingConfig holds the static pricing table.
type PricingConfig struct {
	DefaultUnitPrice float64        `mapstructure:"default_unit_price"`
	Currency         string         `mapstructure:"currency"`
	Models           []PricingModel `mapstructure:"models"`
}

// PricingModel holds pricing for a single model identifier.
type PricingModel struct {
	Model              string  `mapstructure:"model"`
	Unit               string  `mapstructure:"unit"` // per_item, per_duration
	UnitPrice          float64 `mapstructure:"unit_price"`
	AvgDurationSeconds float64 `mapstructure:"avg_duration_seconds"`
}

// ApprovalConfig holds the spend approval gate configuration.
type ApprovalConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

// ProviderConfig holds one generation provider configuration.
type ProviderConfig struct {
	Name       string `mapstructure:"name"`
	Capability string `mapstructure:"capability"` // image, video
	Enabled    bool   `mapstructure:"enabled"`
	Priority   int    `mapstructure:"priority"`
	MaxRetries int    `mapstructure:"max_retries"`
	TimeoutMs  int    `mapstructure:"timeout_ms"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
}

// ExportConfig holds export queue and worker configuration.
type ExportConfig struct {
	QueueKey     string        `mapstructure:"queue_key"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
	FFmpegPath   string        `mapstructure:"ffmpeg_path"`
	WorkDir      string        `mapstructure:"work_dir"`
	OutputPrefix string        `mapstructure:"output_prefix"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/reelforge")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("REELFORGE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if password := os.Getenv("REELFORGE_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("REELFORGE_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if key := os.Getenv("REELFORGE_STORAGE_SECRET_KEY"); key != "" {
		cfg.Storage.SecretAccessKey = key
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "reelforge")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Pricing defaults
	v.SetDefault("pricing.default_unit_price", 0.05)
	v.SetDefault("pricing.currency", "USD")

	// Approval defaults
	v.SetDefault("approval.threshold", 1.0)

	// Export defaults
	v.SetDefault("export.queue_key", "reelforge:export:jobs")
	v.SetDefault("export.poll_timeout", 5*time.Second)
	v.SetDefault("export.ffmpeg_path", "ffmpeg")
	v.SetDefault("export.work_dir", os.TempDir())
	v.SetDefault("export.output_prefix", "exports")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
