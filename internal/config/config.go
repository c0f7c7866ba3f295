package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application level configuration. Values come from defaults,
// then an optional YAML file named by CONFIG_FILE, then environment variables.
type Config struct {
	Environment    string        `yaml:"environment"`
	ServerPort     string        `yaml:"server_port"`
	DBDriver       string        `yaml:"db_driver"`
	DatabaseDSN    string        `yaml:"database_dsn"`
	ResetDB        bool          `yaml:"reset_db"`
	RedisAddr      string        `yaml:"redis_addr"`
	RedisDB        int           `yaml:"redis_db"`
	RedisPass      string        `yaml:"redis_password"`
	JWTSecret      string        `yaml:"jwt_secret"`
	AccessTTL      time.Duration `yaml:"access_token_ttl"`
	RefreshTTL     time.Duration `yaml:"refresh_token_ttl"`
	MLServiceURL   string        `yaml:"ml_service_url"`
	MLTimeout      time.Duration `yaml:"ml_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	SwaggerHost    string        `yaml:"swagger_host"`
	Storage        StorageConfig `yaml:"storage"`
}

// StorageConfig selects and configures the evidence file store.
type StorageConfig struct {
	Driver        string `yaml:"driver"` // s3 or disk
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	PublicBaseURL string `yaml:"public_base_url"`
	DiskRoot      string `yaml:"disk_root"`
}

// Defaults returns development defaults.
func Defaults() *Config {
	return &Config{
		Environment:    "development",
		ServerPort:     "8080",
		DBDriver:       "mysql",
		DatabaseDSN:    "user:password@tcp(localhost:3306)/crimesleuth?charset=utf8mb4&parseTime=True&loc=UTC",
		RedisAddr:      "localhost:6379",
		JWTSecret:      "change-me",
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     7 * 24 * time.Hour,
		MLTimeout:      30 * time.Second,
		MaxUploadBytes: 50 << 20,
		LogLevel:       "info",
		LogFormat:      "json",
		Storage: StorageConfig{
			Driver:   "disk",
			Bucket:   "evidence",
			Region:   "us-east-1",
			DiskRoot: "./uploads",
		},
	}
}

// Load builds Config from defaults, the optional YAML file and the environment.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("APP_ENV", c.Environment)
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.DBDriver = getEnv("DB_DRIVER", c.DBDriver)
	c.DatabaseDSN = getEnv("DATABASE_DSN", c.DatabaseDSN)
	c.ResetDB = getEnvBool("RESET_DB", c.ResetDB)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.RedisPass = getEnv("REDIS_PASSWORD", c.RedisPass)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.AccessTTL = getEnvDuration("ACCESS_TOKEN_TTL", c.AccessTTL)
	c.RefreshTTL = getEnvDuration("REFRESH_TOKEN_TTL", c.RefreshTTL)
	c.MLServiceURL = getEnv("ML_SERVICE_URL", c.MLServiceURL)
	c.MLTimeout = getEnvDuration("ML_TIMEOUT", c.MLTimeout)
	c.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.SwaggerHost = getEnv("SWAGGER_HOST", c.SwaggerHost)

	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Bucket = getEnv("S3_BUCKET", c.Storage.Bucket)
	c.Storage.Region = getEnv("S3_REGION", c.Storage.Region)
	c.Storage.Endpoint = getEnv("S3_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKey = getEnv("S3_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = getEnv("S3_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.PublicBaseURL = getEnv("STORAGE_PUBLIC_URL", c.Storage.PublicBaseURL)
	c.Storage.DiskRoot = getEnv("STORAGE_DISK_ROOT", c.Storage.DiskRoot)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DBDriver)
	}
	switch c.Storage.Driver {
	case "s3", "disk":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must not be empty")
	}
	if c.MLTimeout <= 0 {
		return fmt.Errorf("ml timeout must be positive")
	}
	if c.IsProduction() && c.JWTSecret == Defaults().JWTSecret {
		return fmt.Errorf("jwt secret must be set in production")
	}
	return nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
