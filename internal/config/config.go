package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Cache      CacheConfig      `json:"cache"`
	Simulation SimulationConfig `json:"simulation"`
	Worker     WorkerConfig     `json:"worker"`
	Export     ExportConfig     `json:"export"`
	Logging    LoggingConfig    `json:"logging"`
	CORS       CORSConfig       `json:"cors"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL            string        `json:"url"` // takes precedence over the discrete fields
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
	ConnectRetries int           `json:"connect_retries"`
	AutoMigrate    bool          `json:"auto_migrate"`
}

// CacheConfig selects the rollup cache backend
type CacheConfig struct {
	Driver    string        `json:"driver"` // memory or redis
	RedisURL  string        `json:"redis_url"`
	Namespace string        `json:"namespace"`
	TTL       time.Duration `json:"ttl"`
}

// SimulationConfig holds engine defaults
type SimulationConfig struct {
	DefaultMaxYears    int  `json:"default_max_years"`
	TruncatePopulation bool `json:"truncate_population"`
}

// WorkerConfig configures the recompute worker
type WorkerConfig struct {
	RecomputeSchedule string `json:"recompute_schedule"` // cron spec
	MaxConcurrent     int    `json:"max_concurrent"`
	BatchSize         int    `json:"batch_size"`
	RunOnStart        bool   `json:"run_on_start"`
}

// ExportConfig locates the S3 archive. Archiving is off without a bucket.
type ExportConfig struct {
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	Prefix    string `json:"prefix"`
	PathStyle bool   `json:"path_style"`
}

// LoggingConfig
type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// CORSConfig
type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

// LoadConfig loads configuration from file and environment variables. A
// .env file in the working directory is loaded first if present.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    60 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			DBName:         "nuwa",
			SSLMode:        "disable",
			MaxConnections: 20,
			MaxIdleConns:   5,
			MaxLifetime:    30 * time.Minute,
			ConnectRetries: 5,
		},
		Cache: CacheConfig{
			Driver:    "memory",
			Namespace: "carbon:",
			TTL:       5 * time.Minute,
		},
		Simulation: SimulationConfig{
			DefaultMaxYears: 50,
		},
		Worker: WorkerConfig{
			RecomputeSchedule: "@every 1m",
			MaxConcurrent:     4,
			BatchSize:         20,
			RunOnStart:        true,
		},
		Export: ExportConfig{
			Region: "us-east-1",
			Prefix: "exports",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

func overrideWithEnv(config *Config) error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	setString("SERVER_HOST", &config.Server.Host)
	setInt("SERVER_PORT", &config.Server.Port)
	setDuration("SERVER_REQUEST_TIMEOUT", &config.Server.RequestTimeout)

	setString("DATABASE_URL", &config.Database.URL)
	setString("DATABASE_HOST", &config.Database.Host)
	setInt("DATABASE_PORT", &config.Database.Port)
	setString("DATABASE_USER", &config.Database.User)
	setString("DATABASE_PASSWORD", &config.Database.Password)
	setString("DATABASE_DBNAME", &config.Database.DBName)
	setString("DATABASE_SSLMODE", &config.Database.SSLMode)
	setBool("DATABASE_AUTO_MIGRATE", &config.Database.AutoMigrate)

	setString("CACHE_DRIVER", &config.Cache.Driver)
	setString("REDIS_URL", &config.Cache.RedisURL)
	setDuration("CACHE_TTL", &config.Cache.TTL)

	setInt("SIMULATION_DEFAULT_MAX_YEARS", &config.Simulation.DefaultMaxYears)
	setBool("SIMULATION_TRUNCATE_POPULATION", &config.Simulation.TruncatePopulation)

	setString("WORKER_RECOMPUTE_SCHEDULE", &config.Worker.RecomputeSchedule)
	setInt("WORKER_MAX_CONCURRENT", &config.Worker.MaxConcurrent)
	setInt("WORKER_BATCH_SIZE", &config.Worker.BatchSize)

	setString("EXPORT_S3_BUCKET", &config.Export.Bucket)
	setString("EXPORT_S3_REGION", &config.Export.Region)
	setString("EXPORT_S3_ENDPOINT", &config.Export.Endpoint)
	setString("EXPORT_S3_PREFIX", &config.Export.Prefix)
	setBool("EXPORT_S3_PATH_STYLE", &config.Export.PathStyle)

	setString("LOG_LEVEL", &config.Logging.Level)
	setBool("LOG_DEVELOPMENT", &config.Logging.Development)

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		config.CORS.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, o)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %w", errors.Join(errs...))
	}
	return nil
}

// Validate checks the configuration for values the services cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Simulation.DefaultMaxYears < 0 || c.Simulation.DefaultMaxYears > 50 {
		return fmt.Errorf("simulation.default_max_years must be within 0..50, got %d", c.Simulation.DefaultMaxYears)
	}
	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}
	if c.Worker.MaxConcurrent < 1 {
		return fmt.Errorf("worker.max_concurrent must be at least 1")
	}
	return nil
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
