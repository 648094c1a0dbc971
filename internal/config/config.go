// Package config loads the service configuration from environment
// variables, optionally layered over a YAML file. Environment values win.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" envconfig:"SERVER"`
	Security    SecurityConfig    `yaml:"security" envconfig:"SECURITY"`
	Logging     LoggingConfig     `yaml:"logging" envconfig:"LOGGING"`
	Queue       QueueConfig       `yaml:"queue" envconfig:"QUEUE"`
	Aggregation AggregationConfig `yaml:"aggregation" envconfig:"AGGREGATION"`
	Renderer    RendererConfig    `yaml:"renderer" envconfig:"RENDERER"`
	WebSocket   WebSocketConfig   `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// SecurityConfig contains transport security configuration.
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains request rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// QueueConfig tunes the job scheduler.
type QueueConfig struct {
	MaxConcurrentPerUser int           `yaml:"max_concurrent_per_user" envconfig:"MAX_CONCURRENT_PER_USER" default:"3"`
	MaxRetries           int           `yaml:"max_retries" envconfig:"MAX_RETRIES" default:"3"`
	RetryDelay           time.Duration `yaml:"retry_delay" envconfig:"RETRY_DELAY" default:"5s"`
	RetentionDays        int           `yaml:"retention_days" envconfig:"RETENTION_DAYS" default:"30"`
}

// AggregationConfig tunes the data aggregation stage.
type AggregationConfig struct {
	SourceBaseURL string        `yaml:"source_base_url" envconfig:"SOURCE_BASE_URL" default:"http://localhost:9090"`
	SourceTimeout time.Duration `yaml:"source_timeout" envconfig:"SOURCE_TIMEOUT" default:"15s"`
	CacheTTL      time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL" default:"5m"`
}

// RendererConfig tunes the PDF rendering backend.
type RendererConfig struct {
	ChromeTimeout time.Duration `yaml:"chrome_timeout" envconfig:"CHROME_TIMEOUT" default:"60s"`
}

// WebSocketConfig contains WebSocket configuration.
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
}

// Load reads configuration from environment variables, filling unset fields
// from a YAML file when one exists nearby.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("REPORTGEN", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile := findConfigFile(); configFile != "" {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = merge(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// merge fills zero-valued env fields from the file config; env wins.
func merge(file, env Config) Config {
	if env.Server.Port == 0 {
		env.Server.Port = file.Server.Port
	}
	if env.Server.ReadTimeout == 0 {
		env.Server.ReadTimeout = file.Server.ReadTimeout
	}
	if env.Server.WriteTimeout == 0 {
		env.Server.WriteTimeout = file.Server.WriteTimeout
	}
	if env.Queue.MaxConcurrentPerUser == 0 {
		env.Queue.MaxConcurrentPerUser = file.Queue.MaxConcurrentPerUser
	}
	if env.Queue.MaxRetries == 0 {
		env.Queue.MaxRetries = file.Queue.MaxRetries
	}
	if env.Queue.RetryDelay == 0 {
		env.Queue.RetryDelay = file.Queue.RetryDelay
	}
	if env.Queue.RetentionDays == 0 {
		env.Queue.RetentionDays = file.Queue.RetentionDays
	}
	if env.Aggregation.SourceBaseURL == "" {
		env.Aggregation.SourceBaseURL = file.Aggregation.SourceBaseURL
	}
	if env.Aggregation.SourceTimeout == 0 {
		env.Aggregation.SourceTimeout = file.Aggregation.SourceTimeout
	}
	if env.Aggregation.CacheTTL == 0 {
		env.Aggregation.CacheTTL = file.Aggregation.CacheTTL
	}
	if env.Renderer.ChromeTimeout == 0 {
		env.Renderer.ChromeTimeout = file.Renderer.ChromeTimeout
	}
	if len(env.Security.AllowedOrigins) == 0 {
		env.Security.AllowedOrigins = file.Security.AllowedOrigins
	}
	return env
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Queue.MaxConcurrentPerUser <= 0 {
		return fmt.Errorf("queue max_concurrent_per_user must be positive")
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue max_retries cannot be negative")
	}
	if c.Queue.RetryDelay <= 0 {
		return fmt.Errorf("queue retry_delay must be positive")
	}
	if c.Aggregation.SourceTimeout <= 0 {
		return fmt.Errorf("aggregation source_timeout must be positive")
	}
	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		c.Logging.Format = "json"
	}
	return nil
}

func findConfigFile() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/app.log",
		},
		Queue: QueueConfig{
			MaxConcurrentPerUser: 3,
			MaxRetries:           3,
			RetryDelay:           5 * time.Second,
			RetentionDays:        30,
		},
		Aggregation: AggregationConfig{
			SourceBaseURL: "http://localhost:9090",
			SourceTimeout: 15 * time.Second,
			CacheTTL:      5 * time.Minute,
		},
		Renderer: RendererConfig{
			ChromeTimeout: 60 * time.Second,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}
