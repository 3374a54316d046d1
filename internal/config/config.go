package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	MinClusters = 2
	MaxClusters = 10
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Data     DataConfig     `mapstructure:"data"`
	Logger   LoggerConfig   `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DataConfig struct {
	InputFile string   `mapstructure:"input_file"`
	OutputDir string   `mapstructure:"output_dir"`
	CacheDir  string   `mapstructure:"cache_dir"`
	Formats   []string `mapstructure:"formats"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SecurityConfig struct {
	EnableRateLimit bool     `mapstructure:"rate_limit_enabled"`
	RateLimitRPS    int      `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int      `mapstructure:"rate_limit_burst"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	TrustedProxies  []string `mapstructure:"trusted_proxies"`
}

// PipelineConfig carries every parameter the clustering stages depend on.
// Seed is explicit so two runs with the same input and config agree.
type PipelineConfig struct {
	Seed           uint64  `mapstructure:"seed"`
	Restarts       int     `mapstructure:"restarts"`
	MaxIter        int     `mapstructure:"max_iter"`
	Tolerance      float64 `mapstructure:"tolerance"`
	MinK           int     `mapstructure:"min_k"`
	MaxK           int     `mapstructure:"max_k"`
	ProjectionDims int     `mapstructure:"projection_dims"`
	MemoSize       int     `mapstructure:"memo_size"`
	Workers        int     `mapstructure:"workers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8084)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("data.input_file", "train.csv")
	v.SetDefault("data.output_dir", "out")
	v.SetDefault("data.cache_dir", ".cache")
	v.SetDefault("data.formats", []string{"csv"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("security.rate_limit_enabled", true)
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 10)
	v.SetDefault("security.allowed_origins", []string{"http://localhost:8084"})
	v.SetDefault("security.trusted_proxies", []string{"127.0.0.1"})

	v.SetDefault("pipeline.seed", 42)
	v.SetDefault("pipeline.restarts", 10)
	v.SetDefault("pipeline.max_iter", 300)
	v.SetDefault("pipeline.tolerance", 1e-4)
	v.SetDefault("pipeline.min_k", MinClusters)
	v.SetDefault("pipeline.max_k", MaxClusters)
	v.SetDefault("pipeline.projection_dims", 3)
	v.SetDefault("pipeline.memo_size", 32)
	v.SetDefault("pipeline.workers", 0)
}

// Load reads defaults, an optional config file and the environment, in that
// order of increasing precedence. A .env file in the working directory is
// loaded into the environment first when present.
// Environment keys are prefixed SEGMENTS_ with dots replaced by underscores,
// e.g. SEGMENTS_PIPELINE_SEED.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("SEGMENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Data.InputFile == "" {
		return fmt.Errorf("input file path cannot be empty")
	}

	for _, f := range c.Data.Formats {
		if !slices.Contains([]string{"csv", "xlsx"}, f) {
			return fmt.Errorf("invalid export format %q, must be csv or xlsx", f)
		}
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	return c.Pipeline.Validate()
}

func (p PipelineConfig) Validate() error {
	if p.MinK < MinClusters || p.MaxK > MaxClusters || p.MinK > p.MaxK {
		return fmt.Errorf("cluster search range must lie within %d..%d, got %d..%d", MinClusters, MaxClusters, p.MinK, p.MaxK)
	}

	if p.Restarts <= 0 {
		return fmt.Errorf("restarts must be positive")
	}

	if p.MaxIter <= 0 {
		return fmt.Errorf("max iterations must be positive")
	}

	if p.Tolerance < 0 {
		return fmt.Errorf("tolerance cannot be negative")
	}

	switch p.ProjectionDims {
	case 0, 2, 3:
	default:
		return fmt.Errorf("projection dims must be 0 (off), 2 or 3, got %d", p.ProjectionDims)
	}

	if p.MemoSize <= 0 {
		return fmt.Errorf("memo size must be positive")
	}

	if p.Workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}

	return nil
}

// DefaultPipeline returns the pipeline parameters used when no config is loaded.
func DefaultPipeline() PipelineConfig {
	return PipelineConfig{
		Seed:           42,
		Restarts:       10,
		MaxIter:        300,
		Tolerance:      1e-4,
		MinK:           MinClusters,
		MaxK:           MaxClusters,
		ProjectionDims: 3,
		MemoSize:       32,
	}
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
