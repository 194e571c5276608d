package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config captures every setting of the ranker commands and service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Source     SourceConfig     `yaml:"source"`
	Training   TrainingConfig   `yaml:"training"`
	Prediction PredictionConfig `yaml:"prediction"`
	Cache      CacheConfig      `yaml:"cache"`
}

// ServerConfig controls the gRPC, HTTP gateway and metrics listeners.
type ServerConfig struct {
	Address         string        `yaml:"address" validate:"required"`
	HTTPAddress     string        `yaml:"httpAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout" validate:"gt=0"`
	// RateLimit is the number of HTTP requests allowed per client IP per minute; zero disables it.
	RateLimit int `yaml:"rateLimit" validate:"gte=0"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// SourceConfig selects where raw test data is read from.
type SourceConfig struct {
	Kind     string `yaml:"kind" validate:"oneof=csv postgres"`
	Dir      string `yaml:"dir" validate:"required_if=Kind csv"`
	DSN      string `yaml:"dsn" validate:"required_if=Kind postgres"`
	MaxConns int    `yaml:"maxConns" validate:"gte=0"`
}

// TrainingConfig controls preprocessing outputs and the optimizer.
type TrainingConfig struct {
	DatasetPath   string  `yaml:"datasetPath" validate:"required"`
	RegWeight     float64 `yaml:"regWeight" validate:"gte=0"`
	MaxIterations int     `yaml:"maxIterations" validate:"gte=1"`
	Seed          int64   `yaml:"seed"`
	Memory        int     `yaml:"memory" validate:"gte=1"`
	FTol          float64 `yaml:"ftol" validate:"gt=0"`
	PGTol         float64 `yaml:"pgtol" validate:"gt=0"`
}

// PredictionConfig controls model loading and ranking defaults.
type PredictionConfig struct {
	// ModelPath is a file path or an http(s) URL of the model document.
	ModelPath       string        `yaml:"modelPath" validate:"required"`
	TopN            int           `yaml:"topN" validate:"gte=0"`
	Rescale         bool          `yaml:"rescale"`
	ImportanceScale float64       `yaml:"importanceScale" validate:"gte=0"`
	FetchTimeout    time.Duration `yaml:"fetchTimeout" validate:"gt=0"`
	ModelCacheTTL   time.Duration `yaml:"modelCacheTTL" validate:"gte=0"`
}

// CacheConfig controls caching of model documents and predictions.
type CacheConfig struct {
	Backend          string        `yaml:"backend" validate:"oneof=none memory redis"`
	Addr             string        `yaml:"addr" validate:"required_if=Backend redis"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	DB               int           `yaml:"db" validate:"gte=0"`
	DialTimeout      time.Duration `yaml:"dialTimeout"`
	ReadTimeout      time.Duration `yaml:"readTimeout"`
	WriteTimeout     time.Duration `yaml:"writeTimeout"`
	MaxRetries       int           `yaml:"maxRetries" validate:"gte=0"`
	TLS              bool          `yaml:"tls"`
	PredictionTTL    time.Duration `yaml:"predictionTTL" validate:"gte=0"`
	BreakerFailures  uint32        `yaml:"breakerFailures"`
	BreakerOpenDelay time.Duration `yaml:"breakerOpenDelay"`
}

var validate = validator.New()

// Load initialises Config from a YAML file and optional environment overrides,
// then validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SNOWFLOW_RANKER_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) {
		msgs := make([]string, 0, len(invalid))
		for _, fe := range invalid {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return err
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			HTTPAddress:     ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			RateLimit:       600,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Source:  SourceConfig{Kind: "csv", Dir: "data/raw", MaxConns: 4},
		Training: TrainingConfig{
			DatasetPath:   "data/product_pairs.csv",
			RegWeight:     0.1,
			MaxIterations: 1000,
			Seed:          17,
			Memory:        10,
			FTol:          2.220446049250313e-09,
			PGTol:         1e-5,
		},
		Prediction: PredictionConfig{
			ModelPath:       "data/product_model.json",
			TopN:            0,
			Rescale:         false,
			ImportanceScale: 1,
			FetchTimeout:    5 * time.Second,
			ModelCacheTTL:   5 * time.Minute,
		},
		Cache: CacheConfig{
			Backend:          "memory",
			DialTimeout:      2 * time.Second,
			ReadTimeout:      500 * time.Millisecond,
			WriteTimeout:     500 * time.Millisecond,
			MaxRetries:       2,
			PredictionTTL:    10 * time.Minute,
			BreakerFailures:  5,
			BreakerOpenDelay: 30 * time.Second,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SNOWFLOW_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SNOWFLOW_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("SNOWFLOW_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	envInt("SNOWFLOW_RATE_LIMIT", &cfg.Server.RateLimit)
	if v := os.Getenv("SNOWFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("SNOWFLOW_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}

	if v := os.Getenv("SNOWFLOW_SOURCE_KIND"); v != "" {
		cfg.Source.Kind = v
	}
	if v := os.Getenv("SNOWFLOW_SOURCE_DIR"); v != "" {
		cfg.Source.Dir = v
	}
	if v := os.Getenv("SNOWFLOW_DATABASE_URL"); v != "" {
		cfg.Source.DSN = v
	}

	if v := os.Getenv("SNOWFLOW_DATASET_PATH"); v != "" {
		cfg.Training.DatasetPath = v
	}
	envFloat("SNOWFLOW_REG_WEIGHT", &cfg.Training.RegWeight)
	envInt("SNOWFLOW_MAX_ITERATIONS", &cfg.Training.MaxIterations)
	if v := os.Getenv("SNOWFLOW_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Training.Seed = seed
		}
	}

	if v := os.Getenv("SNOWFLOW_MODEL_PATH"); v != "" {
		cfg.Prediction.ModelPath = v
	}
	envInt("SNOWFLOW_TOP_N", &cfg.Prediction.TopN)
	if v := os.Getenv("SNOWFLOW_RESCALE"); v != "" {
		cfg.Prediction.Rescale = isTrue(v)
	}
	envFloat("SNOWFLOW_IMPORTANCE_SCALE", &cfg.Prediction.ImportanceScale)

	if v := os.Getenv("SNOWFLOW_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("SNOWFLOW_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("SNOWFLOW_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("SNOWFLOW_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	envInt("SNOWFLOW_CACHE_DB", &cfg.Cache.DB)
	if v := os.Getenv("SNOWFLOW_CACHE_TLS"); isTrue(v) {
		cfg.Cache.TLS = true
	}
	envDuration("SNOWFLOW_CACHE_DIAL_TIMEOUT", &cfg.Cache.DialTimeout)
	envDuration("SNOWFLOW_CACHE_READ_TIMEOUT", &cfg.Cache.ReadTimeout)
	envDuration("SNOWFLOW_CACHE_WRITE_TIMEOUT", &cfg.Cache.WriteTimeout)
	envInt("SNOWFLOW_CACHE_MAX_RETRIES", &cfg.Cache.MaxRetries)
	envDuration("SNOWFLOW_CACHE_PREDICTION_TTL", &cfg.Cache.PredictionTTL)
}

// Malformed override values are ignored and the previous setting is kept.
func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
