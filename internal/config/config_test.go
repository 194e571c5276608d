package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SNOWFLOW_RANKER_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":50051" || cfg.Training.Seed != 17 || cfg.Training.RegWeight != 0.1 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Cache.Backend != "memory" || cfg.Source.Kind != "csv" {
		t.Fatalf("unexpected default backends %+v %+v", cfg.Cache, cfg.Source)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranker.yaml")
	yaml := `
server:
  address: ":6000"
  gracefulTimeout: 3s
training:
  regWeight: 0.5
  maxIterations: 200
prediction:
  modelPath: https://registry.local/model.json
  topN: 3
cache:
  backend: redis
  addr: redis:6379
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SNOWFLOW_RANKER_CONFIG", path)
	t.Setenv("SNOWFLOW_MAX_ITERATIONS", "50")
	t.Setenv("SNOWFLOW_RESCALE", "true")
	t.Setenv("SNOWFLOW_CACHE_PREDICTION_TTL", "1m")
	t.Setenv("SNOWFLOW_SEED", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":6000" || cfg.Server.GracefulTimeout != 3*time.Second {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Training.RegWeight != 0.5 || cfg.Training.MaxIterations != 50 || cfg.Training.Seed != 17 {
		t.Fatalf("unexpected training config %+v", cfg.Training)
	}
	if !cfg.Prediction.Rescale || cfg.Prediction.TopN != 3 || cfg.Cache.PredictionTTL != time.Minute {
		t.Fatalf("unexpected overrides %+v %+v", cfg.Prediction, cfg.Cache)
	}
	// Unset keys keep their defaults.
	if cfg.Server.MetricsAddress != ":2112" || cfg.Training.Memory != 10 {
		t.Fatalf("expected defaults for unset keys")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{name: "negative regularization", yaml: "training:\n  regWeight: -1\n", field: "RegWeight"},
		{name: "redis without address", yaml: "cache:\n  backend: redis\n", field: "Addr"},
		{name: "unknown cache backend", yaml: "cache:\n  backend: memcached\n", field: "Backend"},
		{name: "postgres without dsn", yaml: "source:\n  kind: postgres\n", field: "DSN"},
		{name: "bad log level", yaml: "logging:\n  level: loud\n", field: "Level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SNOWFLOW_RANKER_CONFIG", "")
			path := filepath.Join(t.TempDir(), "ranker.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.field) {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	t.Setenv("SNOWFLOW_RANKER_CONFIG", "")
	cfg, err := Load(filepath.Join("..", "..", "configs", "ranker.example.yaml"))
	if err != nil {
		t.Fatalf("example config must load: %v", err)
	}
	defaults := defaultConfig()
	if cfg.Training != defaults.Training || cfg.Prediction != defaults.Prediction || cfg.Cache != defaults.Cache {
		t.Fatalf("example config drifted from defaults:\n%+v\n%+v", cfg, defaults)
	}
}
