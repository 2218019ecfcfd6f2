package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Pipeline holds the tuning knobs for the collection pipeline
type Pipeline struct {
	PageSize            int           `yaml:"pageSize"`            // provider page size
	BatchSize           int           `yaml:"batchSize"`           // replies per evaluation batch
	Workers             int           `yaml:"workers"`             // worker pool size
	ScoringPerMinute    int           `yaml:"scoringPerMinute"`    // global evaluation batch budget
	SynthesisPerMinute  int           `yaml:"synthesisPerMinute"`  // global synthesis budget (near-serial)
	SweepInterval       time.Duration `yaml:"sweepInterval"`       // supervisor tick
	MonitoringWindow    time.Duration `yaml:"monitoringWindow"`    // absolute wall-clock timeout
	SetupGrace          time.Duration `yaml:"setupGrace"`          // re-arm stuck setting_up reports after this
}

// Config is the process configuration, read from env with an optional
// YAML overlay for pipeline tuning (REPLYPULSE_CONFIG).
type Config struct {
	MongoURI    string   `yaml:"-"`
	MongoDB     string   `yaml:"-"`
	RedisAddr   string   `yaml:"-"`
	Port        string   `yaml:"-"`
	MetricsAddr string   `yaml:"-"`
	Pipeline    Pipeline `yaml:"pipeline"`
}

// Load reads env vars with defaults and applies the optional YAML overlay
func Load() (*Config, error) {
	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     getEnv("MONGO_DB", "replypulse"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		Port:        getEnv("PORT", "8080"),
		MetricsAddr: os.Getenv("METRICS_ADDR"),
		Pipeline: Pipeline{
			PageSize:           getEnvInt("SCRAPE_PAGE_SIZE", 100),
			BatchSize:          getEnvInt("EVAL_BATCH_SIZE", 10),
			Workers:            getEnvInt("PIPELINE_WORKERS", 8),
			ScoringPerMinute:   getEnvInt("SCORING_BUDGET_PER_MIN", 12),
			SynthesisPerMinute: getEnvInt("SYNTHESIS_BUDGET_PER_MIN", 2),
			SweepInterval:      3 * time.Minute,
			MonitoringWindow:   24 * time.Hour,
			SetupGrace:         10 * time.Minute,
		},
	}

	if path := os.Getenv("REPLYPULSE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config overlay %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config overlay %s: %w", path, err)
		}
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}
