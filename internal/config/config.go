package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Chain struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"chain"`
	Reward RewardConfig `yaml:"reward"`
	Logger LoggerConfig `yaml:"logger"`
}

// RewardConfig holds the reward and reconciliation policy knobs.
type RewardConfig struct {
	Epsilon              string `yaml:"epsilon"`
	AllowRepeatAttempts  bool   `yaml:"allow_repeat_attempts"`
	ReconcileSchedule    string `yaml:"reconcile_schedule"`
	ReconcileConcurrency int    `yaml:"reconcile_concurrency"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

// DefaultEpsilon is the reconciliation tolerance used when none is configured.
var DefaultEpsilon = decimal.RequireFromString("0.001")

// Load reads YAML config from path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("CHAIN_URL"); v != "" {
		cfg.Chain.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("ENV"); v != "" {
		cfg.Logger.Env = v
	}
	if v := os.Getenv("RECONCILE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reward.ReconcileConcurrency = n
		}
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// EpsilonValue parses the configured tolerance, falling back to DefaultEpsilon.
func (r RewardConfig) EpsilonValue() decimal.Decimal {
	if r.Epsilon == "" {
		return DefaultEpsilon
	}
	eps, err := decimal.NewFromString(r.Epsilon)
	if err != nil || eps.IsNegative() {
		return DefaultEpsilon
	}
	return eps
}

// Concurrency returns the sweep worker bound, at least 1.
func (r RewardConfig) Concurrency() int {
	if r.ReconcileConcurrency <= 0 {
		return 4
	}
	return r.ReconcileConcurrency
}
