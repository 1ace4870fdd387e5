package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`

	Engine  EngineConfig  `koanf:"engine"`
	Privacy PrivacyConfig `koanf:"privacy"`
	Models  ModelsConfig  `koanf:"models"`
}

type ServerConfig struct {
	MetricsPort     int           `koanf:"metrics_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type EngineConfig struct {
	MinSupport        float64       `koanf:"min_support"`
	MinPatternLength  int           `koanf:"min_pattern_length"`
	MaxPatternLength  int           `koanf:"max_pattern_length"`
	MinConfidence     float64       `koanf:"min_confidence"`
	MaxAnomalies      int           `koanf:"max_anomalies"`
	ReprofileInterval time.Duration `koanf:"reprofile_interval"`
	ClusterOverlap    float64       `koanf:"cluster_overlap"`
}

type PrivacyConfig struct {
	Epsilon     float64 `koanf:"epsilon"`
	Delta       float64 `koanf:"delta"`
	Sensitivity float64 `koanf:"sensitivity"`
	TotalBudget float64 `koanf:"total_budget"`
	Mechanism   string  `koanf:"mechanism"`
}

type ModelsConfig struct {
	Enabled                 bool    `koanf:"enabled"`
	ArtifactDir             string  `koanf:"artifact_dir"`
	ReconstructionThreshold float64 `koanf:"reconstruction_threshold"`
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load defaults
	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			MetricsPort:     9090,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Engine: EngineConfig{
			MinSupport:        0.1,
			MinPatternLength:  2,
			MaxPatternLength:  10,
			MinConfidence:     0.5,
			MaxAnomalies:      20,
			ReprofileInterval: 5 * time.Minute,
			ClusterOverlap:    0.3,
		},
		Privacy: PrivacyConfig{
			Epsilon:     0.1,
			Delta:       1e-5,
			Sensitivity: 1.0,
			TotalBudget: 1.0,
			Mechanism:   "laplace",
		},
		Models: ModelsConfig{
			Enabled:                 true,
			ArtifactDir:             "models",
			ReconstructionThreshold: 0.1,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Load from config file if exists
	if err := k.Load(file.Provider("configs/config.yaml"), yaml.Parser()); err != nil {
		// Config file is optional, only log if it's not a "file not found" error
	}

	// Override with environment variables
	if err := k.Load(env.Provider("BTE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "BTE_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
