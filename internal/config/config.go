package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "infraforge"
	configType = "yaml"
)

// Config is the full runtime configuration. Values come from an optional
// infraforge.yaml, overridden by INFRAFORGE_* environment variables.
type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Operations OperationsConfig `mapstructure:"operations"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Cloud      CloudConfig      `mapstructure:"cloud"`
	Debug      bool             `mapstructure:"debug"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type WorkspaceConfig struct {
	Root string `mapstructure:"root"`
}

type PipelineConfig struct {
	Retries int `mapstructure:"retries"`
}

type OperationsConfig struct {
	RetentionWindow  time.Duration `mapstructure:"retention_window"`
	ExecutionCeiling time.Duration `mapstructure:"execution_ceiling"`
	ReaperInterval   time.Duration `mapstructure:"reaper_interval"`
}

type LLMConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
}

type CloudConfig struct {
	Region string `mapstructure:"region"`
}

// Load reads configuration from the working directory and the environment.
// A missing config file is fine; defaults cover every key.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.infraforge")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("database.path", "infraforge.db")
	v.SetDefault("workspace.root", "workspaces")
	v.SetDefault("pipeline.retries", 3)
	v.SetDefault("operations.retention_window", 5*time.Minute)
	v.SetDefault("operations.execution_ceiling", 15*time.Minute)
	v.SetDefault("operations.reaper_interval", 30*time.Second)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "")
	v.SetDefault("cloud.region", "us-east-1")
	v.SetDefault("debug", false)

	v.SetEnvPrefix("INFRAFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Operations.RetentionWindow <= 0 {
		return fmt.Errorf("operations.retention_window must be positive")
	}
	if c.Operations.ExecutionCeiling <= 0 {
		return fmt.Errorf("operations.execution_ceiling must be positive")
	}
	if c.Pipeline.Retries <= 0 {
		return fmt.Errorf("pipeline.retries must be positive")
	}
	return nil
}
