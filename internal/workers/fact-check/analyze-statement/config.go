package analyzestatement

import (
	"fmt"
	"time"

	"statement-analyzer/internal/common/config"
)

type Config struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxJobsActive     int           `mapstructure:"max_jobs_active"`
	Timeout           time.Duration `mapstructure:"timeout"` // whole job, used by Handle
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
	SearchTimeout     time.Duration `mapstructure:"search_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:           false,
		MaxJobsActive:     5,
		Timeout:           90 * time.Second,
		GenerationTimeout: 60 * time.Second,
		SearchTimeout:     10 * time.Second,
	}
}

// LoadConfig derives the orchestrator settings from the application config.
func LoadConfig(appCfg *config.Config) *Config {
	cfg := DefaultConfig()
	if appCfg == nil {
		return cfg
	}

	if appCfg.APIs.GenAI.Timeout > 0 {
		cfg.GenerationTimeout = config.GetDuration(appCfg.APIs.GenAI.Timeout)
	}
	if appCfg.APIs.WebSearch.Timeout > 0 {
		cfg.SearchTimeout = config.GetDuration(appCfg.APIs.WebSearch.Timeout)
	}

	worker := config.GetWorkerConfig(appCfg, TaskType)
	cfg.Enabled = worker.Enabled
	if worker.MaxJobsActive > 0 {
		cfg.MaxJobsActive = worker.MaxJobsActive
	}
	if worker.Timeout > 0 {
		cfg.Timeout = config.GetDuration(worker.Timeout)
	}
	return cfg
}

func (c *Config) Validate() error {
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("generation_timeout must be positive")
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("search_timeout must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	return nil
}
