package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"` // "postgres" or "sqlite"
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Collect struct {
		ChunkSize      int      `yaml:"chunk_size"`
		Concurrency    int      `yaml:"concurrency"`
		ChunkDelayMS   int      `yaml:"chunk_delay_ms"`
		ItemTimeoutSec int      `yaml:"item_timeout_sec"`
		Sources        []string `yaml:"sources"`
	} `yaml:"collect"`
	Naver struct {
		BaseURL    string `yaml:"base_url"`
		Burst      int    `yaml:"burst"`
		RefillMS   int    `yaml:"refill_ms"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"naver"`
	FnGuide struct {
		BaseURL    string `yaml:"base_url"`
		Burst      int    `yaml:"burst"`
		RefillMS   int    `yaml:"refill_ms"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"fnguide"`
	Consensus struct {
		TargetYear            int      `yaml:"target_year"` // 0 means current calendar year
		QuadrantMissingPolicy string   `yaml:"quadrant_missing_policy"`
		TargetZoneFVBMin      float64  `yaml:"target_zone_fvb_min"`
		SourcePriority        []string `yaml:"source_priority"`
	} `yaml:"consensus"`
}

func (c *Config) Validate() error {
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("invalid database.driver '%s': must be 'postgres' or 'sqlite'", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn cannot be empty")
	}
	if c.Collect.ChunkSize <= 0 {
		return fmt.Errorf("collect.chunk_size must be positive, got %d", c.Collect.ChunkSize)
	}
	if c.Collect.Concurrency <= 0 {
		return fmt.Errorf("collect.concurrency must be positive, got %d", c.Collect.Concurrency)
	}
	if len(c.Collect.Sources) == 0 {
		return errors.New("collect.sources cannot be empty")
	}
	for _, s := range c.Collect.Sources {
		if s != "naver" && s != "fnguide" {
			return fmt.Errorf("unknown collect source '%s': must be 'naver' or 'fnguide'", s)
		}
	}
	if p := c.Consensus.QuadrantMissingPolicy; p != "exclude" && p != "default_q2" {
		return fmt.Errorf("consensus.quadrant_missing_policy must be 'exclude' or 'default_q2', got '%s'", p)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "consensus-radar.db"
	}
	if c.Collect.ChunkSize == 0 {
		c.Collect.ChunkSize = 200
	}
	if c.Collect.Concurrency == 0 {
		c.Collect.Concurrency = 10
	}
	if c.Collect.ChunkDelayMS == 0 {
		c.Collect.ChunkDelayMS = 500
	}
	if c.Collect.ItemTimeoutSec == 0 {
		c.Collect.ItemTimeoutSec = 20
	}
	if len(c.Collect.Sources) == 0 {
		c.Collect.Sources = []string{"naver"}
	}
	if c.Naver.BaseURL == "" {
		c.Naver.BaseURL = "https://finance.naver.com"
	}
	if c.Naver.Burst == 0 {
		c.Naver.Burst = 5
	}
	if c.Naver.RefillMS == 0 {
		c.Naver.RefillMS = 200
	}
	if c.Naver.TimeoutSec == 0 {
		c.Naver.TimeoutSec = 15
	}
	if c.FnGuide.BaseURL == "" {
		c.FnGuide.BaseURL = "https://comp.fnguide.com"
	}
	if c.FnGuide.Burst == 0 {
		c.FnGuide.Burst = 5
	}
	if c.FnGuide.RefillMS == 0 {
		c.FnGuide.RefillMS = 200
	}
	if c.FnGuide.TimeoutSec == 0 {
		c.FnGuide.TimeoutSec = 15
	}
	if c.Consensus.QuadrantMissingPolicy == "" {
		c.Consensus.QuadrantMissingPolicy = "exclude"
	}
	if c.Consensus.TargetZoneFVBMin == 0 {
		c.Consensus.TargetZoneFVBMin = 1.0
	}
	if len(c.Consensus.SourcePriority) == 0 {
		c.Consensus.SourcePriority = []string{"NAVER", "FNGUIDE"}
	}
}
