package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "verimap.yaml"

type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text or json
	} `yaml:"log"`
	Indexer struct {
		Workers     int      `yaml:"workers"`
		Ignore      []string `yaml:"ignore"`
		BlockMacros []string `yaml:"block_macros"`
		CfgMacros   []string `yaml:"cfg_macros"`
	} `yaml:"indexer"`
	SCIP struct {
		TypeContextLines int `yaml:"type_context_lines"`
		TypeHintGap      int `yaml:"type_hint_gap"`
	} `yaml:"scip"`
	Graph struct {
		WithLocations bool `yaml:"with_locations"`
	} `yaml:"graph"`
	Verify struct {
		Lookback      int `yaml:"lookback"`
		ContextLines  int `yaml:"context_lines"`
		LineTolerance int `yaml:"line_tolerance"`
	} `yaml:"verify"`
	Taxonomy struct {
		Path string `yaml:"path"` // empty uses the built-in rules
	} `yaml:"taxonomy"`
	Storage struct {
		DB string `yaml:"db"`
	} `yaml:"storage"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	var cfg Config
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Verify.Lookback = 10
	cfg.Verify.ContextLines = 15
	cfg.Verify.LineTolerance = 5
	return &cfg
}

// LoadConfig reads path over the defaults. A missing file is not an error
// when path is DefaultPath.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	// 2. Load YAML config
	file, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	// 3. Override with Environment Variables if present
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("VERIMAP_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("VERIMAP_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("VERIMAP_DB"); v != "" {
		c.Storage.DB = v
	}
	if v := os.Getenv("VERIMAP_TAXONOMY"); v != "" {
		c.Taxonomy.Path = v
	}
	for name, dst := range map[string]*int{
		"VERIMAP_WORKERS":  &c.Indexer.Workers,
		"VERIMAP_LOOKBACK": &c.Verify.Lookback,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = n
	}
	return nil
}
