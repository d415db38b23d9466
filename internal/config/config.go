package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileNames are the config file names looked up in the project root, in
// order.
var FileNames = []string{"logicgate.yml", "logicgate.yaml"}

// Defaults.
const (
	DefaultDepth             = 5
	DefaultOracleTimeout     = 2 * time.Minute
	DefaultOracleConcurrency = 4
)

// ProjectConfig holds project-level settings loaded from logicgate.yml.
type ProjectConfig struct {
	// Workers bounds concurrent parses. Zero uses GOMAXPROCS.
	Workers int `yaml:"workers,omitempty" validate:"gte=0,lte=256"`

	// Depth is the default slice depth.
	Depth int `yaml:"depth,omitempty" validate:"gte=0,lte=64"`

	// ExcludeDirs replaces the default discovery exclusions when set.
	ExcludeDirs []string `yaml:"excludeDirs,omitempty" validate:"dive,required"`

	// Extensions limits discovery to these file extensions.
	Extensions []string `yaml:"extensions,omitempty" validate:"dive,oneof=.js .jsx .mjs .cjs .ts .mts .cts .tsx"`

	// QueryDir holds replacement .scm query files.
	QueryDir string `yaml:"queryDir,omitempty"`

	// CacheDir enables the on-disk record cache.
	CacheDir string `yaml:"cacheDir,omitempty"`

	Oracle OracleConfig `yaml:"oracle,omitempty"`
	Neo4j  Neo4jConfig  `yaml:"neo4j,omitempty"`
}

// OracleConfig locates the remote audit agent.
type OracleConfig struct {
	Endpoint    string        `yaml:"endpoint,omitempty" validate:"omitempty,url"`
	Timeout     time.Duration `yaml:"timeout,omitempty" validate:"gte=0"`
	Concurrency int           `yaml:"concurrency,omitempty" validate:"gte=0,lte=64"`
}

// Neo4jConfig holds Neo4j connection settings for graph export.
type Neo4jConfig struct {
	URI      string `yaml:"uri,omitempty" validate:"omitempty,uri"`
	User     string `yaml:"user,omitempty" validate:"required_with=URI"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

var validate = validator.New()

// Default returns the configuration used when no file exists.
func Default() *ProjectConfig {
	return &ProjectConfig{
		Depth: DefaultDepth,
		Oracle: OracleConfig{
			Timeout:     DefaultOracleTimeout,
			Concurrency: DefaultOracleConcurrency,
		},
	}
}

// Load attempts to read logicgate.yml or logicgate.yaml from the given
// directory. Returns the defaults (not an error) if no config file exists.
// Unset fields keep their defaults. LOGICGATE_NEO4J_PASSWORD, when set,
// overrides the Neo4j password so it need not be committed.
func Load(dir string) (*ProjectConfig, error) {
	cfg := Default()
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		break
	}
	if pw := os.Getenv("LOGICGATE_NEO4J_PASSWORD"); pw != "" {
		cfg.Neo4j.Password = pw
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and formats.
func (c *ProjectConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ResolvePath returns p relative to dir unless it is empty or absolute.
func ResolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
