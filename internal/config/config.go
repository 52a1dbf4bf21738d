package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/dengue.report/internal/estimate"
	"github.com/banshee-data/dengue.report/internal/sinan"
)

// ExampleConfigPath is the annotated example configuration shipped with the
// repository.
const ExampleConfigPath = "config/dengue.example.yaml"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the run configuration. Every field is optional; the Get*
// methods supply defaults for unset fields, so partial configs are safe.
// Command-line flags override values loaded from a file.
type Config struct {
	// Datasets are yearly export files, one year per file.
	Datasets []string `json:"datasets,omitempty" yaml:"datasets,omitempty"`

	// PartialYear designates the current, incomplete year. Unset means the
	// latest dataset year.
	PartialYear *int `json:"partial_year,omitempty" yaml:"partial_year,omitempty"`

	// Bootstrap params
	BootstrapResamples *int     `json:"bootstrap_resamples,omitempty" yaml:"bootstrap_resamples,omitempty"`
	Confidence         *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Seed               *int64   `json:"seed,omitempty" yaml:"seed,omitempty"` // unset: clock-seeded

	// Input
	Delimiter *string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`

	// Outputs
	OutputDir *string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	DBPath    *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	Listen    *string `json:"listen,omitempty" yaml:"listen,omitempty"`
}

func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }

// LoadConfig loads a Config from a .json, .yaml or .yml file and validates
// it.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", strings.TrimPrefix(ext, "."), err)
	}

	// Relative dataset paths are resolved against the config file.
	base := filepath.Dir(cleanPath)
	for i, d := range cfg.Datasets {
		if d != "" && !filepath.IsAbs(d) {
			cfg.Datasets[i] = filepath.Join(base, d)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.PartialYear != nil && (*c.PartialYear < 1900 || *c.PartialYear > 2999) {
		return fmt.Errorf("partial_year must be a four-digit year, got %d", *c.PartialYear)
	}
	if c.BootstrapResamples != nil && (*c.BootstrapResamples < 1 || *c.BootstrapResamples > estimate.MaxResamples) {
		return fmt.Errorf("bootstrap_resamples must be from 1 to %d, got %d", estimate.MaxResamples, *c.BootstrapResamples)
	}
	if c.Confidence != nil && (*c.Confidence <= 0 || *c.Confidence >= 100) {
		return fmt.Errorf("confidence must be between 0 and 100, got %f", *c.Confidence)
	}
	if c.Delimiter != nil {
		if _, err := sinan.ParseDelimiter(*c.Delimiter); err != nil {
			return fmt.Errorf("delimiter: %w", err)
		}
	}
	for i, d := range c.Datasets {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("datasets[%d] is empty", i)
		}
	}
	return nil
}

// SetPartialYear overrides partial_year; zero clears it.
func (c *Config) SetPartialYear(y int) {
	if y == 0 {
		c.PartialYear = nil
		return
	}
	c.PartialYear = ptrInt(y)
}

// SetSeed overrides seed.
func (c *Config) SetSeed(s int64) { c.Seed = ptrInt64(s) }

// SetDBPath overrides db_path.
func (c *Config) SetDBPath(p string) { c.DBPath = ptrString(p) }

// GetPartialYear returns partial_year, or 0 when the latest dataset year
// should be used.
func (c *Config) GetPartialYear() int {
	if c.PartialYear == nil {
		return 0
	}
	return *c.PartialYear
}

// GetBootstrapResamples returns the bootstrap_resamples value or the default.
func (c *Config) GetBootstrapResamples() int {
	if c.BootstrapResamples == nil {
		return estimate.DefaultResamples
	}
	return *c.BootstrapResamples
}

// GetConfidence returns the confidence value or the default.
func (c *Config) GetConfidence() float64 {
	if c.Confidence == nil {
		return estimate.DefaultConfidence
	}
	return *c.Confidence
}

// GetSeed returns the seed and whether one was configured.
func (c *Config) GetSeed() (int64, bool) {
	if c.Seed == nil {
		return 0, false
	}
	return *c.Seed, true
}

// GetDelimiter returns the delimiter value or the default.
func (c *Config) GetDelimiter() string {
	if c.Delimiter == nil {
		return ","
	}
	return *c.Delimiter
}

// GetOutputDir returns the output_dir value or the default.
func (c *Config) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "reports"
	}
	return *c.OutputDir
}

// GetDBPath returns the db_path value or the default.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "dengue.db"
	}
	return *c.DBPath
}

// GetListen returns the listen value or the default.
func (c *Config) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}
