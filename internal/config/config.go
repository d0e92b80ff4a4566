package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/user/ghg-dashboard/internal/collector"
	"github.com/user/ghg-dashboard/internal/csvtable"
	"github.com/user/ghg-dashboard/pkg/topojson"
)

// DefaultPath is where the CLI looks for a config file when --config is not given.
const DefaultPath = "ghg-dashboard.yaml"

// Config holds the settings shared by all commands.
type Config struct {
	Parser   string `yaml:"parser"`
	Encoding string `yaml:"encoding"`
	CacheDir string `yaml:"cache_dir"`
	NoCache  bool   `yaml:"no_cache"`
	Verbose  bool   `yaml:"verbose"`

	// Geometry is the TopoJSON file or URL drawn by the map.
	Geometry       string `yaml:"geometry"`
	GeometryObject string `yaml:"geometry_object"`

	HTTPTimeout string `yaml:"http_timeout"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Parser:         csvtable.ModeNaive,
		Encoding:       "utf-8",
		CacheDir:       collector.DefaultCacheDir,
		Geometry:       filepath.Join("data", "canada.json"),
		GeometryObject: topojson.DefaultObject,
		HTTPTimeout:    "30s",
	}
}

// Load reads a YAML config file over the defaults and applies GHG_*
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the environment without
// replacing ones already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"GHG_PARSER":       &c.Parser,
		"GHG_ENCODING":     &c.Encoding,
		"GHG_CACHE_DIR":    &c.CacheDir,
		"GHG_GEOMETRY":     &c.Geometry,
		"GHG_OBJECT":       &c.GeometryObject,
		"GHG_HTTP_TIMEOUT": &c.HTTPTimeout,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"GHG_NO_CACHE": &c.NoCache,
		"GHG_VERBOSE":  &c.Verbose,
	}
	for key, dst := range bools {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
		*dst = b
	}
	return nil
}

// Timeout parses HTTPTimeout. An empty value means no timeout.
func (c *Config) Timeout() (time.Duration, error) {
	if c.HTTPTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.HTTPTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid http_timeout %q: %w", c.HTTPTimeout, err)
	}
	return d, nil
}

// Validate checks the values the collector cannot recover from.
func (c *Config) Validate() error {
	switch c.Parser {
	case csvtable.ModeNaive, csvtable.ModeRFC4180:
	default:
		return fmt.Errorf("%w: %q", csvtable.ErrUnknownMode, c.Parser)
	}
	if _, err := csvtable.Decode(nil, c.Encoding); err != nil {
		return err
	}
	if c.GeometryObject == "" {
		return fmt.Errorf("geometry_object must not be empty")
	}
	_, err := c.Timeout()
	return err
}
