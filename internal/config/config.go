// Package config provides configuration for kute runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/onewhl/kute/internal/mapper"
	"github.com/onewhl/kute/internal/model"
	"github.com/onewhl/kute/internal/sink"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds run configuration.
type Config struct {
	// Projects is the file listing one project locator per line.
	Projects string `yaml:"projects"`
	// OutputFormats is a comma-separated list of csv, json and sqlite.
	OutputFormats string `yaml:"output_formats"`
	// OutputPath is the output file, or a directory when several formats
	// are requested.
	OutputPath string `yaml:"output_path"`
	// CompressJSON writes results.json.zst instead of results.json.
	CompressJSON bool `yaml:"compress_json"`
	// RepoStorage is where remote projects are cloned.
	RepoStorage string `yaml:"repo_storage"`
	// IOThreads and CPUThreads size the fetch and processing pools; zero
	// means unbounded.
	IOThreads  int `yaml:"io_threads"`
	CPUThreads int `yaml:"cpu_threads"`
	// ParseWorkers bounds concurrent file parsing within one project. Zero
	// means one worker when CPUThreads is set and GOMAXPROCS otherwise.
	ParseWorkers int `yaml:"parse_workers"`
	// Cleanup removes cloned projects once they are processed.
	Cleanup bool `yaml:"cleanup"`
	// MethodStrategy is "last-call" or "name-match".
	MethodStrategy string   `yaml:"method_strategy"`
	Languages      []string `yaml:"languages"`
	// PathPrefilter limits Gradle and Maven projects to test-source roots.
	PathPrefilter bool `yaml:"path_prefilter"`
	// Ignore holds extra gitignore-style patterns skipped during discovery.
	Ignore []string `yaml:"ignore"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// MetricsFile, when set, receives Prometheus metrics at the end of a run.
	MetricsFile string `yaml:"metrics_file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Projects:       "projects.txt",
		OutputFormats:  "csv",
		OutputPath:     "results",
		RepoStorage:    "repos",
		IOThreads:      1,
		CPUThreads:     max(runtime.NumCPU()-1, 1),
		Cleanup:        true,
		MethodStrategy: mapper.StrategyLastCall,
		Languages:      []string{"java", "kotlin"},
		PathPrefilter:  true,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and KUTE_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() {
	c.Projects = getEnv("KUTE_PROJECTS", c.Projects)
	c.OutputFormats = getEnv("KUTE_OUTPUT_FORMATS", c.OutputFormats)
	c.OutputPath = getEnv("KUTE_OUTPUT_PATH", c.OutputPath)
	c.CompressJSON = getEnvBool("KUTE_COMPRESS_JSON", c.CompressJSON)
	c.RepoStorage = getEnv("KUTE_REPO_STORAGE", c.RepoStorage)
	c.IOThreads = getEnvInt("KUTE_IO_THREADS", c.IOThreads)
	c.CPUThreads = getEnvInt("KUTE_CPU_THREADS", c.CPUThreads)
	c.ParseWorkers = getEnvInt("KUTE_PARSE_WORKERS", c.ParseWorkers)
	c.Cleanup = getEnvBool("KUTE_CLEANUP", c.Cleanup)
	c.MethodStrategy = getEnv("KUTE_METHOD_STRATEGY", c.MethodStrategy)
	if v := getEnv("KUTE_LANGUAGES", ""); v != "" {
		c.Languages = splitList(v)
	}
	c.PathPrefilter = getEnvBool("KUTE_PATH_PREFILTER", c.PathPrefilter)
	c.LogLevel = getEnv("KUTE_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("KUTE_LOG_FORMAT", c.LogFormat)
	c.MetricsFile = getEnv("KUTE_METRICS_FILE", c.MetricsFile)
}

// Validate checks field values and returns an error wrapping ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.OutputTypes(); err != nil {
		errs = append(errs, err)
	}
	if c.OutputPath == "" {
		errs = append(errs, errors.New("output path is empty"))
	}
	if c.IOThreads < 0 {
		errs = append(errs, fmt.Errorf("io threads must not be negative, got %d", c.IOThreads))
	}
	if c.CPUThreads < 0 {
		errs = append(errs, fmt.Errorf("cpu threads must not be negative, got %d", c.CPUThreads))
	}
	if c.ParseWorkers < 0 {
		errs = append(errs, fmt.Errorf("parse workers must not be negative, got %d", c.ParseWorkers))
	}
	if _, err := mapper.NewMethodMapper(c.MethodStrategy); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Langs(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// OutputTypes parses OutputFormats.
func (c *Config) OutputTypes() ([]sink.OutputType, error) {
	return sink.ParseOutputTypes(c.OutputFormats)
}

// Langs parses Languages. An empty list selects every language.
func (c *Config) Langs() ([]model.Lang, error) {
	if len(c.Languages) == 0 {
		return model.Languages, nil
	}
	var out []model.Lang
	seen := map[model.Lang]bool{}
	for _, s := range c.Languages {
		l, err := model.ParseLang(s)
		if err != nil {
			return nil, err
		}
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
