package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onewhl/kute/internal/model"
	"github.com/onewhl/kute/internal/sink"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.IOThreads)
	assert.GreaterOrEqual(t, cfg.CPUThreads, 1)
	assert.True(t, cfg.Cleanup)
	assert.Equal(t, "last-call", cfg.MethodStrategy)

	langs, err := cfg.Langs()
	require.NoError(t, err)
	assert.Equal(t, []model.Lang{model.LangJava, model.LangKotlin}, langs)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kute.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
projects: list.txt
output_formats: csv,json
output_path: out
io_threads: 4
cleanup: false
languages: [kotlin]
ignore:
  - build/
`), 0644))

	t.Setenv("KUTE_IO_THREADS", "8")
	t.Setenv("KUTE_METHOD_STRATEGY", "name-match")
	t.Setenv("KUTE_CPU_THREADS", "not-a-number")
	t.Setenv("KUTE_PARSE_WORKERS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "list.txt", cfg.Projects)
	assert.Equal(t, "out", cfg.OutputPath)
	assert.Equal(t, 8, cfg.IOThreads)
	assert.Equal(t, Default().CPUThreads, cfg.CPUThreads)
	assert.Equal(t, 2, cfg.ParseWorkers)
	assert.False(t, cfg.Cleanup)
	assert.Equal(t, "name-match", cfg.MethodStrategy)
	assert.Equal(t, []string{"build/"}, cfg.Ignore)
	assert.Equal(t, "text", cfg.LogFormat, "unset keys keep defaults")

	types, err := cfg.OutputTypes()
	require.NoError(t, err)
	assert.Equal(t, []sink.OutputType{sink.CSV, sink.JSON}, types)
	langs, err := cfg.Langs()
	require.NoError(t, err)
	assert.Equal(t, []model.Lang{model.LangKotlin}, langs)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("io_threads: [1"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestEnvLanguages(t *testing.T) {
	t.Setenv("KUTE_LANGUAGES", "kt, java")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"kt", "java"}, cfg.Languages)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"format", func(c *Config) { c.OutputFormats = "xml" }},
		{"no path", func(c *Config) { c.OutputPath = "" }},
		{"io threads", func(c *Config) { c.IOThreads = -1 }},
		{"cpu threads", func(c *Config) { c.CPUThreads = -2 }},
		{"parse workers", func(c *Config) { c.ParseWorkers = -1 }},
		{"strategy", func(c *Config) { c.MethodStrategy = "closest" }},
		{"language", func(c *Config) { c.Languages = []string{"scala"} }},
		{"log format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	cfg := Default()
	cfg.IOThreads, cfg.CPUThreads = 0, 0
	assert.NoError(t, cfg.Validate(), "zero means unbounded")
}
