package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moasq/storecheck/internal/report"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	v := newViper(t)

	used, err := ReadConfig(v, "")
	require.NoError(t, err)
	assert.Empty(t, used)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, report.FormatText, cfg.ReportFormat())
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
	assert.False(t, cfg.Strict)
	assert.Zero(t, cfg.Parallel)
}

func TestLoadFromDefaultFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".storecheck.yml"), []byte(`
format: sarif
strict: true
prior_build: "41"
parallel: 2
source:
  exclude_dirs: [ThirdParty, Generated]
screenshots:
  devices: [iphone-6.7]
watch:
  debounce: 2s
`), 0o644))
	v := newViper(t)

	used, err := ReadConfig(v, "")
	require.NoError(t, err)
	assert.Equal(t, ".storecheck.yml", filepath.Base(used))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, report.FormatSARIF, cfg.ReportFormat())
	assert.True(t, cfg.Strict)
	assert.Equal(t, "41", cfg.PriorBuild)
	assert.Equal(t, 2, cfg.Parallel)
	assert.Equal(t, []string{"ThirdParty", "Generated"}, cfg.Source.ExcludeDirs)
	assert.Equal(t, []string{"iphone-6.7"}, cfg.Screenshots.Devices)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
}

func TestConfigFilePrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	flagFile := filepath.Join(dir, "flag.yml")
	envFile := filepath.Join(dir, "env.yml")
	require.NoError(t, os.WriteFile(flagFile, []byte("format: json\n"), 0o644))
	require.NoError(t, os.WriteFile(envFile, []byte("format: markdown\n"), 0o644))
	t.Setenv(ConfigFileEnv, envFile)

	v := newViper(t)
	_, err := ReadConfig(v, flagFile)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Format)

	v = newViper(t)
	_, err = ReadConfig(v, "")
	require.NoError(t, err)
	cfg, err = Load(v)
	require.NoError(t, err)
	assert.Equal(t, "markdown", cfg.Format)
}

func TestExplicitConfigMustExist(t *testing.T) {
	_, err := ReadConfig(newViper(t), filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORECHECK_FORMAT", "markdown")
	t.Setenv("STORECHECK_STRICT", "true")
	t.Setenv("STORECHECK_WATCH_DEBOUNCE", "750ms")
	v := newViper(t)

	_, err := ReadConfig(v, "")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "markdown", cfg.Format)
	assert.True(t, cfg.Strict)
	assert.Equal(t, 750*time.Millisecond, cfg.Watch.Debounce)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{Format: "text", LogLevel: "info"}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"format", func(c *Config) { c.Format = "html" }, "format"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"prior build", func(c *Config) { c.PriorBuild = "1.x" }, "prior_build"},
		{"parallel", func(c *Config) { c.Parallel = -1 }, "parallel"},
		{"debounce", func(c *Config) { c.Watch.Debounce = -time.Second }, "watch.debounce"},
		{"rules dir", func(c *Config) { c.RulesDir = filepath.Join(t.TempDir(), "none") }, "rules_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateReportsAllErrors(t *testing.T) {
	cfg := Config{Format: "html", LogLevel: "loud", Parallel: -2}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "format")
	assert.ErrorContains(t, err, "log_level")
	assert.ErrorContains(t, err, "parallel")
}
