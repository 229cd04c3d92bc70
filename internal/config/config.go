// Package config loads storecheck settings from flags, STORECHECK_
// environment variables and an optional .storecheck.yml file using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/moasq/storecheck/internal/manifest"
	"github.com/moasq/storecheck/internal/report"
)

const (
	// EnvPrefix prefixes every environment override, e.g. STORECHECK_FORMAT.
	EnvPrefix = "STORECHECK"
	// ConfigFileEnv names a config file when --config is not given.
	ConfigFileEnv = "STORECHECK_CONFIG_FILE"
	// DefaultConfigName is looked up in the working directory.
	DefaultConfigName = ".storecheck"
)

// Config holds the effective settings for one invocation.
type Config struct {
	Format      string            `mapstructure:"format"`
	Output      string            `mapstructure:"output"`
	Strict      bool              `mapstructure:"strict"`
	NoColor     bool              `mapstructure:"no_color"`
	LogLevel    string            `mapstructure:"log_level"`
	RulesDir    string            `mapstructure:"rules_dir"`
	PriorBuild  string            `mapstructure:"prior_build"`
	Parallel    int               `mapstructure:"parallel"`
	Source      SourceConfig      `mapstructure:"source"`
	Screenshots ScreenshotsConfig `mapstructure:"screenshots"`
	Watch       WatchConfig       `mapstructure:"watch"`
}

type SourceConfig struct {
	ExcludeDirs []string `mapstructure:"exclude_dirs"`
}

type ScreenshotsConfig struct {
	Devices []string `mapstructure:"devices"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// SetDefaults registers every key so environment overrides resolve even
// without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("format", string(report.FormatText))
	v.SetDefault("output", "")
	v.SetDefault("strict", false)
	v.SetDefault("no_color", false)
	v.SetDefault("log_level", "warn")
	v.SetDefault("rules_dir", "")
	v.SetDefault("prior_build", "")
	v.SetDefault("parallel", 0)
	v.SetDefault("source.exclude_dirs", []string{})
	v.SetDefault("screenshots.devices", []string{})
	v.SetDefault("watch.debounce", 500*time.Millisecond)
}

// ReadConfig locates and reads the config file. The --config flag wins, then
// STORECHECK_CONFIG_FILE, then .storecheck.yml in the working directory. An
// explicitly named file must exist; the default one is optional. It returns
// the file used, or "".
func ReadConfig(v *viper.Viper, cfgFile string) (string, error) {
	explicit := true
	switch {
	case cfgFile != "":
		v.SetConfigFile(cfgFile)
	case os.Getenv(ConfigFileEnv) != "":
		v.SetConfigFile(os.Getenv(ConfigFileEnv))
	default:
		explicit = false
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(DefaultConfigName)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := report.ParseFormat(c.Format); err != nil {
		errs = append(errs, fmt.Errorf("format: %w", err))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.PriorBuild != "" {
		if _, err := manifest.ParseBuildNumber(c.PriorBuild); err != nil {
			errs = append(errs, fmt.Errorf("prior_build: %w", err))
		}
	}
	if c.Parallel < 0 {
		errs = append(errs, fmt.Errorf("parallel: must not be negative, got %d", c.Parallel))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce: must not be negative, got %s", c.Watch.Debounce))
	}
	if c.RulesDir != "" {
		info, err := os.Stat(c.RulesDir)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("rules_dir: %w", err))
		case !info.IsDir():
			errs = append(errs, fmt.Errorf("rules_dir: %s is not a directory", c.RulesDir))
		}
	}
	return errors.Join(errs...)
}

// ReportFormat returns the validated output format.
func (c *Config) ReportFormat() report.Format {
	f, _ := report.ParseFormat(c.Format)
	return f
}
