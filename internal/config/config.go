package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	// Matching and statistics
	TolerancePercent float64 `mapstructure:"tolerance_percent" yaml:"tolerance_percent"`
	PairOnly         bool    `mapstructure:"pair_only" yaml:"pair_only"`
	GroupEpsilon     float64 `mapstructure:"group_epsilon" yaml:"group_epsilon"`
	Alpha            float64 `mapstructure:"alpha" yaml:"alpha"`

	// Input
	ResultsSheet   string `mapstructure:"results_sheet" yaml:"results_sheet"`
	SampleSkipRows int    `mapstructure:"sample_skip_rows" yaml:"sample_skip_rows"`

	// Curve generation
	CurvePoints   int     `mapstructure:"curve_points" yaml:"curve_points"`
	CurveSamples  int     `mapstructure:"curve_samples" yaml:"curve_samples"`
	FiberJitter   float64 `mapstructure:"fiber_jitter" yaml:"fiber_jitter"`
	PolymerJitter float64 `mapstructure:"polymer_jitter" yaml:"polymer_jitter"`

	// Server
	ServerAddr        string   `mapstructure:"server_addr" yaml:"server_addr"`
	RequestTimeoutSec int      `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`
	MaxUploadMB       int      `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	CORSOrigins       []string `mapstructure:"cors_origins" yaml:"cors_origins"`

	// HTTP/Retry configuration for --remote
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	StudiesDir string `mapstructure:"studies_dir" yaml:"studies_dir"`
}

const dirName = ".twincheck"

// Dir returns ~/.twincheck.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.twincheck/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tolerance_percent", 15.0)
	v.SetDefault("pair_only", false)
	v.SetDefault("group_epsilon", 0.0)
	v.SetDefault("alpha", 0.05)
	v.SetDefault("results_sheet", "Результаты")
	v.SetDefault("sample_skip_rows", 3)
	v.SetDefault("curve_points", 300)
	v.SetDefault("curve_samples", 3)
	v.SetDefault("fiber_jitter", 2.0)
	v.SetDefault("polymer_jitter", 1.0)
	v.SetDefault("server_addr", ":8000")
	v.SetDefault("request_timeout_sec", 120)
	v.SetDefault("max_upload_mb", 32)
	v.SetDefault("cors_origins", []string{"*"})
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

// Defaults returns the built-in configuration without reading any file or
// environment variable.
func Defaults() *Global {
	v := viper.New()
	setDefaults(v)
	var c Global
	_ = v.Unmarshal(&c)
	if dir, err := Dir(); err == nil {
		c.StudiesDir = filepath.Join(dir, "studies")
	}
	return &c
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("TWINCHECK")
	v.AutomaticEnv()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.StudiesDir == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		c.StudiesDir = filepath.Join(dir, "studies")
	}
	return &c, nil
}
