package cmd

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	cfgpkg "github.com/KaramelBytes/twincheck-cli/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set twincheck configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := currentConfig()
		fmt.Printf("tolerance_percent: %g\n", c.TolerancePercent)
		fmt.Printf("pair_only: %t\n", c.PairOnly)
		fmt.Printf("group_epsilon: %g\n", c.GroupEpsilon)
		fmt.Printf("alpha: %g\n", c.Alpha)
		fmt.Printf("results_sheet: %s\n", c.ResultsSheet)
		fmt.Printf("sample_skip_rows: %d\n", c.SampleSkipRows)
		fmt.Printf("curve_points: %d\n", c.CurvePoints)
		fmt.Printf("curve_samples: %d\n", c.CurveSamples)
		fmt.Printf("fiber_jitter: %g\n", c.FiberJitter)
		fmt.Printf("polymer_jitter: %g\n", c.PolymerJitter)
		fmt.Printf("server_addr: %s\n", c.ServerAddr)
		fmt.Printf("request_timeout_sec: %d\n", c.RequestTimeoutSec)
		fmt.Printf("max_upload_mb: %d\n", c.MaxUploadMB)
		fmt.Printf("cors_origins: %s\n", strings.Join(c.CORSOrigins, ","))
		fmt.Printf("http_timeout_sec: %d\n", c.HTTPTimeoutSec)
		fmt.Printf("retry_max_attempts: %d\n", c.RetryMaxAttempts)
		fmt.Printf("retry_base_delay_ms: %d\n", c.RetryBaseDelayMs)
		fmt.Printf("retry_max_delay_ms: %d\n", c.RetryMaxDelayMs)
		fmt.Printf("log_level: %s\n", c.LogLevel)
		fmt.Printf("log_format: %s\n", c.LogFormat)
		fmt.Printf("studies_dir: %s\n", c.StudiesDir)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := setConfigValue(cfg, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Println("Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	var err error
	switch key {
	case "tolerance_percent":
		c.TolerancePercent, err = nonNegFloat(key, val)
	case "pair_only":
		c.PairOnly, err = strconv.ParseBool(val)
		if err != nil {
			err = fmt.Errorf("invalid bool for pair_only: %v", val)
		}
	case "group_epsilon":
		c.GroupEpsilon, err = nonNegFloat(key, val)
	case "alpha":
		f, perr := strconv.ParseFloat(val, 64)
		if perr != nil || math.IsNaN(f) || f <= 0 || f >= 1 {
			return fmt.Errorf("invalid alpha: %v (must be in (0, 1))", val)
		}
		c.Alpha = f
	case "results_sheet":
		c.ResultsSheet = val
	case "sample_skip_rows":
		c.SampleSkipRows, err = nonNegInt(key, val)
	case "curve_points":
		c.CurvePoints, err = nonNegInt(key, val)
	case "curve_samples":
		c.CurveSamples, err = nonNegInt(key, val)
	case "fiber_jitter":
		c.FiberJitter, err = nonNegFloat(key, val)
	case "polymer_jitter":
		c.PolymerJitter, err = nonNegFloat(key, val)
	case "server_addr":
		c.ServerAddr = val
	case "request_timeout_sec":
		c.RequestTimeoutSec, err = nonNegInt(key, val)
	case "max_upload_mb":
		c.MaxUploadMB, err = nonNegInt(key, val)
	case "cors_origins":
		c.CORSOrigins = nil
		for _, o := range strings.Split(val, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSOrigins = append(c.CORSOrigins, o)
			}
		}
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = nonNegInt(key, val)
	case "retry_max_attempts":
		c.RetryMaxAttempts, err = nonNegInt(key, val)
	case "retry_base_delay_ms":
		c.RetryBaseDelayMs, err = nonNegInt(key, val)
	case "retry_max_delay_ms":
		c.RetryMaxDelayMs, err = nonNegInt(key, val)
	case "log_level":
		switch strings.ToLower(val) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_level: %s (use debug, info, warn or error)", val)
		}
	case "log_format":
		switch strings.ToLower(val) {
		case "console", "json":
			c.LogFormat = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_format: %s (use console or json)", val)
		}
	case "studies_dir":
		c.StudiesDir = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return err
}

func nonNegInt(key, val string) (int, error) {
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid int for %s: %v", key, val)
	}
	return i, nil
}

func nonNegFloat(key, val string) (float64, error) {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, fmt.Errorf("invalid float for %s: %v", key, val)
	}
	return f, nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
