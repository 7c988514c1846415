package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KaramelBytes/csvchat/internal/ai"
	cfgpkg "github.com/KaramelBytes/csvchat/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set csvchat configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "api_key: %s\n", mask(c.APIKey))
		fmt.Fprintf(out, "default_model: %s\n", c.DefaultModel)
		fmt.Fprintf(out, "base_url: %s\n", c.BaseURL)
		fmt.Fprintf(out, "stream: %t\n", c.Stream)
		fmt.Fprintf(out, "max_tokens: %d\n", c.MaxTokens)
		fmt.Fprintf(out, "temperature: %.3f\n", c.Temperature)
		fmt.Fprintf(out, "http_timeout_sec: %d\n", c.HTTPTimeoutSec)
		fmt.Fprintf(out, "retry_max_attempts: %d\n", c.RetryMaxAttempts)
		fmt.Fprintf(out, "retry_base_delay_ms: %d\n", c.RetryBaseDelayMs)
		fmt.Fprintf(out, "retry_max_delay_ms: %d\n", c.RetryMaxDelayMs)
		fmt.Fprintf(out, "listen_addr: %s\n", c.ListenAddr)
		fmt.Fprintf(out, "max_upload_mb: %d\n", c.MaxUploadMB)
		fmt.Fprintf(out, "grid_max_rows: %d\n", c.GridMaxRows)
		fmt.Fprintf(out, "session_ttl_min: %d\n", c.SessionTTLMin)
		fmt.Fprintf(out, "rate_limit_rps: %.2f\n", c.RateLimitRPS)
		fmt.Fprintf(out, "rate_limit_burst: %d\n", c.RateLimitBurst)
		fmt.Fprintf(out, "production: %t\n", c.Production)
		fmt.Fprintf(out, "log_level: %s\n", c.LogLevel)
		fmt.Fprintf(out, "log_format: %s\n", c.LogFormat)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		// edit the file alone so env keys and flag overrides stay out of it
		c, err := cfgpkg.LoadFile(cfgFile)
		if err != nil {
			return err
		}
		if err := setConfigValue(c, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	switch key {
	case "api_key":
		c.APIKey = val
	case "default_model":
		if !ai.IsSupported(val) {
			return fmt.Errorf("unsupported default_model: %s (see 'csvchat models')", val)
		}
		c.DefaultModel = val
	case "base_url":
		c.BaseURL = val
	case "stream":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for stream: %w", err)
		}
		c.Stream = b
	case "production":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for production: %w", err)
		}
		c.Production = b
	case "temperature", "rate_limit_rps":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("invalid float for %s: %v", key, val)
		}
		if key == "temperature" {
			c.Temperature = f
		} else {
			c.RateLimitRPS = f
		}
	case "max_tokens", "http_timeout_sec", "retry_max_attempts", "retry_base_delay_ms",
		"retry_max_delay_ms", "max_upload_mb", "grid_max_rows", "session_ttl_min", "rate_limit_burst":
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for %s: %v", key, val)
		}
		*intField(c, key) = i
	case "listen_addr":
		c.ListenAddr = val
	case "log_level":
		switch strings.ToLower(val) {
		case "debug", "info", "warn", "warning", "error":
			c.LogLevel = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_level: %s (use debug|info|warn|error)", val)
		}
	case "log_format":
		switch strings.ToLower(val) {
		case "text", "json":
			c.LogFormat = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_format: %s (use text or json)", val)
		}
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func intField(c *cfgpkg.Global, key string) *int {
	switch key {
	case "max_tokens":
		return &c.MaxTokens
	case "http_timeout_sec":
		return &c.HTTPTimeoutSec
	case "retry_max_attempts":
		return &c.RetryMaxAttempts
	case "retry_base_delay_ms":
		return &c.RetryBaseDelayMs
	case "retry_max_delay_ms":
		return &c.RetryMaxDelayMs
	case "max_upload_mb":
		return &c.MaxUploadMB
	case "grid_max_rows":
		return &c.GridMaxRows
	case "session_ttl_min":
		return &c.SessionTTLMin
	default:
		return &c.RateLimitBurst
	}
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
