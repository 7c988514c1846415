package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	cfgpkg "github.com/KaramelBytes/csvchat/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	envFile string
	debug   bool
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "csvchat",
	Short: "csvchat: upload CSV files and chat with your data",
	Long: `csvchat loads one or more CSV files, summarizes them into a system prompt and
answers questions about them with a Groq hosted model. Run 'csvchat serve' for
the web UI or 'csvchat ask' from the terminal.`,
}

// Execute is the entry point called by main.main()
func Execute() {
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.csvchat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the config")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func loadConfig() {
	if _, err := cfgpkg.LoadDotEnv(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to read %s: %v\n", envFile, err)
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c
	applyOverrides(cfg)
}

// requireConfig returns the loaded config, loading it on first use.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	applyOverrides(cfg)
	return cfg, nil
}

func applyOverrides(c *cfgpkg.Global) {
	f := rootCmd.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		c.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		c.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		c.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		c.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
	if debug {
		c.LogLevel = "debug"
	}
}

// newLogger builds the process logger from log_level and log_format.
func newLogger(w io.Writer, c *cfgpkg.Global) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
