package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func clearKeyEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("CSVCHAT_API_KEY", "")
}

func TestLoadDefaults(t *testing.T) {
	clearKeyEnv(t)
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.DefaultModel != DefaultModel {
		t.Fatalf("default model = %s", c.DefaultModel)
	}
	if !c.Stream || c.HTTPTimeoutSec != 120 || c.RetryMaxAttempts != 1 {
		t.Fatalf("unexpected client defaults: %+v", c)
	}
	if c.ListenAddr != "127.0.0.1:8501" || c.MaxUploadMB != 200 || c.LogFormat != "text" {
		t.Fatalf("unexpected web defaults: %+v", c)
	}
	if c.APIKey != "" {
		t.Fatalf("api key should be empty, got %q", c.APIKey)
	}
}

func TestLoadPrecedence(t *testing.T) {
	clearKeyEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Save(&Global{DefaultModel: "llama3-8b-8192", GridMaxRows: 10, APIKey: "gsk_file"}, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.DefaultModel != "llama3-8b-8192" || c.GridMaxRows != 10 || c.APIKey != "gsk_file" {
		t.Fatalf("file values not applied: %+v", c)
	}
	if c.APIKeySource != SourceConfig {
		t.Fatalf("key source = %q, want %q", c.APIKeySource, SourceConfig)
	}

	t.Setenv("CSVCHAT_GRID_MAX_ROWS", "25")
	t.Setenv("GROQ_API_KEY", "gsk_env")
	c, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.GridMaxRows != 25 {
		t.Fatalf("env should override file, got %d", c.GridMaxRows)
	}
	if c.APIKey != "gsk_env" || c.APIKeySource != SourceEnv {
		t.Fatalf("GROQ_API_KEY should override file, got %q from %q", c.APIKey, c.APIKeySource)
	}
}

func TestLoadFileIgnoresEnvironment(t *testing.T) {
	clearKeyEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Save(&Global{DefaultModel: "llama3-8b-8192", Stream: true, GridMaxRows: 10}, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	t.Setenv("GROQ_API_KEY", "gsk_env")
	t.Setenv("CSVCHAT_GRID_MAX_ROWS", "25")

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.APIKey != "" || c.APIKeySource != "" {
		t.Fatalf("environment key leaked into file config: %q", c.APIKey)
	}
	if c.GridMaxRows != 10 || c.DefaultModel != "llama3-8b-8192" {
		t.Fatalf("file values not applied: %+v", c)
	}
}

func TestLoadUnsupportedModelFallsBack(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("CSVCHAT_DEFAULT_MODEL", "gpt-4")
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.DefaultModel != DefaultModel {
		t.Fatalf("expected fallback to %s, got %s", DefaultModel, c.DefaultModel)
	}
}

func TestSaveIsPrivate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := Save(&Global{APIKey: "gsk_secret"}, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("perm = %o, want 600", info.Mode().Perm())
	}
}

func TestLoadDotEnv(t *testing.T) {
	const fromFile, preset = "CSVCHAT_TEST_DOTENV_A", "CSVCHAT_TEST_DOTENV_B"
	t.Cleanup(func() { os.Unsetenv(fromFile) })
	t.Setenv(preset, "kept")

	path := filepath.Join(t.TempDir(), ".env")
	content := fromFile + "=from_dotenv\n" + preset + "=ignored\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	n, err := LoadDotEnv(path)
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if n != 1 {
		t.Fatalf("applied = %d, want 1", n)
	}
	if got := os.Getenv(fromFile); got != "from_dotenv" {
		t.Fatalf("%s = %q", fromFile, got)
	}
	if got := os.Getenv(preset); got != "kept" {
		t.Fatalf("existing env var overwritten: %q", got)
	}

	n, err = LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"))
	if err != nil || n != 0 {
		t.Fatalf("missing dotenv should be ignored, got n=%d err=%v", n, err)
	}
}

func TestResolve(t *testing.T) {
	cases := []struct {
		name       string
		cfg        *Global
		manual     string
		model      string
		wantKey    string
		wantSource KeySource
		wantModel  string
	}{
		{"env wins", &Global{APIKey: "gsk_env", DefaultModel: DefaultModel}, "gsk_manual", "mixtral-8x7b-32768", "gsk_env", SourceEnv, "mixtral-8x7b-32768"},
		{"config file", &Global{APIKey: "gsk_file", APIKeySource: SourceConfig, DefaultModel: DefaultModel}, "gsk_manual", "", "gsk_file", SourceConfig, DefaultModel},
		{"manual fallback", &Global{DefaultModel: DefaultModel}, " gsk_manual ", "", "gsk_manual", SourceManual, DefaultModel},
		{"missing", &Global{DefaultModel: "llama3-8b-8192"}, "  ", "gpt-4", "", SourceMissing, "llama3-8b-8192"},
		{"nil config", nil, "", "", "", SourceMissing, DefaultModel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Resolve(tc.cfg, tc.manual, tc.model)
			if res.APIKey != tc.wantKey || res.Source != tc.wantSource || res.Model != tc.wantModel {
				t.Fatalf("got %+v", res)
			}
			if res.HasKey() != (tc.wantKey != "") {
				t.Fatalf("HasKey mismatch for %+v", res)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := (&Global{LogLevel: in}).SlogLevel(); got != want {
			t.Fatalf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
