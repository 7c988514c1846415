package config

import (
	"strings"

	"github.com/KaramelBytes/csvchat/internal/ai"
)

// EnvAPIKey is the environment variable holding the Groq API key.
const EnvAPIKey = "GROQ_API_KEY"

// DefaultModel is used when no valid model is configured.
const DefaultModel = "llama3-70b-8192"

// KeySource tells where the effective API key came from.
type KeySource string

const (
	SourceEnv     KeySource = "environment"
	SourceConfig  KeySource = "config"
	SourceManual  KeySource = "manual"
	SourceMissing KeySource = "missing"
)

// Resolution is the effective configuration for one chat event.
type Resolution struct {
	APIKey string
	Source KeySource
	Model  string
}

// HasKey reports whether an API key is available.
func (r Resolution) HasKey() bool { return r.APIKey != "" }

// Resolve picks the API key from the loaded configuration (environment, .env
// or config file) and falls back to the manually entered key. A configured key
// with no recorded source counts as coming from the environment. The key format
// is not validated; a bad key surfaces on the first remote call.
func Resolve(c *Global, manualKey, model string) Resolution {
	res := Resolution{Source: SourceMissing}
	fallback := DefaultModel
	if c != nil {
		fallback = c.DefaultModel
		if k := strings.TrimSpace(c.APIKey); k != "" {
			res.APIKey = k
			res.Source = SourceEnv
			if c.APIKeySource != "" {
				res.Source = c.APIKeySource
			}
		}
	}
	if res.APIKey == "" {
		if k := strings.TrimSpace(manualKey); k != "" {
			res.APIKey = k
			res.Source = SourceManual
		}
	}
	res.Model = ResolveModel(model, fallback)
	return res
}

// ResolveModel returns model when it is supported, else fallback when that is
// supported, else DefaultModel.
func ResolveModel(model, fallback string) string {
	if ai.IsSupported(model) {
		return model
	}
	if ai.IsSupported(fallback) {
		return fallback
	}
	return DefaultModel
}
