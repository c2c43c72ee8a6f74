// Package synth requests synthesized speech audio from remote APIs.
package synth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/cache"
	"github.com/dgnsrekt/narrate/internal/narration"
)

// Request is one synthesis call.
type Request struct {
	Text  string
	Model string
	Voice string
	Speed float64
}

// Synthesizer turns text into encoded (MP3) audio bytes. Every error it
// returns is a *narration.Error.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// Provider names.
const (
	ProviderProxy  = "proxy"
	ProviderOpenAI = "openai"
)

// Config configures the remote synthesizer stack.
type Config struct {
	Provider   string        `mapstructure:"provider" yaml:"provider"`
	URL        string        `mapstructure:"url" yaml:"url"`
	Credential string        `mapstructure:"credential" yaml:"credential"`
	Model      string        `mapstructure:"model" yaml:"model"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// RequestsPerMinute limits calls to the API. Zero disables the limit.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// DefaultConfig returns the default remote configuration.
func DefaultConfig() Config {
	return Config{
		Provider:          ProviderProxy,
		URL:               "http://localhost:8787/api/tts",
		Model:             "tts-1",
		Timeout:           60 * time.Second,
		RequestsPerMinute: 50,
	}
}

// New builds the synthesizer described by cfg, wrapped with rate limiting
// and, when store is non-nil, caching. A missing credential yields a
// ConfigurationMissing error.
func New(cfg Config, store cache.Cache, logger *log.Logger) (Synthesizer, error) {
	if logger == nil {
		logger = log.Default()
	}
	if strings.TrimSpace(cfg.Credential) == "" {
		return nil, narration.NewError(narration.KindConfigurationMissing, "remote backend unavailable", narration.ErrNoCredential)
	}

	var s Synthesizer
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderProxy:
		s = NewProxy(cfg)
	case ProviderOpenAI:
		s = NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown remote provider %q", cfg.Provider)
	}

	if cfg.RequestsPerMinute > 0 {
		s = NewLimited(s, cfg.RequestsPerMinute)
	}
	if store != nil {
		s = NewCached(s, store, logger)
	}
	return s, nil
}

func apiError(message string, cause error) error {
	return narration.NewError(narration.KindNetworkOrAPI, message, cause)
}
