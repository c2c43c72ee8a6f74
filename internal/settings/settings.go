// Package settings persists the engine configuration: which backend to use
// and the voice and rate for each.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/narration"
	"gopkg.in/yaml.v3"
)

// Common errors
var (
	// ErrUnknownKey is returned by Set for a key that is not a setting.
	ErrUnknownKey = errors.New("unknown setting")

	// ErrInvalidValue is returned when a value fails validation.
	ErrInvalidValue = errors.New("invalid setting value")
)

// Setting keys.
const (
	KeyBackend       = "backend"
	KeyRemoteVoice   = "remoteVoice"
	KeyRemoteSpeed   = "remoteSpeed"
	KeyDeviceVoiceID = "deviceVoiceId"
	KeyDeviceRate    = "deviceRate"
)

// Storage keys. The legacy keys predate the combined record.
const (
	recordKey      = "engine"
	legacyVoiceKey = "voice"
	legacyRateKey  = "rate"
)

const (
	minRemoteSpeed = 0.25
	maxRemoteSpeed = 4.0
	minDeviceRate  = 0.1
	maxDeviceRate  = 10.0

	defaultVoice = "alloy"
	defaultSpeed = 1.0
	defaultRate  = 1.0
)

// EngineConfig is read every time an article starts.
type EngineConfig struct {
	Backend       narration.BackendKind `yaml:"backend"`
	RemoteVoice   string                `yaml:"remoteVoice"`
	RemoteSpeed   float64               `yaml:"remoteSpeed"`
	DeviceVoiceID string                `yaml:"deviceVoiceId"`
	DeviceRate    float64               `yaml:"deviceRate"`
}

// Default returns the configuration used when nothing is stored.
func Default() EngineConfig {
	return EngineConfig{
		Backend:     narration.BackendDevice,
		RemoteVoice: defaultVoice,
		RemoteSpeed: defaultSpeed,
		DeviceRate:  defaultRate,
	}
}

// Validate checks every field.
func (c EngineConfig) Validate() error {
	if c.Backend != narration.BackendDevice && c.Backend != narration.BackendRemote {
		return fmt.Errorf("%w: backend must be device or remote, got %q", ErrInvalidValue, c.Backend)
	}
	if c.RemoteSpeed < minRemoteSpeed || c.RemoteSpeed > maxRemoteSpeed {
		return fmt.Errorf("%w: remoteSpeed must be within %.2f and %.1f, got %v", ErrInvalidValue, minRemoteSpeed, maxRemoteSpeed, c.RemoteSpeed)
	}
	if c.DeviceRate < minDeviceRate || c.DeviceRate > maxDeviceRate {
		return fmt.Errorf("%w: deviceRate must be within %.1f and %.0f, got %v", ErrInvalidValue, minDeviceRate, maxDeviceRate, c.DeviceRate)
	}
	return nil
}

// Values returns the settings as key/value strings, sorted by key.
func (c EngineConfig) Values() [][2]string {
	m := map[string]string{
		KeyBackend:       string(c.Backend),
		KeyRemoteVoice:   c.RemoteVoice,
		KeyRemoteSpeed:   strconv.FormatFloat(c.RemoteSpeed, 'f', -1, 64),
		KeyDeviceVoiceID: c.DeviceVoiceID,
		KeyDeviceRate:    strconv.FormatFloat(c.DeviceRate, 'f', -1, 64),
	}
	out := make([][2]string, 0, len(m))
	for k, v := range m {
		out = append(out, [2]string{k, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Keys lists the settable keys.
func Keys() []string {
	return []string{KeyBackend, KeyRemoteVoice, KeyRemoteSpeed, KeyDeviceVoiceID, KeyDeviceRate}
}

// KV is the key/value storage the settings live in.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Store loads and saves the EngineConfig.
type Store struct {
	kv     KV
	logger *log.Logger
}

// NewStore creates a Store over kv.
func NewStore(kv KV, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{kv: kv, logger: logger}
}

// Load returns the stored configuration. If there is no record yet, legacy
// voice and rate keys are migrated into one and then deleted.
func (s *Store) Load(ctx context.Context) (EngineConfig, error) {
	raw, ok, err := s.kv.Get(ctx, recordKey)
	if err != nil {
		return Default(), err
	}
	if ok {
		cfg := Default()
		if err := yaml.Unmarshal([]byte(raw), &cfg); err != nil {
			return Default(), fmt.Errorf("decode engine settings: %w", err)
		}
		return cfg, nil
	}
	return s.migrate(ctx)
}

func (s *Store) migrate(ctx context.Context) (EngineConfig, error) {
	cfg := Default()

	voice, hasVoice, err := s.kv.Get(ctx, legacyVoiceKey)
	if err != nil {
		return cfg, err
	}
	rate, hasRate, err := s.kv.Get(ctx, legacyRateKey)
	if err != nil {
		return cfg, err
	}
	if !hasVoice && !hasRate {
		return cfg, nil
	}

	if hasVoice {
		cfg.DeviceVoiceID = voice
	}
	if hasRate {
		r, err := strconv.ParseFloat(strings.TrimSpace(rate), 64)
		if err != nil || r < minDeviceRate || r > maxDeviceRate {
			s.logger.Warn("ignoring invalid legacy rate", "rate", rate)
		} else {
			cfg.DeviceRate = r
		}
	}

	if err := s.Save(ctx, cfg); err != nil {
		return cfg, err
	}
	for _, k := range []string{legacyVoiceKey, legacyRateKey} {
		if err := s.kv.Delete(ctx, k); err != nil {
			return cfg, err
		}
	}
	s.logger.Info("migrated legacy settings", "voice", cfg.DeviceVoiceID, "rate", cfg.DeviceRate)
	return cfg, nil
}

// Save validates and stores cfg.
func (s *Store) Save(ctx context.Context, cfg EngineConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode engine settings: %w", err)
	}
	return s.kv.Set(ctx, recordKey, string(data))
}

// Set parses value for key, validates the result and saves it.
func (s *Store) Set(ctx context.Context, key, value string) (EngineConfig, error) {
	cfg, err := s.Load(ctx)
	if err != nil {
		return cfg, err
	}
	if err := apply(&cfg, key, value); err != nil {
		return cfg, err
	}
	if err := s.Save(ctx, cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func apply(cfg *EngineConfig, key, value string) error {
	value = strings.TrimSpace(value)
	switch strings.ToLower(key) {
	case strings.ToLower(KeyBackend):
		kind, err := narration.ParseBackendKind(value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		cfg.Backend = kind
	case strings.ToLower(KeyRemoteVoice):
		cfg.RemoteVoice = value
	case strings.ToLower(KeyDeviceVoiceID):
		cfg.DeviceVoiceID = value
	case strings.ToLower(KeyRemoteSpeed):
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: remoteSpeed %q is not a number", ErrInvalidValue, value)
		}
		cfg.RemoteSpeed = f
	case strings.ToLower(KeyDeviceRate):
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: deviceRate %q is not a number", ErrInvalidValue, value)
		}
		cfg.DeviceRate = f
	default:
		return fmt.Errorf("%w %q (want one of %s)", ErrUnknownKey, key, strings.Join(Keys(), ", "))
	}
	return nil
}

// Static is a fixed configuration source.
type Static EngineConfig

// Load returns the fixed configuration.
func (s Static) Load(context.Context) (EngineConfig, error) {
	return EngineConfig(s), nil
}
