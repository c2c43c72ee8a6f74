// Package config loads the narrate configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgnsrekt/narrate/internal/cache"
	"github.com/dgnsrekt/narrate/internal/speech"
	"github.com/dgnsrekt/narrate/internal/synth"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AppName names the config file, the env prefix and the app directories.
const AppName = "narrate"

// FileName is the base name of the config file.
const FileName = AppName + ".yml"

// Config is the application configuration.
type Config struct {
	// StoragePath is the library database. Empty means the user data dir.
	StoragePath string `mapstructure:"storage_path" yaml:"storage_path"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`

	Cache    cache.Config         `mapstructure:"cache" yaml:"cache"`
	Remote   synth.Config         `mapstructure:"remote" yaml:"remote"`
	Device   speech.CommandConfig `mapstructure:"device" yaml:"device"`
	Watchdog WatchdogConfig       `mapstructure:"watchdog" yaml:"watchdog"`
}

// WatchdogConfig configures the on-device keep-alive watchdog.
type WatchdogConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// Default returns the built-in configuration. Paths are left empty and
// resolved against the app directories by Resolve.
func Default() Config {
	return Config{
		LogLevel: "info",
		Cache:    cache.DefaultConfig(),
		Remote:   synth.DefaultConfig(),
		Device:   speech.CommandConfig{BaseWPM: 175},
		Watchdog: WatchdogConfig{Interval: 10 * time.Second},
	}
}

// Paths are the per-user directories narrate uses.
type Paths struct {
	ConfigDirs []string
	DataDir    string
	CacheDir   string
}

// UserPaths resolves the user directories. NARRATE_CONFIG_HOME and
// XDG_CONFIG_HOME take precedence over the platform defaults, in that order.
func UserPaths() (Paths, error) {
	scope := gap.NewScope(gap.User, AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return Paths{}, fmt.Errorf("could not find configuration directory: %w", err)
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}
	if c := os.Getenv("NARRATE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	data, err := scope.DataPath("")
	if err != nil {
		return Paths{}, fmt.Errorf("could not find data directory: %w", err)
	}
	cacheDir, err := scope.CacheDir()
	if err != nil {
		return Paths{}, fmt.Errorf("could not find cache directory: %w", err)
	}
	return Paths{ConfigDirs: dirs, DataDir: data, CacheDir: cacheDir}, nil
}

// DefaultFile is where a new config file is written.
func (p Paths) DefaultFile() string {
	if len(p.ConfigDirs) == 0 {
		return FileName
	}
	return filepath.Join(p.ConfigDirs[0], FileName)
}

// Setup points v at the config dirs, the environment and the defaults.
// Every key gets a default so that NARRATE_* variables are seen by
// Unmarshal.
func Setup(v *viper.Viper, p Paths) {
	for _, d := range p.ConfigDirs {
		v.AddConfigPath(d)
	}
	v.SetConfigName(AppName)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(AppName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v, Default())
}

// SetDefaults registers d as the defaults of v.
func SetDefaults(v *viper.Viper, d Config) {
	v.SetDefault("storage_path", d.StoragePath)
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("cache.memory_capacity", d.Cache.MemoryCapacity)
	v.SetDefault("cache.disk_capacity", d.Cache.DiskCapacity)
	v.SetDefault("cache.dir", d.Cache.DiskPath)
	v.SetDefault("cache.compression_level", d.Cache.CompressionLevel)
	v.SetDefault("cache.max_age", d.Cache.MaxAge)
	v.SetDefault("cache.cleanup_interval", d.Cache.CleanupInterval)

	v.SetDefault("remote.provider", d.Remote.Provider)
	v.SetDefault("remote.url", d.Remote.URL)
	v.SetDefault("remote.credential", d.Remote.Credential)
	v.SetDefault("remote.model", d.Remote.Model)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.requests_per_minute", d.Remote.RequestsPerMinute)

	v.SetDefault("device.program", d.Device.Program)
	v.SetDefault("device.base_wpm", d.Device.BaseWPM)

	v.SetDefault("watchdog.interval", d.Watchdog.Interval)
}

// Read reads the config file if there is one. A missing file is not an
// error; the returned path is empty then.
func Read(v *viper.Viper) (string, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("could not parse configuration file: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// Load decodes v and fills empty paths from p.
func Load(v *viper.Viper, p Paths) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := c.Resolve(p); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Resolve expands ~ in configured paths and fills empty ones from p.
func (c *Config) Resolve(p Paths) error {
	var err error
	if c.StoragePath == "" {
		c.StoragePath = filepath.Join(p.DataDir, "library.db")
	}
	if c.StoragePath, err = ExpandPath(c.StoragePath); err != nil {
		return err
	}
	if c.Cache.DiskPath == "" {
		c.Cache.DiskPath = filepath.Join(p.CacheDir, "audio")
	}
	if c.Cache.DiskPath, err = ExpandPath(c.Cache.DiskPath); err != nil {
		return err
	}
	if c.Device.Program, err = ExpandPath(c.Device.Program); err != nil {
		return err
	}
	return nil
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	p, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("unable to expand %q: %w", path, err)
	}
	return p, nil
}

// LoadDotEnv loads environment variables from a .env file without
// overriding ones already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("unable to load %s: %w", path, err)
	}
	return nil
}

const fileHeader = `# narrate configuration.
#
# Values can be overridden with NARRATE_* environment variables, for example
# NARRATE_REMOTE_CREDENTIAL. A .env file in the working directory is read
# too. Empty paths default to the user data and cache directories.
`

// DefaultYAML renders d as a commented config file.
func DefaultYAML(d Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	buf.WriteString("\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("unable to encode configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("unable to encode configuration: %w", err)
	}
	return buf.Bytes(), nil
}

// EnsureFile writes the default config to path unless a file exists there.
// It reports whether the file was created.
func EnsureFile(path string) (bool, error) {
	if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
		return false, fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("unable to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("unable create directory: %w", err)
	}
	b, err := DefaultYAML(Default())
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return false, fmt.Errorf("unable to write config file: %w", err)
	}
	return true, nil
}
