// Package cache stores synthesized speech audio so that re-narrating an
// article does not hit the remote synthesis API again. It has an in-memory
// LRU tier and a zstd-compressed disk tier.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheMiss is returned when an item is not found in cache
	ErrCacheMiss = errors.New("cache miss")
)

// Level represents the cache tier
type Level int

const (
	// LevelMemory is the in-memory tier.
	LevelMemory Level = iota
	// LevelDisk is the persistent tier.
	LevelDisk
)

// String returns the string representation of the cache level
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds cache counters.
type Stats struct {
	Capacity  int64
	Size      int64
	ItemCount int64

	Hits      int64
	Misses    int64
	Evictions int64

	LastAccess time.Time
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Config holds configuration for a Store.
type Config struct {
	MemoryCapacity int64 `mapstructure:"memory_capacity" yaml:"memory_capacity"`

	DiskCapacity     int64  `mapstructure:"disk_capacity" yaml:"disk_capacity"`
	DiskPath         string `mapstructure:"dir" yaml:"dir"`
	CompressionLevel int    `mapstructure:"compression_level" yaml:"compression_level"`

	// MaxAge removes disk entries older than this on cleanup. Zero keeps
	// entries until evicted by size.
	MaxAge          time.Duration `mapstructure:"max_age" yaml:"max_age"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   64 * 1024 * 1024,  // 64MB
		DiskCapacity:     512 * 1024 * 1024, // 512MB
		CompressionLevel: 3,
		MaxAge:           30 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Key identifies one synthesized chunk.
type Key struct {
	Provider string
	Model    string
	Voice    string
	Speed    float64
	Text     string
}

// String returns a stable hash of the key's components.
func (k Key) String() string {
	h := sha256.New()
	for _, part := range []string{k.Provider, k.Model, k.Voice, strconv.FormatFloat(k.Speed, 'f', 3, 64), k.Text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cache defines the interface for cache implementations
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Contains(key string) bool
	Stats() Stats
}
