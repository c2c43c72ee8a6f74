package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Store layers a MemoryCache over a DiskCache. Disk hits are promoted to
// memory. A background loop prunes expired disk entries.
type Store struct {
	memory *MemoryCache
	disk   *DiskCache
	cfg    Config
	logger *log.Logger

	mu         sync.Mutex
	promotions int64

	stop chan struct{}
	wg   sync.WaitGroup
}

// Open creates a Store from cfg. cfg.DiskPath must be set.
func Open(cfg Config, logger *log.Logger) (*Store, error) {
	if cfg.DiskPath == "" {
		return nil, errors.New("cache directory not set")
	}
	if logger == nil {
		logger = log.Default()
	}

	disk, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create disk cache: %w", err)
	}

	s := &Store{
		memory: NewMemoryCache(cfg.MemoryCapacity),
		disk:   disk,
		cfg:    cfg,
		logger: logger,
		stop:   make(chan struct{}),
	}

	if cfg.MaxAge > 0 {
		s.Cleanup()
		if cfg.CleanupInterval > 0 {
			s.wg.Add(1)
			go s.cleanupLoop()
		}
	}

	return s, nil
}

// Get checks memory, then disk.
func (s *Store) Get(key string) ([]byte, bool) {
	if data, ok := s.memory.Get(key); ok {
		return data, true
	}
	data, ok := s.disk.Get(key)
	if !ok {
		return nil, false
	}
	if err := s.memory.Put(key, data); err == nil {
		s.mu.Lock()
		s.promotions++
		s.mu.Unlock()
	}
	return data, true
}

// Put writes to both tiers. A value too large for memory still goes to disk.
func (s *Store) Put(key string, value []byte) error {
	if err := s.memory.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return fmt.Errorf("memory cache: %w", err)
	}
	if err := s.disk.Put(key, value); err != nil {
		if errors.Is(err, ErrItemTooLarge) {
			s.logger.Debug("audio too large for disk cache", "bytes", len(value))
			return nil
		}
		return fmt.Errorf("disk cache: %w", err)
	}
	return nil
}

// Delete removes key from both tiers.
func (s *Store) Delete(key string) error {
	_ = s.memory.Delete(key)
	return s.disk.Delete(key)
}

// Clear empties both tiers.
func (s *Store) Clear() error {
	_ = s.memory.Clear()
	return s.disk.Clear()
}

// Contains reports whether either tier holds key.
func (s *Store) Contains(key string) bool {
	return s.memory.Contains(key) || s.disk.Contains(key)
}

// Stats returns the combined counters: hits from either tier, misses only
// when both tiers missed.
func (s *Store) Stats() Stats {
	m, d := s.memory.Stats(), s.disk.Stats()
	last := m.LastAccess
	if d.LastAccess.After(last) {
		last = d.LastAccess
	}
	return Stats{
		Capacity:   d.Capacity,
		Size:       d.Size,
		ItemCount:  d.ItemCount,
		Hits:       m.Hits + d.Hits,
		Misses:     d.Misses,
		Evictions:  m.Evictions + d.Evictions,
		LastAccess: last,
	}
}

// LevelStats returns the counters of one tier.
func (s *Store) LevelStats(l Level) Stats {
	if l == LevelMemory {
		return s.memory.Stats()
	}
	return s.disk.Stats()
}

// Promotions returns how many disk hits were copied into memory.
func (s *Store) Promotions() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promotions
}

// Cleanup removes disk entries older than MaxAge.
func (s *Store) Cleanup() int {
	return s.Prune(s.cfg.MaxAge)
}

// Prune removes disk entries older than age and returns how many went.
func (s *Store) Prune(age time.Duration) int {
	if age <= 0 {
		return 0
	}
	n := s.disk.RemoveOlderThan(time.Now().Add(-age))
	if n > 0 {
		s.logger.Debug("pruned expired audio", "entries", n)
	}
	return n
}

// Close stops the cleanup loop and persists the disk index.
func (s *Store) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.wg.Wait()
	return s.disk.Close()
}

func (s *Store) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-s.stop:
			return
		}
	}
}

var _ Cache = (*Store)(nil)
