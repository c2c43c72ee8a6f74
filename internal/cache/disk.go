package cache

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	indexFile = "index.gob"
	// compressThreshold is the smallest value worth compressing.
	compressThreshold = 1024
)

// DiskCache persists values as files under a directory, compressing them
// with zstd. An index of entries is kept in memory and written on Close.
type DiskCache struct {
	dir      string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu    sync.Mutex
	stats Stats
}

type diskEntry struct {
	Key        string
	File       string
	Size       int64 // on disk
	Compressed bool
	Created    time.Time
	LastAccess time.Time
}

// NewDiskCache opens or creates a disk cache in dir. A compression level of
// zero or less stores values uncompressed.
func NewDiskCache(dir string, capacity int64, compressionLevel int) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
	}

	if compressionLevel > 0 {
		var err error
		dc.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		dc.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
	}

	if err := dc.loadIndex(); err != nil {
		// A corrupt index only costs us the cached files.
		dc.index = make(map[string]*diskEntry)
	}
	for _, e := range dc.index {
		dc.size += e.Size
	}

	return dc, nil
}

// Get retrieves a value from the disk cache.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.stats.LastAccess = time.Now()
	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(entry.File)
	if err == nil && entry.Compressed {
		if dc.decoder == nil {
			err = errors.New("compressed entry without decoder")
		} else {
			data, err = dc.decoder.DecodeAll(data, nil)
		}
	}
	if err != nil {
		dc.removeEntry(entry)
		dc.stats.Misses++
		return nil, false
	}

	entry.LastAccess = time.Now()
	dc.stats.Hits++
	return data, true
}

// Put stores a value in the disk cache.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	data, compressed := value, false
	if dc.encoder != nil && len(value) > compressThreshold {
		if c := dc.encoder.EncodeAll(value, nil); len(c) < len(value) {
			data, compressed = c, true
		}
	}

	n := int64(len(data))
	if n > dc.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := dc.index[key]; ok {
		dc.removeEntry(existing)
	}
	for dc.size+n > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	entry := &diskEntry{
		Key:        key,
		File:       filepath.Join(dc.dir, key+".bin"),
		Size:       n,
		Compressed: compressed,
		Created:    time.Now(),
		LastAccess: time.Now(),
	}
	if err := writeFileAtomic(entry.File, data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	dc.index[key] = entry
	dc.size += n
	return nil
}

// Delete removes an entry from the disk cache.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if entry, ok := dc.index[key]; ok {
		dc.removeEntry(entry)
	}
	return nil
}

// Clear removes all entries from the disk cache.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for _, entry := range dc.index {
		_ = os.Remove(entry.File)
	}
	dc.index = make(map[string]*diskEntry)
	dc.size = 0
	return dc.saveIndex()
}

// Contains checks if a key exists in the cache without updating access time.
func (dc *DiskCache) Contains(key string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	_, ok := dc.index[key]
	return ok
}

// Stats returns cache statistics.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	s := dc.stats
	s.Capacity = dc.capacity
	s.Size = dc.size
	s.ItemCount = int64(len(dc.index))
	return s
}

// RemoveOlderThan removes entries created before cutoff and returns how many
// were removed.
func (dc *DiskCache) RemoveOlderThan(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	removed := 0
	for _, entry := range dc.index {
		if entry.Created.Before(cutoff) {
			dc.removeEntry(entry)
			removed++
		}
	}
	return removed
}

// Close writes the index to disk and releases the codec.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	err := dc.saveIndex()
	if dc.decoder != nil {
		dc.decoder.Close()
	}
	if dc.encoder != nil {
		_ = dc.encoder.Close()
	}
	return err
}

func (dc *DiskCache) evictOldest() {
	entries := make([]*diskEntry, 0, len(dc.index))
	for _, e := range dc.index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})
	if len(entries) > 0 {
		dc.removeEntry(entries[0])
		dc.stats.Evictions++
	}
}

func (dc *DiskCache) removeEntry(entry *diskEntry) {
	_ = os.Remove(entry.File)
	delete(dc.index, entry.Key)
	dc.size -= entry.Size
}

func (dc *DiskCache) loadIndex() error {
	f, err := os.Open(filepath.Join(dc.dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close() //nolint:errcheck

	if err := gob.NewDecoder(f).Decode(&dc.index); err != nil {
		return err
	}
	// Drop entries whose files have gone missing.
	for key, e := range dc.index {
		if _, err := os.Stat(e.File); err != nil {
			delete(dc.index, key)
		}
	}
	return nil
}

func (dc *DiskCache) saveIndex() error {
	path := filepath.Join(dc.dir, indexFile)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(f).Encode(dc.index)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
