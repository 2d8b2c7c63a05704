package shell

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	shellBucket = "shell"
	assetBucket = "assets"
)

// Entry is a cached document or asset.
type Entry struct {
	Body        []byte    `json:"body"`
	ContentType string    `json:"content_type"`
	Status      int       `json:"status"`
	StoredAt    time.Time `json:"stored_at"`
}

// Cache stores documents by bucket and URL. Missing entries return ok=false.
type Cache interface {
	Get(bucket, key string) (Entry, bool, error)
	Put(bucket, key string, e Entry) error
	Close() error
}

type boltCache struct {
	db *bolt.DB
}

// OpenBoltCache opens (or creates) a bbolt file holding the shell and asset buckets.
func OpenBoltCache(path string) (Cache, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create shell cache directory: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open shell cache: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{shellBucket, assetBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init shell buckets: %w", err)
	}
	return &boltCache{db: db}, nil
}

func (c *boltCache) Get(bucket, key string) (Entry, bool, error) {
	var (
		e     Entry
		found bool
	)
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("%s bucket missing", bucket)
		}
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("decode cached document %q: %w", key, err)
		}
		found = true
		return nil
	})
	return e, found, err
}

func (c *boltCache) Put(bucket, key string, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cached document %q: %w", key, err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("%s bucket missing", bucket)
		}
		return b.Put([]byte(key), raw)
	})
}

func (c *boltCache) Close() error { return c.db.Close() }

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryCache returns an in-process Cache.
func NewMemoryCache() Cache {
	return &memoryCache{entries: make(map[string]Entry)}
}

func (c *memoryCache) Get(bucket, key string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[bucket+"\x00"+key]
	return e, ok, nil
}

func (c *memoryCache) Put(bucket, key string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[bucket+"\x00"+key] = e
	return nil
}

func (c *memoryCache) Close() error { return nil }
