package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samvad-hq/samvad-reader/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const (
	pagesBucket      = "pages"
	searchBucket     = "search"
	offlineBucket    = "offline"
	offlineIDsBucket = "offline_ids"
)

var allBuckets = []string{pagesBucket, searchBucket, offlineBucket, offlineIDsBucket}

// boltStore implements a Store backed by BoltDB.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	pageTTL         time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (Store, error) {
	opts = normalizeOptions(opts)
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	store := &boltStore{
		db:              db,
		pageTTL:         opts.PageTTL,
		cleanupInterval: opts.CleanupInterval,
		now:             opts.Now,
	}
	store.lastCleanup.Store(store.now().Unix())
	return store, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// GetArticlesPage returns the cached page for key, or an empty slice.
func (b *boltStore) GetArticlesPage(_ context.Context, key domain.PageKey) ([]domain.Article, error) {
	entry, ok, err := b.getEntry(pagesBucket, key.String())
	if err != nil || !ok {
		return []domain.Article{}, err
	}
	return entry.Articles, nil
}

// CacheArticlesPage stores articles under key, replacing any previous page.
func (b *boltStore) CacheArticlesPage(_ context.Context, articles []domain.Article, key domain.PageKey) error {
	return b.putEntry(pagesBucket, key.String(), key.Page, articles)
}

// GetAllCachedPages scans every live page sharing the key prefix.
func (b *boltStore) GetAllCachedPages(_ context.Context, key domain.PageKey) ([]PageEntry, error) {
	if err := b.maybeCleanupExpired(b.now()); err != nil {
		return nil, err
	}

	prefix := []byte(key.Prefix())
	now := b.now()
	var entries []PageEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := bucketOf(tx, pagesBucket)
		if err != nil {
			return err
		}
		c := bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var entry PageEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue
			}
			if !entry.ExpiresAt.After(now) {
				continue
			}
			entry.Key = key
			entry.Key.Page = entry.Page
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

// GetCachedSearchResults returns cached search results, or an empty slice.
func (b *boltStore) GetCachedSearchResults(_ context.Context, query string, filters domain.Filters, page int) ([]domain.Article, error) {
	entry, ok, err := b.getEntry(searchBucket, domain.SearchKey(query, filters, page))
	if err != nil || !ok {
		return []domain.Article{}, err
	}
	return entry.Articles, nil
}

// CacheSearchResults stores one page of search results for (query, filters).
func (b *boltStore) CacheSearchResults(_ context.Context, query string, filters domain.Filters, page int, articles []domain.Article) error {
	return b.putEntry(searchBucket, domain.SearchKey(query, filters, page), 0, articles)
}

// SaveOfflineArticles appends articles to the saved-for-offline store.
// Articles already saved are updated in place and keep their position.
func (b *boltStore) SaveOfflineArticles(_ context.Context, articles []domain.Article) error {
	if b == nil || b.db == nil || len(articles) == 0 {
		return nil
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		items, err := bucketOf(tx, offlineBucket)
		if err != nil {
			return err
		}
		ids, err := bucketOf(tx, offlineIDsBucket)
		if err != nil {
			return err
		}
		for _, a := range articles {
			if a.ID == "" {
				continue
			}
			raw, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("encode article %s: %w", a.ID, err)
			}
			seqKey := ids.Get([]byte(a.ID))
			if seqKey == nil {
				seq, err := items.NextSequence()
				if err != nil {
					return err
				}
				seqKey = make([]byte, 8)
				binary.BigEndian.PutUint64(seqKey, seq)
				if err := ids.Put([]byte(a.ID), seqKey); err != nil {
					return err
				}
			}
			if err := items.Put(append([]byte(nil), seqKey...), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetOfflineArticles returns saved articles in save order.
func (b *boltStore) GetOfflineArticles(_ context.Context, limit, offset int) ([]domain.Article, error) {
	if b == nil || b.db == nil {
		return []domain.Article{}, nil
	}
	if offset < 0 {
		offset = 0
	}
	out := []domain.Article{}
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := bucketOf(tx, offlineBucket)
		if err != nil {
			return err
		}
		c := bucket.Cursor()
		skipped := 0
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			if limit > 0 && len(out) >= limit {
				break
			}
			var a domain.Article
			if err := json.Unmarshal(v, &a); err != nil {
				continue
			}
			out = append(out, a)
		}
		return nil
	})
	return out, err
}

// SearchArticles scans saved articles for matches.
func (b *boltStore) SearchArticles(_ context.Context, query string, filters domain.Filters) ([]domain.Article, error) {
	if b == nil || b.db == nil {
		return []domain.Article{}, nil
	}
	out := []domain.Article{}
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := bucketOf(tx, offlineBucket)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(_, v []byte) error {
			var a domain.Article
			if err := json.Unmarshal(v, &a); err != nil {
				return nil
			}
			if matchesSearch(a, query, filters) {
				out = append(out, a)
			}
			return nil
		})
	})
	return out, err
}

func (b *boltStore) getEntry(bucketName, key string) (PageEntry, bool, error) {
	if b == nil || b.db == nil {
		return PageEntry{}, false, nil
	}
	if err := b.maybeCleanupExpired(b.now()); err != nil {
		return PageEntry{}, false, err
	}

	var (
		entry PageEntry
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := bucketOf(tx, bucketName)
		if err != nil {
			return err
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("decode cached entry %q: %w", key, err)
		}
		found = entry.ExpiresAt.After(b.now())
		return nil
	})
	if err != nil || !found {
		return PageEntry{}, false, err
	}
	if entry.Articles == nil {
		entry.Articles = []domain.Article{}
	}
	return entry, true, nil
}

func (b *boltStore) putEntry(bucketName, key string, page int, articles []domain.Article) error {
	if b == nil || b.db == nil {
		return nil
	}
	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return err
	}

	raw, err := json.Marshal(PageEntry{
		Page:      page,
		Articles:  domain.CloneArticles(articles),
		FetchedAt: now.UTC(),
		ExpiresAt: now.Add(b.pageTTL).UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode cached entry %q: %w", key, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := bucketOf(tx, bucketName)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), raw)
	})
}

// maybeCleanupExpired removes expired page and search entries on a fixed cadence to avoid unbounded growth.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	if b == nil || b.db == nil {
		return nil
	}

	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{pagesBucket, searchBucket} {
			bucket, err := bucketOf(tx, name)
			if err != nil {
				return err
			}
			cursor := bucket.Cursor()
			for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
				expiry, ok := decodeExpiry(v)
				if !ok || !expiry.After(now) {
					if err := cursor.Delete(); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}

// decodeExpiry extracts the expiry time from a stored entry.
func decodeExpiry(value []byte) (time.Time, bool) {
	var probe struct {
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(value, &probe); err != nil || probe.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return probe.ExpiresAt, true
}

func bucketOf(tx *bolt.Tx, name string) (*bolt.Bucket, error) {
	bucket := tx.Bucket([]byte(name))
	if bucket == nil {
		return nil, fmt.Errorf("%s bucket missing", name)
	}
	return bucket, nil
}
