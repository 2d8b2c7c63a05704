package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samvad-hq/samvad-reader/internal/domain"
)

const redisKeyPrefix = "reader:"

// Key helpers
func pageKey(key domain.PageKey) string      { return redisKeyPrefix + "page:" + key.String() }
func pageIndexKey(key domain.PageKey) string { return redisKeyPrefix + "pages:" + key.Prefix() }
func searchKey(query string, f domain.Filters, page int) string {
	return redisKeyPrefix + "search:" + domain.SearchKey(query, f, page)
}

const (
	offlineListKey = redisKeyPrefix + "offline:order"
	offlineHashKey = redisKeyPrefix + "offline:items"
)

// redisStore implements Store on a Redis server. Page and search entries
// expire through key TTLs; the per-prefix page index is pruned lazily.
type redisStore struct {
	rdb     *redis.Client
	pageTTL time.Duration
	now     func() time.Time
}

func openRedis(rawURL string, opts Options) (Store, error) {
	opts = normalizeOptions(opts)
	ropts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(ropts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisStore{rdb: rdb, pageTTL: opts.PageTTL, now: opts.Now}, nil
}

func (r *redisStore) Close() error {
	return r.rdb.Close()
}

func (r *redisStore) GetArticlesPage(ctx context.Context, key domain.PageKey) ([]domain.Article, error) {
	return r.getEntry(ctx, pageKey(key))
}

func (r *redisStore) CacheArticlesPage(ctx context.Context, articles []domain.Article, key domain.PageKey) error {
	k := pageKey(key)
	if err := r.putEntry(ctx, k, key.Page, articles); err != nil {
		return err
	}
	idx := pageIndexKey(key)
	pipe := r.rdb.TxPipeline()
	pipe.ZAdd(ctx, idx, redis.Z{Score: float64(key.Page), Member: k})
	pipe.Expire(ctx, idx, r.pageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index page %s: %w", key, err)
	}
	return nil
}

func (r *redisStore) GetAllCachedPages(ctx context.Context, key domain.PageKey) ([]PageEntry, error) {
	idx := pageIndexKey(key)
	members, err := r.rdb.ZRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	vals, err := r.rdb.MGet(ctx, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget failed: %w", err)
	}

	var (
		entries []PageEntry
		stale   []any
	)
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, members[i])
			continue
		}
		var entry PageEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		entry.Key = key
		entry.Key.Page = entry.Page
		entries = append(entries, entry)
	}
	if len(stale) > 0 {
		_ = r.rdb.ZRem(ctx, idx, stale...).Err()
	}
	sortEntries(entries)
	return entries, nil
}

func (r *redisStore) GetCachedSearchResults(ctx context.Context, query string, filters domain.Filters, page int) ([]domain.Article, error) {
	return r.getEntry(ctx, searchKey(query, filters, page))
}

func (r *redisStore) CacheSearchResults(ctx context.Context, query string, filters domain.Filters, page int, articles []domain.Article) error {
	return r.putEntry(ctx, searchKey(query, filters, page), 0, articles)
}

// SaveOfflineArticles appends unseen IDs to the order list and upserts every article body.
func (r *redisStore) SaveOfflineArticles(ctx context.Context, articles []domain.Article) error {
	for _, a := range articles {
		if a.ID == "" {
			continue
		}
		raw, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode article %s: %w", a.ID, err)
		}
		added, err := r.rdb.HSetNX(ctx, offlineHashKey, a.ID, raw).Result()
		if err != nil {
			return fmt.Errorf("hsetnx failed: %w", err)
		}
		if !added {
			if err := r.rdb.HSet(ctx, offlineHashKey, a.ID, raw).Err(); err != nil {
				return fmt.Errorf("hset failed: %w", err)
			}
			continue
		}
		if err := r.rdb.RPush(ctx, offlineListKey, a.ID).Err(); err != nil {
			return fmt.Errorf("rpush failed: %w", err)
		}
	}
	return nil
}

func (r *redisStore) GetOfflineArticles(ctx context.Context, limit, offset int) ([]domain.Article, error) {
	if offset < 0 {
		offset = 0
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}
	ids, err := r.rdb.LRange(ctx, offlineListKey, int64(offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}
	return r.loadOffline(ctx, ids)
}

func (r *redisStore) SearchArticles(ctx context.Context, query string, filters domain.Filters) ([]domain.Article, error) {
	all, err := r.GetOfflineArticles(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	out := []domain.Article{}
	for _, a := range all {
		if matchesSearch(a, query, filters) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *redisStore) loadOffline(ctx context.Context, ids []string) ([]domain.Article, error) {
	out := []domain.Article{}
	if len(ids) == 0 {
		return out, nil
	}
	vals, err := r.rdb.HMGet(ctx, offlineHashKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("hmget failed: %w", err)
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var a domain.Article
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *redisStore) getEntry(ctx context.Context, key string) ([]domain.Article, error) {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []domain.Article{}, nil
	}
	if err != nil {
		return []domain.Article{}, fmt.Errorf("get failed: %w", err)
	}
	var entry PageEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return []domain.Article{}, fmt.Errorf("decode cached entry %q: %w", key, err)
	}
	if entry.Articles == nil {
		return []domain.Article{}, nil
	}
	return entry.Articles, nil
}

func (r *redisStore) putEntry(ctx context.Context, key string, page int, articles []domain.Article) error {
	now := r.now()
	raw, err := json.Marshal(PageEntry{
		Page:      page,
		Articles:  articles,
		FetchedAt: now.UTC(),
		ExpiresAt: now.Add(r.pageTTL).UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode cached entry %q: %w", key, err)
	}
	if err := r.rdb.Set(ctx, key, raw, r.pageTTL).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}
