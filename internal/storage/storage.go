package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-reader/internal/domain"
)

// Package storage provides the persisted tiers the reader falls back to:
// the page cache, the search-result cache and the saved-for-offline articles.

// PageEntry is one cached page of articles.
type PageEntry struct {
	Key       domain.PageKey   `json:"-"`
	Page      int              `json:"page"`
	Articles  []domain.Article `json:"articles"`
	FetchedAt time.Time        `json:"fetched_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Store is the storage tier consumed by the reader. Missing entries are
// reported as an empty slice with a nil error.
type Store interface {
	GetArticlesPage(ctx context.Context, key domain.PageKey) ([]domain.Article, error)
	CacheArticlesPage(ctx context.Context, articles []domain.Article, key domain.PageKey) error
	// GetAllCachedPages returns every live page sharing key's prefix, ordered by page number.
	GetAllCachedPages(ctx context.Context, key domain.PageKey) ([]PageEntry, error)

	GetOfflineArticles(ctx context.Context, limit, offset int) ([]domain.Article, error)
	SaveOfflineArticles(ctx context.Context, articles []domain.Article) error

	GetCachedSearchResults(ctx context.Context, query string, filters domain.Filters, page int) ([]domain.Article, error)
	CacheSearchResults(ctx context.Context, query string, filters domain.Filters, page int, articles []domain.Article) error
	// SearchArticles searches the saved-for-offline namespace.
	SearchArticles(ctx context.Context, query string, filters domain.Filters) ([]domain.Article, error)

	Close() error
}

// Options controls location and retention characteristics for concrete store implementations.
type Options struct {
	Path            string
	RedisURL        string
	PageTTL         time.Duration
	CleanupInterval time.Duration
	Now             func() time.Time
}

const (
	defaultPageTTL         = 7 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "memory":
		return newMemoryStore(opts), nil
	case "bbolt":
		if strings.TrimSpace(opts.Path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(opts.Path, opts)
	case "redis":
		if strings.TrimSpace(opts.RedisURL) == "" {
			return nil, fmt.Errorf("redis storage requires a url")
		}
		return openRedis(opts.RedisURL, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.PageTTL <= 0 {
		opts.PageTTL = defaultPageTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

// sortEntries orders entries by page number.
func sortEntries(entries []PageEntry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Page < entries[j].Page })
}

// paginate applies offset/limit to an ordered slice. A non-positive limit means no limit.
func paginate(in []domain.Article, limit, offset int) []domain.Article {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(in) {
		return []domain.Article{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return domain.CloneArticles(in)
}

// matchesSearch reports whether an article matches a free-text query and filters.
func matchesSearch(a domain.Article, query string, f domain.Filters) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q != "" {
		hay := strings.ToLower(a.Title + "\n" + a.Summary + "\n" + a.Body)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	if d := strings.ToLower(strings.TrimSpace(f.Domain)); d != "" && !strings.EqualFold(a.SourceDomain, d) {
		return false
	}
	if kw := strings.ToLower(strings.TrimSpace(f.Keywords)); kw != "" {
		hay := strings.ToLower(a.Title + "\n" + a.Summary + "\n" + a.Body)
		if !strings.Contains(hay, kw) {
			return false
		}
	}
	if start, ok := parseDay(f.StartDate); ok && !a.PublishedAt.IsZero() && a.PublishedAt.Before(start) {
		return false
	}
	if end, ok := parseDay(f.EndDate); ok && !a.PublishedAt.IsZero() && !a.PublishedAt.Before(end.Add(24*time.Hour)) {
		return false
	}
	return true
}

func parseDay(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

type noopStore struct{}

func (noopStore) GetArticlesPage(context.Context, domain.PageKey) ([]domain.Article, error) {
	return []domain.Article{}, nil
}
func (noopStore) CacheArticlesPage(context.Context, []domain.Article, domain.PageKey) error {
	return nil
}
func (noopStore) GetAllCachedPages(context.Context, domain.PageKey) ([]PageEntry, error) {
	return nil, nil
}
func (noopStore) GetOfflineArticles(context.Context, int, int) ([]domain.Article, error) {
	return []domain.Article{}, nil
}
func (noopStore) SaveOfflineArticles(context.Context, []domain.Article) error { return nil }
func (noopStore) GetCachedSearchResults(context.Context, string, domain.Filters, int) ([]domain.Article, error) {
	return []domain.Article{}, nil
}
func (noopStore) CacheSearchResults(context.Context, string, domain.Filters, int, []domain.Article) error {
	return nil
}
func (noopStore) SearchArticles(context.Context, string, domain.Filters) ([]domain.Article, error) {
	return []domain.Article{}, nil
}
func (noopStore) Close() error { return nil }
