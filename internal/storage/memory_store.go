package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-reader/internal/domain"
)

// memoryStore keeps every namespace in process memory.
type memoryStore struct {
	mu         sync.RWMutex
	pages      map[string]PageEntry
	search     map[string]PageEntry
	offline    []domain.Article
	offlineIdx map[string]int
	pageTTL    time.Duration
	now        func() time.Time
}

func newMemoryStore(opts Options) *memoryStore {
	opts = normalizeOptions(opts)
	return &memoryStore{
		pages:      make(map[string]PageEntry),
		search:     make(map[string]PageEntry),
		offlineIdx: make(map[string]int),
		pageTTL:    opts.PageTTL,
		now:        opts.Now,
	}
}

func (m *memoryStore) entry(now time.Time, page int, articles []domain.Article) PageEntry {
	return PageEntry{
		Page:      page,
		Articles:  domain.CloneArticles(articles),
		FetchedAt: now.UTC(),
		ExpiresAt: now.Add(m.pageTTL).UTC(),
	}
}

func (m *memoryStore) GetArticlesPage(_ context.Context, key domain.PageKey) ([]domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.pages[key.String()]
	if !ok || !e.ExpiresAt.After(m.now()) {
		return []domain.Article{}, nil
	}
	return domain.CloneArticles(e.Articles), nil
}

func (m *memoryStore) CacheArticlesPage(_ context.Context, articles []domain.Article, key domain.PageKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[key.String()] = m.entry(m.now(), key.Page, articles)
	return nil
}

func (m *memoryStore) GetAllCachedPages(_ context.Context, key domain.PageKey) ([]PageEntry, error) {
	prefix := key.Prefix()
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PageEntry
	for k, e := range m.pages {
		if !strings.HasPrefix(k, prefix) || !e.ExpiresAt.After(now) {
			continue
		}
		e.Key = key
		e.Key.Page = e.Page
		e.Articles = domain.CloneArticles(e.Articles)
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func (m *memoryStore) GetOfflineArticles(_ context.Context, limit, offset int) ([]domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return paginate(m.offline, limit, offset), nil
}

func (m *memoryStore) SaveOfflineArticles(_ context.Context, articles []domain.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range articles {
		if a.ID == "" {
			continue
		}
		if i, ok := m.offlineIdx[a.ID]; ok {
			m.offline[i] = a
			continue
		}
		m.offlineIdx[a.ID] = len(m.offline)
		m.offline = append(m.offline, a)
	}
	return nil
}

func (m *memoryStore) GetCachedSearchResults(_ context.Context, query string, filters domain.Filters, page int) ([]domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.search[domain.SearchKey(query, filters, page)]
	if !ok || !e.ExpiresAt.After(m.now()) {
		return []domain.Article{}, nil
	}
	return domain.CloneArticles(e.Articles), nil
}

func (m *memoryStore) CacheSearchResults(_ context.Context, query string, filters domain.Filters, page int, articles []domain.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.search[domain.SearchKey(query, filters, page)] = m.entry(m.now(), 0, articles)
	return nil
}

func (m *memoryStore) SearchArticles(_ context.Context, query string, filters domain.Filters) ([]domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Article{}
	for _, a := range m.offline {
		if matchesSearch(a, query, filters) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryStore) Close() error { return nil }
