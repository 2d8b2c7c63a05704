package offline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/samvad-hq/samvad-reader/internal/domain"
	"github.com/samvad-hq/samvad-reader/internal/queue"
	"github.com/samvad-hq/samvad-reader/pkg/newsapi"
	"github.com/samvad-hq/samvad-reader/pkg/publishers"
)

type pagedFetcher struct {
	pages map[int]newsapi.Page
	errAt int
	err   error
	calls []domain.FetchRequest
}

func (f *pagedFetcher) FetchCategory(_ context.Context, req domain.FetchRequest) (newsapi.Page, error) {
	f.calls = append(f.calls, req)
	if f.errAt == req.Page {
		return newsapi.Page{}, f.err
	}
	return f.pages[req.Page], nil
}

type recordingStore struct {
	cached map[string][]domain.Article
	saved  []domain.Article
}

func newRecordingStore() *recordingStore {
	return &recordingStore{cached: map[string][]domain.Article{}}
}

func (s *recordingStore) CacheArticlesPage(_ context.Context, articles []domain.Article, key domain.PageKey) error {
	s.cached[key.String()] = articles
	return nil
}

func (s *recordingStore) SaveOfflineArticles(_ context.Context, articles []domain.Article) error {
	s.saved = append(s.saved, articles...)
	return nil
}

type recordingPublisher struct {
	events []publishers.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt publishers.Event) (int, error) {
	p.events = append(p.events, evt)
	if p.err != nil {
		return 0, p.err
	}
	return 1, nil
}

func articlesFor(page, n int) []domain.Article {
	out := make([]domain.Article, n)
	for i := range out {
		id := fmt.Sprintf("p%d-%d", page, i)
		out[i] = domain.Article{ID: id, URL: "https://example.com/" + id}
	}
	return out
}

func TestDownloadStopsWhenNoMorePages(t *testing.T) {
	fetcher := &pagedFetcher{pages: map[int]newsapi.Page{
		1: {Articles: articlesFor(1, 2), HasMore: true},
		2: {Articles: articlesFor(2, 2), HasMore: false},
		3: {Articles: articlesFor(3, 2), HasMore: true},
	}}
	store := newRecordingStore()
	pub := &recordingPublisher{}
	d, err := NewDownloader(fetcher, store, pub, nil)
	if err != nil {
		t.Fatalf("NewDownloader: %v", err)
	}

	sum, err := d.Download(context.Background(), " Sports ", 5)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if sum.Category != "sports" || sum.Pages != 2 || sum.Articles != 4 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(fetcher.calls) != 2 {
		t.Fatalf("expected 2 fetches, got %d", len(fetcher.calls))
	}
	if len(store.saved) != 4 || len(store.cached) != 2 {
		t.Fatalf("expected 2 cached pages and 4 saved articles, got %d/%d", len(store.cached), len(store.saved))
	}
	key := domain.FetchRequest{Category: "sports", Page: 2}.Key().String()
	if len(store.cached[key]) != 2 {
		t.Fatalf("page 2 not cached under %s", key)
	}
	if len(pub.events) != 1 || pub.events[0].Type != publishers.EventOfflineDownloadCompleted || pub.events[0].Articles != 4 {
		t.Fatalf("unexpected events %+v", pub.events)
	}
}

func TestDownloadStopsAtEmptyPage(t *testing.T) {
	fetcher := &pagedFetcher{pages: map[int]newsapi.Page{
		1: {Articles: articlesFor(1, 1), HasMore: true},
	}}
	d, _ := NewDownloader(fetcher, newRecordingStore(), nil, nil)

	sum, err := d.Download(context.Background(), "", 3)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if sum.Category != domain.DefaultCategory || sum.Pages != 1 || len(fetcher.calls) != 2 {
		t.Fatalf("unexpected summary %+v after %d calls", sum, len(fetcher.calls))
	}
}

func TestDownloadReturnsFetchErrorUnchanged(t *testing.T) {
	rateErr := &queue.RateLimitError{URL: "https://api/x", Retries: 3}
	fetcher := &pagedFetcher{
		pages: map[int]newsapi.Page{1: {Articles: articlesFor(1, 1), HasMore: true}},
		errAt: 2,
		err:   rateErr,
	}
	store := newRecordingStore()
	pub := &recordingPublisher{}
	d, _ := NewDownloader(fetcher, store, pub, nil)

	sum, err := d.Download(context.Background(), "world", 3)
	if err != rateErr {
		t.Fatalf("expected the fetch error itself, got %v", err)
	}
	if sum.Pages != 1 || len(store.saved) != 1 {
		t.Fatalf("pages fetched before the failure should stay stored: %+v", sum)
	}
	if len(pub.events) != 0 {
		t.Fatalf("failed download must not publish")
	}
}

func TestDownloadToleratesPublishFailure(t *testing.T) {
	fetcher := &pagedFetcher{pages: map[int]newsapi.Page{1: {Articles: articlesFor(1, 1)}}}
	d, _ := NewDownloader(fetcher, newRecordingStore(), &recordingPublisher{err: errors.New("sink down")}, nil)
	if _, err := d.Download(context.Background(), "latest", 1); err != nil {
		t.Fatalf("publish failure should not fail download: %v", err)
	}
}

func TestLoadPlansYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offline.yaml")
	content := `
plans:
  - category: " Latest "
    pages: 2
  - category: sports
  - category: world
    pages: 1
    enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write plans file: %v", err)
	}

	plans, err := LoadPlans(path)
	if err != nil {
		t.Fatalf("LoadPlans: %v", err)
	}
	if len(plans) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(plans))
	}
	if plans[0].Category != "latest" || plans[0].Pages != 2 {
		t.Fatalf("unexpected first plan %+v", plans[0])
	}
	if plans[1].Pages != defaultPlanPages {
		t.Fatalf("expected default pages, got %d", plans[1].Pages)
	}
	enabled := EnabledPlans(plans)
	if len(enabled) != 2 {
		t.Fatalf("expected 2 enabled plans, got %d", len(enabled))
	}
}

func TestLoadPlansRejectsInvalidEntries(t *testing.T) {
	cases := map[string]string{
		"dup.yaml":   "plans:\n  - category: a\n  - category: A\n",
		"pages.yaml": "plans:\n  - category: a\n    pages: -1\n",
		"empty.yaml": "plans: []\n",
		"bad.json":   "{not json",
	}
	dir := t.TempDir()
	for name, content := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := LoadPlans(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
