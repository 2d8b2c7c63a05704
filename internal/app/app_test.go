package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-reader/internal/config"
	"github.com/samvad-hq/samvad-reader/internal/domain"
	"github.com/samvad-hq/samvad-reader/internal/netstate"
)

// newsServer serves three articles per category in pages of two and a
// health endpoint whose status can be toggled.
type newsServer struct {
	srv     *httptest.Server
	healthy atomic.Bool
	calls   atomic.Int32
}

func newNewsServer(t *testing.T) *newsServer {
	t.Helper()
	ns := &newsServer{}
	ns.healthy.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if !ns.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/v1/latest-news", func(w http.ResponseWriter, r *http.Request) {
		ns.calls.Add(1)
		category := r.URL.Query().Get("category")
		if category == "" {
			category = "latest"
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page_number"))
		var news []map[string]any
		for i := (page-1)*2 + 1; i <= page*2 && i <= 3; i++ {
			news = append(news, map[string]any{
				"id":        fmt.Sprintf("%s-%d", category, i),
				"title":     fmt.Sprintf("%s story %d", category, i),
				"url":       fmt.Sprintf("https://news.example/%s/%d", category, i),
				"published": "2025-03-0" + strconv.Itoa(i) + " 10:00:00 +0000",
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":       "ok",
			"news":         news,
			"page":         page,
			"totalResults": 3,
		})
	})

	ns.srv = httptest.NewServer(mux)
	t.Cleanup(ns.srv.Close)
	return ns
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	return &config.Config{
		AppName:                "samvad-reader-test",
		APIBaseURL:             baseURL + "/v1",
		APIKey:                 "k",
		ClientID:               "reader-test",
		Language:               "en",
		PageSize:               2,
		QueueRequestTimeout:    2 * time.Second,
		QueueMaxRetries:        0,
		QueueRetryDelay:        10 * time.Millisecond,
		QueueBackoffMultiplier: 2,
		StorageType:            "memory",
		StorageTTL:             time.Hour,
		StorageCleanupInterval: time.Hour,
		ProbeInterval:          20 * time.Millisecond,
		PrefetchInterval:       time.Hour,
		OfflinePlansFile:       filepath.Join(t.TempDir(), "offline.yaml"),
	}
}

func TestReaderServesNetworkThenCacheWhenOffline(t *testing.T) {
	ns := newNewsServer(t)
	cfg := testConfig(t, ns.srv.URL)

	rd, err := NewReader(context.Background(), cfg, nil, Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	ctx := context.Background()
	res, err := rd.Orchestrator().GetArticles(ctx, domain.FetchRequest{Category: "sports"})
	if err != nil {
		t.Fatalf("GetArticles: %v", err)
	}
	if res.Source != domain.SourceAPI || len(res.Articles) != 2 || !res.HasMore {
		t.Fatalf("unexpected api result %+v", res)
	}
	rd.Orchestrator().Wait()

	rd.Monitor().Apply(netstate.Event{Online: false, At: time.Now()})
	before := ns.calls.Load()

	res, err = rd.Orchestrator().GetArticles(ctx, domain.FetchRequest{Category: "sports"})
	if err != nil {
		t.Fatalf("GetArticles offline: %v", err)
	}
	if res.Source != domain.SourceCache || !res.IsCached || len(res.Articles) != 2 {
		t.Fatalf("unexpected cached result %+v", res)
	}
	if ns.calls.Load() != before {
		t.Fatalf("offline request reached the network")
	}
}

func TestReaderForceOfflineSkipsNetwork(t *testing.T) {
	ns := newNewsServer(t)
	cfg := testConfig(t, ns.srv.URL)
	cfg.HealthURL = ns.srv.URL + "/health"

	rd, err := NewReader(context.Background(), cfg, nil, Options{ForceOffline: true})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	_, err = rd.Orchestrator().GetArticles(context.Background(), domain.FetchRequest{Category: "world"})
	if err == nil {
		t.Fatalf("expected exhaustion with an empty store while offline")
	}
	if ns.calls.Load() != 0 {
		t.Fatalf("forced offline reader made %d api calls", ns.calls.Load())
	}
	if rd.Monitor().State().Online() {
		t.Fatalf("forced offline must not be overridden by probing")
	}
}

func TestReaderProbeTracksHealth(t *testing.T) {
	ns := newNewsServer(t)
	cfg := testConfig(t, ns.srv.URL)
	cfg.HealthURL = ns.srv.URL + "/health"

	rd, err := NewReader(context.Background(), cfg, nil, Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	ns.healthy.Store(false)
	waitFor(t, func() bool { return !rd.Monitor().State().Online() })

	ns.healthy.Store(true)
	waitFor(t, func() bool { return rd.Monitor().State().Online() })
}

func TestPrefetcherDownloadsEnabledPlans(t *testing.T) {
	ns := newNewsServer(t)
	cfg := testConfig(t, ns.srv.URL)
	plans := "plans:\n  - category: Sports\n    pages: 5\n  - category: tech\n    enabled: false\n"
	if err := os.WriteFile(cfg.OfflinePlansFile, []byte(plans), 0o600); err != nil {
		t.Fatalf("write plans: %v", err)
	}

	rd, err := NewReader(context.Background(), cfg, nil, Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	p, err := NewPrefetcher(cfg, rd, nil)
	if err != nil {
		t.Fatalf("NewPrefetcher: %v", err)
	}
	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	saved, err := rd.Store().GetOfflineArticles(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("GetOfflineArticles: %v", err)
	}
	if len(saved) != 3 {
		t.Fatalf("expected 3 saved articles, got %d", len(saved))
	}
	for _, a := range saved {
		if a.ID[:6] != "sports" {
			t.Fatalf("disabled plan was downloaded: %s", a.ID)
		}
	}
	if got := ns.calls.Load(); got != 2 {
		t.Fatalf("expected 2 api calls for two pages, got %d", got)
	}
}

func TestPrefetcherSkipsWhileOffline(t *testing.T) {
	ns := newNewsServer(t)
	cfg := testConfig(t, ns.srv.URL)
	if err := os.WriteFile(cfg.OfflinePlansFile, []byte("plans:\n  - category: sports\n"), 0o600); err != nil {
		t.Fatalf("write plans: %v", err)
	}

	rd, err := NewReader(context.Background(), cfg, nil, Options{ForceOffline: true})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	p, err := NewPrefetcher(cfg, rd, nil)
	if err != nil {
		t.Fatalf("NewPrefetcher: %v", err)
	}
	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if ns.calls.Load() != 0 {
		t.Fatalf("offline prefetch reached the network")
	}
}

func TestPrefetcherRejectsBadPlans(t *testing.T) {
	ns := newNewsServer(t)
	cfg := testConfig(t, ns.srv.URL)
	if err := os.WriteFile(cfg.OfflinePlansFile, []byte("plans:\n  - category: sports\n    pages: 500\n"), 0o600); err != nil {
		t.Fatalf("write plans: %v", err)
	}

	rd, err := NewReader(context.Background(), cfg, nil, Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	if _, err := NewPrefetcher(cfg, rd, nil); err == nil {
		t.Fatalf("expected plan validation error")
	}
}

func TestNewReaderRequiresConfig(t *testing.T) {
	if _, err := NewReader(context.Background(), nil, nil, Options{}); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
