// Package shell caches the application shell and its static assets. It never
// stores API JSON; article data lives in the storage tier.
package shell

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-reader/internal/logger"
	"github.com/samvad-hq/samvad-reader/pkg/httpclient"
)

const (
	defaultTimeout  = 3 * time.Second
	defaultShellTTL = time.Hour
	revalidateLimit = 30 * time.Second
)

// OfflinePage is served when neither the network nor the cache can supply the shell.
var OfflinePage = []byte(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>Offline</title></head>
<body><h1>You are offline</h1><p>Saved articles remain available. Reconnect to load the latest news.</p></body>
</html>
`)

// Options tunes the strategy.
type Options struct {
	Timeout  time.Duration
	ShellTTL time.Duration
	Fallback []byte
	Now      func() time.Time
}

// Response is a document or asset returned to the caller.
type Response struct {
	Body        []byte
	Status      int
	ContentType string
	FromCache   bool
	Fallback    bool
}

// Strategy applies network-first caching to the shell and cache-first caching to assets.
type Strategy struct {
	client httpclient.Client
	cache  Cache
	log    logger.Logger
	opts   Options

	mu         sync.Mutex
	refreshing map[string]struct{}
	background sync.WaitGroup
}

// New builds a Strategy.
func New(client httpclient.Client, cache Cache, opts Options, log logger.Logger) *Strategy {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ShellTTL <= 0 {
		opts.ShellTTL = defaultShellTTL
	}
	if len(opts.Fallback) == 0 {
		opts.Fallback = OfflinePage
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Strategy{
		client:     client,
		cache:      cache,
		log:        logger.Ensure(log),
		opts:       opts,
		refreshing: make(map[string]struct{}),
	}
}

// Shell fetches the document at url from the network first. On failure it
// serves the cached copy while it is younger than the shell TTL, and
// otherwise the built-in offline page.
func (s *Strategy) Shell(ctx context.Context, url string) (Response, error) {
	fresh, err := s.fetch(ctx, url, s.opts.Timeout)
	if err == nil {
		if cacheable(fresh.ContentType) {
			s.store(shellBucket, url, fresh)
		}
		return fresh, nil
	}
	s.log.DebugObj("shell network fetch failed", "shell", map[string]any{"url": url, "error": err.Error()})

	cached, ok, cerr := s.cache.Get(shellBucket, url)
	if cerr != nil {
		s.log.WarnObj("shell cache read failed", "shell", map[string]any{"url": url, "error": cerr.Error()})
	}
	if ok && s.opts.Now().Sub(cached.StoredAt) < s.opts.ShellTTL {
		return fromEntry(cached), nil
	}

	return Response{
		Body:        s.opts.Fallback,
		Status:      200,
		ContentType: "text/html; charset=utf-8",
		Fallback:    true,
	}, nil
}

// Asset serves url from the cache when possible and refreshes it in the
// background. On a miss it fetches and stores the response.
func (s *Strategy) Asset(ctx context.Context, url string) (Response, error) {
	cached, ok, err := s.cache.Get(assetBucket, url)
	if err != nil {
		s.log.WarnObj("asset cache read failed", "asset", map[string]any{"url": url, "error": err.Error()})
	}
	if ok {
		s.revalidate(ctx, url)
		return fromEntry(cached), nil
	}

	fresh, err := s.fetch(ctx, url, 0)
	if err != nil {
		return Response{}, err
	}
	if cacheable(fresh.ContentType) {
		s.store(assetBucket, url, fresh)
	}
	return fresh, nil
}

// Wait blocks until background revalidations finish.
func (s *Strategy) Wait() {
	s.background.Wait()
}

// revalidate refreshes a cached asset, at most once concurrently per URL.
func (s *Strategy) revalidate(ctx context.Context, url string) {
	s.mu.Lock()
	if _, busy := s.refreshing[url]; busy {
		s.mu.Unlock()
		return
	}
	s.refreshing[url] = struct{}{}
	s.mu.Unlock()

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer func() {
			s.mu.Lock()
			delete(s.refreshing, url)
			s.mu.Unlock()
		}()

		fresh, err := s.fetch(context.WithoutCancel(ctx), url, revalidateLimit)
		if err != nil {
			s.log.DebugObj("asset revalidation failed", "asset", map[string]any{"url": url, "error": err.Error()})
			return
		}
		if cacheable(fresh.ContentType) {
			s.store(assetBucket, url, fresh)
		}
	}()
}

func (s *Strategy) fetch(ctx context.Context, url string, timeout time.Duration) (Response, error) {
	if s.client == nil {
		return Response{}, errors.New("shell: http client is not configured")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := s.client.Get(ctx, url, nil)
	if err != nil {
		return Response{}, err
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return Response{}, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode())
	}
	return Response{
		Body:        resp.Body(),
		Status:      resp.StatusCode(),
		ContentType: resp.Header("Content-Type"),
	}, nil
}

func (s *Strategy) store(bucket, url string, r Response) {
	err := s.cache.Put(bucket, url, Entry{
		Body:        r.Body,
		ContentType: r.ContentType,
		Status:      r.Status,
		StoredAt:    s.opts.Now(),
	})
	if err != nil {
		s.log.WarnObj("document cache write failed", "shell", map[string]any{"bucket": bucket, "url": url, "error": err.Error()})
	}
}

func fromEntry(e Entry) Response {
	return Response{Body: e.Body, Status: e.Status, ContentType: e.ContentType, FromCache: true}
}

// cacheable rejects JSON payloads of any flavour.
func cacheable(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt != "application/json" && !strings.HasSuffix(mt, "+json")
}
