// Package reader answers article requests from whichever tier can serve them:
// the live API through the request queue, the page cache, the saved-for-offline
// store or the merged cache. Every answer carries a provenance tag.
package reader

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-reader/internal/domain"
	"github.com/samvad-hq/samvad-reader/internal/logger"
	"github.com/samvad-hq/samvad-reader/internal/metrics"
	"github.com/samvad-hq/samvad-reader/internal/netstate"
	"github.com/samvad-hq/samvad-reader/internal/offline"
	"github.com/samvad-hq/samvad-reader/internal/storage"
	"github.com/samvad-hq/samvad-reader/pkg/newsapi"
)

const (
	defaultPageSize         = 10
	defaultWriteBackTimeout = 10 * time.Second
)

// Fetcher performs network retrieval through the request queue.
type Fetcher interface {
	FetchCategory(ctx context.Context, req domain.FetchRequest) (newsapi.Page, error)
	Search(ctx context.Context, req domain.FetchRequest) (newsapi.Page, error)
}

// Downloader captures whole categories for offline reading.
type Downloader interface {
	Download(ctx context.Context, category string, pages int) (offline.Summary, error)
}

// Deps wires the orchestrator to its collaborators.
type Deps struct {
	Fetcher    Fetcher
	Store      storage.Store
	State      *netstate.State
	Downloader Downloader
	Log        logger.Logger
	PageSize   int
	APIKey     string

	// WriteBackTimeout bounds each background cache write.
	WriteBackTimeout time.Duration
}

// Orchestrator runs the category and search fallback machines.
type Orchestrator struct {
	fetcher    Fetcher
	store      storage.Store
	state      *netstate.State
	downloader Downloader
	log        logger.Logger
	pageSize   int
	apiKey     string

	writeBackTimeout time.Duration
	writes           sync.WaitGroup

	// writeMu orders writes.Add against Close so no write starts once Close waits.
	writeMu sync.Mutex
	closed  bool

	// observe is called with the name of every stage entered.
	observe func(stage string)
}

// New validates deps and builds an Orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("reader: fetcher is required")
	}
	if deps.Store == nil {
		return nil, errors.New("reader: store is required")
	}
	if deps.State == nil {
		deps.State = netstate.NewState(true)
	}
	if deps.PageSize <= 0 {
		deps.PageSize = defaultPageSize
	}
	if deps.WriteBackTimeout <= 0 {
		deps.WriteBackTimeout = defaultWriteBackTimeout
	}
	return &Orchestrator{
		fetcher:          deps.Fetcher,
		store:            deps.Store,
		state:            deps.State,
		downloader:       deps.Downloader,
		log:              logger.Ensure(deps.Log),
		pageSize:         deps.PageSize,
		apiKey:           strings.TrimSpace(deps.APIKey),
		writeBackTimeout: deps.WriteBackTimeout,
	}, nil
}

// GetArticles answers a category fetch or, when the request carries a query, a search.
func (o *Orchestrator) GetArticles(ctx context.Context, req domain.FetchRequest) (domain.Result, error) {
	if o.apiKey == "" {
		return domain.Result{}, configErr("api key is not set")
	}
	if req.HasBlankQuery() {
		return domain.Result{}, configErr("search query is blank")
	}

	req = req.Normalize()
	online := o.state.Online()
	if req.IsSearch() {
		return o.run(ctx, o.searchStages(), online, req)
	}
	return o.run(ctx, o.categoryStages(), online, req)
}

// Search is a convenience entry point for a search request. Unlike
// GetArticles, an empty query is rejected rather than treated as a category fetch.
func (o *Orchestrator) Search(ctx context.Context, query string, filters domain.Filters, page int) (domain.Result, error) {
	if strings.TrimSpace(query) == "" {
		return domain.Result{}, configErr("search query is blank")
	}
	return o.GetArticles(ctx, domain.FetchRequest{Query: query, Filters: filters, Page: page})
}

// DownloadForOffline captures pages of a category. It requires the network and
// returns the downloader's failure unchanged.
func (o *Orchestrator) DownloadForOffline(ctx context.Context, category string, pages int) (offline.Summary, error) {
	switch {
	case o.apiKey == "":
		return offline.Summary{}, configErr("api key is not set")
	case !o.state.Online():
		return offline.Summary{}, configErr("offline download requires a network connection")
	case pages < 1:
		return offline.Summary{}, configErr("offline download needs at least one page, got %d", pages)
	case o.downloader == nil:
		return offline.Summary{}, configErr("offline downloads are not configured")
	}
	return o.downloader.Download(ctx, category, pages)
}

// Wait blocks until pending background writes have finished. Call it only
// after the requests that scheduled them have returned; use Close when
// requests may still be running.
func (o *Orchestrator) Wait() {
	o.writes.Wait()
}

// Close stops scheduling background writes and waits for those already
// running. Requests answered after Close still succeed but skip the write.
func (o *Orchestrator) Close() {
	o.writeMu.Lock()
	o.closed = true
	o.writeMu.Unlock()
	o.writes.Wait()
}

func (o *Orchestrator) run(ctx context.Context, stages []stage, online bool, req domain.FetchRequest) (domain.Result, error) {
	for _, st := range stages {
		if st.when != nil && !st.when(online) {
			continue
		}
		metrics.StageEntries.WithLabelValues(st.name).Inc()
		if o.observe != nil {
			o.observe(st.name)
		}

		res := st.run(ctx, req)
		if res.err != nil {
			return domain.Result{}, res.err
		}
		if res.hit {
			metrics.Results.WithLabelValues(string(res.result.Source)).Inc()
			o.log.DebugObj("request answered", "result", map[string]any{
				"stage":    st.name,
				"source":   res.result.Source,
				"page":     res.result.PageNum,
				"articles": len(res.result.Articles),
			})
			return res.result, nil
		}
	}
	// The last stage of every machine is terminal.
	return domain.Result{}, errors.New("reader: fallback machine ended without an answer")
}

// writeBack persists a network result without blocking or failing the caller.
func (o *Orchestrator) writeBack(ctx context.Context, kind string, fn func(ctx context.Context) error) {
	o.writeMu.Lock()
	if o.closed {
		o.writeMu.Unlock()
		o.log.DebugObj("background cache write skipped after close", "write_back", map[string]any{"kind": kind})
		return
	}
	o.writes.Add(1)
	o.writeMu.Unlock()

	go func() {
		defer o.writes.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.writeBackTimeout)
		defer cancel()
		if err := fn(wctx); err != nil {
			metrics.WriteBackFailures.WithLabelValues(kind).Inc()
			o.log.WarnObj("background cache write failed", "write_back", map[string]any{
				"kind":  kind,
				"error": err.Error(),
			})
		}
	}()
}
