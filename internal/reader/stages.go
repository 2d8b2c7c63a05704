package reader

import (
	"context"

	"github.com/samvad-hq/samvad-reader/internal/domain"
	"github.com/samvad-hq/samvad-reader/internal/queue"
)

// Stage names, also used as metric labels.
const (
	StageCheckStorageIfOffline = "CheckStorageIfOffline"
	StageTryNetwork            = "TryNetwork"
	StageFallbackSavedArticles = "FallbackSavedArticles"
	StageFallbackMergedPages   = "FallbackMergedPages"
	StageExhausted             = "Exhausted"

	StageCheckSearchCache      = "CheckSearchCache"
	StageTryNetworkSearch      = "TryNetworkSearch"
	StageFallbackOfflineSearch = "FallbackOfflineSearch"
	StageEmpty                 = "Empty"
)

// stageResult is the outcome of one stage: a hit carrying the answer, a miss,
// or an error that must reach the caller.
type stageResult struct {
	hit    bool
	result domain.Result
	err    error
}

var miss = stageResult{}

func hit(r domain.Result) stageResult { return stageResult{hit: true, result: r} }

func fail(err error) stageResult { return stageResult{err: err} }

type stage struct {
	name string
	// when gates entry on the network state snapshot; nil means always.
	when func(online bool) bool
	run  func(ctx context.Context, req domain.FetchRequest) stageResult
}

func onlyOnline(online bool) bool  { return online }
func onlyOffline(online bool) bool { return !online }

func (o *Orchestrator) categoryStages() []stage {
	return []stage{
		{name: StageCheckStorageIfOffline, when: onlyOffline, run: o.checkStorage},
		{name: StageTryNetwork, when: onlyOnline, run: o.tryNetwork},
		{name: StageFallbackSavedArticles, run: o.fallbackSaved},
		{name: StageFallbackMergedPages, run: o.fallbackMerged},
		{name: StageExhausted, run: exhausted},
	}
}

func (o *Orchestrator) searchStages() []stage {
	return []stage{
		{name: StageCheckSearchCache, run: o.checkSearchCache},
		{name: StageTryNetworkSearch, when: onlyOnline, run: o.tryNetworkSearch},
		{name: StageFallbackOfflineSearch, run: o.fallbackOfflineSearch},
		{name: StageEmpty, run: empty},
	}
}

func (o *Orchestrator) checkStorage(ctx context.Context, req domain.FetchRequest) stageResult {
	articles, err := o.store.GetArticlesPage(ctx, req.Key())
	if err != nil {
		o.storageMiss(StageCheckStorageIfOffline, err)
		return miss
	}
	if len(articles) == 0 {
		return miss
	}
	return hit(domain.Result{
		Articles:     articles,
		Source:       domain.SourceCache,
		PageNum:      req.Page,
		TotalResults: len(articles),
		HasMore:      len(articles) >= o.pageSize,
		IsCached:     true,
	})
}

func (o *Orchestrator) tryNetwork(ctx context.Context, req domain.FetchRequest) stageResult {
	page, err := o.fetcher.FetchCategory(ctx, req)
	if err != nil {
		return o.networkMiss(StageTryNetwork, err)
	}
	if len(page.Articles) == 0 {
		return miss
	}

	key := req.Key()
	snapshot := domain.CloneArticles(page.Articles)
	o.writeBack(ctx, "page", func(ctx context.Context) error {
		return o.store.CacheArticlesPage(ctx, snapshot, key)
	})
	return hit(domain.Result{
		Articles:     page.Articles,
		Source:       domain.SourceAPI,
		PageNum:      req.Page,
		TotalResults: page.TotalResults,
		HasMore:      page.HasMore,
	})
}

func (o *Orchestrator) fallbackSaved(ctx context.Context, req domain.FetchRequest) stageResult {
	offset := (req.Page - 1) * o.pageSize
	articles, err := o.store.GetOfflineArticles(ctx, o.pageSize, offset)
	if err != nil {
		o.storageMiss(StageFallbackSavedArticles, err)
		return miss
	}
	if len(articles) == 0 {
		return miss
	}
	return hit(domain.Result{
		Articles:     articles,
		Source:       domain.SourceOffline,
		PageNum:      req.Page,
		TotalResults: offset + len(articles),
		HasMore:      len(articles) == o.pageSize,
		IsCached:     true,
	})
}

func (o *Orchestrator) fallbackMerged(ctx context.Context, req domain.FetchRequest) stageResult {
	entries, err := o.store.GetAllCachedPages(ctx, req.Key())
	if err != nil {
		o.storageMiss(StageFallbackMergedPages, err)
		return miss
	}
	var merged []domain.Article
	for _, e := range entries {
		merged = append(merged, e.Articles...)
	}
	if len(merged) == 0 {
		return miss
	}
	return hit(domain.Result{
		Articles:     merged,
		Source:       domain.SourceCachedPages,
		PageNum:      req.Page,
		TotalResults: len(merged),
		IsCached:     true,
	})
}

func exhausted(_ context.Context, req domain.FetchRequest) stageResult {
	return fail(&ExhaustionError{Category: req.Category, Page: req.Page})
}

func (o *Orchestrator) checkSearchCache(ctx context.Context, req domain.FetchRequest) stageResult {
	articles, err := o.store.GetCachedSearchResults(ctx, req.Query, req.Filters, req.Page)
	if err != nil {
		o.storageMiss(StageCheckSearchCache, err)
		return miss
	}
	if len(articles) == 0 {
		return miss
	}
	return hit(domain.Result{
		Articles:     articles,
		Source:       domain.SourceSearchCache,
		PageNum:      req.Page,
		TotalResults: len(articles),
		HasMore:      len(articles) >= o.pageSize,
		IsCached:     true,
	})
}

func (o *Orchestrator) tryNetworkSearch(ctx context.Context, req domain.FetchRequest) stageResult {
	page, err := o.fetcher.Search(ctx, req)
	if err != nil {
		return o.networkMiss(StageTryNetworkSearch, err)
	}
	if len(page.Articles) == 0 {
		return miss
	}

	query, filters, pageNum := req.Query, req.Filters, req.Page
	snapshot := domain.CloneArticles(page.Articles)
	o.writeBack(ctx, "search", func(ctx context.Context) error {
		return o.store.CacheSearchResults(ctx, query, filters, pageNum, snapshot)
	})
	return hit(domain.Result{
		Articles:     page.Articles,
		Source:       domain.SourceSearchAPI,
		PageNum:      req.Page,
		TotalResults: page.TotalResults,
		HasMore:      page.HasMore,
	})
}

func (o *Orchestrator) fallbackOfflineSearch(ctx context.Context, req domain.FetchRequest) stageResult {
	matches, err := o.store.SearchArticles(ctx, req.Query, req.Filters)
	if err != nil {
		o.storageMiss(StageFallbackOfflineSearch, err)
		return miss
	}
	offset := (req.Page - 1) * o.pageSize
	if offset >= len(matches) {
		return miss
	}
	end := min(offset+o.pageSize, len(matches))
	return hit(domain.Result{
		Articles:     domain.CloneArticles(matches[offset:end]),
		Source:       domain.SourceSearchOffline,
		PageNum:      req.Page,
		TotalResults: len(matches),
		HasMore:      end < len(matches),
		IsCached:     true,
	})
}

func empty(_ context.Context, req domain.FetchRequest) stageResult {
	return hit(domain.Result{
		Articles: []domain.Article{},
		Source:   domain.SourceSearchEmpty,
		PageNum:  req.Page,
	})
}

// networkMiss converts a network failure into a miss. Configuration errors
// are the exception and reach the caller.
func (o *Orchestrator) networkMiss(stageName string, err error) stageResult {
	if IsConfigurationError(err) {
		return fail(err)
	}
	o.log.WarnObj("network stage failed, falling back", "network_error", map[string]any{
		"stage": stageName,
		"kind":  queue.Kind(err),
		"error": err.Error(),
	})
	return miss
}

func (o *Orchestrator) storageMiss(stageName string, err error) {
	o.log.WarnObj("storage read failed, treating as miss", "storage_error", map[string]any{
		"stage": stageName,
		"error": err.Error(),
	})
}
