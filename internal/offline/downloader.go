// Package offline captures whole categories into the saved-for-offline store.
package offline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samvad-hq/samvad-reader/internal/domain"
	"github.com/samvad-hq/samvad-reader/internal/logger"
	"github.com/samvad-hq/samvad-reader/pkg/newsapi"
	"github.com/samvad-hq/samvad-reader/pkg/publishers"
)

// Fetcher retrieves category pages through the request queue.
type Fetcher interface {
	FetchCategory(ctx context.Context, req domain.FetchRequest) (newsapi.Page, error)
}

// Store receives downloaded pages.
type Store interface {
	CacheArticlesPage(ctx context.Context, articles []domain.Article, key domain.PageKey) error
	SaveOfflineArticles(ctx context.Context, articles []domain.Article) error
}

// EventPublisher is notified after a download completes.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// ArticleEnricher completes article records before they are saved.
type ArticleEnricher interface {
	Enrich(ctx context.Context, articles []domain.Article) []domain.Article
}

// Summary describes a finished download.
type Summary struct {
	Category string `json:"category"`
	Pages    int    `json:"pages"`
	Articles int    `json:"articles"`
}

// Downloader fetches consecutive pages of a category and keeps them for offline reading.
type Downloader struct {
	fetcher   Fetcher
	store     Store
	publisher EventPublisher
	enricher  ArticleEnricher
	log       logger.Logger
}

// NewDownloader wires a downloader. publisher may be nil.
func NewDownloader(fetcher Fetcher, store Store, publisher EventPublisher, log logger.Logger) (*Downloader, error) {
	if fetcher == nil {
		return nil, errors.New("offline: fetcher is required")
	}
	if store == nil {
		return nil, errors.New("offline: store is required")
	}
	return &Downloader{fetcher: fetcher, store: store, publisher: publisher, log: logger.Ensure(log)}, nil
}

// WithEnricher makes saved articles pass through e first.
func (d *Downloader) WithEnricher(e ArticleEnricher) *Downloader {
	d.enricher = e
	return d
}

// Download fetches pages 1..pages, stopping early at an empty page or when the
// API reports no more results. A fetch failure aborts the download and is
// returned as is; pages already stored stay stored.
func (d *Downloader) Download(ctx context.Context, category string, pages int) (Summary, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = domain.DefaultCategory
	}
	sum := Summary{Category: category}

	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		req := domain.FetchRequest{Category: category, Page: page}
		res, err := d.fetcher.FetchCategory(ctx, req)
		if err != nil {
			d.log.WarnObj("offline download aborted", "offline", map[string]any{
				"category": category,
				"page":     page,
				"error":    err.Error(),
			})
			return sum, err
		}
		if len(res.Articles) == 0 {
			break
		}

		if err := d.store.CacheArticlesPage(ctx, res.Articles, req.Key()); err != nil {
			return sum, fmt.Errorf("cache page %d: %w", page, err)
		}
		saved := res.Articles
		if d.enricher != nil {
			saved = d.enricher.Enrich(ctx, saved)
		}
		if err := d.store.SaveOfflineArticles(ctx, saved); err != nil {
			return sum, fmt.Errorf("save offline articles from page %d: %w", page, err)
		}

		sum.Pages++
		sum.Articles += len(res.Articles)
		if !res.HasMore {
			break
		}
	}

	d.log.InfoObj("offline download complete", "offline", sum)
	d.notify(ctx, sum)
	return sum, nil
}

func (d *Downloader) notify(ctx context.Context, sum Summary) {
	if d.publisher == nil {
		return
	}
	evt := publishers.NewEvent(publishers.EventOfflineDownloadCompleted, sum.Category, sum.Pages, sum.Articles)
	delivered, err := d.publisher.Publish(ctx, evt)
	if err != nil {
		d.log.WarnObj("offline download event not fully delivered", "publish", map[string]any{
			"event_id":  evt.ID,
			"delivered": delivered,
			"error":     err.Error(),
		})
	}
}
