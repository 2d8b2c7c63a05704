package offline

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/samvad-hq/samvad-reader/internal/domain"
	"github.com/samvad-hq/samvad-reader/internal/logger"
	"github.com/samvad-hq/samvad-reader/pkg/httpclient"
)

const maxPageBytes = 1 << 20 // 1 MiB

// Enricher fills in a missing summary or image from the article page's
// Open Graph tags so the saved copy reads well without the network.
type Enricher struct {
	client httpclient.Client
	delay  time.Duration
	log    logger.Logger
}

// NewEnricher builds an Enricher. delay spaces consecutive page fetches.
func NewEnricher(client httpclient.Client, delay time.Duration, log logger.Logger) *Enricher {
	return &Enricher{client: client, delay: delay, log: logger.Ensure(log)}
}

// Enrich returns a copy of articles with gaps filled where the article page
// supplies them. Failures leave the article as it was. Cancelling ctx stops
// further fetches; the remaining articles are returned untouched.
func (e *Enricher) Enrich(ctx context.Context, articles []domain.Article) []domain.Article {
	out := domain.CloneArticles(articles)
	if e == nil || e.client == nil {
		return out
	}

	fetched := 0
	for i, art := range out {
		if !needsEnrichment(art) {
			continue
		}
		if fetched > 0 && e.delay > 0 {
			timer := time.NewTimer(e.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return out
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return out
		}
		fetched++

		meta, err := e.fetchMeta(ctx, art.URL)
		if err != nil {
			e.log.DebugObj("article page scrape failed", "enrich", map[string]any{
				"id":    art.ID,
				"url":   art.URL,
				"error": err.Error(),
			})
			continue
		}
		if art.Summary == "" {
			out[i].Summary = meta.Description
		}
		if art.ImageURL == "" {
			out[i].ImageURL = resolveImage(art.URL, meta.ImageURL)
		}
		if art.Title == "" {
			out[i].Title = meta.Title
		}
	}
	return out
}

func needsEnrichment(a domain.Article) bool {
	return a.URL != "" && (a.Summary == "" || a.ImageURL == "" || a.Title == "")
}

func (e *Enricher) fetchMeta(ctx context.Context, pageURL string) (pageMeta, error) {
	resp, err := e.client.Get(ctx, pageURL, map[string]string{"Accept": "text/html"})
	if err != nil {
		return pageMeta{}, fmt.Errorf("http fetch: %w", err)
	}
	if resp.StatusCode() != 200 {
		return pageMeta{}, fmt.Errorf("status %d", resp.StatusCode())
	}

	body := resp.Body()
	if len(body) > maxPageBytes {
		body = body[:maxPageBytes]
	}
	return parseMeta(body)
}

type pageMeta struct {
	Title       string
	Description string
	ImageURL    string
}

func parseMeta(body []byte) (pageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageMeta{}, fmt.Errorf("parse html: %w", err)
	}

	content := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	return pageMeta{
		Title: firstNonEmpty(
			content(`meta[property="og:title"]`),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
		Description: firstNonEmpty(
			content(`meta[property="og:description"]`),
			content(`meta[name="description"]`),
		),
		ImageURL: content(`meta[property="og:image"]`),
	}, nil
}

// resolveImage makes a relative og:image absolute against the article URL.
func resolveImage(pageURL, image string) string {
	if image == "" {
		return ""
	}
	ref, err := url.Parse(image)
	if err != nil {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return image
	}
	return base.ResolveReference(ref).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
