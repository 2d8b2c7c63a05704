package newsapi

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-reader/internal/domain"
	"github.com/samvad-hq/samvad-reader/internal/queue"
)

func testEndpoint() Endpoint {
	return Endpoint{BaseURL: "https://api.test/v1/", APIKey: "k", Language: "en", PageSize: 10}
}

func TestCategoryURLOmitsDefaultCategory(t *testing.T) {
	raw, err := testEndpoint().CategoryURL(domain.FetchRequest{Page: 2})
	if err != nil {
		t.Fatalf("CategoryURL: %v", err)
	}
	u, _ := url.Parse(raw)
	if u.Path != "/v1/latest-news" {
		t.Fatalf("path = %s", u.Path)
	}
	q := u.Query()
	if q.Has("category") {
		t.Fatalf("latest must not send category: %s", raw)
	}
	if q.Get("page_number") != "2" || q.Get("page_size") != "10" || q.Get("apiKey") != "k" || q.Get("language") != "en" {
		t.Fatalf("unexpected query %v", q)
	}
}

func TestCategoryURLAddsCategoryAndFilters(t *testing.T) {
	raw, err := testEndpoint().CategoryURL(domain.FetchRequest{
		Category: "Sports",
		Filters:  domain.Filters{StartDate: "2025-01-01", Domain: "bbc.com"},
	})
	if err != nil {
		t.Fatalf("CategoryURL: %v", err)
	}
	q, _ := url.ParseQuery(mustQuery(t, raw))
	if q.Get("category") != "sports" || q.Get("start_date") != "2025-01-01" || q.Get("domain") != "bbc.com" {
		t.Fatalf("unexpected query %v", q)
	}
}

func TestSearchURLRequiresQuery(t *testing.T) {
	if _, err := testEndpoint().SearchURL(domain.FetchRequest{Query: "  "}); err == nil {
		t.Fatalf("expected error for blank query")
	}
	raw, err := testEndpoint().SearchURL(domain.FetchRequest{Query: "election"})
	if err != nil {
		t.Fatalf("SearchURL: %v", err)
	}
	q, _ := url.ParseQuery(mustQuery(t, raw))
	if q.Get("keywords") != "election" {
		t.Fatalf("keywords = %q", q.Get("keywords"))
	}
}

func TestSearchURLKeepsKeywordFilter(t *testing.T) {
	for _, f := range []domain.Filters{
		{Keywords: "turnout"},
		{Extra: map[string]string{"Keywords": "turnout"}},
	} {
		raw, err := testEndpoint().SearchURL(domain.FetchRequest{Query: "election", Filters: f})
		if err != nil {
			t.Fatalf("SearchURL: %v", err)
		}
		q, _ := url.ParseQuery(mustQuery(t, raw))
		if got := q["keywords"]; len(got) != 1 || got[0] != "election turnout" {
			t.Fatalf("filters %+v: keywords = %v", f, got)
		}
	}
}

func TestExtraFiltersCannotOverrideRequestParams(t *testing.T) {
	req := domain.FetchRequest{
		Page:     3,
		Category: "sports",
		Filters: domain.Filters{Extra: map[string]string{
			"page_number": "9",
			"page_size":   "500",
			"language":    "xx",
			"category":    "politics",
			"apiKey":      "stolen",
			"country":     "in",
		}},
	}
	raw, err := testEndpoint().CategoryURL(req)
	if err != nil {
		t.Fatalf("CategoryURL: %v", err)
	}
	q, _ := url.ParseQuery(mustQuery(t, raw))
	if q.Get("page_number") != "3" || q.Get("page_size") != "10" || q.Get("language") != "en" || q.Get("category") != "sports" {
		t.Fatalf("request params overridden: %v", q)
	}
	if q.Has("apikey") || q.Get("apiKey") != "k" {
		t.Fatalf("credential overridden: %v", q)
	}
	if q.Get("country") != "in" {
		t.Fatalf("unreserved extra filter dropped: %v", q)
	}

	req.Query = "cricket"
	raw, err = testEndpoint().SearchURL(req)
	if err != nil {
		t.Fatalf("SearchURL: %v", err)
	}
	q, _ = url.ParseQuery(mustQuery(t, raw))
	if q.Get("page_number") != "3" || q.Has("category") || q.Get("keywords") != "cricket" {
		t.Fatalf("search params overridden: %v", q)
	}
}

func TestURLRequiresCredential(t *testing.T) {
	ep := testEndpoint()
	ep.APIKey = ""
	if _, err := ep.CategoryURL(domain.FetchRequest{}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

func mustQuery(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u.RawQuery
}

func TestDecodeAppliesDefaults(t *testing.T) {
	page, err := Decode(map[string]any{}, 1, 10)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(page.Articles) != 0 || page.TotalResults != 0 || page.HasMore {
		t.Fatalf("unexpected page %+v", page)
	}

	page, err = Decode(map[string]any{"total": float64(25), "news": []any{}}, 2, 10)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if page.TotalResults != 25 || !page.HasMore {
		t.Fatalf("expected total fallback and derived hasMore, got %+v", page)
	}

	page, err = Decode(map[string]any{"totalResults": float64(3), "total": float64(99), "hasMore": false}, 1, 10)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if page.TotalResults != 3 || page.HasMore {
		t.Fatalf("totalResults must win over total, got %+v", page)
	}
}

func TestDecodeMapsArticles(t *testing.T) {
	body := map[string]any{
		"news": []any{
			map[string]any{
				"id":          "a1",
				"title":       "Headline",
				"description": "<p>Some <b>bold</b>\n text</p>",
				"url":         "https://example.com/a1",
				"published":   "2025-03-01 10:00:00 +0000",
				"category":    []any{"world", "politics"},
				"language":    "en",
			},
			map[string]any{"url": "https://example.com/no-id"},
		},
		"page": float64(1),
	}
	page, err := Decode(body, 1, 10)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(page.Articles) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(page.Articles))
	}
	a := page.Articles[0]
	if a.Summary != "Some bold text" {
		t.Fatalf("Summary = %q", a.Summary)
	}
	if a.Category != "world,politics" {
		t.Fatalf("Category = %q", a.Category)
	}
	if !a.PublishedAt.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("PublishedAt = %s", a.PublishedAt)
	}
	if page.Articles[1].ID == "" {
		t.Fatalf("expected id derived from url")
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	bodies := []map[string]any{
		{"news": "nope"},
		{"news": []any{"string item"}},
		{"news": []any{map[string]any{"title": "no id or url"}}},
		{"totalResults": "ten"},
		{"totalResults": 1e300},
		{"total": -1},
		{"page": 2.5},
		{"page": float64(1 << 40)},
		{"hasMore": "yes"},
	}
	for _, body := range bodies {
		_, err := Decode(body, 1, 10)
		var formatErr *queue.ResponseFormatError
		if !errors.As(err, &formatErr) {
			t.Fatalf("body %v: expected ResponseFormatError, got %v", body, err)
		}
	}
}

type fakeSubmitter struct {
	urls []string
	body map[string]any
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, u string) (map[string]any, error) {
	f.urls = append(f.urls, u)
	return f.body, f.err
}

func TestClientFetchCategoryDecodes(t *testing.T) {
	sub := &fakeSubmitter{body: map[string]any{
		"news":         []any{map[string]any{"id": "1", "url": "https://x/1"}},
		"totalResults": float64(1),
	}}
	c := NewClient(testEndpoint(), sub)

	page, err := c.FetchCategory(context.Background(), domain.FetchRequest{Page: 1})
	if err != nil {
		t.Fatalf("FetchCategory: %v", err)
	}
	if len(page.Articles) != 1 || len(sub.urls) != 1 {
		t.Fatalf("unexpected page %+v urls %v", page, sub.urls)
	}
}

func TestClientPropagatesQueueErrors(t *testing.T) {
	sub := &fakeSubmitter{err: &queue.AuthError{Status: 401}}
	c := NewClient(testEndpoint(), sub)

	_, err := c.Search(context.Background(), domain.FetchRequest{Query: "x"})
	var authErr *queue.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestCleanTextLeavesPlainText(t *testing.T) {
	if got := CleanText("  plain text "); got != "plain text" {
		t.Fatalf("CleanText = %q", got)
	}
}
