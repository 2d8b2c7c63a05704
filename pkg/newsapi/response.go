package newsapi

import (
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/samvad-reader/internal/domain"
	"github.com/samvad-hq/samvad-reader/internal/queue"
)

// Page is one decoded page of API results.
type Page struct {
	Articles     []domain.Article
	TotalResults int
	Page         int
	HasMore      bool
}

var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 +0000",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Decode validates a response body and maps it to a Page.
// Absent `news` is an empty page; a present but malformed field is a ResponseFormatError.
// The result count is read from `totalResults`, then `total`, then defaults to 0.
func Decode(body map[string]any, page, pageSize int) (Page, error) {
	if body == nil {
		return Page{}, formatErr("response body is empty")
	}

	out := Page{Page: page, Articles: []domain.Article{}}

	if raw, ok := body["news"]; ok && raw != nil {
		items, ok := raw.([]any)
		if !ok {
			return Page{}, formatErr("news must be an array, got %T", raw)
		}
		out.Articles = make([]domain.Article, 0, len(items))
		for i, it := range items {
			obj, ok := it.(map[string]any)
			if !ok {
				return Page{}, formatErr("news[%d] must be an object, got %T", i, it)
			}
			art, err := decodeArticle(obj)
			if err != nil {
				return Page{}, formatErr("news[%d]: %v", i, err)
			}
			out.Articles = append(out.Articles, art)
		}
	}

	total, found, err := countField(body, "totalResults")
	if err != nil {
		return Page{}, err
	}
	if !found {
		if total, _, err = countField(body, "total"); err != nil {
			return Page{}, err
		}
	}
	out.TotalResults = total

	if raw, ok := body["page"]; ok && raw != nil {
		n, ok := asInt(raw)
		if !ok {
			return Page{}, formatErr("page must be numeric, got %T", raw)
		}
		out.Page = n
	}

	if raw, ok := body["hasMore"]; ok && raw != nil {
		b, ok := raw.(bool)
		if !ok {
			return Page{}, formatErr("hasMore must be a boolean, got %T", raw)
		}
		out.HasMore = b
	} else {
		out.HasMore = pageSize > 0 && out.Page*pageSize < out.TotalResults
	}

	return out, nil
}

func countField(body map[string]any, key string) (int, bool, error) {
	raw, ok := body[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	n, ok := asInt(raw)
	if !ok || n < 0 {
		return 0, true, formatErr("%s must be a non-negative number, got %v", key, raw)
	}
	return n, true, nil
}

func decodeArticle(obj map[string]any) (domain.Article, error) {
	art := domain.Article{
		Title:        stringField(obj, "title"),
		Summary:      CleanText(stringField(obj, "description")),
		Body:         stringField(obj, "content", "body"),
		URL:          stringField(obj, "url"),
		ImageURL:     stringField(obj, "image"),
		Language:     stringField(obj, "language"),
		SourceDomain: stringField(obj, "domain", "source"),
		Category:     categoryField(obj["category"]),
	}

	switch id := obj["id"].(type) {
	case string:
		art.ID = strings.TrimSpace(id)
	case float64:
		art.ID = strconv.FormatFloat(id, 'f', -1, 64)
	}
	if art.ID == "" {
		if art.URL == "" {
			return domain.Article{}, errors.New("article has neither id nor url")
		}
		art.ID = hashURL(art.URL)
	}

	if raw := stringField(obj, "published", "published_at", "publishedAt"); raw != "" {
		art.PublishedAt = parsePublished(raw)
	}
	return art, nil
}

func stringField(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k].(string); ok {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func categoryField(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, c := range v {
			if s, ok := c.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

func parsePublished(raw string) time.Time {
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// asInt accepts whole numbers within the int32 range.
func asInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	case int:
		if v > math.MaxInt32 || v < -math.MaxInt32 {
			return 0, false
		}
		return v, true
	case int64:
		if v > math.MaxInt32 || v < -math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}

// CleanText reduces an HTML fragment to collapsed plain text.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func hashURL(u string) string {
	sum := sha1.Sum([]byte(u))
	return hex.EncodeToString(sum[:])
}

func formatErr(format string, args ...any) error {
	return &queue.ResponseFormatError{Err: fmt.Errorf(format, args...)}
}
