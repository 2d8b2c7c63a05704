package newsapi

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/samvad-hq/samvad-reader/internal/domain"
)

const (
	categoryPath = "/latest-news"
	searchPath   = "/search"

	defaultLanguage = "en"
	defaultPageSize = 20
)

// Endpoint describes the remote news API.
type Endpoint struct {
	BaseURL  string
	APIKey   string
	Language string
	PageSize int
}

func (e Endpoint) normalized() Endpoint {
	e.BaseURL = strings.TrimRight(strings.TrimSpace(e.BaseURL), "/")
	e.APIKey = strings.TrimSpace(e.APIKey)
	e.Language = strings.TrimSpace(e.Language)
	if e.Language == "" {
		e.Language = defaultLanguage
	}
	if e.PageSize <= 0 {
		e.PageSize = defaultPageSize
	}
	return e
}

// CategoryURL builds the latest-news URL for a category fetch.
// The category parameter is omitted for the default "latest" category.
func (e Endpoint) CategoryURL(req domain.FetchRequest) (string, error) {
	req = req.Normalize()
	q, base, err := e.baseQuery(req, categoryPath)
	if err != nil {
		return "", err
	}
	if req.Category != domain.DefaultCategory {
		q.Set("category", req.Category)
	}
	addFilters(q, req.Filters)
	return base + "?" + q.Encode(), nil
}

// SearchURL builds the search URL. The query is mandatory.
func (e Endpoint) SearchURL(req domain.FetchRequest) (string, error) {
	req = req.Normalize()
	if req.Query == "" {
		return "", errors.New("search query is empty")
	}
	q, base, err := e.baseQuery(req, searchPath)
	if err != nil {
		return "", err
	}
	addFilters(q, req.Filters)
	// the query is the keyword term; a keywords filter narrows it further
	terms := req.Query
	if kw := q.Get("keywords"); kw != "" {
		terms += " " + kw
	}
	q.Set("keywords", terms)
	return base + "?" + q.Encode(), nil
}

func (e Endpoint) baseQuery(req domain.FetchRequest, path string) (url.Values, string, error) {
	e = e.normalized()
	if e.BaseURL == "" {
		return nil, "", errors.New("news api base url is empty")
	}
	if e.APIKey == "" {
		return nil, "", errors.New("news api key is empty")
	}
	if _, err := url.Parse(e.BaseURL); err != nil {
		return nil, "", fmt.Errorf("parse base url: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = e.Language
	}

	q := url.Values{}
	q.Set("apiKey", e.APIKey)
	q.Set("language", lang)
	q.Set("page_number", strconv.Itoa(req.Page))
	q.Set("page_size", strconv.Itoa(e.PageSize))
	return q, e.BaseURL + path, nil
}

// reservedParams are set from the endpoint and request, never from filters.
var reservedParams = map[string]bool{
	"apikey":      true,
	"language":    true,
	"page_number": true,
	"page_size":   true,
	"category":    true,
}

func addFilters(q url.Values, f domain.Filters) {
	for k, v := range f.Values() {
		if reservedParams[k] {
			continue
		}
		q.Set(k, v)
	}
}
