package domain

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	// DefaultCategory is the category used when a request names none.
	DefaultCategory = "latest"

	KindCategory = "category"
	KindSearch   = "search"
)

// Filters narrows a category fetch or a search.
type Filters struct {
	StartDate string            `json:"start_date,omitempty"`
	EndDate   string            `json:"end_date,omitempty"`
	Domain    string            `json:"domain,omitempty"`
	Keywords  string            `json:"keywords,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// Values flattens the filters into trimmed, lower-cased keys with non-empty values.
func (f Filters) Values() map[string]string {
	out := make(map[string]string, 4+len(f.Extra))
	put := func(k, v string) {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			return
		}
		out[k] = v
	}
	for k, v := range f.Extra {
		put(k, v)
	}
	put("start_date", f.StartDate)
	put("end_date", f.EndDate)
	put("domain", f.Domain)
	put("keywords", f.Keywords)
	return out
}

// IsZero reports whether no filter carries a value.
func (f Filters) IsZero() bool { return len(f.Values()) == 0 }

// Signature is the canonical encoding of the filter set. Filters with the same
// content produce the same signature regardless of how they were built.
func (f Filters) Signature() string {
	vals := f.Values()
	if len(vals) == 0 {
		return ""
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(vals[k]))
	}
	return strings.Join(parts, "&")
}

// FetchRequest is either a category fetch or a search, depending on Query.
type FetchRequest struct {
	Page     int
	Category string
	Query    string
	Filters  Filters
	Language string
}

// IsSearch reports whether the request carries a non-blank query.
func (r FetchRequest) IsSearch() bool { return strings.TrimSpace(r.Query) != "" }

// HasBlankQuery reports a query that was supplied but contains only whitespace.
func (r FetchRequest) HasBlankQuery() bool {
	return r.Query != "" && strings.TrimSpace(r.Query) == ""
}

// Normalize returns the request with page and category defaults applied.
func (r FetchRequest) Normalize() FetchRequest {
	if r.Page < 1 {
		r.Page = 1
	}
	r.Category = strings.ToLower(strings.TrimSpace(r.Category))
	if r.Category == "" {
		r.Category = DefaultCategory
	}
	r.Query = strings.TrimSpace(r.Query)
	r.Language = strings.TrimSpace(r.Language)
	return r
}

// Key returns the cache slot addressed by the request.
func (r FetchRequest) Key() PageKey {
	n := r.Normalize()
	if n.IsSearch() {
		return PageKey{Kind: KindSearch, Subject: strings.ToLower(n.Query), FiltersSig: n.Filters.Signature(), Page: n.Page}
	}
	return PageKey{Kind: KindCategory, Subject: n.Category, FiltersSig: n.Filters.Signature(), Page: n.Page}
}

// PageKey addresses one page of cached results.
type PageKey struct {
	Kind       string
	Subject    string
	FiltersSig string
	Page       int
}

// Prefix identifies every page for the same kind, subject and filters.
// Subject and signature are escaped so neither can contain the separator.
func (k PageKey) Prefix() string {
	return k.Kind + "|" + url.QueryEscape(k.Subject) + "|" + url.QueryEscape(k.FiltersSig) + "|"
}

func (k PageKey) String() string {
	return k.Prefix() + strconv.Itoa(k.Page)
}

// SearchKey is the cache key for one page of search results, independent of page keys.
// Pages below 1 address page 1.
func SearchKey(query string, f Filters, page int) string {
	if page < 1 {
		page = 1
	}
	return url.QueryEscape(strings.ToLower(strings.TrimSpace(query))) + "|" + url.QueryEscape(f.Signature()) + "|" + strconv.Itoa(page)
}
