package domain

// Source is the provenance tag attached to a result.
type Source string

const (
	SourceAPI           Source = "api"
	SourceCache         Source = "cache"
	SourceOffline       Source = "offline"
	SourceCachedPages   Source = "cached_pages"
	SourceSearchCache   Source = "search_cache"
	SourceSearchAPI     Source = "search_api"
	SourceSearchOffline Source = "search_offline"
	SourceSearchEmpty   Source = "search_empty"
)

// Result is the single answer returned to callers regardless of the tier that produced it.
type Result struct {
	Articles     []Article `json:"articles"`
	Source       Source    `json:"source"`
	PageNum      int       `json:"pageNum"`
	TotalResults int       `json:"totalResults"`
	HasMore      bool      `json:"hasMore"`
	IsCached     bool      `json:"isCached"`
}
