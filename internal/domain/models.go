package domain

import "time"

// Domain contains core models shared by the retrieval pipeline and storage.

// Article is a single news record as returned by the remote API. Records are
// never mutated after retrieval; a re-fetch supersedes them.
type Article struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Summary      string    `json:"description,omitempty"`
	Body         string    `json:"content,omitempty"`
	URL          string    `json:"url"`
	ImageURL     string    `json:"image,omitempty"`
	PublishedAt  time.Time `json:"published"`
	Category     string    `json:"category,omitempty"`
	Language     string    `json:"language,omitempty"`
	SourceDomain string    `json:"domain,omitempty"`
}

// CloneArticles returns a copy of the slice so callers cannot alias cached data.
func CloneArticles(in []Article) []Article {
	if len(in) == 0 {
		return []Article{}
	}
	out := make([]Article, len(in))
	copy(out, in)
	return out
}
