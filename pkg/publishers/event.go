package publishers

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the reader.
const (
	EventOfflineDownloadCompleted = "offline_download.completed"
)

// Event represents the payload published downstream.
type Event struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Category string    `json:"category"`
	Pages    int       `json:"pages"`
	Articles int       `json:"articles"`
	At       time.Time `json:"at"`
}

// NewEvent constructs an Event with a fresh id and timestamp.
func NewEvent(typ, category string, pages, articles int) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     typ,
		Category: category,
		Pages:    pages,
		Articles: articles,
		At:       time.Now().UTC(),
	}
}

// attributes are attached to queue messages so consumers can filter without decoding.
func (e Event) attributes() map[string]string {
	return map[string]string{
		"event_type": e.Type,
		"category":   e.Category,
	}
}
