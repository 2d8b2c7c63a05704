package publishers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestHTTPPublisher(t *testing.T, url string, headers map[string]string) Publisher {
	t.Helper()
	cfg := sanitizePublisherConfig(PublisherConfig{
		ID:   "download-hook",
		Type: TypeHTTP,
		HTTP: &HTTPPublisherConfig{URL: url, Headers: headers, TimeoutSeconds: 2},
	})
	pub, err := newHTTPPublisher(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("newHTTPPublisher: %v", err)
	}
	return pub
}

func TestHTTPPublisherPostsDownloadEvent(t *testing.T) {
	evt := NewEvent(EventOfflineDownloadCompleted, "world", 2, 15)

	var got Event
	var eventType, token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		eventType = r.Header.Get("X-Event-Type")
		token = r.Header.Get("X-Hook-Token")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body %s: %v", body, err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	pub := newTestHTTPPublisher(t, srv.URL, map[string]string{" X-Hook-Token ": "s3cret", "X-Empty": " "})
	if err := pub.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if eventType != EventOfflineDownloadCompleted || token != "s3cret" {
		t.Fatalf("headers: event type %q, token %q", eventType, token)
	}
	if got.ID != evt.ID || got.Type != EventOfflineDownloadCompleted {
		t.Fatalf("unexpected identity %+v", got)
	}
	if got.Category != "world" || got.Pages != 2 || got.Articles != 15 {
		t.Fatalf("unexpected download summary %+v", got)
	}
	if !got.At.Equal(evt.At) {
		t.Fatalf("timestamp changed in transit: %v vs %v", got.At, evt.At)
	}
}

func TestHTTPPublisherReportsRejectedEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown category", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	pub := newTestHTTPPublisher(t, srv.URL, nil)
	err := pub.Publish(context.Background(), NewEvent(EventOfflineDownloadCompleted, "sports", 1, 0))
	if err == nil {
		t.Fatalf("expected error on 422")
	}
	if want := "http response status 422: unknown category"; err.Error() != want {
		t.Fatalf("error = %q, want %q", err.Error(), want)
	}
}

func TestEventAttributesCarryTypeAndCategory(t *testing.T) {
	attrs := NewEvent(EventOfflineDownloadCompleted, "business", 3, 40).attributes()
	if len(attrs) != 2 || attrs["event_type"] != EventOfflineDownloadCompleted || attrs["category"] != "business" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}

func TestNewEventAssignsFreshIDs(t *testing.T) {
	a := NewEvent(EventOfflineDownloadCompleted, "world", 1, 1)
	b := NewEvent(EventOfflineDownloadCompleted, "world", 1, 1)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("event ids not unique: %q %q", a.ID, b.ID)
	}
	if a.At.Location().String() != "UTC" {
		t.Fatalf("timestamp not UTC: %v", a.At)
	}
}
