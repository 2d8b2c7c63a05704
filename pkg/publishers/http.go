package publishers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samvad-hq/samvad-reader/pkg/httpclient"
)

const maxErrorBody = 512

// httpPublisher posts each event as JSON to a webhook.
type httpPublisher struct {
	id     string
	target HTTPPublisherConfig
	client *resty.Client
	log    Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}
	timeout := time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second
	return &httpPublisher{
		id:     cfg.ID,
		target: *cfg.HTTP,
		client: httpclient.NewRestyHTTPClient(timeout),
		log:    ensureLogger(log),
	}, nil
}

func (h *httpPublisher) ID() string   { return h.id }
func (h *httpPublisher) Type() string { return TypeHTTP }

// Publish sends the event body with its type in X-Event-Type. Configured
// headers go first so they cannot replace the content or event type.
func (h *httpPublisher) Publish(ctx context.Context, evt Event) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeaders(h.target.Headers).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Event-Type", evt.Type).
		SetBody(evt).
		Execute(h.target.Method, h.target.URL)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("http response status %d: %s", resp.StatusCode(), errorBody(resp.Body()))
	}

	h.log.DebugObj("download event delivered over http", "publisher_http_delivery", map[string]any{
		"publisher": h.id,
		"event_id":  evt.ID,
		"category":  evt.Category,
		"status":    resp.StatusCode(),
	})
	return nil
}

func errorBody(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}
