package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-reader/internal/logger"
	"github.com/samvad-hq/samvad-reader/internal/metrics"
	"github.com/samvad-hq/samvad-reader/pkg/httpclient"
)

const (
	defaultMinInterval       = 100 * time.Millisecond
	defaultRequestTimeout    = 30 * time.Second
	defaultMaxRetries        = 3
	defaultRetryDelay        = time.Second
	defaultBackoffMultiplier = 2.0
	defaultDrainDelay        = 50 * time.Millisecond

	maxSnippetBytes = 512
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options controls spacing, timeouts and retry behaviour of the queue.
type Options struct {
	MinInterval       time.Duration
	RequestTimeout    time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	BackoffMultiplier float64
	DrainDelay        time.Duration
	Headers           map[string]string

	// Sleep and Now are replaceable for tests.
	Sleep SleepFunc
	Now   func() time.Time
}

// DefaultOptions returns the stock queue settings.
func DefaultOptions() Options {
	return Options{
		MinInterval:       defaultMinInterval,
		RequestTimeout:    defaultRequestTimeout,
		MaxRetries:        defaultMaxRetries,
		RetryDelay:        defaultRetryDelay,
		BackoffMultiplier: defaultBackoffMultiplier,
		DrainDelay:        defaultDrainDelay,
	}
}

func normalizeOptions(opts Options) Options {
	if opts.MinInterval < 0 {
		opts.MinInterval = 0
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.BackoffMultiplier < 1 {
		opts.BackoffMultiplier = defaultBackoffMultiplier
	}
	if opts.DrainDelay < 0 {
		opts.DrainDelay = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

// item is one queued request; it lives until its continuation is resolved.
type item struct {
	ctx      context.Context
	url      string
	enqueued time.Time
	done     chan result
}

type result struct {
	body map[string]any
	err  error
}

// Queue serializes outbound API calls through a single consumer goroutine.
// Items are dispatched strictly in submission order with at most one in flight.
type Queue struct {
	client httpclient.Client
	opts   Options
	log    logger.Logger

	mu      sync.Mutex
	items   []*item
	running bool
	closed  bool

	wake   chan struct{}
	cancel context.CancelFunc
	exited chan struct{}

	// lastDispatch is only touched by the consumer goroutine.
	lastDispatch time.Time
}

// New builds a queue around the HTTP client. Call Start before submitting.
func New(client httpclient.Client, opts Options, log logger.Logger) *Queue {
	return &Queue{
		client: client,
		opts:   normalizeOptions(opts),
		log:    logger.Ensure(log),
		wake:   make(chan struct{}, 1),
		exited: make(chan struct{}),
	}
}

// Start launches the consumer. It is a no-op when already running.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running || q.closed {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.running = true
	go q.run(ctx)
}

// Stop halts the consumer and fails every undispatched item with ErrClosed.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	running := q.running
	cancel := q.cancel
	q.mu.Unlock()

	if !running {
		q.failPending(ErrClosed)
		return
	}
	cancel()
	<-q.exited
}

// Len returns the number of items waiting for dispatch.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Submit enqueues url and waits for its JSON object body or a classified error.
// A submitted item cannot be withdrawn: if ctx ends first Submit returns ctx.Err()
// but the request is still dispatched in its turn.
func (q *Queue) Submit(ctx context.Context, url string) (map[string]any, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("submit: url is empty")
	}

	it := &item{
		ctx:      context.WithoutCancel(ctx),
		url:      url,
		enqueued: q.opts.Now(),
		done:     make(chan result, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	q.items = append(q.items, it)
	metrics.QueueDepth.Set(float64(len(q.items)))
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case res := <-it.done:
		return res.body, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue) pop() *item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	it := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	metrics.QueueDepth.Set(float64(len(q.items)))
	return it
}

func (q *Queue) failPending(err error) {
	q.mu.Lock()
	pending := q.items
	q.items = nil
	metrics.QueueDepth.Set(0)
	q.mu.Unlock()

	for _, it := range pending {
		it.done <- result{err: err}
	}
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.exited)
	defer q.failPending(ErrClosed)

	for {
		it := q.pop()
		if it == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		if !q.lastDispatch.IsZero() {
			wait := q.lastDispatch.Add(q.opts.MinInterval).Sub(q.opts.Now())
			if wait > 0 {
				if err := q.opts.Sleep(ctx, wait); err != nil {
					it.done <- result{err: ErrClosed}
					return
				}
			}
		}

		metrics.QueueWait.Observe(q.opts.Now().Sub(it.enqueued).Seconds())
		body, err := q.execute(ctx, it)
		q.lastDispatch = q.opts.Now()
		it.done <- result{body: body, err: err}

		if q.Len() > 0 && q.opts.DrainDelay > 0 {
			if err := q.opts.Sleep(ctx, q.opts.DrainDelay); err != nil {
				return
			}
		}
	}
}

// execute performs the call for it, retrying transient failures with exponential backoff.
// attempt is the retry index: 0 for the first call.
func (q *Queue) execute(loopCtx context.Context, it *item) (map[string]any, error) {
	safeURL := redactURL(it.url)

	for attempt := 0; ; attempt++ {
		status, body, timedOut, callErr := q.call(it)

		var (
			backoff time.Duration
			final   error
		)

		switch {
		case callErr != nil:
			metrics.QueueAttempts.WithLabelValues("transport_error").Inc()
			backoff = q.backoff(attempt - 1)
			final = &NetworkError{URL: safeURL, Timeout: timedOut, Retries: attempt, Err: callErr}
		case status == http.StatusUnauthorized:
			metrics.QueueAttempts.WithLabelValues("auth").Inc()
			return nil, &AuthError{URL: safeURL, Status: status}
		case status == http.StatusTooManyRequests:
			metrics.QueueAttempts.WithLabelValues("rate_limited").Inc()
			backoff = q.backoff(attempt)
			final = &RateLimitError{URL: safeURL, Retries: attempt}
		case status >= http.StatusInternalServerError:
			metrics.QueueAttempts.WithLabelValues("server_error").Inc()
			backoff = q.backoff(attempt - 1)
			final = &ServerError{URL: safeURL, Status: status, Retries: attempt}
		case status < 200 || status > 299:
			metrics.QueueAttempts.WithLabelValues("http_error").Inc()
			return nil, &HTTPError{URL: safeURL, Status: status, Snippet: snippet(body)}
		default:
			metrics.QueueAttempts.WithLabelValues("ok").Inc()
			obj, err := decodeObject(body)
			if err != nil {
				return nil, &ResponseFormatError{URL: safeURL, Err: err}
			}
			return obj, nil
		}

		if attempt >= q.opts.MaxRetries {
			q.log.WarnObj("request failed", "queue_failure", map[string]any{
				"url":     safeURL,
				"kind":    Kind(final),
				"retries": attempt,
			})
			return nil, final
		}

		q.log.DebugObj("retrying request", "queue_retry", map[string]any{
			"url":      safeURL,
			"kind":     Kind(final),
			"attempt":  attempt + 1,
			"delay_ms": backoff.Milliseconds(),
		})
		if err := q.opts.Sleep(loopCtx, backoff); err != nil {
			return nil, ErrClosed
		}
	}
}

// call runs one HTTP attempt bounded by the request timeout.
func (q *Queue) call(it *item) (status int, body []byte, timedOut bool, err error) {
	ctx, cancel := context.WithTimeout(it.ctx, q.opts.RequestTimeout)
	defer cancel()

	resp, err := q.client.Get(ctx, it.url, q.opts.Headers)
	if err != nil {
		return 0, nil, isTimeout(ctx, err), err
	}
	return resp.StatusCode(), resp.Body(), false, nil
}

// backoff returns RetryDelay * BackoffMultiplier^exp.
func (q *Queue) backoff(exp int) time.Duration {
	return time.Duration(float64(q.opts.RetryDelay) * math.Pow(q.opts.BackoffMultiplier, float64(exp)))
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func decodeObject(body []byte) (map[string]any, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected json object, got %T", raw)
	}
	return obj, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxSnippetBytes {
		return s[:maxSnippetBytes] + "..."
	}
	return s
}

// sleepContext waits for d unless ctx ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
