package netstate

import (
	"context"
	"time"

	"github.com/samvad-hq/samvad-reader/internal/logger"
	"github.com/samvad-hq/samvad-reader/pkg/httpclient"
)

const (
	defaultProbeInterval = 30 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// Prober turns periodic health checks into connectivity events.
type Prober struct {
	client   httpclient.Client
	url      string
	interval time.Duration
	timeout  time.Duration
	log      logger.Logger
	now      func() time.Time
}

// NewProber builds a prober for healthURL.
func NewProber(client httpclient.Client, healthURL string, interval time.Duration, log logger.Logger) *Prober {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	return &Prober{
		client:   client,
		url:      healthURL,
		interval: interval,
		timeout:  defaultProbeTimeout,
		log:      logger.Ensure(log),
		now:      time.Now,
	}
}

// Probe performs a single health check. Any 2xx or 3xx status counts as online.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Get(ctx, p.url, nil)
	if err != nil {
		p.log.DebugObj("health probe failed", "probe", map[string]any{"url": p.url, "error": err.Error()})
		return false
	}
	return resp.StatusCode() >= 200 && resp.StatusCode() < 400
}

// Run probes immediately and then on every tick, sending an Event for the
// first result and for every transition. It returns when ctx is done.
func (p *Prober) Run(ctx context.Context, out chan<- Event) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var (
		last  bool
		first = true
	)
	for {
		online := p.Probe(ctx)
		if first || online != last {
			select {
			case out <- Event{Online: online, At: p.now()}:
			case <-ctx.Done():
				return
			}
			first = false
			last = online
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
