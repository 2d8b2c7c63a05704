package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samvad-hq/samvad-reader/internal/config"
	"github.com/samvad-hq/samvad-reader/internal/logger"
	"github.com/samvad-hq/samvad-reader/internal/offline"
)

// Prefetcher keeps the offline store warm by downloading every enabled plan
// on a fixed interval while the network is reachable.
type Prefetcher struct {
	cfg      *config.Config
	reader   *Reader
	plans    []offline.Plan
	interval time.Duration
	log      logger.Logger
	metrics  *http.Server
}

// NewPrefetcher loads the offline plans and attaches them to a reader runtime.
func NewPrefetcher(cfg *config.Config, rd *Reader, log logger.Logger) (*Prefetcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if rd == nil {
		return nil, fmt.Errorf("reader runtime must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}

	plans, err := offline.LoadPlans(cfg.OfflinePlansFile)
	if err != nil {
		return nil, fmt.Errorf("load offline plans: %w", err)
	}
	enabled := offline.EnabledPlans(plans)
	categories := make([]string, 0, len(enabled))
	for _, p := range enabled {
		categories = append(categories, p.Category)
	}
	log.InfoObj("offline plans loaded", "plans_meta", map[string]any{
		"count":      len(categories),
		"categories": categories,
	})

	p := &Prefetcher{
		cfg:      cfg,
		reader:   rd,
		plans:    enabled,
		interval: cfg.PrefetchInterval,
		log:      log,
	}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		p.metrics = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}
	return p, nil
}

// Run starts the prefetch loop until the context is cancelled.
func (p *Prefetcher) Run(ctx context.Context) error {
	if p == nil || p.reader == nil {
		return fmt.Errorf("prefetcher is not initialized")
	}
	if p.metrics != nil {
		go p.serveMetrics()
		defer p.stopMetrics()
	}

	if len(p.plans) == 0 {
		p.log.WarnObj("no offline plans enabled; prefetcher idle", "offline_plans_file", p.cfg.OfflinePlansFile)
		<-ctx.Done()
		return nil
	}

	p.log.InfoObj("prefetch loop starting", "prefetch_state", map[string]any{
		"plans_count":       len(p.plans),
		"prefetch_interval": p.interval.String(),
	})

	if err := p.RunOnce(ctx); err != nil {
		p.log.ErrorObj("initial prefetch failed", "error", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.InfoObj("prefetch loop exiting", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.log.ErrorObj("scheduled prefetch failed", "error", err)
			}
		}
	}
}

// RunOnce downloads every plan once. A failing plan does not stop the others;
// their errors are joined. Nothing is attempted while offline.
func (p *Prefetcher) RunOnce(ctx context.Context) error {
	if !p.reader.Monitor().State().Online() {
		p.log.InfoObj("prefetch skipped while offline", "plans_count", len(p.plans))
		return nil
	}
	return runTimed(p.log, "prefetch", map[string]any{"plans_count": len(p.plans)}, func() error {
		var errs []error
		for _, plan := range p.plans {
			if err := ctx.Err(); err != nil {
				return err
			}
			sum, err := p.reader.Orchestrator().DownloadForOffline(ctx, plan.Category, plan.Pages)
			if err != nil {
				p.log.WarnObj("prefetch plan failed", "plan", map[string]any{
					"category": plan.Category,
					"pages":    plan.Pages,
					"error":    err.Error(),
				})
				errs = append(errs, fmt.Errorf("prefetch %s: %w", plan.Category, err))
				continue
			}
			p.log.DebugObj("prefetch plan stored", "plan", sum)
		}
		return errors.Join(errs...)
	})
}

func (p *Prefetcher) serveMetrics() {
	p.log.InfoObj("metrics server listening", "addr", p.cfg.MetricsAddr)
	if err := p.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		p.log.ErrorObj("metrics server failed", "error", err)
	}
}

func (p *Prefetcher) stopMetrics() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.metrics.Shutdown(ctx); err != nil {
		p.log.ErrorObj("metrics server shutdown failed", "error", err)
	}
}
