package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-reader/internal/config"
	"github.com/samvad-hq/samvad-reader/internal/logger"
	"github.com/samvad-hq/samvad-reader/internal/netstate"
	"github.com/samvad-hq/samvad-reader/internal/offline"
	"github.com/samvad-hq/samvad-reader/internal/queue"
	"github.com/samvad-hq/samvad-reader/internal/reader"
	"github.com/samvad-hq/samvad-reader/internal/storage"
	"github.com/samvad-hq/samvad-reader/pkg/httpclient"
	"github.com/samvad-hq/samvad-reader/pkg/newsapi"
	"github.com/samvad-hq/samvad-reader/pkg/publishers"
)

// Options adjusts how the runtime is assembled.
type Options struct {
	// Client replaces the resty-backed HTTP client used by the queue and the prober.
	Client httpclient.Client
	// ForceOffline starts in the offline state and disables probing.
	ForceOffline bool
}

// Reader owns every long-lived component behind the orchestrator: the request
// queue, the storage tier, the connectivity monitor and the event fanout.
type Reader struct {
	cfg          *config.Config
	log          logger.Logger
	queue        *queue.Queue
	store        storage.Store
	monitor      *netstate.Monitor
	fanout       *publishers.Fanout
	downloader   *offline.Downloader
	orchestrator *reader.Orchestrator

	cancel context.CancelFunc
	probes sync.WaitGroup
	once   sync.Once
}

// NewReader builds the runtime from config and starts its background loops.
// Close must be called to release them.
func NewReader(ctx context.Context, cfg *config.Config, log logger.Logger, opts Options) (*Reader, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client := opts.Client
	if client == nil {
		client = httpclient.NewRestyClient(0)
	}

	store, err := storage.NewStore(cfg.StorageType, storage.Options{
		Path:            cfg.BBoltPath,
		RedisURL:        cfg.RedisURL,
		PageTTL:         cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"page_ttl_seconds":         int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	fanout, err := publishers.FanoutFromFile(ctx, cfg.PublishersFile, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count": fanout.Size(),
		"path":  cfg.PublishersFile,
	})

	runCtx, cancel := context.WithCancel(ctx)

	q := queue.New(client, queue.Options{
		MinInterval:       cfg.QueueMinInterval,
		RequestTimeout:    cfg.QueueRequestTimeout,
		MaxRetries:        cfg.QueueMaxRetries,
		RetryDelay:        cfg.QueueRetryDelay,
		BackoffMultiplier: cfg.QueueBackoffMultiplier,
		DrainDelay:        cfg.QueueDrainDelay,
		Headers: map[string]string{
			"Accept":      "application/json",
			"X-Client-Id": cfg.ClientID,
		},
	}, log)
	q.Start(runCtx)

	api := newsapi.NewClient(newsapi.Endpoint{
		BaseURL:  cfg.APIBaseURL,
		APIKey:   cfg.APIKey,
		Language: cfg.Language,
		PageSize: cfg.PageSize,
	}, q)

	startOnline := !(cfg.StartOffline || opts.ForceOffline)
	monitor := netstate.NewMonitor(netstate.NewState(startOnline), log)

	downloader, err := offline.NewDownloader(api, store, fanout, log)
	if err != nil {
		cancel()
		q.Stop()
		_ = store.Close()
		return nil, fmt.Errorf("init offline downloader: %w", err)
	}
	if cfg.OfflineEnrich {
		downloader.WithEnricher(offline.NewEnricher(client, cfg.OfflineEnrichDelay, log))
	}

	orch, err := reader.New(reader.Deps{
		Fetcher:    api,
		Store:      store,
		State:      monitor.State(),
		Downloader: downloader,
		Log:        log,
		PageSize:   cfg.PageSize,
		APIKey:     cfg.APIKey,
	})
	if err != nil {
		cancel()
		q.Stop()
		_ = store.Close()
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}

	r := &Reader{
		cfg:          cfg,
		log:          log,
		queue:        q,
		store:        store,
		monitor:      monitor,
		fanout:       fanout,
		downloader:   downloader,
		orchestrator: orch,
		cancel:       cancel,
	}

	if cfg.HealthURL != "" && !opts.ForceOffline {
		r.startProbe(runCtx, client)
	}

	log.InfoObj("reader runtime ready", "reader_state", map[string]any{
		"online":           monitor.State().Online(),
		"page_size":        cfg.PageSize,
		"publishers_count": fanout.Size(),
		"health_url":       cfg.HealthURL,
	})
	return r, nil
}

// Orchestrator returns the request orchestrator.
func (r *Reader) Orchestrator() *reader.Orchestrator { return r.orchestrator }

// Monitor returns the connectivity monitor, for flipping state by hand.
func (r *Reader) Monitor() *netstate.Monitor { return r.monitor }

// Store returns the storage tier.
func (r *Reader) Store() storage.Store { return r.store }

func (r *Reader) startProbe(ctx context.Context, client httpclient.Client) {
	events := make(chan netstate.Event)
	prober := netstate.NewProber(client, r.cfg.HealthURL, r.cfg.ProbeInterval, r.log)

	r.probes.Add(2)
	go func() {
		defer r.probes.Done()
		defer close(events)
		prober.Run(ctx, events)
	}()
	go func() {
		defer r.probes.Done()
		r.monitor.Subscribe(ctx, events)
	}()
}

// Close waits for pending cache writes, stops the background loops and
// releases storage and publishers. It is safe to call more than once.
func (r *Reader) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	r.once.Do(func() {
		r.orchestrator.Close()
		r.cancel()
		r.queue.Stop()
		r.probes.Wait()

		if err := r.fanout.Close(); err != nil {
			r.log.ErrorObj("publishers close failed", "error", err)
			errs = append(errs, err)
		}
		if err := r.store.Close(); err != nil {
			r.log.ErrorObj("storage close failed", "error", err)
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// runTimed logs the start and completion of one pass of a loop.
func runTimed(log logger.Logger, name string, meta map[string]any, fn func() error) error {
	start := time.Now()
	log.InfoObj(name+" started", name+"_meta", meta)
	if err := fn(); err != nil {
		return err
	}
	done := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		done[k] = v
	}
	done["elapsed_ms"] = time.Since(start).Milliseconds()
	log.InfoObj(name+" completed", name+"_meta", done)
	return nil
}
