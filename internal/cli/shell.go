package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/samvad-hq/samvad-reader/internal/shell"
	"github.com/samvad-hq/samvad-reader/pkg/httpclient"
)

var serveShellCmd = &cobra.Command{
	Use:   "serve-shell",
	Short: "Serve the web shell with offline document caching",
	Long: `Proxy shell_url on shell_addr. The shell document is fetched network first
and falls back to its cached copy or an offline page; static assets are served
from cache and refreshed in the background.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, flush, err := loadConfig()
		if err != nil {
			return err
		}
		defer flush()

		cache, err := shell.OpenBoltCache(cfg.ShellCachePath)
		if err != nil {
			return err
		}
		defer cache.Close()

		strategy := shell.New(httpclient.NewRestyClient(0), cache, shell.Options{
			Timeout:  cfg.ShellTimeout,
			ShellTTL: cfg.ShellTTL,
		}, log)
		defer strategy.Wait()

		srv, err := shell.NewServer(strategy, cfg.ShellURL, cfg.ShellAddr)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			log.InfoObj("shell server listening", "shell", map[string]any{"addr": cfg.ShellAddr, "origin": cfg.ShellURL})
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("shell server: %w", err)
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	},
}
