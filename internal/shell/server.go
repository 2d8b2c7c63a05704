package shell

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the strategy over HTTP. "/" serves the shell document; every
// other path is treated as an asset under the origin.
type Server struct {
	strategy *Strategy
	origin   string
	server   *http.Server
}

// NewServer creates a server proxying origin through strategy.
func NewServer(strategy *Strategy, origin, addr string) (*Server, error) {
	if !validOrigin(origin) {
		return nil, fmt.Errorf("shell origin %q must be an absolute http(s) url", origin)
	}
	mux := http.NewServeMux()
	s := &Server{
		strategy: strategy,
		origin:   strings.TrimRight(origin, "/"),
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.handleDocument)

	return s, nil
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	target := s.origin + r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	var (
		resp Response
		err  error
	)
	if r.URL.Path == "/" || r.URL.Path == "/index.html" {
		resp, err = s.strategy.Shell(r.Context(), target)
	} else {
		resp, err = s.strategy.Asset(r.Context(), target)
	}
	if err != nil {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}

	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set("X-Cache", cacheState(resp))
	w.WriteHeader(resp.Status)
	if r.Method == http.MethodGet {
		_, _ = w.Write(resp.Body)
	}
}

func cacheState(r Response) string {
	switch {
	case r.Fallback:
		return "fallback"
	case r.FromCache:
		return "hit"
	default:
		return "miss"
	}
}

// validOrigin reports whether origin is an absolute http(s) URL.
func validOrigin(origin string) bool {
	u, err := url.Parse(origin)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
