package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/samvad-hq/samvad-reader/internal/domain"
	"github.com/samvad-hq/samvad-reader/internal/reader"
)

func setupEnv(t *testing.T) *atomic.Int32 {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","page":1,"totalResults":1,"news":[{"id":"n1","title":"Budget passed","url":"https://news.example/n1","domain":"news.example"}]}`))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("API_BASE_URL", srv.URL+"/v1")
	t.Setenv("API_KEY", "k")
	t.Setenv("STORAGE_TYPE", "memory")
	t.Setenv("PUBLISHERS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("QUEUE_MIN_INTERVAL_MS", "0")
	t.Setenv("LOG_LEVEL", "error")
	return &calls
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestArticlesPrintsResultJSON(t *testing.T) {
	calls := setupEnv(t)

	out, err := execute(t, "articles", "--offline=false", "--category", "business", "--page", "1")
	if err != nil {
		t.Fatalf("articles: %v", err)
	}
	var res domain.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if res.Source != domain.SourceAPI || len(res.Articles) != 1 || res.Articles[0].ID != "n1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one api call, got %d", calls.Load())
	}
}

func TestSearchJoinsArguments(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "search", "--offline=false", "--page", "1", "budget", "vote")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, `"source": "search_api"`) {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestDownloadRequiresNetwork(t *testing.T) {
	calls := setupEnv(t)

	_, err := execute(t, "download", "--offline", "--category", "business", "--pages", "2")
	if err == nil || !reader.IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("offline download reached the network")
	}
}

func TestDescribeAddsExhaustionDetail(t *testing.T) {
	err := &reader.ExhaustionError{Category: "sports", Page: 2}
	if got := describe(err); got != "no articles available for sports page 2" {
		t.Fatalf("describe = %q", got)
	}
}
