// internal/browser/helper_test.go
package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/semaphore"

	"github.com/AlperenTurkmen/job-finder-sub001/internal/config"
)

// browserTestSem caps concurrent Chrome instances so parallel test runs do
// not exhaust memory on shared machines.
var browserTestSem = semaphore.NewWeighted(2)

// requireBrowserEnv skips tests that launch a real Chrome unless explicitly
// enabled.
func requireBrowserEnv(t *testing.T) {
	t.Helper()
	if os.Getenv("JOBFINDER_BROWSER_TESTS") != "1" {
		t.Skip("set JOBFINDER_BROWSER_TESTS=1 to run browser integration tests")
	}
}

type sessionFixture struct {
	sess   *Session
	server *httptest.Server
}

// newSessionFixture boots a headless Chrome serving the given page and
// registers LIFO cleanup for the session, manager, and server.
func newSessionFixture(t *testing.T, html string) *sessionFixture {
	t.Helper()
	requireBrowserEnv(t)

	ctx := context.Background()
	require.NoError(t, browserTestSem.Acquire(ctx, 1))
	t.Cleanup(func() { browserTestSem.Release(1) })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(html))
	}))
	t.Cleanup(server.Close)

	cfg := config.Default().Browser
	cfg.Headless = true
	cfg.UserDataDir = t.TempDir()
	cfg.NavigationTimeout = 30 * time.Second
	cfg.ActionTimeout = 10 * time.Second

	manager := NewManager(ctx, cfg, zaptest.NewLogger(t))
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = manager.Shutdown(shutdownCtx)
	})

	sess, err := manager.NewSession(ctx)
	require.NoError(t, err)
	return &sessionFixture{sess: sess, server: server}
}
