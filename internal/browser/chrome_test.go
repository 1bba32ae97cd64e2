package browser_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/skjsjhb/LCAP/internal/browser"
	"github.com/skjsjhb/LCAP/internal/config"
)

// These tests start a real, headed Chrome and need a display.
func requireChrome(t *testing.T) {
	t.Helper()
	if testing.Short() || os.Getenv("LCAP_CHROME_TESTS") == "" {
		t.Skip("set LCAP_CHROME_TESTS=1 to run tests against a real Chrome")
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>login</body></html>`))
	})
	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/cb?code=ABC123&state=xyz", http.StatusFound)
	})
	mux.HandleFunc("/framed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><iframe src="/frame?error=x"></iframe></body></html>`))
	})
	mux.HandleFunc("/frame", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>frame</body></html>`))
	})
	mux.HandleFunc("/app-redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "lcap-test://cb?code=X", http.StatusFound)
	})
	mux.HandleFunc("/app-script", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><script>
setTimeout(function () { location.href = "lcap-test://cb?code=Y"; }, 50);
</script></body></html>`))
	})
	mux.HandleFunc("/cb", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("callback must never be fetched, got %s", r.URL)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func launch(t *testing.T, hidden bool) *browser.ChromeHost {
	t.Helper()
	cfg := config.NewDefaultConfig().Browser
	cfg.NoSandbox = true

	host, err := browser.NewChromeHost(context.Background(), cfg, browser.LaunchOptions{
		UserDataDir: t.TempDir(),
		Title:       "LCAP test",
		StartHidden: hidden,
	}, zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel)))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = host.Close(ctx)
	})
	return host
}

func TestChromeHost_PageLoaded(t *testing.T) {
	requireChrome(t)
	srv := newTestServer(t)
	host := launch(t, true)

	loaded := make(chan struct{}, 4)
	host.OnPageLoaded(func() { loaded <- struct{}{} })

	var mu sync.Mutex
	var seen []string
	host.OnNavigationAttempt(func(url string) bool {
		mu.Lock()
		seen = append(seen, url)
		mu.Unlock()
		return true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, host.Navigate(ctx, srv.URL+"/login"))

	select {
	case <-loaded:
	case <-ctx.Done():
		t.Fatal("page load event never arrived")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, srv.URL+"/login")
	assert.True(t, host.PersistentProfiles())
	require.NoError(t, host.SetVisible(ctx, true))
	require.NoError(t, host.SetVisible(ctx, false))
}

func TestChromeHost_DeniedRedirect(t *testing.T) {
	requireChrome(t)
	srv := newTestServer(t)
	host := launch(t, false)

	captured := make(chan string, 1)
	host.OnNavigationAttempt(func(url string) bool {
		if strings.Contains(url, "/cb?") {
			captured <- url
			return false
		}
		return true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// The cancelled redirect surfaces as a failed navigation.
	_ = host.Navigate(ctx, srv.URL+"/authorize")

	select {
	case url := <-captured:
		assert.Equal(t, srv.URL+"/cb?code=ABC123&state=xyz", url)
	case <-ctx.Done():
		t.Fatal("redirect was never intercepted")
	}
}

func TestChromeHost_CloseIsIdempotent(t *testing.T) {
	requireChrome(t)
	host := launch(t, true)

	closed := make(chan struct{}, 1)
	host.OnCloseRequested(func() { closed <- struct{}{} })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, host.Close(ctx))
	require.NoError(t, host.Close(ctx))

	assert.ErrorIs(t, host.Navigate(ctx, "about:blank"), browser.ErrHostClosed)
	assert.ErrorIs(t, host.SetVisible(ctx, true), browser.ErrHostClosed)

	select {
	case <-closed:
		t.Fatal("an explicit Close must not look like a user close")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChromeHost_SubframesAreNotNavigations(t *testing.T) {
	requireChrome(t)
	srv := newTestServer(t)
	host := launch(t, true)

	loaded := make(chan struct{}, 4)
	host.OnPageLoaded(func() { loaded <- struct{}{} })

	var mu sync.Mutex
	var seen []string
	host.OnNavigationAttempt(func(url string) bool {
		mu.Lock()
		seen = append(seen, url)
		mu.Unlock()
		return true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, host.Navigate(ctx, srv.URL+"/framed"))

	select {
	case <-loaded:
	case <-ctx.Done():
		t.Fatal("page load event never arrived")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{srv.URL + "/framed"}, seen)
}

func TestChromeHost_CustomSchemeNavigations(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "server redirect", path: "/app-redirect", want: "lcap-test://cb?code=X"},
		{name: "script navigation", path: "/app-script", want: "lcap-test://cb?code=Y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireChrome(t)
			srv := newTestServer(t)
			host := launch(t, true)

			captured := make(chan string, 1)
			host.OnNavigationAttempt(func(url string) bool {
				if strings.HasPrefix(url, "lcap-test:") {
					select {
					case captured <- url:
					default:
					}
					return false
				}
				return true
			})

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = host.Navigate(ctx, srv.URL+tt.path)

			select {
			case url := <-captured:
				assert.Equal(t, tt.want, url)
			case <-ctx.Done():
				t.Fatal("custom scheme navigation was never reported")
			}
		})
	}
}
