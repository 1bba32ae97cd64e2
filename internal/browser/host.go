// Package browser hosts the capture window.
//
// The rest of the program talks to the window through Host. ChromeHost is
// the production implementation and drives a headed Chrome over the DevTools
// protocol.
package browser

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/skjsjhb/LCAP/internal/config"
)

// ErrHostClosed is returned by operations on a host that has been closed.
var ErrHostClosed = errors.New("browser: host closed")

// Host is the window capability the event loop needs.
//
// Callbacks must be registered before Navigate. They may be invoked from any
// goroutine, never from inside a Host method, and a navigation callback
// blocks the navigation until it returns.
type Host interface {
	// Navigate loads url in the window.
	Navigate(ctx context.Context, url string) error
	// OnNavigationAttempt registers the allow/deny hook for top level
	// navigations, redirects and custom scheme URLs included. Subframe loads
	// never reach it. Returning false cancels the navigation.
	OnNavigationAttempt(fn func(url string) bool)
	// OnPageLoaded registers the hook for finished page loads.
	OnPageLoaded(fn func())
	// OnCloseRequested registers the hook for the user closing the window.
	OnCloseRequested(fn func())
	// SetVisible shows or hides the window.
	SetVisible(ctx context.Context, visible bool) error
	// Close tears the window down. It is safe to call more than once.
	Close(ctx context.Context) error
	// PersistentProfiles reports whether the profile directory survives
	// between runs.
	PersistentProfiles() bool
}

// LaunchOptions are the per-run settings for a new host.
type LaunchOptions struct {
	// UserDataDir is the profile directory, normally the partition cache root.
	UserDataDir string
	Title       string
	// StartHidden launches the window out of sight.
	StartHidden bool
}

// Launcher creates a running Host.
type Launcher func(ctx context.Context, opts LaunchOptions) (Host, error)

// ChromeLauncher returns a Launcher that starts ChromeHost instances with cfg.
func ChromeLauncher(cfg config.BrowserConfig, logger *zap.Logger) Launcher {
	return func(ctx context.Context, opts LaunchOptions) (Host, error) {
		return NewChromeHost(ctx, cfg, opts, logger)
	}
}
