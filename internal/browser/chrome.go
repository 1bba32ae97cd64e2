package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/skjsjhb/LCAP/internal/config"
)

// ChromeHost is a Host backed by a headed Chrome window with its own
// profile directory.
type ChromeHost struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	targetID    target.ID

	mu         sync.RWMutex
	onNavigate func(string) bool
	onLoaded   func()
	onClose    func()
	geometry   Geometry
	closing    bool

	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Host = (*ChromeHost)(nil)

// NewChromeHost launches Chrome and waits until its first tab responds. The
// browser lives until Close is called or ctx is cancelled.
func NewChromeHost(ctx context.Context, cfg config.BrowserConfig, opts LaunchOptions, logger *zap.Logger) (*ChromeHost, error) {
	h := &ChromeHost{
		logger: logger.Named("browser"),
		cfg:    cfg,
	}

	h.logger.Debug("Launching browser.",
		zap.String("user_data_dir", opts.UserDataDir),
		zap.Bool("start_hidden", opts.StartHidden))

	h.allocCtx, h.allocCancel = chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg, opts)...)
	h.tabCtx, h.tabCancel = chromedp.NewContext(h.allocCtx)

	if err := h.start(); err != nil {
		h.tabCancel()
		h.allocCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	h.listen()
	h.fitWindow(opts.StartHidden)

	h.logger.Info("Browser launched.", zap.String("target_id", string(h.targetID)))
	return h, nil
}

// start runs the first action, which allocates the browser, bounded by the
// launch timeout.
func (h *ChromeHost) start() error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- chromedp.Run(h.tabCtx, fetch.Enable().WithPatterns([]*fetch.RequestPattern{
			{URLPattern: "*", ResourceType: network.ResourceTypeDocument, RequestStage: fetch.RequestStageRequest},
			{URLPattern: "*", ResourceType: network.ResourceTypeDocument, RequestStage: fetch.RequestStageResponse},
		}))
	}()

	timer := time.NewTimer(h.cfg.LaunchTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-timer.C:
		return fmt.Errorf("timed out after %s", h.cfg.LaunchTimeout)
	}

	c := chromedp.FromContext(h.tabCtx)
	if c == nil || c.Target == nil {
		return fmt.Errorf("no target attached")
	}
	h.targetID = c.Target.TargetID
	return nil
}

func (h *ChromeHost) listen() {
	chromedp.ListenTarget(h.tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			// Listener callbacks must not block, and answering needs a round trip.
			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				h.handleRequestPaused(e)
			}()
		case *page.EventFrameRequestedNavigation:
			// Network navigations are seen by Fetch; custom schemes never get there.
			if e.FrameID == mainFrame(h.targetID) && external(e.URL) {
				h.dispatch(func() { h.handleExternalNavigation(e.URL) })
			}
		case *page.EventLoadEventFired:
			h.dispatch(func() {
				if fn := h.loadedHook(); fn != nil {
					fn()
				}
			})
		}
	})

	chromedp.ListenBrowser(h.tabCtx, func(ev interface{}) {
		if e, ok := ev.(*target.EventTargetDestroyed); ok && e.TargetID == h.targetID {
			h.dispatch(h.requestClose)
		}
	})

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		<-h.tabCtx.Done()
		h.requestClose()
	}()
}

func (h *ChromeHost) dispatch(fn func()) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn()
	}()
}

func (h *ChromeHost) handleRequestPaused(e *fetch.EventRequestPaused) {
	// Subframes and plain responses are not navigations of the window.
	url, ok := pausedNavigation(e)
	if !ok || e.FrameID != mainFrame(h.targetID) {
		h.answer(e.RequestID, true)
		return
	}

	allow := h.allow(url)
	if !allow {
		h.logger.Debug("Navigation cancelled.", zap.String("url", url))
	}
	h.answer(e.RequestID, allow)
}

func (h *ChromeHost) answer(id fetch.RequestID, allow bool) {
	var err error
	if allow {
		err = chromedp.Run(h.tabCtx, fetch.ContinueRequest(id))
	} else {
		err = chromedp.Run(h.tabCtx, fetch.FailRequest(id, network.ErrorReasonAborted))
	}
	if err != nil && h.tabCtx.Err() == nil {
		h.logger.Warn("Failed to answer paused request.", zap.Bool("allow", allow), zap.Error(err))
	}
}

// handleExternalNavigation runs the hook for a page initiated navigation to a
// non network scheme and stops it when denied.
func (h *ChromeHost) handleExternalNavigation(url string) {
	if h.allow(url) {
		return
	}
	h.logger.Debug("External navigation cancelled.", zap.String("url", url))
	if err := chromedp.Run(h.tabCtx, page.StopLoading()); err != nil && h.tabCtx.Err() == nil {
		h.logger.Warn("Failed to stop navigation.", zap.Error(err))
	}
}

func (h *ChromeHost) allow(url string) bool {
	if fn := h.navigateHook(); fn != nil {
		return fn(url)
	}
	return true
}

// requestClose reports a close to the registered hook once, unless Close
// started the teardown.
func (h *ChromeHost) requestClose() {
	h.mu.RLock()
	closing, fn := h.closing, h.onClose
	h.mu.RUnlock()
	if closing {
		return
	}
	h.closeOnce.Do(func() {
		h.logger.Debug("Window closed by the user.")
		if fn != nil {
			fn()
		}
	})
}

// fitWindow sizes the window from the screen it lands on. Failures only cost
// the nicer geometry, so they are logged and ignored.
func (h *ChromeHost) fitWindow(hidden bool) {
	var dims []int64
	if err := chromedp.Run(h.tabCtx, chromedp.Evaluate(`[window.screen.availWidth, window.screen.availHeight]`, &dims)); err != nil || len(dims) != 2 {
		h.logger.Debug("Could not measure the screen, using the configured window size.", zap.Error(err))
		dims = []int64{0, 0}
	}

	g := WindowGeometry(dims[0], dims[1], h.cfg)
	h.mu.Lock()
	h.geometry = g
	h.mu.Unlock()

	if err := h.SetVisible(h.tabCtx, !hidden); err != nil {
		h.logger.Debug("Could not apply window geometry.", zap.Error(err))
	}
}

func (h *ChromeHost) navigateHook() func(string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onNavigate
}

func (h *ChromeHost) loadedHook() func() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onLoaded
}

// OnNavigationAttempt implements Host.
func (h *ChromeHost) OnNavigationAttempt(fn func(url string) bool) {
	h.mu.Lock()
	h.onNavigate = fn
	h.mu.Unlock()
}

// OnPageLoaded implements Host.
func (h *ChromeHost) OnPageLoaded(fn func()) {
	h.mu.Lock()
	h.onLoaded = fn
	h.mu.Unlock()
}

// OnCloseRequested implements Host.
func (h *ChromeHost) OnCloseRequested(fn func()) {
	h.mu.Lock()
	h.onClose = fn
	h.mu.Unlock()
}

// PersistentProfiles implements Host. Chrome keeps its user data directory.
func (h *ChromeHost) PersistentProfiles() bool { return true }

// Navigate implements Host. It returns once the page has loaded or the
// navigation failed, which includes navigations cancelled by the hook.
func (h *ChromeHost) Navigate(ctx context.Context, url string) error {
	if h.tabCtx.Err() != nil {
		return ErrHostClosed
	}
	runCtx, cancel := mergeCancel(h.tabCtx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// SetVisible implements Host by moving the window on or off screen.
func (h *ChromeHost) SetVisible(ctx context.Context, visible bool) error {
	if h.tabCtx.Err() != nil {
		return ErrHostClosed
	}
	runCtx, cancel := mergeCancel(h.tabCtx, ctx)
	defer cancel()

	h.mu.RLock()
	g := h.geometry
	h.mu.RUnlock()

	bounds := &cdpbrowser.Bounds{Left: g.Left, Top: g.Top, Width: g.Width, Height: g.Height}
	if !visible {
		bounds.Left, bounds.Top = offscreen, offscreen
	}

	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		windowID, _, err := cdpbrowser.GetWindowForTarget().WithTargetID(h.targetID).Do(ctx)
		if err != nil {
			return err
		}
		// A minimized or maximized window ignores position changes.
		if err := cdpbrowser.SetWindowBounds(windowID, &cdpbrowser.Bounds{WindowState: cdpbrowser.WindowStateNormal}).Do(ctx); err != nil {
			return err
		}
		if err := cdpbrowser.SetWindowBounds(windowID, bounds).Do(ctx); err != nil {
			return err
		}
		if visible {
			return target.ActivateTarget(h.targetID).Do(ctx)
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("failed to set window visibility: %w", err)
	}
	return nil
}

// Close implements Host. The browser process is terminated and every
// goroutine the host started has returned when Close does.
func (h *ChromeHost) Close(ctx context.Context) error {
	h.mu.Lock()
	already := h.closing
	h.closing = true
	h.mu.Unlock()
	if already {
		return nil
	}

	h.logger.Debug("Shutting down browser.")
	var closeErr error
	if h.tabCtx.Err() == nil {
		if err := chromedp.Cancel(h.tabCtx); err != nil {
			closeErr = fmt.Errorf("failed to close browser: %w", err)
		}
	}
	h.tabCancel()
	h.allocCancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.logger.Warn("Timed out waiting for browser goroutines.", zap.Error(ctx.Err()))
	}
	return closeErr
}

// mergeCancel derives a context from base that is also cancelled when other
// is done. Values come from base.
func mergeCancel(base, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(base)
	stop := context.AfterFunc(other, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
