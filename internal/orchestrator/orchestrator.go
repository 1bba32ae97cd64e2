// Package orchestrator runs a capture from browser launch to exit code.
//
// Everything that changes state happens on one goroutine, the event loop.
// The browser host, the visibility timer and the caller's context only post
// messages into it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skjsjhb/LCAP/internal/browser"
	"github.com/skjsjhb/LCAP/internal/capture"
	"github.com/skjsjhb/LCAP/internal/lifecycle"
	"github.com/skjsjhb/LCAP/internal/output"
	"github.com/skjsjhb/LCAP/internal/visibility"
)

const closeTimeout = 10 * time.Second

// Config describes one capture run.
type Config struct {
	StartURL          string
	Title             string
	Rules             capture.Config
	Output            output.Target
	VisibilityTimeout time.Duration
}

// Orchestrator wires the browser host to the capture state machines.
type Orchestrator struct {
	cfg       Config
	cacheRoot string
	launch    browser.Launcher
	fs        afero.Fs
	emitter   lifecycle.Emitter
	logger    *zap.Logger
}

// New creates an Orchestrator. cacheRoot is the partition's profile directory;
// fs is used only to check whether it exists.
func New(
	cfg Config,
	cacheRoot string,
	launch browser.Launcher,
	fs afero.Fs,
	emitter lifecycle.Emitter,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if launch == nil || fs == nil || emitter == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if cfg.StartURL == "" {
		return nil, fmt.Errorf("start url must not be empty")
	}
	if cfg.VisibilityTimeout <= 0 {
		return nil, fmt.Errorf("visibility timeout must be positive, got %s", cfg.VisibilityTimeout)
	}
	return &Orchestrator{
		cfg:       cfg,
		cacheRoot: cacheRoot,
		launch:    launch,
		fs:        fs,
		emitter:   emitter,
		logger:    logger.Named("orchestrator"),
	}, nil
}

// Messages accepted by the event loop.
type (
	navigationAttempt struct {
		url   string
		reply chan<- bool
	}
	visibilityTrigger struct {
		trigger visibility.Trigger
	}
	closeRequest struct{}
)

// run is the state owned by the event loop for a single Run.
type run struct {
	host       browser.Host
	visibility *visibility.Controller
	lifecycle  *lifecycle.Controller
	msgs       chan interface{}
	done       chan struct{}
}

// post delivers m to the loop, or drops it once the loop has finished.
func (r *run) post(m interface{}) bool {
	select {
	case r.msgs <- m:
		return true
	case <-r.done:
		return false
	}
}

// Run launches the browser, loads the start URL and blocks until a result is
// captured, the window is closed or ctx is cancelled. Cancelling ctx counts
// as closing the window. It returns the process exit code; the error is set
// only for fatal failures, in which case the code is 1.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	o.logger.Debug("Starting capture.", zap.Stringer("output", o.cfg.Output), zap.Duration("visibility_timeout", o.cfg.VisibilityTimeout))

	// Chrome creates the profile directory on launch, so look before starting it.
	deferShow := !visibility.DecideInitial(o.fs, o.cacheRoot, true)

	host, err := o.launch(ctx, browser.LaunchOptions{
		UserDataDir: o.cacheRoot,
		Title:       o.cfg.Title,
		StartHidden: deferShow,
	})
	if err != nil {
		return lifecycle.ExitFailure, fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := host.Close(closeCtx); err != nil {
			o.logger.Warn("Error while closing the browser.", zap.Error(err))
		}
	}()

	showNow := !deferShow || !host.PersistentProfiles()
	if deferShow && showNow {
		if err := host.SetVisible(ctx, true); err != nil {
			o.logger.Warn("Failed to show window.", zap.Error(err))
		}
	}
	o.logger.Debug("Initial visibility decided.", zap.Bool("show_now", showNow), zap.String("cache_root", o.cacheRoot))

	r := &run{
		host:       host,
		visibility: visibility.NewController(showNow),
		lifecycle:  lifecycle.NewController(o.emitter, o.logger),
		msgs:       make(chan interface{}),
		done:       make(chan struct{}),
	}

	host.OnNavigationAttempt(func(url string) bool {
		reply := make(chan bool, 1)
		if !r.post(navigationAttempt{url: url, reply: reply}) {
			return false
		}
		select {
		case allow := <-reply:
			return allow
		case <-r.done:
			return false
		}
	})
	host.OnPageLoaded(func() { r.post(visibilityTrigger{trigger: visibility.TriggerPageLoaded}) })
	host.OnCloseRequested(func() { r.post(closeRequest{}) })

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	stopTimer := r.visibility.Arm(gctx, o.cfg.VisibilityTimeout, func(t visibility.Trigger) {
		r.post(visibilityTrigger{trigger: t})
	})
	defer stopTimer()

	var code int
	g.Go(func() error {
		defer cancelRun()
		defer close(r.done)
		var err error
		code, err = o.loop(gctx, r)
		return err
	})
	g.Go(func() error {
		o.logger.Info("Loading start page.", zap.String("url", o.cfg.StartURL))
		if err := host.Navigate(gctx, o.cfg.StartURL); err != nil && gctx.Err() == nil {
			// The window stays open on the error page; the user can still close it.
			o.logger.Warn("Start page did not load.", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return lifecycle.ExitFailure, err
	}
	return code, nil
}

func (o *Orchestrator) loop(ctx context.Context, r *run) (int, error) {
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("Interrupted, treating as a window close.")
			_ = r.lifecycle.CloseRequested()
		case m := <-r.msgs:
			o.handle(ctx, r, m)
		}

		if r.lifecycle.State() == lifecycle.Terminating {
			code, err := r.lifecycle.Exit()
			if err != nil {
				return code, fmt.Errorf("failed to deliver result: %w", err)
			}
			o.logger.Debug("Capture finished.", zap.Int("exit_code", code))
			return code, nil
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, r *run, m interface{}) {
	switch m := m.(type) {
	case navigationAttempt:
		m.reply <- o.decide(r, m.url)
	case visibilityTrigger:
		if r.visibility.Observe(m.trigger) {
			o.logger.Debug("Showing window.", zap.Stringer("trigger", m.trigger))
			if err := r.host.SetVisible(ctx, true); err != nil {
				o.logger.Warn("Failed to show window.", zap.Error(err))
			}
		}
	case closeRequest:
		if err := r.lifecycle.CloseRequested(); err != nil && !errors.Is(err, lifecycle.ErrTerminated) {
			o.logger.Warn("Unexpected close handling error.", zap.Error(err))
		}
	default:
		o.logger.Error("Unknown event loop message.", zap.Any("message", m))
	}
}

// decide classifies a navigation and reports whether it may proceed.
// Terminal outcomes are never navigated to.
func (o *Orchestrator) decide(r *run, url string) bool {
	if r.lifecycle.State() != lifecycle.Running {
		return false
	}
	outcome := capture.Classify(url, o.cfg.Rules)
	if !outcome.Terminal() {
		return true
	}
	if err := r.lifecycle.Resolve(outcome); err != nil {
		o.logger.Debug("Outcome arrived after termination.", zap.Error(err))
	}
	return false
}
