// Package visibility decides when the capture window becomes visible.
//
// On a repeat run the browser profile usually still holds a valid login and
// the authorization server redirects straight back with a code. Showing the
// window in that case only flashes it at the user, so it starts hidden and is
// shown when the first page finishes loading or the wait timeout elapses,
// whichever comes first.
package visibility

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// State is the visibility state of the capture window.
type State int

const (
	// PendingShow means the window is hidden and waiting for a trigger.
	PendingShow State = iota
	// Shown means the window has been shown. It is never hidden again.
	Shown
)

func (s State) String() string {
	switch s {
	case PendingShow:
		return "pending_show"
	case Shown:
		return "shown"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Trigger is an event that may show the window.
type Trigger int

const (
	// TriggerTimeout fires when the visibility timeout elapses.
	TriggerTimeout Trigger = iota
	// TriggerPageLoaded fires when a page finishes loading.
	TriggerPageLoaded
)

func (t Trigger) String() string {
	switch t {
	case TriggerTimeout:
		return "timeout"
	case TriggerPageLoaded:
		return "page_loaded"
	default:
		return fmt.Sprintf("Trigger(%d)", int(t))
	}
}

// DecideInitial reports whether the window should be shown right away.
//
// It defers only when the host keeps persistent profiles and cacheRoot
// already exists, which suggests an earlier run logged in. Existence is a
// heuristic; nothing is read from the directory. An error while checking is
// treated as "does not exist".
func DecideInitial(fs afero.Fs, cacheRoot string, persistentProfiles bool) bool {
	if !persistentProfiles {
		return true
	}
	exists, err := afero.Exists(fs, cacheRoot)
	if err != nil {
		return true
	}
	return !exists
}

// Controller owns the visibility state. It is not safe for concurrent use:
// the event loop owns it and is the only caller of Observe. Producers on
// other goroutines reach it by posting Triggers into that loop.
type Controller struct {
	state State
	armed bool
}

// NewController returns a controller that starts Shown when showNow is true
// and PendingShow otherwise.
func NewController(showNow bool) *Controller {
	if showNow {
		return &Controller{state: Shown}
	}
	return &Controller{state: PendingShow}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Observe records a trigger. It returns true exactly once, for the first
// trigger seen while PendingShow; the caller must show the window then.
// Every later trigger is a no-op.
func (c *Controller) Observe(Trigger) bool {
	if c.state != PendingShow {
		return false
	}
	c.state = Shown
	return true
}

// Arm starts the timeout half of the race. After timeout it calls post with
// TriggerTimeout, unless ctx is done or stop has been called first. Page
// loads are the other half; the caller routes them to Observe directly.
//
// Arm starts at most one timer per controller, and none when the window is
// already shown. The returned stop cancels the timer and waits for its
// goroutine to exit.
func (c *Controller) Arm(ctx context.Context, timeout time.Duration, post func(Trigger)) (stop func()) {
	if c.armed || c.state != PendingShow {
		return func() {}
	}
	c.armed = true

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-timer.C:
			post(TriggerTimeout)
		case <-ctx.Done():
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}
