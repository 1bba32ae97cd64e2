// Package lifecycle turns a capture result or a window close into the
// process exit code.
package lifecycle

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/skjsjhb/LCAP/internal/capture"
	"github.com/skjsjhb/LCAP/internal/output"
)

// Exit codes.
const (
	ExitCaptured = 0
	ExitFailure  = 1
)

// ErrTerminated is returned when something tries to change the outcome after
// termination has begun.
var ErrTerminated = errors.New("lifecycle: already terminated")

// ErrRunning is returned by Exit before any terminal transition.
var ErrRunning = errors.New("lifecycle: still running")

// State of the controller. Transitions only move forward:
// Running -> Terminating -> Exited.
type State int

const (
	Running State = iota
	Terminating
	Exited
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Terminating:
		return "terminating"
	case Exited:
		return "exited"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Emitter delivers a payload. *output.Sink satisfies it.
type Emitter interface {
	Emit(payload string) error
}

// Controller holds the exit state. Like the visibility controller it belongs
// to the event loop and is not safe for concurrent use.
type Controller struct {
	logger  *zap.Logger
	emitter Emitter

	state   State
	code    int
	payload string
	emit    bool
}

// NewController returns a controller in the Running state.
func NewController(emitter Emitter, logger *zap.Logger) *Controller {
	return &Controller{
		logger:  logger.Named("lifecycle"),
		emitter: emitter,
		state:   Running,
	}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Code returns the pending or delivered exit code. It is meaningless while
// Running.
func (c *Controller) Code() int { return c.code }

// Resolve applies a navigation outcome. Continue is ignored. A Code moves to
// Terminating(0), an Error to Terminating(1). Once terminating, any further
// terminal outcome is rejected with ErrTerminated and the pending code stays.
func (c *Controller) Resolve(o capture.Outcome) error {
	if !o.Terminal() {
		return nil
	}
	if c.state != Running {
		c.logger.Debug("Ignoring outcome after termination.", zap.Stringer("kind", o.Kind))
		return ErrTerminated
	}

	payload, _ := output.Format(o)
	c.payload = payload
	c.emit = true
	if o.Kind == capture.Code {
		c.code = ExitCaptured
	} else {
		c.code = ExitFailure
	}
	c.state = Terminating
	c.logger.Info("Capture resolved.", zap.Stringer("kind", o.Kind), zap.Int("exit_code", c.code))
	return nil
}

// CloseRequested handles the user closing the window. Before resolution it
// moves to Terminating(1) with nothing to emit. Afterwards it is a no-op.
func (c *Controller) CloseRequested() error {
	if c.state != Running {
		return ErrTerminated
	}
	c.code = ExitFailure
	c.state = Terminating
	c.logger.Info("Window closed before a result was captured.")
	return nil
}

// Exit completes termination. For a captured outcome the payload is emitted
// exactly once here; a failed emit turns the exit code into 1 and returns the
// error. Calling Exit again returns the same code without emitting.
func (c *Controller) Exit() (int, error) {
	switch c.state {
	case Running:
		return ExitFailure, ErrRunning
	case Exited:
		return c.code, nil
	}

	c.state = Exited
	if !c.emit {
		return c.code, nil
	}
	c.emit = false
	if err := c.emitter.Emit(c.payload); err != nil {
		c.logger.Error("Failed to deliver capture result.", zap.Error(err))
		c.code = ExitFailure
		return c.code, err
	}
	return c.code, nil
}
