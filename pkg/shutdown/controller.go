// Package shutdown turns the derived "shutdown due" signal into a one-shot
// power-off of the machine.
package shutdown

import (
	"context"
	"os/exec"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vpower/pkg/powerstate"
)

// ErrShutdownCommandFailed is returned when the power-off command could not
// be started or exited with a non-zero status.
var ErrShutdownCommandFailed = pkgerrors.New("shutdown command failed")

// State is the lifecycle state of a Controller.
type State int

const (
	// Armed waits for ShutdownDue.
	Armed State = iota
	// Triggered is sleeping through the grace period.
	Triggered
	// ShuttingDown has run the power-off command. It is terminal.
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Triggered:
		return "triggered"
	case ShuttingDown:
		return "shutting down"
	default:
		return "unknown"
	}
}

// Runner runs the power-off command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec and logs their combined output.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if len(out) > 0 {
		logrus.WithField("command", name).Infof("output: %s", strings.TrimSpace(string(out)))
	}
	return err
}

// Controller requests a shutdown once the charge drops below the configured
// threshold while AC is not connected.
type Controller struct {
	state       State
	gracePeriod time.Duration
	command     []string
	runner      Runner
	sleep       func(time.Duration)
}

// NewController returns an Armed Controller that runs command after
// gracePeriod. A nil runner runs the command with os/exec.
func NewController(gracePeriod time.Duration, command []string, runner Runner) *Controller {
	if runner == nil {
		runner = ExecRunner{}
	}

	return &Controller{
		state:       Armed,
		gracePeriod: gracePeriod,
		command:     command,
		runner:      runner,
		sleep:       time.Sleep,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Observe feeds the Derived state of a tick to the controller. When a
// shutdown is due it blocks for the grace period, runs the power-off
// command and returns true. The grace period cannot be interrupted, not even
// by AC coming back.
//
// Once a shutdown has been attempted, further calls return false and do
// nothing.
func (c *Controller) Observe(d powerstate.Derived) (bool, error) {
	if c.state != Armed || !d.ShutdownDue {
		return false, nil
	}

	c.state = Triggered
	fields := logrus.Fields{
		"ac":          d.AC.String(),
		"gracePeriod": c.gracePeriod.String(),
	}
	if d.BatteryPercent != nil {
		fields["batteryPercent"] = *d.BatteryPercent
	}
	logrus.WithFields(fields).Warn("battery critically low, shutting down after grace period")

	c.sleep(c.gracePeriod)

	c.state = ShuttingDown
	if len(c.command) == 0 {
		return true, pkgerrors.Wrap(ErrShutdownCommandFailed, "no shutdown command configured")
	}

	logrus.WithField("command", strings.Join(c.command, " ")).Info("running shutdown command")
	err := c.runner.Run(context.Background(), c.command[0], c.command[1:]...)
	if err != nil {
		return true, pkgerrors.Wrapf(ErrShutdownCommandFailed, "%s: %v", c.command[0], err)
	}

	return true, nil
}
