package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Protocol-Lattice/excel-mcp-agent/pkg/agentapi"
)

var (
	// ErrRunNotCompleted matches a RunError.
	ErrRunNotCompleted = errors.New("agent run did not complete successfully")
	// ErrRunTimedOut is returned when Driver.Timeout elapses while the run
	// is still pending.
	ErrRunTimedOut = errors.New("agent run timed out")
)

// RunError reports a run that reached a terminal status other than
// completed.
type RunError struct {
	Status    agentapi.RunStatus
	LastError *agentapi.RunError
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("Agent run did not complete successfully: %s", e.Status)
	if e.LastError != nil && e.LastError.Message != "" {
		msg += " (" + e.LastError.Message + ")"
	}
	return msg
}

func (e *RunError) Is(target error) bool {
	return target == ErrRunNotCompleted
}

// Result is the outcome of a finished conversation.
type Result struct {
	Thread   agentapi.Thread
	Run      agentapi.Run
	Polls    int
	Messages []agentapi.Message
}

// Driver runs a single question against an agent and polls the run until it
// leaves the pending states.
type Driver struct {
	Service agentapi.Service
	// PollInterval is the pause before each re-fetch. Defaults to one second.
	PollInterval time.Duration
	// Timeout bounds Wait. Zero waits for as long as the run stays pending.
	Timeout time.Duration
	Logger  *slog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDriver returns a driver using the default poll interval and no timeout.
func NewDriver(svc agentapi.Service) *Driver {
	return &Driver{Service: svc, PollInterval: time.Second}
}

// Run creates a thread, posts prompt as the user, starts agentID on it and
// waits for the run to finish. The thread's messages are fetched whatever
// the terminal status is, so the caller can always print them; a terminal
// status other than completed is reported through the returned error.
func (d *Driver) Run(ctx context.Context, agentID, prompt string) (Result, error) {
	thread, err := d.Service.CreateThread(ctx)
	if err != nil {
		return Result{}, err
	}
	d.logger().Debug("thread created", "thread", thread.ID)

	if _, err := d.Service.CreateMessage(ctx, thread.ID, agentapi.MessageRequest{
		Role:    agentapi.RoleUser,
		Content: prompt,
	}); err != nil {
		return Result{Thread: thread}, err
	}

	run, err := d.Service.CreateRun(ctx, thread.ID, agentID)
	if err != nil {
		return Result{Thread: thread}, err
	}
	d.logger().Info("run started", "run", run.ID, "status", run.Status)

	res := Result{Thread: thread}
	res.Run, res.Polls, err = d.wait(ctx, thread.ID, run)
	if err != nil && !errors.Is(err, ErrRunNotCompleted) {
		return res, err
	}

	msgs, listErr := d.Service.ListMessages(ctx, thread.ID, agentapi.OrderAsc)
	if listErr != nil {
		return res, listErr
	}
	res.Messages = msgs
	return res, err
}

// Wait polls run until its status is terminal and returns the final run. It
// fails with a RunError when that status is not completed.
func (d *Driver) Wait(ctx context.Context, run agentapi.Run) (agentapi.Run, error) {
	final, _, err := d.wait(ctx, run.ThreadID, run)
	return final, err
}

func (d *Driver) wait(ctx context.Context, threadID string, run agentapi.Run) (agentapi.Run, int, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, d.Timeout, ErrRunTimedOut)
		defer cancel()
	}

	polls := 0
	for run.Status.Pending() {
		if run.Status == agentapi.RunStatusRequiresAction {
			// Tool calls are served by the stdio server; nothing is
			// submitted from here.
			d.logger().Debug("run requires action", "run", run.ID)
		}
		if err := d.pause(ctx); err != nil {
			return run, polls, err
		}
		next, err := d.Service.RetrieveRun(ctx, threadID, run.ID)
		if err != nil {
			return run, polls, d.timedOut(ctx, err)
		}
		polls++
		run = next
		d.logger().Info("run polled", "run", run.ID, "status", run.Status, "polls", polls)
	}

	if run.Status != agentapi.RunStatusCompleted {
		return run, polls, &RunError{Status: run.Status, LastError: run.LastError}
	}
	return run, polls, nil
}

func (d *Driver) pause(ctx context.Context) error {
	interval := d.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	sleep := d.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	if err := sleep(ctx, interval); err != nil {
		return d.timedOut(ctx, err)
	}
	return nil
}

// timedOut replaces err with ErrRunTimedOut when the poll deadline caused it.
func (d *Driver) timedOut(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), ErrRunTimedOut) {
		return fmt.Errorf("%w after %s", ErrRunTimedOut, d.Timeout)
	}
	return err
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
