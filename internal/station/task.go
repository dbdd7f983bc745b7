package station

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/airtap/ratectl/internal/util"
)

// TaskState tracks a control task through its lifecycle:
// Unconfigured → Configuring → Running ⇄ Paused → Stopped.
type TaskState int

const (
	TaskUnconfigured TaskState = iota
	TaskConfiguring
	TaskRunning
	TaskPaused
	TaskStopped
)

func (s TaskState) String() string {
	switch s {
	case TaskUnconfigured:
		return "unconfigured"
	case TaskConfiguring:
		return "configuring"
	case TaskRunning:
		return "running"
	case TaskPaused:
		return "paused"
	case TaskStopped:
		return "stopped"
	}
	return "unknown"
}

var (
	// ErrConfigureFailed wraps an algorithm Configure error; the task is
	// stopped and the station's modes are left at their pre-attach values.
	ErrConfigureFailed = errors.New("rate control configure failed")
	// ErrRunExited marks a Run hook that returned instead of blocking.
	ErrRunExited = errors.New("rate control run loop exited")
	// ErrTaskStopped is returned when a transition is requested on a
	// terminally stopped task.
	ErrTaskStopped = errors.New("control task is stopped")
)

// runCancelWait bounds how long a transition waits for a cancelled Run unit
// to yield. A run loop that ignores cancellation cannot deadlock its owner.
const runCancelWait = 2 * time.Second

// Task owns one station's rate control algorithm lifecycle. It is owned
// exclusively by its Station and never shared. All transitions are
// serialized; the Run hook is the only code executing outside the lock.
type Task struct {
	mu     sync.Mutex
	sta    *Station
	alg    Algorithm
	logger util.Logger

	state    TaskState
	algState any
	base     context.Context
	cancel   context.CancelFunc
	runDone  chan struct{}
	gen      uint64
}

func newTask(sta *Station, alg Algorithm, logger util.Logger) *Task {
	return &Task{sta: sta, alg: alg, logger: logger, state: TaskUnconfigured}
}

// State returns the current lifecycle state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start configures the algorithm and launches its run unit. A Configure
// error stops the task and is surfaced to the caller.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case TaskUnconfigured:
	case TaskStopped:
		return ErrTaskStopped
	default:
		return fmt.Errorf("control task already started (state %s)", t.state)
	}

	t.base = ctx
	t.state = TaskConfiguring
	st, err := t.alg.Configure(ctx, t.sta)
	if err != nil {
		t.state = TaskStopped
		return fmt.Errorf("%w: %v", ErrConfigureFailed, err)
	}
	t.algState = st
	t.startRunLocked()
	return nil
}

// Pause cancels the run unit and invokes the algorithm's Pause hook if it
// has one. Pausing a paused or stopped task is a no-op.
func (t *Task) Pause(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TaskRunning {
		return nil
	}
	t.state = TaskPaused
	t.cancelRunLocked()

	if pr, ok := t.alg.(PauseResumer); ok {
		if err := pr.Pause(ctx, t.algState); err != nil {
			t.logger.Error("rate control pause hook failed", "station", t.sta.MAC(), "error", err)
		}
	}
	return nil
}

// Resume restarts a paused task. With a PauseResumer the Resume hook runs
// and the existing run unit state is reused; otherwise the algorithm is
// configured again from scratch.
func (t *Task) Resume(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case TaskPaused:
	case TaskStopped:
		return ErrTaskStopped
	default:
		return nil
	}

	if pr, ok := t.alg.(PauseResumer); ok {
		if err := pr.Resume(ctx, t.algState); err != nil {
			t.state = TaskStopped
			t.algState = nil
			return fmt.Errorf("rate control resume failed: %w", err)
		}
	} else {
		t.state = TaskConfiguring
		st, err := t.alg.Configure(ctx, t.sta)
		if err != nil {
			t.state = TaskStopped
			return fmt.Errorf("%w: %v", ErrConfigureFailed, err)
		}
		t.algState = st
	}
	t.startRunLocked()
	return nil
}

// Stop terminates the task and releases its run unit and algorithm state.
// Idempotent: stopping a stopped task is a no-op.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == TaskStopped {
		return
	}
	t.state = TaskStopped
	t.cancelRunLocked()
	t.algState = nil
}

// startRunLocked launches the Run hook as its own goroutine. A Run that
// returns while the task still believes it is running is an implicit stop.
func (t *Task) startRunLocked() {
	runCtx, cancel := context.WithCancel(t.base)
	done := make(chan struct{})
	t.cancel = cancel
	t.runDone = done
	t.gen++
	gen := t.gen
	t.state = TaskRunning

	go func() {
		err := t.alg.Run(runCtx, t.algState)
		close(done)

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.gen != gen || t.state != TaskRunning {
			// A pause or stop transition already accounted for this unit.
			return
		}
		t.state = TaskStopped
		t.algState = nil
		if err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Error("rate control run loop failed", "station", t.sta.MAC(), "error", err)
		} else {
			t.logger.Debug("rate control run loop exited", "station", t.sta.MAC(), "error", ErrRunExited)
		}
	}()
}

// cancelRunLocked signals the run unit and waits a bounded time for it to
// yield. The done channel closes before the unit re-acquires the lock, so
// waiting here cannot deadlock.
func (t *Task) cancelRunLocked() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	t.cancel = nil

	if t.runDone == nil {
		return
	}
	timer := time.NewTimer(runCancelWait)
	defer timer.Stop()
	select {
	case <-t.runDone:
	case <-timer.C:
		t.logger.Warn("rate control run loop ignoring cancellation", "station", t.sta.MAC())
	}
	t.runDone = nil
}
