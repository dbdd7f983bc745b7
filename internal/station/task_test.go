package station

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSink captures command lines for assertion.
type recordingSink struct {
	mu   sync.Mutex
	cmds []string
	err  error
}

func (s *recordingSink) SendCommand(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.cmds = append(s.cmds, cmd)
	return nil
}

func (s *recordingSink) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.cmds))
	copy(out, s.cmds)
	return out
}

func newTestStation(sink CommandSink) *Station {
	return New(Config{
		MAC:             "AA:BB:CC:DD:EE:FF",
		Radio:           "phy0",
		AP:              "ap0",
		NumRates:        16,
		NumTxPowers:     4,
		PauseOnDisassoc: true,
	}, sink, testLogger())
}

// fakeAlgorithm is a scriptable Algorithm without pause/resume hooks.
type fakeAlgorithm struct {
	configureErr error
	runErr       error
	runReturns   bool

	configures atomic.Int32
	runs       atomic.Int32
	running    chan struct{}
}

func newFakeAlgorithm() *fakeAlgorithm {
	return &fakeAlgorithm{running: make(chan struct{}, 8)}
}

func (a *fakeAlgorithm) Configure(ctx context.Context, sta *Station) (any, error) {
	a.configures.Add(1)
	if a.configureErr != nil {
		return nil, a.configureErr
	}
	return "state", nil
}

func (a *fakeAlgorithm) Run(ctx context.Context, state any) error {
	a.runs.Add(1)
	a.running <- struct{}{}
	if a.runReturns {
		return a.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

// pausableAlgorithm adds the optional pause/resume capability.
type pausableAlgorithm struct {
	fakeAlgorithm
	pauses  atomic.Int32
	resumes atomic.Int32
}

func (a *pausableAlgorithm) Pause(ctx context.Context, state any) error {
	a.pauses.Add(1)
	return nil
}

func (a *pausableAlgorithm) Resume(ctx context.Context, state any) error {
	a.resumes.Add(1)
	return nil
}

func waitForState(t *testing.T, task *Task, want TaskState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if task.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("task state = %s, want %s", task.State(), want)
}

func TestTaskLifecycle(t *testing.T) {
	sta := newTestStation(&recordingSink{})
	alg := newFakeAlgorithm()

	if err := sta.AttachAlgorithm(context.Background(), alg); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	task := sta.Task()
	if task == nil {
		t.Fatalf("no task after attach")
	}
	if task.State() != TaskRunning {
		t.Fatalf("state = %s, want running", task.State())
	}
	<-alg.running
	if n := alg.configures.Load(); n != 1 {
		t.Fatalf("configure ran %d times, want 1", n)
	}

	task.Stop()
	if task.State() != TaskStopped {
		t.Fatalf("state after stop = %s, want stopped", task.State())
	}

	// Stopped is terminal.
	task.Stop()
	if err := task.Resume(context.Background()); !errors.Is(err, ErrTaskStopped) {
		t.Fatalf("resume after stop = %v, want ErrTaskStopped", err)
	}
	if err := task.Start(context.Background()); !errors.Is(err, ErrTaskStopped) {
		t.Fatalf("start after stop = %v, want ErrTaskStopped", err)
	}
}

func TestTaskConfigureFailure(t *testing.T) {
	sta := newTestStation(&recordingSink{})
	alg := newFakeAlgorithm()
	alg.configureErr = errors.New("device rejected setup")

	err := sta.AttachAlgorithm(context.Background(), alg)
	if !errors.Is(err, ErrConfigureFailed) {
		t.Fatalf("attach = %v, want ErrConfigureFailed", err)
	}
	task := sta.Task()
	if task.State() != TaskStopped {
		t.Fatalf("state = %s, want stopped", task.State())
	}
	if n := alg.runs.Load(); n != 0 {
		t.Fatalf("run started %d times after configure failure, want 0", n)
	}
	// Modes keep their pre-attach values.
	if sta.RcMode() != ModeAuto || sta.TpcMode() != ModeAuto {
		t.Fatalf("modes = %s/%s, want auto/auto", sta.RcMode(), sta.TpcMode())
	}
}

func TestTaskRunExitIsImplicitStop(t *testing.T) {
	sta := newTestStation(&recordingSink{})
	alg := newFakeAlgorithm()
	alg.runReturns = true

	if err := sta.AttachAlgorithm(context.Background(), alg); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	<-alg.running
	waitForState(t, sta.Task(), TaskStopped)
}

func TestTaskPauseResumeWithoutHooks(t *testing.T) {
	sta := newTestStation(&recordingSink{})
	alg := newFakeAlgorithm()

	if err := sta.AttachAlgorithm(context.Background(), alg); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	task := sta.Task()
	<-alg.running

	if err := task.Pause(context.Background()); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if task.State() != TaskPaused {
		t.Fatalf("state = %s, want paused", task.State())
	}

	// Without a PauseResumer the algorithm is configured again.
	if err := task.Resume(context.Background()); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if task.State() != TaskRunning {
		t.Fatalf("state = %s, want running", task.State())
	}
	<-alg.running
	if n := alg.configures.Load(); n != 2 {
		t.Fatalf("configure ran %d times, want 2", n)
	}

	task.Stop()
}

func TestTaskPauseResumeWithHooks(t *testing.T) {
	sta := newTestStation(&recordingSink{})
	alg := &pausableAlgorithm{fakeAlgorithm: fakeAlgorithm{running: make(chan struct{}, 8)}}

	if err := sta.AttachAlgorithm(context.Background(), alg); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	task := sta.Task()
	<-alg.running

	if err := task.Pause(context.Background()); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if n := alg.pauses.Load(); n != 1 {
		t.Fatalf("pause hook ran %d times, want 1", n)
	}

	if err := task.Resume(context.Background()); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	<-alg.running
	if n := alg.resumes.Load(); n != 1 {
		t.Fatalf("resume hook ran %d times, want 1", n)
	}
	// The hook path reuses the configured state instead of reconfiguring.
	if n := alg.configures.Load(); n != 1 {
		t.Fatalf("configure ran %d times, want 1", n)
	}

	task.Stop()
}

func TestTaskPauseIdempotent(t *testing.T) {
	sta := newTestStation(&recordingSink{})
	alg := &pausableAlgorithm{fakeAlgorithm: fakeAlgorithm{running: make(chan struct{}, 8)}}

	if err := sta.AttachAlgorithm(context.Background(), alg); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	task := sta.Task()
	<-alg.running

	if err := task.Pause(context.Background()); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if err := task.Pause(context.Background()); err != nil {
		t.Fatalf("second pause failed: %v", err)
	}
	if n := alg.pauses.Load(); n != 1 {
		t.Fatalf("pause hook ran %d times, want 1", n)
	}
	task.Stop()
}
