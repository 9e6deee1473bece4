package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jqzhao7/SUPERSONIC/internal/backend"
	"github.com/jqzhao7/SUPERSONIC/internal/codec"
	"github.com/jqzhao7/SUPERSONIC/internal/space"
)

type fakeScheduler struct {
	mu         sync.Mutex
	applyCalls int
	resetCalls int
	closeCalls int
	applyFn    func(ctx context.Context, d codec.Decision) ([]int32, error)
}

func (f *fakeScheduler) Apply(ctx context.Context, d codec.Decision) ([]int32, error) {
	f.mu.Lock()
	f.applyCalls++
	fn := f.applyFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, d)
	}
	return []int32{d.Stage, d.Directive, d.Param}, nil
}

func (f *fakeScheduler) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls++
}

func (f *fakeScheduler) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakeScheduler) counts() (apply, reset, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applyCalls, f.resetCalls, f.closeCalls
}

func fakeFactory(f *fakeScheduler) backend.Factory {
	return func(_ context.Context, p backend.InitParams) (backend.Scheduler, codec.Bounds, error) {
		return f, space.Default().Bounds(p.MaxStageDirective), nil
	}
}

func testManager(t *testing.T, f *fakeScheduler, opts Options) (*Manager, *Session) {
	t.Helper()
	reg := backend.NewRegistry()
	reg.Register(backend.AlgorithmScheduling, fakeFactory(f))
	m := NewManager(reg, space.Default(), opts)
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	s, err := m.Init(context.Background(), backend.AlgorithmScheduling, backend.InitParams{InputImage: "x.png", MaxStageDirective: 4})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	return m, s
}

func TestInitFreezesBounds(t *testing.T) {
	_, s := testManager(t, &fakeScheduler{}, Options{})
	b := s.Bounds()
	if b.MaxStage != 4 || b.ScheduleMapRange() != b.MaxStage*b.MaxDirective*b.MaxParam {
		t.Fatalf("unexpected bounds %+v", b)
	}
	if s.InitTimeSec() < 0 {
		t.Fatalf("negative init time")
	}
	if s.Phase() != PhaseReady {
		t.Fatalf("expected ready, got %s", s.Phase())
	}
}

func TestDoubleInitIsPhaseViolation(t *testing.T) {
	f := &fakeScheduler{}
	_, s := testManager(t, f, Options{})
	err := s.init(context.Background(), fakeFactory(f), backend.InitParams{InputImage: "x.png", MaxStageDirective: 4})
	if !errors.Is(err, ErrPhaseViolation) {
		t.Fatalf("expected ErrPhaseViolation, got %v", err)
	}
}

func TestStepBeforeInitIsPhaseViolation(t *testing.T) {
	s := newSession("sess-test", space.Default(), NewExecutor(0, 0))
	if _, err := s.Step(context.Background(), 0); !errors.Is(err, ErrPhaseViolation) {
		t.Fatalf("step: expected ErrPhaseViolation, got %v", err)
	}
	if _, err := s.Reset(context.Background(), []int32{0}); !errors.Is(err, ErrPhaseViolation) {
		t.Fatalf("reset: expected ErrPhaseViolation, got %v", err)
	}
	if _, err := s.Render(); !errors.Is(err, ErrPhaseViolation) {
		t.Fatalf("render: expected ErrPhaseViolation, got %v", err)
	}
}

func TestStepSuccessAccumulatesTrace(t *testing.T) {
	f := &fakeScheduler{}
	_, s := testManager(t, f, Options{})
	out, err := s.Step(context.Background(), 0)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if out.ExecError || out.ExecTimeout {
		t.Fatalf("unexpected flags %+v", out)
	}
	if out.ExecTimeSec < 0 {
		t.Fatalf("negative exec time")
	}
	if _, err := s.Step(context.Background(), 1); err != nil {
		t.Fatalf("second step: %v", err)
	}
	lines, err := s.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 trace lines, got %d: %v", len(lines), lines)
	}
}

func TestStepOutOfRangeNeverReachesEngine(t *testing.T) {
	f := &fakeScheduler{}
	_, s := testManager(t, f, Options{})
	r := s.Bounds().ScheduleMapRange()
	if _, err := s.Step(context.Background(), r); !errors.Is(err, codec.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if apply, _, _ := f.counts(); apply != 0 {
		t.Fatalf("engine called %d times for invalid op", apply)
	}
	// Boundary-valid code must dispatch.
	if _, err := s.Step(context.Background(), r-1); err != nil {
		t.Fatalf("boundary step: %v", err)
	}
}

func TestStepEngineErrorKeepsSessionReady(t *testing.T) {
	f := &fakeScheduler{applyFn: func(context.Context, codec.Decision) ([]int32, error) {
		return nil, errors.New("illegal combination")
	}}
	_, s := testManager(t, f, Options{})
	out, err := s.Step(context.Background(), 0)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !out.ExecError || out.ExecTimeout {
		t.Fatalf("expected exec_error only, got %+v", out)
	}
	if len(out.ElemID) != 0 {
		t.Fatalf("expected empty elem ids, got %v", out.ElemID)
	}
	if s.Phase() != PhaseReady {
		t.Fatalf("expected ready, got %s", s.Phase())
	}
	lines, _ := s.Render()
	if len(lines) != 0 {
		t.Fatalf("rejected op must not appear in trace: %v", lines)
	}
}

func TestStepTimeoutCooperativeEngine(t *testing.T) {
	f := &fakeScheduler{applyFn: func(ctx context.Context, _ codec.Decision) ([]int32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	_, s := testManager(t, f, Options{StepDeadline: 20 * time.Millisecond, CancelGrace: 200 * time.Millisecond})
	out, err := s.Step(context.Background(), 0)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !out.ExecTimeout || out.ExecError {
		t.Fatalf("expected exec_timeout only, got %+v", out)
	}
	if s.Phase() != PhaseReady {
		t.Fatalf("cooperative engine should leave session ready, got %s", s.Phase())
	}
}

func TestStepTimeoutNonCancellableEngineGoesStale(t *testing.T) {
	release := make(chan struct{})
	f := &fakeScheduler{applyFn: func(context.Context, codec.Decision) ([]int32, error) {
		<-release
		return []int32{}, nil
	}}
	defer close(release)
	_, s := testManager(t, f, Options{StepDeadline: 10 * time.Millisecond, CancelGrace: 10 * time.Millisecond})
	out, err := s.Step(context.Background(), 0)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !out.ExecTimeout || out.ExecError {
		t.Fatalf("expected exec_timeout only, got %+v", out)
	}
	if s.Phase() != PhaseStale {
		t.Fatalf("expected stale, got %s", s.Phase())
	}
	if _, err := s.Step(context.Background(), 0); !errors.Is(err, ErrSessionDead) {
		t.Fatalf("expected ErrSessionDead after stale, got %v", err)
	}
	if _, err := s.Render(); !errors.Is(err, ErrSessionDead) {
		t.Fatalf("render on stale session: expected ErrSessionDead, got %v", err)
	}
}

func TestResetReplaysBatchInOrder(t *testing.T) {
	f := &fakeScheduler{}
	_, s := testManager(t, f, Options{})
	if _, err := s.Step(context.Background(), 5); err != nil {
		t.Fatalf("seed step: %v", err)
	}
	results, err := s.Reset(context.Background(), []int32{0, 1, 2})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if _, reset, _ := f.counts(); reset != 1 {
		t.Fatalf("expected 1 engine reset, got %d", reset)
	}
	lines, _ := s.Render()
	if len(lines) != 3 {
		t.Fatalf("trace should match replayed batch, got %v", lines)
	}
}

func TestResetElementFailureIsIndependent(t *testing.T) {
	f := &fakeScheduler{}
	f.applyFn = func(_ context.Context, d codec.Decision) ([]int32, error) {
		if d.Param == 1 {
			return nil, errors.New("rejected")
		}
		return []int32{d.Param}, nil
	}
	_, s := testManager(t, f, Options{})
	results, err := s.Reset(context.Background(), []int32{0, 1, 2})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if len(results[1]) != 0 {
		t.Fatalf("rejected element should be empty, got %v", results[1])
	}
	if len(results[0]) == 0 || len(results[2]) == 0 {
		t.Fatalf("sibling elements must be unaffected: %v", results)
	}
	if s.Phase() != PhaseReady {
		t.Fatalf("expected ready, got %s", s.Phase())
	}
}

func TestResetValidatesBeforeTouchingEngine(t *testing.T) {
	f := &fakeScheduler{}
	_, s := testManager(t, f, Options{})
	r := s.Bounds().ScheduleMapRange()
	_, err := s.Reset(context.Background(), []int32{0, r})
	if !errors.Is(err, codec.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if apply, reset, _ := f.counts(); apply != 0 || reset != 0 {
		t.Fatalf("engine touched on invalid batch: apply=%d reset=%d", apply, reset)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	f := &fakeScheduler{}
	_, s := testManager(t, f, Options{})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, _, closed := f.counts(); closed != 1 {
		t.Fatalf("engine closed %d times", closed)
	}
	if _, err := s.Step(context.Background(), 0); !errors.Is(err, ErrPhaseViolation) {
		t.Fatalf("step after close: expected ErrPhaseViolation, got %v", err)
	}
}

func TestConcurrentStepsSerialize(t *testing.T) {
	var inFlight, maxInFlight int32
	var mu sync.Mutex
	f := &fakeScheduler{applyFn: func(context.Context, codec.Decision) ([]int32, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return []int32{}, nil
	}}
	_, s := testManager(t, f, Options{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(code int32) {
			defer wg.Done()
			if _, err := s.Step(context.Background(), code); err != nil {
				t.Errorf("step %d: %v", code, err)
			}
		}(int32(i))
	}
	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	if maxInFlight != 1 {
		t.Fatalf("expected at most one in-flight native call, saw %d", maxInFlight)
	}
}
