// Package session implements the lifecycle state machine between one RL
// client and one native search engine, and the manager that owns all live
// sessions. A session serializes its operations behind a per-session lock;
// none of the native engines are assumed reentrant.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jqzhao7/SUPERSONIC/internal/backend"
	"github.com/jqzhao7/SUPERSONIC/internal/codec"
	"github.com/jqzhao7/SUPERSONIC/internal/observability"
	"github.com/jqzhao7/SUPERSONIC/internal/space"
)

// Phase is the lifecycle state of a session.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseReady
	PhaseStepping
	PhaseResetting
	PhaseRendering
	PhaseStale
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseReady:
		return "ready"
	case PhaseStepping:
		return "stepping"
	case PhaseResetting:
		return "resetting"
	case PhaseRendering:
		return "rendering"
	case PhaseStale:
		return "stale"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StepOutcome wraps one native step's result. ExecError and ExecTimeout are
// orthogonal: a slow-but-valid operation times out without erroring, an
// invalid operation errors without timing out. Exactly one of success,
// ExecError, ExecTimeout holds.
type StepOutcome struct {
	ElemID      []int32
	ExecError   bool
	ExecTimeout bool
	ExecTimeSec float64
}

// Session owns exactly one native engine handle for one client. The bounds
// are frozen by Init and never change; the decision trace grows with each
// successfully applied operation and is replayed order for Render.
type Session struct {
	id        string
	mu        sync.Mutex
	phase     Phase
	bounds    codec.Bounds
	sp        *space.Space
	eng       backend.Scheduler
	exec      *Executor
	trace     []string
	initTime  float64
	createdAt time.Time
	lastUsed  time.Time
}

func newSession(id string, sp *space.Space, exec *Executor) *Session {
	now := time.Now().UTC()
	return &Session{
		id:        id,
		phase:     PhaseUninitialized,
		sp:        sp,
		exec:      exec,
		createdAt: now,
		lastUsed:  now,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Bounds returns the search-space dimensions frozen at init.
func (s *Session) Bounds() codec.Bounds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bounds
}

func (s *Session) InitTimeSec() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initTime
}

// init allocates the native engine. Only legal once, from Uninitialized; a
// second init fails with ErrPhaseViolation.
func (s *Session) init(ctx context.Context, factory backend.Factory, p backend.InitParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseUninitialized {
		return fmt.Errorf("%w: init in phase %s", ErrPhaseViolation, s.phase)
	}
	start := time.Now()
	eng, bounds, err := factory(ctx, p)
	if err != nil {
		return err
	}
	s.eng = eng
	s.bounds = bounds
	s.initTime = time.Since(start).Seconds()
	s.phase = PhaseReady
	s.touchLocked()
	return nil
}

// Step decodes one operation and runs it against the native engine under the
// executor's deadline. Codec failures are returned as errors before any
// native call; native failures come back as flags on the outcome. The
// session returns to Ready unless a non-cancellable timeout left the engine
// in an unknown state, in which case it goes Stale.
func (s *Session) Step(ctx context.Context, mapCode int32) (StepOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireReadyLocked("step"); err != nil {
		return StepOutcome{}, err
	}
	d, err := s.bounds.Decode(mapCode)
	if err != nil {
		return StepOutcome{}, err
	}

	s.phase = PhaseStepping
	ctx, span := observability.StartSpan(ctx, "session.step",
		attribute.String("session.id", s.id),
		attribute.Int("op.map_code", int(mapCode)),
	)
	out, stale := s.exec.Run(ctx, s.eng, d)
	span.SetAttributes(
		attribute.Bool("exec.error", out.ExecError),
		attribute.Bool("exec.timeout", out.ExecTimeout),
	)
	span.End()

	if stale {
		s.phase = PhaseStale
	} else {
		s.phase = PhaseReady
	}
	if !out.ExecError && !out.ExecTimeout {
		s.trace = append(s.trace, s.sp.Describe(d))
	}
	s.touchLocked()
	return out, nil
}

// Reset replays the ordered operation batch against a fresh engine state.
// All map codes are validated before the engine is touched, so a codec
// failure never leaves a half-applied batch behind. Individual engine
// rejections during the replay yield empty element lists and the replay
// continues; the result list always matches the input length and order.
func (s *Session) Reset(ctx context.Context, mapCodes []int32) ([][]int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireReadyLocked("reset"); err != nil {
		return nil, err
	}
	decisions := make([]codec.Decision, len(mapCodes))
	for i, code := range mapCodes {
		d, err := s.bounds.Decode(code)
		if err != nil {
			return nil, fmt.Errorf("op[%d]: %w", i, err)
		}
		decisions[i] = d
	}

	s.phase = PhaseResetting
	ctx, span := observability.StartSpan(ctx, "session.reset",
		attribute.String("session.id", s.id),
		attribute.Int("op.count", len(mapCodes)),
	)
	defer span.End()

	s.eng.Reset()
	s.trace = s.trace[:0]
	results := make([][]int32, len(decisions))
	for i := range results {
		results[i] = []int32{}
	}
	for i, d := range decisions {
		out, stale := s.exec.Run(ctx, s.eng, d)
		if stale {
			s.phase = PhaseStale
			s.touchLocked()
			return nil, fmt.Errorf("%w: engine timed out replaying op[%d]", ErrSessionDead, i)
		}
		if out.ExecError || out.ExecTimeout {
			continue
		}
		results[i] = out.ElemID
		s.trace = append(s.trace, s.sp.Describe(d))
	}
	s.phase = PhaseReady
	s.touchLocked()
	return results, nil
}

// Render returns the accumulated decision trace, one line per applied
// decision in application order. Read-only.
func (s *Session) Render() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireReadyLocked("render"); err != nil {
		return nil, err
	}
	s.phase = PhaseRendering
	out := make([]string, len(s.trace))
	copy(out, s.trace)
	s.phase = PhaseReady
	s.touchLocked()
	return out, nil
}

// Close releases the native engine. Legal from any phase and idempotent;
// release failures are logged by the caller, never propagated.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseClosed {
		return nil
	}
	var err error
	if s.eng != nil {
		err = s.eng.Close()
		s.eng = nil
	}
	s.phase = PhaseClosed
	return err
}

func (s *Session) requireReadyLocked(op string) error {
	switch s.phase {
	case PhaseReady:
		return nil
	case PhaseStale:
		return fmt.Errorf("%w: engine stale after timeout", ErrSessionDead)
	default:
		return fmt.Errorf("%w: %s in phase %s", ErrPhaseViolation, op, s.phase)
	}
}

func (s *Session) touchLocked() {
	s.lastUsed = time.Now().UTC()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}
