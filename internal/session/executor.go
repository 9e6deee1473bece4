package session

import (
	"context"
	"time"

	"github.com/jqzhao7/SUPERSONIC/internal/backend"
	"github.com/jqzhao7/SUPERSONIC/internal/codec"
	"github.com/jqzhao7/SUPERSONIC/internal/observability"
)

// Executor runs one native engine call under a deadline and converts the
// outcome into orthogonal error/timeout signals. Elapsed time is measured
// around the native call only; codec and bookkeeping time is excluded.
type Executor struct {
	deadline time.Duration
	// cancelGrace is how long past the deadline the executor waits for the
	// engine to honor context cancellation. An engine that returns within
	// the grace window is treated as cleanly cancelled; one that does not is
	// in an unknown state and its session must go stale.
	cancelGrace time.Duration
}

const (
	defaultStepDeadline = 10 * time.Second
	defaultCancelGrace  = 100 * time.Millisecond
)

func NewExecutor(deadline, cancelGrace time.Duration) *Executor {
	if deadline <= 0 {
		deadline = defaultStepDeadline
	}
	if cancelGrace <= 0 {
		cancelGrace = defaultCancelGrace
	}
	return &Executor{deadline: deadline, cancelGrace: cancelGrace}
}

type applyResult struct {
	elems []int32
	err   error
}

// Run applies one decision. The second return value reports whether the
// engine outlived its cancellation grace and the session must be marked
// stale. A native error keeps the session usable: the engine rejected the
// operation but is still consistent.
func (e *Executor) Run(ctx context.Context, eng backend.Scheduler, d codec.Decision) (StepOutcome, bool) {
	ctx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	done := make(chan applyResult, 1)
	start := time.Now()
	go func() {
		elems, err := eng.Apply(ctx, d)
		done <- applyResult{elems: elems, err: err}
	}()

	select {
	case res := <-done:
		elapsed := time.Since(start).Seconds()
		if res.err != nil {
			observability.Default.IncCounter("step_errors_total", nil, 1)
			return StepOutcome{ElemID: []int32{}, ExecError: true, ExecTimeSec: elapsed}, false
		}
		elems := res.elems
		if elems == nil {
			elems = []int32{}
		}
		observability.Default.IncCounter("steps_total", nil, 1)
		return StepOutcome{ElemID: elems, ExecTimeSec: elapsed}, false
	case <-ctx.Done():
	}

	// Deadline exceeded; give the engine the grace window to notice the
	// cancelled context.
	elapsed := time.Since(start).Seconds()
	observability.Default.IncCounter("step_timeouts_total", nil, 1)
	grace := time.NewTimer(e.cancelGrace)
	defer grace.Stop()
	select {
	case <-done:
		return StepOutcome{ElemID: []int32{}, ExecTimeout: true, ExecTimeSec: elapsed}, false
	case <-grace.C:
		observability.Default.IncCounter("sessions_stale_total", nil, 1)
		return StepOutcome{ElemID: []int32{}, ExecTimeout: true, ExecTimeSec: elapsed}, true
	}
}
