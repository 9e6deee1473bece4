package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/jqzhao7/SUPERSONIC/internal/codec"
	"github.com/jqzhao7/SUPERSONIC/internal/space"
)

// AlgorithmScheduling is the algorithm id of the built-in scheduling engine.
const AlgorithmScheduling int32 = 1

// localScheduler is the reference scheduling engine. It accepts any decision
// whose (stage, directive) slot is still free and rejects re-scheduling a
// slot, which is enough to exercise the rejection path end to end.
type localScheduler struct {
	mu      sync.Mutex
	bounds  codec.Bounds
	applied map[int64]codec.Decision
	closed  bool
}

// NewLocalScheduler returns a Factory for the reference scheduling engine.
// The engine derives its stage count from max_stage_directive and its
// directive/parameter tables from the shared space definition.
func NewLocalScheduler(sp *space.Space) Factory {
	return func(_ context.Context, p InitParams) (Scheduler, codec.Bounds, error) {
		if p.InputImage == "" {
			return nil, codec.Bounds{}, fmt.Errorf("input_image is required")
		}
		maxStage := p.MaxStageDirective
		if maxStage <= 0 {
			maxStage = 1
		}
		b := sp.Bounds(maxStage)
		if err := b.Validate(); err != nil {
			return nil, codec.Bounds{}, fmt.Errorf("max_stage_directive %d: %w", p.MaxStageDirective, err)
		}
		return &localScheduler{
			bounds:  b,
			applied: make(map[int64]codec.Decision),
		}, b, nil
	}
}

func (s *localScheduler) Apply(_ context.Context, d codec.Decision) ([]int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("scheduler is closed")
	}
	slot := int64(d.Stage)*int64(s.bounds.MaxDirective) + int64(d.Directive)
	if _, taken := s.applied[slot]; taken {
		return nil, fmt.Errorf("stage %d already scheduled with directive %d", d.Stage, d.Directive)
	}
	s.applied[slot] = d
	code, err := s.bounds.Encode(d)
	if err != nil {
		return nil, err
	}
	return []int32{code}, nil
}

func (s *localScheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = make(map[int64]codec.Decision)
}

func (s *localScheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
