package backend

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
)

// localSequential is the reference sequential-action engine. State is an
// opaque serialized string derived from the action history; reward decays as
// the episode runs so greedy clients terminate.
type localSequential struct {
	mu      sync.Mutex
	maxLen  int32
	history []int32
}

// NewLocalSequential builds the reference sequential engine with the given
// episode length cap.
func NewLocalSequential(maxLen int32) Sequential {
	if maxLen <= 0 {
		maxLen = 45
	}
	return &localSequential{maxLen: maxLen}
}

func (s *localSequential) Apply(_ context.Context, action int32) (string, float64, int32, error) {
	if action < 0 {
		return "", 0, 0, fmt.Errorf("negative action %d", action)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if int32(len(s.history)) >= s.maxLen {
		// Episode cap reached; start a fresh episode with this action.
		s.history = s.history[:0]
	}
	s.history = append(s.history, action)

	h := fnv.New64a()
	for _, a := range s.history {
		fmt.Fprintf(h, "%d,", a)
	}
	state := fmt.Sprintf("seq:%d:%016x", len(s.history), h.Sum64())
	reward := 1.0 / (1.0 + float64(action%7)) * math.Pow(0.99, float64(len(s.history)))
	return state, reward, s.maxLen, nil
}
