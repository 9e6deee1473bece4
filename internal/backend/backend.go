// Package backend defines the contracts the schedule service drives native
// compiler-search engines through, plus local reference engines used when no
// native toolchain is attached. The service never reaches into an engine's
// internals; everything goes through these interfaces.
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/jqzhao7/SUPERSONIC/internal/codec"
)

// Scheduler is the scheduling-family engine: a search over (stage,
// directive, parameter) combinations. Implementations are not assumed to be
// reentrant; the owning session serializes calls.
type Scheduler interface {
	// Apply executes one scheduling decision and returns the ids of the
	// parameter-table rows actually applied. A rejected decision returns an
	// error and an empty id list; the engine state is unchanged.
	Apply(ctx context.Context, d codec.Decision) ([]int32, error)
	// Reset discards all applied decisions.
	Reset()
	Close() error
}

// Sequential is the sequential-action engine: one action in, an opaque
// serialized state, a reward, and the episode length cap out.
type Sequential interface {
	Apply(ctx context.Context, action int32) (state string, reward float64, maxLen int32, err error)
}

// CostSearch is the code-rewrite engine: given a candidate code string and
// its measured cost, it proposes the next rewrite action.
type CostSearch interface {
	Propose(ctx context.Context, code string, cost float64) (int32, error)
}

// InitParams carries the client-supplied init arguments to a factory.
type InitParams struct {
	InputImage        string
	MaxStageDirective int32
}

// Factory allocates a scheduling engine and reports the search-space bounds
// it settled on for this program.
type Factory func(ctx context.Context, p InitParams) (Scheduler, codec.Bounds, error)

// Registry maps algorithm ids to scheduling-engine factories and holds the
// process-wide sequential and cost-search engines. Those two families have
// no per-session lifecycle in the protocol, so a single engine serves all
// callers.
type Registry struct {
	mu        sync.RWMutex
	factories map[int32]Factory
	tvm       Sequential
	stoke     CostSearch
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[int32]Factory)}
}

func (r *Registry) Register(algorithmID int32, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[algorithmID] = f
}

func (r *Registry) SetSequential(s Sequential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tvm = s
}

func (r *Registry) SetCostSearch(c CostSearch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stoke = c
}

func (r *Registry) Factory(algorithmID int32) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[algorithmID]
	if !ok {
		return nil, fmt.Errorf("unknown algorithm_id %d", algorithmID)
	}
	return f, nil
}

func (r *Registry) Sequential() (Sequential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.tvm == nil {
		return nil, fmt.Errorf("no sequential engine registered")
	}
	return r.tvm, nil
}

func (r *Registry) CostSearch() (CostSearch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stoke == nil {
		return nil, fmt.Errorf("no cost-search engine registered")
	}
	return r.stoke, nil
}
