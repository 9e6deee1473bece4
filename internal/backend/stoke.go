package backend

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
)

// localCostSearch is the reference cost-search engine. It proposes rewrite
// actions deterministically from the candidate code and its cost, so equal
// inputs always yield equal proposals.
type localCostSearch struct {
	actionSpace int32
}

// NewLocalCostSearch builds the reference cost-search engine with the given
// rewrite-action space size.
func NewLocalCostSearch(actionSpace int32) CostSearch {
	if actionSpace <= 0 {
		actionSpace = 9
	}
	return &localCostSearch{actionSpace: actionSpace}
}

func (c *localCostSearch) Propose(_ context.Context, code string, cost float64) (int32, error) {
	if code == "" {
		return 0, fmt.Errorf("empty code")
	}
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return 0, fmt.Errorf("cost %v is not finite", cost)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	bucket := uint32(0)
	if cost > 0 {
		bucket = uint32(math.Log2(cost + 1))
	}
	return int32((h.Sum32() ^ bucket) % uint32(c.actionSpace)), nil
}
