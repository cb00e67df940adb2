package engine

import "sync/atomic"

// Selector picks which healthy venue a new order or subscription should
// route to. Implementations must be safe for concurrent use.
type Selector interface {
	// Select returns the chosen session id from candidates, which is
	// never empty (the engine filters to healthy venues before calling).
	Select(symbol string, candidates []string) string
}

// RoundRobin is the default Selector: it cycles through candidates in the
// order the caller presents them, independent of symbol.
type RoundRobin struct {
	counter atomic.Uint64
}

// Select returns the next candidate in rotation.
func (r *RoundRobin) Select(_ string, candidates []string) string {
	n := r.counter.Add(1)
	idx := int(n-1) % len(candidates)
	return candidates[idx]
}
