package line

import (
	"slices"
	"sync"

	"github.com/solatis/linekeeper/internal/types"
)

// ItemRouter assigns items to output ports. An item has at most one route;
// routing it again overwrites the previous port.
type ItemRouter struct {
	mu     sync.RWMutex
	routes map[types.ItemID]int
}

// NewItemRouter returns an empty router.
func NewItemRouter() *ItemRouter {
	return &ItemRouter{routes: make(map[types.ItemID]int)}
}

// Route assigns item to port.
func (r *ItemRouter) Route(item types.ItemID, port int) {
	r.mu.Lock()
	r.routes[item] = port
	r.mu.Unlock()
}

// Cancel removes the item's route and reports whether one existed.
func (r *ItemRouter) Cancel(item types.ItemID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.routes[item]
	delete(r.routes, item)
	return ok
}

// Port returns the item's port.
func (r *ItemRouter) Port(item types.ItemID) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	port, ok := r.routes[item]
	return port, ok
}

// Ports returns the sorted set of ports with at least one routed item.
func (r *ItemRouter) Ports() []int {
	r.mu.RLock()
	seen := make(map[int]struct{}, len(r.routes))
	for _, p := range r.routes {
		seen[p] = struct{}{}
	}
	r.mu.RUnlock()

	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of routed items.
func (r *ItemRouter) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}
