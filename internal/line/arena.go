// internal/line/arena.go
package line

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/solatis/linekeeper/internal/types"
)

/*
 * Item arena: single source of truth for item ownership and lane links.
 *
 * Items are indexed by ItemID. Each record carries its owner (module name)
 * and the ids of the items directly in front of and behind it in the
 * physical lane. Breaking a link clears both index fields.
 *
 * Every mutation (Place, Remove, Move, Link) runs under one mutex and ends
 * by publishing a new immutable arenaState. Readers load the published state
 * without locking, so any single read sees each item owned by exactly one
 * module or by none, never by two. Move replaces source and target holdings
 * in the same published state; there is no observable instant in between.
 *
 * Admission is decided inside the critical section: Place and Move hand the
 * target's current holdings to an Admission check supplied by the module
 * type, so two concurrent moves into the last free slot (or lane) cannot
 * both succeed.
 */

// Admission reports whether an owner currently holding held may take id.
// A nil Admission admits everything. It runs under the arena lock and must
// not call back into the arena.
type Admission func(held []types.ItemID, id types.ItemID) bool

// Limit admits while fewer than n items are held. n <= 0 means unlimited.
func Limit(n int) Admission {
	return func(held []types.ItemID, _ types.ItemID) bool {
		return n <= 0 || len(held) < n
	}
}

// Item is a platform item as recorded in the arena.
type Item struct {
	ID     types.ItemID
	Owner  string       // owning module, empty when unowned
	Front  types.ItemID // item ahead in the lane, NoItem if none
	Behind types.ItemID // item behind in the lane, NoItem if none
}

type arenaState struct {
	items    map[types.ItemID]Item
	holdings map[string][]types.ItemID
}

func (s *arenaState) clone() *arenaState {
	return &arenaState{
		items:    maps.Clone(s.items),
		holdings: maps.Clone(s.holdings),
	}
}

// Arena tracks every item on the line.
type Arena struct {
	mu    sync.Mutex
	state atomic.Pointer[arenaState]
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	a := &Arena{}
	a.state.Store(&arenaState{
		items:    map[types.ItemID]Item{},
		holdings: map[string][]types.ItemID{},
	})
	return a
}

// Item returns the item record.
func (a *Arena) Item(id types.ItemID) (Item, bool) {
	it, ok := a.state.Load().items[id]
	return it, ok
}

// Owner returns the module owning id, or "" if unowned or unknown.
func (a *Arena) Owner(id types.ItemID) string {
	return a.state.Load().items[id].Owner
}

// Items returns the ids held by owner, in insertion order.
func (a *Arena) Items(owner string) []types.ItemID {
	return slices.Clone(a.state.Load().holdings[owner])
}

// Count returns how many items owner holds.
func (a *Arena) Count(owner string) int {
	return len(a.state.Load().holdings[owner])
}

// Holdings returns a consistent copy of every owner's items.
func (a *Arena) Holdings() map[string][]types.ItemID {
	st := a.state.Load()
	out := make(map[string][]types.ItemID, len(st.holdings))
	for owner, ids := range st.holdings {
		out[owner] = slices.Clone(ids)
	}
	return out
}

// Place gives an unowned item to owner when admit allows it. Unknown ids are
// created.
func (a *Arena) Place(owner string, id types.ItemID, admit Admission) error {
	if id == types.NoItem {
		return fmt.Errorf("%w: item id %d is reserved", types.ErrConfiguration, id)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.state.Load()
	it, ok := cur.items[id]
	if ok && it.Owner != "" {
		return fmt.Errorf("%w: item %d held by %s", types.ErrItemOwned, id, it.Owner)
	}
	if !admits(cur, owner, id, admit) {
		return fmt.Errorf("%w: %s", types.ErrModuleFull, owner)
	}

	next := cur.clone()
	if !ok {
		it = Item{ID: id}
	}
	it.Owner = owner
	next.items[id] = it
	next.holdings[owner] = appendID(cur.holdings[owner], id)
	a.state.Store(next)
	return nil
}

// Remove takes id away from owner and breaks its lane links. The item stays
// known to the arena, unowned.
func (a *Arena) Remove(owner string, id types.ItemID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.state.Load()
	if cur.items[id].Owner != owner || owner == "" {
		return fmt.Errorf("%w: item %d not held by %s", types.ErrItemNotOwned, id, owner)
	}

	next := cur.clone()
	unlink(next, id)
	it := next.items[id]
	it.Owner = ""
	next.items[id] = it
	next.holdings[owner] = removeID(cur.holdings[owner], id)
	a.state.Store(next)
	return nil
}

// Move transfers id from one owner to another in a single step, breaking its
// lane links. admit applies to the target as in Place.
func (a *Arena) Move(from, to string, id types.ItemID, admit Admission) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.state.Load()
	if cur.items[id].Owner != from || from == "" {
		return fmt.Errorf("%w: item %d not held by %s", types.ErrItemNotOwned, id, from)
	}
	if from == to {
		return nil
	}
	if !admits(cur, to, id, admit) {
		return fmt.Errorf("%w: %s", types.ErrModuleFull, to)
	}

	next := cur.clone()
	unlink(next, id)
	it := next.items[id]
	it.Owner = to
	next.items[id] = it
	next.holdings[from] = removeID(cur.holdings[from], id)
	next.holdings[to] = appendID(cur.holdings[to], id)
	a.state.Store(next)
	return nil
}

// Link records that front is directly ahead of behind in a lane. Existing
// links of both items on the touching sides are broken first.
func (a *Arena) Link(front, behind types.ItemID) error {
	if front == behind {
		return fmt.Errorf("%w: item %d cannot follow itself", types.ErrConfiguration, front)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.state.Load()
	f, ok := cur.items[front]
	if !ok {
		return fmt.Errorf("%w: item %d", types.ErrNotFound, front)
	}
	b, ok := cur.items[behind]
	if !ok {
		return fmt.Errorf("%w: item %d", types.ErrNotFound, behind)
	}

	next := cur.clone()
	if f.Behind != types.NoItem {
		clearFront(next, f.Behind)
	}
	if b.Front != types.NoItem {
		clearBehind(next, b.Front)
	}
	f = next.items[front]
	b = next.items[behind]
	f.Behind = behind
	b.Front = front
	next.items[front] = f
	next.items[behind] = b
	a.state.Store(next)
	return nil
}

// Forget drops an unowned item from the arena.
func (a *Arena) Forget(id types.ItemID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.state.Load()
	it, ok := cur.items[id]
	if !ok {
		return nil
	}
	if it.Owner != "" {
		return fmt.Errorf("%w: item %d held by %s", types.ErrItemOwned, id, it.Owner)
	}
	next := cur.clone()
	unlink(next, id)
	delete(next.items, id)
	a.state.Store(next)
	return nil
}

func admits(st *arenaState, owner string, id types.ItemID, admit Admission) bool {
	return admit == nil || admit(st.holdings[owner], id)
}

// unlink clears both sides of every link id takes part in.
func unlink(st *arenaState, id types.ItemID) {
	it := st.items[id]
	if it.Front != types.NoItem {
		clearBehind(st, it.Front)
	}
	if it.Behind != types.NoItem {
		clearFront(st, it.Behind)
	}
	it = st.items[id]
	it.Front, it.Behind = types.NoItem, types.NoItem
	st.items[id] = it
}

func clearFront(st *arenaState, id types.ItemID) {
	if it, ok := st.items[id]; ok {
		if it.Front != types.NoItem {
			if f, ok := st.items[it.Front]; ok && f.Behind == id {
				f.Behind = types.NoItem
				st.items[it.Front] = f
			}
		}
		it.Front = types.NoItem
		st.items[id] = it
	}
}

func clearBehind(st *arenaState, id types.ItemID) {
	if it, ok := st.items[id]; ok {
		if it.Behind != types.NoItem {
			if b, ok := st.items[it.Behind]; ok && b.Front == id {
				b.Front = types.NoItem
				st.items[it.Behind] = b
			}
		}
		it.Behind = types.NoItem
		st.items[id] = it
	}
}

// appendID returns a new slice; published slices are never written.
func appendID(ids []types.ItemID, id types.ItemID) []types.ItemID {
	out := make([]types.ItemID, 0, len(ids)+1)
	out = append(out, ids...)
	return append(out, id)
}

func removeID(ids []types.ItemID, id types.ItemID) []types.ItemID {
	out := make([]types.ItemID, 0, len(ids))
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
