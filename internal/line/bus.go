// internal/line/bus.go
package line

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/solatis/linekeeper/internal/logging"
	"github.com/solatis/linekeeper/internal/rules"
	"github.com/solatis/linekeeper/internal/types"
)

/*
 * Module bus: module registry, connection graph and rule target resolver.
 *
 * Modules are keyed by unique name and kept in registration order. The graph
 * holds directed module-to-module edges; the edges leaving a module are
 * indexed by output port (edge i serves port i, unknown ports use edge 0).
 *
 * Lookup contract:
 *   - Module(name): ErrNotFound when absent
 *   - ModuleByType[T](bus, nbr): exactly one module of capability T with that
 *     instance number, otherwise ErrAmbiguousInstance
 *   - NextModuleName: never fails, falls back to types.UnknownNextModule
 *
 * The bus is also the rules.Resolver for a line: module surfaces by module
 * name, alarm surfaces by "<module>.alarms", plus any surface added with
 * AddSurface (the job manager, the line alarm manager).
 */

// Bus is the module registry of one line.
type Bus struct {
	arena  *Arena
	logger *slog.Logger

	mu       sync.RWMutex
	modules  map[string]PlatformModule
	order    []string
	edges    map[string][]string
	surfaces map[string]*rules.Surface
}

// NewBus creates an empty bus with its own item arena.
func NewBus() *Bus {
	return &Bus{
		arena:    NewArena(),
		logger:   logging.New("line"),
		modules:  make(map[string]PlatformModule),
		edges:    make(map[string][]string),
		surfaces: make(map[string]*rules.Surface),
	}
}

// Arena returns the item arena shared by the bus's modules.
func (b *Bus) Arena() *Arena { return b.arena }

// Register adds a module. Fails with ErrDuplicateModule on a name clash.
func (b *Bus) Register(pm PlatformModule) error {
	name := pm.Name()
	if name == "" {
		return fmt.Errorf("%w: module name is empty", types.ErrConfiguration)
	}
	if pm.Base().arena != b.arena {
		return fmt.Errorf("%w: module %s was built on another arena", types.ErrConfiguration, name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.modules[name]; ok {
		return fmt.Errorf("%w: %s", types.ErrDuplicateModule, name)
	}
	if _, ok := b.surfaces[name]; ok {
		return fmt.Errorf("%w: %s clashes with a surface name", types.ErrDuplicateModule, name)
	}
	b.modules[name] = pm
	b.order = append(b.order, name)
	return nil
}

// Module returns the named module.
func (b *Bus) Module(name string) (PlatformModule, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pm, ok := b.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: module %s", types.ErrNotFound, name)
	}
	return pm, nil
}

// Modules returns every module in registration order.
func (b *Bus) Modules() []PlatformModule {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]PlatformModule, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.modules[name])
	}
	return out
}

// ModuleByType returns the single module that implements T and has instance
// number nbr.
func ModuleByType[T any](b *Bus, nbr int) (T, error) {
	var zero T
	var found []T
	for _, pm := range b.Modules() {
		t, ok := pm.(T)
		if ok && pm.ModuleNbr() == nbr {
			found = append(found, t)
		}
	}
	if len(found) != 1 {
		typ := reflect.TypeOf((*T)(nil)).Elem()
		return zero, fmt.Errorf("%w: %d modules of type %s with instance %d", types.ErrAmbiguousInstance, len(found), typ, nbr)
	}
	return found[0], nil
}

// Connect adds an edge from one module to another. The edge index is the
// output port it serves.
func (b *Bus) Connect(from, to string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.modules[from]; !ok {
		return fmt.Errorf("%w: module %s", types.ErrNotFound, from)
	}
	if _, ok := b.modules[to]; !ok {
		return fmt.Errorf("%w: module %s", types.ErrNotFound, to)
	}
	b.edges[from] = append(b.edges[from], to)
	return nil
}

// NextModules returns the modules connected downstream of name, by port.
func (b *Bus) NextModules(name string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.edges[name]...)
}

// NextModuleName returns the module after name on port 0, or
// types.UnknownNextModule when the graph cannot answer.
func (b *Bus) NextModuleName(name string) string {
	return b.nextModuleNameForPort(name, 0)
}

func (b *Bus) nextModuleNameForPort(name string, port int) string {
	next, err := b.nextModule(name, port)
	if err != nil {
		b.logger.Debug("next module lookup failed", slog.String("module", name), slog.Any("error", err))
		return types.UnknownNextModule
	}
	return next.Name()
}

func (b *Bus) nextModule(name string, port int) (PlatformModule, error) {
	edges := b.NextModules(name)
	if len(edges) == 0 {
		return nil, fmt.Errorf("%w: no module after %s", types.ErrNotFound, name)
	}
	if port < 0 || port >= len(edges) {
		port = 0
	}
	return b.Module(edges[port])
}

// MoveItemToNext moves item from the named module to the module connected
// on the item's routed port. A module without downstream connections is the
// end of the line: the item exits (Module.ExitItem). When the next module is
// not running or is full, a Warning alarm "stopped because <next> is
// unavailable" is raised on the source module and ErrModuleUnavailable
// returned. A completed move clears that alarm, even when a count rule then
// fails with ErrRuleAction.
func (b *Bus) MoveItemToNext(name string, item types.ItemID) error {
	src, err := b.Module(name)
	if err != nil {
		return err
	}
	base := src.Base()
	if len(b.NextModules(name)) == 0 {
		return base.ExitItem(item)
	}

	port, _ := base.ItemRouting(item)
	next, err := b.nextModule(name, port)
	if err != nil || !accepting(next, port) {
		nextName := b.nextModuleNameForPort(name, port)
		base.RaiseAlarm(AlarmNextUnavailable, types.AlarmWarning,
			fmt.Sprintf("%s stopped because %s is unavailable", name, nextName))
		return fmt.Errorf("%w: %s", types.ErrModuleUnavailable, nextName)
	}

	ruleErr := base.MoveItem(item, next)
	if ruleErr != nil && !errors.Is(ruleErr, types.ErrRuleAction) {
		return ruleErr
	}
	base.Alarms().RemoveAlarmBySource(name, AlarmNextUnavailable)
	return ruleErr
}

func accepting(pm PlatformModule, port int) bool {
	s := pm.State()
	if s != types.StateRun && s != types.StateStandby {
		return false
	}
	return !pm.IsFull(port)
}

// AddSurface registers an extra rule target, such as the job manager.
func (b *Bus) AddSurface(s *rules.Surface) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.modules[s.Name()]; ok {
		return fmt.Errorf("%w: surface %s clashes with a module", types.ErrDuplicateModule, s.Name())
	}
	if _, ok := b.surfaces[s.Name()]; ok {
		return fmt.Errorf("%w: surface %s", types.ErrDuplicateModule, s.Name())
	}
	b.surfaces[s.Name()] = s
	return nil
}

// Surface implements rules.Resolver.
func (b *Bus) Surface(name string) (*rules.Surface, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s, ok := b.surfaces[name]; ok {
		return s, nil
	}
	if pm, ok := b.modules[name]; ok {
		return pm.Base().Surface(), nil
	}
	for _, pm := range b.modules {
		if am := pm.Base().Alarms(); am.Name() == name {
			return am.Surface(), nil
		}
	}
	return nil, fmt.Errorf("%w: unknown target %q", types.ErrConfiguration, name)
}
