// internal/line/module.go
package line

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/solatis/linekeeper/internal/alarms"
	"github.com/solatis/linekeeper/internal/events"
	"github.com/solatis/linekeeper/internal/logging"
	"github.com/solatis/linekeeper/internal/rules"
	"github.com/solatis/linekeeper/internal/types"
)

/*
 * Platform module state machine.
 *
 *   NotInitialized --Initialize--> Off
 *   Off/Standby --Start (can-run)--> Run
 *   Run/Standby --Stop--> Off
 *   Off/Run --SetStandby--> Standby
 *   any but Error --Disable--> Disabled --Enable--> Off
 *   any --Fault--> Error --Reset--> Off
 *
 * Start is gated by the can-run predicate: when it returns false the request
 * is dropped and the module keeps its state (no error). Any other transition
 * not in the table fails with ErrInvalidTransition.
 *
 * Item ownership lives in the shared Arena. AddItem, RemoveItem and MoveItem
 * are single arena operations; the module only adds routing cleanup and the
 * CurrentItemCountChanged notification afterwards.
 *
 * Notifications (state and item count) go to the module's rule surface and
 * to the optional events.Publisher, outside any lock.
 */

// Alarm ids raised by modules themselves.
const (
	AlarmFault           = 1
	AlarmNextUnavailable = 2
)

// Config is the static description of a module.
type Config struct {
	Name           string
	Nbr            int // instance number within its type
	TypeID         int
	MaxCapacity    int // 0 means unlimited
	LimitItemCount int // optional lower limit, 0 means none
}

// Observer receives item movement for metrics.
type Observer interface {
	ItemCountChanged(module string, count int)
	ItemMoved(from, to string)
}

// ModuleOption configures a Module.
type ModuleOption func(*Module)

// WithCanRun sets the predicate that gates Start.
func WithCanRun(fn func() bool) ModuleOption {
	return func(m *Module) { m.canRun = fn }
}

// WithEvents publishes module events to p.
func WithEvents(p events.Publisher) ModuleOption {
	return func(m *Module) { m.publisher = p }
}

// WithObserver reports item counts and moves to o.
func WithObserver(o Observer) ModuleOption {
	return func(m *Module) { m.observer = o }
}

// WithAlarmManager replaces the module's own alarm manager.
func WithAlarmManager(am *alarms.Manager) ModuleOption {
	return func(m *Module) { m.alarms = am }
}

// PlatformModule is what the bus stores. *Module satisfies it; Station and
// Conveyor add their own IsFull policy on top.
type PlatformModule interface {
	Name() string
	ModuleNbr() int
	ModuleTypeID() int
	State() types.ModuleState
	CurrentItemCount() int
	IsFull(port int) bool
	Base() *Module
}

// Module is the common platform module implementation.
type Module struct {
	cfg       Config
	arena     *Arena
	router    *ItemRouter
	alarms    *alarms.Manager
	publisher events.Publisher
	observer  Observer
	canRun    func() bool
	logger    *slog.Logger
	surface   *rules.Surface

	// isFull is the port-capacity policy of the concrete module type; admit
	// is the same policy evaluated by the arena when an item arrives.
	isFull func(port int) bool
	admit  Admission

	mu          sync.RWMutex
	state       types.ModuleState
	limit       int
	faultReason string
}

// NewModule creates a module in NotInitialized.
func NewModule(cfg Config, arena *Arena, opts ...ModuleOption) *Module {
	m := &Module{
		cfg:    cfg,
		arena:  arena,
		router: NewItemRouter(),
		canRun: func() bool { return true },
		state:  types.StateNotInitialized,
		limit:  cfg.LimitItemCount,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.alarms == nil {
		m.alarms = alarms.NewManager(alarms.WithName(cfg.Name+".alarms"), alarms.WithPublisher(m.publisher))
		m.alarms.AddPlugin(alarms.NewInMemoryPlugin())
	}
	m.isFull = func(int) bool { return m.atCapacity() }
	m.admit = m.withinCapacity
	m.logger = logging.New("line").With(slog.String("module", cfg.Name))
	m.surface = m.buildSurface()
	return m
}

func (m *Module) buildSurface() *rules.Surface {
	return rules.NewSurface(m.cfg.Name).
		DefineEvent("StateChanged").
		DefineEvent("CurrentItemCountChanged").
		DefineProperty("State", func() any { return m.State() }).
		DefineProperty("IsEnabled", func() any { return m.IsEnabled() }).
		DefineProperty("CurrentItemCount", func() any { return m.CurrentItemCount() }).
		DefineProperty("IsFull", func() any { return m.isFull(0) }).
		DefineProperty("HasErrors", func() any { return m.alarms.HasErrors() }).
		DefineProperty("HasWarnings", func() any { return m.alarms.HasWarnings() }).
		DefineMethod("Start", m.Start).
		DefineMethod("Stop", m.Stop).
		DefineMethod("SetStandby", m.SetStandby).
		DefineMethod("Enable", m.Enable).
		DefineMethod("Disable", m.Disable).
		DefineMethod("Reset", m.Reset).
		DefineMethod("AcknowledgeAlarms", func() error { m.alarms.AcknowledgeAlarms(); return nil })
}

// Base returns m.
func (m *Module) Base() *Module { return m }

// Name returns the unique module name.
func (m *Module) Name() string { return m.cfg.Name }

// ModuleNbr returns the instance number within the module type.
func (m *Module) ModuleNbr() int { return m.cfg.Nbr }

// ModuleTypeID returns the module type id.
func (m *Module) ModuleTypeID() int { return m.cfg.TypeID }

// MaxCapacity returns the configured capacity (0 = unlimited).
func (m *Module) MaxCapacity() int { return m.cfg.MaxCapacity }

// Surface exposes the module to dependency rules.
func (m *Module) Surface() *rules.Surface { return m.surface }

// Alarms returns the module's alarm manager.
func (m *Module) Alarms() *alarms.Manager { return m.alarms }

// Router returns the module's item router.
func (m *Module) Router() *ItemRouter { return m.router }

// State returns the current lifecycle state.
func (m *Module) State() types.ModuleState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsEnabled reports whether the module is not Disabled.
func (m *Module) IsEnabled() bool {
	return m.State() != types.StateDisabled
}

// FaultReason returns the reason of the last Fault while in Error.
func (m *Module) FaultReason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.faultReason
}

// LimitItemCount returns the current item limit (0 = none).
func (m *Module) LimitItemCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limit
}

// SetLimitItemCount changes the item limit. Items already held are kept.
func (m *Module) SetLimitItemCount(n int) {
	m.mu.Lock()
	m.limit = n
	m.mu.Unlock()
}

// Capacity is the effective item limit: the smaller of MaxCapacity and
// LimitItemCount, ignoring zeros. 0 means unlimited.
func (m *Module) Capacity() int {
	limit := m.LimitItemCount()
	c := m.cfg.MaxCapacity
	if limit > 0 && (c == 0 || limit < c) {
		c = limit
	}
	return c
}

func (m *Module) atCapacity() bool {
	c := m.Capacity()
	return c > 0 && m.CurrentItemCount() >= c
}

func (m *Module) withinCapacity(held []types.ItemID, id types.ItemID) bool {
	return Limit(m.Capacity())(held, id)
}

// IsFull reports whether the module can take no more items for port.
func (m *Module) IsFull(port int) bool { return m.isFull(port) }

// CurrentItemCount returns how many items the module owns.
func (m *Module) CurrentItemCount() int { return m.arena.Count(m.cfg.Name) }

// Items returns the ids the module owns.
func (m *Module) Items() []types.ItemID { return m.arena.Items(m.cfg.Name) }

// HasItem reports whether the module owns id.
func (m *Module) HasItem(id types.ItemID) bool { return m.arena.Owner(id) == m.cfg.Name }

// PortRoutings returns the output ports with at least one routed item.
func (m *Module) PortRoutings() []int { return m.router.Ports() }

// ItemRouting returns the port item is routed to.
func (m *Module) ItemRouting(item types.ItemID) (int, bool) { return m.router.Port(item) }

// AddItemRouting routes item to port.
func (m *Module) AddItemRouting(item types.ItemID, port int) {
	m.router.Route(item, port)
}

// RemoveItemRouting cancels the item's route.
func (m *Module) RemoveItemRouting(item types.ItemID) {
	m.router.Cancel(item)
}

// AddItem takes ownership of item. Fails with ErrModuleFull when the module
// type's admission policy refuses it and ErrItemOwned if another module holds it.
// An ErrRuleAction result means the item was placed but a rule on
// CurrentItemCountChanged failed.
func (m *Module) AddItem(item types.ItemID) error {
	if err := m.arena.Place(m.cfg.Name, item, m.admit); err != nil {
		return err
	}
	return m.countChanged()
}

// RemoveItem releases item, breaking its lane links and route.
func (m *Module) RemoveItem(item types.ItemID) error {
	if err := m.arena.Remove(m.cfg.Name, item); err != nil {
		return err
	}
	m.router.Cancel(item)
	return m.countChanged()
}

// ExitItem releases item off the end of the line: it is removed, forgotten
// by the arena and announced as events.ItemExited.
func (m *Module) ExitItem(item types.ItemID) error {
	ruleErr := m.RemoveItem(item)
	if ruleErr != nil && !errors.Is(ruleErr, types.ErrRuleAction) {
		return ruleErr
	}
	if err := m.arena.Forget(item); err != nil {
		return errors.Join(ruleErr, err)
	}
	m.logger.Info("item exited line", slog.Int64("item_id", int64(item)))
	m.publish(events.ItemExited{Module: m.cfg.Name, Item: item})
	return ruleErr
}

// MoveItem hands item to target in one arena step.
func (m *Module) MoveItem(item types.ItemID, target PlatformModule) error {
	dst := target.Base()
	if dst.arena != m.arena {
		return fmt.Errorf("%w: %s and %s are on different lines", types.ErrConfiguration, m.cfg.Name, dst.cfg.Name)
	}
	if err := m.arena.Move(m.cfg.Name, dst.cfg.Name, item, dst.admit); err != nil {
		return err
	}
	m.router.Cancel(item)
	if m.observer != nil {
		m.observer.ItemMoved(m.cfg.Name, dst.cfg.Name)
	}
	return errors.Join(m.countChanged(), dst.countChanged())
}

// Initialize moves NotInitialized to Off.
func (m *Module) Initialize() error {
	return m.transition("initialize", func(s types.ModuleState) (types.ModuleState, bool) {
		return types.StateOff, s == types.StateNotInitialized
	})
}

// Start moves Off or Standby to Run when the can-run predicate holds.
func (m *Module) Start() error {
	from := m.State()
	if from == types.StateRun {
		return nil
	}
	if from != types.StateOff && from != types.StateStandby {
		return fmt.Errorf("%w: %s cannot start from %s", types.ErrInvalidTransition, m.cfg.Name, from)
	}
	if !m.canRun() {
		m.logger.Debug("start rejected by can-run predicate", slog.String("state", from.String()))
		return nil
	}
	return m.transition("start", func(s types.ModuleState) (types.ModuleState, bool) {
		return types.StateRun, s == types.StateOff || s == types.StateStandby
	})
}

// Stop moves Run or Standby to Off. Stopping an Off module is a no-op.
func (m *Module) Stop() error {
	if m.State() == types.StateOff {
		return nil
	}
	return m.transition("stop", func(s types.ModuleState) (types.ModuleState, bool) {
		return types.StateOff, s == types.StateRun || s == types.StateStandby
	})
}

// SetStandby moves Off or Run to Standby.
func (m *Module) SetStandby() error {
	if m.State() == types.StateStandby {
		return nil
	}
	return m.transition("standby", func(s types.ModuleState) (types.ModuleState, bool) {
		return types.StateStandby, s == types.StateOff || s == types.StateRun
	})
}

// Disable moves any state except Error to Disabled.
func (m *Module) Disable() error {
	if m.State() == types.StateDisabled {
		return nil
	}
	return m.transition("disable", func(s types.ModuleState) (types.ModuleState, bool) {
		return types.StateDisabled, s != types.StateError
	})
}

// Enable moves Disabled to Off. Enabling an enabled module is a no-op.
func (m *Module) Enable() error {
	if m.State() != types.StateDisabled {
		return nil
	}
	return m.transition("enable", func(s types.ModuleState) (types.ModuleState, bool) {
		return types.StateOff, s == types.StateDisabled
	})
}

// Fault moves the module to Error and raises an Error alarm with reason.
// Entering Error with items on board publishes events.ItemsFailed.
func (m *Module) Fault(reason string) {
	m.mu.Lock()
	from := m.state
	m.state = types.StateError
	m.faultReason = reason
	m.mu.Unlock()

	m.logger.Error("module faulted", slog.String("reason", reason), slog.String("from", from.String()))
	m.RaiseAlarm(AlarmFault, types.AlarmError, reason)
	if from != types.StateError {
		if err := m.stateChanged(from, types.StateError); err != nil {
			m.logger.Warn("fault rule failed", slog.Any("error", err))
		}
		if items := m.Items(); len(items) > 0 {
			m.publish(events.ItemsFailed{Module: m.cfg.Name, Items: items, Reason: reason})
		}
	}
}

// Reset leaves Error for Off and clears the fault alarm. No-op elsewhere.
func (m *Module) Reset() error {
	m.mu.Lock()
	if m.state != types.StateError {
		m.mu.Unlock()
		return nil
	}
	m.state = types.StateOff
	m.faultReason = ""
	m.mu.Unlock()

	m.alarms.RemoveAlarmBySource(m.cfg.Name, AlarmFault)
	return m.stateChanged(types.StateError, types.StateOff)
}

// RaiseAlarm adds an alarm sourced from this module.
func (m *Module) RaiseAlarm(id int, typ types.AlarmType, message string) {
	m.alarms.AddAlarm(&alarms.Alarm{
		AlarmID:    id,
		Source:     m.cfg.Name,
		SourceType: types.SourceModule,
		Type:       typ,
		Message:    message,
	})
}

// transition applies next when allowed(current) holds. A rule failure on
// StateChanged is returned as ErrRuleAction after the state has moved.
func (m *Module) transition(op string, next func(types.ModuleState) (types.ModuleState, bool)) error {
	m.mu.Lock()
	from := m.state
	to, ok := next(from)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s cannot %s from %s", types.ErrInvalidTransition, m.cfg.Name, op, from)
	}
	m.state = to
	m.mu.Unlock()

	if from == to {
		return nil
	}
	return m.stateChanged(from, to)
}

func (m *Module) stateChanged(from, to types.ModuleState) error {
	m.logger.Info("module state changed", slog.String("from", from.String()), slog.String("to", to.String()))
	var ruleErr error
	if err := m.surface.Raise("StateChanged", to); err != nil {
		ruleErr = fmt.Errorf("%w: StateChanged on %s: %w", types.ErrRuleAction, m.cfg.Name, err)
	}
	m.publish(events.ModuleStateChanged{Module: m.cfg.Name, From: from, To: to})
	return ruleErr
}

func (m *Module) countChanged() error {
	count := m.CurrentItemCount()
	if m.observer != nil {
		m.observer.ItemCountChanged(m.cfg.Name, count)
	}
	var ruleErr error
	if err := m.surface.Raise("CurrentItemCountChanged", count); err != nil {
		ruleErr = fmt.Errorf("%w: CurrentItemCountChanged on %s: %w", types.ErrRuleAction, m.cfg.Name, err)
	}
	m.publish(events.CurrentItemCountChanged{Module: m.cfg.Name, Count: count})
	return ruleErr
}

func (m *Module) publish(event any) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(context.Background(), event); err != nil {
		m.logger.Warn("event handler failed", slog.String("event", events.EventType(event)), slog.Any("error", err))
	}
}
