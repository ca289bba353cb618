package types

import "errors"

// Sentinel errors for linekeeper operations.
var (
	// ErrConfiguration indicates a trigger, condition or action could not bind
	// to its named target or member. Always raised at construction time.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotFound indicates a lookup by name or id found nothing.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguousInstance indicates zero or several modules matched a type+instance lookup.
	ErrAmbiguousInstance = errors.New("ambiguous module instance")

	// ErrDuplicateModule indicates a module name is already registered on the bus.
	ErrDuplicateModule = errors.New("module already registered")

	// ErrModuleFull indicates the module has reached its item capacity.
	ErrModuleFull = errors.New("module is full")

	// ErrModuleUnavailable indicates the next module cannot accept an item
	// (not running or full).
	ErrModuleUnavailable = errors.New("module unavailable")

	// ErrItemOwned indicates the item already belongs to a module.
	ErrItemOwned = errors.New("item already owned by a module")

	// ErrItemNotOwned indicates the item is not owned by the module it was removed from.
	ErrItemNotOwned = errors.New("item not owned by module")

	// ErrInvalidTransition indicates a module state change that the state machine forbids.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNilAlarm indicates a nil alarm was passed where identity is required.
	ErrNilAlarm = errors.New("alarm is nil")

	// ErrRuleAction indicates a rule action failed while handling an event
	// raised by an operation. The operation itself took effect.
	ErrRuleAction = errors.New("rule action failed")

	// ErrDisposed indicates use of a trigger or rule after Close.
	ErrDisposed = errors.New("disposed")
)
