// Package api provides the transport-free Alarm Management Service contract.
package api

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/solatis/linekeeper/internal/alarms"
	"github.com/solatis/linekeeper/internal/line"
	"github.com/solatis/linekeeper/internal/logging"
)

// ModuleLookup resolves modules by name. *line.Bus implements it.
type ModuleLookup interface {
	Module(name string) (line.PlatformModule, error)
	Modules() []line.PlatformModule
}

// SubscriptionKey identifies what a subscriber listens to. A nil module name,
// an empty module name and a real name are three different keys; nil and
// empty both receive changes of every module.
type SubscriptionKey struct {
	Module string
	Set    bool // false for a nil module name
}

// KeyFor builds the key for an optional module name.
func KeyFor(module *string) SubscriptionKey {
	if module == nil {
		return SubscriptionKey{}
	}
	return SubscriptionKey{Module: *module, Set: true}
}

func (k SubscriptionKey) matches(module string) bool {
	return !k.Set || k.Module == "" || k.Module == module
}

// AlarmNotification tells a subscriber which module's alarms changed.
type AlarmNotification struct {
	Module string
}

// AlarmService implements the alarm management contract over a module bus.
// Alarms are returned as copies ordered newest first.
type AlarmService struct {
	modules ModuleLookup
	logger  *slog.Logger
	unhook  []func()

	mu   sync.Mutex
	subs map[SubscriptionKey]map[string]func(AlarmNotification)
}

// NewAlarmService creates the service and hooks into the alarm manager of
// every module registered on modules at this point.
func NewAlarmService(modules ModuleLookup) *AlarmService {
	s := &AlarmService{
		modules: modules,
		logger:  logging.New("api"),
		subs:    make(map[SubscriptionKey]map[string]func(AlarmNotification)),
	}
	for _, pm := range modules.Modules() {
		name := pm.Name()
		s.unhook = append(s.unhook, pm.Base().Alarms().OnAlarmsChanged(func() { s.notify(name) }))
	}
	return s
}

// Close detaches the service from the alarm managers.
func (s *AlarmService) Close() {
	for _, u := range s.unhook {
		u()
	}
	s.unhook = nil
}

// GetCurrentAlarms returns current alarms of module, or of every module when
// module is empty.
func (s *AlarmService) GetCurrentAlarms(module string) ([]alarms.Alarm, error) {
	managers, err := s.managers("GetCurrentAlarms", module)
	if err != nil {
		return nil, err
	}
	var out []*alarms.Alarm
	for _, am := range managers {
		out = append(out, am.CurrentAlarms()...)
	}
	return newestFirst(out), nil
}

// GetHistoricAlarms returns acknowledged alarms of module, or of every
// module when module is empty.
func (s *AlarmService) GetHistoricAlarms(module string) ([]alarms.Alarm, error) {
	managers, err := s.managers("GetHistoricAlarms", module)
	if err != nil {
		return nil, err
	}
	var out []*alarms.Alarm
	for _, am := range managers {
		out = append(out, am.HistoricAlarms()...)
	}
	return newestFirst(out), nil
}

// AcknowledgeAlarms acknowledges alarms of module, or of every module when
// module is nil or empty.
func (s *AlarmService) AcknowledgeAlarms(module *string) error {
	name := ""
	if module != nil {
		name = *module
	}
	managers, err := s.managers("AcknowledgeAlarms", name)
	if err != nil {
		return err
	}
	for _, am := range managers {
		am.AcknowledgeAlarms()
	}
	return nil
}

// SubscribeForAlarmChanges registers notify under the key for module and
// returns the subscription id.
func (s *AlarmService) SubscribeForAlarmChanges(module *string, notify func(AlarmNotification)) (string, error) {
	key := KeyFor(module)
	if key.Set && key.Module != "" {
		if _, err := s.modules.Module(key.Module); err != nil {
			return "", unknownModule("SubscribeForAlarmChanges", key.Module, err)
		}
	}

	id := uuid.NewString()
	s.mu.Lock()
	if s.subs[key] == nil {
		s.subs[key] = make(map[string]func(AlarmNotification))
	}
	s.subs[key][id] = notify
	s.mu.Unlock()

	s.logger.Debug("alarm subscription added", slog.String("id", id), slog.String("module", key.Module), slog.Bool("named", key.Set))
	return id, nil
}

// UnsubscribeForAlarmChanges removes a subscription. Unknown keys or ids are
// ignored.
func (s *AlarmService) UnsubscribeForAlarmChanges(module *string, id string) {
	key := KeyFor(module)
	s.mu.Lock()
	defer s.mu.Unlock()
	if subs, ok := s.subs[key]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(s.subs, key)
		}
	}
}

// Subscriptions returns how many subscriptions are held under the key.
func (s *AlarmService) Subscriptions(module *string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[KeyFor(module)])
}

func (s *AlarmService) managers(op, module string) ([]*alarms.Manager, error) {
	if module == "" {
		var out []*alarms.Manager
		for _, pm := range s.modules.Modules() {
			out = append(out, pm.Base().Alarms())
		}
		return out, nil
	}
	pm, err := s.modules.Module(module)
	if err != nil {
		return nil, unknownModule(op, module, err)
	}
	return []*alarms.Manager{pm.Base().Alarms()}, nil
}

func (s *AlarmService) notify(module string) {
	s.mu.Lock()
	var targets []func(AlarmNotification)
	for key, subs := range s.subs {
		if !key.matches(module) {
			continue
		}
		for _, fn := range subs {
			targets = append(targets, fn)
		}
	}
	s.mu.Unlock()

	n := AlarmNotification{Module: module}
	for _, fn := range targets {
		fn(n)
	}
}

func newestFirst(list []*alarms.Alarm) []alarms.Alarm {
	out := make([]alarms.Alarm, 0, len(list))
	for _, a := range list {
		out = append(out, *a)
	}
	slices.SortStableFunc(out, func(a, b alarms.Alarm) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out
}
