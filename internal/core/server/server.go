// Package server assembles a line from configuration and manages its lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solatis/linekeeper/internal/core/api"
	"github.com/solatis/linekeeper/internal/core/config"
	"github.com/solatis/linekeeper/internal/events"
	"github.com/solatis/linekeeper/internal/jobs"
	"github.com/solatis/linekeeper/internal/line"
	"github.com/solatis/linekeeper/internal/logging"
	"github.com/solatis/linekeeper/internal/metrics"
	"github.com/solatis/linekeeper/internal/rules"
	"github.com/solatis/linekeeper/internal/types"
)

/*
 * Line server wiring.
 *
 * Construction order:
 *   1. metrics collectors and the process event bus
 *   2. modules (initialized to Off) and connections on a line.Bus
 *   3. job manager; its surface joins the rule resolver as "jobs"
 *   4. dependency rules compiled from rules.file, all-or-nothing
 *   5. alarm service over the module bus
 *
 * Job admission: a TryStartJob event places a fresh item on the infeed (the
 * first configured module) and matches it to the job. A stopped or full
 * infeed leaves the job unstarted; the job manager retries later.
 *
 * Item flow back to jobs: ItemExited (an item leaving a module with no
 * downstream connection) fulfills its job item; ItemsFailed (a module
 * faulting with items on board) fails theirs.
 */

// LineServer owns one running line.
type LineServer struct {
	cfg     *config.LineConfig
	logger  *slog.Logger
	events  *events.Bus
	line    *line.Bus
	infeed  line.PlatformModule
	jobs    *jobs.Manager
	rules   *rules.Manager
	metrics *metrics.Collectors
	alarms  *api.AlarmService

	nextItem atomic.Int64
	unhook   []func()
	http     *http.Server
	listener net.Listener
	ready    chan struct{}
}

// NewLineServer builds the line described by cfg.
func NewLineServer(cfg *config.LineConfig) (*LineServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if len(cfg.Modules) == 0 {
		return nil, fmt.Errorf("%w: line %q has no modules", types.ErrConfiguration, cfg.Name)
	}

	s := &LineServer{
		cfg:     cfg,
		logger:  logging.New("server"),
		events:  events.NewBus(),
		line:    line.NewBus(),
		metrics: metrics.New(),
		ready:   make(chan struct{}),
	}

	for _, mc := range cfg.Modules {
		pm, err := s.buildModule(mc)
		if err != nil {
			return nil, err
		}
		if err := pm.Base().Initialize(); err != nil {
			return nil, err
		}
		if err := s.line.Register(pm); err != nil {
			return nil, err
		}
		s.unhook = append(s.unhook, s.metrics.WatchAlarms(pm.Base().Alarms()))
		if s.infeed == nil {
			s.infeed = pm
		}
	}
	for _, c := range cfg.Connections {
		if err := s.line.Connect(c.From, c.To); err != nil {
			return nil, err
		}
	}

	s.jobs = jobs.NewManager(
		jobs.WithEvents(s.events),
		jobs.WithRetryDelay(cfg.Jobs.RetryDelay),
		jobs.WithObserver(s.metrics),
	)
	if err := s.line.AddSurface(s.jobs.Surface()); err != nil {
		return nil, err
	}
	s.unhook = append(s.unhook,
		events.Subscribe(s.events, s.admitJob),
		events.Subscribe(s.events, s.itemExited),
		events.Subscribe(s.events, s.itemsFailed),
	)

	s.rules = rules.NewManager(rules.WithFireObserver(s.metrics))
	if cfg.Rules.File != "" {
		defs, err := rules.LoadDefinitions(cfg.Rules.File)
		if err != nil {
			return nil, err
		}
		compiled, err := rules.CompileAll(defs, s.line, rules.CompileOptions{PollInterval: cfg.Rules.PollInterval})
		if err != nil {
			return nil, err
		}
		for _, r := range compiled {
			s.rules.Add(r)
		}
		s.logger.Info("dependency rules loaded", slog.Int("count", len(compiled)), slog.String("file", cfg.Rules.File))
	}

	s.alarms = api.NewAlarmService(s.line)
	return s, nil
}

func (s *LineServer) buildModule(mc config.ModuleConfig) (line.PlatformModule, error) {
	lc := line.Config{
		Name:           mc.Name,
		Nbr:            mc.Nbr,
		TypeID:         mc.TypeID,
		MaxCapacity:    mc.MaxCapacity,
		LimitItemCount: mc.LimitItemCount,
	}
	opts := []line.ModuleOption{line.WithEvents(s.events), line.WithObserver(s.metrics)}

	switch mc.Type {
	case config.ModuleTypeStation, "":
		return line.NewStation(lc, s.line.Arena(), opts...), nil
	case config.ModuleTypeConveyor:
		return line.NewConveyor(lc, mc.LaneCapacity, s.line.Arena(), opts...), nil
	default:
		return nil, fmt.Errorf("%w: module %q has unknown type %q", types.ErrConfiguration, mc.Name, mc.Type)
	}
}

// admitJob handles TryStartJob by putting a new item on the infeed.
func (s *LineServer) admitJob(_ context.Context, ev events.TryStartJob) error {
	st := s.infeed.State()
	if st != types.StateRun && st != types.StateStandby {
		s.logger.Debug("infeed not accepting", slog.String("job_id", string(ev.JobID)), slog.String("state", st.String()))
		return nil
	}
	if s.infeed.IsFull(0) {
		s.logger.Debug("infeed full", slog.String("job_id", string(ev.JobID)))
		return nil
	}

	item := types.ItemID(s.nextItem.Add(1))
	base := s.infeed.Base()
	ruleErr := base.AddItem(item)
	switch {
	case errors.Is(ruleErr, types.ErrModuleFull):
		return nil
	case ruleErr != nil && !errors.Is(ruleErr, types.ErrRuleAction):
		return ruleErr
	}
	if err := s.jobs.MatchItem(ev.JobID, item); err != nil {
		_ = base.RemoveItem(item)
		_ = s.line.Arena().Forget(item)
		return errors.Join(ruleErr, err)
	}
	s.logger.Info("job started", slog.String("job_id", string(ev.JobID)), slog.Int64("item_id", int64(item)))
	return ruleErr
}

func (s *LineServer) itemExited(_ context.Context, ev events.ItemExited) error {
	s.jobs.FulfillJobItem(ev.Item)
	return nil
}

func (s *LineServer) itemsFailed(_ context.Context, ev events.ItemsFailed) error {
	for _, item := range ev.Items {
		s.jobs.FailJobItem(item)
	}
	return nil
}

// Line returns the module bus.
func (s *LineServer) Line() *line.Bus { return s.line }

// Jobs returns the job manager.
func (s *LineServer) Jobs() *jobs.Manager { return s.jobs }

// Rules returns the dependency rule registry.
func (s *LineServer) Rules() *rules.Manager { return s.rules }

// Alarms returns the alarm management service.
func (s *LineServer) Alarms() *api.AlarmService { return s.alarms }

// Metrics returns the prometheus collectors.
func (s *LineServer) Metrics() *metrics.Collectors { return s.metrics }

// Events returns the process event bus.
func (s *LineServer) Events() *events.Bus { return s.events }

// Start starts every module and serves metrics until ctx is cancelled.
func (s *LineServer) Start(ctx context.Context) error {
	for _, pm := range s.line.Modules() {
		if err := pm.Base().Start(); err != nil {
			return fmt.Errorf("failed to start %s: %w", pm.Name(), err)
		}
	}
	s.logger.Info("line started", slog.String("line", s.cfg.Name), slog.Int("modules", len(s.line.Modules())))

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.Metrics.Addr != "" {
		listener, err := net.Listen("tcp", s.cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("failed to bind %s: %w", s.cfg.Metrics.Addr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		})
		s.listener = listener
		s.http = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		s.logger.Info("metrics listening", slog.String("addr", listener.Addr().String()))
	}
	close(s.ready)

	g.Go(func() error {
		<-gctx.Done()
		if s.http != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.http.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}

// Ready closes once Start has started the modules and bound the metrics
// listener.
func (s *LineServer) Ready() <-chan struct{} { return s.ready }

// MetricsAddr returns the bound metrics address, or "" when not listening.
// Valid after Ready.
func (s *LineServer) MetricsAddr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops modules, rules and jobs.
func (s *LineServer) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.rules.Close(); err != nil {
		errs = append(errs, err)
	}
	s.jobs.Close()
	s.alarms.Close()
	for _, u := range s.unhook {
		u()
	}
	s.unhook = nil

	for _, pm := range s.line.Modules() {
		if err := pm.Base().Stop(); err != nil && !errors.Is(err, types.ErrInvalidTransition) {
			errs = append(errs, err)
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, fmt.Errorf("shutdown cancelled by context: %w", err))
	}
	s.logger.Info("line stopped", slog.String("line", s.cfg.Name))
	return errors.Join(errs...)
}
