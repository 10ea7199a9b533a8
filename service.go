package fluxgate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/afs"
	"github.com/viant/fluxgate/internal/clock"
	"github.com/viant/fluxgate/internal/idgen"
	"github.com/viant/fluxgate/metrics"
	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/policy"
	"github.com/viant/fluxgate/progress"
	"github.com/viant/fluxgate/service/approval"
	"github.com/viant/fluxgate/service/audit"
	afssink "github.com/viant/fluxgate/service/audit/fs"
	amemory "github.com/viant/fluxgate/service/audit/memory"
	aredis "github.com/viant/fluxgate/service/audit/redis"
	asql "github.com/viant/fluxgate/service/audit/sql"
	"github.com/viant/fluxgate/service/dao"
	runfs "github.com/viant/fluxgate/service/dao/run/fs"
	runmemory "github.com/viant/fluxgate/service/dao/run/memory"
	"github.com/viant/fluxgate/service/event"
	"github.com/viant/fluxgate/service/executor"
	"github.com/viant/fluxgate/service/impact"
	"github.com/viant/fluxgate/service/messaging"
	mfs "github.com/viant/fluxgate/service/messaging/fs"
	mmemory "github.com/viant/fluxgate/service/messaging/memory"
	"github.com/viant/fluxgate/service/processor"
	"github.com/viant/fluxgate/service/timer"
	tmemory "github.com/viant/fluxgate/service/timer/memory"
	"go.uber.org/zap"
)

// Service wires the gate, analyzer, audit sink, timer and run store into a
// Runtime.
type Service struct {
	runtime    *Runtime
	config     *Config
	logger     *zap.Logger
	sink       audit.Sink
	timer      timer.Service
	metrics    *metrics.Recorder
	registerer prometheus.Registerer
	executor   executor.Service
	analyzer   *impact.Analyzer
	policy     *policy.Policy
	store      dao.Service[string, model.Run]
	events     *event.Service
	ownEvents  bool
	now        func() time.Time
	newID      func() string
	onProgress func(progress.Progress)

	cancel  context.CancelFunc
	closers []func() error
}

// New creates a service. Components not supplied as options are built from
// the config (DefaultConfig when none is given).
func New(options ...Option) (*Service, error) {
	ret := &Service{}
	for _, option := range options {
		option(ret)
	}
	if err := ret.init(); err != nil {
		_ = ret.closeResources()
		return nil, err
	}
	return ret, nil
}

// NewFromConfig is a shorthand for New(WithConfig(config), options...).
func NewFromConfig(config *Config, options ...Option) (*Service, error) {
	return New(append([]Option{WithConfig(config)}, options...)...)
}

func (s *Service) init() error {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = clock.Now
	}
	if s.newID == nil {
		s.newID = idgen.New
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if s.metrics == nil && (s.config.Metrics.Enabled || s.registerer != nil) {
		s.metrics = metrics.New(&metrics.Config{Namespace: s.config.Metrics.Namespace, Registry: s.registerer})
	}
	if s.policy == nil {
		p, err := policy.FromConfig(s.config.Policy)
		if err != nil {
			return err
		}
		s.policy = p
	}
	if s.analyzer == nil {
		escalations, err := impact.NewEscalations(s.config.Impact.Escalations...)
		if err != nil {
			return err
		}
		s.analyzer = impact.New(
			impact.WithProductionEnvironments(s.config.Impact.ProductionEnvironments...),
			impact.WithEscalations(escalations))
	}
	if err := s.ensureSink(ctx); err != nil {
		return err
	}
	if s.store == nil {
		if s.config.Runtime.StoreURL != "" {
			store, err := runfs.New(ctx, afs.New(), s.config.Runtime.StoreURL)
			if err != nil {
				return err
			}
			s.store = store
		} else {
			s.store = runmemory.New()
		}
	}
	if s.timer == nil {
		s.timer = tmemory.New(tmemory.WithClock(s.now))
	}
	if s.events == nil && s.config.Events.Enabled {
		events, err := s.newEventService()
		if err != nil {
			return err
		}
		s.events = events
		s.ownEvents = true
	}
	gateOptions := []approval.Option{
		approval.WithLogger(s.logger),
		approval.WithMetrics(s.metrics),
		approval.WithClock(s.now),
		approval.WithIDGenerator(s.newID),
	}
	if s.events != nil {
		publisher, err := event.PublisherOf[approval.Transition](s.events)
		if err != nil {
			return err
		}
		gateOptions = append(gateOptions, approval.WithPublisher(publisher))
	}
	window, _ := s.config.ApprovalWindow()
	s.runtime = &Runtime{
		gate:        approval.New(s.sink, gateOptions...),
		analyzer:    s.analyzer,
		policy:      s.policy,
		sink:        s.sink,
		timer:       s.timer,
		store:       s.store,
		logger:      s.logger,
		window:      window,
		autoAdvance: s.config.Runtime.AutoAdvance,
		onProgress:  s.onProgress,
		now:         s.now,
		newID:       s.newID,
		runs:        map[string]*runState{},
		ctx:         ctx,
		cancel:      cancel,
	}
	if s.executor == nil {
		return nil
	}
	config, err := s.config.Runtime.Executor.ProcessorConfig()
	if err != nil {
		return err
	}
	pool, err := processor.New(s.executor, s.runtime, processor.WithConfig(config), processor.WithLogger(s.logger))
	if err != nil {
		return err
	}
	s.runtime.processor = pool
	return pool.Start(ctx)
}

// ensureSink opens the configured audit sink and, when forwarding is
// configured, wraps it in an outbox drained by a background forwarder.
func (s *Service) ensureSink(ctx context.Context) error {
	if s.sink == nil {
		sink, err := s.openSink(ctx, &s.config.Audit.SinkConfig)
		if err != nil {
			return err
		}
		s.sink = sink
	}
	if s.config.Audit.Forward == nil {
		return nil
	}
	downstream, err := s.openSink(ctx, s.config.Audit.Forward)
	if err != nil {
		return err
	}
	queue := mmemory.NewQueue[model.Decision](mmemory.DefaultConfig())
	s.sink = audit.NewOutbox(s.sink, queue, s.logger)
	forwarder := audit.NewForwarder(queue, downstream, s.logger)
	go func() {
		if err := forwarder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("audit forwarder stopped", zap.Error(err))
		}
	}()
	return nil
}

func (s *Service) openSink(ctx context.Context, config *SinkConfig) (audit.Sink, error) {
	switch strings.ToLower(config.Driver) {
	case "", DriverMemory:
		return amemory.New(), nil
	case DriverFs:
		return afssink.New(afs.New(), config.URL), nil
	case DriverRedis:
		sink, err := aredis.Open(config.URL, config.Prefix)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, sink.Close)
		return sink, nil
	}
	dialect, err := asql.ParseDialect(config.Driver)
	if err != nil {
		return nil, fmt.Errorf("audit sink: %w", err)
	}
	sink, err := asql.Open(ctx, dialect, config.DSN)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, sink.Close)
	return sink, nil
}

func (s *Service) newEventService() (*event.Service, error) {
	vendor := messaging.Vendor(s.config.Events.Vendor)
	options := []event.Option{event.WithLogger(s.logger)}
	if vendor == messaging.VendorFs {
		baseURL := s.config.Events.BaseURL
		options = append(options, event.WithNewFsQueueConfig(func(name string) mfs.Config {
			return mfs.Config{BasePath: strings.TrimRight(baseURL, "/") + "/" + name, MaxRetries: 3, RetryDelay: time.Second}
		}))
	}
	return event.New(vendor, options...)
}

// Runtime returns the runtime.
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Events returns the event service publishing step transitions, or nil.
func (s *Service) Events() *event.Service {
	return s.events
}

// OnTransition delivers applied step transitions to handler, replacing any
// previous handler. Topics such as approval.TopicOf(model.StepWaitingApproval)
// restrict delivery; none delivers everything. Events must be enabled.
func (s *Service) OnTransition(handler func(*approval.Transition), topics ...string) error {
	if s.events == nil {
		return fmt.Errorf("events are disabled")
	}
	return event.SetListenerOf[approval.Transition](s.events, func(e *event.Event[approval.Transition]) {
		handler(&e.Data)
	}, topics...)
}

// Sink returns the audit sink decisions are appended to.
func (s *Service) Sink() audit.Sink {
	return s.sink
}

// Close shuts the runtime down and releases sinks and listeners.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	if s.runtime != nil {
		if err := s.runtime.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) closeResources() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.ownEvents && s.events != nil {
		s.events.Close()
	}
	var errs []error
	for _, closer := range s.closers {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
