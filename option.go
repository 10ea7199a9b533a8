package fluxgate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/fluxgate/metrics"
	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/policy"
	"github.com/viant/fluxgate/progress"
	"github.com/viant/fluxgate/service/audit"
	"github.com/viant/fluxgate/service/dao"
	"github.com/viant/fluxgate/service/event"
	"github.com/viant/fluxgate/service/executor"
	"github.com/viant/fluxgate/service/impact"
	"github.com/viant/fluxgate/service/timer"
	"github.com/viant/fluxgate/tracing"
	"go.uber.org/zap"
)

// Option customises the Service.
type Option func(s *Service)

// WithConfig sets the configuration; settings supplied by other options take
// precedence over the config.
func WithConfig(config *Config) Option {
	return func(s *Service) { s.config = config }
}

// WithLogger sets the structured logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAuditSink sets the sink every decision is appended to.
func WithAuditSink(sink audit.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithTimer sets the approval deadline timer service.
func WithTimer(service timer.Service) Option {
	return func(s *Service) { s.timer = service }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = recorder }
}

// WithRegisterer enables metrics registered on registerer.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(s *Service) { s.registerer = registerer }
}

// WithExecutor sets the external engine running step operations. Without an
// executor running steps wait for Complete or Fail.
func WithExecutor(service executor.Service) Option {
	return func(s *Service) { s.executor = service }
}

// WithAnalyzer sets the impact analyzer.
func WithAnalyzer(analyzer *impact.Analyzer) Option {
	return func(s *Service) { s.analyzer = analyzer }
}

// WithPolicy sets the deployment mode policy.
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithRunStore sets the run snapshot store.
func WithRunStore(store dao.Service[string, model.Run]) Option {
	return func(s *Service) { s.store = store }
}

// WithEventService publishes step transitions through service.
func WithEventService(service *event.Service) Option {
	return func(s *Service) { s.events = service }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides run and decision id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithProgressListener is called whenever step counters of a run change.
func WithProgressListener(listener func(progress.Progress)) Option {
	return func(s *Service) { s.onProgress = listener }
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile
// is empty the stdout exporter is used; otherwise traces are written to the
// supplied file path. The first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}
