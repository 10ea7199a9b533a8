package approval

import (
	"time"

	"github.com/viant/fluxgate/metrics"
	"github.com/viant/fluxgate/service/event"
	"go.uber.org/zap"
)

// Option customises a Gate.
type Option func(g *Gate)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(g *Gate) { g.metrics = recorder }
}

// WithPublisher publishes every applied Transition.
func WithPublisher(publisher *event.Publisher[Transition]) Option {
	return func(g *Gate) { g.publisher = publisher }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithIDGenerator overrides decision id generation.
func WithIDGenerator(newID func() string) Option {
	return func(g *Gate) {
		if newID != nil {
			g.newID = newID
		}
	}
}
