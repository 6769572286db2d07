package stagemetrics

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/thought-machine/stagemetrics"

type options struct {
	logger      logrus.FieldLogger
	tracer      trace.Tracer
	client      *http.Client
	now         func() time.Time
	concurrency int
}

// An Option configures an Analyzer, Reporter or Listener. Options which do not apply to the
// component being built are ignored.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		logger:      log,
		tracer:      noop.NewTracerProvider().Tracer(tracerName),
		now:         time.Now,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for diagnostic output. Defaults to the package logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTracer sets the tracer used to record analysis and delivery spans. Defaults to a no-op
// tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithHTTPClient sets the client used for delivery, overriding the one built from the settings
// (including its TLS trust decision).
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithClock sets the clock used to timestamp error log entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithConcurrency bounds how many runs Listener.OnCompletedAll processes at once.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}
