package stagemetrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/thought-machine/stagemetrics/config"
)

// A Reporter delivers stage metrics to the configured endpoint, one request per stage, and records
// failures in the store's error log.
type Reporter struct {
	store  config.Store
	logger logrus.FieldLogger
	tracer trace.Tracer
	client *http.Client
	now    func() time.Time

	// mu guards the client built from settings, which is reused until the settings change.
	mu             sync.Mutex
	cached         *http.Client
	cachedSettings config.Settings
}

// NewReporter creates a Reporter backed by the given store. It honours WithLogger, WithTracer,
// WithHTTPClient and WithClock.
func NewReporter(store config.Store, opts ...Option) *Reporter {
	o := newOptions(opts)
	return &Reporter{
		store:  store,
		logger: o.logger,
		tracer: o.tracer,
		client: o.client,
		now:    o.now,
	}
}

// Report delivers one payload per analysed stage. A failure delivering one stage is recorded and
// does not prevent the remaining stages from being attempted. Without an endpoint URL nothing is
// sent and a single ConfigurationError is recorded. The returned error joins every recorded
// failure.
func (r *Reporter) Report(ctx context.Context, rc RunContext, a *Analysis) error {
	settings := r.store.Settings()
	if strings.TrimSpace(settings.EndpointURL) == "" {
		err := wrapStackErrorf("%w", &ConfigurationError{Err: ErrMissingEndpoint})
		r.Record(rc, err)
		return err
	}
	client := r.clientFor(settings)

	var errs []error
	for _, m := range a.Stages {
		if err := r.deliver(ctx, client, settings, rc, m); err != nil {
			r.Record(rc, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// clientFor returns the client to deliver with. A client supplied through WithHTTPClient always
// wins; otherwise one is built from the settings and kept until they change.
func (r *Reporter) clientFor(s config.Settings) *http.Client {
	if r.client != nil {
		return r.client
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil && r.cachedSettings == s {
		return r.cached
	}
	if r.cached != nil {
		r.cached.CloseIdleConnections()
	}
	r.cached = newHTTPClient(s)
	r.cachedSettings = s
	return r.cached
}

func (r *Reporter) deliver(ctx context.Context, client *http.Client, s config.Settings, rc RunContext, m StageMetric) (err error) {
	ctx, span := r.tracer.Start(ctx, "stagemetrics.Deliver", trace.WithAttributes(
		attribute.String("stagemetrics.stage", m.Name),
		attribute.String("stagemetrics.status", m.Status.String()),
	))
	start := r.now()
	result := "success"
	defer func() {
		if err != nil {
			result = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		deliveriesTotal.WithLabelValues(result).Inc()
		deliveryLatency.WithLabelValues(result).Observe(float64(r.now().Sub(start).Milliseconds()))
		span.End()
	}()

	payloadJSON, err := BuildPayload(rc, m).Encode()
	if err != nil {
		return wrapStackErrorf("%w", &DeliveryError{Stage: m.Name, Err: err})
	}

	res, err := send(ctx, client, s, payloadJSON)
	logger := r.logger.WithFields(logrus.Fields{
		"run":        rc.RunID,
		"job":        rc.JobName,
		"stage":      m.Name,
		"request_id": res.requestID,
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to send stage metrics")
		return wrapStackErrorf("%w", &DeliveryError{Stage: m.Name, Err: err})
	}
	span.SetAttributes(attribute.Int("http.response.status_code", res.statusCode))
	if !isDelivered(res.statusCode) {
		logger.WithField("status_code", res.statusCode).Warn("Metrics endpoint rejected stage metrics")
		return wrapStackErrorf("%w", &DeliveryError{
			Stage:      m.Name,
			StatusCode: res.statusCode,
			Err:        fmt.Errorf("%w %d", ErrUnexpectedStatus, res.statusCode),
		})
	}
	logger.Debug("Sent stage metrics")
	return nil
}

// Record appends a timestamped entry for err to the store's error log.
func (r *Reporter) Record(rc RunContext, err error) {
	runErrorsTotal.WithLabelValues(errorKind(err)).Inc()
	entry := fmt.Sprintf("%s [%s #%s] %v", r.now().UTC().Format(time.RFC3339), rc.JobName, rc.RunID, err)
	logger := r.logger.WithFields(logrus.Fields{
		"run": rc.RunID,
		"job": rc.JobName,
	})
	if stack := stackTrace(err); stack != "" {
		logger.WithField("stack", stack).Debug("Recording error")
	}
	if storeErr := r.store.AppendToLastError(entry); storeErr != nil {
		logger.WithError(storeErr).Errorf("Failed to record error: %v", err)
	}
}
