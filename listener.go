package stagemetrics

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/thought-machine/stagemetrics/config"
)

// JobURLVariable is the environment variable holding the job's URL.
const JobURLVariable = "JOB_URL"

// An Environment looks up the variables of a completed run.
type Environment interface {
	Get(key string) (string, bool)
}

// EnvMap is an Environment backed by a map.
type EnvMap map[string]string

// Get is Environment.Get.
func (e EnvMap) Get(key string) (string, bool) {
	v, ok := e[key]
	return v, ok
}

// A Run describes a completed pipeline run.
type Run struct {
	ID string
	// JobName is the fully-qualified name of the run's parent job.
	JobName string
	Env     Environment
	Graph   *Graph
}

func (r Run) lookup(key string) (string, bool) {
	if r.Env == nil {
		return "", false
	}
	v, ok := r.Env.Get(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// A Listener turns completed runs into delivered stage metrics. It never returns errors to its
// caller: every failure is recorded in the store's error log instead.
type Listener struct {
	store       config.Store
	analyzer    *Analyzer
	reporter    *Reporter
	logger      logrus.FieldLogger
	tracer      trace.Tracer
	concurrency int
}

// NewListener creates a Listener. All options are passed through to its Analyzer and Reporter.
func NewListener(store config.Store, opts ...Option) *Listener {
	o := newOptions(opts)
	return &Listener{
		store:       store,
		analyzer:    NewAnalyzer(opts...),
		reporter:    NewReporter(store, opts...),
		logger:      o.logger,
		tracer:      o.tracer,
		concurrency: o.concurrency,
	}
}

// OnCompleted analyses a completed run and delivers its stage metrics. The error log is cleared
// first, so afterwards it holds only this run's failures.
func (l *Listener) OnCompleted(ctx context.Context, run Run) {
	l.clearLastError()
	l.process(ctx, run)
}

func (l *Listener) clearLastError() {
	if err := l.store.ClearLastError(); err != nil {
		l.logger.WithError(err).Warn("Failed to clear error log")
	}
}

// process analyses and delivers one run without touching the rest of the error log.
func (l *Listener) process(ctx context.Context, run Run) {
	ctx, span := l.tracer.Start(ctx, "stagemetrics.OnCompleted", trace.WithAttributes(
		attribute.String("stagemetrics.run", run.ID),
		attribute.String("stagemetrics.job", run.JobName),
	))
	defer span.End()

	rc := RunContext{RunID: run.ID, JobName: run.JobName}
	logger := l.logger.WithFields(logrus.Fields{"run": run.ID, "job": run.JobName})
	analysed := false
	defer func() {
		if r := recover(); r != nil {
			if analysed {
				l.reporter.Record(rc, &DeliveryError{Err: recoverAsError(r)})
				return
			}
			l.reporter.Record(rc, &GraphAnalysisError{RunID: run.ID, Err: recoverAsError(r)})
		}
	}()

	settings := l.store.Settings()
	if strings.TrimSpace(settings.EndpointURL) == "" {
		l.reporter.Record(rc, wrapStackErrorf("%w", &ConfigurationError{Err: ErrMissingEndpoint}))
		logger.Warn("No endpoint URL configured; not sending stage metrics")
		return
	}
	warnings, err := settings.Validate()
	for _, w := range warnings {
		logger.Warn(w)
	}
	if err != nil {
		logger.WithError(err).Warn("Settings are incomplete; delivery may be rejected")
	}

	analysis, err := l.analyzer.Analyze(ctx, run.Graph)
	if err != nil {
		l.reporter.Record(rc, &GraphAnalysisError{RunID: run.ID, Err: err})
		logger.WithError(err).Error("Failed to analyse execution graph")
		return
	}
	analysed = true

	rc = l.runContext(run, settings, analysis)
	if err := l.reporter.Report(ctx, rc, analysis); err != nil {
		logger.WithError(err).Warn("Some stage metrics could not be sent")
		return
	}
	logger.WithField("stages", len(analysis.Stages)).Info("Sent stage metrics")
}

// runContext gathers the facts shared by every stage of the run. The pipeline build tool comes
// from a pipeline-scope override, falling back to the run's BUILD_TOOL variable.
func (l *Listener) runContext(run Run, s config.Settings, a *Analysis) RunContext {
	rc := RunContext{
		RunID:          run.ID,
		JobName:        run.JobName,
		ControllerName: s.ControllerName,
	}
	rc.JobURL, rc.HasJobURL = run.lookup(JobURLVariable)
	if a.HasPipelineBuildTool {
		rc.BuildTool = a.PipelineBuildTool
	} else {
		rc.BuildTool, _ = run.lookup(BuildToolKey)
	}
	return rc
}

// OnCompletedAll processes several completed runs concurrently. The error log is cleared once for
// the whole batch, so afterwards it holds the failures of every run in it. Each run is still
// analysed and delivered sequentially.
func (l *Listener) OnCompletedAll(ctx context.Context, runs ...Run) {
	l.clearLastError()
	var g errgroup.Group
	g.SetLimit(l.concurrency)
	for _, run := range runs {
		run := run
		g.Go(func() error {
			l.process(ctx, run)
			return nil
		})
	}
	_ = g.Wait()
}
