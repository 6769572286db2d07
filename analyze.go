package stagemetrics

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// A StageMetric is the externally reported record for one stage.
type StageMetric struct {
	Name            string
	StartTimeMillis int64
	DurationMillis  int64
	Status          Status

	// BuildTool is the build tool resolved at stage scope. Only meaningful if HasBuildTool is set.
	BuildTool    string
	HasBuildTool bool

	// ShellLabels are the labels of shell steps run inside the stage.
	ShellLabels []string
}

// Analysis is the result of analysing one run's execution graph.
type Analysis struct {
	Stages []StageMetric

	// PipelineBuildTool is the build tool set outside every stage. Only meaningful if
	// HasPipelineBuildTool is set.
	PipelineBuildTool    string
	HasPipelineBuildTool bool
}

// An Analyzer derives stage metrics from execution graphs.
type Analyzer struct {
	logger logrus.FieldLogger
	tracer trace.Tracer
}

// NewAnalyzer creates an Analyzer. It honours WithLogger and WithTracer.
func NewAnalyzer(opts ...Option) *Analyzer {
	o := newOptions(opts)
	return &Analyzer{
		logger: o.logger,
		tracer: o.tracer,
	}
}

// Analyze segments the graph into stages, then evaluates the status and resolves the build tool of
// each. Any panic raised while doing so is returned as an error.
func (a *Analyzer) Analyze(ctx context.Context, g *Graph) (res *Analysis, err error) {
	_, span := a.tracer.Start(ctx, "stagemetrics.Analyze")
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, wrapStackErrorf("%w", recoverAsError(r))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if g == nil {
		return nil, wrapStackErrorf("%w", ErrNoGraph)
	}
	span.SetAttributes(attribute.Int("stagemetrics.nodes", g.Len()))

	stages := segment(g, a.logger)
	resolver := NewResolver(g, stages)

	res = &Analysis{}
	res.PipelineBuildTool, res.HasPipelineBuildTool = resolver.Pipeline()
	for _, s := range stages {
		m := StageMetric{
			Name:            s.Name,
			StartTimeMillis: s.StartTimeMillis(),
			DurationMillis:  s.DurationMillis(),
			Status:          Evaluate(g, s),
			ShellLabels:     resolver.ShellLabels(s),
		}
		m.BuildTool, m.HasBuildTool = resolver.Stage(s)
		stagesTotal.WithLabelValues(m.Status.String()).Inc()
		a.logger.WithFields(logrus.Fields{
			"stage":      m.Name,
			"status":     m.Status,
			"duration":   m.DurationMillis,
			"build_tool": m.BuildTool,
		}).Debug("Evaluated stage")
		res.Stages = append(res.Stages, m)
	}
	span.SetAttributes(attribute.Int("stagemetrics.stages", len(res.Stages)))
	return res, nil
}

// Analyze analyses a graph with a default Analyzer.
func Analyze(ctx context.Context, g *Graph) (*Analysis, error) {
	return NewAnalyzer().Analyze(ctx, g)
}
