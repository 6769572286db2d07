// Package stagemetricstest provides utilities for testing code built on the stagemetrics package:
// builders for synthetic execution graphs, a fake metrics endpoint, and comparison helpers.
package stagemetricstest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	sm "github.com/thought-machine/stagemetrics"
)

// Epoch is the base time used by GraphBuilder; node timestamps are given as millisecond offsets
// from it.
var Epoch = time.UnixMilli(1_700_000_000_000)

// A GraphBuilder assembles synthetic execution graphs for tests.
type GraphBuilder struct {
	nodes []sm.Node
	err   error
}

// NewGraphBuilder returns an empty GraphBuilder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{}
}

func at(offsetMillis int64) time.Time {
	return Epoch.Add(time.Duration(offsetMillis) * time.Millisecond)
}

// Node appends an arbitrary node.
func (b *GraphBuilder) Node(n sm.Node) *GraphBuilder {
	b.nodes = append(b.nodes, n)
	return b
}

// Stage appends a stage start node whose step declares the given name.
func (b *GraphBuilder) Stage(id, name string, atMillis int64) *GraphBuilder {
	return b.Node(sm.Node{
		ID:          sm.NodeID(id),
		DisplayName: name,
		Kind:        sm.BlockStartNode,
		StartTime:   at(atMillis),
		Step:        &sm.Step{FunctionName: "stage", Arguments: map[string]any{"name": name}},
	})
}

// StageSentinel appends the bookkeeping node which wraps a stage body.
func (b *GraphBuilder) StageSentinel(id string, atMillis int64) *GraphBuilder {
	return b.Node(sm.Node{
		ID:          sm.NodeID(id),
		DisplayName: "Stage : Start",
		Kind:        sm.BlockStartNode,
		StartTime:   at(atMillis),
		Step:        &sm.Step{FunctionName: "stage"},
	})
}

// End appends a block terminator for the block opened by startID.
func (b *GraphBuilder) End(id, startID string, atMillis int64) *GraphBuilder {
	return b.Node(sm.Node{
		ID:          sm.NodeID(id),
		DisplayName: "End of block " + startID,
		Kind:        sm.BlockEndNode,
		StartID:     sm.NodeID(startID),
		StartTime:   at(atMillis),
	})
}

// Override appends an override step without a body, setting the given KEY=VALUE entries.
func (b *GraphBuilder) Override(id string, entries ...string) *GraphBuilder {
	return b.Node(sm.Node{
		ID:          sm.NodeID(id),
		DisplayName: "withEnv",
		Kind:        sm.AtomNode,
		Step:        &sm.Step{FunctionName: "withEnv", Arguments: map[string]any{"overrides": entries}},
	})
}

// OverrideBlock appends an override step which opens a body; close it with End.
func (b *GraphBuilder) OverrideBlock(id string, entries ...string) *GraphBuilder {
	return b.Node(sm.Node{
		ID:          sm.NodeID(id),
		DisplayName: "withEnv",
		Kind:        sm.BlockStartNode,
		Step:        &sm.Step{FunctionName: "withEnv", Arguments: map[string]any{"overrides": entries}},
	})
}

// Shell appends a shell step with the given label.
func (b *GraphBuilder) Shell(id, label string) *GraphBuilder {
	return b.Node(sm.Node{
		ID:          sm.NodeID(id),
		DisplayName: "Shell Script",
		Kind:        sm.AtomNode,
		Step:        &sm.Step{FunctionName: "sh", Arguments: map[string]any{"label": label}},
	})
}

// Atom appends a plain step with no arguments.
func (b *GraphBuilder) Atom(id, name string) *GraphBuilder {
	return b.Node(sm.Node{
		ID:          sm.NodeID(id),
		DisplayName: name,
		Kind:        sm.AtomNode,
	})
}

// Failed marks the most recently appended node with an error annotation.
func (b *GraphBuilder) Failed(message string) *GraphBuilder {
	if len(b.nodes) == 0 {
		b.err = errors.New("Failed called on an empty GraphBuilder")
		return b
	}
	b.nodes[len(b.nodes)-1].Error = &sm.NodeError{Message: message}
	return b
}

// Nodes returns the nodes appended so far.
func (b *GraphBuilder) Nodes() []sm.Node {
	return b.nodes
}

// Build creates the Graph.
func (b *GraphBuilder) Build() (*sm.Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	return sm.NewGraph(b.nodes...)
}

// MustBuild creates the Graph, failing the test on error.
func (b *GraphBuilder) MustBuild(t *testing.T) *sm.Graph {
	t.Helper()
	return Must[*sm.Graph](t)(b.Build())
}

// DiffMetrics asserts that got matches want, producing a diff if not. Nil and empty label slices
// are treated as equal.
func DiffMetrics(t *testing.T, want, got []sm.StageMetric, opts ...cmp.Option) {
	t.Helper()

	opts = append(opts, cmpopts.EquateEmpty())
	if diff := cmp.Diff(want, got, opts...); diff != "" {
		t.Errorf("difference in stage metrics (-want, +got):\n%s", diff)
	}
}

// IgnoreTiming is a cmp.Option which ignores the timing fields of StageMetrics.
var IgnoreTiming = cmpopts.IgnoreFields(sm.StageMetric{}, "StartTimeMillis", "DurationMillis")

// Test defines the expected analysis of a single graph.
type Test struct {
	// Description is passed to testing.T.Run when this test is part of a suite.
	Description string

	// Graph is the builder for the graph to be analysed.
	Graph *GraphBuilder

	// WantError is the expected error from Analyze. Compared using errors.Is.
	WantError error

	// WantStages is the expected per-stage output.
	WantStages []sm.StageMetric

	// WantPipelineBuildTool is the expected pipeline-scope build tool; empty means none.
	WantPipelineBuildTool string

	// IgnoreTiming skips comparison of StartTimeMillis and DurationMillis.
	IgnoreTiming bool
}

// Run the test.
func (test Test) Run(t *testing.T) {
	if test.Graph == nil {
		t.Fatal("Invalid Test: no Graph set")
	}
	g := test.Graph.MustBuild(t)

	res, err := sm.Analyze(context.Background(), g)
	if !errors.Is(err, test.WantError) {
		t.Fatalf("Difference in error from Analyze(): got %v; want %v", err, test.WantError)
	}
	if err != nil {
		return
	}

	var opts []cmp.Option
	if test.IgnoreTiming {
		opts = append(opts, IgnoreTiming)
	}
	DiffMetrics(t, test.WantStages, res.Stages, opts...)

	gotTool := ""
	if res.HasPipelineBuildTool {
		gotTool = res.PipelineBuildTool
	}
	if gotTool != test.WantPipelineBuildTool {
		t.Errorf("difference in pipeline build tool: got %q; want %q", gotTool, test.WantPipelineBuildTool)
	}
}

// Suite defines a collection of analysis tests, as a convenience over defining your own
// table-driven tests. Each Test in the Suite is run as a subtest using testing.T.Run.
type Suite struct {
	Tests []Test
}

// Run all tests in the Suite.
func (s Suite) Run(t *testing.T) {
	for _, test := range s.Tests {
		t.Run(test.Description, test.Run)
	}
}

// Must produces a function which wraps around another function returning a value and error, calls
// t.Fatal if the error is non-nil, and otherwise returns the value:
//
//	g := stagemetricstest.Must[*stagemetrics.Graph](t)(stagemetrics.NewGraph(nodes...))
func Must[T any](t *testing.T) func(val T, err error) T {
	return func(val T, err error) T {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return val
	}
}

// Metric is a convenience constructor for an expected StageMetric.
func Metric(name string, status sm.Status, startMillis, durationMillis int64) sm.StageMetric {
	return sm.StageMetric{
		Name:            name,
		StartTimeMillis: at(startMillis).UnixMilli(),
		DurationMillis:  durationMillis,
		Status:          status,
	}
}

// WithBuildTool returns a copy of m with the stage build tool set.
func WithBuildTool(m sm.StageMetric, tool string) sm.StageMetric {
	m.BuildTool = tool
	m.HasBuildTool = true
	return m
}

// WithShellLabels returns a copy of m with the given shell labels.
func WithShellLabels(m sm.StageMetric, labels ...string) sm.StageMetric {
	m.ShellLabels = labels
	return m
}

