package stagemetrics

import (
	"github.com/sirupsen/logrus"
)

const (
	// stageFunction is the step function name which opens a stage.
	stageFunction = "stage"

	// stageSentinel is the display name of the bookkeeping node which wraps a stage body. It never
	// opens a reported stage.
	stageSentinel = "Stage : Start"

	stageNameArgument = "name"
)

// A StageInterval is the half-open range of node IDs owned by one stage. Members are every node
// strictly after StartID and, if the stage was closed, strictly before EndID.
type StageInterval struct {
	Name    string
	StartID NodeID
	EndID   NodeID
	// HasEnd is false for a stage which never closed; such a stage owns every later node.
	HasEnd bool
}

// Contains reports whether the node with the given ID belongs to the stage.
func (si StageInterval) Contains(id NodeID) bool {
	if !si.StartID.Less(id) {
		return false
	}
	return !si.HasEnd || id.Less(si.EndID)
}

// ContainsInterval reports whether other lies entirely within si.
func (si StageInterval) ContainsInterval(other StageInterval) bool {
	if !si.Contains(other.StartID) {
		return false
	}
	if !si.HasEnd {
		return true
	}
	return other.HasEnd && si.Contains(other.EndID)
}

// A Stage is a StageInterval together with the nodes which delimit it.
type Stage struct {
	StageInterval

	Start Node
	// End is only meaningful if HasEnd is set.
	End Node
}

// StartTimeMillis is the start node's timestamp in milliseconds since the epoch.
func (s Stage) StartTimeMillis() int64 {
	return s.Start.StartMillis()
}

// DurationMillis is the time between the start and end nodes, or 0 for a stage which never closed
// or which lacks timing on either end.
func (s Stage) DurationMillis() int64 {
	if !s.HasEnd || !s.Start.HasTiming() || !s.End.HasTiming() {
		return 0
	}
	return s.End.StartMillis() - s.Start.StartMillis()
}

// isStageStart reports whether n opens a reported stage.
func isStageStart(n Node) bool {
	return n.FunctionName() == stageFunction && n.DisplayName != stageSentinel
}

// stageName is the declared stage name, falling back to the node's display name.
func stageName(n Node) string {
	if name, ok := n.Step.StringArgument(stageNameArgument); ok {
		return name
	}
	return n.DisplayName
}

// Segment splits a graph into its stages, in the order their start nodes occur.
func Segment(g *Graph) []Stage {
	return segment(g, log)
}

func segment(g *Graph, logger logrus.FieldLogger) []Stage {
	var stages []Stage
	for _, n := range g.Nodes() {
		if !isStageStart(n) {
			continue
		}
		stage := Stage{
			StageInterval: StageInterval{
				Name:    stageName(n),
				StartID: n.ID,
			},
			Start: n,
		}
		if end, ok := findBlockEnd(g, n.ID); ok {
			stage.EndID = end.ID
			stage.HasEnd = true
			stage.End = end
		}
		logger.WithFields(logrus.Fields{
			"stage":   stage.Name,
			"start":   stage.StartID,
			"end":     stage.EndID,
			"has_end": stage.HasEnd,
		}).Debug("Segmented stage")
		stages = append(stages, stage)
	}
	return stages
}

// findBlockEnd returns the first block terminator recorded against start. Terminators which do
// not sort after the start node cannot close it and are skipped.
func findBlockEnd(g *Graph, start NodeID) (Node, bool) {
	for _, n := range g.Nodes() {
		if n.IsBlockEnd() && n.StartID == start && start.Less(n.ID) {
			return n, true
		}
	}
	return Node{}, false
}
