package stagemetrics

import (
	"strings"

	set "github.com/deckarep/golang-set/v2"
)

const (
	// overrideFunction is the step function name which applies environment overrides to its body.
	overrideFunction = "withEnv"

	overridesArgument = "overrides"

	// BuildToolKey is the override key which carries the build tool tag.
	BuildToolKey = "BUILD_TOOL"

	// UnknownBuildTool is reported when no build tool could be resolved at any scope.
	UnknownBuildTool = "unknown"

	shellFunction      = "sh"
	shellLabelArgument = "label"
)

// overrideEntries returns the KEY=VALUE entries of an override step. Malformed argument values
// yield no entries.
func overrideEntries(n Node) []string {
	if n.FunctionName() != overrideFunction || n.Step.Arguments == nil {
		return nil
	}
	switch v := n.Step.Arguments[overridesArgument].(type) {
	case []string:
		return v
	case []any:
		entries := make([]string, 0, len(v))
		for _, el := range v {
			if s, ok := el.(string); ok {
				entries = append(entries, s)
			}
		}
		return entries
	case string:
		return []string{v}
	default:
		return nil
	}
}

// overrideValue returns the value n assigns to key, if n is an override step which sets it.
func overrideValue(n Node, key string) (string, bool) {
	for _, entry := range overrideEntries(n) {
		k, v, ok := strings.Cut(entry, "=")
		if ok && strings.TrimSpace(k) == key {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// A Resolver finds the override values which apply at pipeline and stage scope. It is a pure
// function of the graph and stages it was built from, so repeated calls return identical results.
type Resolver struct {
	graph  *Graph
	stages []Stage
	key    string

	// staged holds every node owned by at least one stage.
	staged set.Set[NodeID]
}

// NewResolver builds a Resolver for the build tool key.
func NewResolver(g *Graph, stages []Stage) *Resolver {
	return NewKeyResolver(g, stages, BuildToolKey)
}

// NewKeyResolver builds a Resolver for an arbitrary override key.
func NewKeyResolver(g *Graph, stages []Stage, key string) *Resolver {
	r := &Resolver{
		graph:  g,
		stages: stages,
		key:    key,
		staged: set.NewThreadUnsafeSet[NodeID](),
	}
	for _, s := range stages {
		r.staged = r.staged.Union(r.members(s.StageInterval))
	}
	return r
}

// members returns the IDs of every node in the graph which the interval contains.
func (r *Resolver) members(si StageInterval) set.Set[NodeID] {
	ids := set.NewThreadUnsafeSet[NodeID]()
	for _, n := range r.graph.Nodes() {
		if si.Contains(n.ID) {
			ids.Add(n.ID)
		}
	}
	return ids
}

// Pipeline returns the value set by the first override which lies outside every stage.
func (r *Resolver) Pipeline() (string, bool) {
	for _, n := range r.graph.Nodes() {
		if r.staged.Contains(n.ID) {
			continue
		}
		if v, ok := overrideValue(n, r.key); ok {
			return v, true
		}
	}
	return "", false
}

// Stage returns the value which applies to the given stage. Overrides scoped directly to the stage
// are preferred, the one nearest the stage start winning; overrides belonging to a nested stage or
// whose block escapes the stage are skipped. If none match, any override anywhere in the stage's
// interval is accepted, first in sequence order.
func (r *Resolver) Stage(stage Stage) (string, bool) {
	nested := set.NewThreadUnsafeSet[NodeID]()
	for _, other := range r.stages {
		if other.StartID != stage.StartID && stage.ContainsInterval(other.StageInterval) {
			nested.Add(other.StartID)
			nested = nested.Union(r.members(other.StageInterval))
		}
	}

	for _, n := range r.graph.Nodes() {
		if !stage.Contains(n.ID) || nested.Contains(n.ID) {
			continue
		}
		v, ok := overrideValue(n, r.key)
		if !ok {
			continue
		}
		if n.Kind == BlockStartNode {
			if end, closed := findBlockEnd(r.graph, n.ID); closed && !stage.Contains(end.ID) {
				continue
			}
		}
		return v, true
	}

	for _, n := range r.graph.Nodes() {
		if !stage.Contains(n.ID) {
			continue
		}
		if v, ok := overrideValue(n, r.key); ok {
			return v, true
		}
	}
	return "", false
}

// ShellLabels returns the labels given to shell steps inside the stage, in sequence order.
func (r *Resolver) ShellLabels(stage Stage) []string {
	var labels []string
	for _, n := range r.graph.Nodes() {
		if !stage.Contains(n.ID) || n.FunctionName() != shellFunction {
			continue
		}
		if label, ok := n.Step.StringArgument(shellLabelArgument); ok {
			labels = append(labels, label)
		}
	}
	return labels
}
