package stagemetrics

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrEmptyNodeID is returned from NewGraph when a node has no ID.
	ErrEmptyNodeID = errors.New("empty node id")

	// ErrDuplicateNode is returned from NewGraph when two nodes share an ID.
	ErrDuplicateNode = errors.New("duplicate node")
)

// NodeKind distinguishes plain steps from the two ends of a nested block.
type NodeKind int

const (
	// AtomNode is a step with no body.
	AtomNode NodeKind = iota

	// BlockStartNode opens a nested block (a stage body, an override scope, and so on).
	BlockStartNode

	// BlockEndNode closes the block opened by the node recorded in its StartID.
	BlockEndNode
)

func (k NodeKind) String() string {
	return map[NodeKind]string{
		AtomNode:       "ATOM",
		BlockStartNode: "BLOCK_START",
		BlockEndNode:   "BLOCK_END",
	}[k]
}

// A Step describes the pipeline step which produced a node: the step's function name plus the
// arguments it was invoked with.
type Step struct {
	FunctionName string
	Arguments    map[string]any
}

// StringArgument returns the named argument if it is present and holds a non-empty string.
func (s *Step) StringArgument(name string) (string, bool) {
	if s == nil || s.Arguments == nil {
		return "", false
	}
	v, ok := s.Arguments[name].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// NodeError is the error annotation recorded against a failed node.
type NodeError struct {
	Message string
}

func (e *NodeError) Error() string {
	return e.Message
}

// A Node is one recorded event in a run's execution graph.
type Node struct {
	ID          NodeID
	DisplayName string
	Kind        NodeKind

	// StartID is the node which opened this block. Only meaningful for BlockEndNode.
	StartID NodeID

	// StartTime is when the node began executing. The zero value means no timing was recorded.
	StartTime time.Time

	Error *NodeError
	Step  *Step
}

// HasTiming reports whether a start time was recorded for the node.
func (n Node) HasTiming() bool {
	return !n.StartTime.IsZero()
}

// StartMillis returns the start time in milliseconds since the epoch, or 0 without timing.
func (n Node) StartMillis() int64 {
	if !n.HasTiming() {
		return 0
	}
	return n.StartTime.UnixMilli()
}

// IsBlockEnd reports whether the node terminates a block.
func (n Node) IsBlockEnd() bool {
	return n.Kind == BlockEndNode
}

// FunctionName returns the step's function name, or "" for nodes without a step.
func (n Node) FunctionName() string {
	if n.Step == nil {
		return ""
	}
	return n.Step.FunctionName
}

func (n Node) String() string {
	return fmt.Sprintf("%s(%s %q)", n.Kind, n.ID, n.DisplayName)
}

// A Graph is an owned, read-only snapshot of a run's execution graph, ordered chronologically by
// node ID. The analyzer never retains references into the host's own graph structures.
type Graph struct {
	nodes []Node
	index map[NodeID]int
}

// NewGraph copies the given nodes into a new Graph. Argument maps are copied so that later
// mutation by the caller cannot leak into an analysis.
func NewGraph(nodes ...Node) (*Graph, error) {
	g := &Graph{
		nodes: make([]Node, 0, len(nodes)),
		index: make(map[NodeID]int, len(nodes)),
	}
	seen := make(map[NodeID]struct{}, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return nil, wrapStackErrorf("%w (display name %q)", ErrEmptyNodeID, n.DisplayName)
		}
		if _, ok := seen[n.ID]; ok {
			return nil, wrapStackErrorf("%w: %q", ErrDuplicateNode, n.ID)
		}
		seen[n.ID] = struct{}{}
		g.nodes = append(g.nodes, copyNode(n))
	}
	sort.SliceStable(g.nodes, func(i, j int) bool {
		return g.nodes[i].ID.Less(g.nodes[j].ID)
	})
	for i, n := range g.nodes {
		g.index[n.ID] = i
	}
	return g, nil
}

func copyNode(n Node) Node {
	if n.Error != nil {
		e := *n.Error
		n.Error = &e
	}
	if n.Step != nil {
		s := Step{FunctionName: n.Step.FunctionName}
		if n.Step.Arguments != nil {
			s.Arguments = make(map[string]any, len(n.Step.Arguments))
			for k, v := range n.Step.Arguments {
				s.Arguments[k] = v
			}
		}
		n.Step = &s
	}
	return n
}

// Nodes returns the nodes in chronological order. The returned slice must not be modified.
func (g *Graph) Nodes() []Node {
	return g.nodes
}

// Node returns the node with the given ID.
func (g *Graph) Node(id NodeID) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}
