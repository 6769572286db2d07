package stagemetrics

// Status is the terminal status of a stage.
type Status string

const (
	// StatusSuccess means the stage closed and nothing inside it recorded an error.
	StatusSuccess Status = "SUCCESS"

	// StatusFailure means the stage closed but its end node, or some node inside it, recorded an
	// error.
	StatusFailure Status = "FAILURE"

	// StatusAborted means the stage never closed, typically because the run was terminated.
	StatusAborted Status = "ABORTED"
)

func (s Status) String() string {
	return string(s)
}

// Evaluate determines the terminal status of a stage. An unclosed stage is always ABORTED, whatever
// errors it contains. Otherwise the whole interval is scanned, so an error on any member (including
// nested block terminators) fails the stage regardless of where it occurs.
func Evaluate(g *Graph, stage Stage) Status {
	if !stage.HasEnd {
		return StatusAborted
	}
	if stage.End.Error != nil {
		return StatusFailure
	}
	for _, n := range g.Nodes() {
		if stage.Contains(n.ID) && n.Error != nil {
			return StatusFailure
		}
	}
	return StatusSuccess
}
