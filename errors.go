package stagemetrics

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingEndpoint is wrapped by the ConfigurationError recorded when no endpoint URL is set.
	ErrMissingEndpoint = errors.New("no endpoint URL configured")

	// ErrUnexpectedStatus is wrapped by a DeliveryError when the endpoint answers with anything
	// other than 200 or 201.
	ErrUnexpectedStatus = errors.New("unexpected HTTP response code")

	// ErrNoGraph is wrapped by the GraphAnalysisError recorded for a run without an execution graph.
	ErrNoGraph = errors.New("run has no execution graph")
)

// ConfigurationError is a run-scoped failure caused by missing or unusable settings. It aborts
// every delivery for the run.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// GraphAnalysisError is a run-scoped failure raised while segmenting, resolving or evaluating the
// execution graph. It aborts the remaining analysis for the run.
type GraphAnalysisError struct {
	RunID string
	Err   error
}

func (e *GraphAnalysisError) Error() string {
	return fmt.Sprintf("analysis of run %q failed: %v", e.RunID, e.Err)
}

func (e *GraphAnalysisError) Unwrap() error {
	return e.Err
}

// DeliveryError is a stage-scoped failure to deliver one payload. It never aborts sibling stages.
type DeliveryError struct {
	Stage string
	// StatusCode is the response code, or 0 if no response was received.
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to send metrics for stage %q (HTTP %d): %v", e.Stage, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("failed to send metrics for stage %q: %v", e.Stage, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// errorKind labels an error for metrics.
func errorKind(err error) string {
	var (
		ce *ConfigurationError
		ge *GraphAnalysisError
		de *DeliveryError
	)
	switch {
	case errors.As(err, &ce):
		return "configuration"
	case errors.As(err, &ge):
		return "analysis"
	case errors.As(err, &de):
		return "delivery"
	default:
		return "unknown"
	}
}
