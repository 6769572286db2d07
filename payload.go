package stagemetrics

import (
	"bytes"
	"encoding/json"
	"strings"
)

// A Payload is the flat key/value record delivered for one stage.
type Payload map[string]any

// Overlay returns a new payload holding every field of base, overlaid by every field of top. Where
// both define a field, top wins.
func Overlay(base, top Payload) Payload {
	res := make(Payload, len(base)+len(top))
	for k, v := range base {
		res[k] = v
	}
	for k, v := range top {
		res[k] = v
	}
	return res
}

// Encode serializes the payload as JSON. Keys are emitted in sorted order and HTML characters are
// left unescaped.
func (p Payload) Encode() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any(p)); err != nil {
		return "", wrapStackErrorf("cannot encode payload: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// RunContext holds the facts shared by every stage of one run.
type RunContext struct {
	RunID   string
	JobName string

	// JobURL is only meaningful if HasJobURL is set.
	JobURL    string
	HasJobURL bool

	// BuildTool is the pipeline-scope build tool; empty means unknown.
	BuildTool string

	// ControllerName identifies the reporting controller; omitted from payloads when empty.
	ControllerName string
}

// buildTool returns the pipeline build tool, or UnknownBuildTool.
func (rc RunContext) buildTool() string {
	if rc.BuildTool == "" {
		return UnknownBuildTool
	}
	return rc.BuildTool
}

// Fields returns the run-scoped payload fields.
func (rc RunContext) Fields() Payload {
	p := Payload{}
	FieldRunID.Set(p, rc.RunID)
	FieldJobName.Set(p, rc.JobName)
	if rc.HasJobURL && rc.JobURL != "" {
		FieldJobURL.Set(p, rc.JobURL)
	} else {
		FieldJobURL.Set(p, "unknown")
	}
	FieldBuildTool.Set(p, rc.buildTool())
	if rc.ControllerName != "" {
		FieldControllerName.Set(p, rc.ControllerName)
	}
	return p
}

// Fields returns the stage-scoped payload fields. stageBuildTool is only included when a real
// build tool was resolved, preferring the stage's own over the run's.
func (m StageMetric) Fields(rc RunContext) Payload {
	p := Payload{}
	FieldStageName.Set(p, m.Name)
	FieldStartTimeMillis.Set(p, m.StartTimeMillis)
	FieldDurationMillis.Set(p, m.DurationMillis)
	FieldStatus.Set(p, m.Status.String())
	if tool := m.effectiveBuildTool(rc); tool != UnknownBuildTool {
		FieldStageBuildTool.Set(p, tool)
	}
	if len(m.ShellLabels) > 0 {
		FieldShellLabels.Set(p, m.ShellLabels)
	}
	return p
}

func (m StageMetric) effectiveBuildTool(rc RunContext) string {
	if m.HasBuildTool && m.BuildTool != "" {
		return m.BuildTool
	}
	return rc.buildTool()
}

// BuildPayload assembles the payload for one stage: run fields first, stage fields taking
// precedence on collision.
func BuildPayload(rc RunContext, m StageMetric) Payload {
	return Overlay(rc.Fields(), m.Fields(rc))
}
