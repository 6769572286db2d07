package stagemetrics

import (
	"errors"
)

var (
	// ErrFieldAbsent is returned from Field[T].Get() when the payload has no value for the field.
	ErrFieldAbsent = errors.New("is absent")

	// ErrWrongType is returned from Field[T].Get() when the payload holds a value for the field's
	// name which is not of type T.
	ErrWrongType = errors.New("wrong type")
)

// A Field is a typed key into a Payload.
type Field[T any] struct {
	name string
}

// NewField creates a new Field. This should typically be called at the top level of a package as a
// var.
func NewField[T any](name string) Field[T] {
	return Field[T]{name: name}
}

// Name returns the key under which the field is serialized.
func (f Field[T]) Name() string {
	return f.name
}

// Set stores val in the payload, replacing any previous value.
func (f Field[T]) Set(p Payload, val T) {
	p[f.name] = val
}

// Get retrieves the field's value from the payload.
func (f Field[T]) Get(p Payload) (T, error) {
	var empty T
	raw, ok := p[f.name]
	if !ok {
		return empty, wrapStackErrorf("cannot get field %q: %w", f.name, ErrFieldAbsent)
	}
	typed, ok := raw.(T)
	if !ok {
		return empty, wrapStackErrorf("cannot get field %q: %w (got %T, want %T)", f.name, ErrWrongType, raw, empty)
	}
	return typed, nil
}

// Run-scoped fields.
var (
	FieldRunID          = NewField[string]("runId")
	FieldJobName        = NewField[string]("jobName")
	FieldJobURL         = NewField[string]("jobUrl")
	FieldBuildTool      = NewField[string]("buildTool")
	FieldControllerName = NewField[string]("controllerName")
)

// Stage-scoped fields.
var (
	FieldStageName       = NewField[string]("name")
	FieldStartTimeMillis = NewField[int64]("startTimeMillis")
	FieldDurationMillis  = NewField[int64]("durationMillis")
	FieldStatus          = NewField[string]("status")
	FieldStageBuildTool  = NewField[string]("stageBuildTool")
	FieldShellLabels     = NewField[[]string]("shLabels")
)
