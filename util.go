package stagemetrics

import (
	"errors"
	"fmt"
	"runtime"

	stackerrors "github.com/go-errors/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger replaces the package logger used by components which were not given one explicitly.
func SetLogger(l *logrus.Logger) {
	log = l
}

// Must wraps around a function returning a value and error, calls log.Fatal if the error is
// non-nil, and otherwise returns the value. This is intended to be used for constructing fixed
// graphs at the top level of a package or in examples:
//
//	var (
//	  myGraph = stagemetrics.Must(stagemetrics.NewGraph(nodes...))
//	)
func Must[T any](val T, err error) T {
	if err != nil {
		// Override the file in the log entry to where Must was called
		if _, file, line, ok := runtime.Caller(1); ok {
			log.WithField("file", fmt.Sprintf("%s:%d", file, line)).Fatal(err)
		}
		log.Fatal(err)
	}
	return val
}

func wrapStackErrorf(msg string, args ...any) error {
	se := new(stackerrors.Error)
	foundStackError := false
	for _, arg := range args {
		if err, ok := arg.(error); ok {
			if errors.As(err, &se) {
				foundStackError = true
				break
			}
		}
	}

	err := fmt.Errorf(msg, args...)
	if foundStackError {
		return err
	}
	return stackerrors.Wrap(err, 1)
}

// stackTrace returns the stack captured by wrapStackErrorf, if any.
func stackTrace(err error) string {
	se := new(stackerrors.Error)
	if errors.As(err, &se) {
		return string(se.Stack())
	}
	return ""
}

// recoverAsError converts a recovered panic value into an error carrying the panicking stack.
func recoverAsError(r any) error {
	if err, ok := r.(error); ok {
		return stackerrors.Wrap(fmt.Errorf("recovered from panic: %w", err), 2)
	}
	return stackerrors.Wrap(fmt.Errorf("recovered from panic: %v", r), 2)
}
