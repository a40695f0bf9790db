package logging

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Stacktrace is the field under which WithStacktrace logs where a failure was first wrapped.
const Stacktrace = "stacktrace"

// Implemented by errors created or wrapped with github.com/pkg/errors.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

type causer interface {
	Cause() error
}

// WithStacktrace adds err to logger and, when err or one of its causes carries one, the stack recorded by
// github.com/pkg/errors. Worker and cleanup failures are logged through it so that a failed remote call can be
// traced back to the step that made it.
func WithStacktrace(logger *logrus.Entry, err error) *logrus.Entry {
	logger = logger.WithError(err)
	if stack := ExtractStack(err); stack != nil {
		logger = logger.WithField(Stacktrace, stack)
	}
	return logger
}

// ExtractStack follows the Cause chain of err and returns the outermost stack found, or nil.
func ExtractStack(err error) errors.StackTrace {
	for err != nil {
		if withStack, ok := err.(stackTracer); ok {
			return withStack.StackTrace()
		}
		cause, ok := err.(causer)
		if !ok {
			return nil
		}
		err = cause.Cause()
	}
	return nil
}
