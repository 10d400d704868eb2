package logging

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const Stacktrace = "stacktrace"

// Part of the stable interface of pkg/errors, though unexported.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// WithStacktrace adds err to the entry together with the stack trace recorded where err was created, if there is one.
func WithStacktrace(entry *logrus.Entry, err error) *logrus.Entry {
	entry = entry.WithError(err)
	if stack := ExtractStack(err); stack != nil {
		entry = entry.WithField(Stacktrace, stack)
	}
	return entry
}

// ExtractStack returns the stack trace of the innermost error in the chain of err that carries one, following both
// pkg/errors causes and fmt.Errorf wrapping. It returns nil if no error in the chain has a stack trace.
func ExtractStack(err error) errors.StackTrace {
	var stack errors.StackTrace
	for err != nil {
		if s, ok := err.(stackTracer); ok {
			stack = s.StackTrace()
		}
		err = unwrap(err)
	}
	return stack
}

func unwrap(err error) error {
	if c, ok := err.(interface{ Cause() error }); ok {
		return c.Cause()
	}
	return errors.Unwrap(err)
}
