package errors

import (
	stderrors "errors"
	"fmt"
)

// ClassifiedError is an error tagged with a category, a severity and whether
// trying again later can succeed.
type ClassifiedError struct {
	category  ErrorCategory
	severity  ErrorSeverity
	transient bool
	message   string
	cause     error
	fields    Fields
}

func (e *ClassifiedError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.category, e.message)
	}
	return fmt.Sprintf("%s: %s: %v", e.category, e.message, e.cause)
}

func (e *ClassifiedError) Unwrap() error { return e.cause }

func (e *ClassifiedError) Category() ErrorCategory { return e.category }
func (e *ClassifiedError) Severity() ErrorSeverity { return e.severity }
func (e *ClassifiedError) Message() string         { return e.message }
func (e *ClassifiedError) Fields() Fields          { return e.fields }

// CanRetry reports whether a later attempt may succeed, for example after a
// mirror comes back.
func (e *ClassifiedError) CanRetry() bool { return e.transient }

// IsFatal reports whether the command or process should stop.
func (e *ClassifiedError) IsFatal() bool { return e.severity == SeverityFatal }

// WithField returns a copy carrying an extra field. The receiver is unchanged.
func (e *ClassifiedError) WithField(key string, value any) *ClassifiedError {
	cp := *e
	cp.fields = e.fields.with(key, value)
	return &cp
}

// AsClassified finds the outermost ClassifiedError in err's chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var c *ClassifiedError
	if stderrors.As(err, &c) {
		return c, true
	}
	return nil, false
}

// HasCategory reports whether the outermost ClassifiedError in err's chain has
// category c.
func HasCategory(err error, c ErrorCategory) bool {
	ce, ok := AsClassified(err)
	return ok && ce.category == c
}

// CategoryOf returns err's category, or CategoryInternal for plain errors.
func CategoryOf(err error) ErrorCategory {
	if ce, ok := AsClassified(err); ok {
		return ce.category
	}
	return CategoryInternal
}
