package framework

import (
	"errors"
	"fmt"
	"strings"
)

// ErrForcedExit is returned by Runner.Wait when a second stop signal
// arrives before all tasks stopped.
var ErrForcedExit = errors.New("forced exit")

// TaskError is the failure of a named task.
type TaskError struct {
	Name string
	Err  error
}

// Error implements error.
func (e *TaskError) Error() string {
	return e.Name + ": " + e.Err.Error()
}

// Unwrap returns the task failure.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// AggregatedError holds the failures of several tasks.
type AggregatedError struct {
	Errors []error
}

// Error implements error. A single failure reads as itself.
func (e *AggregatedError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors:", len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("\n  ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap lets errors.Is and errors.As look into every failure.
func (e *AggregatedError) Unwrap() []error {
	return e.Errors
}

// Add appends the non-nil errors.
func (e *AggregatedError) Add(errs ...error) *AggregatedError {
	for _, err := range errs {
		if err != nil {
			e.Errors = append(e.Errors, err)
		}
	}
	return e
}

// Aggregate returns nil when nothing failed, e otherwise.
func (e *AggregatedError) Aggregate() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}
