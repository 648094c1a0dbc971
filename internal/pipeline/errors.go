package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies pipeline failures for the retry policy and the caller
// surface.
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeSourceFetch ErrorType = "source_fetch"
	ErrorTypeRender      ErrorType = "render"
	ErrorTypePipeline    ErrorType = "pipeline"
	ErrorTypeCancelled   ErrorType = "cancelled"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeState       ErrorType = "invalid_state"
)

// PipelineError is a stage-tagged pipeline failure.
type PipelineError struct {
	Type      ErrorType `json:"type"`
	Stage     string    `json:"stage,omitempty"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Retryable bool      `json:"retryable"`
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e == nil {
		return "unknown pipeline error"
	}
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Stage, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewStageError creates a retryable stage failure.
func NewStageError(stage string, cause error) *PipelineError {
	msg := "stage execution failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &PipelineError{
		Type:      ErrorTypePipeline,
		Stage:     stage,
		Message:   msg,
		Cause:     cause,
		Retryable: true,
	}
}

// NewRenderError creates a document-stage rendering failure. Unlike chart
// rendering, this one fails the job (subject to the retry policy).
func NewRenderError(stage string, cause error) *PipelineError {
	msg := "rendering failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &PipelineError{
		Type:      ErrorTypeRender,
		Stage:     stage,
		Message:   msg,
		Cause:     cause,
		Retryable: true,
	}
}

// NewCancelledError marks a deliberate stop at a stage boundary.
func NewCancelledError(stage string) *PipelineError {
	return &PipelineError{
		Type:      ErrorTypeCancelled,
		Stage:     stage,
		Message:   "job was cancelled",
		Retryable: false,
	}
}

// IsCancelled reports whether err is a cancellation, not a failure.
func IsCancelled(err error) bool {
	var pErr *PipelineError
	if errors.As(err, &pErr) {
		return pErr.Type == ErrorTypeCancelled
	}
	return false
}

// IsRetryable reports whether the retry policy applies to err.
func IsRetryable(err error) bool {
	var pErr *PipelineError
	if errors.As(err, &pErr) {
		return pErr.Retryable
	}
	return false
}

// ValidationError rejects a submission before queueing. It carries the full
// list of violated rules so the caller can surface every problem at once.
type ValidationError struct {
	Violations []string `json:"violations"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

// Add appends a violated rule.
func (e *ValidationError) Add(format string, args ...interface{}) {
	e.Violations = append(e.Violations, fmt.Sprintf(format, args...))
}

// HasViolations reports whether any rule was violated.
func (e *ValidationError) HasViolations() bool {
	return len(e.Violations) > 0
}

// Sentinel errors for job control operations.
var (
	// ErrJobNotFound is returned when a job ID is unknown.
	ErrJobNotFound = &PipelineError{Type: ErrorTypeNotFound, Message: "job not found"}

	// ErrJobTerminal is returned when mutating a job that already reached a
	// terminal state.
	ErrJobTerminal = &PipelineError{Type: ErrorTypeState, Message: "job is in a terminal state"}

	// ErrJobNotTerminal is returned when deleting a job that is still queued
	// or active.
	ErrJobNotTerminal = &PipelineError{Type: ErrorTypeState, Message: "job is not in a terminal state"}
)
