package models

import (
	"context"
	"errors"
	"fmt"

	"skywatch/indexer/internal/constants"
)

// PipelineError is the error shape carried across the ingestion pipeline.
// Code is one of the constants.ErrCode* values and drives retry and
// classification decisions.
type PipelineError struct {
	Code    string
	Message string
	Details string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError builds an error for the given code with its standard message
func NewPipelineError(code string, err error) *PipelineError {
	return &PipelineError{
		Code:    code,
		Message: constants.GetErrorMessage(code),
		Err:     err,
	}
}

// ErrorCode extracts the pipeline error code from err, walking the wrap
// chain. Unclassified errors report as UPSTREAM_UNAVAILABLE so they stay
// retriable rather than silently dropping an item.
func ErrorCode(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return constants.ErrCodeTimeout
	}
	return constants.ErrCodeUpstreamUnavailable
}

// IsRetriable reports whether reattempting the operation can plausibly succeed
func IsRetriable(err error) bool {
	return constants.IsRetriableCode(ErrorCode(err))
}

// IsBenign reports whether the error represents a skip or no-op outcome
// rather than a failure
func IsBenign(err error) bool {
	return constants.IsBenignCode(ErrorCode(err))
}
