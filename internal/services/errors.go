package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStoreUnavailable marks fetch/dedupe/vacuum/chunk-write I/O failures.
	// The cycle is aborted and retried on the next tick.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrWorkerTimeout marks a block that exceeded the worker deadline. Its
	// rows stay queued.
	ErrWorkerTimeout = errors.New("worker timeout")
	// ErrWorkerError marks a compile failure reported by a worker. Its rows
	// stay queued.
	ErrWorkerError = errors.New("worker error")
	// ErrPublishFailure marks a client push that could not be delivered.
	// Never retried.
	ErrPublishFailure = errors.New("publish failure")
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
)

// Kind labels used for metrics and status output.
const (
	KindStoreUnavailable = "store_unavailable"
	KindWorkerTimeout    = "worker_timeout"
	KindWorkerError      = "worker_error"
	KindPublishFailure   = "publish_failure"
	KindValidation       = "validation"
	KindConfiguration    = "configuration"
	KindUnknown          = "unknown"
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrStoreUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind classifies err into one of the Kind labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWorkerTimeout):
		return KindWorkerTimeout
	case errors.Is(err, ErrWorkerError):
		return KindWorkerError
	case errors.Is(err, ErrPublishFailure):
		return KindPublishFailure
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindUnknown
	}
}

// Retryable reports whether the rows behind err are left queued for the next
// cycle. Publish failures are best-effort and never retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrPublishFailure) && !errors.Is(err, ErrValidation)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
