package services

import (
	"errors"
	"fmt"

	"github.com/desertthunder/noncmra/internal/shared"
)

// ErrorKind classifies a [ValidationError] for the dispatcher.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindRejected
	KindQuotaExceeded
	KindProtocol
	KindNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case KindRejected:
		return "rejected"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindProtocol:
		return "protocol_error"
	case KindNetwork:
		return "network_error"
	default:
		return "unknown"
	}
}

// ValidationError describes a lookup that produced no verdict.
//
// Charged reports whether the provider counted the lookup against the credential's quota.
// Disable asks the caller to take the credential out of rotation.
type ValidationError struct {
	Kind    ErrorKind
	Status  int
	Charged bool
	Disable bool
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first [*ValidationError] in err's chain, or [KindUnknown].
func KindOf(err error) ErrorKind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindUnknown
}

func rejected(status int, charged bool, reason string) *ValidationError {
	return &ValidationError{
		Kind:    KindRejected,
		Status:  status,
		Charged: charged,
		Err:     fmt.Errorf("%w: %s", shared.ErrRejected, reason),
	}
}

func quotaExceeded(status int, disable bool) *ValidationError {
	return &ValidationError{
		Kind:    KindQuotaExceeded,
		Status:  status,
		Disable: disable,
		Err:     shared.ErrQuotaExceeded,
	}
}

func protocolError(status int, charged bool, format string, args ...any) *ValidationError {
	return &ValidationError{
		Kind:    KindProtocol,
		Status:  status,
		Charged: charged,
		Err:     fmt.Errorf("%w: %s", shared.ErrProtocol, fmt.Sprintf(format, args...)),
	}
}

func networkError(status int, cause error) *ValidationError {
	return &ValidationError{
		Kind:   KindNetwork,
		Status: status,
		Err:    fmt.Errorf("%w: %w", shared.ErrNetwork, cause),
	}
}
