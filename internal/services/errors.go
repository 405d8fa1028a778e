package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrValidation marks request-shape problems: unknown analysis kinds,
	// malformed uploads, bad parameters. Surfaced immediately, never retried.
	ErrValidation = errors.New("validation error")
	// ErrAssetMissing marks a request whose required assets were never uploaded.
	ErrAssetMissing = errors.New("asset missing")
	// ErrInsufficientFunds marks a debit rejected for lack of balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNotFound marks lookups for reports or accounts that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotOwner marks access to a report by a user other than its owner.
	ErrNotOwner = errors.New("not owner")
	// ErrConfiguration marks missing or contradictory configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrProviderUnavailable marks an analysis provider that failed after all
	// retries and fallback were exhausted.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrIncompleteResponse marks a provider payload that parsed but violated
	// the response contract for its analysis kind.
	ErrIncompleteResponse = errors.New("incomplete provider response")
	// ErrQuotaExceeded marks a provider rejecting calls for rate or quota
	// limits.
	ErrQuotaExceeded = errors.New("provider quota exceeded")
	// ErrTimeout marks an operation that exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrLedger marks storage failures inside the credit ledger.
	ErrLedger = errors.New("ledger error")
	// ErrTransient marks failures worth retrying that fit no other marker.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsUserError reports whether an error belongs to the user-error class: it is
// surfaced immediately, is never retried, and requires no compensation because
// it is raised before any credit is reserved.
func IsUserError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrAssetMissing) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNotOwner)
}

// HTTPStatus maps the error taxonomy to the status code the API surface
// returns for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, ErrAssetMissing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrIncompleteResponse),
		errors.Is(err, ErrTimeout), errors.Is(err, ErrQuotaExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
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
