package providers

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"

	"mivvo/internal/services"
)

// Outcome classifies one provider call attempt.
type Outcome string

const (
	OutcomeSuccess           Outcome = "SUCCESS"
	OutcomeTimeout           Outcome = "TIMEOUT"
	OutcomeQuotaExceeded     Outcome = "QUOTA_EXCEEDED"
	OutcomeMalformedResponse Outcome = "MALFORMED_RESPONSE"
	OutcomeOtherError        Outcome = "OTHER_ERROR"
)

// Attempt records one provider call for observability. Attempts are ephemeral
// and flow through logs and metrics rather than the report store.
type Attempt struct {
	Number   int
	Provider string
	Model    string
	Outcome  Outcome
	Err      string
	Duration time.Duration
}

// ClassifyOutcome maps an attempt error to its outcome class.
func ClassifyOutcome(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, services.ErrQuotaExceeded):
		return OutcomeQuotaExceeded
	case errors.Is(err, services.ErrIncompleteResponse):
		return OutcomeMalformedResponse
	case errors.Is(err, services.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeOtherError
}

// Retryable reports whether an outcome is worth another attempt against the
// same binding. Contract violations are excluded: re-sending the same payload
// cannot fix a malformed answer, only a different binding might.
func (o Outcome) Retryable() bool {
	switch o {
	case OutcomeTimeout, OutcomeQuotaExceeded, OutcomeOtherError:
		return true
	default:
		return false
	}
}
