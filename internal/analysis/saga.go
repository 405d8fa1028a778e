package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mivvo/internal/ledger"
	"mivvo/internal/logging"
	"mivvo/internal/metrics"
	"mivvo/internal/report"
)

const (
	sagaRefundAttempts = 3
	sagaRefundBackoff  = 500 * time.Millisecond
	sagaTimeout        = 30 * time.Second
)

// Refund disposition notes written to the report on the FAILED transition.
// Every failed report carries one of these so support can tell at a glance
// whether the user got their credit back.
const (
	noteRefunded       = "analysis failed: %s; reserved credit refunded"
	noteRefundDegraded = "analysis failed: %s; credit restored, transaction log incomplete, reconciliation needed"
	noteRefundFailed   = "analysis failed: %s; REFUND FAILED, contact support with this report id"
	noteNothingCharged = "analysis failed: %s; no credit was charged"
)

// Saga owns the compensation path: refund the reserved credit and force the
// report into FAILED. It never calls providers and its retries are
// independent of the orchestrator's.
type Saga struct {
	ledger  *ledger.Store
	reports *report.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	sleeper func(time.Duration)
}

// NewSaga builds the compensation saga.
func NewSaga(ledgerStore *ledger.Store, reports *report.Store, logger *slog.Logger, m *metrics.Metrics) *Saga {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Saga{
		ledger:  ledgerStore,
		reports: reports,
		logger:  logging.NewComponentLogger(logger, "saga"),
		metrics: m,
	}
}

// WithSleeper overrides retry sleeps for tests.
func (s *Saga) WithSleeper(sleeper func(time.Duration)) *Saga {
	s.sleeper = sleeper
	return s
}

// Compensate refunds the report's reserved cost and forces the report into
// FAILED with a note recording the refund disposition. It runs on its own
// deadline, detached from the orchestration context, because an abandoned or
// timed-out report still must settle. The return value reports whether the
// user's credit was restored.
func (s *Saga) Compensate(ctx context.Context, rpt *report.Report, reason string) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sagaTimeout)
	defer cancel()

	logger := s.logger.With(
		logging.String(logging.FieldReportID, rpt.ID),
		logging.String(logging.FieldOwnerID, rpt.OwnerID))
	logger.Info("compensation started",
		logging.String(logging.FieldEventType, "compensation_start"),
		logging.String("reason", reason),
		logging.String("amount", rpt.Cost.String()))

	refunded, degraded := s.refund(ctx, rpt, logger)

	var notes string
	switch {
	case refunded && !degraded:
		notes = fmt.Sprintf(noteRefunded, reason)
		s.metrics.ObserveRefund("atomic")
	case refunded && degraded:
		notes = fmt.Sprintf(noteRefundDegraded, reason)
		s.metrics.ObserveRefund("degraded")
	default:
		notes = fmt.Sprintf(noteRefundFailed, reason)
		s.metrics.ObserveRefund("failed")
		logger.Error("refund could not be recorded, manual reconciliation required",
			logging.String(logging.FieldEventType, "refund_failed"),
			logging.String("amount", rpt.Cost.String()))
	}

	s.markFailed(ctx, rpt.ID, notes, logger)
	return refunded
}

// FailWithoutRefund settles a report that failed before any credit was
// debited. No ledger interaction happens.
func (s *Saga) FailWithoutRefund(ctx context.Context, rpt *report.Report, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sagaTimeout)
	defer cancel()

	logger := s.logger.With(logging.String(logging.FieldReportID, rpt.ID))
	s.markFailed(ctx, rpt.ID, fmt.Sprintf(noteNothingCharged, reason), logger)
}

func (s *Saga) refund(ctx context.Context, rpt *report.Report, logger *slog.Logger) (refunded, degraded bool) {
	reason := "compensation for report " + rpt.ID

	var lastErr error
	for attempt := 1; attempt <= sagaRefundAttempts; attempt++ {
		if _, err := s.ledger.Refund(ctx, rpt.OwnerID, rpt.Cost, rpt.ID, reason); err == nil {
			return true, false
		} else {
			lastErr = err
		}
		if attempt < sagaRefundAttempts {
			s.sleep(ctx, sagaRefundBackoff)
		}
	}
	logger.Warn("atomic refund exhausted retries, entering degraded path",
		logging.String(logging.FieldEventType, "refund_degraded"),
		logging.Error(lastErr))

	_, recorded, err := s.ledger.RefundDegraded(ctx, rpt.OwnerID, rpt.Cost, rpt.ID, reason)
	if err != nil {
		logger.Error("degraded refund failed", logging.Error(err))
		return false, false
	}
	return true, !recorded
}

func (s *Saga) markFailed(ctx context.Context, reportID, notes string, logger *slog.Logger) {
	// The FAILED transition must land even if the first write hits a busy
	// database; the store already retries busy errors internally.
	if err := s.reports.MarkFailed(ctx, reportID, notes); err != nil {
		logger.Error("failed to mark report FAILED",
			logging.String(logging.FieldEventType, "mark_failed_error"),
			logging.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.ReportsFailed.Inc()
	}
	logger.Info("report marked FAILED",
		logging.String(logging.FieldEventType, "compensation_complete"),
		logging.String("notes", notes))
}

func (s *Saga) sleep(ctx context.Context, delay time.Duration) {
	if s.sleeper != nil {
		s.sleeper(delay)
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
