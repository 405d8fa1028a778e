package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mivvo/internal/analysis"
	"mivvo/internal/config"
	"mivvo/internal/logging"
	"mivvo/internal/notifications"
	"mivvo/internal/report"
)

// Orchestrator drives a claimed report to a terminal state. The workflow
// manager never inspects the run outcome beyond the returned error; refunds
// and status transitions are the orchestrator's responsibility.
type Orchestrator interface {
	Run(ctx context.Context, rpt *report.Report) error
}

// Compensator settles reports whose worker disappeared after the debit.
type Compensator interface {
	Compensate(ctx context.Context, rpt *report.Report, reason string) bool
}

// Manager owns the worker pool that processes requested reports.
type Manager struct {
	cfg          *config.Config
	store        *report.Store
	orchestrator Orchestrator
	saga         Compensator
	notifier     notifications.Service
	logger       *slog.Logger

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a workflow manager. The notifier may be nil, in which
// case terminal-state notifications are skipped.
func NewManager(cfg *config.Config, store *report.Store, orchestrator Orchestrator, saga Compensator, notifier notifications.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Manager{
		cfg:               cfg,
		store:             store,
		orchestrator:      orchestrator,
		saga:              saga,
		notifier:          notifier,
		logger:            logging.NewComponentLogger(logger, "workflow"),
		pollInterval:      time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeatInterval: time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second,
		heartbeatTimeout:  time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second,
	}
}

// Start launches the worker pool and the stale-report reclaimer. It is an
// error to start a manager twice without stopping it first.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow manager already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	workers := m.cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.workerLoop(runCtx, i)
	}
	m.wg.Add(1)
	go m.reclaimLoop(runCtx)

	m.logger.Info("workflow manager started", logging.Int("workers", workers))
	return nil
}

// Stop cancels all workers and blocks until in-flight runs settle. In-flight
// orchestrations observe cancellation and compensate before returning, so
// stopping never strands a debited report.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow manager stopped")
}

// Running reports whether the worker pool is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) workerLoop(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))
	for {
		if err := m.runNext(ctx, logger); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("queue poll failed", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.pollInterval):
		}
	}
}

// runNext claims and processes at most one report. A nil return with no work
// available simply lets the caller sleep until the next poll.
func (m *Manager) runNext(ctx context.Context, logger *slog.Logger) error {
	rpt, err := m.store.NextRunnable(ctx)
	if err != nil || rpt == nil {
		return err
	}

	token := uuid.NewString()
	claimed, err := m.store.Claim(ctx, rpt.ID, token)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	if ctx.Err() != nil {
		return m.store.ReleaseClaim(context.WithoutCancel(ctx), rpt.ID, token)
	}

	m.process(ctx, rpt, logger)
	return nil
}

func (m *Manager) process(ctx context.Context, rpt *report.Report, logger *slog.Logger) {
	logger = logger.With(logging.String(logging.FieldReportID, rpt.ID))
	logger.Info("report claimed",
		logging.String(logging.FieldOwnerID, rpt.OwnerID),
		logging.Any("kinds", rpt.Kinds))

	stopHeartbeat := m.startHeartbeat(ctx, rpt.ID, logger)
	err := m.orchestrator.Run(ctx, rpt)
	stopHeartbeat()

	if err != nil {
		logger.Warn("report run ended with error", logging.Error(err))
	}
	m.notifyTerminal(context.WithoutCancel(ctx), rpt.ID, logger)
}

// startHeartbeat records liveness for an in-flight report until the returned
// stop function is called.
func (m *Manager) startHeartbeat(ctx context.Context, reportID string, logger *slog.Logger) func() {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(m.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.store.UpdateHeartbeat(ctx, reportID); err != nil {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// reclaimLoop sweeps processing reports whose heartbeat expired. A stale
// report was debited by a worker that is gone, so it goes through
// compensation rather than back into the queue.
func (m *Manager) reclaimLoop(ctx context.Context) {
	defer m.wg.Done()
	interval := m.heartbeatTimeout
	if interval <= 0 {
		interval = m.pollInterval
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		if err := m.reclaimStale(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("stale report sweep failed", logging.Error(err))
		}
	}
}

func (m *Manager) reclaimStale(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-m.heartbeatTimeout)
	stale, err := m.store.StaleProcessing(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, rpt := range stale {
		logger := m.logger.With(logging.String(logging.FieldReportID, rpt.ID))
		logger.Warn("reclaiming report with expired heartbeat",
			logging.String(logging.FieldEventType, "stale_reclaim"))
		m.saga.Compensate(ctx, rpt, "worker heartbeat lost")
		m.notifyTerminal(context.WithoutCancel(ctx), rpt.ID, logger)
	}
	return nil
}

// notifyTerminal pushes a completion or failure notification once a report
// has settled. Notification errors are logged, never propagated.
func (m *Manager) notifyTerminal(ctx context.Context, reportID string, logger *slog.Logger) {
	rpt, err := m.store.GetByID(ctx, reportID)
	if err != nil || rpt == nil {
		if err != nil {
			logger.Warn("fetch report for notification failed", logging.Error(err))
		}
		return
	}

	switch rpt.Status {
	case report.StatusCompleted:
		aggregate, err := analysis.DecodeAggregate(rpt.ResultJSON)
		if err != nil {
			logger.Warn("decode result for notification failed", logging.Error(err))
			return
		}
		if err := m.notifier.NotifyReportCompleted(ctx, rpt.ID, aggregate.Score, string(aggregate.Band)); err != nil {
			logger.Warn("completion notification failed", logging.Error(err))
		}
	case report.StatusFailed:
		if err := m.notifier.NotifyReportFailed(ctx, rpt.ID, rpt.Notes); err != nil {
			logger.Warn("failure notification failed", logging.Error(err))
		}
	}
}
