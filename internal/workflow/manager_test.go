package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"mivvo/internal/analysis"
	"mivvo/internal/notifications"
	"mivvo/internal/report"
	"mivvo/internal/testsupport"
	"mivvo/internal/workflow"
)

type stubOrchestrator struct {
	store *report.Store
	fail  bool

	mu    sync.Mutex
	calls int
}

func (s *stubOrchestrator) Run(ctx context.Context, rpt *report.Report) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if err := s.store.Transition(ctx, rpt.ID, report.StatusPending, report.StatusProcessing); err != nil {
		return err
	}
	if s.fail {
		return s.store.MarkFailed(ctx, rpt.ID, "analysis failed; credits were refunded")
	}
	aggregate := &analysis.Aggregate{
		Score:       95,
		Band:        analysis.BandLow,
		Kinds:       rpt.AnalysisKinds(),
		GeneratedAt: time.Now().UTC(),
	}
	encoded, err := aggregate.Encode()
	if err != nil {
		return err
	}
	return s.store.Complete(ctx, rpt.ID, encoded)
}

func (s *stubOrchestrator) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubCompensator struct {
	store *report.Store

	mu      sync.Mutex
	reasons []string
}

func (s *stubCompensator) Compensate(ctx context.Context, rpt *report.Report, reason string) bool {
	s.mu.Lock()
	s.reasons = append(s.reasons, reason)
	s.mu.Unlock()
	_ = s.store.MarkFailed(ctx, rpt.ID, "analysis failed; credits were refunded")
	return true
}

func (s *stubCompensator) compensated() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reasons...)
}

type recordingNotifier struct {
	notifications.Service

	mu        sync.Mutex
	completed []string
	failed    []string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{Service: notifications.NewNop()}
}

func (r *recordingNotifier) NotifyReportCompleted(_ context.Context, reportID string, _ int, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, reportID)
	return nil
}

func (r *recordingNotifier) NotifyReportFailed(_ context.Context, reportID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, reportID)
	return nil
}

func (r *recordingNotifier) completedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.completed...)
}

func (r *recordingNotifier) failedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failed...)
}

func waitForStatus(t *testing.T, store *report.Store, id string, want report.Status) *report.Report {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		rpt, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get report: %v", err)
		}
		if rpt != nil && rpt.Status == want {
			return rpt
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("report %s never reached %s", id, want)
	return nil
}

func TestManagerRunsRequestedReport(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.HeartbeatInterval = 1
	cfg.Workflow.HeartbeatTimeout = 30

	store := testsupport.MustOpenStore(t, cfg)
	orchestrator := &stubOrchestrator{store: store}
	compensator := &stubCompensator{store: store}
	notifier := newRecordingNotifier()

	rpt := testsupport.NewReport(t, store, "owner-1", report.KindPaint)
	if err := store.MarkAnalyzeRequested(context.Background(), rpt.ID); err != nil {
		t.Fatalf("mark requested: %v", err)
	}

	manager := workflow.NewManager(cfg, store, orchestrator, compensator, notifier, nil)
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	defer manager.Stop()

	waitForStatus(t, store, rpt.ID, report.StatusCompleted)

	if got := orchestrator.count(); got != 1 {
		t.Fatalf("orchestrator calls = %d, want 1", got)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(notifier.completedIDs()) > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if ids := notifier.completedIDs(); len(ids) != 1 || ids[0] != rpt.ID {
		t.Fatalf("completed notifications = %v, want [%s]", ids, rpt.ID)
	}
	if len(compensator.compensated()) != 0 {
		t.Fatalf("compensator ran for a healthy report")
	}
}

func TestManagerIgnoresUnrequestedReports(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.HeartbeatInterval = 1
	cfg.Workflow.HeartbeatTimeout = 30

	store := testsupport.MustOpenStore(t, cfg)
	orchestrator := &stubOrchestrator{store: store}

	rpt := testsupport.NewReport(t, store, "owner-1", report.KindPaint)

	manager := workflow.NewManager(cfg, store, orchestrator, &stubCompensator{store: store}, newRecordingNotifier(), nil)
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	time.Sleep(2 * time.Second)
	manager.Stop()

	if got := orchestrator.count(); got != 0 {
		t.Fatalf("orchestrator calls = %d, want 0 before analysis is requested", got)
	}
	fetched, err := store.GetByID(context.Background(), rpt.ID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if fetched.Status != report.StatusPending {
		t.Fatalf("status = %s, want pending", fetched.Status)
	}
}

func TestManagerReclaimsStaleReports(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 30
	cfg.Workflow.HeartbeatInterval = 30
	cfg.Workflow.HeartbeatTimeout = 1

	store := testsupport.MustOpenStore(t, cfg)
	compensator := &stubCompensator{store: store}
	notifier := newRecordingNotifier()

	rpt := testsupport.NewReport(t, store, "owner-1", report.KindPaint)
	ctx := context.Background()
	if err := store.MarkAnalyzeRequested(ctx, rpt.ID); err != nil {
		t.Fatalf("mark requested: %v", err)
	}
	claimed, err := store.Claim(ctx, rpt.ID, "dead-worker-token")
	if err != nil || !claimed {
		t.Fatalf("claim: claimed=%v err=%v", claimed, err)
	}
	if err := store.Transition(ctx, rpt.ID, report.StatusPending, report.StatusProcessing); err != nil {
		t.Fatalf("transition: %v", err)
	}

	manager := workflow.NewManager(cfg, store, &stubOrchestrator{store: store}, compensator, notifier, nil)
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	defer manager.Stop()

	waitForStatus(t, store, rpt.ID, report.StatusFailed)

	reasons := compensator.compensated()
	if len(reasons) == 0 {
		t.Fatalf("stale report was never compensated")
	}
	if reasons[0] != "worker heartbeat lost" {
		t.Fatalf("compensation reason = %q", reasons[0])
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(notifier.failedIDs()) > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if ids := notifier.failedIDs(); len(ids) == 0 || ids[0] != rpt.ID {
		t.Fatalf("failure notifications = %v, want [%s]", ids, rpt.ID)
	}
}

func TestManagerStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.HeartbeatInterval = 1
	cfg.Workflow.HeartbeatTimeout = 30

	store := testsupport.MustOpenStore(t, cfg)
	manager := workflow.NewManager(cfg, store, &stubOrchestrator{store: store}, &stubCompensator{store: store}, newRecordingNotifier(), nil)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !manager.Running() {
		t.Fatal("manager should report running after Start")
	}
	if err := manager.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail while running")
	}
	manager.Stop()
	if manager.Running() {
		t.Fatal("manager should report stopped after Stop")
	}
	manager.Stop()
}
