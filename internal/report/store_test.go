package report_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"mivvo/internal/report"
	"mivvo/internal/testsupport"
)

func TestCreateAndGet(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	rpt := testsupport.NewReport(t, store, "owner-1", report.KindPaint, report.KindDamage)
	if rpt.Status != report.StatusPending {
		t.Fatalf("status = %s, want pending", rpt.Status)
	}
	if len(rpt.Kinds) != 2 {
		t.Fatalf("kinds = %v", rpt.Kinds)
	}

	fetched, err := store.GetByID(ctx, rpt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched == nil || fetched.ID != rpt.ID || fetched.OwnerID != "owner-1" {
		t.Fatalf("fetched = %+v", fetched)
	}

	missing, err := store.GetByID(ctx, "nope")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing = %+v, want nil", missing)
	}
}

func TestListByOwnerNewestFirst(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first := testsupport.NewReport(t, store, "owner-1", report.KindPaint)
	time.Sleep(5 * time.Millisecond)
	second := testsupport.NewReport(t, store, "owner-1", report.KindValue)
	testsupport.NewReport(t, store, "owner-2", report.KindPaint)

	reports, err := store.ListByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("len = %d, want 2", len(reports))
	}
	if reports[0].ID != second.ID || reports[1].ID != first.ID {
		t.Fatalf("order = [%s %s], want newest first", reports[0].ID, reports[1].ID)
	}
}

func TestNextRunnableRequiresAnalyzeRequest(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	rpt := testsupport.NewReport(t, store, "owner-1", report.KindPaint)

	next, err := store.NextRunnable(ctx)
	if err != nil {
		t.Fatalf("next runnable: %v", err)
	}
	if next != nil {
		t.Fatalf("next = %+v, want nil before analyze request", next)
	}

	if err := store.MarkAnalyzeRequested(ctx, rpt.ID); err != nil {
		t.Fatalf("mark requested: %v", err)
	}
	next, err = store.NextRunnable(ctx)
	if err != nil {
		t.Fatalf("next runnable: %v", err)
	}
	if next == nil || next.ID != rpt.ID {
		t.Fatalf("next = %+v, want %s", next, rpt.ID)
	}
	if next.RequestedAt == nil {
		t.Fatal("requested_at should be set")
	}
}

func TestClaimIsExclusive(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	rpt := testsupport.NewReport(t, store, "owner-1", report.KindPaint)
	if err := store.MarkAnalyzeRequested(ctx, rpt.ID); err != nil {
		t.Fatalf("mark requested: %v", err)
	}

	claimed, err := store.Claim(ctx, rpt.ID, "worker-a")
	if err != nil || !claimed {
		t.Fatalf("first claim: claimed=%v err=%v", claimed, err)
	}
	claimed, err = store.Claim(ctx, rpt.ID, "worker-b")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatal("second worker must not steal the claim")
	}

	next, err := store.NextRunnable(ctx)
	if err != nil {
		t.Fatalf("next runnable: %v", err)
	}
	if next != nil {
		t.Fatalf("claimed report still runnable: %+v", next)
	}

	if err := store.ReleaseClaim(ctx, rpt.ID, "worker-a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	next, err = store.NextRunnable(ctx)
	if err != nil {
		t.Fatalf("next runnable: %v", err)
	}
	if next == nil || next.ID != rpt.ID {
		t.Fatal("released report should be runnable again")
	}
}

func TestTransitionGuards(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	rpt := testsupport.NewReport(t, store, "owner-1", report.KindPaint)

	if err := store.Transition(ctx, rpt.ID, report.StatusPending, report.StatusCompleted); !errors.Is(err, report.ErrIllegalTransition) {
		t.Fatalf("pending -> completed err = %v, want ErrIllegalTransition", err)
	}
	if err := store.Transition(ctx, rpt.ID, report.StatusProcessing, report.StatusCompleted); !errors.Is(err, report.ErrIllegalTransition) {
		t.Fatalf("stale from-status err = %v, want ErrIllegalTransition", err)
	}
	if err := store.Transition(ctx, rpt.ID, report.StatusPending, report.StatusProcessing); err != nil {
		t.Fatalf("pending -> processing: %v", err)
	}
}

func TestTerminalStatesNeverLeft(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	rpt := testsupport.NewReport(t, store, "owner-1", report.KindPaint)
	if err := store.Transition(ctx, rpt.ID, report.StatusPending, report.StatusProcessing); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := store.Complete(ctx, rpt.ID, `{"score":95}`); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := store.Transition(ctx, rpt.ID, report.StatusCompleted, report.StatusProcessing); !errors.Is(err, report.ErrIllegalTransition) {
		t.Fatalf("leave completed err = %v, want ErrIllegalTransition", err)
	}
	if err := store.MarkFailed(ctx, rpt.ID, "should not land"); !errors.Is(err, report.ErrIllegalTransition) {
		t.Fatalf("fail completed err = %v, want ErrIllegalTransition", err)
	}

	fetched, err := store.GetByID(ctx, rpt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Status != report.StatusCompleted || fetched.ResultJSON == "" {
		t.Fatalf("report = %+v, want completed with result", fetched)
	}
}

func TestMarkFailedRecordsNotes(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	rpt := testsupport.NewReport(t, store, "owner-1", report.KindPaint)
	if err := store.MarkFailed(ctx, rpt.ID, "analysis failed; credits were refunded"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, rpt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Status != report.StatusFailed {
		t.Fatalf("status = %s, want failed", fetched.Status)
	}
	if fetched.Notes == "" {
		t.Fatal("failure notes must record the refund disposition")
	}
}

func TestStaleProcessingByHeartbeat(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	rpt := testsupport.NewReport(t, store, "owner-1", report.KindPaint)
	if err := store.MarkAnalyzeRequested(ctx, rpt.ID); err != nil {
		t.Fatalf("mark requested: %v", err)
	}
	if claimed, err := store.Claim(ctx, rpt.ID, "worker-a"); err != nil || !claimed {
		t.Fatalf("claim: claimed=%v err=%v", claimed, err)
	}
	if err := store.Transition(ctx, rpt.ID, report.StatusPending, report.StatusProcessing); err != nil {
		t.Fatalf("transition: %v", err)
	}

	stale, err := store.StaleProcessing(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("stale query: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("fresh heartbeat counted stale: %v", stale)
	}

	stale, err = store.StaleProcessing(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("stale query: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != rpt.ID {
		t.Fatalf("stale = %+v, want [%s]", stale, rpt.ID)
	}

	if err := store.UpdateHeartbeat(ctx, rpt.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	fetched, err := store.GetByID(ctx, rpt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.LastHeartbeat == nil {
		t.Fatal("heartbeat not recorded")
	}
}

func TestAssetsFrozenAfterPending(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	rpt := testsupport.NewReport(t, store, "owner-1", report.KindPaint)
	if _, err := store.AddAsset(ctx, rpt.ID, report.AssetImage, "ref-1", 128); err != nil {
		t.Fatalf("add asset: %v", err)
	}
	if err := store.Transition(ctx, rpt.ID, report.StatusPending, report.StatusProcessing); err != nil {
		t.Fatalf("transition: %v", err)
	}

	if _, err := store.AddAsset(ctx, rpt.ID, report.AssetImage, "ref-2", 128); !errors.Is(err, report.ErrIllegalTransition) {
		t.Fatalf("asset after pending err = %v, want ErrIllegalTransition", err)
	}

	byKind, err := store.AssetsByKind(ctx, rpt.ID)
	if err != nil {
		t.Fatalf("assets by kind: %v", err)
	}
	if len(byKind[report.AssetImage]) != 1 {
		t.Fatalf("image assets = %d, want 1", len(byKind[report.AssetImage]))
	}
}

func TestHealthCounts(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewReport(t, store, "owner-1", report.KindPaint)
	failed := testsupport.NewReport(t, store, "owner-1", report.KindPaint)
	if err := store.MarkFailed(ctx, failed.ID, "notes"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	summary, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if summary.Total != 2 || summary.Pending != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}
