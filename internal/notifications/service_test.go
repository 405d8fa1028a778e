package notifications_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"mivvo/internal/notifications"
	"mivvo/internal/testsupport"
)

func TestNoopWhenTopicUnset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""

	svc := notifications.NewService(cfg)
	if err := svc.NotifyReportCompleted(context.Background(), "r-1", 80, "medium"); err != nil {
		t.Fatalf("noop NotifyReportCompleted: %v", err)
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop TestNotification: %v", err)
	}
}

func TestNotifySendsHeaders(t *testing.T) {
	var gotTitle, gotTags, gotPriority string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		gotPriority = r.Header.Get("Priority")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Failed = true

	svc := notifications.NewService(cfg)
	if err := svc.NotifyRefundDiscrepancy(context.Background(), "r-1", "owner-1", "35"); err != nil {
		t.Fatalf("NotifyRefundDiscrepancy: %v", err)
	}
	if gotTitle == "" || gotTags == "" {
		t.Fatalf("missing ntfy headers: title=%q tags=%q", gotTitle, gotTags)
	}
	if gotPriority != "high" {
		t.Fatalf("priority = %q, want high for refund discrepancies", gotPriority)
	}
}

func TestNotifyRespectsToggles(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Completed = false

	svc := notifications.NewService(cfg)
	if err := svc.NotifyReportCompleted(context.Background(), "r-1", 90, "low"); err != nil {
		t.Fatalf("NotifyReportCompleted: %v", err)
	}
	if calls != 0 {
		t.Fatalf("calls = %d, want 0 with completed notifications disabled", calls)
	}
}
