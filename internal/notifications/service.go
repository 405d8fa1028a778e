// Package notifications pushes operator-facing events to ntfy. Report
// completion and failure events are opt-in per configuration; a missing topic
// yields a noop service so callers never branch.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mivvo/internal/config"
)

const userAgent = "Mivvo-Engine/0.1.0"

// Service defines the notification surface exposed to the workflow manager.
type Service interface {
	NotifyReportCompleted(ctx context.Context, reportID string, score int, band string) error
	NotifyReportFailed(ctx context.Context, reportID, disposition string) error
	NotifyRefundDiscrepancy(ctx context.Context, reportID, ownerID, amount string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		failed:    cfg.Notifications.Failed,
		errors:    cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	failed    bool
	errors    bool
}

func (n *ntfyService) NotifyReportCompleted(ctx context.Context, reportID string, score int, band string) error {
	if !n.completed {
		return nil
	}
	data := payload{
		title:   "Mivvo - Report Completed",
		message: fmt.Sprintf("Report %s completed: score %d (%s)", reportID, score, band),
		tags:    []string{"mivvo", "report", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReportFailed(ctx context.Context, reportID, disposition string) error {
	if !n.failed {
		return nil
	}
	data := payload{
		title:   "Mivvo - Report Failed",
		message: fmt.Sprintf("Report %s failed: %s", reportID, disposition),
		tags:    []string{"mivvo", "report", "failed"},
	}
	return n.send(ctx, data)
}

// NotifyRefundDiscrepancy always sends when a topic is configured: a refund
// that could not be recorded needs a human regardless of notification
// preferences.
func (n *ntfyService) NotifyRefundDiscrepancy(ctx context.Context, reportID, ownerID, amount string) error {
	data := payload{
		title:    "Mivvo - Refund Needs Reconciliation",
		message:  fmt.Sprintf("Report %s (owner %s): refund of %s credits could not be recorded. Manual reconciliation required.", reportID, ownerID, amount),
		tags:     []string{"mivvo", "refund", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, context string) error {
	if !n.errors || err == nil {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error: ")
	builder.WriteString(err.Error())
	if context = strings.TrimSpace(context); context != "" {
		builder.WriteString("\nContext: ")
		builder.WriteString(context)
	}
	data := payload{
		title:    "Mivvo - Error",
		message:  builder.String(),
		tags:     []string{"mivvo", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Mivvo - Test",
		message:  "Notification system test",
		tags:     []string{"mivvo", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// NewNop returns a Service that drops every notification.
func NewNop() Service { return noopService{} }

type noopService struct{}

func (noopService) NotifyReportCompleted(context.Context, string, int, string) error { return nil }
func (noopService) NotifyReportFailed(context.Context, string, string) error         { return nil }
func (noopService) NotifyRefundDiscrepancy(context.Context, string, string, string) error {
	return nil
}
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
