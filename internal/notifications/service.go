package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"perch/internal/config"
	"perch/internal/visit"
)

const userAgent = "perchd/0.1.0"

// Service defines the notification surface exposed to the engine and
// analysis workers.
type Service interface {
	NotifyVisitStarted(ctx context.Context, v *visit.Visit) error
	NotifyVisitCompleted(ctx context.Context, v *visit.Visit) error
	NotifyAnalysisFailed(ctx context.Context, v *visit.Visit, reason string) error
	NotifySourceOffline(ctx context.Context, detail string) error
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
		endpoint:       topic,
		client:         &http.Client{Timeout: timeout},
		visitStarted:   cfg.Notifications.VisitStarted,
		visitCompleted: cfg.Notifications.VisitCompleted,
		errors:         cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	visitStarted   bool
	visitCompleted bool
	errors         bool
}

func (n *ntfyService) NotifyVisitStarted(ctx context.Context, v *visit.Visit) error {
	if !n.visitStarted {
		return nil
	}
	data := payload{
		title:   "Perch - Visitor",
		message: fmt.Sprintf("A bird landed at %s", v.StartedAt.Local().Format("15:04:05")),
		tags:    []string{"perch", "visit", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyVisitCompleted(ctx context.Context, v *visit.Visit) error {
	if !n.visitCompleted {
		return nil
	}
	species := strings.TrimSpace(v.Species)
	if species == "" {
		species = "unknown"
	}
	message := fmt.Sprintf("%s visited for %s (%s confidence)",
		species, v.Duration().Round(time.Second), v.Confidence)
	if summary := strings.TrimSpace(v.Summary); summary != "" {
		message = fmt.Sprintf("%s\n%s", message, summary)
	}
	data := payload{
		title:   "Perch - Visit Complete",
		message: message,
		tags:    []string{"perch", "visit", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyAnalysisFailed(ctx context.Context, v *visit.Visit, reason string) error {
	if !n.errors {
		return nil
	}
	data := payload{
		title:    "Perch - Analysis Failed",
		message:  fmt.Sprintf("Could not classify visit %s: %s", v.ID, strings.TrimSpace(reason)),
		tags:     []string{"perch", "error", "analysis"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySourceOffline(ctx context.Context, detail string) error {
	if !n.errors {
		return nil
	}
	message := "Camera stream is offline"
	if detail = strings.TrimSpace(detail); detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}
	data := payload{
		title:    "Perch - Camera Offline",
		message:  message,
		tags:     []string{"perch", "error", "camera"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Perch - Test",
		message:  "Notification system test",
		tags:     []string{"perch", "test"},
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

type noopService struct{}

func (noopService) NotifyVisitStarted(context.Context, *visit.Visit) error   { return nil }
func (noopService) NotifyVisitCompleted(context.Context, *visit.Visit) error { return nil }
func (noopService) NotifyAnalysisFailed(context.Context, *visit.Visit, string) error {
	return nil
}
func (noopService) NotifySourceOffline(context.Context, string) error { return nil }
func (noopService) TestNotification(context.Context) error            { return nil }
