package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shelf/internal/config"
)

const userAgent = "Shelf/0.1.0"

// Service defines the notification surface exposed to the pipeline.
type Service interface {
	NotifyOperationCompleted(ctx context.Context, opType, message string) error
	NotifyOperationFailed(ctx context.Context, opType, errMsg string) error
	NotifyOperationCanceled(ctx context.Context, opType string) error
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
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		operations: cfg.Notifications.Operations,
		errors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	operations bool
	errors     bool
}

func (n *ntfyService) NotifyOperationCompleted(ctx context.Context, opType, message string) error {
	if !n.operations {
		return nil
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = fmt.Sprintf("%s finished", opType)
	}
	data := payload{
		title:   fmt.Sprintf("Shelf - %s complete", opType),
		message: message,
		tags:    []string{"shelf", opType, "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyOperationFailed(ctx context.Context, opType, errMsg string) error {
	if !n.errors {
		return nil
	}
	errMsg = strings.TrimSpace(errMsg)
	if errMsg == "" {
		errMsg = "unknown error"
	}
	data := payload{
		title:    fmt.Sprintf("Shelf - %s failed", opType),
		message:  fmt.Sprintf("%s failed: %s", opType, errMsg),
		tags:     []string{"shelf", opType, "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyOperationCanceled(ctx context.Context, opType string) error {
	if !n.operations {
		return nil
	}
	data := payload{
		title:   fmt.Sprintf("Shelf - %s canceled", opType),
		message: fmt.Sprintf("%s was canceled before finishing", opType),
		tags:    []string{"shelf", opType, "canceled"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Shelf - Test",
		message:  "Notification system test",
		tags:     []string{"shelf", "test"},
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

func (noopService) NotifyOperationCompleted(context.Context, string, string) error { return nil }
func (noopService) NotifyOperationFailed(context.Context, string, string) error    { return nil }
func (noopService) NotifyOperationCanceled(context.Context, string) error          { return nil }
func (noopService) TestNotification(context.Context) error                         { return nil }
