package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"proxima/internal/config"
)

const userAgent = "proxima/0.1"

// Service defines the alerts the daemon sends.
type Service interface {
	NotifyDiscoveryRunning(ctx context.Context, iface string) error
	NotifyDiscoveryStopped(ctx context.Context, iface, cause string) error
	NotifyDiscoveryFailed(ctx context.Context, iface, outcome string) error
	NotifyError(ctx context.Context, err error, label string) error
	TestNotification(ctx context.Context) error
}

// Enabled reports whether cfg names an ntfy topic.
func Enabled(cfg *config.Config) bool {
	return cfg != nil && strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""
}

// NewService builds an ntfy-backed service, or a no-op one when no topic is
// configured.
func NewService(cfg *config.Config) Service {
	if !Enabled(cfg) {
		return noopService{}
	}
	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: strings.TrimSpace(cfg.Notifications.NtfyTopic),
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyDiscoveryRunning(ctx context.Context, iface string) error {
	return n.send(ctx, payload{
		title:   "Proxima - Mesh Up",
		message: fmt.Sprintf("Neighbor discovery running on %s", ifaceLabel(iface)),
		tags:    []string{"proxima", "mesh", "running"},
	})
}

func (n *ntfyService) NotifyDiscoveryStopped(ctx context.Context, iface, cause string) error {
	message := fmt.Sprintf("Neighbor discovery stopped on %s", ifaceLabel(iface))
	if cause = strings.TrimSpace(cause); cause != "" {
		message += ": " + cause
	}
	return n.send(ctx, payload{
		title:    "Proxima - Mesh Down",
		message:  message,
		tags:     []string{"proxima", "mesh", "stopped"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyDiscoveryFailed(ctx context.Context, iface, outcome string) error {
	detail := "routing daemon did not start"
	if outcome == "interface_failed" {
		detail = "interface configuration failed"
	}
	return n.send(ctx, payload{
		title:    "Proxima - Discovery Failed",
		message:  fmt.Sprintf("Discovery on %s failed: %s", ifaceLabel(iface), detail),
		tags:     []string{"proxima", "mesh", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, label string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if label = strings.TrimSpace(label); label != "" {
		builder.WriteString(" with ")
		builder.WriteString(label)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "Proxima - Error",
		message:  builder.String(),
		tags:     []string{"proxima", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Proxima - Test",
		message:  "Notification system test",
		tags:     []string{"proxima", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
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

func ifaceLabel(iface string) string {
	if iface = strings.TrimSpace(iface); iface != "" {
		return iface
	}
	return "the mesh interface"
}

type noopService struct{}

func (noopService) NotifyDiscoveryRunning(context.Context, string) error         { return nil }
func (noopService) NotifyDiscoveryStopped(context.Context, string, string) error { return nil }
func (noopService) NotifyDiscoveryFailed(context.Context, string, string) error  { return nil }
func (noopService) NotifyError(context.Context, error, string) error             { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
