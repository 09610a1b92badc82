package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/pelletier/go-toml/v2"
)

func TestTestNotifyDisabled(t *testing.T) {
	_, configPath := newCLIConfig(t)
	out, _, err := runCLI(t, []string{"test-notify"}, configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Notifications disabled")
}

func TestTestNotifySendsToTopic(t *testing.T) {
	titles := make(chan string, 1)
	ntfy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		titles <- r.Header.Get("Title")
	}))
	t.Cleanup(ntfy.Close)

	cfg, configPath := newCLIConfig(t)
	cfg.Notifications.NtfyTopic = ntfy.URL
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, _, err := runCLI(t, []string{"test-notify"}, configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	if title := <-titles; title != "Proxima - Test" {
		t.Fatalf("title %q", title)
	}
}
