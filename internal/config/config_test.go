package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadReadsViper(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("bot_token", "xoxb-1")
	viper.Set("app_id", "app-9")
	viper.Set("allow_retry", true)
	viper.Set("backend", BackendAnthropic)
	viper.Set("backend_timeout", "45s")
	viper.Set("app_keys", map[string]string{"app-9": "key-9"})
	viper.Set("port", 9090)
	viper.Set("delivery_retention", "168h")

	cfg := Load()
	if cfg.BotToken != "xoxb-1" || cfg.AppID != "app-9" || !cfg.AllowRetry {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Backend != BackendAnthropic {
		t.Fatalf("expected anthropic backend, got %q", cfg.Backend)
	}
	if cfg.BackendTimeout != 45*time.Second {
		t.Fatalf("expected 45s timeout, got %s", cfg.BackendTimeout)
	}
	if cfg.AppKeys["app-9"] != "key-9" {
		t.Fatalf("expected app key, got %v", cfg.AppKeys)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.DeliveryRetention != 7*24*time.Hour {
		t.Fatalf("expected 168h retention, got %s", cfg.DeliveryRetention)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := Config{BotToken: "xoxb-2", AppID: "a", AllowRetry: true, ReplyFormat: "mrkdwn", ReplyInThread: true}
	s := cfg.Settings()
	if s.BotToken != "xoxb-2" || s.App.ID != "a" || !s.AllowRetry || s.ReplyFormat != "mrkdwn" || !s.ReplyInThread {
		t.Fatalf("unexpected settings %+v", s)
	}
}

func TestSecrets(t *testing.T) {
	cfg := Config{BotToken: "xoxb-1", DifyAPIKey: "k", AppKeys: map[string]string{"a1": "k1"}}
	s := cfg.Secrets()
	if s["bot_token"] != "xoxb-1" || s["dify_api_key"] != "k" || s["app_keys.a1"] != "k1" {
		t.Fatalf("unexpected secrets %v", s)
	}
}
