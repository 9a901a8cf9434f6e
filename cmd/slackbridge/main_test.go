package main

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestRootCommandBindsFlagsAndEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := newRootCmd()

	if got := viper.GetString("backend"); got != "dify" {
		t.Fatalf("expected default backend dify, got %q", got)
	}
	if got := viper.GetDuration("backend_timeout"); got != 60*time.Second {
		t.Fatalf("expected default timeout 60s, got %s", got)
	}

	if err := cmd.PersistentFlags().Set("port", "9999"); err != nil {
		t.Fatalf("set port: %v", err)
	}
	if got := viper.GetInt("port"); got != 9999 {
		t.Fatalf("expected port 9999 from flag, got %d", got)
	}

	t.Setenv("SLACKBRIDGE_APP_ID", "app-from-env")
	if got := viper.GetString("app_id"); got != "app-from-env" {
		t.Fatalf("expected app id from env, got %q", got)
	}
}

func TestRootCommandHasMCPSubcommand(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := newRootCmd()
	sub, _, err := cmd.Find([]string{"mcp"})
	if err != nil {
		t.Fatalf("find mcp: %v", err)
	}
	if sub.Name() != "mcp" {
		t.Fatalf("expected mcp subcommand, got %q", sub.Name())
	}
}
