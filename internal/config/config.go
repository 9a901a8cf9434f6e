package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/joestump/slackbridge/internal/dispatch"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Backend names accepted by the backend setting.
const (
	BackendDify      = "dify"
	BackendAnthropic = "anthropic"
)

// Config holds all runtime configuration for the bridge.
type Config struct {
	BotToken      string
	AppID         string
	AllowRetry    bool
	ReplyFormat   string
	ReplyInThread bool

	Backend        string
	BackendTimeout time.Duration
	DifyBaseURL    string
	DifyAPIKey     string
	AppKeys        map[string]string // app id -> Dify app API key
	AnthropicModel string
	SystemPrompt   string
	MaxTokens      int

	SlackAPIURL       string
	Port              int
	StateDir          string
	DeliveryRetention time.Duration // 0 keeps deliveries forever
}

// Load reads configuration from viper, which merges flag values, env vars,
// an optional config file, and defaults (set up by the cobra command in
// cmd/slackbridge).
func Load() Config {
	return Config{
		BotToken:      viper.GetString("bot_token"),
		AppID:         viper.GetString("app_id"),
		AllowRetry:    viper.GetBool("allow_retry"),
		ReplyFormat:   viper.GetString("reply_format"),
		ReplyInThread: viper.GetBool("reply_in_thread"),

		Backend:        viper.GetString("backend"),
		BackendTimeout: viper.GetDuration("backend_timeout"),
		DifyBaseURL:    viper.GetString("dify_base_url"),
		DifyAPIKey:     viper.GetString("dify_api_key"),
		AppKeys:        viper.GetStringMapString("app_keys"),
		AnthropicModel: viper.GetString("anthropic_model"),
		SystemPrompt:   viper.GetString("system_prompt"),
		MaxTokens:      viper.GetInt("max_tokens"),

		SlackAPIURL:       viper.GetString("slack_api_url"),
		Port:              viper.GetInt("port"),
		StateDir:          viper.GetString("state_dir"),
		DeliveryRetention: viper.GetDuration("delivery_retention"),
	}
}

// Settings returns the per-request view of c that the dispatcher consumes.
func (c Config) Settings() dispatch.Settings {
	return dispatch.Settings{
		BotToken:      c.BotToken,
		App:           dispatch.AppDescriptor{ID: c.AppID},
		AllowRetry:    c.AllowRetry,
		ReplyFormat:   c.ReplyFormat,
		ReplyInThread: c.ReplyInThread,
	}
}

// Secrets returns the configured credentials keyed by setting name, for
// redaction.
func (c Config) Secrets() map[string]string {
	out := map[string]string{
		"bot_token":    c.BotToken,
		"dify_api_key": c.DifyAPIKey,
	}
	for app, key := range c.AppKeys {
		out["app_keys."+app] = key
	}
	return out
}
