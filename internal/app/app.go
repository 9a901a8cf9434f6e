// Package app implements the backend conversational apps the bridge forwards
// Slack messages to.
package app

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joestump/slackbridge/internal/config"
	"github.com/joestump/slackbridge/internal/dispatch"
)

// New returns the invoker selected by cfg.Backend.
func New(cfg config.Config) (dispatch.AppInvoker, error) {
	hc := &http.Client{Timeout: cfg.BackendTimeout}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", config.BackendDify:
		return NewDify(cfg.DifyBaseURL, cfg.DifyAPIKey, cfg.AppKeys, hc), nil
	case config.BackendAnthropic:
		return NewAnthropic(cfg.AnthropicModel, cfg.SystemPrompt, cfg.MaxTokens, option.WithHTTPClient(hc)), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want %s or %s)", cfg.Backend, config.BackendDify, config.BackendAnthropic)
	}
}

// StatusError is returned when an app API responds with a non-2xx status.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("app API error (HTTP %d %s): %s", e.Status, http.StatusText(e.Status), e.Body)
}
