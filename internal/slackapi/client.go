// Package slackapi posts messages to Slack through the Web API.
package slackapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/joestump/slackbridge/internal/dispatch"
	"github.com/joestump/slackbridge/internal/mrkdwn"
)

const (
	defaultAPIURL = "https://slack.com/api/"
	maxAttempts   = 3
	baseDelay     = 200 * time.Millisecond

	// maxSectionText is Slack's limit on a section block's text.
	maxSectionText = 3000
)

// APIError is a Slack Web API error response (ok=false).
type APIError struct {
	Code string
}

func (e *APIError) Error() string {
	return "slack API error: " + e.Code
}

// ErrorCode returns Slack's error code, e.g. "channel_not_found".
func (e *APIError) ErrorCode() string {
	return e.Code
}

// Client posts messages on behalf of whichever bot token the caller supplies.
type Client struct {
	apiURL string
	hc     *http.Client
	wait   func(ctx context.Context, d time.Duration) error
}

// New creates a Client. An empty apiURL means the public Slack API.
func New(apiURL string, hc *http.Client) *Client {
	apiURL = strings.TrimSpace(apiURL)
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/") + "/",
		hc:     hc,
		wait:   sleepContext,
	}
}

// PostMessage sends msg with chat.postMessage. Rate-limited calls are retried
// after the delay Slack asks for, unless ctx ends first.
func (c *Client) PostMessage(ctx context.Context, token string, msg dispatch.OutboundMessage) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("missing bot token")
	}
	api := slack.New(token, slack.OptionHTTPClient(c.hc), slack.OptionAPIURL(c.apiURL))
	opts := messageOptions(msg)

	return withRetry(ctx, maxAttempts, baseDelay, c.wait, func() (time.Duration, bool, error) {
		_, _, err := api.PostMessageContext(ctx, msg.Channel, opts...)
		return retryDecision(err)
	})
}

func messageOptions(msg dispatch.OutboundMessage) []slack.MsgOption {
	var opts []slack.MsgOption
	if msg.Format == dispatch.FormatMrkdwn {
		converted := mrkdwn.Convert(msg.Text)
		if len(converted) > maxSectionText {
			// Too long for a section block; the text field is rendered as mrkdwn too.
			opts = append(opts, slack.MsgOptionText(converted, false))
		} else {
			section := slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, converted, false, false), nil, nil)
			// The text field stays as the notification fallback.
			opts = append(opts, slack.MsgOptionText(msg.Text, false), slack.MsgOptionBlocks(section))
		}
	} else {
		opts = append(opts, slack.MsgOptionText(msg.Text, false))
	}
	if ts := strings.TrimSpace(msg.ThreadTS); ts != "" {
		opts = append(opts, slack.MsgOptionTS(ts))
	}
	return opts
}

// retryDecision classifies err. A rate-limited call is retryable after the
// returned delay; zero means use the backoff schedule.
func retryDecision(err error) (time.Duration, bool, error) {
	if err == nil {
		return 0, false, nil
	}
	var rle *slack.RateLimitedError
	if errors.As(err, &rle) && rle != nil {
		return rle.RetryAfter, true, err
	}
	var ser slack.SlackErrorResponse
	if errors.As(err, &ser) {
		return 0, false, &APIError{Code: ser.Err}
	}
	return 0, false, err
}

func withRetry(ctx context.Context, attempts int, baseDelay time.Duration,
	wait func(context.Context, time.Duration) error,
	fn func() (retryAfter time.Duration, retryable bool, err error)) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		retryAfter, retryable, err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || i == attempts-1 {
			break
		}
		delay := retryAfter
		if delay <= 0 {
			delay = baseDelay * time.Duration(1<<i)
		}
		log.Printf("slackapi: attempt %d failed, retrying in %s: %v", i+1, delay, err)
		if werr := wait(ctx, delay); werr != nil {
			return errors.Join(lastErr, werr)
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
