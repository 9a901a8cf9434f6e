package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/joestump/slackbridge/internal/dispatch"
)

const (
	defaultDifyBaseURL = "https://api.dify.ai/v1"
	defaultDifyUser    = "slackbridge"
	maxErrorBody       = 2048
)

// Dify calls the chat-messages endpoint of a Dify-compatible app service.
// Each app is addressed by its own API key.
type Dify struct {
	baseURL string
	apiKey  string
	appKeys map[string]string
	client  *http.Client
}

// NewDify creates a Dify invoker. appKeys maps app ids to their API keys;
// apiKey is used for any app id not in the map.
func NewDify(baseURL, apiKey string, appKeys map[string]string, client *http.Client) *Dify {
	if baseURL == "" {
		baseURL = defaultDifyBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Dify{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		appKeys: appKeys,
		client:  client,
	}
}

type difyRequest struct {
	Inputs       map[string]any `json:"inputs"`
	Query        string         `json:"query"`
	ResponseMode string         `json:"response_mode"`
	User         string         `json:"user"`
}

type difyResponse struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

func (d *Dify) keyFor(appID string) string {
	if k := d.appKeys[appID]; k != "" {
		return k
	}
	return d.apiKey
}

// Invoke sends inv as a blocking chat message and returns the app's answer.
func (d *Dify) Invoke(ctx context.Context, inv dispatch.Invocation) (*dispatch.Answer, error) {
	key := d.keyFor(inv.AppID)
	if key == "" {
		return nil, fmt.Errorf("no API key configured for app %q", inv.AppID)
	}

	inputs := inv.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	mode := inv.ResponseMode
	if mode == "" {
		mode = dispatch.ResponseModeBlocking
	}
	user := inv.User
	if user == "" {
		user = defaultDifyUser
	}

	reqBody, err := json.Marshal(difyRequest{
		Inputs:       inputs,
		Query:        inv.Query,
		ResponseMode: mode,
		User:         user,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/chat-messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call app %s: %w", inv.AppID, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var out difyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return &dispatch.Answer{}, nil
		}
		return nil, fmt.Errorf("decode app response: %w", err)
	}
	return &dispatch.Answer{
		Answer:         out.Answer,
		ConversationID: out.ConversationID,
		MessageID:      out.MessageID,
	}, nil
}
