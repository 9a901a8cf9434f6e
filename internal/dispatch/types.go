// Package dispatch turns one inbound Slack Events API callback into one HTTP
// response, consulting a backend app for an answer and posting it back to the
// conversation the event came from.
package dispatch

import (
	"context"
	"net/http"
	"time"
)

// Request is the inbound HTTP callback as seen by the dispatcher.
type Request struct {
	Header      http.Header
	Body        []byte
	ContentType string
}

// Response is what the HTTP layer writes back to Slack.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// AppDescriptor identifies the backend app that answers questions.
type AppDescriptor struct {
	ID string
}

// Reply formats.
const (
	FormatText   = "text"
	FormatMrkdwn = "mrkdwn"
)

// Settings is the read-only configuration consulted for a single request.
type Settings struct {
	BotToken      string
	App           AppDescriptor
	AllowRetry    bool
	ReplyFormat   string
	ReplyInThread bool
}

// Payload is the outer Events API envelope.
type Payload struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	EventID   string `json:"event_id"`
	TeamID    string `json:"team_id"`
	APIAppID  string `json:"api_app_id"`
	Event     *Event `json:"event"`
}

// Event is the inner event of an event_callback delivery.
type Event struct {
	Type        string  `json:"type"`
	Text        string  `json:"text"`
	Channel     string  `json:"channel"`
	ChannelType string  `json:"channel_type"`
	BotID       *string `json:"bot_id"`
	User        string  `json:"user"`
	TS          string  `json:"ts"`
	ThreadTS    string  `json:"thread_ts"`
}

// ResponseModeBlocking asks the app for a complete answer in one response.
const ResponseModeBlocking = "blocking"

// Invocation is a blocking question to the backend app.
type Invocation struct {
	AppID        string
	Query        string
	Inputs       map[string]any
	ResponseMode string
	User         string
}

// Answer is the backend app's reply. An empty Answer means the app returned none.
type Answer struct {
	Answer         string
	ConversationID string
	MessageID      string
}

// AppInvoker calls the backend conversational app.
type AppInvoker interface {
	Invoke(ctx context.Context, inv Invocation) (*Answer, error)
}

// OutboundMessage is a message to post to a Slack conversation.
type OutboundMessage struct {
	Channel  string
	Text     string
	ThreadTS string
	Format   string
}

// Messenger posts messages through the chat platform's API using token.
type Messenger interface {
	PostMessage(ctx context.Context, token string, msg OutboundMessage) error
}

// Delivery records how one callback was handled.
type Delivery struct {
	RequestID   string
	ReceivedAt  time.Time
	PayloadType string
	EventType   string
	Channel     string
	Outcome     string
	Status      int
	Detail      string
	RetryNum    int
}

// Observer is notified of every handled callback except URL verification.
type Observer interface {
	ObserveDelivery(ctx context.Context, d Delivery)
}

// Outcome codes recorded for each delivery.
const (
	OutcomeBadRequest      = "bad_request"
	OutcomeIgnored         = "ignored"
	OutcomeRetrySuppressed = "retry_suppressed"
	OutcomeNoEvent         = "no_event"
	OutcomeBotMessage      = "bot_message"
	OutcomeNotProcessable  = "not_processable"
	OutcomeMissingToken    = "missing_token"
	OutcomeMissingApp      = "missing_app"
	OutcomeBackendError    = "backend_error"
	OutcomeAPIError        = "api_error"
	OutcomeDeliveryFailed  = "delivery_failed"
	OutcomeSent            = "sent"
	OutcomePanic           = "panic"
)
