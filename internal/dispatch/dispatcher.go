package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack/slackevents"
)

// Fixed texts posted back to Slack users.
const (
	fallbackAnswer  = "Sorry, I could not find an answer to that."
	genericErrorMsg = "Sorry, something went wrong while answering your message. Please try again later."
	configErrorMsg  = "This bot is not configured yet: no app has been selected. Please ask an administrator to set one up."
)

// Retry headers Slack attaches to redelivered callbacks.
const (
	headerRetryNum     = "X-Slack-Retry-Num"
	headerRetryReason  = "X-Slack-Retry-Reason"
	retryReasonTimeout = "http_timeout"
)

// codedError is satisfied by messaging API errors that carry a platform error code.
type codedError interface {
	error
	ErrorCode() string
}

// Dispatcher handles Slack Events API callbacks. It keeps no per-request state
// and is safe for concurrent use when its collaborators are.
type Dispatcher struct {
	app       AppInvoker
	messenger Messenger
	observer  Observer
	now       func() time.Time
	newID     func() string
}

// Option configures optional Dispatcher features.
type Option func(*Dispatcher)

// WithObserver reports every handled delivery to o.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithClock overrides the time source used for delivery records.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher that answers with app and replies through messenger.
func New(app AppInvoker, messenger Messenger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		app:       app,
		messenger: messenger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// delivery is the state carried through the guard chain for one request.
type delivery struct {
	ctx          context.Context
	req          Request
	settings     Settings
	payload      Payload
	message      string
	verification bool
	record       Delivery
}

// finish sets the outcome of the delivery and builds a plain-text response.
func (dl *delivery) finish(outcome string, status int, body string) *Response {
	dl.record.Outcome = outcome
	dl.record.Status = status
	if dl.record.Detail == "" {
		dl.record.Detail = body
	}
	return &Response{
		Status:      status,
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(body),
	}
}

// guard is one step of the ordered chain. A non-nil response ends the chain.
type guard struct {
	name  string
	check func(d *Dispatcher, dl *delivery) *Response
}

// guards run top to bottom. URL verification precedes retry suppression so a
// redelivered handshake still succeeds.
var guards = []guard{
	{"body", (*Dispatcher).requireBody},
	{"parse", (*Dispatcher).parsePayload},
	{"url_verification", (*Dispatcher).answerChallenge},
	{"callback_type", (*Dispatcher).ignoreForeignTypes},
	{"retry", (*Dispatcher).suppressRetries},
	{"event", (*Dispatcher).requireEvent},
	{"bot", (*Dispatcher).dropBotEvents},
	{"extract", (*Dispatcher).extractMessage},
	{"token", (*Dispatcher).requireToken},
	{"app", (*Dispatcher).requireApp},
}

// Handle produces exactly one response for req. It never panics: failures of
// every kind are logged and turned into a response, almost always a 200 so
// Slack does not redeliver.
func (d *Dispatcher) Handle(ctx context.Context, req Request, settings Settings) (resp Response) {
	dl := &delivery{
		ctx:      ctx,
		req:      req,
		settings: settings,
		record: Delivery{
			RequestID:  d.newID(),
			ReceivedAt: d.now().UTC(),
			RetryNum:   retryNum(req.Header),
		},
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch: %s: recovered panic: %v\n%s", dl.record.RequestID, r, debug.Stack())
			dl.record.Detail = fmt.Sprintf("panic: %v", r)
			resp = *dl.finish(OutcomePanic, http.StatusOK, "ok, internal error")
		}
		if !dl.verification {
			d.observe(ctx, dl.record)
		}
	}()

	log.Printf("dispatch: %s: received %d bytes (content-type %q, retry %d)",
		dl.record.RequestID, len(req.Body), req.ContentType, dl.record.RetryNum)

	for _, g := range guards {
		if r := g.check(d, dl); r != nil {
			log.Printf("dispatch: %s: stopped at %s guard: %d %s", dl.record.RequestID, g.name, r.Status, r.Body)
			return *r
		}
	}
	return *d.answer(dl)
}

func (d *Dispatcher) requireBody(dl *delivery) *Response {
	if len(dl.req.Body) == 0 {
		log.Printf("dispatch: %s: empty body", dl.record.RequestID)
		return dl.finish(OutcomeBadRequest, http.StatusBadRequest, "Bad Request: Empty body")
	}
	return nil
}

func (d *Dispatcher) parsePayload(dl *delivery) *Response {
	payload, err := decodePayload(dl.req.Body)
	switch {
	case errors.Is(err, errNotObject):
		// Well-formed but unusable; falls through to the foreign type guard.
		log.Printf("dispatch: %s: %v", dl.record.RequestID, err)
		dl.record.Detail = err.Error()
	case err != nil:
		log.Printf("dispatch: %s: invalid JSON: %v", dl.record.RequestID, err)
		dl.record.Detail = "invalid JSON: " + err.Error()
		return dl.finish(OutcomeBadRequest, http.StatusBadRequest, "Bad Request: Invalid JSON")
	}
	dl.payload = payload
	dl.record.PayloadType = dl.payload.Type
	if ev := dl.payload.Event; ev != nil {
		dl.record.EventType = ev.Type
		dl.record.Channel = ev.Channel
	}
	return nil
}

func (d *Dispatcher) answerChallenge(dl *delivery) *Response {
	if dl.payload.Type != string(slackevents.URLVerification) {
		return nil
	}
	dl.verification = true
	if dl.payload.Challenge == "" {
		log.Printf("dispatch: %s: url_verification without challenge", dl.record.RequestID)
		return dl.finish(OutcomeBadRequest, http.StatusBadRequest, "Bad Request: Missing 'challenge' parameter")
	}
	body, err := encodeChallenge(dl.payload.Challenge)
	if err != nil {
		return dl.finish(OutcomeBadRequest, http.StatusBadRequest, "Bad Request: Invalid challenge")
	}
	dl.record.Outcome = "challenge"
	dl.record.Status = http.StatusOK
	return &Response{Status: http.StatusOK, ContentType: "application/json", Body: body}
}

// encodeChallenge renders {"challenge":c} without escaping c, so the echoed
// value is byte-identical to what Slack sent.
func encodeChallenge(c string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(struct {
		Challenge string `json:"challenge"`
	}{c}); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (d *Dispatcher) ignoreForeignTypes(dl *delivery) *Response {
	if dl.payload.Type != string(slackevents.CallbackEvent) {
		return dl.finish(OutcomeIgnored, http.StatusOK, "ok, ignored (not event_callback)")
	}
	return nil
}

func (d *Dispatcher) suppressRetries(dl *delivery) *Response {
	if dl.settings.AllowRetry || !isRetry(dl.req.Header) {
		return nil
	}
	log.Printf("dispatch: %s: ignoring retry (num=%q reason=%q)", dl.record.RequestID,
		dl.req.Header.Get(headerRetryNum), dl.req.Header.Get(headerRetryReason))
	return dl.finish(OutcomeRetrySuppressed, http.StatusOK, "ok, retry ignored")
}

func (d *Dispatcher) requireEvent(dl *delivery) *Response {
	if dl.payload.Event == nil {
		return dl.finish(OutcomeNoEvent, http.StatusOK, "ok")
	}
	return nil
}

func (d *Dispatcher) dropBotEvents(dl *delivery) *Response {
	if bot := dl.payload.Event.BotID; bot != nil {
		log.Printf("dispatch: %s: ignoring event from bot %q", dl.record.RequestID, *bot)
		return dl.finish(OutcomeBotMessage, http.StatusOK, "ok, bot message ignored")
	}
	return nil
}

func (d *Dispatcher) extractMessage(dl *delivery) *Response {
	ev := dl.payload.Event
	dl.message = ExtractMessage(ev)
	if dl.message == "" {
		log.Printf("dispatch: %s: nothing to answer in %s event (channel_type %q)",
			dl.record.RequestID, ev.Type, ev.ChannelType)
		return dl.finish(OutcomeNotProcessable, http.StatusOK, "ok")
	}
	return nil
}

func (d *Dispatcher) requireToken(dl *delivery) *Response {
	if strings.TrimSpace(dl.settings.BotToken) == "" {
		log.Printf("dispatch: %s: bot token is not configured; cannot reply", dl.record.RequestID)
		return dl.finish(OutcomeMissingToken, http.StatusOK, "ok, missing token")
	}
	return nil
}

func (d *Dispatcher) requireApp(dl *delivery) *Response {
	if strings.TrimSpace(dl.settings.App.ID) == "" {
		log.Printf("dispatch: %s: app id is not configured", dl.record.RequestID)
		d.notify(dl, configErrorMsg)
		return dl.finish(OutcomeMissingApp, http.StatusOK, "ok, missing app id")
	}
	return nil
}

// answer asks the backend app and posts its answer to the event's channel.
func (d *Dispatcher) answer(dl *delivery) *Response {
	ev := dl.payload.Event
	ans, err := d.invoke(dl.ctx, Invocation{
		AppID:        dl.settings.App.ID,
		Query:        dl.message,
		Inputs:       map[string]any{},
		ResponseMode: ResponseModeBlocking,
		User:         ev.User,
	})
	if err != nil {
		log.Printf("dispatch: %s: app %s failed: %v", dl.record.RequestID, dl.settings.App.ID, err)
		dl.record.Detail = err.Error()
		d.notify(dl, genericErrorMsg)
		return dl.finish(OutcomeBackendError, http.StatusOK, "ok, internal error")
	}

	text := fallbackAnswer
	if ans != nil && strings.TrimSpace(ans.Answer) != "" {
		text = ans.Answer
	}

	format := dl.settings.ReplyFormat
	if format == "" {
		format = FormatText
	}
	err = d.messenger.PostMessage(dl.ctx, dl.settings.BotToken, OutboundMessage{
		Channel:  ev.Channel,
		Text:     text,
		ThreadTS: replyThread(dl),
		Format:   format,
	})
	if err != nil {
		dl.record.Detail = err.Error()
		var coded codedError
		if errors.As(err, &coded) {
			log.Printf("dispatch: %s: messaging API error %q posting to %s", dl.record.RequestID, coded.ErrorCode(), ev.Channel)
			return dl.finish(OutcomeAPIError, http.StatusOK, "ok, api error")
		}
		log.Printf("dispatch: %s: posting to %s failed: %v", dl.record.RequestID, ev.Channel, err)
		return dl.finish(OutcomeDeliveryFailed, http.StatusOK, "ok, delivery failed")
	}

	log.Printf("dispatch: %s: answered in %s (%d chars)", dl.record.RequestID, ev.Channel, len(text))
	return dl.finish(OutcomeSent, http.StatusOK, "ok, message sent")
}

// invoke calls the app, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, inv Invocation) (ans *Answer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("app invoker panicked: %v", r)
		}
	}()
	return d.app.Invoke(ctx, inv)
}

// notify posts text to the event's channel. Failures are logged and discarded.
func (d *Dispatcher) notify(dl *delivery, text string) {
	ev := dl.payload.Event
	if ev == nil || ev.Channel == "" || strings.TrimSpace(dl.settings.BotToken) == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch: %s: notification panicked: %v", dl.record.RequestID, r)
		}
	}()
	err := d.messenger.PostMessage(dl.ctx, dl.settings.BotToken, OutboundMessage{
		Channel:  ev.Channel,
		Text:     text,
		ThreadTS: replyThread(dl),
		Format:   FormatText,
	})
	if err != nil {
		log.Printf("dispatch: %s: notification to %s failed: %v", dl.record.RequestID, ev.Channel, err)
	}
}

func (d *Dispatcher) observe(ctx context.Context, rec Delivery) {
	if d.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch: %s: observer panicked: %v", rec.RequestID, r)
		}
	}()
	d.observer.ObserveDelivery(ctx, rec)
}

func replyThread(dl *delivery) string {
	if !dl.settings.ReplyInThread {
		return ""
	}
	ev := dl.payload.Event
	if ev.ThreadTS != "" {
		return ev.ThreadTS
	}
	return ev.TS
}

// isRetry reports whether h marks a redelivery Slack made after a failure.
func isRetry(h http.Header) bool {
	if h.Get(headerRetryReason) == retryReasonTimeout {
		return true
	}
	return retryNum(h) > 0
}

func retryNum(h http.Header) int {
	n, err := strconv.Atoi(strings.TrimSpace(h.Get(headerRetryNum)))
	if err != nil {
		return 0
	}
	return n
}
