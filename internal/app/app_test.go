package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joestump/slackbridge/internal/config"
	"github.com/joestump/slackbridge/internal/dispatch"
)

// difyTestServer mimics the chat-messages endpoint. It records the last
// request body and Authorization header.
type difyTestServer struct {
	*httptest.Server
	lastAuth string
	lastBody map[string]any
}

func newDifyTestServer(t *testing.T, status int, response string) *difyTestServer {
	t.Helper()
	s := &difyTestServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/chat-messages" {
			http.NotFound(w, r)
			return
		}
		s.lastAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&s.lastBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, response)
	}))
	t.Cleanup(s.Close)
	return s
}

func TestDifyInvokeSuccess(t *testing.T) {
	srv := newDifyTestServer(t, http.StatusOK, `{"answer":"Paris","conversation_id":"c1","message_id":"m1"}`)
	d := NewDify(srv.URL+"/v1/", "default-key", nil, srv.Client())

	ans, err := d.Invoke(context.Background(), dispatch.Invocation{
		AppID:        "app-1",
		Query:        "capital of France?",
		Inputs:       map[string]any{},
		ResponseMode: "blocking",
		User:         "U1",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if ans.Answer != "Paris" || ans.ConversationID != "c1" || ans.MessageID != "m1" {
		t.Fatalf("unexpected answer %+v", ans)
	}
	if srv.lastAuth != "Bearer default-key" {
		t.Fatalf("expected default key, got %q", srv.lastAuth)
	}
	if srv.lastBody["query"] != "capital of France?" || srv.lastBody["response_mode"] != "blocking" || srv.lastBody["user"] != "U1" {
		t.Fatalf("unexpected request body %v", srv.lastBody)
	}
	if inputs, ok := srv.lastBody["inputs"].(map[string]any); !ok || len(inputs) != 0 {
		t.Fatalf("expected empty inputs object, got %v", srv.lastBody["inputs"])
	}
}

func TestDifyUsesPerAppKey(t *testing.T) {
	srv := newDifyTestServer(t, http.StatusOK, `{"answer":"ok"}`)
	d := NewDify(srv.URL+"/v1", "default-key", map[string]string{"app-2": "app-2-key"}, srv.Client())

	if _, err := d.Invoke(context.Background(), dispatch.Invocation{AppID: "app-2", Query: "q"}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if srv.lastAuth != "Bearer app-2-key" {
		t.Fatalf("expected per-app key, got %q", srv.lastAuth)
	}
	if srv.lastBody["user"] != defaultDifyUser || srv.lastBody["response_mode"] != "blocking" {
		t.Fatalf("expected defaults to be filled, got %v", srv.lastBody)
	}
}

func TestDifyMissingAnswer(t *testing.T) {
	srv := newDifyTestServer(t, http.StatusOK, `{"conversation_id":"c1"}`)
	d := NewDify(srv.URL+"/v1", "k", nil, srv.Client())

	ans, err := d.Invoke(context.Background(), dispatch.Invocation{AppID: "a", Query: "q"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if ans.Answer != "" {
		t.Fatalf("expected empty answer, got %q", ans.Answer)
	}
}

func TestDifyStatusError(t *testing.T) {
	srv := newDifyTestServer(t, http.StatusBadRequest, `{"code":"invalid_param","message":"bad"}`)
	d := NewDify(srv.URL+"/v1", "k", nil, srv.Client())

	_, err := d.Invoke(context.Background(), dispatch.Invocation{AppID: "a", Query: "q"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.Status != http.StatusBadRequest || !strings.Contains(se.Body, "invalid_param") {
		t.Fatalf("unexpected status error %+v", se)
	}
	if !strings.Contains(se.Error(), "400") {
		t.Fatalf("expected error message to mention 400, got %q", se.Error())
	}
}

func TestDifyNoKey(t *testing.T) {
	d := NewDify("http://127.0.0.1:1", "", nil, nil)
	if _, err := d.Invoke(context.Background(), dispatch.Invocation{AppID: "a", Query: "q"}); err == nil {
		t.Fatal("expected error without an API key")
	}
}

func TestAnthropicInvoke(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-haiku-4-5-20251001",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []map[string]any{{"type": "text", "text": "Hello from the model"}},
			"usage":         map[string]any{"input_tokens": 5, "output_tokens": 4},
		})
	}))
	defer srv.Close()

	a := NewAnthropic("", "", 0,
		option.WithBaseURL(srv.URL+"/"),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	ans, err := a.Invoke(context.Background(), dispatch.Invocation{AppID: "a", Query: "hi"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if ans.Answer != "Hello from the model" || ans.MessageID != "msg_test" {
		t.Fatalf("unexpected answer %+v", ans)
	}
	if gotBody["model"] != defaultAnthropicModel {
		t.Fatalf("expected default model, got %v", gotBody["model"])
	}
}

func TestNewSelectsBackend(t *testing.T) {
	inv, err := New(config.Config{Backend: "dify", DifyAPIKey: "k"})
	if err != nil {
		t.Fatalf("New(dify): %v", err)
	}
	if _, ok := inv.(*Dify); !ok {
		t.Fatalf("expected *Dify, got %T", inv)
	}

	inv, err = New(config.Config{Backend: "anthropic"})
	if err != nil {
		t.Fatalf("New(anthropic): %v", err)
	}
	if _, ok := inv.(*Anthropic); !ok {
		t.Fatalf("expected *Anthropic, got %T", inv)
	}

	if _, err := New(config.Config{Backend: "openai"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
