package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/joestump/slackbridge/internal/db"
	"github.com/joestump/slackbridge/internal/dispatch"
)

// --- Mocks ---

type mockStore struct {
	rows        []db.Delivery
	counts      map[string]int
	err         error
	lastLimit   int
	lastOutcome *string
}

func (m *mockStore) ListDeliveries(limit, _ int, outcome *string) ([]db.Delivery, error) {
	m.lastLimit = limit
	m.lastOutcome = outcome
	return m.rows, m.err
}

func (m *mockStore) CountDeliveries() (map[string]int, error) {
	return m.counts, m.err
}

type mockApp struct {
	calls   int
	lastInv dispatch.Invocation
	answer  *dispatch.Answer
	err     error
}

func (m *mockApp) Invoke(_ context.Context, inv dispatch.Invocation) (*dispatch.Answer, error) {
	m.calls++
	m.lastInv = inv
	return m.answer, m.err
}

// --- Helpers ---

func makeRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("result content is %T, not TextContent", result.Content[0])
	}
	return tc.Text
}

// --- Tests ---

func TestToolsWithoutApp(t *testing.T) {
	s := NewServer(&mockStore{}, nil, "")
	var names []string
	for _, tool := range s.tools() {
		names = append(names, tool.Tool.Name)
	}
	if strings.Join(names, ",") != "list_deliveries,delivery_stats" {
		t.Fatalf("unexpected tools: %v", names)
	}

	s = NewServer(&mockStore{}, &mockApp{}, "app-1")
	if n := len(s.tools()); n != 3 {
		t.Fatalf("expected 3 tools with an app, got %d", n)
	}
}

func TestListDeliveries_Defaults(t *testing.T) {
	store := &mockStore{rows: []db.Delivery{
		{ID: 2, RequestID: "b", Outcome: "sent", Status: 200},
		{ID: 1, RequestID: "a", Outcome: "bot_message", Status: 200},
	}}
	s := NewServer(store, nil, "")

	result, err := s.handleListDeliveries(context.Background(), makeRequest("list_deliveries", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if store.lastLimit != defaultListLimit {
		t.Errorf("expected default limit %d, got %d", defaultListLimit, store.lastLimit)
	}
	if store.lastOutcome != nil {
		t.Errorf("expected no outcome filter, got %q", *store.lastOutcome)
	}

	var got []deliveryResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &got); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(got) != 2 || got[0].RequestID != "b" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestListDeliveries_FilterAndClamp(t *testing.T) {
	store := &mockStore{}
	s := NewServer(store, nil, "")

	_, err := s.handleListDeliveries(context.Background(), makeRequest("list_deliveries", map[string]any{
		"limit":   5000,
		"outcome": "api_error",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastLimit != maxListLimit {
		t.Errorf("expected limit clamped to %d, got %d", maxListLimit, store.lastLimit)
	}
	if store.lastOutcome == nil || *store.lastOutcome != "api_error" {
		t.Errorf("expected outcome filter api_error, got %v", store.lastOutcome)
	}
}

func TestListDeliveries_NegativeLimit(t *testing.T) {
	s := NewServer(&mockStore{}, nil, "")
	result, _ := s.handleListDeliveries(context.Background(), makeRequest("list_deliveries", map[string]any{"limit": -1}))
	if !result.IsError {
		t.Fatal("expected error for negative limit")
	}
}

func TestListDeliveries_StoreError(t *testing.T) {
	s := NewServer(&mockStore{err: errors.New("disk full")}, nil, "")
	result, _ := s.handleListDeliveries(context.Background(), makeRequest("list_deliveries", nil))
	if !result.IsError || !strings.Contains(resultText(t, result), "disk full") {
		t.Fatal("expected store error to surface as tool error")
	}
}

func TestDeliveryStats(t *testing.T) {
	s := NewServer(&mockStore{counts: map[string]int{"sent": 3}}, nil, "")
	result, err := s.handleDeliveryStats(context.Background(), makeRequest("delivery_stats", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := resultText(t, result); text != `{"sent":3}` {
		t.Fatalf("unexpected stats %s", text)
	}
}

func TestAskApp_Success(t *testing.T) {
	app := &mockApp{answer: &dispatch.Answer{Answer: "Paris", ConversationID: "c1"}}
	s := NewServer(&mockStore{}, app, "app-1")

	result, err := s.handleAskApp(context.Background(), makeRequest("ask_app", map[string]any{
		"query": "<@U0BOT> capital of France?",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if app.lastInv.Query != "capital of France?" {
		t.Errorf("expected mention stripped, got %q", app.lastInv.Query)
	}
	if app.lastInv.AppID != "app-1" || app.lastInv.ResponseMode != dispatch.ResponseModeBlocking || app.lastInv.User != mcpUser {
		t.Errorf("unexpected invocation: %+v", app.lastInv)
	}

	var got askAppResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &got); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if got.Answer != "Paris" || got.ConversationID != "c1" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestAskApp_EmptyQuery(t *testing.T) {
	app := &mockApp{}
	s := NewServer(&mockStore{}, app, "app-1")

	result, _ := s.handleAskApp(context.Background(), makeRequest("ask_app", map[string]any{"query": "  <@U1> "}))
	if !result.IsError {
		t.Fatal("expected error for empty query")
	}
	if app.calls != 0 {
		t.Fatal("app must not be invoked for an empty query")
	}
}

func TestAskApp_NoAppConfigured(t *testing.T) {
	app := &mockApp{}
	s := NewServer(&mockStore{}, app, "")

	result, _ := s.handleAskApp(context.Background(), makeRequest("ask_app", map[string]any{"query": "hi"}))
	if !result.IsError || !strings.Contains(resultText(t, result), "app_id") {
		t.Fatal("expected missing app error")
	}
	if app.calls != 0 {
		t.Fatal("app must not be invoked without an app id")
	}
}

func TestAskApp_AppError(t *testing.T) {
	s := NewServer(&mockStore{}, &mockApp{err: errors.New("upstream 502")}, "app-1")

	result, _ := s.handleAskApp(context.Background(), makeRequest("ask_app", map[string]any{"query": "hi", "user": "ops"}))
	if !result.IsError || !strings.Contains(resultText(t, result), "upstream 502") {
		t.Fatal("expected app error to surface as tool error")
	}
}

func TestAskApp_NilAnswer(t *testing.T) {
	s := NewServer(&mockStore{}, &mockApp{}, "app-1")

	result, _ := s.handleAskApp(context.Background(), makeRequest("ask_app", map[string]any{"query": "hi"}))
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if text := resultText(t, result); text != `{"answer":""}` {
		t.Fatalf("unexpected result %s", text)
	}
}
