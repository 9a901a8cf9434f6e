package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/joestump/slackbridge/internal/dispatch"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
	mcpUser          = "slackbridge-mcp"
)

// --- Tool Definitions ---

func listDeliveriesTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"list_deliveries",
		"List recent Slack callbacks handled by the bridge, newest first, with the outcome of each.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {
					"type": "integer",
					"description": "Maximum number of deliveries to return (default 20, max 200)"
				},
				"outcome": {
					"type": "string",
					"description": "Only return deliveries with this outcome (e.g. sent, bot_message, retry_suppressed, api_error)"
				}
			}
		}`),
	)
}

func deliveryStatsTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"delivery_stats",
		"Count stored deliveries per outcome.",
		json.RawMessage(`{"type": "object", "properties": {}}`),
	)
}

func askAppTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"ask_app",
		"Ask the configured backend app a question and return its answer, exactly as a Slack mention would.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "The question to ask"
				},
				"user": {
					"type": "string",
					"description": "End-user identifier passed to the app (optional)"
				}
			},
			"required": ["query"]
		}`),
	)
}

// --- Tool Handlers ---

type listDeliveriesArgs struct {
	Limit   int    `json:"limit"`
	Outcome string `json:"outcome"`
}

type deliveryResult struct {
	ID          int64  `json:"id"`
	RequestID   string `json:"request_id"`
	ReceivedAt  string `json:"received_at"`
	PayloadType string `json:"payload_type,omitempty"`
	EventType   string `json:"event_type,omitempty"`
	Channel     string `json:"channel,omitempty"`
	Outcome     string `json:"outcome"`
	Status      int    `json:"status"`
	Detail      string `json:"detail,omitempty"`
	RetryNum    int    `json:"retry_num,omitempty"`
}

func (s *Server) handleListDeliveries(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args listDeliveriesArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Limit < 0 {
		return mcp.NewToolResultError("limit must be non-negative"), nil
	}
	if args.Limit == 0 {
		args.Limit = defaultListLimit
	}
	if args.Limit > maxListLimit {
		args.Limit = maxListLimit
	}

	var outcome *string
	if args.Outcome != "" {
		outcome = &args.Outcome
	}

	rows, err := s.store.ListDeliveries(args.Limit, 0, outcome)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list deliveries: %v", err)), nil
	}

	out := make([]deliveryResult, len(rows))
	for i, r := range rows {
		out[i] = deliveryResult{
			ID:          r.ID,
			RequestID:   r.RequestID,
			ReceivedAt:  r.ReceivedAt,
			PayloadType: r.PayloadType,
			EventType:   r.EventType,
			Channel:     r.Channel,
			Outcome:     r.Outcome,
			Status:      r.Status,
			Detail:      r.Detail,
			RetryNum:    r.RetryNum,
		}
	}
	return resultJSON(out)
}

func (s *Server) handleDeliveryStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	counts, err := s.store.CountDeliveries()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("count deliveries: %v", err)), nil
	}
	return resultJSON(counts)
}

type askAppArgs struct {
	Query string `json:"query"`
	User  string `json:"user"`
}

type askAppResult struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

func (s *Server) handleAskApp(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args askAppArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	query := strings.TrimSpace(dispatch.StripMentions(args.Query))
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	if strings.TrimSpace(s.appID) == "" {
		return mcp.NewToolResultError("no app is configured (set app_id)"), nil
	}
	user := args.User
	if user == "" {
		user = mcpUser
	}

	ans, err := s.app.Invoke(ctx, dispatch.Invocation{
		AppID:        s.appID,
		Query:        query,
		Inputs:       map[string]any{},
		ResponseMode: dispatch.ResponseModeBlocking,
		User:         user,
	})
	if err != nil {
		log.Printf("mcp: ask_app failed: %v", err)
		return mcp.NewToolResultError(fmt.Sprintf("app %s: %v", s.appID, err)), nil
	}
	if ans == nil {
		ans = &dispatch.Answer{}
	}
	return resultJSON(askAppResult{
		Answer:         ans.Answer,
		ConversationID: ans.ConversationID,
		MessageID:      ans.MessageID,
	})
}

// resultJSON marshals v to JSON and returns it as a tool result.
func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
