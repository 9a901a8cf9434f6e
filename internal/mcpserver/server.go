// Package mcpserver implements an MCP (Model Context Protocol) server that
// lets operators inspect the delivery log and query the configured backend
// app as typed tools over stdio JSON-RPC.
package mcpserver

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/joestump/slackbridge/internal/config"
	"github.com/joestump/slackbridge/internal/db"
	"github.com/joestump/slackbridge/internal/dispatch"
)

// DeliveryStore is the read side of the delivery log.
type DeliveryStore interface {
	ListDeliveries(limit, offset int, outcome *string) ([]db.Delivery, error)
	CountDeliveries() (map[string]int, error)
}

// Server holds the MCP server state and configuration.
type Server struct {
	store DeliveryStore
	app   dispatch.AppInvoker
	appID string
}

// NewServer creates an MCP server. app may be nil, in which case ask_app is
// not offered.
func NewServer(store DeliveryStore, app dispatch.AppInvoker, appID string) *Server {
	return &Server{store: store, app: app, appID: appID}
}

func (s *Server) tools() []server.ServerTool {
	tools := []server.ServerTool{
		{Tool: listDeliveriesTool(), Handler: s.handleListDeliveries},
		{Tool: deliveryStatsTool(), Handler: s.handleDeliveryStats},
	}
	if s.app != nil {
		tools = append(tools, server.ServerTool{Tool: askAppTool(), Handler: s.handleAskApp})
	}
	return tools
}

// Run serves MCP over stdin/stdout. It blocks until ctx is cancelled or
// stdin is closed.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve serves MCP over the given streams.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	mcpServer := server.NewMCPServer(
		"slackbridge",
		config.Version,
		server.WithToolCapabilities(true),
	)
	mcpServer.AddTools(s.tools()...)

	stdio := server.NewStdioServer(mcpServer)
	stdio.SetErrorLogger(log.New(os.Stderr, "[mcp] ", log.LstdFlags))

	return stdio.Listen(ctx, in, out)
}
