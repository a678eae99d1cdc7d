// Package mcp provides an MCP (Model Context Protocol) server exposing the
// shelf scanner to agents.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/shelf/pkg/scanner"
	"github.com/papercomputeco/shelf/pkg/utils"
)

type Config struct {
	// Scanner answers every tool call
	Scanner *scanner.Scanner

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured slog logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the book tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "shelf",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Scanner == nil {
			return nil, errors.New("scanner is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        identifyToolName,
			Description: identifyDescription,
		}, s.handleIdentify)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        ownedToolName,
			Description: ownedDescription,
		}, s.handleOwned)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        explainToolName,
			Description: explainDescription,
		}, s.handleExplain)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        explainPhotoToolName,
			Description: explainPhotoDescription,
		}, s.handleExplainPhoto)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        statsToolName,
			Description: statsDescription,
		}, s.handleStats)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
