package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/shelf/pkg/catalog"
	"github.com/papercomputeco/shelf/pkg/explain"
	"github.com/papercomputeco/shelf/pkg/scanner"
)

var (
	identifyToolName    = "identify_book"
	identifyDescription = "Match title text read from a book cover against the shelf catalog. Pass every line you read as a candidate; include user_id to also learn whether that user already owns the book."

	ownedToolName    = "check_owned"
	ownedDescription = "Check whether a user already has a book on their shelf. Titles are compared after normalization and OCR-tolerant fuzzy matching."

	explainToolName    = "explain_book"
	explainDescription = "Describe a book and answer an optional question about it, using public book metadata."

	explainPhotoToolName    = "explain_book_photo"
	explainPhotoDescription = "Identify the book in a base64 encoded cover or spine photo and answer an optional question about it. Books missing from the catalog are explained under the text read off the cover."

	statsToolName    = "catalog_stats"
	statsDescription = "Summarize the global book catalog: number of books, indexed vectors and the active match thresholds."
)

// IdentifyInput represents the input arguments for the identify tool.
type IdentifyInput struct {
	Candidates []string `json:"candidates" jsonschema:"title text candidates read from the cover"`
	UserID     string   `json:"user_id,omitempty" jsonschema:"optional user to check ownership for"`
}

// OwnedInput represents the input arguments for the check_owned tool.
type OwnedInput struct {
	UserID string `json:"user_id" jsonschema:"the user whose shelf to check"`
	Title  string `json:"title" jsonschema:"the book title"`
}

// OwnedOutput is the result of the check_owned tool.
type OwnedOutput struct {
	Title string `json:"title"`
	Owned bool   `json:"owned"`
}

// ExplainInput represents the input arguments for the explain tool.
type ExplainInput struct {
	Title    string `json:"title" jsonschema:"the book title, optionally followed by ' - author'"`
	Question string `json:"question,omitempty" jsonschema:"what to ask about the book"`
}

// ExplainPhotoInput represents the input arguments for the explain_book_photo tool.
type ExplainPhotoInput struct {
	Image    string `json:"image" jsonschema:"the photo as base64, optionally as a data URI"`
	Question string `json:"question,omitempty" jsonschema:"what to ask about the book"`
}

// StatsInput takes no arguments.
type StatsInput struct{}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

func (s *Server) handleIdentify(ctx context.Context, _ *mcp.CallToolRequest, input IdentifyInput) (*mcp.CallToolResult, scanner.Result, error) {
	s.config.Logger.Debug("MCP identify request", "candidates", len(input.Candidates))

	if len(input.Candidates) == 0 {
		return toolError("at least one candidate is required"), scanner.Result{}, nil
	}

	res := s.config.Scanner.Identify(ctx, input.UserID, input.Candidates)
	if res.Status == scanner.StatusFailed {
		return toolError("identify failed: %s", res.Error), scanner.Result{}, nil
	}
	return nil, res, nil
}

func (s *Server) handleOwned(ctx context.Context, _ *mcp.CallToolRequest, input OwnedInput) (*mcp.CallToolResult, OwnedOutput, error) {
	if strings.TrimSpace(input.UserID) == "" || strings.TrimSpace(input.Title) == "" {
		return toolError("user_id and title are required"), OwnedOutput{}, nil
	}

	owned, err := s.config.Scanner.Owned(ctx, input.UserID, input.Title)
	if err != nil {
		s.config.Logger.Error("MCP ownership lookup failed", "error", err)
		return toolError("Failed to check ownership: %v", err), OwnedOutput{}, nil
	}
	return nil, OwnedOutput{Title: input.Title, Owned: owned}, nil
}

func (s *Server) handleExplain(ctx context.Context, _ *mcp.CallToolRequest, input ExplainInput) (*mcp.CallToolResult, explain.Explanation, error) {
	if strings.TrimSpace(input.Title) == "" {
		return toolError("title is required"), explain.Explanation{}, nil
	}

	exp, err := s.config.Scanner.Explain(ctx, input.Title, input.Question)
	if err != nil {
		s.config.Logger.Error("MCP explain failed", "title", input.Title, "error", err)
		return toolError("Failed to explain book: %v", err), explain.Explanation{}, nil
	}
	return nil, *exp, nil
}

func (s *Server) handleExplainPhoto(ctx context.Context, _ *mcp.CallToolRequest, input ExplainPhotoInput) (*mcp.CallToolResult, scanner.Result, error) {
	encoded := strings.TrimSpace(input.Image)
	if _, data, ok := strings.Cut(encoded, ";base64,"); ok && strings.HasPrefix(encoded, "data:") {
		encoded = data
	}
	if encoded == "" {
		return toolError("image is required"), scanner.Result{}, nil
	}

	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return toolError("image is not valid base64: %v", err), scanner.Result{}, nil
	}

	res, err := s.config.Scanner.ExplainImage(ctx, bytes.NewReader(image), input.Question)
	if err != nil {
		return toolError("explain failed: %v", err), scanner.Result{}, nil
	}
	if res.Status == scanner.StatusFailed {
		s.config.Logger.Error("MCP photo explain failed", "error", res.Error)
		return toolError("explain failed: %s", res.Error), scanner.Result{}, nil
	}
	return nil, res, nil
}

func (s *Server) handleStats(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (*mcp.CallToolResult, catalog.Stats, error) {
	stats, err := s.config.Scanner.Stats(ctx)
	if err != nil {
		return toolError("Failed to read catalog stats: %v", err), catalog.Stats{}, nil
	}
	return nil, stats, nil
}
