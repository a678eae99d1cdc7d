// Package api provides the HTTP API over the shelf scanner.
package api

import "net/http"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// BodyLimit caps a request body in bytes. Uploads above the scanner's
	// own cap are answered with invalid_image, so this only needs headroom
	// for multipart framing.
	BodyLimit int

	// MCPHandler is mounted at /mcp when set.
	MCPHandler http.Handler
}
