package api

import (
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/shelf/pkg/metrics"
	"github.com/papercomputeco/shelf/pkg/scanner"
)

const (
	// HeaderUserID names the user a request acts for.
	HeaderUserID = "X-User-ID"

	// HeaderSessionID names the stability session of a live scan.
	HeaderSessionID = "X-Session-ID"

	defaultBodyLimit = 12 << 20
)

// Server is the API server for scanning and shelving books.
type Server struct {
	config  Config
	scanner *scanner.Scanner
	logger  *slog.Logger
	app     *fiber.App
}

// NewServer creates a new API server around an already constructed scanner.
func NewServer(config Config, sc *scanner.Scanner, logger *slog.Logger) *Server {
	if config.BodyLimit <= 0 {
		config.BodyLimit = defaultBodyLimit
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             config.BodyLimit,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	s := &Server{
		config:  config,
		scanner: sc,
		logger:  logger,
		app:     app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	v1 := app.Group("/v1")
	v1.Post("/scan", s.requireUser, s.handleScan)
	v1.Post("/add", s.requireUser, s.handleAdd)
	v1.Post("/stable-scan", s.requireUser, s.handleStableScan)
	v1.Post("/capture", s.requireUser, s.handleCapture)
	v1.Post("/identify", s.handleIdentify)
	v1.Get("/owned", s.requireUser, s.handleOwned)
	v1.Post("/explain", s.handleExplain)
	v1.Get("/catalog/stats", s.handleCatalogStats)

	if config.MCPHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCPHandler))
	}

	return s
}

// App exposes the underlying fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
