package api

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/shelf/pkg/scanner"
)

// ErrorResponse is the body of every request error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// IdentifyRequest carries OCR text the client extracted itself.
type IdentifyRequest struct {
	Candidates []string `json:"candidates"`
}

// OwnedResponse answers GET /v1/owned.
type OwnedResponse struct {
	Title string `json:"title"`
	Owned bool   `json:"owned"`
}

// ExplainRequest asks about one book.
type ExplainRequest struct {
	Title    string `json:"title"`
	Question string `json:"question,omitempty"`
}

var errMissingImage = errors.New("image is required: send a multipart \"image\" field or a raw image body")

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// requireUser rejects requests without a user id.
func (s *Server) requireUser(c *fiber.Ctx) error {
	if strings.TrimSpace(c.Get(HeaderUserID)) == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: HeaderUserID + " header is required"})
	}
	return c.Next()
}

func userID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get(HeaderUserID))
}

func sessionID(c *fiber.Ctx) string {
	if id := strings.TrimSpace(c.Get(HeaderSessionID)); id != "" {
		return id
	}
	return scanner.DefaultSession
}

// image returns the uploaded image, either the multipart "image" field or
// the raw request body. The returned closer must be called.
func image(c *fiber.Ctx) (io.Reader, func(), error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, nil, errMissingImage
		}
		f, err := fh.Open()
		if err != nil {
			return nil, nil, err
		}
		return f, func() { f.Close() }, nil
	}

	body := c.Body()
	if len(body) == 0 {
		return nil, nil, errMissingImage
	}
	return bytes.NewReader(body), func() {}, nil
}

// result writes a scanner outcome. Only failed maps to a server error.
func (s *Server) result(c *fiber.Ctx, res scanner.Result) error {
	if res.Status == scanner.StatusFailed {
		return c.Status(fiber.StatusInternalServerError).JSON(res)
	}
	return c.JSON(res)
}

func (s *Server) withImage(c *fiber.Ctx, op func(r io.Reader) (scanner.Result, error)) error {
	r, closeImage, err := image(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}
	defer closeImage()

	res, err := op(r)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}
	return s.result(c, res)
}

// handleScan identifies a book and reports ownership. It never writes.
func (s *Server) handleScan(c *fiber.Ctx) error {
	return s.withImage(c, func(r io.Reader) (scanner.Result, error) {
		return s.scanner.Scan(c.UserContext(), userID(c), r)
	})
}

// handleAdd identifies a book and saves it to the user's shelf.
func (s *Server) handleAdd(c *fiber.Ctx) error {
	return s.withImage(c, func(r io.Reader) (scanner.Result, error) {
		return s.scanner.Add(c.UserContext(), userID(c), r)
	})
}

// handleStableScan feeds one live camera frame into the session.
func (s *Server) handleStableScan(c *fiber.Ctx) error {
	return s.withImage(c, func(r io.Reader) (scanner.Result, error) {
		return s.scanner.StableScan(c.UserContext(), userID(c), sessionID(c), r)
	})
}

// handleCapture commits the session's settled title.
func (s *Server) handleCapture(c *fiber.Ctx) error {
	res, err := s.scanner.Capture(c.UserContext(), userID(c), sessionID(c))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}
	return s.result(c, res)
}

// handleIdentify matches client supplied candidates. X-User-ID is optional.
func (s *Server) handleIdentify(c *fiber.Ctx) error {
	var req IdentifyRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if len(req.Candidates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "candidates are required"})
	}
	return s.result(c, s.scanner.Identify(c.UserContext(), userID(c), req.Candidates))
}

// handleOwned reports whether the user owns ?title=.
func (s *Server) handleOwned(c *fiber.Ctx) error {
	title := c.Query("title")
	if strings.TrimSpace(title) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "title query parameter is required"})
	}

	owned, err := s.scanner.Owned(c.UserContext(), userID(c), title)
	if err != nil {
		s.logger.Error("ownership lookup failed", "user_id", userID(c), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "ownership lookup failed"})
	}
	return c.JSON(OwnedResponse{Title: title, Owned: owned})
}

// handleExplain describes a book named in a JSON body, or the book in a
// photo sent as a multipart "image" field with an optional "question" field.
func (s *Server) handleExplain(c *fiber.Ctx) error {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		question := c.FormValue("question")
		return s.withImage(c, func(r io.Reader) (scanner.Result, error) {
			return s.scanner.ExplainImage(c.UserContext(), r, question)
		})
	}

	var req ExplainRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if strings.TrimSpace(req.Title) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "title is required"})
	}

	exp, err := s.scanner.Explain(c.UserContext(), req.Title, req.Question)
	if err != nil {
		s.logger.Error("explain failed", "title", req.Title, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "explain failed"})
	}
	return c.JSON(exp)
}

// handleCatalogStats summarizes the global catalog.
func (s *Server) handleCatalogStats(c *fiber.Ctx) error {
	stats, err := s.scanner.Stats(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to read catalog stats"})
	}
	return c.JSON(stats)
}
