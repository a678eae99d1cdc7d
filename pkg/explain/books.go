package explain

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/microcosm-cc/bluemonday"

	"github.com/papercomputeco/shelf/pkg/utils"
)

const (
	// DefaultBooksURL is the Google Books API root.
	DefaultBooksURL = "https://www.googleapis.com/books/v1"

	// MaxDescriptionChars caps the description handed to the model.
	MaxDescriptionChars = 1200
)

// ErrNotFound is returned when the metadata source knows no such book.
var ErrNotFound = errors.New("book metadata not found")

// Volume is the metadata of one book.
type Volume struct {
	Title         string   `json:"title"`
	Authors       []string `json:"authors,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	PageCount     int      `json:"page_count,omitempty"`
	Description   string   `json:"description,omitempty"`
}

// Books looks up book metadata.
type Books interface {
	Lookup(ctx context.Context, query string) (*Volume, error)
}

// GoogleBooks queries the Google Books volumes endpoint.
type GoogleBooks struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     *bluemonday.Policy
}

// NewGoogleBooks creates a Google Books client. An empty baseURL uses
// DefaultBooksURL.
func NewGoogleBooks(baseURL, apiKey string, timeout time.Duration) *GoogleBooks {
	if baseURL == "" {
		baseURL = DefaultBooksURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	policy := bluemonday.StrictPolicy()
	policy.AddSpaceWhenStrippingTag(true)

	return &GoogleBooks{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		policy:     policy,
	}
}

type volumesResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			Title         string   `json:"title"`
			Subtitle      string   `json:"subtitle"`
			Authors       []string `json:"authors"`
			Categories    []string `json:"categories"`
			PublishedDate string   `json:"publishedDate"`
			PageCount     int      `json:"pageCount"`
			Description   string   `json:"description"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// Lookup searches by title. A "Title - Author" query also constrains the
// author.
func (g *GoogleBooks) Lookup(ctx context.Context, query string) (*Volume, error) {
	q := searchQuery(query)
	if q == "" {
		return nil, ErrNotFound
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("maxResults", "1")
	params.Set("printType", "books")
	if g.apiKey != "" {
		params.Set("key", g.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/volumes?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating books request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying books: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("books returned status %d: %s", resp.StatusCode, string(body))
	}

	var vr volumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("decoding books response: %w", err)
	}
	if len(vr.Items) == 0 {
		return nil, ErrNotFound
	}

	info := vr.Items[0].VolumeInfo
	title := info.Title
	if info.Subtitle != "" {
		title += ": " + info.Subtitle
	}

	return &Volume{
		Title:         title,
		Authors:       info.Authors,
		Categories:    info.Categories,
		PublishedDate: info.PublishedDate,
		PageCount:     info.PageCount,
		Description:   g.cleanDescription(info.Description),
	}, nil
}

// cleanDescription strips markup and entities and caps the length.
func (g *GoogleBooks) cleanDescription(raw string) string {
	text := html.UnescapeString(g.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")
	return utils.Truncate(text, MaxDescriptionChars)
}

// searchQuery builds "intitle:T+inauthor:A" from "T - A", or "intitle:T".
func searchQuery(query string) string {
	title, author, found := strings.Cut(query, " - ")
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if title == "" {
		return ""
	}
	if found && author != "" {
		return "intitle:" + title + " inauthor:" + author
	}
	return "intitle:" + title
}
