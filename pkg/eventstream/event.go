package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeBookSaved is emitted after a book is saved to a user's shelf.
	EventTypeBookSaved = "shelf.book.saved"
)

// BookSavedEvent is a transport-neutral event payload for a saved book.
type BookSavedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	UserID        string      `json:"user_id"`
	Book          BookMeta    `json:"book"`
	Request       RequestMeta `json:"request"`
}

// BookMeta describes the saved book.
type BookMeta struct {
	Title        string  `json:"title"`
	NewToCatalog bool    `json:"new_to_catalog"`
	Match        string  `json:"match"`
	Confidence   float64 `json:"confidence"`
}

// RequestMeta captures which operation saved the book.
type RequestMeta struct {
	Operation string `json:"operation"`
	SessionID string `json:"session_id,omitempty"`
}

// NewBookSavedEvent stamps a BookSavedEvent with a fresh id and time.
func NewBookSavedEvent(userID string, book BookMeta, req RequestMeta, now time.Time) *BookSavedEvent {
	return &BookSavedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeBookSaved,
		EventID:       uuid.NewString(),
		EmittedAt:     now.UTC(),
		UserID:        userID,
		Book:          book,
		Request:       req,
	}
}
