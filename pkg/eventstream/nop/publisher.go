package nop

import (
	"context"

	"github.com/papercomputeco/shelf/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishBookSaved validates input and otherwise does nothing.
func (p *Publisher) PublishBookSaved(_ context.Context, event *eventstream.BookSavedEvent) error {
	if event == nil {
		return eventstream.ErrNilBookEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}

var _ eventstream.Publisher = (*Publisher)(nil)
