package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/shelf/pkg/eventstream"
)

// MockPublisher records published book events.
type MockPublisher struct {
	mu     sync.Mutex
	events []*eventstream.BookSavedEvent

	// FailWith is returned from every publish when set.
	FailWith error

	Closed bool
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (p *MockPublisher) PublishBookSaved(_ context.Context, event *eventstream.BookSavedEvent) error {
	if event == nil {
		return eventstream.ErrNilBookEvent
	}
	if p.FailWith != nil {
		return p.FailWith
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (p *MockPublisher) Events() []*eventstream.BookSavedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*eventstream.BookSavedEvent, len(p.events))
	copy(out, p.events)
	return out
}

func (p *MockPublisher) Close() error {
	p.Closed = true
	return nil
}

var _ eventstream.Publisher = (*MockPublisher)(nil)
