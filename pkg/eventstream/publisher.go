package eventstream

import "context"

// Publisher publishes book events to an event stream backend.
type Publisher interface {
	PublishBookSaved(ctx context.Context, event *BookSavedEvent) error
	Close() error
}
