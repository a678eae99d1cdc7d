package eventstream

import "errors"

// ErrNilBookEvent indicates a nil book event payload was provided to a publisher.
var ErrNilBookEvent = errors.New("nil book event")
