// Package stability debounces noisy per-frame detections into one confirmed
// title per scanning session.
package stability

import (
	"log/slog"
	"sync"
	"time"

	"github.com/papercomputeco/shelf/pkg/normalize"
	"github.com/papercomputeco/shelf/pkg/similarity"
)

const (
	// DefaultWindow is the number of recent observations considered.
	DefaultWindow = 5

	// DefaultQuorum is the number of agreeing observations needed to lock.
	DefaultQuorum = DefaultWindow - 1

	// DefaultIdleTimeout clears a session that has not been observed for
	// this long.
	DefaultIdleTimeout = 10 * time.Second
)

// State is the debounce state of one session.
type State string

const (
	StateEmpty        State = "empty"
	StateAccumulating State = "accumulating"
	StateLocked       State = "locked"
)

// Snapshot describes a session after an observation.
type Snapshot struct {
	State        State  `json:"state"`
	Title        string `json:"title,omitempty"`
	Observations int    `json:"observations"`
	Agreeing     int    `json:"agreeing"`
}

// Options configures a Tracker.
type Options struct {
	Window      int
	Quorum      int
	IdleTimeout time.Duration
	Matcher     similarity.Matcher
	Logger      *slog.Logger
	Now         func() time.Time
}

type key struct {
	user    string
	session string
}

type buffer struct {
	window   []string
	locked   string
	lastSeen time.Time
}

// Tracker holds one rolling window per (user, session).
type Tracker struct {
	window  int
	quorum  int
	idle    time.Duration
	matcher similarity.Matcher
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	buffers map[key]*buffer
}

// NewTracker creates a Tracker. Zero options take the defaults and a quorum
// larger than the window is clamped to it.
func NewTracker(opts Options) *Tracker {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Quorum <= 0 {
		opts.Quorum = max(opts.Window-1, 1)
	}
	opts.Quorum = min(opts.Quorum, opts.Window)
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Matcher == (similarity.Matcher{}) {
		opts.Matcher = similarity.DefaultMatcher()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Tracker{
		window:  opts.Window,
		quorum:  opts.Quorum,
		idle:    opts.IdleTimeout,
		matcher: opts.Matcher,
		logger:  opts.Logger,
		now:     opts.Now,
		buffers: make(map[key]*buffer),
	}
}

// SetMatcher swaps the equivalence policy used by later observations.
func (t *Tracker) SetMatcher(m similarity.Matcher) {
	if m == (similarity.Matcher{}) {
		m = similarity.DefaultMatcher()
	}
	t.mu.Lock()
	t.matcher = m
	t.mu.Unlock()
}

// Matcher returns the current equivalence policy.
func (t *Tracker) Matcher() similarity.Matcher {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.matcher
}

// Observe pushes a detected title into the session's window and re-evaluates
// its state. A title that normalizes to nothing is recorded as a miss and
// agrees with nothing.
func (t *Tracker) Observe(user, session, title string) Snapshot {
	now := t.now()
	k := key{user: user, session: session}

	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.buffers[k]
	if !ok || t.expired(b, now) {
		if ok {
			t.logger.Debug("stability session idle, resetting", "user_id", user, "session", session)
		}
		b = &buffer{window: make([]string, 0, t.window)}
		t.buffers[k] = b
	}
	b.lastSeen = now

	if len(b.window) == t.window {
		copy(b.window, b.window[1:])
		b.window = b.window[:t.window-1]
	}
	b.window = append(b.window, normalize.Normalize(title))

	rep, agreeing := t.evaluate(b.window)
	snap := Snapshot{
		State:        StateAccumulating,
		Observations: len(b.window),
		Agreeing:     agreeing,
	}

	if len(b.window) == t.window && agreeing >= t.quorum {
		if b.locked != rep {
			t.logger.Debug("stability locked", "user_id", user, "session", session, "title", rep)
		}
		b.locked = rep
		snap.State = StateLocked
		snap.Title = rep
	} else {
		b.locked = ""
	}
	return snap
}

// Confirm returns the locked title of the session. It reports false when the
// session is not locked or has gone idle.
func (t *Tracker) Confirm(user, session string) (string, bool) {
	k := key{user: user, session: session}

	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.buffers[k]
	if !ok {
		return "", false
	}
	if t.expired(b, t.now()) {
		delete(t.buffers, k)
		return "", false
	}
	return b.locked, b.locked != ""
}

// State reports the current state of the session without observing.
func (t *Tracker) State(user, session string) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.buffers[key{user: user, session: session}]
	switch {
	case !ok, t.expired(b, t.now()), len(b.window) == 0:
		return StateEmpty
	case b.locked != "":
		return StateLocked
	default:
		return StateAccumulating
	}
}

// Reset clears the session.
func (t *Tracker) Reset(user, session string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.buffers, key{user: user, session: session})
}

// Sweep drops every idle session and returns how many were dropped.
func (t *Tracker) Sweep() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	dropped := 0
	for k, b := range t.buffers {
		if t.expired(b, now) {
			delete(t.buffers, k)
			dropped++
		}
	}
	return dropped
}

// Len is the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffers)
}

func (t *Tracker) expired(b *buffer, now time.Time) bool {
	return now.Sub(b.lastSeen) > t.idle
}

// evaluate finds the largest cluster of observations equivalent to one
// center observation and returns its representative and size. Earlier
// centers win ties.
func (t *Tracker) evaluate(window []string) (string, int) {
	var (
		best     []string
		bestSize int
	)

	for _, center := range window {
		if center == "" {
			continue
		}
		var cluster []string
		for _, other := range window {
			if other != "" && t.matcher.Equivalent(center, other) {
				cluster = append(cluster, other)
			}
		}
		if len(cluster) > bestSize {
			best, bestSize = cluster, len(cluster)
		}
	}

	if bestSize == 0 {
		return "", 0
	}
	return representative(best), bestSize
}

// representative is the most frequent exact string of the cluster, earliest
// on ties.
func representative(cluster []string) string {
	counts := make(map[string]int, len(cluster))
	rep, repCount := "", 0
	for _, s := range cluster {
		counts[s]++
	}
	for _, s := range cluster {
		if counts[s] > repCount {
			rep, repCount = s, counts[s]
		}
	}
	return rep
}
