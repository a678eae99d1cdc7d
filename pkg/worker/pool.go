// Package worker provides an asynchronous worker pool for post-commit work.
//
// The pool decouples event publishing from the request path so a slow or
// unreachable broker never delays a scan response.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/shelf/pkg/eventstream"
	"github.com/papercomputeco/shelf/pkg/metrics"
)

var (
	defaultNumWorkers     uint = 2
	defaultJobQueueSize   uint = 256
	defaultPublishTimeout      = 10 * time.Second
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Event *eventstream.BookSavedEvent
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher receives book events.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// PublishTimeout bounds a single publish (defaults to 10s).
	PublishTimeout time.Duration

	Logger *slog.Logger
}

// Pool processes jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, fmt.Errorf("worker pool requires a publisher")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.PublishTimeout <= 0 {
		c.PublishTimeout = defaultPublishTimeout
	}

	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is
// closed, resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed", "event_id", eventID(job))
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued", "event_id", eventID(job))
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped", "event_id", eventID(job))
		metrics.EventsPublished.WithLabelValues("dropped").Inc()
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob publishes the job's event. Failures are logged and counted but
// never retried; the commit they describe has already happened.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	err := p.config.Publisher.PublishBookSaved(ctx, job.Event)
	metrics.EventResult(err)
	if err != nil {
		p.logger.Error("book event publish failed",
			"event_id", eventID(job),
			"error", err,
		)
		return
	}

	p.logger.Debug("book event published",
		"event_id", job.Event.EventID,
		"user_id", job.Event.UserID,
		"title", job.Event.Book.Title,
	)
}

func eventID(job Job) string {
	if job.Event == nil {
		return ""
	}
	return job.Event.EventID
}
