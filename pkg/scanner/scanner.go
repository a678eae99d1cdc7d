// Package scanner runs the book identification pipeline behind the API:
// photo → OCR candidates → catalog match → ownership check or commit.
//
// Every operation answers with a Result whose Status the client acts on.
// Inference is capped process-wide; a call that cannot get a slot answers
// ai_busy at once instead of queueing.
package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/papercomputeco/shelf/pkg/breaker"
	"github.com/papercomputeco/shelf/pkg/catalog"
	"github.com/papercomputeco/shelf/pkg/eventstream"
	"github.com/papercomputeco/shelf/pkg/explain"
	"github.com/papercomputeco/shelf/pkg/match"
	"github.com/papercomputeco/shelf/pkg/metrics"
	"github.com/papercomputeco/shelf/pkg/ocr"
	"github.com/papercomputeco/shelf/pkg/ownership"
	"github.com/papercomputeco/shelf/pkg/stability"
	"github.com/papercomputeco/shelf/pkg/storage"
	"github.com/papercomputeco/shelf/pkg/worker"
)

const (
	// DefaultTimeout bounds one inference pipeline.
	DefaultTimeout = 12 * time.Second

	// DefaultMaxConcurrent is the number of pipelines run at once.
	DefaultMaxConcurrent = 2

	// DefaultSession is used when the client sends no session id.
	DefaultSession = "default"
)

// Catalog is the global book catalog the scanner reads and extends.
type Catalog interface {
	match.Matcher
	Insert(ctx context.Context, title string) (catalog.Insertion, error)
	Stats(ctx context.Context) (catalog.Stats, error)
}

// Explainer answers questions about a book.
type Explainer interface {
	Explain(ctx context.Context, title, question string) (*explain.Explanation, error)
}

// Jobs receives post-commit work.
type Jobs interface {
	Enqueue(job worker.Job) bool
}

// Options configures a Scanner.
type Options struct {
	Catalog   Catalog
	Ledger    *ownership.Ledger
	Tracker   *stability.Tracker
	Extractor ocr.Extractor

	// Explainer and Jobs are optional.
	Explainer Explainer
	Jobs      Jobs

	MaxConcurrent  int64
	Timeout        time.Duration
	MaxUploadBytes int64
	TempDir        string

	Logger *slog.Logger
	Now    func() time.Time
}

// Scanner is safe for concurrent use.
type Scanner struct {
	catalog   Catalog
	engine    *match.Engine
	ledger    *ownership.Ledger
	tracker   *stability.Tracker
	extractor ocr.Extractor
	explainer Explainer
	jobs      Jobs

	sem       *semaphore.Weighted
	timeout   time.Duration
	maxUpload int64
	tempDir   string

	logger *slog.Logger
	now    func() time.Time
}

// New creates a Scanner.
func New(opts Options) *Scanner {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Scanner{
		catalog:   opts.Catalog,
		engine:    match.NewEngine(opts.Catalog, opts.Logger),
		ledger:    opts.Ledger,
		tracker:   opts.Tracker,
		extractor: opts.Extractor,
		explainer: opts.Explainer,
		jobs:      opts.Jobs,
		sem:       semaphore.NewWeighted(opts.MaxConcurrent),
		timeout:   opts.Timeout,
		maxUpload: opts.MaxUploadBytes,
		tempDir:   opts.TempDir,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// Scan identifies the book in image and reports whether the user owns it.
// It never changes the catalog or the user's shelf.
func (s *Scanner) Scan(ctx context.Context, user string, image io.Reader) (Result, error) {
	if user == "" {
		return Result{}, storage.ErrEmptyUser
	}

	res := s.run(ctx, OpScan, image, func(ctx context.Context, img Image) Result {
		d, res, ok := s.identify(ctx, img)
		if !ok {
			return res
		}
		if d.Status == match.StatusUnknown {
			return Result{Status: StatusNotFound, Candidate: d.Candidate, Match: d.Status, Confidence: d.Confidence}
		}

		owned, err := s.ledger.HasBook(ctx, user, d.Title)
		if err != nil {
			return s.fail(OpScan, err)
		}
		status := StatusFound
		if owned {
			status = StatusOwned
		}
		return decided(status, d)
	})
	return res, nil
}

// Add identifies the book in image, cataloging it if it is new, and saves
// it to the user's shelf.
func (s *Scanner) Add(ctx context.Context, user string, image io.Reader) (Result, error) {
	if user == "" {
		return Result{}, storage.ErrEmptyUser
	}

	res := s.run(ctx, OpAdd, image, func(ctx context.Context, img Image) Result {
		d, res, ok := s.identify(ctx, img)
		if !ok {
			return res
		}
		return s.commit(ctx, OpAdd, user, "", d)
	})
	return res, nil
}

// StableScan feeds one camera frame into the user's session and reports
// whether the session has settled on a title.
func (s *Scanner) StableScan(ctx context.Context, user, session string, image io.Reader) (Result, error) {
	if user == "" {
		return Result{}, storage.ErrEmptyUser
	}
	if session == "" {
		session = DefaultSession
	}

	res := s.run(ctx, OpStableScan, image, func(ctx context.Context, img Image) Result {
		d, res, ok := s.identify(ctx, img)
		if !ok && res.Status != StatusNotFound {
			return res
		}

		observed := ""
		switch {
		case !ok:
		case d.Status == match.StatusUnknown:
			observed = d.Candidate
		default:
			observed = d.Title
		}

		snap := s.tracker.Observe(user, session, observed)
		out := Result{
			Status:     StatusScanning,
			Title:      observed,
			Candidate:  d.Candidate,
			Match:      d.Status,
			Confidence: d.Confidence,
			Stability:  &snap,
		}
		if snap.State == stability.StateLocked {
			out.Status = StatusStable
			out.Title = snap.Title
		}
		return out
	})
	return res, nil
}

// Capture commits the title the user's session has settled on. Without a
// settled title it answers scan_again and changes nothing.
func (s *Scanner) Capture(ctx context.Context, user, session string) (Result, error) {
	if user == "" {
		return Result{}, storage.ErrEmptyUser
	}
	if session == "" {
		session = DefaultSession
	}

	title, ok := s.tracker.Confirm(user, session)
	if !ok {
		return s.record(OpCapture, Result{Status: StatusScanAgain}), nil
	}

	release, busy := s.acquire()
	if busy {
		return s.record(OpCapture, Result{Status: StatusAIBusy, Title: title}), nil
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	d, err := s.engine.Decide(ctx, []string{title})
	if err != nil {
		return s.record(OpCapture, s.classify(OpCapture, err)), nil
	}

	res := s.commit(ctx, OpCapture, user, session, d)
	if res.Committed() || res.Status == StatusAlreadySaved {
		s.tracker.Reset(user, session)
	}
	return s.record(OpCapture, res), nil
}

// Identify matches already extracted candidates against the catalog. When
// user is set the result also reports ownership.
func (s *Scanner) Identify(ctx context.Context, user string, candidates []string) Result {
	release, busy := s.acquire()
	if busy {
		return s.record(OpIdentify, Result{Status: StatusAIBusy})
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	d, err := s.engine.Decide(ctx, candidates)
	if err != nil {
		return s.record(OpIdentify, s.classify(OpIdentify, err))
	}
	if d.Status == match.StatusUnknown {
		return s.record(OpIdentify, Result{Status: StatusNotFound, Candidate: d.Candidate, Match: d.Status, Confidence: d.Confidence})
	}

	status := StatusFound
	if user != "" {
		owned, err := s.ledger.HasBook(ctx, user, d.Title)
		if err != nil {
			return s.record(OpIdentify, s.fail(OpIdentify, err))
		}
		if owned {
			status = StatusOwned
		}
	}
	return s.record(OpIdentify, decided(status, d))
}

// Owned reports whether the user owns title.
func (s *Scanner) Owned(ctx context.Context, user, title string) (bool, error) {
	return s.ledger.HasBook(ctx, user, title)
}

// Explain answers a question about a book.
func (s *Scanner) Explain(ctx context.Context, title, question string) (*explain.Explanation, error) {
	if s.explainer == nil {
		return &explain.Explanation{
			Title:  title,
			Text:   explain.Fallback(&explain.Volume{Title: title}),
			Source: explain.SourceFallback,
		}, nil
	}
	return s.explainer.Explain(ctx, title, question)
}

// ExplainImage identifies the book in image and answers question about it.
// A book missing from the catalog is explained under the text read off the
// cover; the catalog is never changed.
func (s *Scanner) ExplainImage(ctx context.Context, image io.Reader, question string) (Result, error) {
	res := s.run(ctx, OpExplain, image, func(ctx context.Context, img Image) Result {
		d, res, ok := s.identify(ctx, img)
		if !ok {
			return res
		}

		out := decided(StatusFound, d)
		if d.Status == match.StatusUnknown {
			out.Status = StatusNotFound
			out.Title = d.Candidate
		}

		start := time.Now()
		exp, err := s.Explain(ctx, out.Title, question)
		metrics.ObserveInference("explain", start)
		if err != nil {
			return s.classify(OpExplain, err)
		}
		out.Explanation = exp
		return out
	})
	return res, nil
}

// Stats summarizes the catalog.
func (s *Scanner) Stats(ctx context.Context) (catalog.Stats, error) {
	return s.catalog.Stats(ctx)
}

// Sweep drops idle stability sessions.
func (s *Scanner) Sweep() int {
	return s.tracker.Sweep()
}

// SetThresholds swaps the live match thresholds.
func (s *Scanner) SetThresholds(t catalog.Thresholds) error {
	c, ok := s.catalog.(interface {
		SetThresholds(catalog.Thresholds) error
	})
	if !ok {
		return errors.New("catalog does not support threshold updates")
	}
	return c.SetThresholds(t)
}

// run validates the upload, takes an inference slot and runs fn under the
// inference timeout.
func (s *Scanner) run(ctx context.Context, op string, image io.Reader, fn func(context.Context, Image) Result) Result {
	img, err := s.readImage(image)
	if err != nil {
		if errors.Is(err, ErrInvalidImage) {
			s.logger.Debug("rejected upload", "operation", op, "error", err)
			return s.record(op, Result{Status: StatusInvalidImage, Error: err.Error()})
		}
		return s.record(op, s.fail(op, err))
	}

	release, busy := s.acquire()
	if busy {
		return s.record(op, Result{Status: StatusAIBusy})
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.record(op, fn(ctx, img))
}

// acquire takes an inference slot without waiting.
func (s *Scanner) acquire() (func(), bool) {
	if !s.sem.TryAcquire(1) {
		return nil, true
	}
	return func() { s.sem.Release(1) }, false
}

// identify runs OCR and the match engine. When ok is false res holds the
// outcome to return.
func (s *Scanner) identify(ctx context.Context, img Image) (d match.Decision, res Result, ok bool) {
	start := time.Now()
	candidates, err := s.extractor.Extract(ctx, img.Data, img.MediaType)
	metrics.ObserveInference("ocr", start)
	if err != nil {
		return d, s.classify("ocr", err), false
	}
	s.logger.Debug("ocr candidates", "candidates", candidates, "duration", time.Since(start))

	start = time.Now()
	d, err = s.engine.Decide(ctx, candidates)
	metrics.ObserveInference("match", start)
	if err != nil {
		return d, s.classify("match", err), false
	}
	return d, Result{}, true
}

// commit catalogs an unknown decision and saves the resolved title to the
// user's shelf.
func (s *Scanner) commit(ctx context.Context, op, user, session string, d match.Decision) Result {
	title := d.Title
	created := false

	if d.Status == match.StatusUnknown {
		ins, err := s.catalog.Insert(ctx, d.Candidate)
		if err != nil {
			res := s.classify(op, err)
			res.Candidate = d.Candidate
			return res
		}
		title = ins.Record.Title
		created = ins.Created
	}

	saved, err := s.ledger.SaveBook(ctx, user, title)
	if err != nil {
		return s.fail(op, err)
	}

	res := decided(StatusAlreadySaved, d)
	res.Title = title
	if !saved {
		return res
	}

	res.Status = StatusSavedExisting
	if created {
		res.Status = StatusSavedNew
	}

	s.publish(user, session, op, res, created)
	return res
}

func (s *Scanner) publish(user, session, op string, res Result, created bool) {
	if s.jobs == nil {
		return
	}
	event := eventstream.NewBookSavedEvent(user,
		eventstream.BookMeta{
			Title:        res.Title,
			NewToCatalog: created,
			Match:        string(res.Match),
			Confidence:   res.Confidence,
		},
		eventstream.RequestMeta{Operation: op, SessionID: session},
		s.now(),
	)
	s.jobs.Enqueue(worker.Job{Event: event})
}

// classify maps a pipeline error onto a status. Inference failures never
// become not_found unless they mean there was nothing to read.
func (s *Scanner) classify(stage string, err error) Result {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("inference timed out", "stage", stage)
		return Result{Status: StatusAITimeout}
	case errors.Is(err, ocr.ErrUnavailable), breaker.Rejected(err):
		s.logger.Warn("inference unavailable", "stage", stage, "error", err)
		return Result{Status: StatusAIBusy}
	case errors.Is(err, ocr.ErrNoText),
		errors.Is(err, match.ErrNoCandidates),
		errors.Is(err, catalog.ErrUnusableTitle):
		return Result{Status: StatusNotFound}
	default:
		return s.fail(stage, err)
	}
}

func (s *Scanner) fail(stage string, err error) Result {
	s.logger.Error("scanner operation failed", "stage", stage, "error", err)
	return Result{Status: StatusFailed, Error: err.Error()}
}

func (s *Scanner) record(op string, res Result) Result {
	metrics.RecordOutcome(op, string(res.Status))
	return res
}

func decided(status Status, d match.Decision) Result {
	return Result{
		Status:     status,
		Title:      d.Title,
		Candidate:  d.Candidate,
		Match:      d.Status,
		Confidence: d.Confidence,
	}
}
