package scanner_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/shelf/pkg/catalog"
	"github.com/papercomputeco/shelf/pkg/match"
	"github.com/papercomputeco/shelf/pkg/ocr"
	"github.com/papercomputeco/shelf/pkg/ownership"
	"github.com/papercomputeco/shelf/pkg/scanner"
	"github.com/papercomputeco/shelf/pkg/stability"
	"github.com/papercomputeco/shelf/pkg/storage"
	"github.com/papercomputeco/shelf/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/shelf/pkg/utils/test"
	"github.com/papercomputeco/shelf/pkg/worker"
)

const pngMagic = "\x89PNG\r\n\x1a\n"

func png() io.Reader {
	return strings.NewReader(pngMagic + strings.Repeat("\x00", 64))
}

// recordingJobs captures enqueued jobs without publishing them.
type recordingJobs struct {
	jobs []worker.Job
}

func (r *recordingJobs) Enqueue(job worker.Job) bool {
	r.jobs = append(r.jobs, job)
	return true
}

var _ = Describe("Scanner", func() {
	var (
		ctx       context.Context
		embedder  *testutils.MockEmbedder
		cat       *catalog.Catalog
		store     *inmemory.Driver
		ledger    *ownership.Ledger
		tracker   *stability.Tracker
		extractor *testutils.MockExtractor
		jobs      *recordingJobs
		s         *scanner.Scanner
	)

	BeforeEach(func() {
		ctx = context.Background()

		embedder = testutils.NewMockEmbedder()
		embedder.Set("clean code", 1, 0, 0, 0)
		embedder.Set("gardening basics", 0, 0, 1, 0)
		embedder.Set("design patterns", 0, 0, 0, 1)
		embedder.Set("pragmatic programmer", 0, 1, 0, 0)

		var err error
		cat, err = catalog.Open(ctx, catalog.Options{
			Store:    &catalog.MemoryStore{},
			Index:    testutils.NewMockVectorDriver(),
			Embedder: embedder,
		})
		Expect(err).NotTo(HaveOccurred())

		for _, title := range []string{"clean code", "design patterns"} {
			_, err := cat.Insert(ctx, title)
			Expect(err).NotTo(HaveOccurred())
		}

		store = inmemory.NewDriver()
		ledger = ownership.NewLedger(ownership.Options{Store: store})
		tracker = stability.NewTracker(stability.Options{Window: 3, Quorum: 2})
		extractor = testutils.NewMockExtractor("Clean Code")
		jobs = &recordingJobs{}

		s = scanner.New(scanner.Options{
			Catalog:   cat,
			Ledger:    ledger,
			Tracker:   tracker,
			Extractor: extractor,
			Jobs:      jobs,
			TempDir:   GinkgoT().TempDir(),
		})
	})

	Describe("Scan", func() {
		It("reports a cataloged book the user does not own as found", func() {
			res, err := s.Scan(ctx, "u1", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusFound))
			Expect(res.Title).To(Equal("clean code"))
			Expect(res.Match).To(Equal(match.StatusKnown))
		})

		It("reports an owned book", func() {
			_, err := ledger.SaveBook(ctx, "u1", "clean code")
			Expect(err).NotTo(HaveOccurred())

			res, err := s.Scan(ctx, "u1", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusOwned))
		})

		It("reports an uncataloged book as not_found without inserting it", func() {
			extractor.Answer("Gardening Basics")

			res, err := s.Scan(ctx, "u1", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusNotFound))
			Expect(res.Candidate).To(Equal("gardening basics"))
			Expect(cat.Len()).To(Equal(2))
		})

		It("reports not_found when OCR reads nothing", func() {
			extractor.Answer()

			res, err := s.Scan(ctx, "u1", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusNotFound))
		})

		It("maps an unavailable model to ai_busy", func() {
			extractor.Err = ocr.ErrUnavailable

			res, err := s.Scan(ctx, "u1", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusAIBusy))
		})

		It("maps an unexpected error to failed", func() {
			extractor.Err = errors.New("boom")

			res, err := s.Scan(ctx, "u1", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusFailed))
			Expect(res.Error).To(ContainSubstring("boom"))
		})

		It("rejects a missing user", func() {
			_, err := s.Scan(ctx, "", png())
			Expect(err).To(MatchError(storage.ErrEmptyUser))
		})

		It("rejects a non-image upload before calling OCR", func() {
			res, err := s.Scan(ctx, "u1", strings.NewReader("just some text, not a picture"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusInvalidImage))
			Expect(extractor.Calls.Load()).To(BeZero())
		})

		It("rejects an empty upload", func() {
			res, err := s.Scan(ctx, "u1", bytes.NewReader(nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusInvalidImage))
		})

		It("rejects an oversized upload", func() {
			small := scanner.New(scanner.Options{
				Catalog:        cat,
				Ledger:         ledger,
				Tracker:        tracker,
				Extractor:      extractor,
				MaxUploadBytes: 16,
				TempDir:        GinkgoT().TempDir(),
			})

			res, err := small.Scan(ctx, "u1", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusInvalidImage))
		})
	})

	Describe("inference limits", func() {
		It("answers ai_busy when every slot is taken", func() {
			slow := testutils.NewSlowExtractor("Clean Code")
			limited := scanner.New(scanner.Options{
				Catalog:       cat,
				Ledger:        ledger,
				Tracker:       tracker,
				Extractor:     slow,
				MaxConcurrent: 1,
				TempDir:       GinkgoT().TempDir(),
			})

			done := make(chan scanner.Result, 1)
			go func() {
				defer GinkgoRecover()
				res, err := limited.Scan(ctx, "u1", png())
				Expect(err).NotTo(HaveOccurred())
				done <- res
			}()
			Eventually(slow.Started).Should(Receive())

			res, err := limited.Scan(ctx, "u2", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusAIBusy))

			close(slow.Release)
			Eventually(done).Should(Receive(HaveField("Status", scanner.StatusFound)))
		})

		It("answers ai_timeout when inference runs past the deadline", func() {
			slow := testutils.NewSlowExtractor("Clean Code")
			limited := scanner.New(scanner.Options{
				Catalog:   cat,
				Ledger:    ledger,
				Tracker:   tracker,
				Extractor: slow,
				Timeout:   20 * time.Millisecond,
				TempDir:   GinkgoT().TempDir(),
			})

			res, err := limited.Scan(ctx, "u1", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusAITimeout))
		})
	})

	Describe("Add", func() {
		It("saves a cataloged book", func() {
			res, err := s.Add(ctx, "u1", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusSavedExisting))
			Expect(res.Title).To(Equal("clean code"))

			owned, err := s.Owned(ctx, "u1", "Clean Code")
			Expect(err).NotTo(HaveOccurred())
			Expect(owned).To(BeTrue())
			Expect(jobs.jobs).To(HaveLen(1))
			Expect(jobs.jobs[0].Event.UserID).To(Equal("u1"))
			Expect(jobs.jobs[0].Event.Book.NewToCatalog).To(BeFalse())
		})

		It("catalogs and saves a new book", func() {
			extractor.Answer("Gardening Basics")

			res, err := s.Add(ctx, "u1", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusSavedNew))
			Expect(res.Title).To(Equal("gardening basics"))
			Expect(cat.Len()).To(Equal(3))
			Expect(jobs.jobs).To(HaveLen(1))
			Expect(jobs.jobs[0].Event.Book.NewToCatalog).To(BeTrue())
		})

		It("does not save the same book twice", func() {
			_, err := s.Add(ctx, "u1", png())
			Expect(err).NotTo(HaveOccurred())

			res, err := s.Add(ctx, "u1", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusAlreadySaved))

			titles, err := store.Titles(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(titles).To(HaveLen(1))
			Expect(jobs.jobs).To(HaveLen(1))
		})

		It("reports not_found for a title too short to catalog", func() {
			extractor.Answer("Dune")
			embedder.Set("dune", 0, 0.5, 0.5, 0.5)

			res, err := s.Add(ctx, "u1", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusNotFound))
			Expect(cat.Len()).To(Equal(2))
		})
	})

	Describe("StableScan and Capture", func() {
		It("locks after a quorum of agreeing frames and captures once", func() {
			res, err := s.StableScan(ctx, "u1", "s1", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusScanning))
			Expect(res.Stability).NotTo(BeNil())

			res, err = s.StableScan(ctx, "u1", "s1", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusStable))
			Expect(res.Title).To(Equal("clean code"))

			res, err = s.Capture(ctx, "u1", "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusSavedExisting))

			res, err = s.Capture(ctx, "u1", "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusScanAgain))
		})

		It("asks to scan again before the session settles", func() {
			_, err := s.StableScan(ctx, "u1", "s1", png())
			Expect(err).NotTo(HaveOccurred())

			res, err := s.Capture(ctx, "u1", "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusScanAgain))

			owned, err := s.Owned(ctx, "u1", "clean code")
			Expect(err).NotTo(HaveOccurred())
			Expect(owned).To(BeFalse())
		})

		It("keeps sessions apart", func() {
			_, err := s.StableScan(ctx, "u1", "s1", png())
			Expect(err).NotTo(HaveOccurred())
			res, err := s.StableScan(ctx, "u1", "s2", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusScanning))
		})

		It("catalogs an unknown settled title on capture", func() {
			extractor.Answer("Gardening Basics")
			for range 2 {
				_, err := s.StableScan(ctx, "u1", "", png())
				Expect(err).NotTo(HaveOccurred())
			}

			res, err := s.Capture(ctx, "u1", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusSavedNew))
			Expect(res.Title).To(Equal("gardening basics"))
		})

		It("does not observe a frame when the model is busy", func() {
			extractor.Err = ocr.ErrUnavailable
			res, err := s.StableScan(ctx, "u1", "s1", png())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusAIBusy))
			Expect(tracker.Len()).To(BeZero())
		})
	})

	Describe("Identify", func() {
		It("matches text candidates", func() {
			res := s.Identify(ctx, "", []string{"", "Clean Code"})
			Expect(res.Status).To(Equal(scanner.StatusFound))
			Expect(res.Title).To(Equal("clean code"))
		})

		It("reports ownership when a user is given", func() {
			_, err := ledger.SaveBook(ctx, "u1", "design patterns")
			Expect(err).NotTo(HaveOccurred())

			res := s.Identify(ctx, "u1", []string{"Design Patterns"})
			Expect(res.Status).To(Equal(scanner.StatusOwned))
		})

		It("reports not_found for empty candidates", func() {
			res := s.Identify(ctx, "u1", []string{"", "  "})
			Expect(res.Status).To(Equal(scanner.StatusNotFound))
		})
	})

	Describe("Explain", func() {
		It("falls back to a local summary without an explainer", func() {
			exp, err := s.Explain(ctx, "clean code", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(exp.Title).To(Equal("clean code"))
			Expect(exp.Text).NotTo(BeEmpty())
		})
	})

	Describe("ExplainImage", func() {
		It("explains the cataloged book on the cover", func() {
			res, err := s.ExplainImage(ctx, png(), "who should read it?")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusFound))
			Expect(res.Title).To(Equal("clean code"))
			Expect(res.Explanation).NotTo(BeNil())
			Expect(res.Explanation.Title).To(Equal("clean code"))
			Expect(res.Explanation.Text).NotTo(BeEmpty())
		})

		It("explains an uncataloged book under the text read off the cover", func() {
			extractor.Answer("Gardening Basics")

			res, err := s.ExplainImage(ctx, png(), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusNotFound))
			Expect(res.Title).To(Equal("gardening basics"))
			Expect(res.Explanation.Title).To(Equal("gardening basics"))
			Expect(cat.Len()).To(Equal(2))
		})

		It("answers not_found when nothing is readable", func() {
			extractor.Answer()

			res, err := s.ExplainImage(ctx, png(), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusNotFound))
			Expect(res.Explanation).To(BeNil())
		})

		It("rejects an upload that is not an image", func() {
			res, err := s.ExplainImage(ctx, strings.NewReader("plain text, not a photo"), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scanner.StatusInvalidImage))
			Expect(extractor.Calls.Load()).To(BeZero())
		})
	})

	Describe("Stats", func() {
		It("summarizes the catalog", func() {
			stats, err := s.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Books).To(Equal(2))
		})
	})
})
