package catalog_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/shelf/pkg/catalog"
	"github.com/papercomputeco/shelf/pkg/vector/flat"
	testutils "github.com/papercomputeco/shelf/pkg/utils/test"
)

var _ = Describe("Catalog", func() {
	var (
		ctx      context.Context
		store    *catalog.MemoryStore
		index    *testutils.MockVectorDriver
		embedder *testutils.MockEmbedder
		cat      *catalog.Catalog
	)

	open := func() *catalog.Catalog {
		c, err := catalog.Open(ctx, catalog.Options{
			Store:    store,
			Index:    index,
			Embedder: embedder,
			Now:      func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
		})
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = &catalog.MemoryStore{}
		index = testutils.NewMockVectorDriver()
		embedder = testutils.NewMockEmbedder()

		embedder.Set("clean code", 1, 0, 0, 0)
		embedder.Set("clean cod", 0.8, 0.6, 0, 0)
		embedder.Set("code clean", 0.6, 0.8, 0, 0)
		embedder.Set("clean code handbook", 0.9, 0.43588989, 0, 0)
		embedder.Set("clean architecture", 0.95, 0.31224990, 0, 0)
		embedder.Set("gardening basics", 0, 0, 1, 0)
		embedder.Set("design patterns", 0, 0, 0, 1)

		cat = open()
	})

	Describe("Insert", func() {
		It("stores the normalized title", func() {
			ins, err := cat.Insert(ctx, "Clean Code!!")
			Expect(err).NotTo(HaveOccurred())
			Expect(ins.Created).To(BeTrue())
			Expect(ins.Position).To(Equal(0))
			Expect(ins.Record.Title).To(Equal("clean code"))
			Expect(ins.Record.CreatedAt).To(Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

			Expect(cat.Len()).To(Equal(1))
			Expect(index.Count(ctx)).To(Equal(1))
			Expect(index.Flushes).To(BeNumerically(">=", 1))

			saved, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(saved).To(HaveLen(1))
			Expect(saved[0].Embedding).To(Equal([]float32{1, 0, 0, 0}))
		})

		It("returns the existing record for the same title", func() {
			first, err := cat.Insert(ctx, "Clean Code")
			Expect(err).NotTo(HaveOccurred())

			again, err := cat.Insert(ctx, "CLEAN CODE!!!")
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Created).To(BeFalse())
			Expect(again.Record).To(Equal(first.Record))
			Expect(cat.Len()).To(Equal(1))
		})

		It("returns the existing record for a strict duplicate", func() {
			_, err := cat.Insert(ctx, "clean code")
			Expect(err).NotTo(HaveOccurred())

			dup, err := cat.Insert(ctx, "Clean Code Handbook")
			Expect(err).NotTo(HaveOccurred())
			Expect(dup.Created).To(BeFalse())
			Expect(dup.Record.Title).To(Equal("clean code"))
			Expect(cat.Len()).To(Equal(1))
		})

		It("keeps semantically close but lexically different books apart", func() {
			_, err := cat.Insert(ctx, "clean code")
			Expect(err).NotTo(HaveOccurred())

			other, err := cat.Insert(ctx, "Clean Architecture")
			Expect(err).NotTo(HaveOccurred())
			Expect(other.Created).To(BeTrue())
			Expect(other.Position).To(Equal(1))
			Expect(cat.Len()).To(Equal(2))
		})

		It("rejects unusable titles", func() {
			_, err := cat.Insert(ctx, "Python")
			Expect(err).To(MatchError(catalog.ErrUnusableTitle))

			_, err = cat.Insert(ctx, "a b c")
			Expect(err).To(MatchError(catalog.ErrUnusableTitle))
			Expect(cat.Len()).To(BeZero())
		})

		It("rolls the index back when the flush fails", func() {
			_, err := cat.Insert(ctx, "clean code")
			Expect(err).NotTo(HaveOccurred())

			index.FailFlush = true
			_, err = cat.Insert(ctx, "design patterns")
			Expect(err).To(MatchError(testutils.ErrInjected))
			index.FailFlush = false

			Expect(cat.Len()).To(Equal(1))
			Expect(index.Count(ctx)).To(Equal(1))
		})

		It("rolls the index back when the catalog save fails", func() {
			_, err := cat.Insert(ctx, "clean code")
			Expect(err).NotTo(HaveOccurred())

			store.FailSave = true
			_, err = cat.Insert(ctx, "design patterns")
			Expect(err).To(MatchError(catalog.ErrSaveFailed))
			store.FailSave = false

			Expect(cat.Len()).To(Equal(1))
			Expect(index.Count(ctx)).To(Equal(1))

			ins, err := cat.Insert(ctx, "design patterns")
			Expect(err).NotTo(HaveOccurred())
			Expect(ins.Position).To(Equal(1))
		})

		It("leaves the catalog untouched when the index rejects the entry", func() {
			index.FailAdd = true
			_, err := cat.Insert(ctx, "clean code")
			Expect(err).To(MatchError(testutils.ErrInjected))
			Expect(cat.Len()).To(BeZero())
		})

		It("creates a title once under concurrent inserts", func() {
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				created int
			)
			for range 8 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					ins, err := cat.Insert(ctx, "Design Patterns")
					Expect(err).NotTo(HaveOccurred())
					if ins.Created {
						mu.Lock()
						created++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Expect(created).To(Equal(1))
			Expect(cat.Len()).To(Equal(1))
			Expect(index.Count(ctx)).To(Equal(1))
		})
	})

	Describe("FindBestMatch", func() {
		BeforeEach(func() {
			_, err := cat.Insert(ctx, "clean code")
			Expect(err).NotTo(HaveOccurred())
			_, err = cat.Insert(ctx, "design patterns")
			Expect(err).NotTo(HaveOccurred())
		})

		It("matches an exact title strongly", func() {
			m, err := cat.FindBestMatch(ctx, "Clean Code")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Strength).To(Equal(catalog.StrengthStrong))
			Expect(m.Record.Title).To(Equal("clean code"))
			Expect(m.Position).To(Equal(0))
		})

		It("matches an OCR variant through both gates", func() {
			m, err := cat.FindBestMatch(ctx, "Clean Cod")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Strength).To(Equal(catalog.StrengthStrong))
			Expect(m.Record.Title).To(Equal("clean code"))
			Expect(m.Semantic).To(BeNumerically("~", 0.8, 1e-6))
			Expect(m.Lexical).To(BeNumerically(">=", 0.8))
		})

		It("falls back to a weak match on the combined score", func() {
			m, err := cat.FindBestMatch(ctx, "code clean")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Strength).To(Equal(catalog.StrengthWeak))
			Expect(m.Found()).To(BeTrue())
			Expect(m.Record.Title).To(Equal("clean code"))
		})

		It("reports no match with the best scores seen", func() {
			m, err := cat.FindBestMatch(ctx, "Gardening Basics")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Found()).To(BeFalse())
			Expect(m.Record.Title).To(BeEmpty())
			Expect(m.Position).To(Equal(-1))
			Expect(m.Semantic).To(BeNumerically("<", 0.72))
		})

		It("rejects empty titles", func() {
			_, err := cat.FindBestMatch(ctx, "!!")
			Expect(err).To(MatchError(catalog.ErrEmptyTitle))
		})

		It("propagates embedding failures", func() {
			embedder.FailOn = "clean code"
			_, err := cat.FindBestMatch(ctx, "clean code")
			Expect(err).To(HaveOccurred())
		})

		It("follows swapped thresholds", func() {
			t := cat.Thresholds()
			t.Semantic = 0.5
			Expect(cat.SetThresholds(t)).To(Succeed())

			m, err := cat.FindBestMatch(ctx, "code clean")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Strength).To(Equal(catalog.StrengthStrong))
		})

		It("refuses inconsistent thresholds", func() {
			t := cat.Thresholds()
			t.Duplicate = t.Semantic - 0.1
			Expect(cat.SetThresholds(t)).NotTo(Succeed())
			Expect(cat.Thresholds().Duplicate).To(Equal(0.87))
		})
	})

	Describe("Open", func() {
		It("embeds legacy records and rebuilds the index", func() {
			Expect(store.Save(ctx, []catalog.BookRecord{
				{Title: "Clean Code"},
				{Title: "design patterns"},
				{Title: "clean code"},
			})).To(Succeed())
			index = testutils.NewMockVectorDriver()

			c := open()
			Expect(c.Len()).To(Equal(2))
			Expect(index.Count(ctx)).To(Equal(2))

			saved, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(saved).To(HaveLen(2))
			Expect(saved[0].Title).To(Equal("clean code"))
			Expect(saved[0].Embedding).To(Equal([]float32{1, 0, 0, 0}))
			Expect(saved[1].CreatedAt.IsZero()).To(BeFalse())
		})

		It("rebuilds an index that lags the catalog", func() {
			_, err := cat.Insert(ctx, "clean code")
			Expect(err).NotTo(HaveOccurred())
			_, err = cat.Insert(ctx, "design patterns")
			Expect(err).NotTo(HaveOccurred())

			Expect(index.Truncate(ctx, 1)).To(Succeed())
			calls := embedder.Calls.Load()

			c := open()
			Expect(index.Count(ctx)).To(Equal(2))
			Expect(embedder.Calls.Load()).To(Equal(calls))

			m, err := c.FindBestMatch(ctx, "design patterns")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Position).To(Equal(1))
		})

		It("rebuilds a flat index file that was cut short", func() {
			dir := GinkgoT().TempDir()
			indexPath := filepath.Join(dir, "index.bin")
			fileStore := catalog.NewFileStore(filepath.Join(dir, "catalog.json"))

			openFiles := func() *catalog.Catalog {
				idx, err := flat.NewDriver(flat.Config{Path: indexPath, Dimensions: 4}, slog.New(slog.DiscardHandler))
				Expect(err).NotTo(HaveOccurred())
				c, err := catalog.Open(ctx, catalog.Options{Store: fileStore, Index: idx, Embedder: embedder})
				Expect(err).NotTo(HaveOccurred())
				return c
			}

			c := openFiles()
			_, err := c.Insert(ctx, "clean code")
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Insert(ctx, "design patterns")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Close()).To(Succeed())

			info, err := os.Stat(indexPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Truncate(indexPath, info.Size()-6)).To(Succeed())

			c = openFiles()
			stats, err := c.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Indexed).To(Equal(c.Len()))
			Expect(c.Len()).To(Equal(2))

			m, err := c.FindBestMatch(ctx, "design patterns")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Position).To(Equal(1))
		})

		It("reports stats", func() {
			_, err := cat.Insert(ctx, "clean code")
			Expect(err).NotTo(HaveOccurred())

			stats, err := cat.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Books).To(Equal(1))
			Expect(stats.Indexed).To(Equal(1))
			Expect(stats.Dimensions).To(Equal(4))
		})

		It("rebuilds on demand", func() {
			_, err := cat.Insert(ctx, "clean code")
			Expect(err).NotTo(HaveOccurred())
			Expect(index.Truncate(ctx, 0)).To(Succeed())

			Expect(cat.Rebuild(ctx)).To(Succeed())
			Expect(index.Count(ctx)).To(Equal(1))
		})
	})
})

var _ = Describe("Classify", func() {
	t := catalog.DefaultThresholds()

	DescribeTable("two gate policy",
		func(semantic, lexical float64, want catalog.Strength) {
			Expect(catalog.Classify(semantic, lexical, t)).To(Equal(want))
		},
		Entry("both gates exactly at threshold", 0.72, 0.80, catalog.StrengthStrong),
		Entry("well above both gates", 0.95, 0.95, catalog.StrengthStrong),
		Entry("semantic just below, lexical weak", 0.71, 0.20, catalog.StrengthNone),
		Entry("lexical just below, combined passes", 0.72, 0.79, catalog.StrengthWeak),
		Entry("semantic only", 0.90, 0.05, catalog.StrengthNone),
		Entry("lexical only", 0.40, 1.00, catalog.StrengthNone),
		Entry("nothing", 0.0, 0.0, catalog.StrengthNone),
	)

	It("names strengths", func() {
		Expect(catalog.StrengthStrong.String()).To(Equal("strong"))
		Expect(catalog.StrengthWeak.String()).To(Equal("weak"))
		Expect(catalog.StrengthNone.String()).To(Equal("none"))
	})

	It("validates the defaults", func() {
		Expect(t.Validate()).To(Succeed())
	})
})

var _ = Describe("FileStore", func() {
	var (
		ctx  context.Context
		path string
	)

	BeforeEach(func() {
		ctx = context.Background()
		path = filepath.Join(GinkgoT().TempDir(), "catalog.json")
	})

	It("treats a missing file as an empty catalog", func() {
		records, err := catalog.NewFileStore(path).Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(BeEmpty())
	})

	It("round trips records", func() {
		s := catalog.NewFileStore(path)
		in := []catalog.BookRecord{{
			Title:     "clean code",
			Embedding: []float32{0.5, 0.5},
			CreatedAt: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		}}
		Expect(s.Save(ctx, in)).To(Succeed())

		out, err := s.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(1))
		Expect(out[0].Title).To(Equal("clean code"))
		Expect(out[0].Embedding).To(Equal([]float32{0.5, 0.5}))
		Expect(out[0].CreatedAt.Equal(in[0].CreatedAt)).To(BeTrue())

		entries, err := os.ReadDir(filepath.Dir(path))
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
	})

	It("reads a legacy bare array", func() {
		Expect(os.WriteFile(path, []byte(`[{"title": "Clean Code"}, {"title": "Refactoring"}]`), 0o600)).To(Succeed())

		out, err := catalog.NewFileStore(path).Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(2))
		Expect(out[0].Title).To(Equal("Clean Code"))
	})

	It("reports a corrupt file", func() {
		Expect(os.WriteFile(path, []byte(`{{{`), 0o600)).To(Succeed())
		_, err := catalog.NewFileStore(path).Load(ctx)
		Expect(err).To(MatchError(catalog.ErrCorruptCatalog))
	})
})
