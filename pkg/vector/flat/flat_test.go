package flat_test

import (
	"context"
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/shelf/pkg/vector"
	"github.com/papercomputeco/shelf/pkg/vector/flat"
)

var _ = Describe("Flat Driver", func() {
	var (
		ctx    context.Context
		logger *slog.Logger
		path   string
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger = slog.New(slog.DiscardHandler)
		path = filepath.Join(GinkgoT().TempDir(), "index.bin")
	})

	seed := func(d *flat.Driver) {
		Expect(d.Add(ctx, []vector.Entry{
			{Position: 0, Embedding: []float32{1, 0, 0}},
			{Position: 1, Embedding: []float32{0, 1, 0}},
			{Position: 2, Embedding: []float32{0.6, 0.8, 0}},
		})).To(Succeed())
	}

	It("requires dimensions", func() {
		_, err := flat.NewDriver(flat.Config{Path: path}, logger)
		Expect(err).To(HaveOccurred())
	})

	It("queries by inner product", func() {
		d, err := flat.NewDriver(flat.Config{Path: path, Dimensions: 3}, logger)
		Expect(err).NotTo(HaveOccurred())
		seed(d)

		results, err := d.Query(ctx, []float32{0, 1, 0}, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(Equal([]vector.Result{
			{Position: 1, Score: 1},
			{Position: 2, Score: float64(float32(0.8))},
		}))
	})

	It("returns nothing for an empty index", func() {
		d, err := flat.NewDriver(flat.Config{Dimensions: 3}, logger)
		Expect(err).NotTo(HaveOccurred())

		results, err := d.Query(ctx, []float32{0, 1, 0}, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("rejects gaps and wrong sizes", func() {
		d, err := flat.NewDriver(flat.Config{Dimensions: 3}, logger)
		Expect(err).NotTo(HaveOccurred())

		Expect(d.Add(ctx, []vector.Entry{{Position: 1, Embedding: []float32{1, 0, 0}}})).To(MatchError(vector.ErrPosition))
		Expect(d.Add(ctx, []vector.Entry{{Position: 0, Embedding: []float32{1, 0}}})).To(MatchError(vector.ErrDimensions))
		_, err = d.Query(ctx, []float32{1, 0}, 1)
		Expect(err).To(MatchError(vector.ErrDimensions))
		Expect(d.Count(ctx)).To(BeZero())
	})

	It("persists on flush and reloads", func() {
		d, err := flat.NewDriver(flat.Config{Path: path, Dimensions: 3}, logger)
		Expect(err).NotTo(HaveOccurred())
		seed(d)
		Expect(d.Flush(ctx)).To(Succeed())
		Expect(d.Close()).To(Succeed())

		reopened, err := flat.NewDriver(flat.Config{Path: path, Dimensions: 3}, logger)
		Expect(err).NotTo(HaveOccurred())
		Expect(reopened.Count(ctx)).To(Equal(3))

		results, err := reopened.Query(ctx, []float32{1, 0, 0}, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].Position).To(Equal(0))
	})

	It("leaves no temp files behind", func() {
		d, err := flat.NewDriver(flat.Config{Path: path, Dimensions: 3}, logger)
		Expect(err).NotTo(HaveOccurred())
		seed(d)
		Expect(d.Flush(ctx)).To(Succeed())

		entries, err := os.ReadDir(filepath.Dir(path))
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Name()).To(Equal("index.bin"))
	})

	It("starts empty when the file has other dimensions", func() {
		d, err := flat.NewDriver(flat.Config{Path: path, Dimensions: 3}, logger)
		Expect(err).NotTo(HaveOccurred())
		seed(d)
		Expect(d.Flush(ctx)).To(Succeed())

		d, err = flat.NewDriver(flat.Config{Path: path, Dimensions: 4}, logger)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Count(ctx)).To(Equal(0))
		Expect(d.Add(ctx, []vector.Entry{{Position: 0, Embedding: []float32{0, 0, 0, 1}}})).To(Succeed())
	})

	It("starts empty when the header is garbage", func() {
		Expect(os.WriteFile(path, []byte("not an index"), 0o600)).To(Succeed())
		d, err := flat.NewDriver(flat.Config{Path: path, Dimensions: 3}, logger)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Count(ctx)).To(Equal(0))
	})

	It("starts empty when rows are cut short", func() {
		d, err := flat.NewDriver(flat.Config{Path: path, Dimensions: 3}, logger)
		Expect(err).NotTo(HaveOccurred())
		seed(d)
		Expect(d.Flush(ctx)).To(Succeed())

		info, err := os.Stat(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Truncate(path, info.Size()-6)).To(Succeed())

		d, err = flat.NewDriver(flat.Config{Path: path, Dimensions: 3}, logger)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Count(ctx)).To(Equal(0))
	})

	It("does not trust a row count larger than the file", func() {
		header := []byte("SHLFVEC1")
		header = binary.LittleEndian.AppendUint32(header, 3)
		header = binary.LittleEndian.AppendUint64(header, 1<<62)
		Expect(os.WriteFile(path, header, 0o600)).To(Succeed())

		d, err := flat.NewDriver(flat.Config{Path: path, Dimensions: 3}, logger)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Count(ctx)).To(Equal(0))
	})

	It("truncates from the end", func() {
		d, err := flat.NewDriver(flat.Config{Path: path, Dimensions: 3}, logger)
		Expect(err).NotTo(HaveOccurred())
		seed(d)

		Expect(d.Truncate(ctx, 1)).To(Succeed())
		Expect(d.Count(ctx)).To(Equal(1))
		Expect(d.Add(ctx, []vector.Entry{{Position: 1, Embedding: []float32{0, 0, 1}}})).To(Succeed())
		Expect(d.Truncate(ctx, 10)).To(Succeed())
		Expect(d.Count(ctx)).To(Equal(2))
	})
})
