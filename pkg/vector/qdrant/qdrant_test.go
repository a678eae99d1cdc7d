package qdrant_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/shelf/pkg/vector"
	"github.com/papercomputeco/shelf/pkg/vector/qdrant"
)

// target returns the Qdrant gRPC address from environment or skips the test.
func target() string {
	addr := os.Getenv("SHELF_TEST_QDRANT_TARGET")
	if addr == "" {
		Skip("SHELF_TEST_QDRANT_TARGET not set, skipping Qdrant tests")
	}
	return addr
}

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *qdrant.Driver
	)

	It("requires dimensions", func() {
		_, err := qdrant.NewDriver(context.Background(), qdrant.Config{}, slog.New(slog.DiscardHandler))
		Expect(err).To(HaveOccurred())
	})

	Context("against a live server", func() {
		BeforeEach(func() {
			ctx = context.Background()
			addr := target()

			var err error
			driver, err = qdrant.NewDriver(ctx, qdrant.Config{
				Target:     addr,
				Collection: fmt.Sprintf("shelf_test_%d", time.Now().UnixNano()),
				Dimensions: 3,
			}, slog.New(slog.DiscardHandler))
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Truncate(ctx, 0)).To(Succeed())
				Expect(driver.Close()).To(Succeed())
			}
		})

		It("adds, queries and truncates", func() {
			Expect(driver.Add(ctx, []vector.Entry{
				{Position: 0, Embedding: []float32{1, 0, 0}},
				{Position: 1, Embedding: []float32{0, 1, 0}},
			})).To(Succeed())
			Expect(driver.Count(ctx)).To(Equal(2))

			results, err := driver.Query(ctx, []float32{0, 1, 0}, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Position).To(Equal(1))
			Expect(results[0].Score).To(BeNumerically("~", 1.0, 1e-5))

			Expect(driver.Truncate(ctx, 1)).To(Succeed())
			Expect(driver.Count(ctx)).To(Equal(1))
		})

		It("rejects gaps", func() {
			err := driver.Add(ctx, []vector.Entry{{Position: 2, Embedding: []float32{1, 0, 0}}})
			Expect(err).To(MatchError(vector.ErrPosition))
		})
	})
})
