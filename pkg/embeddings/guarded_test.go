package embeddings_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/shelf/pkg/embeddings"
	testutils "github.com/papercomputeco/shelf/pkg/utils/test"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

var _ = Describe("Guarded", func() {
	var (
		ctx   context.Context
		mock  *testutils.MockEmbedder
		loads atomic.Int32
	)

	factoryFor := func(e embeddings.Embedder) embeddings.Factory {
		return func(context.Context) (embeddings.Embedder, error) {
			loads.Add(1)
			return e, nil
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		mock = testutils.NewMockEmbedder()
		loads.Store(0)
	})

	It("returns unit vectors", func() {
		mock.Embeddings["clean code"] = []float32{3, 4, 0}
		g := embeddings.NewGuarded(factoryFor(mock), embeddings.GuardedOptions{Dimensions: 3})

		vec, err := g.Embed(ctx, "clean code")
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(HaveLen(3))
		Expect(vec[0]).To(BeNumerically("~", 0.6, 1e-6))
		Expect(vec[1]).To(BeNumerically("~", 0.8, 1e-6))
		Expect(norm(vec)).To(BeNumerically("~", 1.0, 1e-6))
	})

	It("does not divide by zero on a zero vector", func() {
		mock.Embeddings["zero vector"] = []float32{0, 0, 0}
		g := embeddings.NewGuarded(factoryFor(mock), embeddings.GuardedOptions{Dimensions: 3})

		vec, err := g.Embed(ctx, "zero vector")
		Expect(err).NotTo(HaveOccurred())
		for _, x := range vec {
			Expect(math.IsNaN(float64(x))).To(BeFalse())
		}
	})

	It("loads the model once", func() {
		g := embeddings.NewGuarded(factoryFor(mock), embeddings.GuardedOptions{Dimensions: 3})

		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := g.Embed(ctx, "design patterns")
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		Expect(loads.Load()).To(Equal(int32(1)))
	})

	It("retries a failed load", func() {
		attempts := 0
		g := embeddings.NewGuarded(func(context.Context) (embeddings.Embedder, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("model not pulled")
			}
			return mock, nil
		}, embeddings.GuardedOptions{Dimensions: 3})

		_, err := g.Embed(ctx, "design patterns")
		Expect(err).To(MatchError(embeddings.ErrModelLoad))

		_, err = g.Embed(ctx, "design patterns")
		Expect(err).NotTo(HaveOccurred())
		Expect(attempts).To(Equal(2))
	})

	It("rejects degenerate input without loading the model", func() {
		g := embeddings.NewGuarded(factoryFor(mock), embeddings.GuardedOptions{Dimensions: 3})

		for _, in := range []string{"", "  ", "ab", "aaaa aaaa", "1234 5678 ab"} {
			_, err := g.Embed(ctx, in)
			Expect(err).To(MatchError(embeddings.ErrNoSignal), in)
		}
		Expect(loads.Load()).To(BeZero())
	})

	It("reports a dimensionality mismatch", func() {
		mock.Embeddings["clean code"] = []float32{1, 2}
		g := embeddings.NewGuarded(factoryFor(mock), embeddings.GuardedOptions{Dimensions: 3})

		_, err := g.Embed(ctx, "clean code")
		Expect(err).To(MatchError(embeddings.ErrDimensions))
	})

	It("wraps model failures", func() {
		mock.FailOn = "clean code"
		g := embeddings.NewGuarded(factoryFor(mock), embeddings.GuardedOptions{Dimensions: 3})

		_, err := g.Embed(ctx, "clean code")
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
	})

	It("truncates long input", func() {
		rec := &recordingEmbedder{}
		g := embeddings.NewGuarded(factoryFor(rec), embeddings.GuardedOptions{MaxInputChars: 10})

		_, err := g.Embed(ctx, "the art of computer programming")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.last).To(Equal("the art of"))
	})

	It("bounds concurrent calls into the model", func() {
		slow := &recordingEmbedder{delay: 20 * time.Millisecond}
		g := embeddings.NewGuarded(factoryFor(slow), embeddings.GuardedOptions{MaxConcurrent: 1})

		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := g.Embed(ctx, "refactoring")
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		Expect(slow.peak.Load()).To(Equal(int32(1)))
	})

	It("gives up waiting when the context ends", func() {
		slow := &recordingEmbedder{delay: 200 * time.Millisecond}
		g := embeddings.NewGuarded(factoryFor(slow), embeddings.GuardedOptions{MaxConcurrent: 1})

		go func() { _, _ = g.Embed(ctx, "refactoring") }()
		Eventually(slow.active.Load).Should(Equal(int32(1)))

		short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := g.Embed(short, "refactoring")
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("closes the loaded model", func() {
		g := embeddings.NewGuarded(factoryFor(mock), embeddings.GuardedOptions{})
		Expect(g.Close()).To(Succeed())

		_, err := g.Embed(ctx, "refactoring")
		Expect(err).NotTo(HaveOccurred())
		Expect(g.Close()).To(Succeed())
	})
})

var _ = Describe("Degenerate", func() {
	DescribeTable("input signal",
		func(in string, want bool) {
			Expect(embeddings.Degenerate(in)).To(Equal(want))
		},
		Entry("empty", "", true),
		Entry("two characters", "ab", true),
		Entry("one repeated character", "xxxxxx", true),
		Entry("mostly digits", "12345 abc", true),
		Entry("title", "clean code", false),
		Entry("title with a year", "windows 2000", false),
	)
})

var _ = Describe("Truncate", func() {
	It("cuts on rune boundaries", func() {
		Expect(embeddings.Truncate("cafébabe", 4)).To(Equal("café"))
		Expect(embeddings.Truncate("short", 80)).To(Equal("short"))
		Expect(embeddings.Truncate("unbounded", 0)).To(Equal("unbounded"))
	})
})

var _ = Describe("Dot", func() {
	It("is the cosine of unit vectors", func() {
		a := embeddings.Unit([]float32{1, 0})
		b := embeddings.Unit([]float32{1, 1})
		Expect(embeddings.Dot(a, b)).To(BeNumerically("~", math.Sqrt2/2, 1e-6))
	})
})

type recordingEmbedder struct {
	delay  time.Duration
	mu     sync.Mutex
	last   string
	active atomic.Int32
	peak   atomic.Int32
}

func (r *recordingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}

	r.mu.Lock()
	r.last = text
	r.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []float32{1, 2, 3}, nil
}

func (r *recordingEmbedder) Close() error { return nil }
