package ownership_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/shelf/pkg/ownership"
)

var _ = Describe("Cache", func() {
	var (
		ctx   context.Context
		now   time.Time
		clock func() time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		clock = func() time.Time { return now }
	})

	load := func(titles ...string) func(context.Context) ([]string, error) {
		return func(context.Context) ([]string, error) { return titles, nil }
	}

	It("misses until filled", func() {
		c := ownership.NewCache(time.Minute, 4, clock)
		_, ok := c.Get("u1")
		Expect(ok).To(BeFalse())

		titles, err := c.Fill(ctx, "u1", load("clean code"))
		Expect(err).NotTo(HaveOccurred())
		Expect(titles).To(Equal([]string{"clean code"}))

		got, ok := c.Get("u1")
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal([]string{"clean code"}))
	})

	It("expires entries after the ttl", func() {
		c := ownership.NewCache(time.Minute, 4, clock)
		_, err := c.Fill(ctx, "u1", load("clean code"))
		Expect(err).NotTo(HaveOccurred())

		now = now.Add(59 * time.Second)
		_, ok := c.Get("u1")
		Expect(ok).To(BeTrue())

		now = now.Add(time.Second)
		_, ok = c.Get("u1")
		Expect(ok).To(BeFalse())
		Expect(c.Len()).To(Equal(0))
	})

	It("evicts the oldest fill when over capacity", func() {
		c := ownership.NewCache(time.Hour, 2, clock)
		for _, u := range []string{"u1", "u2", "u3"} {
			_, err := c.Fill(ctx, u, load("book"))
			Expect(err).NotTo(HaveOccurred())
			now = now.Add(time.Second)
		}

		Expect(c.Len()).To(Equal(2))
		_, ok := c.Get("u1")
		Expect(ok).To(BeFalse())
		_, ok = c.Get("u3")
		Expect(ok).To(BeTrue())
	})

	It("appends only to fresh entries", func() {
		c := ownership.NewCache(time.Minute, 4, clock)
		c.Append("u1", "ghost")
		_, ok := c.Get("u1")
		Expect(ok).To(BeFalse())

		_, err := c.Fill(ctx, "u1", load("clean code"))
		Expect(err).NotTo(HaveOccurred())
		c.Append("u1", "refactoring")
		c.Append("u1", "refactoring")

		got, _ := c.Get("u1")
		Expect(got).To(Equal([]string{"clean code", "refactoring"}))
	})

	It("does not let callers mutate cached titles", func() {
		c := ownership.NewCache(time.Minute, 4, clock)
		got, err := c.Fill(ctx, "u1", load("clean code"))
		Expect(err).NotTo(HaveOccurred())
		got[0] = "mutated"

		again, _ := c.Get("u1")
		Expect(again).To(Equal([]string{"clean code"}))
	})

	It("does not cache failed loads", func() {
		c := ownership.NewCache(time.Minute, 4, clock)
		boom := errors.New("boom")
		_, err := c.Fill(ctx, "u1", func(context.Context) ([]string, error) { return nil, boom })
		Expect(err).To(MatchError(boom))
		Expect(c.Len()).To(Equal(0))
	})

	It("invalidates a user", func() {
		c := ownership.NewCache(time.Minute, 4, clock)
		_, err := c.Fill(ctx, "u1", load("clean code"))
		Expect(err).NotTo(HaveOccurred())
		c.Invalidate("u1")
		_, ok := c.Get("u1")
		Expect(ok).To(BeFalse())
	})

	It("collapses concurrent fills for one user", func() {
		c := ownership.NewCache(time.Minute, 4, time.Now)
		var loads atomic.Int32
		release := make(chan struct{})

		slow := func(context.Context) ([]string, error) {
			loads.Add(1)
			<-release
			return []string{"clean code"}, nil
		}

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				titles, err := c.Fill(ctx, "u1", slow)
				Expect(err).NotTo(HaveOccurred())
				Expect(titles).To(Equal([]string{"clean code"}))
			}()
		}

		Eventually(loads.Load).Should(BeEquivalentTo(1))
		close(release)
		wg.Wait()
		Expect(loads.Load()).To(BeNumerically("<=", 8))
		Expect(c.Len()).To(Equal(1))
	})

	It("keeps loading for other waiters when the first caller gives up", func() {
		c := ownership.NewCache(time.Minute, 4, clock)
		started := make(chan context.Context, 1)
		release := make(chan struct{})

		slow := func(loadCtx context.Context) ([]string, error) {
			started <- loadCtx
			select {
			case <-release:
				return []string{"clean code"}, nil
			case <-loadCtx.Done():
				return nil, loadCtx.Err()
			}
		}

		callerCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			_, err := c.Fill(callerCtx, "u1", slow)
			done <- err
		}()

		var loadCtx context.Context
		Eventually(started).Should(Receive(&loadCtx))
		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
		Expect(loadCtx.Err()).NotTo(HaveOccurred())

		close(release)
		Eventually(func() bool {
			_, ok := c.Get("u1")
			return ok
		}).Should(BeTrue())
	})

	It("drops a load that overlapped a write for the same user", func() {
		c := ownership.NewCache(time.Minute, 4, clock)
		started := make(chan struct{})
		release := make(chan struct{})

		before := func(context.Context) ([]string, error) {
			close(started)
			<-release
			return []string{"clean code"}, nil
		}

		done := make(chan []string, 1)
		go func() {
			defer GinkgoRecover()
			titles, err := c.Fill(ctx, "u1", before)
			Expect(err).NotTo(HaveOccurred())
			done <- titles
		}()

		Eventually(started).Should(BeClosed())
		c.Append("u1", "refactoring")
		close(release)

		Eventually(done).Should(Receive(Equal([]string{"clean code"})))
		_, ok := c.Get("u1")
		Expect(ok).To(BeFalse())

		titles, err := c.Fill(ctx, "u1", load("clean code", "refactoring"))
		Expect(err).NotTo(HaveOccurred())
		Expect(titles).To(ConsistOf("clean code", "refactoring"))
		cached, ok := c.Get("u1")
		Expect(ok).To(BeTrue())
		Expect(cached).To(ConsistOf("clean code", "refactoring"))
	})
})
