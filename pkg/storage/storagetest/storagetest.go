// Package storagetest holds the behaviour every storage.Driver must share.
package storagetest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/shelf/pkg/storage"
)

// DescribeDriver registers the shared driver specs. newDriver is called
// before each spec and must return an empty driver.
func DescribeDriver(newDriver func() storage.Driver) {
	var (
		ctx    context.Context
		driver storage.Driver
		base   time.Time
	)

	entry := func(user, fp, title string, offset time.Duration) storage.Entry {
		return storage.Entry{
			UserID:      user,
			Fingerprint: fp,
			Title:       title,
			CreatedAt:   base.Add(offset),
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		driver = nil
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	It("starts empty", func() {
		titles, err := driver.Titles(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(titles).To(BeEmpty())
	})

	It("inserts once per fingerprint", func() {
		inserted, err := driver.InsertIfAbsent(ctx, entry("alice", "fp-clean", "clean code", 0))
		Expect(err).NotTo(HaveOccurred())
		Expect(inserted).To(BeTrue())

		inserted, err = driver.InsertIfAbsent(ctx, entry("alice", "fp-clean", "code clean", time.Second))
		Expect(err).NotTo(HaveOccurred())
		Expect(inserted).To(BeFalse())

		titles, err := driver.Titles(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(titles).To(Equal([]string{"clean code"}))
	})

	It("returns titles oldest first", func() {
		_, err := driver.InsertIfAbsent(ctx, entry("alice", "fp-b", "design patterns", 2*time.Second))
		Expect(err).NotTo(HaveOccurred())
		_, err = driver.InsertIfAbsent(ctx, entry("alice", "fp-a", "clean code", time.Second))
		Expect(err).NotTo(HaveOccurred())

		titles, err := driver.Titles(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(titles).To(Equal([]string{"clean code", "design patterns"}))
	})

	It("keeps users apart", func() {
		_, err := driver.InsertIfAbsent(ctx, entry("alice", "fp-clean", "clean code", 0))
		Expect(err).NotTo(HaveOccurred())

		inserted, err := driver.InsertIfAbsent(ctx, entry("bob", "fp-clean", "clean code", 0))
		Expect(err).NotTo(HaveOccurred())
		Expect(inserted).To(BeTrue())

		titles, err := driver.Titles(ctx, "carol")
		Expect(err).NotTo(HaveOccurred())
		Expect(titles).To(BeEmpty())
	})

	It("requires a user and a fingerprint", func() {
		_, err := driver.InsertIfAbsent(ctx, entry("", "fp", "clean code", 0))
		Expect(err).To(MatchError(storage.ErrEmptyUser))

		_, err = driver.InsertIfAbsent(ctx, entry("alice", "", "clean code", 0))
		Expect(err).To(MatchError(storage.ErrEmptyFingerprint))

		_, err = driver.Titles(ctx, "")
		Expect(err).To(MatchError(storage.ErrEmptyUser))
	})

	It("admits exactly one of many concurrent inserts", func() {
		var (
			wg       sync.WaitGroup
			inserted atomic.Int32
		)
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				ok, err := driver.InsertIfAbsent(ctx, entry("alice", "fp-race", "refactoring", time.Duration(i)))
				Expect(err).NotTo(HaveOccurred())
				if ok {
					inserted.Add(1)
				}
			}()
		}
		wg.Wait()

		Expect(inserted.Load()).To(Equal(int32(1)))
	})
}
