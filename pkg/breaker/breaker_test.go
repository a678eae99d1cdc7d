package breaker_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"

	"github.com/papercomputeco/shelf/pkg/breaker"
	"github.com/papercomputeco/shelf/pkg/metrics"
)

var _ = Describe("New", func() {
	boom := errors.New("boom")
	empty := errors.New("empty")

	fail := func(err error) func() (string, error) {
		return func() (string, error) { return "", err }
	}

	It("opens after enough failures and rejects calls", func() {
		cb := breaker.New[string](breaker.Options{
			Name:        "test-open",
			MinRequests: 3,
			OpenTimeout: time.Hour,
		})

		for range 3 {
			_, err := cb.Execute(fail(boom))
			Expect(err).To(MatchError(boom))
		}
		Expect(cb.State()).To(Equal(gobreaker.StateOpen))

		_, err := cb.Execute(func() (string, error) { return "ok", nil })
		Expect(breaker.Rejected(err)).To(BeTrue())
		Expect(testutil.ToFloat64(metrics.BreakerState.WithLabelValues("test-open"))).To(Equal(2.0))
	})

	It("stays closed below the minimum request count", func() {
		cb := breaker.New[string](breaker.Options{Name: "test-min", MinRequests: 10})
		for range 5 {
			_, _ = cb.Execute(fail(boom))
		}
		Expect(cb.State()).To(Equal(gobreaker.StateClosed))
	})

	It("does not count caller cancellation or accepted errors", func() {
		cb := breaker.New[string](breaker.Options{
			Name:        "test-success",
			MinRequests: 2,
			Success:     func(err error) bool { return errors.Is(err, empty) },
		})
		for range 4 {
			_, _ = cb.Execute(fail(context.Canceled))
			_, _ = cb.Execute(fail(empty))
		}
		Expect(cb.State()).To(Equal(gobreaker.StateClosed))
		Expect(cb.Counts().TotalFailures).To(BeZero())
	})

	It("does not treat remote errors as rejections", func() {
		Expect(breaker.Rejected(boom)).To(BeFalse())
		Expect(breaker.Rejected(gobreaker.ErrOpenState)).To(BeTrue())
	})
})
