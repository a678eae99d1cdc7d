package redis_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/shelf/pkg/storage"
	"github.com/papercomputeco/shelf/pkg/storage/redis"
	"github.com/papercomputeco/shelf/pkg/storage/storagetest"
)

// redisURL returns the Redis URL from environment or skips the test.
func redisURL() string {
	url := os.Getenv("SHELF_TEST_REDIS_URL")
	if url == "" {
		Skip("SHELF_TEST_REDIS_URL not set, skipping Redis tests")
	}
	return url
}

var _ = Describe("Driver", func() {
	storagetest.DescribeDriver(func() storage.Driver {
		ctx := context.Background()
		driver, err := redis.NewDriver(ctx, redisURL())
		Expect(err).NotTo(HaveOccurred())

		for _, user := range []string{"alice", "bob", "carol"} {
			Expect(driver.Forget(ctx, user)).To(Succeed())
		}
		return driver
	})
})
