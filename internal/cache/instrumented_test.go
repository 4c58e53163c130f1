package cache_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/rtx/internal/cache"
	"github.com/jordigilh/rtx/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ = Describe("WithMetrics", func() {
	var (
		ctx context.Context
		key cache.Key
	)

	BeforeEach(func() {
		ctx = context.Background()
		key = cache.Key{Source: "osv", Ecosystem: "npm", Name: "left-pad", Version: "1.0.0"}
	})

	It("returns the inner cache unwrapped when metrics is nil", func() {
		inner := cache.NewMemoryCache(2)
		Expect(cache.WithMetrics(inner, nil)).To(BeIdenticalTo(cache.Cache(inner)))
	})

	It("counts a Get miss then a GetOrFetch fill as a miss, and the next Get as a hit", func() {
		reg := prometheus.NewRegistry()
		metrics := telemetry.NewMetrics(reg)
		c := cache.WithMetrics(cache.NewMemoryCache(2), metrics)

		_, ok, err := c.Get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(testutil.ToFloat64(metrics.CacheMisses.WithLabelValues("osv"))).To(Equal(float64(1)))

		payload, err := c.GetOrFetch(ctx, key, time.Hour, func(context.Context) ([]byte, error) {
			return []byte("payload"), nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(payload).To(Equal([]byte("payload")))
		Expect(testutil.ToFloat64(metrics.CacheMisses.WithLabelValues("osv"))).To(Equal(float64(2)))

		_, ok, err = c.Get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(testutil.ToFloat64(metrics.CacheHits.WithLabelValues("osv"))).To(Equal(float64(1)))
	})

	It("does not count a failed fetch as a hit or record a miss twice", func() {
		reg := prometheus.NewRegistry()
		metrics := telemetry.NewMetrics(reg)
		c := cache.WithMetrics(cache.NewMemoryCache(2), metrics)

		_, err := c.GetOrFetch(ctx, key, time.Hour, func(context.Context) ([]byte, error) {
			return nil, errors.New("boom")
		})
		Expect(err).To(HaveOccurred())
		Expect(testutil.ToFloat64(metrics.CacheHits.WithLabelValues("osv"))).To(Equal(float64(0)))
		Expect(testutil.ToFloat64(metrics.CacheMisses.WithLabelValues("osv"))).To(Equal(float64(0)))
	})
})
