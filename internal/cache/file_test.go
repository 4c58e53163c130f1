package cache_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/rtx/internal/cache"
)

var _ = Describe("FileCache", func() {
	var (
		ctx context.Context
		dir string
		c   *cache.FileCache
		key cache.Key
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		dir, err = os.MkdirTemp("", "rtx-cache-*")
		Expect(err).NotTo(HaveOccurred())
		c, err = cache.NewFileCache(dir, 64)
		Expect(err).NotTo(HaveOccurred())
		key = cache.Key{Source: "osv", Ecosystem: "npm", Name: "left-pad", Version: "1.0.0"}
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("persists entries to disk via an atomic write-then-rename", func() {
		Expect(c.Set(ctx, key, []byte("payload"), time.Hour)).To(Succeed())

		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).NotTo(BeEmpty())
		for _, e := range entries {
			Expect(filepath.Ext(e.Name())).NotTo(Equal(".tmp"))
		}

		payload, ok, err := c.Get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(payload).To(Equal([]byte("payload")))
	})

	It("treats an expired entry as a miss and removes it", func() {
		Expect(c.Set(ctx, key, []byte("payload"), -time.Second)).To(Succeed())

		_, ok, err := c.Get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("treats a corrupted on-disk payload as a miss", func() {
		Expect(c.Set(ctx, key, []byte("payload"), time.Hour)).To(Succeed())

		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).NotTo(BeEmpty())
		corruptPath := filepath.Join(dir, entries[0].Name())
		Expect(os.WriteFile(corruptPath, []byte("not json"), 0o644)).To(Succeed())

		// A fresh FileCache over the same directory has no in-process entry,
		// so this Get is forced to read (and reject) the corrupted file.
		fresh, err := cache.NewFileCache(dir, 64)
		Expect(err).NotTo(HaveOccurred())

		_, ok, err := fresh.Get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})
})
