package advisory_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"context"

	"github.com/jordigilh/rtx/internal/advisory"
	"github.com/jordigilh/rtx/internal/cache"
	"github.com/jordigilh/rtx/internal/dependency"
)

var _ = Describe("OSVProvider", func() {
	var deps []dependency.Dependency

	BeforeEach(func() {
		deps = []dependency.Dependency{
			{Ecosystem: dependency.NPM, Name: "left-pad", Version: "1.0.0"},
		}
	})

	It("returns ErrAuthFailed when the endpoint rejects the request", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		p := advisory.NewOSVProvider(srv.URL, cache.NewMemoryCache(64))
		_, err := p.EnrichBatch(context.Background(), deps)
		Expect(err).To(MatchError(advisory.ErrAuthFailed))
	})

	It("marks dependencies unavailable on a malformed upstream payload instead of failing", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("not json"))
		}))
		defer srv.Close()

		p := advisory.NewOSVProvider(srv.URL, cache.NewMemoryCache(64))
		batch, err := p.EnrichBatch(context.Background(), deps)
		Expect(err).NotTo(HaveOccurred())
		Expect(batch[deps[0].KeyOf()].Unavailable).To(BeTrue())
	})

	It("translates a vulnerability hit into an Advisory and serves it from cache on the next call", func() {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			resp := map[string]interface{}{
				"results": []map[string]interface{}{
					{
						"vulns": []map[string]interface{}{
							{
								"id":      "GHSA-xxxx",
								"summary": "left-pad is evil",
								"severity": []map[string]string{
									{"type": "CVSS_V3", "score": "9.8"},
								},
								"affected": []map[string]interface{}{
									{"ranges": []map[string]interface{}{
										{"events": []map[string]string{
											{"introduced": "0"},
											{"fixed": "1.1.0"},
										}},
									}},
								},
							},
						},
					},
				},
			}
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer srv.Close()

		c := cache.NewMemoryCache(64)
		p := advisory.NewOSVProvider(srv.URL, c)

		batch, err := p.EnrichBatch(context.Background(), deps)
		Expect(err).NotTo(HaveOccurred())
		advs := batch[deps[0].KeyOf()].Advisories
		Expect(advs).To(HaveLen(1))
		Expect(advs[0].ID).To(Equal("GHSA-xxxx"))
		Expect(advs[0].Severity).To(Equal(advisory.SeverityCritical))
		Expect(calls).To(Equal(1))

		_, err = p.EnrichBatch(context.Background(), deps)
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(1), "second call should be served entirely from cache")
	})
})
