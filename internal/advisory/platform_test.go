package advisory_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/rtx/internal/advisory"
	"github.com/jordigilh/rtx/internal/cache"
	"github.com/jordigilh/rtx/internal/dependency"
)

var _ = Describe("PlatformProvider", func() {
	dep := dependency.Dependency{Ecosystem: dependency.NPM, Name: "event-stream", Version: "3.3.6"}

	It("returns ErrAuthFailed on a 401 from the platform API", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		p := advisory.NewPlatformProvider(srv.URL, "bad-token", cache.NewMemoryCache(64))
		_, err := p.EnrichBatch(context.Background(), []dependency.Dependency{dep})
		Expect(err).To(MatchError(advisory.ErrAuthFailed))
	})

	It("marks the dependency unavailable instead of failing on a 500", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		p := advisory.NewPlatformProvider(srv.URL, "token", cache.NewMemoryCache(64))
		batch, err := p.EnrichBatch(context.Background(), []dependency.Dependency{dep})
		Expect(err).NotTo(HaveOccurred())
		Expect(batch[dep.KeyOf()].Unavailable).To(BeTrue())
	})

	It("parses a GHSA-shaped advisory including its vulnerable range", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer secret-token"))
			resp := []map[string]interface{}{
				{
					"ghsa_id":  "GHSA-yyyy",
					"severity": "high",
					"summary":  "event-stream contained a malicious dependency",
					"vulnerabilities": []map[string]string{
						{"vulnerable_version_range": ">= 3.3.6, < 4.0.0", "first_patched_version": "4.0.0"},
					},
				},
			}
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer srv.Close()

		p := advisory.NewPlatformProvider(srv.URL, "secret-token", cache.NewMemoryCache(64))
		batch, err := p.EnrichBatch(context.Background(), []dependency.Dependency{dep})
		Expect(err).NotTo(HaveOccurred())

		advs := batch[dep.KeyOf()].Advisories
		Expect(advs).To(HaveLen(1))
		Expect(advs[0].ID).To(Equal("GHSA-yyyy"))
		Expect(advs[0].Severity).To(Equal(advisory.SeverityHigh))
		Expect(advs[0].Ranges[0].IntroducedInclusive).To(Equal("3.3.6"))
		Expect(advs[0].Ranges[0].FixedExclusive).To(Equal("4.0.0"))
	})
})
