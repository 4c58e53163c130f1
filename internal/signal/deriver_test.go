package signal_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/rtx/internal/advisory"
	"github.com/jordigilh/rtx/internal/dependency"
	"github.com/jordigilh/rtx/internal/metadata"
	"github.com/jordigilh/rtx/internal/signal"
)

func intPtr(n int) *int              { return &n }
func timePtr(t time.Time) *time.Time { return &t }
func int64Ptr(n int64) *int64        { return &n }

var _ = Describe("Derive", func() {
	var (
		now time.Time
		dep dependency.Dependency
		th  signal.Thresholds
	)

	BeforeEach(func() {
		now = time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
		dep = dependency.Dependency{Ecosystem: dependency.NPM, Name: "left-pad", Version: "1.3.0"}
		th = signal.DefaultThresholds()
	})

	It("asserts nothing when every metadata scalar is unknown", func() {
		sig := signal.Derive(dep, nil, metadata.Unknown(), th, now)

		Expect(sig.Abandoned).To(BeFalse())
		Expect(sig.HighChurn).To(BeFalse())
		Expect(sig.MediumChurn).To(BeFalse())
		Expect(sig.BusFactorZero).To(BeFalse())
		Expect(sig.BusFactorOne).To(BeFalse())
		Expect(sig.LowMaturity).To(BeFalse())
		Expect(sig.Typosquat).To(BeFalse())
		Expect(sig.HasKnownVuln).To(BeFalse())
	})

	It("flags abandonment once the latest release crosses the threshold", func() {
		stale := now.AddDate(0, 0, -th.AbandonmentDays-1)
		meta := metadata.ReleaseMetadata{LatestReleaseAt: timePtr(stale)}

		sig := signal.Derive(dep, nil, meta, th, now)
		Expect(sig.Abandoned).To(BeTrue())
	})

	It("does not flag abandonment just under the threshold", func() {
		recent := now.AddDate(0, 0, -th.AbandonmentDays+1)
		meta := metadata.ReleaseMetadata{LatestReleaseAt: timePtr(recent)}

		sig := signal.Derive(dep, nil, meta, th, now)
		Expect(sig.Abandoned).To(BeFalse())
	})

	It("flags high churn over medium churn when both thresholds are crossed", func() {
		meta := metadata.ReleaseMetadata{ReleasesLast30Days: intPtr(th.ChurnHighPerMonth)}
		sig := signal.Derive(dep, nil, meta, th, now)
		Expect(sig.HighChurn).To(BeTrue())
		Expect(sig.MediumChurn).To(BeFalse())
	})

	It("flags medium churn when only the medium threshold is crossed", func() {
		meta := metadata.ReleaseMetadata{ReleasesLast30Days: intPtr(th.ChurnMediumPerMonth)}
		sig := signal.Derive(dep, nil, meta, th, now)
		Expect(sig.HighChurn).To(BeFalse())
		Expect(sig.MediumChurn).To(BeTrue())
	})

	It("flags bus-factor-zero for a zero maintainer count", func() {
		meta := metadata.ReleaseMetadata{MaintainerCount: intPtr(0)}
		sig := signal.Derive(dep, nil, meta, th, now)
		Expect(sig.BusFactorZero).To(BeTrue())
		Expect(sig.BusFactorOne).To(BeFalse())
	})

	It("flags bus-factor-one for a single maintainer", func() {
		meta := metadata.ReleaseMetadata{MaintainerCount: intPtr(1)}
		sig := signal.Derive(dep, nil, meta, th, now)
		Expect(sig.BusFactorZero).To(BeFalse())
		Expect(sig.BusFactorOne).To(BeTrue())
	})

	It("flags low maturity under the release-count floor", func() {
		meta := metadata.ReleaseMetadata{TotalReleases: intPtr(th.LowMaturityReleases - 1)}
		sig := signal.Derive(dep, nil, meta, th, now)
		Expect(sig.LowMaturity).To(BeTrue())
	})

	It("flags typosquat for a popular candidate within edit distance", func() {
		meta := metadata.ReleaseMetadata{
			TyposquatCandidates: []metadata.Candidate{{Name: "left-pads", Distance: 1, Popularity: 1000}},
		}
		sig := signal.Derive(dep, nil, meta, th, now)
		Expect(sig.Typosquat).To(BeTrue())
	})

	It("does not flag typosquat beyond the configured edit distance", func() {
		meta := metadata.ReleaseMetadata{
			TyposquatCandidates: []metadata.Candidate{{Name: "completely-different", Distance: 10, Popularity: 1000}},
		}
		sig := signal.Derive(dep, nil, meta, th, now)
		Expect(sig.Typosquat).To(BeFalse())
	})

	It("does not flag typosquat when the candidate is no more popular than the dependency itself", func() {
		meta := metadata.ReleaseMetadata{
			Popularity:          int64Ptr(5000),
			TyposquatCandidates: []metadata.Candidate{{Name: "left-pads", Distance: 1, Popularity: 5000}},
		}
		sig := signal.Derive(dep, nil, meta, th, now)
		Expect(sig.Typosquat).To(BeFalse())
	})

	It("flags typosquat when the candidate strictly outpopulates a known self popularity", func() {
		meta := metadata.ReleaseMetadata{
			Popularity:          int64Ptr(100),
			TyposquatCandidates: []metadata.Candidate{{Name: "left-pads", Distance: 1, Popularity: 101}},
		}
		sig := signal.Derive(dep, nil, meta, th, now)
		Expect(sig.Typosquat).To(BeTrue())
	})

	It("flags yanked when the metadata marks the version yanked", func() {
		meta := metadata.ReleaseMetadata{VersionYanked: true}
		sig := signal.Derive(dep, nil, meta, th, now)
		Expect(sig.Yanked).To(BeTrue())
	})

	It("surfaces the max known-vulnerability severity that covers the installed version", func() {
		advs := []advisory.Advisory{
			{ID: "GHSA-low", Severity: advisory.SeverityLow, Ranges: []advisory.VersionRange{{FixedExclusive: "9.9.9"}}},
			{ID: "GHSA-high", Severity: advisory.SeverityHigh, Ranges: []advisory.VersionRange{{FixedExclusive: "9.9.9"}}},
		}
		sig := signal.Derive(dep, advs, metadata.Unknown(), th, now)
		Expect(sig.HasKnownVuln).To(BeTrue())
		Expect(sig.KnownVulnSeverity).To(Equal(advisory.SeverityHigh))
	})

	It("does not assert a known vulnerability when no advisory covers the installed version", func() {
		advs := []advisory.Advisory{
			{ID: "GHSA-old", Severity: advisory.SeverityCritical, Ranges: []advisory.VersionRange{{FixedExclusive: "1.0.0"}}},
		}
		sig := signal.Derive(dep, advs, metadata.Unknown(), th, now)
		Expect(sig.HasKnownVuln).To(BeFalse())
	})
})
