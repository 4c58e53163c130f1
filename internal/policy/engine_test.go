package policy_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/rtx/internal/advisory"
	"github.com/jordigilh/rtx/internal/policy"
	"github.com/jordigilh/rtx/internal/signal"
)

var _ = Describe("Engine", func() {
	var engine *policy.Engine

	BeforeEach(func() {
		var err error
		engine, err = policy.NewEngine(context.Background())
		Expect(err).NotTo(HaveOccurred())
	})

	It("returns safe with no reasons when no signal fired", func() {
		v, err := engine.Evaluate(context.Background(), signal.TrustSignal{})
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Severity).To(Equal(policy.SeveritySafe))
		Expect(v.Reasons).To(BeEmpty())
	})

	It("maps a known critical vulnerability straight through to critical", func() {
		sig := signal.TrustSignal{HasKnownVuln: true, KnownVulnSeverity: advisory.SeverityCritical}
		v, err := engine.Evaluate(context.Background(), sig)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Severity).To(Equal(policy.SeverityCritical))
		Expect(v.Reasons).To(HaveLen(1))
		Expect(v.Reasons[0].Signal).To(Equal("has_known_vuln"))
	})

	It("treats a typosquat candidate as high severity", func() {
		v, err := engine.Evaluate(context.Background(), signal.TrustSignal{Typosquat: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Severity).To(Equal(policy.SeverityHigh))
	})

	It("takes the maximum across multiple fired signals", func() {
		sig := signal.TrustSignal{Abandoned: true, BusFactorOne: true}
		v, err := engine.Evaluate(context.Background(), sig)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Severity).To(Equal(policy.SeverityMedium))
		Expect(v.Reasons).To(HaveLen(2))
		// severity desc, name asc: abandoned (medium) before bus_factor_one (low)
		Expect(v.Reasons[0].Signal).To(Equal("abandoned"))
		Expect(v.Reasons[1].Signal).To(Equal("bus_factor_one"))
	})

	It("suppresses bus_factor_one when bus_factor_zero also fired", func() {
		sig := signal.TrustSignal{BusFactorZero: true, BusFactorOne: true}
		v, err := engine.Evaluate(context.Background(), sig)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Severity).To(Equal(policy.SeverityMedium))
		Expect(v.Reasons).To(HaveLen(1))
		Expect(v.Reasons[0].Signal).To(Equal("bus_factor_zero"))
	})

	It("suppresses medium_churn when high_churn also fired", func() {
		sig := signal.TrustSignal{HighChurn: true, MediumChurn: true}
		v, err := engine.Evaluate(context.Background(), sig)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Reasons).To(HaveLen(1))
		Expect(v.Reasons[0].Signal).To(Equal("high_churn"))
	})

	It("only reports advisories that actually cover the installed version as contributing", func() {
		sig := signal.TrustSignal{
			HasKnownVuln:      true,
			KnownVulnSeverity: advisory.SeverityHigh,
			Version:           "1.3.0",
			Advisories: []advisory.Advisory{
				{ID: "GHSA-covers", Severity: advisory.SeverityHigh, Ranges: []advisory.VersionRange{{FixedExclusive: "2.0.0"}}},
				{ID: "GHSA-old-fixed", Severity: advisory.SeverityCritical, Ranges: []advisory.VersionRange{{FixedExclusive: "1.0.0"}}},
				{ID: "GHSA-withdrawn", Severity: advisory.SeverityCritical, Withdrawn: true, Ranges: []advisory.VersionRange{{}}},
			},
		}
		v, err := engine.Evaluate(context.Background(), sig)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.ContributingAdvisoryIDs).To(Equal([]string{"GHSA-covers"}))
	})

	It("maps safe/low severities to exit code 0", func() {
		Expect(policy.SeveritySafe.ExitCode()).To(Equal(0))
		Expect(policy.SeverityLow.ExitCode()).To(Equal(0))
	})

	It("maps medium severity to exit code 1", func() {
		Expect(policy.SeverityMedium.ExitCode()).To(Equal(1))
	})

	It("maps high and critical severities to exit code 2", func() {
		Expect(policy.SeverityHigh.ExitCode()).To(Equal(2))
		Expect(policy.SeverityCritical.ExitCode()).To(Equal(2))
	})
})
