package orchestrator_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/rtx/internal/advisory"
	"github.com/jordigilh/rtx/internal/dependency"
	"github.com/jordigilh/rtx/internal/metadata"
	"github.com/jordigilh/rtx/internal/orchestrator"
)

var _ = Describe("Orchestrator.RunPreUpgrade", func() {
	It("flags a dependency that worsens after the proposed upgrade", func() {
		baseline := []dependency.Dependency{{Ecosystem: dependency.NPM, Name: "left-pad", Version: "1.0.0"}}
		proposed := []dependency.Dependency{{Ecosystem: dependency.NPM, Name: "left-pad", Version: "2.0.0"}}

		advisoryProvider := &stubAdvisoryProvider{name: "osv", fn: func(ctx context.Context, deps []dependency.Dependency) (advisory.Batch, error) {
			b := make(advisory.Batch, len(deps))
			for _, d := range deps {
				var advs []advisory.Advisory
				if d.Version == "2.0.0" {
					advs = []advisory.Advisory{{ID: "GHSA-new", Severity: advisory.SeverityCritical, Ranges: []advisory.VersionRange{{}}}}
				}
				b[d.KeyOf()] = advisory.Outcome{Advisories: advs}
			}
			return b, nil
		}}
		metadataProvider := &stubMetadataProvider{eco: dependency.NPM, fn: func(ctx context.Context, dep dependency.Dependency) (metadata.ReleaseMetadata, error) {
			return metadata.ReleaseMetadata{}, nil
		}}

		orch := orchestrator.New(newTestEngine(), []advisory.Provider{advisoryProvider}, []metadata.Provider{metadataProvider})
		diff, err := orch.RunPreUpgrade(context.Background(), baseline, proposed)
		Expect(err).NotTo(HaveOccurred())

		Expect(diff.Diff).To(HaveLen(1))
		Expect(diff.Diff[0].Worsened).To(BeTrue())
		Expect(diff.Diff[0].BaselineSeverity).To(Equal("safe"))
		Expect(diff.Diff[0].ProposedSeverity).To(Equal("critical"))
		Expect(diff.ExitCode).To(Equal(2))
	})

	It("reports no movement when the upgrade changes nothing", func() {
		baseline := []dependency.Dependency{{Ecosystem: dependency.NPM, Name: "left-pad", Version: "1.0.0"}}
		proposed := []dependency.Dependency{{Ecosystem: dependency.NPM, Name: "left-pad", Version: "1.1.0"}}

		advisoryProvider := &stubAdvisoryProvider{name: "osv", fn: func(ctx context.Context, deps []dependency.Dependency) (advisory.Batch, error) {
			b := make(advisory.Batch, len(deps))
			for _, d := range deps {
				b[d.KeyOf()] = advisory.Outcome{}
			}
			return b, nil
		}}
		metadataProvider := &stubMetadataProvider{eco: dependency.NPM, fn: func(ctx context.Context, dep dependency.Dependency) (metadata.ReleaseMetadata, error) {
			return metadata.ReleaseMetadata{}, nil
		}}

		orch := orchestrator.New(newTestEngine(), []advisory.Provider{advisoryProvider}, []metadata.Provider{metadataProvider})
		diff, err := orch.RunPreUpgrade(context.Background(), baseline, proposed)
		Expect(err).NotTo(HaveOccurred())

		Expect(diff.Diff).To(HaveLen(1))
		Expect(diff.Diff[0].Worsened).To(BeFalse())
		Expect(diff.Diff[0].Improved).To(BeFalse())
		Expect(diff.ExitCode).To(Equal(0))
	})
})
