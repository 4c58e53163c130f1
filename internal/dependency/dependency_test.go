package dependency_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/rtx/internal/dependency"
)

var _ = Describe("NormalizeName", func() {
	It("lowercases names for case-insensitive ecosystems", func() {
		Expect(dependency.NormalizeName(dependency.NPM, "Lodash")).To(Equal("lodash"))
	})

	It("leaves Go module paths case sensitive", func() {
		Expect(dependency.NormalizeName(dependency.Go, "GitHub.com/Foo/Bar")).To(Equal("GitHub.com/Foo/Bar"))
	})

	It("folds separators for PyPI per PEP 503", func() {
		Expect(dependency.NormalizeName(dependency.PyPI, "Foo_Bar.Baz")).To(Equal("foo-bar-baz"))
	})
})

var _ = Describe("Builder", func() {
	It("merges duplicate keys and unions the direct flag toward true", func() {
		b := dependency.NewBuilder()
		b.Add(dependency.Dependency{Ecosystem: dependency.NPM, Name: "left-pad", Version: "1.0.0", ManifestPath: "a/package.json", Direct: false})
		b.Add(dependency.Dependency{Ecosystem: dependency.NPM, Name: "left-pad", Version: "1.0.0", ManifestPath: "b/package.json", Direct: true})

		out := b.Build()
		Expect(out).To(HaveLen(1))
		Expect(out[0].Direct).To(BeTrue())
		Expect(out[0].ManifestPath).To(Equal("a/package.json"))
	})

	It("sorts the working set by ecosystem, name, then version", func() {
		b := dependency.NewBuilder()
		b.Add(
			dependency.Dependency{Ecosystem: dependency.PyPI, Name: "requests", Version: "2.0.0"},
			dependency.Dependency{Ecosystem: dependency.NPM, Name: "zeta", Version: "1.0.0"},
			dependency.Dependency{Ecosystem: dependency.NPM, Name: "alpha", Version: "2.0.0"},
			dependency.Dependency{Ecosystem: dependency.NPM, Name: "alpha", Version: "1.0.0"},
		)

		out := b.Build()
		Expect(out).To(HaveLen(4))
		Expect(out[0].Name).To(Equal("alpha"))
		Expect(out[0].Version).To(Equal("1.0.0"))
		Expect(out[1].Name).To(Equal("alpha"))
		Expect(out[1].Version).To(Equal("2.0.0"))
		Expect(out[2].Name).To(Equal("zeta"))
		Expect(out[3].Ecosystem).To(Equal(dependency.PyPI))
	})

	It("records scan errors without dropping other scanners' results", func() {
		b := dependency.NewBuilder()
		b.Add(dependency.Dependency{Ecosystem: dependency.NPM, Name: "ok", Version: "1.0.0"})
		b.AddScanError(dependency.Cargo, errBoom)

		Expect(b.Build()).To(HaveLen(1))
		Expect(b.Errors()).To(HaveLen(1))
		Expect(b.Errors()[0].Ecosystem).To(Equal(dependency.Cargo))
	})
})

var errBoom = &scanFailure{"manifest parse failed"}

type scanFailure struct{ msg string }

func (e *scanFailure) Error() string { return e.msg }
