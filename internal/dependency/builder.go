package dependency

import "sort"

// Scanner is the inbound contract an ecosystem manifest parser presents to
// RTX. Scanners never perform network I/O; they only read files under
// projectRoot and emit the Dependency records they found.
type Scanner interface {
	// Ecosystem is the manifest ecosystem this scanner recognizes.
	Ecosystem() Ecosystem
	// ManifestNames lists the manifest/lockfile filenames this scanner reads.
	ManifestNames() []string
	// Scan parses projectRoot and returns every Dependency it found.
	Scan(projectRoot string) ([]Dependency, error)
}

// ScanError records a single scanner's failure without aborting the build:
// the Dependency Set Builder contract never drops a scanner's output
// silently, so failures are surfaced as structured entries instead.
type ScanError struct {
	Ecosystem Ecosystem
	Err       error
}

// Builder deduplicates and sorts Dependency records from any number of
// scanners into the working set the rest of the pipeline evaluates.
type Builder struct {
	merged map[Key]Dependency
	errs   []ScanError
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{merged: make(map[Key]Dependency)}
}

// Add merges deps into the working set. Collisions on the same Key retain
// the first manifest path seen and union the Direct flag toward true: a
// dependency is direct if any source marked it direct.
func (b *Builder) Add(deps ...Dependency) {
	for _, d := range deps {
		k := d.KeyOf()
		existing, ok := b.merged[k]
		if !ok {
			b.merged[k] = d
			continue
		}
		if d.Direct {
			existing.Direct = true
		}
		b.merged[k] = existing
	}
}

// AddScanError records a scanner failure for later inspection without
// aborting the build.
func (b *Builder) AddScanError(eco Ecosystem, err error) {
	b.errs = append(b.errs, ScanError{Ecosystem: eco, Err: err})
}

// Errors returns the scan errors recorded so far, in the order they were added.
func (b *Builder) Errors() []ScanError {
	return b.errs
}

// Build returns the stable, sorted, deduplicated working set. Ordering is a
// total order over (ecosystem, name, version), ties broken lexically, so
// the same inputs always yield the same vector.
func (b *Builder) Build() []Dependency {
	out := make([]Dependency, 0, len(b.merged))
	for _, d := range b.merged {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		a, c := out[i].KeyOf(), out[j].KeyOf()
		if a.Ecosystem != c.Ecosystem {
			return a.Ecosystem < c.Ecosystem
		}
		if a.Name != c.Name {
			return a.Name < c.Name
		}
		return a.Version < c.Version
	})
	return out
}
