// Package advisory enriches dependencies with vulnerability advisories from
// heterogeneous upstream sources (a batch vulnerability service, a platform
// security API, ecosystem-native feeds), unified behind one capability:
// given a batch of dependencies, return a per-dependency outcome.
package advisory

import (
	"context"
	"sort"

	"github.com/jordigilh/rtx/internal/dependency"
)

// Severity is the ordered advisory severity scale.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	case SeverityLow:
		return "low"
	default:
		return "none"
	}
}

// VersionRange is an affected-version range as declared by the source. The
// inclusivity of each bound is exactly what the source declared; RTX never
// infers it.
type VersionRange struct {
	IntroducedInclusive string // empty means "from the beginning of history"
	FixedExclusive       string // empty means "no fix published yet"
	LastAffectedInclusive string // set instead of FixedExclusive by some sources
}

// Advisory is a single vulnerability record from an upstream source.
type Advisory struct {
	ID        string
	Source    string
	Severity  Severity
	Ranges    []VersionRange
	Withdrawn bool
	Yanked    bool
	Summary   string
}

// Outcome is what a provider returns for one dependency: either a (possibly
// empty) set of advisories, or an explicit "this source could not be
// reached for this dependency" marker. The two are never conflated - an
// empty Advisories with Unavailable=false means "confirmed no advisories".
type Outcome struct {
	Advisories  []Advisory
	Unavailable bool
}

// Batch is the per-dependency result of a single provider's enrich call.
type Batch map[dependency.Key]Outcome

// Provider is the uniform capability every advisory source exposes.
type Provider interface {
	// Name identifies the provider for logging and Report.Sources.
	Name() string
	// EnrichBatch returns advisories (or an unavailable marker) for every
	// dependency in deps. Implementations may split deps into smaller
	// batches internally; they must never omit a dependency from the
	// returned Batch.
	EnrichBatch(ctx context.Context, deps []dependency.Dependency) (Batch, error)
}

// SortAdvisories orders advisories by ID, the determinism rule required by
// the set of advisories for a fixed input+source+cache-state is
// identical across runs.
func SortAdvisories(advs []Advisory) {
	sort.Slice(advs, func(i, j int) bool { return advs[i].ID < advs[j].ID })
}

// CoversVersion reports whether r covers version, given the ecosystem's
// ordering (delegated to compareVersions, a best-effort semver-ish compare
// that degrades to lexical ordering for opaque version strings).
func (r VersionRange) CoversVersion(version string) bool {
	if r.IntroducedInclusive != "" && compareVersions(version, r.IntroducedInclusive) < 0 {
		return false
	}
	if r.FixedExclusive != "" {
		return compareVersions(version, r.FixedExclusive) < 0
	}
	if r.LastAffectedInclusive != "" {
		return compareVersions(version, r.LastAffectedInclusive) <= 0
	}
	return true
}

// HasKnownVuln reports whether any non-withdrawn advisory's range covers
// version, matching the has_known_vuln rule.
func HasKnownVuln(advs []Advisory, version string) bool {
	for _, a := range advs {
		if a.Withdrawn {
			continue
		}
		for _, r := range a.Ranges {
			if r.CoversVersion(version) {
				return true
			}
		}
	}
	return false
}

// IsYanked reports whether any advisory marks this version yanked, per the
// yanked rule (the metadata-level yanked flag is checked by
// the Signal Deriver separately).
func IsYanked(advs []Advisory) bool {
	for _, a := range advs {
		if !a.Withdrawn && a.Yanked {
			return true
		}
	}
	return false
}

// CoveringAdvisories returns the subset of advs that are non-withdrawn and
// whose range covers version - the set that actually contributes to this
// dependency's trust evaluation, as opposed to advisories fetched for it
// that turn out not to apply to the installed version.
func CoveringAdvisories(advs []Advisory, version string) []Advisory {
	var out []Advisory
	for _, a := range advs {
		if a.Withdrawn {
			continue
		}
		for _, r := range a.Ranges {
			if r.CoversVersion(version) {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// MaxSeverity returns the highest severity among non-withdrawn advisories
// whose range covers version, and ok=false if none apply.
func MaxSeverity(advs []Advisory, version string) (Severity, bool) {
	covering := CoveringAdvisories(advs, version)
	if len(covering) == 0 {
		return SeverityNone, false
	}
	max := SeverityNone
	for _, a := range covering {
		if a.Severity > max {
			max = a.Severity
		}
	}
	return max, true
}
