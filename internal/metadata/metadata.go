// Package metadata fetches release history, maintainer counts, and
// deprecation flags per ecosystem, and computes typosquat candidates via
// edit distance against a provider-defined popular-name corpus.
package metadata

import (
	"context"
	"time"

	"github.com/jordigilh/rtx/internal/dependency"
)

// ReleaseMetadata is the per-dependency registry metadata the Signal
// Deriver consumes. An unknown scalar is a nil pointer, and Deprecated is
// only meaningful when DeprecatedKnown is true, so the Signal Deriver can
// tell "known zero" from "unknown" and never treats the latter as positive
// evidence.
type ReleaseMetadata struct {
	LatestReleaseAt    *time.Time
	TotalReleases      *int
	ReleasesLast30Days *int
	MaintainerCount    *int
	Deprecated         bool
	DeprecatedKnown    bool
	VersionYanked      bool
	CanonicalName      string
	TyposquatCandidates []Candidate
	Popularity         *int64
	Unavailable        bool
}

// Candidate is a popular package name within edit-distance range of the
// dependency being evaluated, with the popularity metric used to decide
// which side of the pair is the "real" package.
type Candidate struct {
	Name       string
	Distance   int
	Popularity int64
}

// Provider is the per-ecosystem registry client capability: given a
// dependency, return its ReleaseMetadata. Implementations issue one
// request per dependency and share the Orchestrator's global concurrency
// limiter rather than maintaining their own batching.
type Provider interface {
	Ecosystem() dependency.Ecosystem
	FetchMetadata(ctx context.Context, dep dependency.Dependency) (ReleaseMetadata, error)
}

// Unknown returns a ReleaseMetadata with every scalar unset, the value a
// Provider returns on failure: all fields marked unknown.
func Unknown() ReleaseMetadata {
	return ReleaseMetadata{Unavailable: true}
}

// AgeDays returns the age of the latest release in days and true, or
// (0, false) if the latest release timestamp is unknown.
func (m ReleaseMetadata) AgeDays(now time.Time) (int, bool) {
	if m.LatestReleaseAt == nil {
		return 0, false
	}
	return int(now.Sub(*m.LatestReleaseAt).Hours() / 24), true
}
