package metadata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/go-faster/errors"
	"github.com/jordigilh/rtx/internal/dependency"
)

var errUnexpectedStatus = errors.New("metadata: unexpected registry response status")

// PopularNameCorpus supplies the top-K popular names a registry exposes,
// used as the candidate pool for typosquat scoring. The core only
// specifies the edit-distance rule and popularity tiebreaker;
// the corpus itself is provider-defined.
type PopularNameCorpus interface {
	TopK(ctx context.Context, eco dependency.Ecosystem, k int) ([]PopularName, error)
}

// PopularName is one entry in a PopularNameCorpus.
type PopularName struct {
	Name       string
	Popularity int64
}

// RegistryProvider is a generic per-ecosystem registry client: it fetches
// release history for a single package and, separately, a popular-name
// corpus for typosquat scoring.
type RegistryProvider struct {
	eco           dependency.Ecosystem
	client        *http.Client
	releaseURL    func(dependency.Dependency) string
	corpus        PopularNameCorpus
	topK          int
	maxDistance   int
}

// NewRegistryProvider constructs a RegistryProvider for one ecosystem.
// releaseURL builds the registry's release-info URL for a dependency;
// corpus supplies the popular-name pool; topK and maxDistance are the
// typosquat parameters (top-K popular names, edit
// distance ≤ maxDistance).
func NewRegistryProvider(eco dependency.Ecosystem, releaseURL func(dependency.Dependency) string, corpus PopularNameCorpus, topK, maxDistance int) *RegistryProvider {
	return &RegistryProvider{
		eco:         eco,
		client:      &http.Client{},
		releaseURL:  releaseURL,
		corpus:      corpus,
		topK:        topK,
		maxDistance: maxDistance,
	}
}

func (p *RegistryProvider) Ecosystem() dependency.Ecosystem { return p.eco }

// registryRelease is the minimal shape this generic client expects a
// registry's release-info endpoint to return. Real per-ecosystem clients
// (npm, PyPI, crates.io, ...) translate their own wire formats into this.
// A field absent from the response stays nil and is reported as unknown.
type registryRelease struct {
	LatestVersion      string     `json:"latest_version"`
	LatestReleasedAt   *time.Time `json:"latest_released_at"`
	TotalReleases      *int       `json:"total_releases"`
	ReleasesLast30Days *int       `json:"releases_last_30_days"`
	MaintainerCount    *int       `json:"maintainer_count"`
	Deprecated         *bool      `json:"deprecated"`
	Popularity         *int64     `json:"popularity"`
}

// FetchMetadata implements Provider.
func (p *RegistryProvider) FetchMetadata(ctx context.Context, dep dependency.Dependency) (ReleaseMetadata, error) {
	rel, err := p.fetchRelease(ctx, dep)
	if err != nil {
		return Unknown(), nil
	}

	m := ReleaseMetadata{
		LatestReleaseAt:    rel.LatestReleasedAt,
		TotalReleases:      rel.TotalReleases,
		ReleasesLast30Days: rel.ReleasesLast30Days,
		MaintainerCount:    rel.MaintainerCount,
		Deprecated:         rel.Deprecated != nil && *rel.Deprecated,
		DeprecatedKnown:    rel.Deprecated != nil,
		CanonicalName:      dependency.NormalizeName(p.eco, dep.Name),
		Popularity:         rel.Popularity,
	}

	if p.corpus != nil {
		candidates, cerr := p.typosquatCandidates(ctx, dep)
		if cerr == nil {
			m.TyposquatCandidates = candidates
		}
	}
	return m, nil
}

func (p *RegistryProvider) fetchRelease(ctx context.Context, dep dependency.Dependency) (*registryRelease, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.releaseURL(dep), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errUnexpectedStatus
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, err
	}
	var rel registryRelease
	if err := json.Unmarshal(raw, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// typosquatCandidates computes the edit-distance rule: the
// subset of the top-K popular names within maxDistance of the normalized
// dependency name, excluding the dependency itself, ties broken by shorter
// candidate name.
func (p *RegistryProvider) typosquatCandidates(ctx context.Context, dep dependency.Dependency) ([]Candidate, error) {
	popular, err := p.corpus.TopK(ctx, p.eco, p.topK)
	if err != nil {
		return nil, err
	}

	self := strings.ToLower(dependency.NormalizeName(p.eco, dep.Name))
	var out []Candidate
	for _, cand := range popular {
		candName := strings.ToLower(cand.Name)
		if candName == self {
			continue
		}
		d := levenshtein.ComputeDistance(self, candName)
		if d <= p.maxDistance {
			out = append(out, Candidate{Name: cand.Name, Distance: d, Popularity: cand.Popularity})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return len(out[i].Name) < len(out[j].Name)
	})
	return out, nil
}
