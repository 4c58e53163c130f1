package advisory

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jordigilh/rtx/internal/cache"
	"github.com/jordigilh/rtx/internal/dependency"
)

// PlatformProvider queries a platform security API shaped like GitHub's
// Security Advisories GraphQL/REST surface: per-ecosystem advisory lookup
// keyed by package name, token-authenticated. It is the second of the two
// concrete Advisory Providers rtx ships (one batch vulnerability
// service, one platform security API).
type PlatformProvider struct {
	client    *http.Client
	baseURL   string
	authToken string
	cache     cache.Cache
}

// NewPlatformProvider constructs a PlatformProvider. authToken is read from
// the environment by the caller (authentication supplied via
// environment"). c is the shared cache every lookup routes through, same as
// OSVProvider, so repeated runs within TTL issue zero upstream requests and
// concurrent lookups for the same dependency coalesce onto one request.
func NewPlatformProvider(baseURL, authToken string, c cache.Cache) *PlatformProvider {
	return &PlatformProvider{client: &http.Client{}, baseURL: baseURL, authToken: authToken, cache: c}
}

func (p *PlatformProvider) Name() string { return "platform" }

type platformAdvisory struct {
	GHSAID           string `json:"ghsa_id"`
	Severity         string `json:"severity"`
	WithdrawnAt      string `json:"withdrawn_at,omitempty"`
	Summary          string `json:"summary"`
	VulnerableRanges []struct {
		FirstPatchedVersion string `json:"first_patched_version,omitempty"`
		VulnerableRange     string `json:"vulnerable_version_range"`
	} `json:"vulnerabilities"`
}

// EnrichBatch implements Provider. The platform API is per-item, so this
// provider issues one request per dependency, routed through the shared
// cache's GetOrFetch so repeated and concurrent lookups for the same
// package coalesce instead of each hitting the network.
func (p *PlatformProvider) EnrichBatch(ctx context.Context, deps []dependency.Dependency) (Batch, error) {
	result := make(Batch, len(deps))
	for _, d := range deps {
		ck := cache.Key{Source: p.Name(), Ecosystem: string(d.Ecosystem), Name: d.Name}
		payload, err := p.cache.GetOrFetch(ctx, ck, cache.DefaultTTL, func(fctx context.Context) ([]byte, error) {
			return p.fetchOne(fctx, d)
		})
		if err != nil {
			if errors.Is(err, ErrAuthFailed) {
				return nil, err
			}
			result[d.KeyOf()] = Outcome{Unavailable: true}
			continue
		}
		advs, err := decodeAdvisories(payload)
		if err != nil {
			result[d.KeyOf()] = Outcome{Unavailable: true}
			continue
		}
		SortAdvisories(advs)
		result[d.KeyOf()] = Outcome{Advisories: advs}
	}
	return result, nil
}

// fetchOne queries the platform API for a single dependency and returns the
// marshalled Advisory slice ready for caching. Errors other than
// ErrAuthFailed are surfaced to the caller, which treats them as "source
// unavailable for this dependency" rather than failing the whole batch.
func (p *PlatformProvider) fetchOne(ctx context.Context, d dependency.Dependency) ([]byte, error) {
	url := p.baseURL + "/advisories?ecosystem=" + string(d.Ecosystem) + "&package=" + d.Name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "platform: build request")
	}
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "platform: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("platform: unexpected status %d", resp.StatusCode)
	}

	var raw []platformAdvisory
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "platform: decode response")
	}

	out := make([]Advisory, 0, len(raw))
	for _, a := range raw {
		ranges := make([]VersionRange, 0, len(a.VulnerableRanges))
		for _, vr := range a.VulnerableRanges {
			ranges = append(ranges, parseGHSARange(vr.VulnerableRange, vr.FirstPatchedVersion))
		}
		out = append(out, Advisory{
			ID:        a.GHSAID,
			Source:    p.Name(),
			Severity:  parseGHSASeverity(a.Severity),
			Ranges:    ranges,
			Withdrawn: a.WithdrawnAt != "",
			Summary:   a.Summary,
		})
	}
	SortAdvisories(out)
	return json.Marshal(out)
}

// parseGHSARange parses a GitHub Security Advisory range expression such as
// ">= 1.0.0, < 1.2.3" into a VersionRange, using firstPatched as the
// exclusive upper bound when the range provides one.
func parseGHSARange(expr, firstPatched string) VersionRange {
	vr := VersionRange{FixedExclusive: firstPatched}
	for _, clause := range strings.Split(expr, ",") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, ">="):
			vr.IntroducedInclusive = strings.TrimSpace(strings.TrimPrefix(clause, ">="))
		case strings.HasPrefix(clause, "<="):
			vr.LastAffectedInclusive = strings.TrimSpace(strings.TrimPrefix(clause, "<="))
		case strings.HasPrefix(clause, "<") && vr.FixedExclusive == "":
			vr.FixedExclusive = strings.TrimSpace(strings.TrimPrefix(clause, "<"))
		}
	}
	return vr
}

func parseGHSASeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "moderate", "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	default:
		return SeverityNone
	}
}
