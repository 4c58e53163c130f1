package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jordigilh/rtx/internal/cache"
	"github.com/jordigilh/rtx/internal/dependency"
)

// osvEcosystem maps RTX's closed ecosystem enum to the ecosystem strings
// OSV.dev's schema expects.
var osvEcosystem = map[dependency.Ecosystem]string{
	dependency.NPM:      "npm",
	dependency.PyPI:     "PyPI",
	dependency.Cargo:    "crates.io",
	dependency.Maven:    "Maven",
	dependency.Go:       "Go",
	dependency.RubyGems: "RubyGems",
	dependency.NuGet:    "NuGet",
	dependency.Composer: "Packagist",
}

// OSVProvider queries a batch vulnerability service shaped like OSV.dev's
// /v1/querybatch endpoint. It is the canonical Advisory Provider: a single
// HTTP round trip enriches an entire batch of dependencies.
type OSVProvider struct {
	client   *http.Client
	endpoint string
	cache    cache.Cache
}

// NewOSVProvider constructs an OSVProvider. endpoint defaults to OSV.dev's
// public batch endpoint when empty, which lets deployments point at a
// private mirror or air-gapped proxy instead.
func NewOSVProvider(endpoint string, c cache.Cache) *OSVProvider {
	if endpoint == "" {
		endpoint = "https://api.osv.dev/v1/querybatch"
	}
	return &OSVProvider{
		client:   &http.Client{},
		endpoint: endpoint,
		cache:    c,
	}
}

func (p *OSVProvider) Name() string { return "osv" }

type osvQuery struct {
	Version string      `json:"version,omitempty"`
	Package *osvPackage `json:"package,omitempty"`
}

type osvPackage struct {
	Name      string `json:"name,omitempty"`
	Ecosystem string `json:"ecosystem,omitempty"`
}

type osvBatchRequest struct {
	Queries []osvQuery `json:"queries"`
}

type osvEvent struct {
	Introduced string `json:"introduced,omitempty"`
	Fixed      string `json:"fixed,omitempty"`
	LastAffected string `json:"last_affected,omitempty"`
}

type osvRange struct {
	Events []osvEvent `json:"events"`
}

type osvAffected struct {
	Ranges   []osvRange `json:"ranges"`
	Versions []string   `json:"versions,omitempty"`
}

type osvSeverity struct {
	Type  string `json:"type"`
	Score string `json:"score"`
}

type osvVuln struct {
	ID        string        `json:"id"`
	Summary   string        `json:"summary"`
	Withdrawn string        `json:"withdrawn,omitempty"`
	Severity  []osvSeverity `json:"severity"`
	Affected  []osvAffected `json:"affected"`
}

type osvResult struct {
	Vulns []osvVuln `json:"vulns"`
}

type osvBatchResponse struct {
	Results []osvResult `json:"results"`
}

// EnrichBatch implements Provider. Each dependency is routed through the
// shared cache's GetOrFetch, one query per miss, so concurrent callers
// asking about the same dependency coalesce onto a single upstream request
// (the single-flight invariant) instead of each issuing their own. This
// trades away OSV's batch-endpoint efficiency (one round trip for the whole
// working set) for that coalescing guarantee; a genuinely cache-cold run
// still issues one request per distinct dependency, same as a bare batch
// call would have per miss, just split across calls instead of joined into
// one.
func (p *OSVProvider) EnrichBatch(ctx context.Context, deps []dependency.Dependency) (Batch, error) {
	result := make(Batch, len(deps))
	for _, d := range deps {
		ck := cache.Key{Source: p.Name(), Ecosystem: string(d.Ecosystem), Name: d.Name, Version: d.Version}
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
		result[d.KeyOf()] = Outcome{Advisories: advs}
	}
	return result, nil
}

// fetchOne queries the endpoint for a single dependency and returns the
// marshalled Advisory slice ready for caching. Any non-nil error other than
// ErrAuthFailed is treated by the caller as "source unavailable for this
// dependency", never as a fatal batch error.
func (p *OSVProvider) fetchOne(ctx context.Context, d dependency.Dependency) ([]byte, error) {
	req := osvBatchRequest{Queries: []osvQuery{{
		Version: d.Version,
		Package: &osvPackage{Name: d.Name, Ecosystem: osvEcosystem[d.Ecosystem]},
	}}}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "osv: marshal query")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "osv: build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "osv: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("osv: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, errors.Wrap(err, "osv: read response")
	}

	var batchResp osvBatchResponse
	if err := json.Unmarshal(raw, &batchResp); err != nil {
		return nil, errors.Wrap(err, "osv: decode response")
	}
	if len(batchResp.Results) == 0 {
		return json.Marshal([]Advisory{})
	}

	advs := translateVulns(p.Name(), batchResp.Results[0].Vulns, d.Version)
	SortAdvisories(advs)
	return json.Marshal(advs)
}

func translateVulns(source string, vulns []osvVuln, version string) []Advisory {
	out := make([]Advisory, 0, len(vulns))
	for _, v := range vulns {
		out = append(out, Advisory{
			ID:        v.ID,
			Source:    source,
			Severity:  translateSeverity(v.Severity),
			Ranges:    translateRanges(v.Affected),
			Withdrawn: v.Withdrawn != "",
			Summary:   v.Summary,
		})
	}
	return out
}

func translateRanges(affected []osvAffected) []VersionRange {
	var out []VersionRange
	for _, a := range affected {
		for _, r := range a.Ranges {
			vr := VersionRange{}
			for _, e := range r.Events {
				if e.Introduced != "" && e.Introduced != "0" {
					vr.IntroducedInclusive = e.Introduced
				}
				if e.Fixed != "" {
					vr.FixedExclusive = e.Fixed
				}
				if e.LastAffected != "" {
					vr.LastAffectedInclusive = e.LastAffected
				}
			}
			out = append(out, vr)
		}
	}
	return out
}

// translateSeverity maps a CVSS score string to RTX's four-level severity
// scale using the conventional CVSS v3 bands.
func translateSeverity(sevs []osvSeverity) Severity {
	best := SeverityNone
	for _, s := range sevs {
		if s.Type != "CVSS_V3" && !strings.Contains(s.Type, "CVSS") {
			continue
		}
		var score float64
		if _, err := fmt.Sscanf(s.Score, "%f", &score); err != nil {
			continue
		}
		var sev Severity
		switch {
		case score >= 9.0:
			sev = SeverityCritical
		case score >= 7.0:
			sev = SeverityHigh
		case score >= 4.0:
			sev = SeverityMedium
		case score > 0:
			sev = SeverityLow
		}
		if sev > best {
			best = sev
		}
	}
	return best
}

func decodeAdvisories(payload []byte) ([]Advisory, error) {
	var advs []Advisory
	if err := json.Unmarshal(payload, &advs); err != nil {
		return nil, errors.Wrap(err, "osv: decode cached advisories")
	}
	return advs, nil
}
