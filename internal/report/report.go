// Package report assembles per-dependency verdicts into the final,
// deterministically ordered Report and computes the CI exit code.
package report

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jordigilh/rtx/internal/dependency"
	"github.com/jordigilh/rtx/internal/policy"
)

// SchemaVersion is stamped onto every Report so external tooling (table/
// JSON/HTML renderers, SBOM emitters) can detect format changes.
const SchemaVersion = "1"

// SourceOutcome is a provider's terminal state for a run.
type SourceOutcome string

const (
	SourceOK       SourceOutcome = "ok"
	SourceDegraded SourceOutcome = "degraded"
	SourceDisabled SourceOutcome = "disabled"
)

// DependencyVerdict pairs a Dependency with its Verdict and any sources
// that could not be reached for it.
type DependencyVerdict struct {
	Ecosystem           dependency.Ecosystem `json:"ecosystem"`
	Name                string               `json:"name"`
	Version             string               `json:"version"`
	Direct              bool                 `json:"direct"`
	Severity            string               `json:"severity"`
	Reasons             []ReasonView         `json:"reasons"`
	UnavailableSources  []string             `json:"unavailable_sources,omitempty"`
}

// ReasonView is the JSON-facing projection of policy.Reason.
type ReasonView struct {
	Signal   string `json:"signal"`
	Severity string `json:"severity"`
}

// Summary holds aggregate counts over the whole working set.
type Summary struct {
	Total    int `json:"total"`
	Safe     int `json:"safe"`
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

// Report is the final pipeline output.
type Report struct {
	SchemaVersion string                   `json:"schema_version"`
	RunID         string                   `json:"run_id"`
	StartedAt     time.Time                `json:"started_at"`
	CompletedAt   time.Time                `json:"completed_at"`
	Verdicts      []DependencyVerdict      `json:"verdicts"`
	Summary       Summary                  `json:"summary"`
	Sources       map[string]SourceOutcome `json:"sources"`
	ExitCode      int                      `json:"exit_code"`
}

// Builder accumulates DependencyVerdicts and produces the final Report.
type Builder struct {
	runID     string
	startedAt time.Time
	verdicts  []DependencyVerdict
	sources   map[string]SourceOutcome
}

// NewBuilder starts a new report build, stamping a fresh run ID.
func NewBuilder(now time.Time) *Builder {
	return &Builder{
		runID:     uuid.NewString(),
		startedAt: now,
		sources:   make(map[string]SourceOutcome),
	}
}

// AddVerdict records one dependency's verdict.
func (b *Builder) AddVerdict(dep dependency.Dependency, v policy.Verdict, unavailable []string) {
	dv := DependencyVerdict{
		Ecosystem:          dep.Ecosystem,
		Name:               dep.Name,
		Version:            dep.Version,
		Direct:             dep.Direct,
		Severity:           v.Severity.String(),
		UnavailableSources: unavailable,
	}
	for _, r := range v.Reasons {
		dv.Reasons = append(dv.Reasons, ReasonView{Signal: r.Signal, Severity: r.Severity.String()})
	}
	b.verdicts = append(b.verdicts, dv)
}

// SetSourceOutcome records a provider's terminal outcome for this run.
func (b *Builder) SetSourceOutcome(source string, outcome SourceOutcome) {
	b.sources[source] = outcome
}

// Build sorts the accumulated verdicts (severity desc, ecosystem asc, name
// asc, version asc), computes aggregate counts, and derives
// the exit code as the max severity observed.
func (b *Builder) Build(completedAt time.Time) Report {
	sort.SliceStable(b.verdicts, func(i, j int) bool {
		a, c := b.verdicts[i], b.verdicts[j]
		ra, rc := severityRank(a.Severity), severityRank(c.Severity)
		if ra != rc {
			return ra > rc
		}
		if a.Ecosystem != c.Ecosystem {
			return a.Ecosystem < c.Ecosystem
		}
		if a.Name != c.Name {
			return a.Name < c.Name
		}
		return a.Version < c.Version
	})

	summary := Summary{Total: len(b.verdicts)}
	maxRank := 0
	for _, v := range b.verdicts {
		switch v.Severity {
		case "safe":
			summary.Safe++
		case "low":
			summary.Low++
		case "medium":
			summary.Medium++
		case "high":
			summary.High++
		case "critical":
			summary.Critical++
		}
		if r := severityRank(v.Severity); r > maxRank {
			maxRank = r
		}
	}

	return Report{
		SchemaVersion: SchemaVersion,
		RunID:         b.runID,
		StartedAt:     b.startedAt,
		CompletedAt:   completedAt,
		Verdicts:      b.verdicts,
		Summary:       summary,
		Sources:       b.sources,
		ExitCode:      exitCodeForRank(maxRank),
	}
}

func severityRank(s string) int {
	switch s {
	case "critical":
		return 4
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	default:
		return 0
	}
}

func exitCodeForRank(r int) int {
	switch {
	case r >= 3:
		return 2
	case r == 2:
		return 1
	default:
		return 0
	}
}

// MarshalJSON renders the Report as stable, indented UTF-8 JSON. Field
// order is fixed by the struct definition and verdict order is fixed by
// Build, so identical inputs always yield byte-identical output.
func (r Report) MarshalJSON() ([]byte, error) {
	type alias Report // avoid recursive MarshalJSON
	return json.MarshalIndent(alias(r), "", "  ")
}
