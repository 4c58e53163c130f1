package orchestrator

import (
	"context"

	"github.com/jordigilh/rtx/internal/dependency"
	"github.com/jordigilh/rtx/internal/report"
)

// DiffEntry describes how one dependency's severity changed between a
// baseline and a proposed working set.
type DiffEntry struct {
	Ecosystem        dependency.Ecosystem `json:"ecosystem"`
	Name             string               `json:"name"`
	BaselineVersion  string               `json:"baseline_version,omitempty"`
	ProposedVersion  string               `json:"proposed_version,omitempty"`
	BaselineSeverity string               `json:"baseline_severity"`
	ProposedSeverity string               `json:"proposed_severity"`
	Worsened         bool                 `json:"worsened"`
	Improved         bool                 `json:"improved"`
}

// DiffView is the pre-upgrade report: the baseline run, the proposed run,
// and the per-dependency comparison between them.
type DiffView struct {
	Baseline report.Report `json:"baseline"`
	Proposed report.Report `json:"proposed"`
	Diff     []DiffEntry   `json:"diff"`
	ExitCode int           `json:"exit_code"`
}

// RunPreUpgrade evaluates both the current ("baseline") and the proposed
// post-upgrade working set, and reports whether the upgrade makes any
// dependency's trust posture worse. The combined exit code is the max of
// the two runs' exit codes, so a pre-upgrade check can never silently
// downgrade an existing failure.
func (o *Orchestrator) RunPreUpgrade(ctx context.Context, baseline, proposed []dependency.Dependency) (DiffView, error) {
	baselineReport, err := o.Run(ctx, baseline)
	if err != nil {
		return DiffView{}, err
	}
	proposedReport, err := o.Run(ctx, proposed)
	if err != nil {
		return DiffView{}, err
	}

	diff := diffReports(baselineReport, proposedReport)

	exitCode := baselineReport.ExitCode
	if proposedReport.ExitCode > exitCode {
		exitCode = proposedReport.ExitCode
	}

	return DiffView{
		Baseline: baselineReport,
		Proposed: proposedReport,
		Diff:     diff,
		ExitCode: exitCode,
	}, nil
}

type diffKey struct {
	ecosystem dependency.Ecosystem
	name      string
}

// diffReports pairs baseline and proposed verdicts by (ecosystem, name) —
// not version, since an upgrade by definition changes the version - and
// reports severity movement for every name present in either set.
func diffReports(baseline, proposed report.Report) []DiffEntry {
	baseByName := make(map[diffKey]report.DependencyVerdict, len(baseline.Verdicts))
	for _, v := range baseline.Verdicts {
		baseByName[diffKey{v.Ecosystem, v.Name}] = v
	}
	proposedByName := make(map[diffKey]report.DependencyVerdict, len(proposed.Verdicts))
	for _, v := range proposed.Verdicts {
		proposedByName[diffKey{v.Ecosystem, v.Name}] = v
	}

	seen := make(map[diffKey]bool)
	var out []DiffEntry
	for _, v := range baseline.Verdicts {
		k := diffKey{v.Ecosystem, v.Name}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, buildDiffEntry(k, baseByName, proposedByName))
	}
	for _, v := range proposed.Verdicts {
		k := diffKey{v.Ecosystem, v.Name}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, buildDiffEntry(k, baseByName, proposedByName))
	}
	return out
}

func buildDiffEntry(k diffKey, baseByName, proposedByName map[diffKey]report.DependencyVerdict) DiffEntry {
	base, hasBase := baseByName[k]
	prop, hasProposed := proposedByName[k]

	entry := DiffEntry{Ecosystem: k.ecosystem, Name: k.name}
	if hasBase {
		entry.BaselineVersion = base.Version
		entry.BaselineSeverity = base.Severity
	} else {
		entry.BaselineSeverity = "safe"
	}
	if hasProposed {
		entry.ProposedVersion = prop.Version
		entry.ProposedSeverity = prop.Severity
	} else {
		entry.ProposedSeverity = "safe"
	}

	baseRank := diffSeverityRank(entry.BaselineSeverity)
	proposedRank := diffSeverityRank(entry.ProposedSeverity)
	entry.Worsened = proposedRank > baseRank
	entry.Improved = proposedRank < baseRank
	return entry
}

func diffSeverityRank(s string) int {
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
