// Package signal derives the boolean TrustSignal flags from a Dependency,
// its advisories, and its release metadata. This is a pure function: same
// inputs always produce the same signals, no I/O, no global state.
package signal

import (
	"time"

	"github.com/jordigilh/rtx/internal/advisory"
	"github.com/jordigilh/rtx/internal/dependency"
	"github.com/jordigilh/rtx/internal/metadata"
)

// Thresholds carries every configurable number the derivation rules use.
// Derive takes it by value and never mutates it, so concurrent invocations
// can share one Thresholds value safely.
type Thresholds struct {
	AbandonmentDays       int
	ChurnHighPerMonth     int
	ChurnMediumPerMonth   int
	BusFactorZeroMax      int
	BusFactorOneMax       int
	LowMaturityReleases   int
	TyposquatMaxDistance  int
}

// DefaultThresholds returns rtx's built-in defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AbandonmentDays:      540,
		ChurnHighPerMonth:    10,
		ChurnMediumPerMonth:  5,
		BusFactorZeroMax:     0,
		BusFactorOneMax:      1,
		LowMaturityReleases:  3,
		TyposquatMaxDistance: 2,
	}
}

// TrustSignal is the boolean/scalar record the Policy Engine consumes.
type TrustSignal struct {
	Abandoned      bool
	HighChurn      bool
	MediumChurn    bool
	BusFactorZero  bool
	BusFactorOne   bool
	LowMaturity    bool
	Typosquat      bool
	Yanked         bool
	HasKnownVuln   bool
	KnownVulnSeverity advisory.Severity
	// Version is the installed version Advisories were evaluated against,
	// carried alongside so the Policy Engine can re-filter which advisories
	// actually cover it (e.g. for ContributingAdvisoryIDs) without needing
	// the full Dependency.
	Version        string
	Advisories     []advisory.Advisory
}

// Derive computes the TrustSignal for dep given its advisories and release
// metadata. Signals whose inputs are unknown
// remain false - unknown scalars are never treated as positive evidence.
func Derive(dep dependency.Dependency, advs []advisory.Advisory, meta metadata.ReleaseMetadata, th Thresholds, now time.Time) TrustSignal {
	var s TrustSignal
	s.Advisories = advs
	s.Version = dep.Version

	if meta.LatestReleaseAt != nil {
		ageDays, ok := meta.AgeDays(now)
		if ok && ageDays >= th.AbandonmentDays {
			s.Abandoned = true
		}
	}

	if meta.ReleasesLast30Days != nil {
		switch {
		case *meta.ReleasesLast30Days >= th.ChurnHighPerMonth:
			s.HighChurn = true
		case *meta.ReleasesLast30Days >= th.ChurnMediumPerMonth:
			s.MediumChurn = true
		}
	}

	if meta.MaintainerCount != nil {
		switch {
		case *meta.MaintainerCount <= th.BusFactorZeroMax:
			s.BusFactorZero = true
		case *meta.MaintainerCount <= th.BusFactorOneMax:
			s.BusFactorOne = true
		}
	}

	if meta.TotalReleases != nil && *meta.TotalReleases < th.LowMaturityReleases {
		s.LowMaturity = true
	}

	s.Typosquat = detectTyposquat(meta, th)

	s.Yanked = advisory.IsYanked(advs) || meta.VersionYanked

	if sev, ok := advisory.MaxSeverity(advs, dep.Version); ok && sev > advisory.SeverityNone {
		s.HasKnownVuln = true
		s.KnownVulnSeverity = sev
	}

	return s
}

// detectTyposquat implements the typosquat rule: a popular candidate, not
// equal to self, within the configured edit distance, with strictly more
// popularity than the dependency itself. When the dependency's own
// popularity is unknown, it is treated as zero so any listed candidate
// still counts as more popular, rather than suppressing the signal for
// lack of a self baseline.
func detectTyposquat(meta metadata.ReleaseMetadata, th Thresholds) bool {
	var selfPopularity int64
	if meta.Popularity != nil {
		selfPopularity = *meta.Popularity
	}
	for _, c := range meta.TyposquatCandidates {
		if c.Distance <= th.TyposquatMaxDistance && c.Popularity > selfPopularity {
			return true
		}
	}
	return false
}
